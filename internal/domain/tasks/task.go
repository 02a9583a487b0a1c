package tasks

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const NoDeadline = "No Deadline"

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Presentation buckets.
const (
	ClassLibrary = "Library"
	ClassDrawer  = "Drawer"
	ClassFocus   = "Main Focus-View"
)

// Task is an actionable item extracted from an email. Scores live in [0,1].
type Task struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"task_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index:idx_task_user_relevance,priority:1" json:"user_id"`
	MessageID      string    `gorm:"column:message_id;index" json:"message_id"`
	Title          string    `gorm:"column:task;not null" json:"task"`
	Deadline       string    `gorm:"column:deadline;not null;default:'No Deadline'" json:"deadline"`
	Priority       string    `gorm:"column:priority;not null;default:'medium'" json:"priority"`
	UtilityScore   float64   `gorm:"column:utility_score;not null;default:0" json:"utility_score"`
	CostScore      float64   `gorm:"column:cost_score;not null;default:0" json:"cost_score"`
	RelevanceScore float64   `gorm:"column:relevance_score;not null;default:0;index:idx_task_user_relevance,priority:2,sort:desc" json:"relevance_score"`
	Classification string    `gorm:"column:classification" json:"classification,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Task) TableName() string { return "task" }

// NormalizePriority lowercases p and falls back to medium.
func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// NormalizeDeadline keeps the deadline verbatim; blank becomes NoDeadline.
func NormalizeDeadline(d string) string {
	if strings.TrimSpace(d) == "" {
		return NoDeadline
	}
	return d
}

func ValidClass(c string) bool {
	switch c {
	case ClassLibrary, ClassDrawer, ClassFocus:
		return true
	}
	return false
}
