package mail

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ClassLibrary = "library"
	ClassFocus   = "focus"
	ClassDrawer  = "drawer"
)

// Email is a stored message that produced no tasks. Body holds the summary.
type Email struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	MessageID      string     `gorm:"column:message_id;not null;uniqueIndex" json:"message_id"`
	Subject        string     `gorm:"column:subject" json:"subject"`
	Sender         string     `gorm:"column:sender" json:"sender"`
	Body           string     `gorm:"column:body" json:"body"`
	Snippet        string     `gorm:"column:snippet" json:"snippet"`
	Classification string     `gorm:"column:classification;index" json:"classification"`
	ReceivedAt     *time.Time `gorm:"column:received_at" json:"received_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Email) TableName() string { return "email" }

// NormalizeClass maps free-form labels onto the stored email classifications.
func NormalizeClass(raw string) string {
	switch raw {
	case "library", "Library", "LIBRARY":
		return ClassLibrary
	case "focus", "Focus", "Main Focus-View", "main focus-view":
		return ClassFocus
	case "drawer", "Drawer", "DRAWER":
		return ClassDrawer
	default:
		return ""
	}
}
