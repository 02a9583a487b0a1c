package mail

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeSpam    = "spam"
	OutcomeTasks   = "tasks"
	OutcomeNoTasks = "no_tasks"
)

// Receipt records that a (user, message) pair went through the pipeline.
// It is written in the same transaction as the message's tasks and is the
// idempotence anchor for re-delivered messages.
type Receipt struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mail_receipt_user_msg,priority:1" json:"user_id"`
	MessageID string    `gorm:"column:message_id;not null;uniqueIndex:idx_mail_receipt_user_msg,priority:2" json:"message_id"`
	Outcome   string    `gorm:"column:outcome;not null" json:"outcome"`
	TaskCount int       `gorm:"column:task_count;not null;default:0" json:"task_count"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Receipt) TableName() string { return "mail_receipt" }

// RawMessage is a message as delivered by the mail provider, before sanitising.
type RawMessage struct {
	ID         string     `json:"id"`
	GrantID    string     `json:"grant_id"`
	Subject    string     `json:"subject"`
	From       string     `json:"from"`
	Body       string     `json:"body"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}
