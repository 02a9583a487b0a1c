package user

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User rows are created by the external auth service; this service only reads
// identity columns and owns personality, domain inference and the onboarding flag.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	GrantID   string    `gorm:"column:grant_id;index" json:"grant_id,omitempty"`
	MailEmail string    `gorm:"column:mail_email" json:"mail_email,omitempty"`

	// Personality is a JSON array of strings; the last element is current.
	Personality datatypes.JSON `gorm:"column:personality;type:jsonb" json:"personality"`
	DomainInf   string         `gorm:"column:domain_inf" json:"domain_inf,omitempty"`
	TaskGen     bool           `gorm:"column:task_gen;not null;default:true" json:"task_gen"`

	// PersonalityRun is the last onboarding run that appended a trait.
	PersonalityRun string `gorm:"column:personality_run" json:"-"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

// Traits decodes the personality list. Malformed JSON yields an empty list.
func (u *User) Traits() []string {
	if u == nil || len(u.Personality) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(u.Personality, &out); err != nil {
		return []string{}
	}
	return out
}

// CurrentTrait is the last personality entry, or "".
func (u *User) CurrentTrait() string {
	t := u.Traits()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

// ProfileContext is the user context handed to prompts: current trait plus domain info.
func (u *User) ProfileContext() string {
	if u == nil {
		return ""
	}
	cur := strings.TrimSpace(u.CurrentTrait())
	dom := strings.TrimSpace(u.DomainInf)
	switch {
	case cur != "" && dom != "":
		return cur + "\n" + dom
	case cur != "":
		return cur
	default:
		return dom
	}
}

// EncodeTraits trims the list to the newest max entries and encodes it.
func EncodeTraits(traits []string, max int) datatypes.JSON {
	clean := make([]string, 0, len(traits))
	for _, t := range traits {
		if s := strings.TrimSpace(t); s != "" {
			clean = append(clean, s)
		}
	}
	if max > 0 && len(clean) > max {
		clean = clean[len(clean)-max:]
	}
	raw, _ := json.Marshal(clean)
	return datatypes.JSON(raw)
}
