package tasks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Features holds the raw oracle feature maps a task was scored from.
// Written once with the task and never updated.
type Features struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TaskID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"task_id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Utility        datatypes.JSON `gorm:"column:utility_features;type:jsonb" json:"utility_features"`
	Cost           datatypes.JSON `gorm:"column:cost_features;type:jsonb" json:"cost_features"`
	MappingVersion int            `gorm:"column:mapping_version;not null;default:1" json:"mapping_version"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Features) TableName() string { return "task_features" }

// UserModel stores the serialised per-user utility and cost regressors.
type UserModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	UtilityModel   datatypes.JSON `gorm:"column:utility_model;type:jsonb" json:"utility_model"`
	CostModel      datatypes.JSON `gorm:"column:cost_model;type:jsonb" json:"cost_model"`
	MappingVersion int            `gorm:"column:mapping_version;not null;default:1" json:"mapping_version"`
	Updates        int            `gorm:"column:updates;not null;default:0" json:"updates"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserModel) TableName() string { return "user_model" }
