package domain

import (
	"github.com/yungbote/inboxpilot-backend/internal/domain/jobs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/mail"
	"github.com/yungbote/inboxpilot-backend/internal/domain/tasks"
	"github.com/yungbote/inboxpilot-backend/internal/domain/user"
	"gorm.io/datatypes"
)

type (
	User        = user.User
	Email       = mail.Email
	MailReceipt = mail.Receipt
	RawMessage  = mail.RawMessage
	Task        = tasks.Task
	Features    = tasks.Features
	UserModel   = tasks.UserModel
	JobRun      = jobs.JobRun
)

func EncodeTraits(traits []string, max int) datatypes.JSON { return user.EncodeTraits(traits, max) }
