package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

type UserService interface {
	Get(ctx context.Context, userID uuid.UUID) (*types.User, error)
	GetPersonality(ctx context.Context, userID uuid.UUID) ([]string, error)
	// SetPersonality replaces the whole list, keeping the newest entries.
	SetPersonality(ctx context.Context, userID uuid.UUID, traits []string) ([]string, error)
}

type userService struct {
	log         *logger.Logger
	users       repos.UserRepo
	personality *personalityStore
	events      Events
	cfg         Config
}

func NewUserService(baseLog *logger.Logger, tx db.TxRunner, users repos.UserRepo, events Events, cfg Config) UserService {
	cfg = cfg.withDefaults()
	return &userService{
		log:         baseLog.With("service", "UserService"),
		users:       users,
		personality: newPersonalityStore(tx, users, cfg.PersonalityMax),
		events:      events,
		cfg:         cfg,
	}
}

func (s *userService) Get(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	if userID == uuid.Nil {
		return nil, errs.BadInput("user.get", "missing user")
	}
	u, err := s.users.GetByID(dbctx.With(ctx), userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.NotFound("user.get", "user not found")
	}
	return u, nil
}

func (s *userService) GetPersonality(ctx context.Context, userID uuid.UUID) ([]string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Traits(), nil
}

func (s *userService) SetPersonality(ctx context.Context, userID uuid.UUID, traits []string) ([]string, error) {
	const op = "user.set_personality"
	if traits == nil {
		return nil, errs.BadInput(op, "personality must be a list")
	}
	if userID == uuid.Nil {
		return nil, errs.BadInput(op, "missing user")
	}
	for _, t := range traits {
		if strings.TrimSpace(t) == "" {
			return nil, errs.BadInput(op, "personality entries cannot be empty")
		}
	}
	out, err := s.personality.set(ctx, op, userID, traits)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.Notify(ctx, userID, realtime.SSEEventPersonalityUpdated, map[string]any{"personality": out})
	}
	return out, nil
}
