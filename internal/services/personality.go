package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
)

// traitEdit receives the locked user row and returns the new trait list.
// changed=false leaves the row as it is.
type traitEdit func(dbc dbctx.Context, u *types.User) (next []string, changed bool, err error)

// personalityStore is the single writer of the personality column. Every
// edit re-reads the row under a row lock, so concurrent feedback, onboarding
// and manual edits apply one after another.
type personalityStore struct {
	tx    db.TxRunner
	users repos.UserRepo
	max   int
}

func newPersonalityStore(tx db.TxRunner, users repos.UserRepo, max int) *personalityStore {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &personalityStore{tx: tx, users: users, max: max}
}

// edit returns the stored list and whether it changed.
func (p *personalityStore) edit(ctx context.Context, op string, userID uuid.UUID, fn traitEdit) ([]string, bool, error) {
	var (
		out     []string
		changed bool
	)
	err := p.tx.InTx(ctx, func(dbc dbctx.Context) error {
		u, err := p.users.GetByIDForUpdate(dbc, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return errs.NotFound(op, "user not found")
		}
		next, ok, err := fn(dbc, u)
		if err != nil {
			return err
		}
		if !ok {
			out = u.Traits()
			return nil
		}
		raw := types.EncodeTraits(next, p.max)
		if err := p.users.UpdatePersonality(dbc, userID, raw); err != nil {
			return err
		}
		out = (&types.User{Personality: raw}).Traits()
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func (p *personalityStore) appendTrait(ctx context.Context, op string, userID uuid.UUID, trait string) ([]string, error) {
	out, _, err := p.edit(ctx, op, userID, func(_ dbctx.Context, u *types.User) ([]string, bool, error) {
		return append(u.Traits(), trait), true, nil
	})
	return out, err
}

// replaceCurrent swaps the last stored trait for next.
func (p *personalityStore) replaceCurrent(ctx context.Context, op string, userID uuid.UUID, next string) ([]string, error) {
	out, _, err := p.edit(ctx, op, userID, func(_ dbctx.Context, u *types.User) ([]string, bool, error) {
		return ReplaceCurrentTrait(u.Traits(), next), true, nil
	})
	return out, err
}

func (p *personalityStore) set(ctx context.Context, op string, userID uuid.UUID, traits []string) ([]string, error) {
	out, _, err := p.edit(ctx, op, userID, func(_ dbctx.Context, _ *types.User) ([]string, bool, error) {
		return traits, true, nil
	})
	return out, err
}
