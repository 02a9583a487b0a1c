package scoring

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

// LoadState says where a loaded model came from.
type LoadState int

const (
	StateLoaded LoadState = iota
	// StateNew means no model was stored for the user.
	StateNew
	// StateReset means a stored model was discarded (version or shape mismatch).
	StateReset
)

type ModelStore interface {
	Load(dbc dbctx.Context, userID uuid.UUID) (*UserModel, LoadState, error)
	Save(dbc dbctx.Context, userID uuid.UUID, m *UserModel) error
}

type repoModelStore struct {
	repo repos.UserModelRepo
	log  *logger.Logger
}

func NewModelStore(repo repos.UserModelRepo, baseLog *logger.Logger) ModelStore {
	return &repoModelStore{repo: repo, log: baseLog.With("component", "ModelStore")}
}

func (s *repoModelStore) Load(dbc dbctx.Context, userID uuid.UUID) (*UserModel, LoadState, error) {
	row, err := s.repo.Get(dbc, userID)
	if err != nil {
		return nil, StateNew, err
	}
	if row == nil {
		return NewUserModel(), StateNew, nil
	}
	m, ok := Deserialise(row.UtilityModel, row.CostModel, row.MappingVersion, row.Updates)
	if !ok {
		s.log.Warn("discarding stored user model",
			"user_id", userID,
			"stored_version", row.MappingVersion,
			"current_version", MappingVersion,
		)
		return m, StateReset, nil
	}
	return m, StateLoaded, nil
}

func (s *repoModelStore) Save(dbc dbctx.Context, userID uuid.UUID, m *UserModel) error {
	u, c, err := m.Serialise()
	if err != nil {
		return err
	}
	return s.repo.Upsert(dbc, &types.UserModel{
		UserID:         userID,
		UtilityModel:   datatypes.JSON(u),
		CostModel:      datatypes.JSON(c),
		MappingVersion: m.Version,
		Updates:        m.Updates,
	})
}
