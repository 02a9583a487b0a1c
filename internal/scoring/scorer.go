package scoring

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type Mode string

const (
	ModeRule   Mode = "rule"
	ModeOnline Mode = "online"
)

type Config struct {
	Mode   Mode
	Rule   Weights
	Online Weights
}

func ConfigFromEnv() Config {
	mode := Mode(strings.ToLower(envutil.String("SCORING_MODE", string(ModeRule))))
	if mode != ModeOnline {
		mode = ModeRule
	}
	return Config{
		Mode: mode,
		Rule: Weights{
			Alpha: envutil.Float("SCORING_RULE_ALPHA", DefaultRuleWeights.Alpha),
			Beta:  envutil.Float("SCORING_RULE_BETA", DefaultRuleWeights.Beta),
		},
		Online: Weights{
			Alpha: envutil.Float("SCORING_ONLINE_ALPHA", DefaultOnlineWeights.Alpha),
			Beta:  envutil.Float("SCORING_ONLINE_BETA", DefaultOnlineWeights.Beta),
		},
	}
}

// Input is one task's features as handed to the scorer.
type Input struct {
	Utility  map[string]any
	Cost     map[string]any
	Priority string
	Deadline string
}

// Scorer turns feature maps into utility, cost and relevance. In online mode
// it uses the user's regressors once they have received feedback and falls
// back to rule scoring otherwise.
type Scorer struct {
	cfg   Config
	store ModelStore
	log   *logger.Logger
	now   func() time.Time
}

func NewScorer(cfg Config, store ModelStore, baseLog *logger.Logger) *Scorer {
	if cfg.Rule == (Weights{}) {
		cfg.Rule = DefaultRuleWeights
	}
	if cfg.Online == (Weights{}) {
		cfg.Online = DefaultOnlineWeights
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRule
	}
	return &Scorer{cfg: cfg, store: store, log: baseLog.With("component", "Scorer"), now: time.Now}
}

func (s *Scorer) Config() Config { return s.cfg }

// Weights returns the blend used for relevance in the configured mode.
func (s *Scorer) Weights() Weights {
	if s.cfg.Mode == ModeOnline {
		return s.cfg.Online
	}
	return s.cfg.Rule
}

func (s *Scorer) Score(dbc dbctx.Context, userID uuid.UUID, in Input) Scores {
	return s.ScoreBatch(dbc, userID, []Input{in})[0]
}

// ScoreBatch scores inputs with one model load. Model store failures degrade
// to rule scoring.
func (s *Scorer) ScoreBatch(dbc dbctx.Context, userID uuid.UUID, ins []Input) []Scores {
	out := make([]Scores, len(ins))
	model := s.onlineModel(dbc, userID)
	now := s.now()
	for i, in := range ins {
		if model == nil {
			out[i] = RuleScore(in.Utility, in.Cost, s.cfg.Rule)
			continue
		}
		u := model.PredictUtility(UtilityVector(in.Utility, in.Priority, in.Deadline, now))
		c := model.PredictCost(CostVector(in.Cost, in.Priority, in.Deadline, now))
		out[i] = Scores{Utility: u, Cost: c, Relevance: Relevance(u, c, s.cfg.Online)}
	}
	return out
}

func (s *Scorer) onlineModel(dbc dbctx.Context, userID uuid.UUID) *UserModel {
	if s.cfg.Mode != ModeOnline || s.store == nil || userID == uuid.Nil {
		return nil
	}
	m, state, err := s.store.Load(dbc, userID)
	if err != nil {
		s.log.Warn("user model load failed; using rule scores", "user_id", userID, "error", err)
		return nil
	}
	// A reset model stays unsaved so the next feedback update rebuilds it
	// from the user's stored scores.
	if state == StateNew {
		if err := s.store.Save(dbc, userID, m); err != nil {
			s.log.Warn("user model init failed", "user_id", userID, "error", err)
		}
	}
	if !m.Trained() {
		return nil
	}
	return m
}
