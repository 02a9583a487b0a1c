package scoring

import (
	"encoding/json"
	"fmt"
)

// UserModel is the pair of per-user regressors used in online scoring mode.
type UserModel struct {
	Utility *SGDRegressor
	Cost    *SGDRegressor
	Version int
	Updates int
}

// Sample is one training pair for both regressors.
type Sample struct {
	UtilityX []float64
	UtilityY float64
	CostX    []float64
	CostY    float64
}

// NewUserModel returns regressors warm-started at 0.5: the intercept is
// seeded and one neutral sample is fitted, so every prediction starts at 0.5.
func NewUserModel() *UserModel {
	m := &UserModel{
		Utility: NewSGDRegressor(UtilityDim()),
		Cost:    NewSGDRegressor(CostDim()),
		Version: MappingVersion,
	}
	m.Utility.Intercept, m.Cost.Intercept = 0.5, 0.5
	_ = m.Utility.PartialFit(neutral(UtilityDim()), 0.5)
	_ = m.Cost.PartialFit(neutral(CostDim()), 0.5)
	return m
}

func neutral(dim int) []float64 {
	x := make([]float64, dim)
	for i := range x {
		x[i] = 0.5
	}
	return x
}

// Trained reports whether the model has seen at least one real feedback update.
func (m *UserModel) Trained() bool { return m != nil && m.Updates > 0 }

func (m *UserModel) PredictUtility(x []float64) float64 {
	if m == nil || !m.Utility.Fitted() {
		return 0.5
	}
	return Clamp01(m.Utility.Predict(x))
}

func (m *UserModel) PredictCost(x []float64) float64 {
	if m == nil || !m.Cost.Fitted() {
		return 0.5
	}
	return Clamp01(m.Cost.Predict(x))
}

// PartialFit applies one update to both regressors.
func (m *UserModel) PartialFit(s Sample) error {
	if err := m.Utility.PartialFit(s.UtilityX, s.UtilityY); err != nil {
		return fmt.Errorf("utility: %w", err)
	}
	if err := m.Cost.PartialFit(s.CostX, s.CostY); err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	m.Updates++
	return nil
}

// Rebuild refits the model from scratch on samples, typically the rule
// scores of the user's existing tasks. Samples with bad dimensions are skipped.
func (m *UserModel) Rebuild(samples []Sample) int {
	fresh := NewUserModel()
	m.Utility, m.Cost, m.Version, m.Updates = fresh.Utility, fresh.Cost, MappingVersion, 0
	n := 0
	for _, s := range samples {
		if m.Utility.PartialFit(s.UtilityX, s.UtilityY) != nil {
			continue
		}
		if m.Cost.PartialFit(s.CostX, s.CostY) != nil {
			continue
		}
		n++
	}
	return n
}

// Serialise encodes both regressors.
func (m *UserModel) Serialise() (utility, cost []byte, err error) {
	if utility, err = encodeRegressor(m.Utility); err != nil {
		return nil, nil, err
	}
	if cost, err = encodeRegressor(m.Cost); err != nil {
		return nil, nil, err
	}
	return utility, cost, nil
}

// Deserialise restores a model. ok is false when the blobs are missing,
// corrupt, of the wrong shape, or from another mapping version; the caller
// then gets a fresh warm-started model.
func Deserialise(utility, cost []byte, version, updates int) (m *UserModel, ok bool) {
	if version != MappingVersion || len(utility) == 0 || len(cost) == 0 {
		return NewUserModel(), false
	}
	u, err := decodeRegressor(utility, UtilityDim())
	if err != nil {
		return NewUserModel(), false
	}
	c, err := decodeRegressor(cost, CostDim())
	if err != nil {
		return NewUserModel(), false
	}
	return &UserModel{Utility: u, Cost: c, Version: version, Updates: updates}, true
}

func encodeRegressor(r *SGDRegressor) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("serialise: nil regressor")
	}
	return json.Marshal(r)
}

func decodeRegressor(raw []byte, dim int) (*SGDRegressor, error) {
	var r SGDRegressor
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	if len(r.Coef) != dim {
		return nil, fmt.Errorf("deserialise: dim mismatch: want=%d got=%d", dim, len(r.Coef))
	}
	return &r, nil
}
