package scoring

import (
	"encoding/json"
	"fmt"
	"math"
)

// SGD hyperparameters. Loss is squared error with an L2 penalty and the
// learning rate is divided by 5 after patience updates without improvement.
// Steps are normalised by 1+|x|^2, so one update moves the prediction Eta of
// the way to the target whatever the feature scale.
const (
	sgdAlpha    = 0.001
	sgdEta0     = 0.5
	sgdTol      = 1e-3
	sgdPatience = 5
	sgdMinEta   = 1e-6
)

// Regressor is an incrementally trained linear model that serialises to JSON.
type Regressor interface {
	Predict(x []float64) float64
	PartialFit(x []float64, y float64) error
	Fitted() bool
	json.Marshaler
	json.Unmarshaler
}

var _ Regressor = (*SGDRegressor)(nil)

// SGDRegressor is a linear regressor trained one sample at a time.
type SGDRegressor struct {
	Coef      []float64
	Intercept float64
	Eta       float64
	BestLoss  float64
	NoImprove int
	Steps     int
}

func NewSGDRegressor(dim int) *SGDRegressor {
	return &SGDRegressor{
		Coef:     make([]float64, dim),
		Eta:      sgdEta0,
		BestLoss: math.Inf(1),
	}
}

func (r *SGDRegressor) Fitted() bool { return r != nil && r.Steps > 0 }

func (r *SGDRegressor) Dim() int {
	if r == nil {
		return 0
	}
	return len(r.Coef)
}

// Predict returns the raw linear output. Unfitted models and dimension
// mismatches yield 0.5.
func (r *SGDRegressor) Predict(x []float64) float64 {
	if !r.Fitted() || len(x) != len(r.Coef) {
		return 0.5
	}
	return r.dot(x)
}

func (r *SGDRegressor) PartialFit(x []float64, y float64) error {
	if r == nil {
		return fmt.Errorf("sgd: nil regressor")
	}
	if len(x) != len(r.Coef) {
		return fmt.Errorf("sgd: feature dim mismatch: want=%d got=%d", len(r.Coef), len(x))
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return fmt.Errorf("sgd: non-finite target")
	}
	if r.Eta <= 0 {
		r.Eta = sgdEta0
	}
	if r.Steps == 0 && r.BestLoss == 0 {
		r.BestLoss = math.Inf(1)
	}

	p := r.dot(x)
	diff := p - y
	loss := 0.5 * diff * diff

	step := r.Eta / (1 + sqNorm(x))
	decay := 1 - step*sgdAlpha
	for i := range r.Coef {
		r.Coef[i] = r.Coef[i]*decay - step*diff*x[i]
	}
	r.Intercept -= step * diff
	r.Steps++

	if loss > r.BestLoss-sgdTol {
		r.NoImprove++
	} else {
		r.NoImprove = 0
	}
	if loss < r.BestLoss {
		r.BestLoss = loss
	}
	if r.NoImprove >= sgdPatience {
		r.NoImprove = 0
		r.Eta = math.Max(sgdMinEta, r.Eta/5)
	}
	return nil
}

func (r *SGDRegressor) dot(x []float64) float64 {
	s := r.Intercept
	for i, w := range r.Coef {
		s += w * x[i]
	}
	return s
}

func sqNorm(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return s
}

type regressorBlob struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Eta       float64   `json:"eta"`
	BestLoss  *float64  `json:"best_loss"`
	NoImprove int       `json:"no_improve"`
	Steps     int       `json:"steps"`
}

// MarshalJSON stores BestLoss as null while it is still infinite.
func (r *SGDRegressor) MarshalJSON() ([]byte, error) {
	b := regressorBlob{
		Coef:      r.Coef,
		Intercept: r.Intercept,
		Eta:       r.Eta,
		NoImprove: r.NoImprove,
		Steps:     r.Steps,
	}
	if !math.IsInf(r.BestLoss, 0) && !math.IsNaN(r.BestLoss) {
		bl := r.BestLoss
		b.BestLoss = &bl
	}
	return json.Marshal(b)
}

func (r *SGDRegressor) UnmarshalJSON(raw []byte) error {
	var b regressorBlob
	if err := json.Unmarshal(raw, &b); err != nil {
		return err
	}
	*r = SGDRegressor{
		Coef:      b.Coef,
		Intercept: b.Intercept,
		Eta:       b.Eta,
		BestLoss:  math.Inf(1),
		NoImprove: b.NoImprove,
		Steps:     b.Steps,
	}
	if b.BestLoss != nil {
		r.BestLoss = *b.BestLoss
	}
	return nil
}
