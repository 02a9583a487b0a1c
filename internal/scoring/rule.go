package scoring

import "math"

// Weights blends utility and cost into relevance: R = Alpha*U - Beta*C.
type Weights struct {
	Alpha float64
	Beta  float64
}

var (
	DefaultRuleWeights   = Weights{Alpha: 0.5, Beta: 0.5}
	DefaultOnlineWeights = Weights{Alpha: 0.6, Beta: 0.4}
)

type Scores struct {
	Utility   float64 `json:"utility_score"`
	Cost      float64 `json:"cost_score"`
	Relevance float64 `json:"relevance_score"`
}

// UtilityTotal sums mapped utility values, rounded to two decimals.
// Keys outside UtilityKeys contribute nothing.
func UtilityTotal(features map[string]any) float64 {
	total := 0.0
	for _, k := range UtilityKeys {
		if v, ok := features[k]; ok {
			total += UtilityValue(k, v)
		}
	}
	return round(total, 2)
}

func CostTotal(features map[string]any) float64 {
	total := 0.0
	for _, k := range CostKeys {
		if v, ok := features[k]; ok {
			total += CostValue(k, v)
		}
	}
	return round(total, 2)
}

// Relevance clamps w.Alpha*u - w.Beta*c to [0,1].
func Relevance(u, c float64, w Weights) float64 {
	return Clamp01(round(w.Alpha*u-w.Beta*c, 4))
}

// RuleScore computes deterministic scores. Relevance uses the raw totals;
// the stored utility and cost are clamped to [0,1].
func RuleScore(utility, cost map[string]any, w Weights) Scores {
	u := UtilityTotal(utility)
	c := CostTotal(cost)
	return Scores{
		Utility:   Clamp01(u),
		Cost:      Clamp01(c),
		Relevance: Relevance(u, c, w),
	}
}

// PriorityScore scores a task that has no feature record.
func PriorityScore(priority string, w Weights) Scores {
	return RuleScore(map[string]any{"priority": priority}, nil, w)
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
