package scoring

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MappingVersion identifies the mapping tables below. Stored regressors are
// trained against these values; bump it whenever a value changes.
const MappingVersion = 1

// Utility and cost feature keys in vector order.
var (
	UtilityKeys = []string{
		"priority",
		"deadline_time",
		"intrinsic_interest",
		"user_personalization",
		"task_type_relevance",
		"emotional_salience",
		"user_feedback",
		"domain_relevance",
		"novel_task",
		"reward_pathways",
		"social_collaborative_signals",
		"time_of_day_alignment",
	}
	CostKeys = []string{
		"task_complexity",
		"spam_probability",
		"time_required",
		"emotional_stress_factor",
		"location_dependencies",
		"key_friction_factors",
	}
)

var utilityMappings = map[string]map[string]float64{
	"priority":                     {"high": 0.8, "medium": 0.5, "low": 0.2},
	"intrinsic_interest":           {"high": 0.5, "moderate": 0.3, "low": 0.1},
	"user_personalization":         {"important": 0.2, "standard": 0.0},
	"task_type_relevance":          {"high": 0.3, "medium": 0.2, "low": 0.1},
	"emotional_salience":           {"strong": 0.25, "weak": 0.05},
	"user_feedback":                {"emphasized": 0.25, "standard": 0.0},
	"domain_relevance":             {"high": 0.2, "low": 0.0},
	"novel_task":                   {"high": 0.15, "low": 0.0},
	"reward_pathways":              {"yes": 0.2, "no": 0.0},
	"social_collaborative_signals": {"yes": 0.1, "no": 0.0},
	"time_of_day_alignment":        {"appropriate": 0.1, "inappropriate": 0.0},
}

var costMappings = map[string]map[string]float64{
	"task_complexity":         {"high": 0.6, "medium": 0.3, "low": 0.1},
	"spam_probability":        {"high": 0.8, "medium": 0.4, "low": 0.1},
	"emotional_stress_factor": {"high": 0.5, "medium": 0.3, "low": 0.1},
}

// UtilityValue maps one utility feature to its numeric contribution.
func UtilityValue(key string, v any) float64 {
	if key == "deadline_time" {
		f, _ := number(v)
		return f
	}
	return lookup(utilityMappings, key, v)
}

// CostValue maps one cost feature to its numeric contribution.
func CostValue(key string, v any) float64 {
	switch key {
	case "time_required":
		s, ok := v.(string)
		if !ok {
			return 0
		}
		return TimeRequiredCost(s)
	case "location_dependencies":
		return LocationCost(v)
	case "key_friction_factors":
		f, _ := number(v)
		return f
	}
	return lookup(costMappings, key, v)
}

// TimeRequiredCost converts "<N>_<unit>" estimates to hours at 0.1 per hour,
// capped at 1. Days count 8h and weeks 40h.
func TimeRequiredCost(estimate string) float64 {
	s := strings.ToLower(strings.TrimSpace(estimate))
	var (
		perUnit  float64
		fallback float64
	)
	switch {
	case strings.Contains(s, "minute"):
		perUnit, fallback = 1.0/60, 0.05
	case strings.Contains(s, "hour"):
		perUnit, fallback = 1, 0.1
	case strings.Contains(s, "day"):
		perUnit, fallback = 8, 0.5
	case strings.Contains(s, "week"):
		perUnit, fallback = 40, 0.8
	default:
		return 0.1
	}
	head := s
	if i := strings.IndexAny(s, "_ "); i >= 0 {
		head = s[:i]
	}
	n, err := strconv.ParseFloat(head, 64)
	if err != nil {
		return fallback
	}
	return minf(1.0, n*perUnit*0.1)
}

// LocationCost is 0 for "none", otherwise 0.1 per location capped at 0.5.
func LocationCost(v any) float64 {
	if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), "none") {
		return 0
	}
	n, ok := number(v)
	if !ok {
		return 0.1
	}
	return minf(0.5, float64(int(n))*0.1)
}

func lookup(tables map[string]map[string]float64, key string, v any) float64 {
	table, ok := tables[key]
	if !ok {
		return 0
	}
	s, ok := v.(string)
	if !ok {
		return 0
	}
	return table[strings.ToLower(strings.TrimSpace(s))]
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
