package scoring

import (
	"math"
	"testing"
)

func TestRuleScoreExample(t *testing.T) {
	util := map[string]any{"priority": "high", "intrinsic_interest": "moderate", "reward_pathways": "yes"}
	cost := map[string]any{"task_complexity": "low", "spam_probability": "low", "time_required": "2_hour"}

	if got := UtilityTotal(util); got != 1.3 {
		t.Fatalf("utility total: want=1.3 got=%v", got)
	}
	if got := CostTotal(cost); got != 0.4 {
		t.Fatalf("cost total: want=0.4 got=%v", got)
	}
	s := RuleScore(util, cost, Weights{Alpha: 0.5, Beta: 0.5})
	if math.Abs(s.Relevance-0.45) > 1e-9 {
		t.Fatalf("relevance: want=0.45 got=%v", s.Relevance)
	}
	if s.Utility != 1 {
		t.Fatalf("stored utility should clamp: want=1 got=%v", s.Utility)
	}
	if s.Cost != 0.4 {
		t.Fatalf("cost: want=0.4 got=%v", s.Cost)
	}
}

func TestRuleScoreClampsRelevance(t *testing.T) {
	cost := map[string]any{"task_complexity": "high", "spam_probability": "high", "time_required": "1_week"}
	s := RuleScore(map[string]any{"priority": "low"}, cost, DefaultRuleWeights)
	if s.Relevance != 0 {
		t.Fatalf("negative relevance should clamp to 0, got=%v", s.Relevance)
	}
	if s.Cost != 1 {
		t.Fatalf("cost should clamp to 1, got=%v", s.Cost)
	}

	util := map[string]any{}
	for k := range utilityMappings {
		util[k] = topValue(utilityMappings[k])
	}
	util["deadline_time"] = 1.0
	s = RuleScore(util, nil, Weights{Alpha: 1, Beta: 1})
	if s.Relevance != 1 || s.Utility != 1 {
		t.Fatalf("max utility should clamp to 1, got=%+v", s)
	}
}

func TestRuleScoreDeterministic(t *testing.T) {
	util := map[string]any{"priority": "medium", "deadline_time": 0.43, "domain_relevance": "high"}
	cost := map[string]any{"time_required": "45_minutes", "location_dependencies": "2"}
	a := RuleScore(util, cost, DefaultRuleWeights)
	for i := 0; i < 50; i++ {
		if b := RuleScore(util, cost, DefaultRuleWeights); b != a {
			t.Fatalf("run %d: want=%+v got=%+v", i, a, b)
		}
	}
}

func topValue(m map[string]float64) string {
	best, key := -1.0, ""
	for k, v := range m {
		if v > best {
			best, key = v, k
		}
	}
	return key
}
