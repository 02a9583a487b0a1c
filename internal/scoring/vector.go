package scoring

import (
	"math"
	"strings"
	"time"
)

const defaultDaysToDeadline = 30.0

// UtilityVector lays out mapped utility values in UtilityKeys order followed
// by encoded priority and days-to-deadline.
func UtilityVector(features map[string]any, priority, deadline string, now time.Time) []float64 {
	x := make([]float64, 0, len(UtilityKeys)+2)
	for _, k := range UtilityKeys {
		x = append(x, UtilityValue(k, features[k]))
	}
	return append(x, EncodePriority(priority), DaysToDeadline(deadline, now))
}

func CostVector(features map[string]any, priority, deadline string, now time.Time) []float64 {
	x := make([]float64, 0, len(CostKeys)+2)
	for _, k := range CostKeys {
		x = append(x, CostValue(k, features[k]))
	}
	return append(x, EncodePriority(priority), DaysToDeadline(deadline, now))
}

func UtilityDim() int { return len(UtilityKeys) + 2 }
func CostDim() int    { return len(CostKeys) + 2 }

func EncodePriority(p string) float64 {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return 1
	case "low":
		return 0
	default:
		return 0.5
	}
}

var deadlineLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04:05"}

// ParseDeadline accepts a handful of date layouts. ok is false for
// "No Deadline" and anything unparseable.
func ParseDeadline(deadline string) (time.Time, bool) {
	d := strings.TrimSpace(deadline)
	if d == "" || strings.EqualFold(d, "no deadline") {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, d); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysToDeadline is whole days from now until deadline, floored at 0.
// Missing or unparseable deadlines count as 30 days.
func DaysToDeadline(deadline string, now time.Time) float64 {
	t, ok := ParseDeadline(deadline)
	if !ok {
		return defaultDaysToDeadline
	}
	days := math.Floor(dateOnly(t).Sub(dateOnly(now)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
