package steps

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/inboxpilot-backend/internal/domain/tasks"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

const featureEmailMaxRunes = 4000

type FeaturesInput struct {
	Personality string
	EmailBody   string
	Task        ExtractedTask
}

type FeaturesOutput struct {
	Utility map[string]any `json:"utility_features"`
	Cost    map[string]any `json:"cost_features"`
}

// ExtractFeatures runs the utility and cost calls concurrently. Either side
// degrades to an empty map on failure; only missing deps return an error.
func ExtractFeatures(ctx context.Context, deps Deps, in FeaturesInput) (FeaturesOutput, error) {
	out := FeaturesOutput{Utility: map[string]any{}, Cost: map[string]any{}}
	if err := deps.validate("feature_extract"); err != nil {
		return out, err
	}
	taskCtx := TaskContext(in)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Utility = utilityFeatures(gctx, deps, taskCtx, in.Task)
		return nil
	})
	g.Go(func() error {
		out.Cost = costFeatures(gctx, deps, taskCtx)
		return nil
	})
	_ = g.Wait()
	return out, nil
}

// TaskContext is the user prompt shared by both feature calls.
func TaskContext(in FeaturesInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "user personality: %s\n", strings.TrimSpace(in.Personality))
	fmt.Fprintf(&b, "email: %s\n", truncateRunes(strings.TrimSpace(in.EmailBody), featureEmailMaxRunes, "..."))
	fmt.Fprintf(&b, "task: %s", mustJSON(in.Task))
	return b.String()
}

func utilityFeatures(ctx context.Context, deps Deps, taskCtx string, task ExtractedTask) map[string]any {
	req := deps.Prompts.Request(prompts.UtilityFeatures, taskCtx, deadlineTool(deps.now))
	resp, err := complete(ctx, deps, req)
	if err != nil {
		deps.Log.Warn("utility features failed", "error", err)
		return map[string]any{}
	}
	obj, ok := resp.Parsed()
	if !ok {
		deps.Log.Warn("utility features unparseable", "raw", truncateRunes(resp.Text, 200, "..."))
		return map[string]any{}
	}
	feats := filterKeys(unwrap(obj, "utility_features"), scoring.UtilityKeys)
	if _, numeric := feats["deadline_time"].(float64); !numeric && task.Deadline != tasks.NoDeadline {
		feats["deadline_time"] = DeadlineProximity(task.Deadline, deps.now())
	}
	return feats
}

func costFeatures(ctx context.Context, deps Deps, taskCtx string) map[string]any {
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.CostFeatures, taskCtx))
	if err != nil {
		deps.Log.Warn("cost features failed", "error", err)
		return map[string]any{}
	}
	obj, ok := resp.Parsed()
	if !ok {
		deps.Log.Warn("cost features unparseable", "raw", truncateRunes(resp.Text, 200, "..."))
		return map[string]any{}
	}
	return filterKeys(unwrap(obj, "cost_features"), scoring.CostKeys)
}

// unwrap returns obj[key] when the model nested its answer under key.
func unwrap(obj map[string]any, key string) map[string]any {
	if inner, ok := obj[key].(map[string]any); ok {
		return inner
	}
	return obj
}

func filterKeys(obj map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}
