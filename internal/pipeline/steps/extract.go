package steps

import (
	"context"
	"strings"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/tasks"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

type ExtractInput struct {
	Body        string
	Personality string
}

type ExtractedTask struct {
	Title    string `json:"task"`
	Deadline string `json:"deadline"`
	Priority string `json:"priority"`
}

type ExtractOutput struct {
	Tasks []ExtractedTask `json:"tasks"`
}

// ExtractTasks asks the oracle for action items. A missing tasks key is an
// empty list; unparseable output is an oracle_shape error.
func ExtractTasks(ctx context.Context, deps Deps, in ExtractInput) (ExtractOutput, error) {
	out := ExtractOutput{Tasks: []ExtractedTask{}}
	if err := deps.validate("task_extract"); err != nil {
		return out, err
	}
	user := in.Body
	if p := strings.TrimSpace(in.Personality); p != "" {
		user = "USER PERSONALITY:\n" + p + "\n\nEMAIL CONTENT:\n" + in.Body
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.TaskExtractor, user))
	if err != nil {
		return out, err
	}
	obj, ok := resp.Parsed()
	if !ok {
		return out, errs.New(errs.CodeOracleShape, "task_extract", "unparseable response", nil)
	}
	raw, _ := obj["tasks"].([]any)
	for _, item := range raw {
		t, ok := taskFromAny(item)
		if !ok {
			continue
		}
		out.Tasks = append(out.Tasks, t)
	}
	return out, nil
}

func taskFromAny(v any) (ExtractedTask, bool) {
	var t ExtractedTask
	switch x := v.(type) {
	case string:
		t.Title = strings.TrimSpace(x)
	case map[string]any:
		t.Title = firstString(x, "task", "title", "description")
		t.Deadline = firstString(x, "deadline", "due_date", "due")
		t.Priority = firstString(x, "priority")
	default:
		return t, false
	}
	if t.Title == "" {
		return t, false
	}
	t.Deadline = tasks.NormalizeDeadline(t.Deadline)
	t.Priority = tasks.NormalizePriority(t.Priority)
	return t, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringFromAny(m[k]); s != "" {
			return s
		}
	}
	return ""
}
