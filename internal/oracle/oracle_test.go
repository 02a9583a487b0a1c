package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type stubBackend struct {
	text string
	err  error
	got  Request
}

func (s *stubBackend) Generate(ctx context.Context, req Request) (string, error) {
	s.got = req
	return s.text, s.err
}

func TestParse(t *testing.T) {
	r := Parse("```json\n{\"tasks\": []}\n```", FormatJSON)
	if _, ok := r.Parsed(); !ok {
		t.Fatalf("fenced json: want parsed, got kind=%v", r.Kind)
	}
	r = Parse("not json", FormatJSON)
	if r.Kind != KindUnparseable {
		t.Fatalf("garbage: want unparseable, got kind=%v", r.Kind)
	}
	if got := r.ObjectOr(map[string]any{"d": 1}); got["d"] != 1 {
		t.Fatalf("ObjectOr: want default, got %v", got)
	}
	r = Parse("  ham \n", FormatText)
	if r.Kind != KindText || r.Text != "ham" {
		t.Fatalf("text: want=ham got=%q", r.Text)
	}
}

func TestClientWrapsBackendErrorsAsTransient(t *testing.T) {
	log, _ := logger.New("test")
	c := New(&stubBackend{err: errors.New("boom")}, 0, log)
	_, err := c.Complete(context.Background(), Request{Name: "spam", Format: FormatText})
	if !errs.IsCode(err, errs.CodeTransient) {
		t.Fatalf("Complete: want transient got=%v", err)
	}
}

func TestInvoke(t *testing.T) {
	tools := []Tool{{
		Name: "double",
		Call: func(ctx context.Context, args map[string]any) (any, error) {
			v, _ := args["n"].(float64)
			return v * 2, nil
		},
	}}
	if got := Invoke(context.Background(), tools, "double", `{"n": 2}`); got != "4" {
		t.Fatalf("Invoke: want=4 got=%s", got)
	}
	if got := Invoke(context.Background(), tools, "missing", `{}`); got == "4" {
		t.Fatalf("Invoke: unknown tool must not succeed")
	}
}
