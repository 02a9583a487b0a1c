package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

var tracer = otel.Tracer("inboxpilot/pipeline")

// Deps is shared by every oracle-backed step.
type Deps struct {
	Log     *logger.Logger
	Oracle  oracle.Oracle
	Prompts *prompts.Catalog
	Now     func() time.Time
}

func (d Deps) validate(op string) error {
	if d.Log == nil || d.Oracle == nil || d.Prompts == nil {
		return fmt.Errorf("%s: missing deps", op)
	}
	return nil
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// complete calls the oracle once more when the first attempt fails with a
// transient error.
func complete(ctx context.Context, deps Deps, req oracle.Request) (oracle.Response, error) {
	ctx, span := tracer.Start(ctx, "oracle."+req.Name)
	span.SetAttributes(attribute.String("prompt", req.Name), attribute.Int("tools", len(req.Tools)))
	defer span.End()

	done := llmTimer(deps.Log, req.Name)
	resp, err := deps.Oracle.Complete(ctx, req)
	if err != nil && errs.IsCode(err, errs.CodeTransient) && ctx.Err() == nil {
		deps.Log.Warn("oracle call failed; retrying once", "prompt", req.Name, "error", err)
		resp, err = deps.Oracle.Complete(ctx, req)
	}
	done(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func llmTimer(log *logger.Logger, name string) func(error) {
	start := time.Now()
	return func(err error) {
		if log == nil {
			return
		}
		kv := []any{"llm_call", name, "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			log.Warn("llm call finished", append(kv, "error", err.Error())...)
			return
		}
		log.Debug("llm call finished", kv...)
	}
}

func stringFromAny(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func stringSliceFromAny(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		if s := stringFromAny(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// truncateRunes cuts s to max runes and appends suffix when it did.
func truncateRunes(s string, max int, suffix string) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + suffix
}
