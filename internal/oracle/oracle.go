package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Tool is a function the model may call back into. Args arrive decoded from
// the model's JSON arguments; the returned value is JSON-encoded back to it.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Call        func(ctx context.Context, args map[string]any) (any, error)
}

type Request struct {
	Name   string
	System string
	User   string
	Format Format
	Tools  []Tool
}

// Backend is a concrete LLM provider. It runs any tool round-trips itself and
// returns the model's final text.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Kind int

const (
	KindText Kind = iota
	KindParsed
	KindUnparseable
)

// Response is either Text, a Parsed JSON object, or Unparseable raw output.
type Response struct {
	Kind   Kind
	Text   string
	Object map[string]any
}

func (r Response) Parsed() (map[string]any, bool) {
	if r.Kind != KindParsed {
		return nil, false
	}
	return r.Object, true
}

// ObjectOr returns the parsed object, or def for any other kind.
func (r Response) ObjectOr(def map[string]any) map[string]any {
	if obj, ok := r.Parsed(); ok {
		return obj
	}
	return def
}

type Oracle interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type Client struct {
	backend Backend
	limiter *rate.Limiter
	log     *logger.Logger
}

// New wraps backend. perMinute > 0 enables a shared token bucket.
func New(backend Backend, perMinute int, baseLog *logger.Logger) *Client {
	c := &Client{backend: backend, log: baseLog.With("component", "Oracle")}
	if perMinute > 0 {
		burst := perMinute / 6
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	}
	return c
}

func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, errs.Wrap(errs.CodeTransient, "oracle.wait", err)
		}
	}
	start := time.Now()
	text, err := c.backend.Generate(ctx, req)
	if err != nil {
		c.log.Warn("oracle call failed", "prompt", req.Name, "elapsed", time.Since(start).String(), "error", err)
		return Response{}, errs.Wrap(errs.CodeTransient, "oracle."+req.Name, err)
	}
	c.log.Debug("oracle call done", "prompt", req.Name, "elapsed", time.Since(start).String())
	return Parse(text, req.Format), nil
}

// Parse turns raw model output into a Response for format.
func Parse(text string, format Format) Response {
	if format != FormatJSON {
		return Response{Kind: KindText, Text: strings.TrimSpace(text)}
	}
	clean := StripFences(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(clean), &obj); err != nil || obj == nil {
		return Response{Kind: KindUnparseable, Text: text}
	}
	return Response{Kind: KindParsed, Object: obj, Text: clean}
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Lookup finds a tool by name.
func Lookup(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Invoke runs the named tool and JSON-encodes its result. Errors are reported
// to the model as {"error": ...} rather than aborting the exchange.
func Invoke(ctx context.Context, tools []Tool, name string, rawArgs string) string {
	t, ok := Lookup(tools, name)
	if !ok || t.Call == nil {
		return fmt.Sprintf(`{"error":"unknown tool %q"}`, name)
	}
	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return `{"error":"invalid arguments"}`
		}
	}
	out, err := t.Call(ctx, args)
	if err != nil {
		b, _ := json.Marshal(map[string]any{"error": err.Error()})
		return string(b)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return `{"error":"unencodable result"}`
	}
	return string(b)
}
