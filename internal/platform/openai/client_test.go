package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", url)
	t.Setenv("OPENAI_MAX_RETRIES", "0")
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateRunsToolRoundTrip(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(raw, &req)
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			if _, ok := req["tools"]; !ok {
				t.Errorf("first request: tools missing")
			}
			_, _ = w.Write([]byte(`{"id":"resp_1","output":[{"type":"function_call","name":"get_task_deadline","call_id":"c1","arguments":"{\"deadline_date\":\"2020-01-01\"}"}]}`))
			return
		}
		if req["previous_response_id"] != "resp_1" {
			t.Errorf("follow-up: previous_response_id=%v", req["previous_response_id"])
		}
		if !strings.Contains(string(raw), `"function_call_output"`) {
			t.Errorf("follow-up: missing function_call_output: %s", raw)
		}
		_, _ = w.Write([]byte(`{"id":"resp_2","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"deadline_time\":0}"}]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var toolHit int32
	out, err := c.Generate(context.Background(), oracle.Request{
		System: "s",
		User:   "u",
		Format: oracle.FormatJSON,
		Tools: []oracle.Tool{{
			Name:       "get_task_deadline",
			Parameters: map[string]any{"type": "object"},
			Call: func(ctx context.Context, args map[string]any) (any, error) {
				atomic.AddInt32(&toolHit, 1)
				return 0.0, nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"deadline_time":0}` {
		t.Fatalf("Generate: got=%s", out)
	}
	if atomic.LoadInt32(&toolHit) != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("round trips: tool=%d http=%d", toolHit, calls)
	}
}

func TestGenerateDropsRejectedTemperature(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if atomic.AddInt32(&calls, 1) == 1 {
			if !strings.Contains(string(raw), "temperature") {
				t.Errorf("first request: expected temperature")
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature'"}}`))
			return
		}
		if strings.Contains(string(raw), "temperature") {
			t.Errorf("retry: temperature should be omitted")
		}
		_, _ = w.Write([]byte(`{"id":"r","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"ham"}]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Generate(context.Background(), oracle.Request{System: "s", User: "u", Format: oracle.FormatText})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "ham" {
		t.Fatalf("Generate: want=ham got=%s", out)
	}
}
