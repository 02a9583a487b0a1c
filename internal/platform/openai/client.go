package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
	"github.com/yungbote/inboxpilot-backend/internal/platform/httpx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

// maxToolRounds bounds function-call round trips within one Generate.
const maxToolRounds = 4

type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int

	temperature *float64

	// Models that rejected temperature once; omitted thereafter.
	noTempMu   sync.RWMutex
	noTempSeen map[string]bool
}

func NewClient(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.String("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	model := envutil.String("OPENAI_MODEL", "gpt-4o-mini")

	timeout := envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 60)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}

	var tempPtr *float64
	switch strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "")) {
	case "off", "none", "false":
	case "":
		t := 0.2
		tempPtr = &t
	default:
		t := envutil.Float("OPENAI_TEMPERATURE", 0.2)
		tempPtr = &t
	}

	return &Client{
		log:         log.With("service", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		temperature: tempPtr,
		noTempSeen:  map[string]bool{},
	}, nil
}

// -------------------- Responses API --------------------

type functionTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type responsesRequest struct {
	Model              string         `json:"model"`
	PreviousResponseID string         `json:"previous_response_id,omitempty"`
	Input              []any          `json:"input"`
	Tools              []functionTool `json:"tools,omitempty"`
	Text               struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type functionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responsesResponse struct {
	ID     string `json:"id"`
	Output []struct {
		Type      string `json:"type"`
		Role      string `json:"role,omitempty"`
		Name      string `json:"name,omitempty"`
		CallID    string `json:"call_id,omitempty"`
		Arguments string `json:"arguments,omitempty"`
		Content   []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

// Generate implements oracle.Backend. Function calls requested by the model are
// answered from req.Tools and sent back until the model produces text.
func (c *Client) Generate(ctx context.Context, req oracle.Request) (string, error) {
	body := responsesRequest{
		Model: c.model,
		Input: []any{
			message{Role: "system", Content: req.System},
			message{Role: "user", Content: req.User},
		},
	}
	if req.Format == oracle.FormatJSON {
		body.Text.Format = map[string]any{"type": "json_object"}
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, functionTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	c.applyTemperature(&body)

	for round := 0; ; round++ {
		var resp responsesResponse
		if err := c.doResponsesWithTempFallback(ctx, &body, &resp); err != nil {
			return "", err
		}
		if resp.Refusal != "" {
			return "", fmt.Errorf("model refused: %s", resp.Refusal)
		}

		var outputs []any
		for _, item := range resp.Output {
			if item.Type != "function_call" {
				continue
			}
			c.log.Debug("tool call", "tool", item.Name, "round", round)
			outputs = append(outputs, functionCallOutput{
				Type:   "function_call_output",
				CallID: item.CallID,
				Output: oracle.Invoke(ctx, req.Tools, item.Name, item.Arguments),
			})
		}
		if len(outputs) == 0 {
			text := extractOutputText(resp)
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("no output_text found in response")
			}
			return text, nil
		}
		if round+1 >= maxToolRounds {
			return "", fmt.Errorf("tool call limit reached")
		}
		body.PreviousResponseID = resp.ID
		body.Input = outputs
	}
}

// -------------------- transport --------------------

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *Client) applyTemperature(req *responsesRequest) {
	if req == nil || c.temperature == nil {
		return
	}
	c.noTempMu.RLock()
	skip := c.noTempSeen[strings.ToLower(req.Model)]
	c.noTempMu.RUnlock()
	if skip {
		return
	}
	req.Temperature = c.temperature
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, s := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default", "unsupported_value"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// doResponsesWithTempFallback retries exactly once without temperature if the model rejects it.
func (c *Client) doResponsesWithTempFallback(ctx context.Context, req *responsesRequest, out *responsesResponse) error {
	err := c.do(ctx, http.MethodPost, "/v1/responses", req, out)
	if err == nil || req.Temperature == nil || !isUnsupportedTemperatureParam(err) {
		return err
	}
	c.noTempMu.Lock()
	c.noTempSeen[strings.ToLower(req.Model)] = true
	c.noTempMu.Unlock()
	req.Temperature = nil
	return c.do(ctx, http.MethodPost, "/v1/responses", req, out)
}
