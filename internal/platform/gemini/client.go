package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

const maxToolRounds = 4

// Client is an oracle.Backend over the Gemini API.
type Client struct {
	client      *genai.Client
	modelName   string
	temperature float32
	log         *logger.Logger
}

func NewClient(ctx context.Context, log *logger.Logger) (*Client, error) {
	apiKey := envutil.String("GEMINI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		client:      c,
		modelName:   envutil.String("GEMINI_MODEL", "gemini-2.0-flash"),
		temperature: float32(envutil.Float("GEMINI_TEMPERATURE", 0.2)),
		log:         log.With("service", "GeminiClient"),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Generate(ctx context.Context, req oracle.Request) (string, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	model.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr(c.temperature)}
	if req.Format == oracle.FormatJSON && len(req.Tools) == 0 {
		// JSON mime type cannot be combined with function calling.
		model.ResponseMIMEType = "application/json"
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	cs := model.StartChat()
	resp, err := cs.SendMessage(ctx, genai.Text(req.User))
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	for round := 0; ; round++ {
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", fmt.Errorf("empty response from gemini")
		}
		var (
			text      strings.Builder
			responses []genai.Part
		)
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				args, _ := json.Marshal(p.Args)
				out := oracle.Invoke(ctx, req.Tools, p.Name, string(args))
				var decoded any
				_ = json.Unmarshal([]byte(out), &decoded)
				responses = append(responses, genai.FunctionResponse{
					Name:     p.Name,
					Response: map[string]any{"result": decoded},
				})
			}
		}
		if len(responses) == 0 {
			if strings.TrimSpace(text.String()) == "" {
				return "", fmt.Errorf("empty response from gemini")
			}
			return text.String(), nil
		}
		if round+1 >= maxToolRounds {
			return "", fmt.Errorf("tool call limit reached")
		}
		resp, err = cs.SendMessage(ctx, responses...)
		if err != nil {
			return "", fmt.Errorf("gemini API error: %w", err)
		}
	}
}

// toSchema converts a JSON-schema map (object/string/number properties) into
// a genai.Schema.
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	switch fmt.Sprint(m["type"]) {
	case "object":
		s.Type = genai.TypeObject
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = map[string]*genai.Schema{}
		for k, v := range props {
			if vm, ok := v.(map[string]any); ok {
				s.Properties[k] = toSchema(vm)
			}
		}
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, r := range req {
			s.Required = append(s.Required, fmt.Sprint(r))
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}
