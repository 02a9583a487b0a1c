package steps

import (
	"context"
	"strings"

	"github.com/yungbote/inboxpilot-backend/internal/domain/mail"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

const (
	contentMaxRunes   = 8000
	fallbackSummary   = 280
	defaultEmailClass = mail.ClassDrawer
)

type ContentInput struct {
	Subject string
	Body    string
}

type ClassifyOutput struct {
	Classification string `json:"classification"`
	Reason         string `json:"reason,omitempty"`
}

// ClassifyContent files a task-free email as library or drawer. Failures
// fall back to drawer.
func ClassifyContent(ctx context.Context, deps Deps, in ContentInput) (ClassifyOutput, error) {
	out := ClassifyOutput{Classification: defaultEmailClass}
	if err := deps.validate("content_classify"); err != nil {
		return out, err
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.ContentClassifier, contentPrompt(in)))
	if err != nil {
		deps.Log.Warn("content classification failed", "error", err)
		return out, nil
	}
	obj := resp.ObjectOr(map[string]any{})
	class := mail.NormalizeClass(stringFromAny(obj["classification"]))
	if class == "" {
		class = mail.NormalizeClass(stringFromAny(obj["type"]))
	}
	if class == mail.ClassLibrary || class == mail.ClassDrawer {
		out.Classification = class
	}
	out.Reason = stringFromAny(obj["reason"])
	return out, nil
}

type SummaryOutput struct {
	Summary string `json:"summary"`
}

// SummarizeContent returns a short summary. Plain-text answers are used as
// the summary; failures fall back to the head of the body.
func SummarizeContent(ctx context.Context, deps Deps, in ContentInput) (SummaryOutput, error) {
	out := SummaryOutput{Summary: truncateRunes(strings.TrimSpace(in.Body), fallbackSummary, "...")}
	if err := deps.validate("content_summarize"); err != nil {
		return out, err
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.ContentSummarizer, contentPrompt(in)))
	if err != nil {
		deps.Log.Warn("content summary failed", "error", err)
		return out, nil
	}
	if obj, ok := resp.Parsed(); ok {
		if s := stringFromAny(obj["summary"]); s != "" {
			out.Summary = s
		}
		return out, nil
	}
	if s := strings.TrimSpace(resp.Text); s != "" {
		out.Summary = s
	}
	return out, nil
}

func contentPrompt(in ContentInput) string {
	body := truncateRunes(strings.TrimSpace(in.Body), contentMaxRunes, "...")
	if s := strings.TrimSpace(in.Subject); s != "" {
		return "Subject: " + s + "\n\n" + body
	}
	return body
}
