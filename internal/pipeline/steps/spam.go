package steps

import (
	"context"
	"strings"

	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

const (
	VerdictSpam = "spam"
	VerdictHam  = "ham"

	spamMaxBodyRunes = 10000
	spamMinBodyRunes = 5
)

type SpamInput struct {
	Body    string
	Profile string
}

type SpamOutput struct {
	Verdict string `json:"verdict"`
	// Skipped is true when the oracle was not consulted.
	Skipped bool `json:"skipped"`
}

func (o SpamOutput) IsSpam() bool { return o.Verdict == VerdictSpam }

// ClassifySpam never fails: oracle errors and unexpected answers are ham.
func ClassifySpam(ctx context.Context, deps Deps, in SpamInput) (SpamOutput, error) {
	out := SpamOutput{Verdict: VerdictHam}
	if err := deps.validate("spam_classify"); err != nil {
		return out, err
	}
	body := strings.TrimSpace(in.Body)
	if len([]rune(body)) < spamMinBodyRunes {
		out.Skipped = true
		return out, nil
	}
	body = truncateRunes(body, spamMaxBodyRunes, "... [truncated]")

	user := body
	if p := strings.TrimSpace(in.Profile); p != "" {
		user = "USER PROFILE:\n" + p + "\n\nEMAIL CONTENT:\n" + body
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.SpamClassifier, user))
	if err != nil {
		deps.Log.Warn("spam classification failed; treating as ham", "error", err)
		return out, nil
	}
	if normalizeVerdict(resp.Text) == VerdictSpam {
		out.Verdict = VerdictSpam
	}
	return out, nil
}

func normalizeVerdict(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, "\"'`.")
	if s == "spam" {
		return VerdictSpam
	}
	return VerdictHam
}
