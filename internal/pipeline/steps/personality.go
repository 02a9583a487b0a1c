package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

const (
	personalityMaxEmails     = 30
	personalityMaxEmailRunes = 1500
)

type EmailsPersonalityInput struct {
	Bodies []string
}

// PersonalityFromEmails summarises the user from a sample of received mail.
func PersonalityFromEmails(ctx context.Context, deps Deps, in EmailsPersonalityInput) (string, error) {
	if err := deps.validate("personality_from_emails"); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(in.Bodies))
	for _, b := range in.Bodies {
		if len(parts) == personalityMaxEmails {
			break
		}
		if s := strings.TrimSpace(b); s != "" {
			parts = append(parts, "Email: "+truncateRunes(s, personalityMaxEmailRunes, "..."))
		}
	}
	if len(parts) == 0 {
		return "", errs.BadInput("personality_from_emails", "no email content")
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.PersonalityFromEmails, strings.Join(parts, "\n\n")))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errs.New(errs.CodeOracleShape, "personality_from_emails", "empty response", nil)
	}
	return text, nil
}

type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

type RatedEmail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet,omitempty"`
}

type QuestionnaireInput struct {
	Domain      string
	Questions   []Question
	Answers     map[string]string
	Ratings     map[string]int
	RatedEmails []RatedEmail
}

// PersonalityFromQuestionnaire summarises the user from onboarding answers
// and email importance ratings.
func PersonalityFromQuestionnaire(ctx context.Context, deps Deps, in QuestionnaireInput) (string, error) {
	if err := deps.validate("personality_from_questionnaire"); err != nil {
		return "", err
	}
	for id, r := range in.Ratings {
		if r < 1 || r > 5 {
			return "", errs.BadInput("personality_from_questionnaire", fmt.Sprintf("rating for %s must be 1..5", id))
		}
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.PersonalityFromQuestionnaire, questionnairePrompt(in)))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errs.New(errs.CodeOracleShape, "personality_from_questionnaire", "empty response", nil)
	}
	return text, nil
}

func questionnairePrompt(in QuestionnaireInput) string {
	var b strings.Builder
	domain := strings.TrimSpace(in.Domain)
	if domain == "" {
		domain = "unknown"
	}
	fmt.Fprintf(&b, "Professional domain: %s\n\nQuestions and answers:\n", domain)
	for _, q := range in.Questions {
		ans := strings.TrimSpace(in.Answers[q.ID])
		if ans == "" {
			ans = "(no answer)"
		}
		fmt.Fprintf(&b, "- %s\n  Answer: %s\n", strings.TrimSpace(q.Question), ans)
	}
	b.WriteString("\nRated emails:\n")
	if len(in.RatedEmails) == 0 {
		b.WriteString("No rated emails provided.\n")
	}
	for _, e := range in.RatedEmails {
		subject := strings.TrimSpace(e.Subject)
		if subject == "" {
			subject = "(No subject)"
		}
		rating := "N/A"
		if r, ok := in.Ratings[e.ID]; ok {
			rating = fmt.Sprint(r)
		}
		fmt.Fprintf(&b, "- %s (Rating: %s)\n", subject, rating)
	}
	return b.String()
}

type FeedbackTask struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	RelevanceScore *float64 `json:"relevance_score"`
}

type FeedbackPersonalityInput struct {
	// CurrentPersonality is the user's current (last) trait only.
	CurrentPersonality string        `json:"current_personality"`
	Task               FeedbackTask  `json:"task"`
	TaskAbove          *FeedbackTask `json:"task_above"`
	TaskBelow          *FeedbackTask `json:"task_below"`
	Direction          string        `json:"direction"`
	AdjustmentFactor   float64       `json:"adjustment_factor"`
}

type FeedbackPersonalityOutput struct {
	Personality []string `json:"personality"`
	Pattern     string   `json:"feedback_pattern"`
}

// FeedbackPersonality asks the oracle how a re-order changes the user's
// personality. Unparseable output or a missing personality list is an
// oracle_shape error so the caller can leave the stored list alone.
func FeedbackPersonality(ctx context.Context, deps Deps, in FeedbackPersonalityInput) (FeedbackPersonalityOutput, error) {
	out := FeedbackPersonalityOutput{}
	if err := deps.validate("feedback_personality"); err != nil {
		return out, err
	}
	if in.TaskAbove == nil {
		in.TaskAbove = &FeedbackTask{}
	}
	if in.TaskBelow == nil {
		in.TaskBelow = &FeedbackTask{}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.FeedbackPersonality, string(payload)))
	if err != nil {
		return out, err
	}
	obj, ok := resp.Parsed()
	if !ok {
		return out, errs.New(errs.CodeOracleShape, "feedback_personality", "unparseable response", nil)
	}
	switch p := obj["personality"].(type) {
	case []any:
		out.Personality = stringSliceFromAny(p)
	case string:
		if s := strings.TrimSpace(p); s != "" {
			out.Personality = []string{s}
		}
	}
	if len(out.Personality) == 0 {
		return out, errs.New(errs.CodeOracleShape, "feedback_personality", "missing personality", nil)
	}
	out.Pattern = stringFromAny(obj["feedback_pattern"])
	return out, nil
}
