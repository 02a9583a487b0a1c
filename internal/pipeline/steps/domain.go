package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

const defaultDomain = "General Business"

const domainSentMax = 50

type DomainInput struct {
	Email string
	// DomainInf is the previous inference, if any.
	DomainInf   string
	Ratings     map[string]int
	RatedEmails []RatedEmail
	SentEmails  []SentEmail
}

// SentEmail is a message the user wrote; it says more about their work than
// their address does.
type SentEmail struct {
	Subject string `json:"subject"`
	To      string `json:"to,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type domainContext struct {
	PreviousInference string         `json:"previous_inference,omitempty"`
	Ratings           map[string]int `json:"email_ratings,omitempty"`
	RatedEmails       []RatedEmail   `json:"rated_emails,omitempty"`
	SentEmails        []SentEmail    `json:"sent_emails,omitempty"`
}

func (in DomainInput) prompt(host string) (string, error) {
	user := "Analyze this email address to infer the professional domain: " + host
	sent := in.SentEmails
	if len(sent) > domainSentMax {
		sent = sent[:domainSentMax]
	}
	dc := domainContext{
		PreviousInference: strings.TrimSpace(in.DomainInf),
		Ratings:           in.Ratings,
		RatedEmails:       in.RatedEmails,
		SentEmails:        sent,
	}
	if dc.PreviousInference == "" && len(dc.Ratings) == 0 && len(dc.RatedEmails) == 0 && len(dc.SentEmails) == 0 {
		return user, nil
	}
	raw, err := json.Marshal(dc)
	if err != nil {
		return "", err
	}
	return user + "\n\nCONTEXT:\n" + string(raw), nil
}

type DomainOutput struct {
	Domain    string     `json:"domain"`
	Summary   string     `json:"summary"`
	Questions []Question `json:"questions"`
	// Fallback is true when the default answer was used.
	Fallback bool `json:"fallback"`
}

// DefaultDomain is the answer used when there is nothing to infer from.
func DefaultDomain(summary string) DomainOutput {
	return DomainOutput{
		Domain:    defaultDomain,
		Summary:   summary,
		Questions: DefaultQuestions(),
		Fallback:  true,
	}
}

// DefaultQuestions are asked when domain inference fails.
func DefaultQuestions() []Question {
	return []Question{
		{ID: "q1", Question: "Which kinds of email do you act on first?", Options: []string{"Requests from my manager", "Client or customer requests", "Deadlines and bills", "Team updates"}},
		{ID: "q2", Question: "How far ahead do you usually plan your work?", Options: []string{"Same day", "A few days", "A week or more"}},
		{ID: "q3", Question: "Which email can usually wait?", Options: []string{"Newsletters", "Notifications", "Internal announcements", "Social updates"}},
		{ID: "q4", Question: "Do you prefer quick tasks first or important tasks first?", Options: []string{"Quick tasks first", "Important tasks first"}},
	}
}

// InferDomain guesses the user's professional domain from their address, sent
// mail and any ratings so far, and proposes onboarding questions. It never
// fails on oracle errors.
func InferDomain(ctx context.Context, deps Deps, in DomainInput) (DomainOutput, error) {
	host := emailHost(in.Email)
	out := DefaultDomain(fmt.Sprintf("Unable to analyse the domain %s.", host))
	if err := deps.validate("domain_inference"); err != nil {
		return out, err
	}
	if host == "" {
		out.Summary = "Could not determine domain from invalid email format."
		return out, nil
	}
	user, err := in.prompt(host)
	if err != nil {
		return out, err
	}
	resp, err := complete(ctx, deps, deps.Prompts.Request(prompts.DomainInference, user))
	if err != nil {
		deps.Log.Warn("domain inference failed", "host", host, "error", err)
		return out, nil
	}
	obj, ok := resp.Parsed()
	if !ok {
		return out, nil
	}
	if d := stringFromAny(obj["domain"]); d != "" {
		out.Domain = d
		out.Fallback = false
	}
	if s := stringFromAny(obj["summary"]); s != "" {
		out.Summary = s
	}
	if qs := questionsFromAny(obj["questions"]); len(qs) > 0 {
		out.Questions = qs
	}
	return out, nil
}

func emailHost(email string) string {
	e := strings.TrimSpace(email)
	i := strings.LastIndex(e, "@")
	if i <= 0 || i == len(e)-1 {
		return ""
	}
	return strings.ToLower(e[i+1:])
}

func questionsFromAny(v any) []Question {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Question, 0, len(arr))
	for i, item := range arr {
		var q Question
		switch x := item.(type) {
		case string:
			q.Question = strings.TrimSpace(x)
		case map[string]any:
			q.ID = stringFromAny(x["id"])
			q.Question = firstString(x, "question", "text")
			q.Options = stringSliceFromAny(x["options"])
		}
		if q.Question == "" {
			continue
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		out = append(out, q)
	}
	return out
}
