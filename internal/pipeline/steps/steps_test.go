package steps

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
)

type fakeOracle struct {
	mu      sync.Mutex
	calls   []oracle.Request
	respond func(ctx context.Context, req oracle.Request, n int) (string, error)
}

func (f *fakeOracle) Complete(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	text, err := f.respond(ctx, req, n)
	if err != nil {
		return oracle.Response{}, err
	}
	return oracle.Parse(text, req.Format), nil
}

func (f *fakeOracle) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

var testNow = time.Date(2026, 5, 11, 10, 30, 0, 0, time.UTC)

func testDeps(t *testing.T, o oracle.Oracle) Deps {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return Deps{Log: log, Oracle: o, Prompts: prompts.MustDefault(), Now: func() time.Time { return testNow }}
}

func TestSpamShortBodySkipsOracle(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) { return "spam", nil }}
	out, err := ClassifySpam(context.Background(), testDeps(t, o), SpamInput{Body: "Hi"})
	if err != nil {
		t.Fatalf("ClassifySpam: %v", err)
	}
	if out.Verdict != VerdictHam || !out.Skipped {
		t.Fatalf("want skipped ham, got=%+v", out)
	}
	if len(o.calls) != 0 {
		t.Fatalf("oracle calls: want=0 got=%d", len(o.calls))
	}
}

func TestSpamVerdicts(t *testing.T) {
	cases := map[string]string{
		"spam":       VerdictSpam,
		" SPAM\n":    VerdictSpam,
		"not_spam":   VerdictHam,
		"ham":        VerdictHam,
		"definitely": VerdictHam,
	}
	for answer, want := range cases {
		o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) { return answer, nil }}
		out, _ := ClassifySpam(context.Background(), testDeps(t, o), SpamInput{Body: "Win a free cruise today"})
		if out.Verdict != want {
			t.Fatalf("answer %q: want=%s got=%s", answer, want, out.Verdict)
		}
	}
}

func TestSpamRetriesTransientOnce(t *testing.T) {
	o := &fakeOracle{respond: func(_ context.Context, _ oracle.Request, n int) (string, error) {
		if n == 1 {
			return "", errs.Wrap(errs.CodeTransient, "oracle", errors.New("timeout"))
		}
		return "spam", nil
	}}
	out, _ := ClassifySpam(context.Background(), testDeps(t, o), SpamInput{Body: "Cheap pills, act now"})
	if out.Verdict != VerdictSpam || len(o.calls) != 2 {
		t.Fatalf("want spam after one retry, got=%+v calls=%d", out, len(o.calls))
	}

	o = &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) {
		return "", errs.Wrap(errs.CodeTransient, "oracle", errors.New("down"))
	}}
	out, err := ClassifySpam(context.Background(), testDeps(t, o), SpamInput{Body: "Cheap pills, act now"})
	if err != nil || out.Verdict != VerdictHam || len(o.calls) != 2 {
		t.Fatalf("want ham after two failures, got=%+v err=%v calls=%d", out, err, len(o.calls))
	}
}

func TestSpamTruncatesLongBodies(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) { return "not_spam", nil }}
	body := strings.Repeat("a", 12000)
	if _, err := ClassifySpam(context.Background(), testDeps(t, o), SpamInput{Body: body, Profile: "Engineer"}); err != nil {
		t.Fatalf("ClassifySpam: %v", err)
	}
	user := o.calls[0].User
	if !strings.HasSuffix(user, "... [truncated]") {
		t.Fatalf("want truncated marker")
	}
	if !strings.HasPrefix(user, "USER PROFILE:\nEngineer") {
		t.Fatalf("want profile prefix, got=%q", user[:40])
	}
	if want := len("USER PROFILE:\nEngineer\n\nEMAIL CONTENT:\n") + 10000 + len("... [truncated]"); len(user) != want {
		t.Fatalf("prompt length: want=%d got=%d", want, len(user))
	}
}

func TestExtractTasksNormalises(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) {
		return "```json\n" + `{"tasks":[{"title":"Send invoice","due_date":"2026-05-14","priority":"HIGH"},{"task":"Call Ana"},{"task":""},"Book room"]}` + "\n```", nil
	}}
	out, err := ExtractTasks(context.Background(), testDeps(t, o), ExtractInput{Body: "body", Personality: "Founder"})
	if err != nil {
		t.Fatalf("ExtractTasks: %v", err)
	}
	if len(out.Tasks) != 3 {
		t.Fatalf("tasks: want=3 got=%d (%+v)", len(out.Tasks), out.Tasks)
	}
	first := out.Tasks[0]
	if first.Title != "Send invoice" || first.Deadline != "2026-05-14" || first.Priority != "high" {
		t.Fatalf("first task: %+v", first)
	}
	if out.Tasks[1].Deadline != "No Deadline" || out.Tasks[1].Priority != "medium" {
		t.Fatalf("defaults: %+v", out.Tasks[1])
	}
	if !strings.HasPrefix(o.calls[0].User, "USER PERSONALITY:\nFounder\n\nEMAIL CONTENT:\nbody") {
		t.Fatalf("user prompt: %q", o.calls[0].User)
	}
}

func TestExtractTasksUnparseable(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) { return "I found two tasks", nil }}
	_, err := ExtractTasks(context.Background(), testDeps(t, o), ExtractInput{Body: "body"})
	if !errs.IsCode(err, errs.CodeOracleShape) {
		t.Fatalf("want oracle_shape, got=%v", err)
	}
}

func TestDeadlineProximity(t *testing.T) {
	cases := map[string]float64{
		"2026-05-14":  1 - 3.0/7,
		"2026-05-11":  1,
		"2026-05-25":  0,
		"2026-05-01":  0,
		"No Deadline": 0,
		"next friday": 0,
	}
	for in, want := range cases {
		if got := DeadlineProximity(in, testNow); math.Abs(got-want) > 1e-9 {
			t.Fatalf("DeadlineProximity(%q): want=%v got=%v", in, want, got)
		}
	}
}

func TestFeaturesUseDeadlineTool(t *testing.T) {
	o := &fakeOracle{respond: func(ctx context.Context, req oracle.Request, _ int) (string, error) {
		switch req.Name {
		case prompts.UtilityFeatures:
			v := oracle.Invoke(ctx, req.Tools, "get_task_deadline", `{"deadline_date":"2026-05-14"}`)
			return `{"utility_features":{"priority":"high","deadline_time":` + v + `,"made_up":"x"}}`, nil
		case prompts.CostFeatures:
			return `{"task_complexity":"low","time_required":"2_hours","extra":1}`, nil
		}
		return "", errors.New("unexpected prompt")
	}}
	in := FeaturesInput{Personality: "p", EmailBody: "b", Task: ExtractedTask{Title: "t", Deadline: "2026-05-14", Priority: "high"}}
	out, err := ExtractFeatures(context.Background(), testDeps(t, o), in)
	if err != nil {
		t.Fatalf("ExtractFeatures: %v", err)
	}
	dt, ok := out.Utility["deadline_time"].(float64)
	if !ok || math.Abs(dt-0.571) > 0.001 {
		t.Fatalf("deadline_time: want≈0.571 got=%v", out.Utility["deadline_time"])
	}
	if _, ok := out.Utility["made_up"]; ok {
		t.Fatalf("unknown utility key leaked")
	}
	if _, ok := out.Cost["extra"]; ok {
		t.Fatalf("unknown cost key leaked")
	}
	if out.Cost["time_required"] != "2_hours" {
		t.Fatalf("cost: %+v", out.Cost)
	}
	if len(o.calls) != 2 {
		t.Fatalf("calls: want=2 got=%d", len(o.calls))
	}
}

func TestFeaturesDegradeIndependently(t *testing.T) {
	o := &fakeOracle{respond: func(_ context.Context, req oracle.Request, _ int) (string, error) {
		if req.Name == prompts.CostFeatures {
			return "", errors.New("boom")
		}
		return `{"priority":"low"}`, nil
	}}
	in := FeaturesInput{Task: ExtractedTask{Title: "t", Deadline: "2026-05-12", Priority: "low"}}
	out, err := ExtractFeatures(context.Background(), testDeps(t, o), in)
	if err != nil {
		t.Fatalf("ExtractFeatures: %v", err)
	}
	if len(out.Cost) != 0 {
		t.Fatalf("cost should be empty, got=%+v", out.Cost)
	}
	// The model skipped the tool, so the deadline is filled in locally.
	if dt, _ := out.Utility["deadline_time"].(float64); math.Abs(dt-(1-1.0/7)) > 1e-9 {
		t.Fatalf("deadline_time fallback: got=%v", out.Utility["deadline_time"])
	}
}

func TestContentFallbacks(t *testing.T) {
	o := &fakeOracle{respond: func(_ context.Context, req oracle.Request, _ int) (string, error) {
		if req.Name == prompts.ContentClassifier {
			return `{"classification":"Library","reason":"receipt"}`, nil
		}
		return "A plain text summary.", nil
	}}
	deps := testDeps(t, o)
	c, _ := ClassifyContent(context.Background(), deps, ContentInput{Body: "Your receipt"})
	if c.Classification != "library" {
		t.Fatalf("classification: want=library got=%s", c.Classification)
	}
	s, _ := SummarizeContent(context.Background(), deps, ContentInput{Body: "Your receipt"})
	if s.Summary != "A plain text summary." {
		t.Fatalf("summary: %q", s.Summary)
	}

	failing := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) { return "", errors.New("down") }}
	deps = testDeps(t, failing)
	c, _ = ClassifyContent(context.Background(), deps, ContentInput{Body: "x"})
	if c.Classification != "drawer" {
		t.Fatalf("fallback class: want=drawer got=%s", c.Classification)
	}
	s, _ = SummarizeContent(context.Background(), deps, ContentInput{Body: "  short body  "})
	if s.Summary != "short body" {
		t.Fatalf("fallback summary: %q", s.Summary)
	}
}

func TestInferDomain(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) {
		return `{"domain":"Healthcare","summary":"Works at a clinic.","questions":[{"question":"Who schedules patients?","options":["Me","Front desk"]},"Do you handle billing?"]}`, nil
	}}
	out, err := InferDomain(context.Background(), testDeps(t, o), DomainInput{Email: "dr@clinic.org"})
	if err != nil {
		t.Fatalf("InferDomain: %v", err)
	}
	if out.Domain != "Healthcare" || out.Fallback || len(out.Questions) != 2 || out.Questions[1].ID != "q2" {
		t.Fatalf("unexpected: %+v", out)
	}
	if !strings.Contains(o.calls[0].User, "clinic.org") {
		t.Fatalf("host not in prompt: %q", o.calls[0].User)
	}

	_, err = InferDomain(context.Background(), testDeps(t, o), DomainInput{
		Email:       "dr@clinic.org",
		DomainInf:   "Healthcare",
		Ratings:     map[string]int{"e1": 5},
		RatedEmails: []RatedEmail{{ID: "e1", Subject: "Lab results"}},
		SentEmails:  []SentEmail{{Subject: "Re: patient intake", To: "frontdesk@clinic.org"}},
	})
	if err != nil {
		t.Fatalf("InferDomain with context: %v", err)
	}
	for _, want := range []string{`"previous_inference":"Healthcare"`, `"email_ratings":{"e1":5}`, `"Lab results"`, `"Re: patient intake"`} {
		if !strings.Contains(o.calls[1].User, want) {
			t.Fatalf("context prompt: want=%s got=%q", want, o.calls[1].User)
		}
	}

	out, _ = InferDomain(context.Background(), testDeps(t, o), DomainInput{Email: "not-an-email"})
	if !out.Fallback || out.Domain != "General Business" || len(out.Questions) == 0 {
		t.Fatalf("fallback: %+v", out)
	}
}

func TestFeedbackPersonalityShape(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) {
		return `{"feedback_pattern":"prefers client work"}`, nil
	}}
	_, err := FeedbackPersonality(context.Background(), testDeps(t, o), FeedbackPersonalityInput{Direction: "up"})
	if !errs.IsCode(err, errs.CodeOracleShape) {
		t.Fatalf("want oracle_shape, got=%v", err)
	}
	if !strings.Contains(o.calls[0].User, `"task_above":{"id":"","description":"","relevance_score":null}`) {
		t.Fatalf("payload: %s", o.calls[0].User)
	}

	o = &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) {
		return `{"personality":["a","b"],"feedback_pattern":"p"}`, nil
	}}
	out, err := FeedbackPersonality(context.Background(), testDeps(t, o), FeedbackPersonalityInput{CurrentPersonality: "b"})
	if err != nil || len(out.Personality) != 2 || out.Pattern != "p" {
		t.Fatalf("unexpected: %+v err=%v", out, err)
	}
	if !strings.Contains(o.calls[0].User, `"current_personality":"b"`) {
		t.Fatalf("only the current trait should be sent: %s", o.calls[0].User)
	}
}

func TestQuestionnaireRejectsBadRatings(t *testing.T) {
	o := &fakeOracle{respond: func(context.Context, oracle.Request, int) (string, error) { return "summary", nil }}
	_, err := PersonalityFromQuestionnaire(context.Background(), testDeps(t, o), QuestionnaireInput{Ratings: map[string]int{"m1": 9}})
	if !errs.IsCode(err, errs.CodeBadInput) {
		t.Fatalf("want bad_input, got=%v", err)
	}
	if len(o.calls) != 0 {
		t.Fatalf("oracle should not be called")
	}
	got, err := PersonalityFromQuestionnaire(context.Background(), testDeps(t, o), QuestionnaireInput{
		Domain:      "Law",
		Questions:   []Question{{ID: "q1", Question: "What comes first?"}},
		Answers:     map[string]string{"q1": "Court dates"},
		Ratings:     map[string]int{"m1": 5},
		RatedEmails: []RatedEmail{{ID: "m1", Subject: "Hearing moved"}},
	})
	if err != nil || got != "summary" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if !strings.Contains(o.calls[0].User, "Hearing moved (Rating: 5)") {
		t.Fatalf("prompt: %s", o.calls[0].User)
	}
}
