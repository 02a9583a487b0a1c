package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
)

func TestEmbeddedCatalogComplete(t *testing.T) {
	c := MustDefault()
	for _, name := range required {
		p, ok := c.Get(name)
		if !ok {
			t.Fatalf("missing prompt %s", name)
		}
		if p.System == "" {
			t.Fatalf("%s: empty system text", name)
		}
	}
	if p, _ := c.Get(TaskExtractor); p.Format != oracle.FormatJSON {
		t.Fatalf("task_extractor format: want=json got=%s", p.Format)
	}
	if p, _ := c.Get(SpamClassifier); p.Format != oracle.FormatText {
		t.Fatalf("spam_classifier format: want=text got=%s", p.Format)
	}
}

func TestParseRejectsMissingPrompts(t *testing.T) {
	_, err := Parse([]byte("prompts:\n  spam_classifier:\n    system: hi\n"))
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("want missing prompts error, got=%v", err)
	}
	if _, err := Parse([]byte("prompts:\n  x:\n    format: xml\n    system: hi\n")); err == nil {
		t.Fatalf("want format error")
	}
}

func TestLoadHonoursOverride(t *testing.T) {
	base, err := promptsFS.ReadFile("prompts.yaml")
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	custom := strings.Replace(string(base), "Answer with exactly one word", "Reply with one word", 1)
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte(custom), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(promptsFileEnv, path)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, _ := c.Get(SpamClassifier)
	if !strings.Contains(p.System, "Reply with one word") {
		t.Fatalf("override not applied: %q", p.System)
	}
}

func TestRequestAppliesStyleOnce(t *testing.T) {
	c := MustDefault()
	req := c.Request(ContentSummarizer, "body")
	if !strings.HasPrefix(req.System, styleMarker) {
		t.Fatalf("style marker missing")
	}
	if again := ApplyStyle(req.System, req.Format); again != req.System {
		t.Fatalf("ApplyStyle should be idempotent")
	}
	if req.Format != oracle.FormatJSON || req.User != "body" || req.Name != ContentSummarizer {
		t.Fatalf("unexpected request: %+v", req)
	}
}
