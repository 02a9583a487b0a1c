package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
)

const promptsFileEnv = "PROMPTS_FILE"

// Prompt names.
const (
	SpamClassifier               = "spam_classifier"
	TaskExtractor                = "task_extractor"
	UtilityFeatures              = "utility_features"
	CostFeatures                 = "cost_features"
	ContentClassifier            = "content_classifier"
	ContentSummarizer            = "content_summarizer"
	PersonalityFromEmails        = "personality_from_emails"
	PersonalityFromQuestionnaire = "personality_from_questionnaire"
	FeedbackPersonality          = "feedback_personality"
	DomainInference              = "domain_inference"
)

var required = []string{
	SpamClassifier,
	TaskExtractor,
	UtilityFeatures,
	CostFeatures,
	ContentClassifier,
	ContentSummarizer,
	PersonalityFromEmails,
	PersonalityFromQuestionnaire,
	FeedbackPersonality,
	DomainInference,
}

//go:embed prompts.yaml
var promptsFS embed.FS

type yamlCatalog struct {
	Catalog string                `yaml:"catalog"`
	Version int                   `yaml:"version"`
	Prompts map[string]yamlPrompt `yaml:"prompts"`
}

type yamlPrompt struct {
	Format string `yaml:"format"`
	System string `yaml:"system"`
}

type Prompt struct {
	Name   string
	System string
	Format oracle.Format
}

// Catalog holds the system prompts for every oracle call.
type Catalog struct {
	Version int
	prompts map[string]Prompt
}

// Load reads PROMPTS_FILE when set, otherwise the embedded catalogue.
func Load() (*Catalog, error) {
	data, err := read()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// MustDefault parses the embedded catalogue and panics if it is broken.
func MustDefault() *Catalog {
	data, err := promptsFS.ReadFile("prompts.yaml")
	if err != nil {
		panic(err)
	}
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

func read() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(promptsFileEnv)); path != "" {
		return os.ReadFile(path)
	}
	return promptsFS.ReadFile("prompts.yaml")
}

func Parse(data []byte) (*Catalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Prompts) == 0 {
		return nil, errors.New("prompts: no prompts defined")
	}
	c := &Catalog{Version: raw.Version, prompts: make(map[string]Prompt, len(raw.Prompts))}
	for name, p := range raw.Prompts {
		system := strings.TrimSpace(p.System)
		if system == "" {
			return nil, fmt.Errorf("prompts: %s has no system text", name)
		}
		var format oracle.Format
		switch strings.ToLower(strings.TrimSpace(p.Format)) {
		case "", "text":
			format = oracle.FormatText
		case "json":
			format = oracle.FormatJSON
		default:
			return nil, fmt.Errorf("prompts: %s has unknown format %q", name, p.Format)
		}
		c.prompts[name] = Prompt{Name: name, System: system, Format: format}
	}
	var missing []string
	for _, name := range required {
		if _, ok := c.prompts[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("prompts: missing %s", strings.Join(missing, ", "))
	}
	return c, nil
}

func (c *Catalog) Get(name string) (Prompt, bool) {
	if c == nil {
		return Prompt{}, false
	}
	p, ok := c.prompts[name]
	return p, ok
}

// Request builds an oracle request for the named prompt. Unknown names yield
// a request with an empty system prompt.
func (c *Catalog) Request(name, user string, tools ...oracle.Tool) oracle.Request {
	p, _ := c.Get(name)
	format := p.Format
	if format == "" {
		format = oracle.FormatText
	}
	return oracle.Request{
		Name:   name,
		System: ApplyStyle(p.System, format),
		User:   user,
		Format: format,
		Tools:  tools,
	}
}
