// Package stage runs single pipeline stages against a text backend. A stage
// is described by a Definition that builds the request and parses the reply;
// the Runner supplies retries on malformed output, fallbacks and timing.
package stage

import (
	"time"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
)

// Stage definition names. They double as the Tag on backend requests.
const (
	NameResearch     = "research"
	NameDeepResearch = "research_deep"
	NameDirector     = "director"
	NameScriptRefine = "script_refine"
	NameLinguistic   = "linguistic"
	NameSensitivity  = "sensitivity"
	NameSocial       = "social"
	NameSocialRefine = "social_refine"
	NameFactRefine   = "fact_refine"
	NameStory        = "va_story"
	NameVeoScript    = "va_script"
	NameCharacters   = "va_characters"
	NameClipPrompts  = "va_clip_prompts"
)

// Definition describes one stage. Implementations are stateless; in is the
// stage's typed input struct passed by value.
type Definition interface {
	Name() string
	// Validate returns a KindPrecondition error when in cannot be run.
	Validate(in any) error
	// BuildRequest renders the backend request. retryNote is non-empty on
	// retries after malformed output and must reach the prompt.
	BuildRequest(in any, retryNote string) (backend.TextRequest, error)
	// Parse turns raw model text into the stage output.
	Parse(raw string, in any) (any, extract.Strategy, error)
}

// Skipper is implemented by stages that can finish without a backend call.
type Skipper interface {
	Skip(in any) (out any, ok bool)
}

// Fallback is implemented by stages that have a safe output when parsing
// fails after every retry.
type Fallback interface {
	Fallback(in any, cause *failure.Error) (out any, ok bool)
}

// Streamer is implemented by stages that run as a streamed backend job.
type Streamer interface {
	BuildStream(in any) (backend.StreamRequest, error)
}

// Result is the uniform envelope returned for every stage run. LowConfidence
// is set when the output came from partial text, the field fallback or a
// stage fallback.
type Result struct {
	Success       bool             `json:"success"`
	Output        any              `json:"output,omitempty"`
	Err           *failure.Error   `json:"error,omitempty"`
	Duration      time.Duration    `json:"duration"`
	Model         string           `json:"model,omitempty"`
	Attempts      int              `json:"attempts"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	Strategy      extract.Strategy `json:"strategy"`
	Skipped       bool             `json:"skipped,omitempty"`
}

// Settings are the per-stage backend knobs.
type Settings struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int32   `yaml:"max_tokens"`
}

// Models holds Settings for every text stage.
type Models struct {
	Research          Settings `yaml:"research"`
	DeepResearchAgent string   `yaml:"deep_research_agent"`
	Director          Settings `yaml:"director"`
	Linguistic        Settings `yaml:"linguistic"`
	Sensitivity       Settings `yaml:"sensitivity"`
	Social            Settings `yaml:"social"`
	Visual            Settings `yaml:"visual"`
}

// DefaultModels returns the stock model table.
func DefaultModels() Models {
	flash := Settings{Model: "gemini-2.0-flash", Temperature: 0.7, MaxTokens: 4096}
	social := flash
	social.MaxTokens = 8192
	return Models{
		Research:          flash,
		DeepResearchAgent: "deep-research-pro-preview-12-2025",
		Director:          flash,
		Linguistic:        flash,
		Sensitivity:       Settings{Model: "gemini-2.0-flash", Temperature: 0.3, MaxTokens: 4096},
		Social:            social,
		Visual:            Settings{Model: "gemini-2.0-flash", Temperature: 0.7, MaxTokens: 8192},
	}
}

func (s Settings) apply(req *backend.TextRequest) {
	req.Model = s.Model
	req.Temperature = s.Temperature
	req.MaxTokens = s.MaxTokens
}

// withNote appends the corrective directive to a prompt on retries.
func withNote(prompt, note string) string {
	if note == "" {
		return prompt
	}
	return prompt + "\n\n" + note
}
