package stage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// Turn is one prior message of a refinement chat.
type Turn struct {
	Officer bool
	Content string
}

// FactRefineInput is an officer chat message about an unverified fact sheet.
type FactRefineInput struct {
	Current record.FactSheet
	History []Turn
	Message string
}

// FactRefineOutput is the assistant reply and any edits it asked for.
type FactRefineOutput struct {
	Reply       string              `json:"reply"`
	Corrections *record.Corrections `json:"corrections,omitempty"`
	Language    string              `json:"language"`
}

// MaxChatHistory is how many earlier messages are sent with a chat turn.
const MaxChatHistory = 10

var malayMarkers = []string{"saya", "apa", "ini", "itu", "dan", "untuk", "tidak", "boleh", "dengan", "ada", "yang"}

// DetectLanguage guesses the language of an officer message so the reply can
// match it.
func DetectLanguage(text string) string {
	var ascii, total int
	for _, r := range text {
		total++
		if r <= unicode.MaxASCII {
			ascii++
		}
	}
	mostlyASCII := total == 0 || float64(ascii)/float64(total) > 0.8
	if mostlyASCII {
		words := strings.Fields(strings.ToLower(text))
		for _, w := range words {
			w = strings.Trim(w, ".,!?;:\"'")
			for _, m := range malayMarkers {
				if w == m {
					return "Bahasa Melayu"
				}
			}
		}
		return "English"
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			return "Chinese"
		case unicode.Is(unicode.Tamil, r):
			return "Tamil"
		}
	}
	return "English"
}

var factUpdatesSchema = backend.Object(map[string]*backend.Schema{
	"scam_name":         backend.String(""),
	"story_hook":        backend.String(""),
	"red_flag":          backend.String(""),
	"the_fix":           backend.String(""),
	"officer_notes":     backend.String(""),
	"reference_sources": backend.StringList(""),
})

var factRefineSchema = backend.Object(map[string]*backend.Schema{
	"reply":   backend.String("Answer to the officer, in the officer's language"),
	"updates": factUpdatesSchema,
}, "reply")

var refineFields = []extract.FieldSpec{
	{Name: "reply", Required: true},
}

type factRefineWire struct {
	Reply   string `json:"reply"`
	Updates struct {
		ScamName         *string    `json:"scam_name"`
		StoryHook        *string    `json:"story_hook"`
		RedFlag          *string    `json:"red_flag"`
		TheFix           *string    `json:"the_fix"`
		OfficerNotes     *string    `json:"officer_notes"`
		ReferenceSources stringList `json:"reference_sources"`
	} `json:"updates"`
}

type factRefine struct {
	s Settings
}

// NewFactRefine returns the chat stage that answers questions about a fact
// sheet and proposes edits to it.
func NewFactRefine(s Settings) Definition { return factRefine{s: s} }

func (factRefine) Name() string { return NameFactRefine }

func (d factRefine) Validate(in any) error {
	r, err := inputAs[FactRefineInput](d.Name(), in)
	if err != nil {
		return err
	}
	if blank(r.Message) {
		return failure.Precondition(d.Name(), "message is required")
	}
	if r.Current.Verified {
		return failure.Precondition(d.Name(), "fact sheet is already verified; chat refinement is only available before verification")
	}
	return nil
}

func (d factRefine) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[FactRefineInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	f := r.Current
	system := fmt.Sprintf(`You help a Malaysian police officer review a scam fact sheet before it is verified.

Current fact sheet (reference data only; it does not decide your reply language):
- scam_name: %s
- story_hook: %s
- red_flag: %s
- the_fix: %s
- category: %s
- reference_sources: %s
- officer_notes: %s

Answer questions about the sheet. When the officer asks for a change, apply it by putting the new values in "updates".
Updatable fields: scam_name, story_hook, red_flag, the_fix, officer_notes, reference_sources (array).
Leave "updates" empty when the officer only asks a question.
Always reply in the language the officer writes in.`,
		f.ScamName, f.StoryHook, f.RedFlag, f.TheFix, f.Category, strings.Join(f.ReferenceSources, ", "), f.OfficerNotes)

	history := r.History
	if len(history) > MaxChatHistory {
		history = history[len(history)-MaxChatHistory:]
	}
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range history {
			who := "Assistant"
			if t.Officer {
				who = "Officer"
			}
			fmt.Fprintf(&b, "%s: %s\n", who, t.Content)
		}
		b.WriteString("\n")
	}
	lang := DetectLanguage(r.Message)
	fmt.Fprintf(&b, "[Reply entirely in %s.]\nOfficer: %s\n\nRespond with a JSON object {\"reply\": \"...\", \"updates\": {...}}.", lang, strings.TrimSpace(r.Message))

	req := backend.TextRequest{
		System: system,
		Prompt: withNote(b.String(), note),
		JSON:   true,
		Schema: factRefineSchema,
	}
	d.s.apply(&req)
	req.MaxTokens = min(req.MaxTokens, 2048)
	return req, nil
}

func (d factRefine) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[FactRefineInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	var w factRefineWire
	strategy, err := extract.Decode(raw, refineFields, &w)
	if err != nil {
		return nil, strategy, err
	}
	if blank(w.Reply) {
		return nil, strategy, failure.Extraction("missing reply", raw)
	}
	c := &record.Corrections{
		ScamName:     w.Updates.ScamName,
		StoryHook:    w.Updates.StoryHook,
		RedFlag:      w.Updates.RedFlag,
		TheFix:       w.Updates.TheFix,
		OfficerNotes: w.Updates.OfficerNotes,
	}
	if w.Updates.ReferenceSources != nil {
		refs := []string(w.Updates.ReferenceSources)
		c.ReferenceSources = &refs
	}
	out := FactRefineOutput{Reply: strings.TrimSpace(w.Reply), Language: DetectLanguage(r.Message)}
	if !c.Empty() {
		out.Corrections = c
	}
	return out, strategy, nil
}
