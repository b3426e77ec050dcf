package stage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// LinguisticInput is a script and the languages it must be delivered in.
type LinguisticInput struct {
	Script    record.DirectorOutput
	Languages []record.Language
}

func (in LinguisticInput) primary() record.Language {
	if in.Script.PrimaryLanguage != "" {
		return in.Script.PrimaryLanguage
	}
	if len(in.Languages) > 0 {
		return in.Languages[0]
	}
	return record.LanguageEnglish
}

// targets returns the languages other than the primary, deduplicated.
func (in LinguisticInput) targets() []record.Language {
	primary := in.primary()
	var out []record.Language
	for _, l := range in.Languages {
		if l != primary && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

var languageNotes = map[record.Language]string{
	record.LanguageMalay:      "Conversational Malay. Short warnings such as \"Hati-hati!\" or \"Jangan layan!\". Common English terms are fine.",
	record.LanguageMalayUrban: "Urban conversational Malay as spoken in the Klang Valley. Light code-switching with English is natural.",
	record.LanguageEnglish:    "Plain Malaysian English. Short direct sentences for viewers who may not be native speakers.",
	record.LanguageMandarin:   "Spoken Mandarin in simplified characters with Malaysian Chinese expressions, e.g. 小心! 不要相信!",
	record.LanguageCantonese:  "Colloquial Malaysian Cantonese in traditional characters as commonly subtitled locally.",
	record.LanguageTamil:      "Malaysian Tamil, not Indian literary Tamil. Short punchy sentences, e.g. கவனம்!",
}

const linguisticSystem = `You translate and culturally adapt anti-scam video scripts for Malaysian audiences.
Recreate the meaning naturally instead of translating word for word, keep the emotional tone, and prefer everyday vocabulary.
Only audio_script and text_overlay are translated. scene_id values must match the original exactly.`

type linguisticWire struct {
	Translations        map[string][]record.SceneText `json:"translations"`
	CulturalAdaptations map[string]string             `json:"cultural_adaptations"`
}

type linguistic struct {
	s Settings
}

// NewLinguistic returns the translation stage.
func NewLinguistic(s Settings) Definition { return linguistic{s: s} }

func (linguistic) Name() string { return NameLinguistic }

func (d linguistic) Validate(in any) error {
	r, err := inputAs[LinguisticInput](d.Name(), in)
	if err != nil {
		return err
	}
	if len(r.Script.SceneBreakdown) == 0 {
		return failure.Precondition(d.Name(), "script has no scenes to translate")
	}
	return nil
}

// Skip returns the primary-language scenes unchanged when nothing else is
// requested.
func (d linguistic) Skip(in any) (any, bool) {
	r, err := inputAs[LinguisticInput](d.Name(), in)
	if err != nil || len(r.targets()) > 0 {
		return nil, false
	}
	return record.LinguisticOutput{
		ProjectID:    r.Script.ProjectID,
		Translations: map[string][]record.SceneText{string(r.primary()): r.Script.SceneTexts()},
	}, true
}

func (d linguistic) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[LinguisticInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	targets := r.targets()
	var b strings.Builder
	fmt.Fprintf(&b, "Source language: %s\n\nMaster script:\n%s\n\nScenes:\n%s\n\nTarget languages:\n",
		r.primary(), r.Script.MasterScript, pretty(r.Script.SceneTexts()))
	for _, l := range targets {
		fmt.Fprintf(&b, "- %s: %s\n", l, languageNotes[l])
	}
	fmt.Fprintf(&b, `
Respond with a JSON object:
{"translations": {"%[1]s": [{"scene_id": 1, "audio_script": "...", "text_overlay": "..."}]},
 "cultural_adaptations": {"%[1]s": "notes on adaptations made"}}
Use the target language names exactly as listed as keys and include every scene for every language.`, targets[0])

	req := backend.TextRequest{
		System: linguisticSystem,
		Prompt: withNote(b.String(), note),
		JSON:   true,
	}
	d.s.apply(&req)
	return req, nil
}

func (d linguistic) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[LinguisticInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	var w linguisticWire
	strategy, err := extract.Decode(raw, nil, &w)
	if err != nil {
		return nil, strategy, err
	}

	out := record.LinguisticOutput{
		ProjectID:    r.Script.ProjectID,
		Translations: make(map[string][]record.SceneText),
	}
	targets := r.targets()
	for key, scenes := range w.Translations {
		if l, ok := matchLanguage(key, targets); ok {
			out.Translations[string(l)] = scenes
		}
	}
	for _, l := range targets {
		if len(out.Translations[string(l)]) == 0 {
			return nil, strategy, failure.Extraction("missing translation for "+string(l), raw)
		}
	}
	if len(w.CulturalAdaptations) > 0 {
		out.CulturalAdaptations = make(map[string]string)
		for key, note := range w.CulturalAdaptations {
			if l, ok := matchLanguage(key, targets); ok {
				out.CulturalAdaptations[string(l)] = note
			}
		}
	}
	out.Translations[string(r.primary())] = r.Script.SceneTexts()
	return out, strategy, nil
}

// matchLanguage resolves a reply key against the requested languages by
// display name or code.
func matchLanguage(key string, targets []record.Language) (record.Language, bool) {
	key = strings.TrimSpace(key)
	for _, l := range targets {
		if strings.EqualFold(string(l), key) {
			return l, true
		}
	}
	for _, l := range targets {
		if strings.EqualFold(l.Code(), key) {
			return l, true
		}
	}
	return "", false
}
