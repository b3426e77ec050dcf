package record

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
)

// Scene is one segment of the video script. Keys the pipeline does not read
// are kept in Extra so they survive a round trip.
type Scene struct {
	SceneID             int            `json:"scene_id"`
	DurationEstSeconds  int            `json:"duration_est_seconds"`
	Purpose             string         `json:"purpose,omitempty"`
	VisualPrompt        string         `json:"visual_prompt"`
	AudioScript         string         `json:"audio_script"`
	TextOverlay         string         `json:"text_overlay,omitempty"`
	Transition          string         `json:"transition,omitempty"`
	BackgroundMusicMood string         `json:"background_music_mood,omitempty"`
	Extra               map[string]any `json:"-"`
}

var sceneKeys = []string{
	"scene_id", "duration_est_seconds", "purpose", "visual_prompt", "audio_script",
	"text_overlay", "transition", "background_music_mood",
}

// UnmarshalJSON decodes known fields and keeps the rest in Extra. Fractional
// durations are rounded.
func (s *Scene) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain struct {
		SceneID             float64 `json:"scene_id"`
		DurationEstSeconds  float64 `json:"duration_est_seconds"`
		Purpose             string  `json:"purpose"`
		VisualPrompt        string  `json:"visual_prompt"`
		AudioScript         string  `json:"audio_script"`
		TextOverlay         string  `json:"text_overlay"`
		Transition          string  `json:"transition"`
		BackgroundMusicMood string  `json:"background_music_mood"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Scene{
		SceneID:             int(math.Round(p.SceneID)),
		DurationEstSeconds:  int(math.Round(p.DurationEstSeconds)),
		Purpose:             p.Purpose,
		VisualPrompt:        p.VisualPrompt,
		AudioScript:         p.AudioScript,
		TextOverlay:         p.TextOverlay,
		Transition:          p.Transition,
		BackgroundMusicMood: p.BackgroundMusicMood,
	}
	for k, v := range raw {
		if slices.Contains(sceneKeys, k) {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[k] = val
	}
	return nil
}

// MarshalJSON writes known fields plus Extra. Known fields win on conflict.
func (s Scene) MarshalJSON() ([]byte, error) {
	type alias Scene
	known, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	out := make(map[string]any, len(s.Extra)+len(sceneKeys))
	maps.Copy(out, s.Extra)
	var m map[string]any
	if err := json.Unmarshal(known, &m); err != nil {
		return nil, err
	}
	maps.Copy(out, m)
	return json.Marshal(out)
}

// DirectorOutput is the generated script.
type DirectorOutput struct {
	ProjectID       string   `json:"project_id"`
	MasterScript    string   `json:"master_script"`
	SceneBreakdown  []Scene  `json:"scene_breakdown"`
	CreativeNotes   string   `json:"creative_notes,omitempty"`
	PrimaryLanguage Language `json:"primary_language"`
	Revision        int      `json:"revision"`
}

// TotalDuration sums the scene durations.
func (d DirectorOutput) TotalDuration() int {
	total := 0
	for _, s := range d.SceneBreakdown {
		total += s.DurationEstSeconds
	}
	return total
}

// Clone returns a deep copy.
func (d DirectorOutput) Clone() DirectorOutput {
	out := d
	out.SceneBreakdown = make([]Scene, len(d.SceneBreakdown))
	for i, s := range d.SceneBreakdown {
		s.Extra = maps.Clone(s.Extra)
		out.SceneBreakdown[i] = s
	}
	return out
}

// SceneText is the translatable part of a scene.
type SceneText struct {
	SceneID     int    `json:"scene_id"`
	AudioScript string `json:"audio_script"`
	TextOverlay string `json:"text_overlay,omitempty"`
}

// SceneTexts extracts the translatable text of every scene.
func (d DirectorOutput) SceneTexts() []SceneText {
	out := make([]SceneText, len(d.SceneBreakdown))
	for i, s := range d.SceneBreakdown {
		out[i] = SceneText{SceneID: s.SceneID, AudioScript: s.AudioScript, TextOverlay: s.TextOverlay}
	}
	return out
}

// LinguisticOutput holds scene text per language display name.
type LinguisticOutput struct {
	ProjectID           string                 `json:"project_id"`
	Translations        map[string][]SceneText `json:"translations"`
	CulturalAdaptations map[string]string      `json:"cultural_adaptations,omitempty"`
}

// SensitivityFlag is one compliance concern.
type SensitivityFlag struct {
	Severity            string `json:"severity"`
	IssueType           string `json:"issue_type"`
	Description         string `json:"description"`
	SceneID             *int   `json:"scene_id,omitempty"`
	SuggestedFix        string `json:"suggested_fix,omitempty"`
	RegulationReference string `json:"regulation_reference,omitempty"`
}

type ComplianceAnalysis struct {
	Category         string   `json:"category"`
	Status           string   `json:"status"`
	Analysis         string   `json:"analysis"`
	ElementsReviewed []string `json:"elements_reviewed"`
}

// SensitivityCheckOutput is the compliance review result.
type SensitivityCheckOutput struct {
	ProjectID         string               `json:"project_id"`
	Passed            bool                 `json:"passed"`
	Flags             []SensitivityFlag    `json:"flags"`
	ComplianceSummary string               `json:"compliance_summary"`
	DetailedAnalysis  []ComplianceAnalysis `json:"detailed_analysis"`
	CheckedAgainst    []string             `json:"checked_against"`
}

// DefaultCheckedAgainst lists the regulations every review covers.
var DefaultCheckedAgainst = []string{"MCMC Guidelines", "Sedition Act 1948", "3R Policy"}

// HasCritical reports whether any flag is critical.
func (o SensitivityCheckOutput) HasCritical() bool {
	for _, f := range o.Flags {
		if f.Severity == "critical" {
			return true
		}
	}
	return false
}

// FlagsByScene groups flags by scene id; general flags use 0.
func (o SensitivityCheckOutput) FlagsByScene() map[int][]SensitivityFlag {
	out := make(map[int][]SensitivityFlag)
	for _, f := range o.Flags {
		id := 0
		if f.SceneID != nil {
			id = *f.SceneID
		}
		out[id] = append(out[id], f)
	}
	return out
}
