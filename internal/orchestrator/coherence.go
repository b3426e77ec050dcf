package orchestrator

import (
	"fmt"
	"slices"
	"sort"

	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/state"
)

// CoherenceIssue is a cross-stage inconsistency found before packaging.
type CoherenceIssue struct {
	Stage       state.StageName `json:"stage"`
	SceneID     int             `json:"scene_id,omitempty"`
	Description string          `json:"description"`
}

func (i CoherenceIssue) String() string {
	if i.SceneID > 0 {
		return fmt.Sprintf("%s scene %d: %s", i.Stage, i.SceneID, i.Description)
	}
	return fmt.Sprintf("%s: %s", i.Stage, i.Description)
}

// CheckCoherence scans the script and its translations for problems the
// stages cannot see on their own: scenes too long for one generated clip,
// a runtime over the format limit, and translations whose scenes do not
// line up with the script.
func CheckCoherence(script record.DirectorOutput, tr record.LinguisticOutput, c record.CreatorConfig) []CoherenceIssue {
	var issues []CoherenceIssue

	ids := make([]int, 0, len(script.SceneBreakdown))
	for _, s := range script.SceneBreakdown {
		ids = append(ids, s.SceneID)
		if s.DurationEstSeconds > record.MaxSceneDuration {
			issues = append(issues, CoherenceIssue{
				Stage:       state.StageScript,
				SceneID:     s.SceneID,
				Description: fmt.Sprintf("duration %ds exceeds the %ds clip limit", s.DurationEstSeconds, record.MaxSceneDuration),
			})
		}
	}
	if limit := c.VideoFormat.MaxDuration(); script.TotalDuration() > limit {
		issues = append(issues, CoherenceIssue{
			Stage:       state.StageScript,
			Description: fmt.Sprintf("total duration %ds exceeds the %s limit of %ds", script.TotalDuration(), c.VideoFormat, limit),
		})
	}
	slices.Sort(ids)

	langs := make([]string, 0, len(tr.Translations))
	for l := range tr.Translations {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		got := make([]int, 0, len(tr.Translations[lang]))
		for _, s := range tr.Translations[lang] {
			got = append(got, s.SceneID)
		}
		slices.Sort(got)
		if !slices.Equal(ids, got) {
			issues = append(issues, CoherenceIssue{
				Stage:       state.StageTranslations,
				Description: fmt.Sprintf("%s scenes %v do not match script scenes %v", lang, got, ids),
			})
		}
	}

	for _, l := range c.Languages {
		if _, ok := tr.Translations[string(l)]; !ok {
			issues = append(issues, CoherenceIssue{
				Stage:       state.StageTranslations,
				Description: fmt.Sprintf("no translation for %s", l),
			})
		}
	}
	return issues
}
