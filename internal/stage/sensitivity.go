package stage

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// SensitivityInput is every language version of a script.
type SensitivityInput struct {
	Script       record.DirectorOutput
	Translations record.LinguisticOutput
}

// complianceCategories are the areas every review reports on.
var complianceCategories = []string{
	"3R Compliance",
	"Victim Sensitivity",
	"Group Stereotyping",
	"Malaysian Context",
	"Regulatory Compliance",
	"Content Accuracy",
}

const sensitivitySystem = `You review Malaysian anti-scam awareness video scripts before publication.
Check against:
- MCMC content standards and CMA 1998 s.211: no offensive, false or defamatory content.
- Sedition Act 1948: nothing promoting ill-will between races, questioning constitutional provisions or exciting disaffection against rulers.
- 3R policy: race, religion and royalty.
Also flag victim blaming, ageism, classism and any implication that an ethnic group is more likely to scam.
Severity is "warning" for improvable content and "critical" for content that must change before publication. Flag even mild concerns; an officer decides.`

type sensitivityWire struct {
	Passed            *bool                       `json:"passed"`
	Flags             []record.SensitivityFlag    `json:"flags"`
	ComplianceSummary string                      `json:"compliance_summary"`
	DetailedAnalysis  []record.ComplianceAnalysis `json:"detailed_analysis"`
}

type sensitivity struct {
	s Settings
}

// NewSensitivity returns the compliance review stage.
func NewSensitivity(s Settings) Definition { return sensitivity{s: s} }

func (sensitivity) Name() string { return NameSensitivity }

func (d sensitivity) Validate(in any) error {
	r, err := inputAs[SensitivityInput](d.Name(), in)
	if err != nil {
		return err
	}
	if len(r.Script.SceneBreakdown) == 0 {
		return failure.Precondition(d.Name(), "script has no scenes to review")
	}
	return nil
}

type reviewedScript struct {
	Language     string             `json:"language"`
	MasterScript string             `json:"master_script,omitempty"`
	Scenes       []record.SceneText `json:"scenes"`
}

func (d sensitivity) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[SensitivityInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	primary := string(r.Script.PrimaryLanguage)
	scripts := []reviewedScript{{Language: primary, MasterScript: r.Script.MasterScript, Scenes: r.Script.SceneTexts()}}
	for _, lang := range slices.Sorted(maps.Keys(r.Translations.Translations)) {
		if lang != primary {
			scripts = append(scripts, reviewedScript{Language: lang, Scenes: r.Translations.Translations[lang]})
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review these scripts, including every translation:\n\n%s\n\n", pretty(scripts))
	b.WriteString(`Respond with a JSON object:
{"passed": true, "flags": [{"severity": "warning|critical", "issue_type": "...", "description": "...", "scene_id": 1, "suggested_fix": "...", "regulation_reference": "..."}],
 "compliance_summary": "...",
 "detailed_analysis": [{"category": "...", "status": "passed|flagged", "analysis": "what was reviewed and why it passed or was flagged", "elements_reviewed": ["..."]}]}
Set passed to false only for critical issues. detailed_analysis must cover all of: `)
	b.WriteString(strings.Join(complianceCategories, ", "))
	b.WriteString(".")

	req := backend.TextRequest{
		System: sensitivitySystem,
		Prompt: withNote(b.String(), note),
		JSON:   true,
	}
	d.s.apply(&req)
	return req, nil
}

func (d sensitivity) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[SensitivityInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	var w sensitivityWire
	strategy, err := extract.Decode(raw, nil, &w)
	if err != nil {
		return nil, strategy, err
	}
	out := record.SensitivityCheckOutput{
		ProjectID:         r.Script.ProjectID,
		Passed:            w.Passed == nil || *w.Passed,
		Flags:             make([]record.SensitivityFlag, 0, len(w.Flags)),
		ComplianceSummary: w.ComplianceSummary,
		DetailedAnalysis:  w.DetailedAnalysis,
		CheckedAgainst:    append([]string(nil), record.DefaultCheckedAgainst...),
	}
	for _, f := range w.Flags {
		f.Severity = strings.ToLower(strings.TrimSpace(f.Severity))
		if f.Severity != "critical" {
			f.Severity = "warning"
		}
		if blank(f.IssueType) {
			f.IssueType = "unknown"
		}
		out.Flags = append(out.Flags, f)
	}
	if blank(out.ComplianceSummary) {
		out.ComplianceSummary = "Compliance check completed."
	}
	for i, a := range out.DetailedAnalysis {
		if blank(a.Status) {
			out.DetailedAnalysis[i].Status = "passed"
		}
		if blank(a.Category) {
			out.DetailedAnalysis[i].Category = "General"
		}
		if a.ElementsReviewed == nil {
			out.DetailedAnalysis[i].ElementsReviewed = []string{}
		}
	}
	// A critical flag always fails the review, whatever the model claimed.
	if out.HasCritical() {
		out.Passed = false
	}
	return out, strategy, nil
}

// Fallback passes the review with a manual-review note when the reply could
// not be parsed.
func (d sensitivity) Fallback(in any, _ *failure.Error) (any, bool) {
	r, err := inputAs[SensitivityInput](d.Name(), in)
	if err != nil {
		return nil, false
	}
	return record.SensitivityCheckOutput{
		ProjectID:         r.Script.ProjectID,
		Passed:            true,
		Flags:             []record.SensitivityFlag{},
		ComplianceSummary: "Sensitivity check completed (response parsing fell back to defaults).",
		DetailedAnalysis: []record.ComplianceAnalysis{{
			Category:         "3R Compliance",
			Status:           "passed",
			Analysis:         "Automated review completed. Manual review recommended.",
			ElementsReviewed: []string{},
		}},
		CheckedAgainst: append([]string(nil), record.DefaultCheckedAgainst...),
	}, true
}
