package record

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// MinIntakeLength is the shortest intake content the research stage accepts.
const MinIntakeLength = 10

// IntakeInput is the raw scam report entered by an officer.
type IntakeInput struct {
	SourceType        InputSource `json:"source_type"`
	Content           string      `json:"content"`
	AdditionalContext string      `json:"additional_context,omitempty"`
	OfficerID         string      `json:"officer_id,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Validate checks the intake is long enough to research.
func (in IntakeInput) Validate() error {
	if len(strings.TrimSpace(in.Content)) < MinIntakeLength {
		return fmt.Errorf("intake content must be at least %d characters", MinIntakeLength)
	}
	return nil
}

// FactSheet is the human-verifiable summary produced by research.
//
// A FactSheet is a value: Verify and Apply return new snapshots and never
// modify the receiver, so callers holding an older copy keep a stable view.
type FactSheet struct {
	ScamName         string   `json:"scam_name"`
	StoryHook        string   `json:"story_hook"`
	RedFlag          string   `json:"red_flag"`
	TheFix           string   `json:"the_fix"`
	ReferenceSources []string `json:"reference_sources"`
	Category         Category `json:"category"`
	// CategoryRaw keeps the model's text when it did not map to a known category.
	CategoryRaw string `json:"category_raw,omitempty"`

	Verified     bool       `json:"verified"`
	VerifierID   string     `json:"verifier_id,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	OfficerNotes string     `json:"officer_notes,omitempty"`

	GlobalAncestry       string `json:"global_ancestry,omitempty"`
	PsychologicalExploit string `json:"psychological_exploit,omitempty"`
	VictimProfile        string `json:"victim_profile,omitempty"`
	CounterHack          string `json:"counter_hack,omitempty"`

	// LowConfidence is set when the sheet came from a partial or degraded
	// model response and needs closer review.
	LowConfidence bool `json:"low_confidence,omitempty"`
	Revision      int  `json:"revision"`
}

// ErrAlreadyVerified is returned when verifying a sheet twice without
// corrections.
var ErrAlreadyVerified = errors.New("fact sheet already verified")

// Validate reports missing required fields.
func (f FactSheet) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"scam_name": f.ScamName,
		"red_flag":  f.RedFlag,
		"the_fix":   f.TheFix,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("fact sheet missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Clone returns a deep copy.
func (f FactSheet) Clone() FactSheet {
	out := f
	out.ReferenceSources = slices.Clone(f.ReferenceSources)
	if f.VerifiedAt != nil {
		at := *f.VerifiedAt
		out.VerifiedAt = &at
	}
	return out
}

// Verify returns a verified copy. A sheet can be verified exactly once;
// re-verification goes through Apply, which yields a fresh unverified
// revision.
func (f FactSheet) Verify(verifierID, notes string, at time.Time) (FactSheet, error) {
	if f.Verified {
		return FactSheet{}, ErrAlreadyVerified
	}
	if strings.TrimSpace(verifierID) == "" {
		return FactSheet{}, errors.New("verifier id is required")
	}
	out := f.Clone()
	out.Verified = true
	out.VerifierID = verifierID
	at = at.UTC()
	out.VerifiedAt = &at
	if notes != "" {
		out.OfficerNotes = notes
	}
	return out, nil
}

// Corrections are officer edits applied before (re)verification. Nil fields
// are left unchanged.
type Corrections struct {
	ScamName         *string   `json:"scam_name,omitempty"`
	StoryHook        *string   `json:"story_hook,omitempty"`
	RedFlag          *string   `json:"red_flag,omitempty"`
	TheFix           *string   `json:"the_fix,omitempty"`
	ReferenceSources *[]string `json:"reference_sources,omitempty"`
	Category         *string   `json:"category,omitempty"`
	VictimProfile    *string   `json:"victim_profile,omitempty"`
	OfficerNotes     *string   `json:"officer_notes,omitempty"`
}

// Empty reports whether c changes nothing.
func (c *Corrections) Empty() bool {
	return c == nil || (c.ScamName == nil && c.StoryHook == nil && c.RedFlag == nil && c.TheFix == nil &&
		c.ReferenceSources == nil && c.Category == nil && c.VictimProfile == nil && c.OfficerNotes == nil)
}

// Apply returns a new unverified revision with the corrections applied.
func (f FactSheet) Apply(c *Corrections) FactSheet {
	out := f.Clone()
	out.Verified = false
	out.VerifierID = ""
	out.VerifiedAt = nil
	out.Revision = f.Revision + 1
	if c == nil {
		return out
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&out.ScamName, c.ScamName)
	set(&out.StoryHook, c.StoryHook)
	set(&out.RedFlag, c.RedFlag)
	set(&out.TheFix, c.TheFix)
	set(&out.VictimProfile, c.VictimProfile)
	set(&out.OfficerNotes, c.OfficerNotes)
	if c.ReferenceSources != nil {
		out.ReferenceSources = slices.Clone(*c.ReferenceSources)
	}
	if c.Category != nil {
		cat, ok := MapCategory(*c.Category)
		out.Category = cat
		out.CategoryRaw = ""
		if !ok {
			out.CategoryRaw = *c.Category
		}
	}
	return out
}

// Severity of a scam report.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates s, defaulting an empty value to medium.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityCritical:
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q (want low, medium, high or critical)", s)
}

// ScamReport is the verified, publishable summary handed to script writing.
type ScamReport struct {
	Title           string   `json:"title"`
	Category        Category `json:"category"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	StoryHook       string   `json:"story_hook"`
	RedFlag         string   `json:"red_flag"`
	TheFix          string   `json:"the_fix"`
	SourceURLs      []string `json:"source_urls"`
	VictimsProfile  string   `json:"victims_profile,omitempty"`
	FinancialImpact string   `json:"financial_impact,omitempty"`
}

// NewScamReport builds a report from a verified fact sheet.
func NewScamReport(f FactSheet, sev Severity) (ScamReport, error) {
	if !f.Verified {
		return ScamReport{}, errors.New("fact sheet must be verified before creating a scam report")
	}
	return ScamReport{
		Title:          f.ScamName,
		Category:       f.Category,
		Severity:       sev,
		Description:    strings.TrimSpace(f.StoryHook + " " + f.OfficerNotes),
		StoryHook:      f.StoryHook,
		RedFlag:        f.RedFlag,
		TheFix:         f.TheFix,
		SourceURLs:     slices.Clone(f.ReferenceSources),
		VictimsProfile: f.VictimProfile,
	}, nil
}
