package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// SocialInput is everything the social strategy is planned from. At stamps
// the generated output.
type SocialInput struct {
	FactSheet record.FactSheet
	Script    record.DirectorOutput
	Creator   record.CreatorConfig
	Platform  string
	At        time.Time
}

func (in SocialInput) platform() string {
	if blank(in.Platform) {
		return record.DefaultPlatform
	}
	return strings.ToLower(strings.TrimSpace(in.Platform))
}

// SocialRefineInput revises one section of an existing strategy.
type SocialRefineInput struct {
	Previous record.SocialOutput
	Feedback string
	Section  record.SocialSection
	At       time.Time
}

const socialSystem = `You plan social media posts for Scam Shield, a Malaysian police anti-scam awareness campaign.
Maximise reach without clickbait, keep the credibility a government account needs, and always include a clear call to action (report, share, protect family).
Platform limits: Instagram 2,200 caption characters and 30 hashtags; TikTok 2,200 characters; Facebook longer captions are fine; X 280 characters and 5 hashtags.`

const socialShape = `{"trend_analysis": {"trending_topics": [], "recommended_posting_time": "time in MYT", "content_angle": "", "viral_potential": "low|medium|high", "trend_hooks": [], "competitor_insights": ""},
 "captions": [{"caption": "", "style": "informative|storytelling|urgent|conversational", "estimated_engagement": "low|medium|high", "call_to_action": ""}],
 "selected_caption_index": 0,
 "thumbnail": {"recommended_scene_id": 1, "thumbnail_prompt": "", "text_overlay": "", "rationale": "", "style_notes": ""},
 "hashtags": {"primary_hashtags": [], "trending_hashtags": [], "niche_hashtags": [], "branded_hashtags": ["#ScamShield", "#PDRM"], "hashtag_string": ""},
 "posting_notes": ""}`

type socialWire struct {
	TrendAnalysis        record.TrendAnalysis           `json:"trend_analysis"`
	Captions             []record.CaptionOption         `json:"captions"`
	SelectedCaptionIndex int                            `json:"selected_caption_index"`
	Thumbnail            record.ThumbnailRecommendation `json:"thumbnail"`
	Hashtags             record.HashtagStrategy         `json:"hashtags"`
	PostingNotes         string                         `json:"posting_notes"`
}

func decodeSocial(raw string) (socialWire, extract.Strategy, error) {
	var w socialWire
	strategy, err := extract.Decode(raw, nil, &w)
	if err != nil {
		return w, strategy, err
	}
	if len(w.Captions) == 0 {
		return w, strategy, failure.Extraction("missing captions", raw)
	}
	return w, strategy, nil
}

func (w socialWire) into(out *record.SocialOutput, section record.SocialSection) {
	if section == record.SectionAll || section == record.SectionTrends {
		out.TrendAnalysis = w.TrendAnalysis
	}
	if section == record.SectionAll || section == record.SectionCaptions {
		out.Captions = w.Captions
		out.SelectedCaptionIndex = w.SelectedCaptionIndex
	}
	if section == record.SectionAll || section == record.SectionThumbnail {
		out.Thumbnail = w.Thumbnail
	}
	if section == record.SectionAll || section == record.SectionHashtags {
		out.Hashtags = w.Hashtags
	}
	if section == record.SectionAll && !blank(w.PostingNotes) {
		out.PostingNotes = w.PostingNotes
	}
	if out.SelectedCaptionIndex < 0 || out.SelectedCaptionIndex >= len(out.Captions) {
		out.SelectedCaptionIndex = 0
	}
	out.Hashtags.Normalize()
}

type social struct {
	s Settings
}

// NewSocial returns the social strategy stage.
func NewSocial(s Settings) Definition { return social{s: s} }

func (social) Name() string { return NameSocial }

func (d social) Validate(in any) error {
	r, err := inputAs[SocialInput](d.Name(), in)
	if err != nil {
		return err
	}
	if len(r.Script.SceneBreakdown) == 0 {
		return failure.Precondition(d.Name(), "a script is required before planning social posts")
	}
	return nil
}

func (d social) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[SocialInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	f, c := r.FactSheet, r.Creator
	var b strings.Builder
	b.WriteString("Plan the social media launch of this anti-scam video.\n\nSCAM\n")
	fmt.Fprintf(&b, "- %s (%s)\n- Hook: %s\n- Red flag: %s\n- Fix: %s\n", f.ScamName, f.Category, f.StoryHook, f.RedFlag, f.TheFix)
	b.WriteString("\nVIDEO\n")
	fmt.Fprintf(&b, "- Script: %s\n", truncate(r.Script.MasterScript, 300))
	fmt.Fprintf(&b, "- Language: %s\n- Audience: %s\n- Tone: %s\n- Format: %s\n- Platform: %s\n",
		c.PrimaryLanguage(), joinAudience(c.TargetGroups), c.Tone, formatOf(c), r.platform())
	b.WriteString("\nSCENES (pick one for the thumbnail)\n")
	for _, s := range r.Script.SceneBreakdown {
		fmt.Fprintf(&b, "- Scene %d: %s | %s\n", s.SceneID, s.Purpose, truncate(s.VisualPrompt, 100))
	}
	fmt.Fprintf(&b, `
Respond with a JSON object shaped like:
%s
Write exactly 3 captions in different styles, mainly in %s. Mix English and %s hashtags and include Malaysia-specific tags such as #ScamMalaysia.`,
		socialShape, c.PrimaryLanguage(), c.PrimaryLanguage())

	req := backend.TextRequest{
		System: socialSystem,
		Prompt: withNote(b.String(), note),
		JSON:   true,
	}
	d.s.apply(&req)
	return req, nil
}

func (d social) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[SocialInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	w, strategy, err := decodeSocial(raw)
	if err != nil {
		return nil, strategy, err
	}
	out := record.SocialOutput{
		ProjectID:   r.Script.ProjectID,
		Platform:    r.platform(),
		GeneratedAt: r.At,
		Revision:    1,
	}
	w.into(&out, record.SectionAll)
	return out, strategy, nil
}

func joinAudience(groups []record.TargetAudience) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	return strings.Join(names, ", ")
}

type socialRefine struct {
	s Settings
}

// NewSocialRefine returns the stage that revises one section of a social
// strategy.
func NewSocialRefine(s Settings) Definition { return socialRefine{s: s} }

func (socialRefine) Name() string { return NameSocialRefine }

func (d socialRefine) Validate(in any) error {
	r, err := inputAs[SocialRefineInput](d.Name(), in)
	if err != nil {
		return err
	}
	if blank(r.Feedback) {
		return failure.Precondition(d.Name(), "feedback is required")
	}
	if _, err := record.ParseSocialSection(string(r.Section)); err != nil {
		return failure.Precondition(d.Name(), "%s", err)
	}
	return nil
}

func (d socialRefine) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[SocialRefineInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	section, _ := record.ParseSocialSection(string(r.Section))
	var current any = r.Previous
	switch section {
	case record.SectionTrends:
		current = r.Previous.TrendAnalysis
	case record.SectionCaptions:
		current = r.Previous.Captions
	case record.SectionThumbnail:
		current = r.Previous.Thumbnail
	case record.SectionHashtags:
		current = r.Previous.Hashtags
	}
	target := "the whole strategy"
	if section != record.SectionAll {
		target = "the " + string(section) + " section"
	}
	prompt := fmt.Sprintf(`Current social media strategy (%s):

%s

Officer feedback:
%s

Revise %s to address the feedback. Return the complete strategy as one JSON object shaped like:
%s`, section, pretty(current), strings.TrimSpace(r.Feedback), target, socialShape)

	req := backend.TextRequest{
		System: socialSystem,
		Prompt: withNote(prompt, note),
		JSON:   true,
	}
	d.s.apply(&req)
	return req, nil
}

// Parse only takes the refined section from the reply; the rest of the
// previous strategy is kept as is.
func (d socialRefine) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[SocialRefineInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	section, _ := record.ParseSocialSection(string(r.Section))
	var (
		w        socialWire
		strategy extract.Strategy
	)
	if section == record.SectionAll || section == record.SectionCaptions {
		w, strategy, err = decodeSocial(raw)
	} else {
		strategy, err = extract.Decode(raw, nil, &w)
	}
	if err != nil {
		return nil, strategy, err
	}
	out := r.Previous
	out.Captions = append([]record.CaptionOption(nil), r.Previous.Captions...)
	w.into(&out, section)
	out.Revision = r.Previous.Revision + 1
	out.GeneratedAt = r.At
	return out, strategy, nil
}
