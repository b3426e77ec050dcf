package stage

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// DirectorInput is a verified fact sheet plus the officer's creative brief.
type DirectorInput struct {
	SessionID string
	FactSheet record.FactSheet
	Creator   record.CreatorConfig
}

// ProjectID names the video project, e.g. scam_phishing_1a2b3c4d.
func (in DirectorInput) ProjectID() string {
	sid := in.SessionID
	if len(sid) > 8 {
		sid = sid[:8]
	}
	return fmt.Sprintf("scam_%s_%s", in.FactSheet.Category.Key(), sid)
}

// ScriptRefineInput asks for a revision of an existing script.
type ScriptRefineInput struct {
	Previous record.DirectorOutput
	Creator  record.CreatorConfig
	Feedback string
}

var toneGuidance = map[record.Tone]string{
	record.ToneUrgent:        "Urgent and protective. Short sentences, rising tension, a firm warning at the end.",
	record.ToneCalm:          "Calm and reassuring. Steady pacing, plain explanations, no alarmism.",
	record.ToneFriendly:      "Warm and neighbourly, like advice from a trusted relative.",
	record.ToneAuthoritative: "Official and confident. The officer speaks with institutional weight.",
	record.ToneHighEnergy:    "Fast cuts, punchy lines, trend-aware delivery for younger viewers.",
}

var audienceGuidance = map[record.TargetAudience]string{
	record.AudienceElderly:       "Slow pacing, large overlays, familiar settings such as a kampung house or a kopitiam. Never mock unfamiliarity with technology.",
	record.AudienceStudents:      "Campus and hostel settings, messaging apps, peer pressure and part-time job lures.",
	record.AudienceProfessionals: "Office and commute settings, investment and impersonation angles, time pressure.",
	record.AudienceShoppers:      "Marketplace apps, courier deliveries, too-good-to-be-true deals.",
	record.AudienceGeneral:       "Everyday Malaysian settings that any viewer recognises.",
}

const directorSystem = `You are the creative director for Scam Shield anti-scam awareness videos in Malaysia.
Write short vertical videos presented by a uniformed police officer avatar.
Rules:
- Every scene is at most 8 seconds; the video generator cannot render longer clips.
- Hook the viewer in the first 3 seconds.
- Show the scam, name the red flag clearly, end on the fix and a call to action.
- visual_prompt describes one continuous shot for a video model: subject, action, setting, camera, lighting. No on-screen text in visual_prompt.
- Never blame victims and never stereotype any race, religion or group.`

var sceneSchema = backend.Object(map[string]*backend.Schema{
	"scene_id":              backend.Integer("1-based scene number"),
	"duration_est_seconds":  backend.Integer("Scene length, at most 8"),
	"purpose":               backend.String("Hook, scam, red flag, fix or call to action"),
	"visual_prompt":         backend.String("Shot description for the video model"),
	"audio_script":          backend.String("Spoken line for this scene"),
	"text_overlay":          backend.String("Short on-screen caption"),
	"transition":            backend.String("Cut or transition into the next scene"),
	"background_music_mood": backend.String("Music mood"),
}, "scene_id", "duration_est_seconds", "visual_prompt", "audio_script")

var directorSchema = backend.Object(map[string]*backend.Schema{
	"project_id":      backend.String("Project id as given"),
	"master_script":   backend.String("Full narration in the primary language"),
	"scene_breakdown": backend.Array(sceneSchema),
	"creative_notes":  backend.String("Notes for the production team"),
}, "project_id", "master_script", "scene_breakdown")

func directorPrompt(in DirectorInput) string {
	c := in.Creator
	f := in.FactSheet
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %d-second %s video script with exactly %d scenes.\n\n", c.Duration(), formatOf(c), c.SceneCount())
	b.WriteString("FACT SHEET (verified)\n")
	fmt.Fprintf(&b, "- Scam: %s (%s)\n- Story hook: %s\n- Red flag: %s\n- The fix: %s\n", f.ScamName, f.Category, f.StoryHook, f.RedFlag, f.TheFix)
	if !blank(f.PsychologicalExploit) {
		fmt.Fprintf(&b, "- Psychological exploit: %s\n", f.PsychologicalExploit)
	}
	if !blank(f.CounterHack) {
		fmt.Fprintf(&b, "- Counter strategy: %s\n", f.CounterHack)
	}
	if !blank(f.OfficerNotes) {
		fmt.Fprintf(&b, "- Officer notes: %s\n", f.OfficerNotes)
	}

	b.WriteString("\nBRIEF\n")
	fmt.Fprintf(&b, "- Primary language: %s\n", c.PrimaryLanguage())
	fmt.Fprintf(&b, "- Presenter: %s (%s, %s)\n", c.Avatar.Name, c.Avatar.Gender, c.Avatar.Ethnicity)
	fmt.Fprintf(&b, "- Tone: %s. %s\n", c.Tone, toneGuidance[c.Tone])
	for _, a := range c.TargetGroups {
		fmt.Fprintf(&b, "- Audience %s: %s\n", a, audienceGuidance[a])
	}
	if !blank(c.DirectorInstructions) {
		fmt.Fprintf(&b, "- Officer instructions: %s\n", c.DirectorInstructions)
	}

	fmt.Fprintf(&b, "\nRespond with a JSON object: project_id %q, master_script, scene_breakdown (scene_id, duration_est_seconds, purpose, visual_prompt, audio_script, text_overlay, transition, background_music_mood) and creative_notes.", in.ProjectID())
	return b.String()
}

func formatOf(c record.CreatorConfig) record.VideoFormat {
	if c.VideoFormat == "" {
		return record.FormatReel
	}
	return c.VideoFormat
}

type directorWire struct {
	ProjectID      string         `json:"project_id"`
	MasterScript   string         `json:"master_script"`
	SceneBreakdown []record.Scene `json:"scene_breakdown"`
	CreativeNotes  string         `json:"creative_notes"`
}

func decodeScript(raw string) (directorWire, extract.Strategy, error) {
	var w directorWire
	strategy, err := extract.Decode(raw, nil, &w)
	if err != nil {
		return w, strategy, err
	}
	if blank(w.MasterScript) {
		return w, strategy, failure.Extraction("missing master_script", raw)
	}
	if len(w.SceneBreakdown) == 0 {
		return w, strategy, failure.Extraction("missing scene_breakdown", raw)
	}
	return w, strategy, nil
}

// NormalizeScenes numbers scenes, clamps each to MaxSceneDuration and scales
// durations down so the total fits maxTotal.
func NormalizeScenes(scenes []record.Scene, maxTotal int) []record.Scene {
	out := make([]record.Scene, len(scenes))
	total := 0
	for i, s := range scenes {
		if s.SceneID <= 0 {
			s.SceneID = i + 1
		}
		switch {
		case s.DurationEstSeconds <= 0:
			s.DurationEstSeconds = record.MaxSceneDuration
		case s.DurationEstSeconds > record.MaxSceneDuration:
			s.DurationEstSeconds = record.MaxSceneDuration
		}
		total += s.DurationEstSeconds
		out[i] = s
	}
	if maxTotal <= 0 || total <= maxTotal {
		return out
	}
	for i := range out {
		out[i].DurationEstSeconds = max(1, out[i].DurationEstSeconds*maxTotal/total)
	}
	return out
}

type director struct {
	s Settings
}

// NewDirector returns the script writing stage.
func NewDirector(s Settings) Definition { return director{s: s} }

func (director) Name() string { return NameDirector }

func (d director) Validate(in any) error {
	r, err := inputAs[DirectorInput](d.Name(), in)
	if err != nil {
		return err
	}
	if !r.FactSheet.Verified {
		return failure.Precondition(d.Name(), "Fact Sheet must be verified by officer before script generation")
	}
	if err := r.Creator.Validate(); err != nil {
		return failure.Precondition(d.Name(), "%s", err)
	}
	return nil
}

func (d director) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[DirectorInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	req := backend.TextRequest{
		System: directorSystem,
		Prompt: withNote(directorPrompt(r), note),
		JSON:   true,
		Schema: directorSchema,
	}
	d.s.apply(&req)
	return req, nil
}

func (d director) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[DirectorInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	w, strategy, err := decodeScript(raw)
	if err != nil {
		return nil, strategy, err
	}
	return record.DirectorOutput{
		ProjectID:       r.ProjectID(),
		MasterScript:    w.MasterScript,
		SceneBreakdown:  NormalizeScenes(w.SceneBreakdown, formatOf(r.Creator).MaxDuration()),
		CreativeNotes:   w.CreativeNotes,
		PrimaryLanguage: r.Creator.PrimaryLanguage(),
		Revision:        1,
	}, strategy, nil
}

type scriptRefine struct {
	s Settings
}

// NewScriptRefine returns the stage that revises a script from officer
// feedback.
func NewScriptRefine(s Settings) Definition { return scriptRefine{s: s} }

func (scriptRefine) Name() string { return NameScriptRefine }

func (d scriptRefine) Validate(in any) error {
	r, err := inputAs[ScriptRefineInput](d.Name(), in)
	if err != nil {
		return err
	}
	if blank(r.Feedback) {
		return failure.Precondition(d.Name(), "feedback is required")
	}
	if len(r.Previous.SceneBreakdown) == 0 {
		return failure.Precondition(d.Name(), "no script to refine")
	}
	return nil
}

func (d scriptRefine) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[ScriptRefineInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	prev := directorWire{
		ProjectID:      r.Previous.ProjectID,
		MasterScript:   r.Previous.MasterScript,
		SceneBreakdown: r.Previous.SceneBreakdown,
		CreativeNotes:  r.Previous.CreativeNotes,
	}
	prompt := fmt.Sprintf(`This is the current video script:

%s

Officer feedback:
%s

Revise the script to address the feedback. Keep scenes at 8 seconds or less and return the complete script as one JSON object with the same structure.`,
		pretty(prev), strings.TrimSpace(r.Feedback))
	req := backend.TextRequest{
		System: directorSystem,
		Prompt: withNote(prompt, note),
		JSON:   true,
		Schema: directorSchema,
	}
	d.s.apply(&req)
	return req, nil
}

func (d scriptRefine) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[ScriptRefineInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	w, strategy, err := decodeScript(raw)
	if err != nil {
		return nil, strategy, err
	}
	out := r.Previous.Clone()
	out.MasterScript = w.MasterScript
	out.SceneBreakdown = NormalizeScenes(w.SceneBreakdown, formatOf(r.Creator).MaxDuration())
	if !blank(w.CreativeNotes) {
		out.CreativeNotes = w.CreativeNotes
	}
	out.Revision = r.Previous.Revision + 1
	return out, strategy, nil
}
