package stage

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// StoryInput expands a fact sheet and its scenes into a full narrative.
type StoryInput struct {
	FactSheet record.FactSheet
	Scenes    []record.Scene
}

// VeoScriptInput converts scenes into clip-length video segments.
type VeoScriptInput struct {
	Story  record.Story
	Scenes []record.Scene
}

// CharactersInput describes every role for reference image generation.
type CharactersInput struct {
	Story  record.Story
	Script record.VeoScript
}

// ClipPromptsInput asks for the start and end frame prompts of one segment.
type ClipPromptsInput struct {
	Script       record.VeoScript
	SegmentIndex int
}

var storySchema = backend.Object(map[string]*backend.Schema{
	"title":           backend.String(""),
	"summary":         backend.String(""),
	"story":           backend.String("Full multi-paragraph narrative"),
	"character_roles": backend.StringList("Every distinct role"),
	"solution":        backend.String(""),
	"red_flags":       backend.StringList(""),
}, "title", "story", "character_roles")

var veoScriptSchema = backend.Object(map[string]*backend.Schema{
	"title":              backend.String(""),
	"total_duration_sec": backend.Integer(""),
	"segments": backend.Array(backend.Object(map[string]*backend.Schema{
		"segment_index":       backend.Integer("1-based"),
		"characters_involved": backend.StringList("Roles from the character list"),
		"veo_prompt":          backend.String("Structured prompt for one 8 second clip"),
	}, "segment_index", "veo_prompt")),
}, "title", "segments")

var characterSchema = backend.Object(map[string]*backend.Schema{
	"characters": backend.Array(backend.Object(map[string]*backend.Schema{
		"role":                             backend.String(""),
		"type":                             backend.String("person or scammer"),
		"description_for_image_generation": backend.String("Full body description"),
	}, "role", "type", "description_for_image_generation")),
}, "characters")

var clipPromptSchema = backend.Object(map[string]*backend.Schema{
	"start_frame_prompt": backend.String(""),
	"end_frame_prompt":   backend.String(""),
}, "start_frame_prompt", "end_frame_prompt")

const storySystem = `You expand a Scam Shield fact sheet and its scene scripts into a complete anonymised scam story for video production.
Every identity is obfuscated; use no real names. Keep the Malaysian context (RM, PDRM, 997).
The story must be detailed enough to drive a full video and must list every character role.`

const veoScriptSystem = `You convert scene scripts into segments for a video model that renders 8 second clips.
Each veo_prompt covers: subject, action and setting; camera shot, angle and movement; lighting and mood; sound and dialogue that fit 8 seconds; visual style.
Assign characters_involved from the given roles only. Vary the camera across segments. No text overlays. Deliver the solution and red flags in the last segments through dialogue and action.`

const characterSystem = `You write character descriptions for reference image generation for a Malaysian audience.
Describe each character full body, head to toe, with one consistent outfit for the whole video.
type "person" (victims, authorities, bystanders): Malaysian ethnicity, age range, hair, attire. No emotions, setting or props.
type "scammer" (perpetrators, cloned voices): never a real person; a featureless anonymous silhouette or robot-like figure with one or two distinguishing traits.`

const clipPromptSystem = `You are given a full video script. Write start and end frame prompts for ONE segment only.
Continuity matters: the start frame follows from the previous segment's end, and the end frame sets up the next segment.
start_frame_prompt is used with the character reference images: describe setting, shot, lighting, pose and expression, and begin with "Using the provided character reference image(s), place ...".
end_frame_prompt is used with the start frame as reference: same setting, the pose and expression at the end of the 8 seconds.
Featureless scammer figures stay featureless. Each prompt is a single still with no motion and no text.`

// ScriptText renders a VeoScript as the plain text the visual prompts use.
func ScriptText(s record.VeoScript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Video: %s\nTotal segments: %d\n\n", s.Title, len(s.Segments))
	for _, seg := range s.Segments {
		fmt.Fprintf(&b, "--- Segment %d ---\nCharacters: %s\nveo_prompt: %s\n\n",
			seg.SegmentIndex, strings.Join(seg.CharactersInvolved, ", "), seg.VeoPrompt)
	}
	return b.String()
}

func visualRequest(s Settings, system, prompt, note string, schema *backend.Schema) backend.TextRequest {
	req := backend.TextRequest{
		System: system,
		Prompt: withNote(prompt, note),
		JSON:   true,
		Schema: schema,
	}
	s.apply(&req)
	return req
}

// --- va_story ---

type storyStep struct{ s Settings }

// NewStory returns the story expansion step.
func NewStory(s Settings) Definition { return storyStep{s: s} }

func (storyStep) Name() string { return NameStory }

func (d storyStep) Validate(in any) error {
	r, err := inputAs[StoryInput](d.Name(), in)
	if err != nil {
		return err
	}
	if len(r.Scenes) == 0 {
		return failure.Precondition(d.Name(), "no scenes to expand")
	}
	return nil
}

func (d storyStep) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[StoryInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	f := r.FactSheet
	var b strings.Builder
	fmt.Fprintf(&b, "FACT SHEET\n- Scam: %s\n- Story hook: %s\n- Red flag: %s\n- The fix: %s\n- Category: %s\n\nSCENES\n",
		f.ScamName, f.StoryHook, f.RedFlag, f.TheFix, f.Category)
	for _, s := range r.Scenes {
		fmt.Fprintf(&b, "Scene %d: visual=%s | audio=%s\n", s.SceneID, truncate(s.VisualPrompt, 150), truncate(s.AudioScript, 150))
	}
	b.WriteString("\nReturn JSON with title, summary, story (full narrative), character_roles, solution and red_flags.")
	return visualRequest(d.s, storySystem, b.String(), note, storySchema), nil
}

func (d storyStep) Parse(raw string, _ any) (any, extract.Strategy, error) {
	var st record.Story
	strategy, err := extract.Decode(raw, nil, &st)
	if err != nil {
		return nil, strategy, err
	}
	if blank(st.Story) || len(st.CharacterRoles) == 0 {
		return nil, strategy, failure.Extraction("story or character roles missing", raw)
	}
	return st, strategy, nil
}

// --- va_script ---

type veoScriptStep struct{ s Settings }

// NewVeoScript returns the segment scripting step.
func NewVeoScript(s Settings) Definition { return veoScriptStep{s: s} }

func (veoScriptStep) Name() string { return NameVeoScript }

func (d veoScriptStep) Validate(in any) error {
	r, err := inputAs[VeoScriptInput](d.Name(), in)
	if err != nil {
		return err
	}
	if len(r.Scenes) == 0 {
		return failure.Precondition(d.Name(), "no scenes to script")
	}
	return nil
}

func (d veoScriptStep) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[VeoScriptInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	total := 0
	for _, s := range r.Scenes {
		total += s.DurationEstSeconds
	}
	var b strings.Builder
	b.WriteString("Character roles:\n")
	for _, role := range r.Story.CharacterRoles {
		fmt.Fprintf(&b, "- %s\n", role)
	}
	fmt.Fprintf(&b, "\nScenes:\n%s\n\nStory context: %s\n\nTitle: %s\nTotal duration: %ds\n",
		pretty(r.Scenes), truncate(r.Story.Story, 1000), r.Story.Title, total)
	return visualRequest(d.s, veoScriptSystem, b.String(), note, veoScriptSchema), nil
}

func (d veoScriptStep) Parse(raw string, _ any) (any, extract.Strategy, error) {
	var vs record.VeoScript
	strategy, err := extract.Decode(raw, nil, &vs)
	if err != nil {
		return nil, strategy, err
	}
	if len(vs.Segments) == 0 {
		return nil, strategy, failure.Extraction("no segments", raw)
	}
	for i := range vs.Segments {
		if vs.Segments[i].SegmentIndex <= 0 {
			vs.Segments[i].SegmentIndex = i + 1
		}
	}
	if vs.TotalDurationSec <= 0 {
		vs.TotalDurationSec = len(vs.Segments) * backend.VeoClipSeconds
	}
	return vs, strategy, nil
}

// --- va_characters ---

type charactersStep struct{ s Settings }

// NewCharacters returns the character description step.
func NewCharacters(s Settings) Definition { return charactersStep{s: s} }

func (charactersStep) Name() string { return NameCharacters }

func (d charactersStep) Validate(in any) error {
	r, err := inputAs[CharactersInput](d.Name(), in)
	if err != nil {
		return err
	}
	if len(r.Story.CharacterRoles) == 0 {
		return failure.Precondition(d.Name(), "story has no character roles")
	}
	return nil
}

func (d charactersStep) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[CharactersInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- Video script ---\n%s\n--- Story ---\n%s\n\n--- Character roles ---\n", ScriptText(r.Script), r.Story.Story)
	for _, role := range r.Story.CharacterRoles {
		fmt.Fprintf(&b, "- %s\n", role)
	}
	return visualRequest(d.s, characterSystem, b.String(), note, characterSchema), nil
}

func (d charactersStep) Parse(raw string, _ any) (any, extract.Strategy, error) {
	var cd record.CharacterDescriptions
	strategy, err := extract.Decode(raw, nil, &cd)
	if err != nil {
		return nil, strategy, err
	}
	if len(cd.Characters) == 0 {
		return nil, strategy, failure.Extraction("no characters", raw)
	}
	for i, c := range cd.Characters {
		if strings.ToLower(strings.TrimSpace(c.Type)) == "scammer" {
			cd.Characters[i].Type = "scammer"
		} else {
			cd.Characters[i].Type = "person"
		}
	}
	return cd, strategy, nil
}

// --- va_clip_prompts ---

type clipPromptsStep struct{ s Settings }

// NewClipPrompts returns the per-segment frame prompt step.
func NewClipPrompts(s Settings) Definition { return clipPromptsStep{s: s} }

func (clipPromptsStep) Name() string { return NameClipPrompts }

func (d clipPromptsStep) Validate(in any) error {
	r, err := inputAs[ClipPromptsInput](d.Name(), in)
	if err != nil {
		return err
	}
	for _, seg := range r.Script.Segments {
		if seg.SegmentIndex == r.SegmentIndex {
			return nil
		}
	}
	return failure.Precondition(d.Name(), "segment %d not in script", r.SegmentIndex)
}

func (d clipPromptsStep) BuildRequest(in any, note string) (backend.TextRequest, error) {
	r, err := inputAs[ClipPromptsInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	prompt := fmt.Sprintf("%s\nOutput start and end frame prompts for segment %d only. Think about continuity and flow.",
		ScriptText(r.Script), r.SegmentIndex)
	return visualRequest(d.s, clipPromptSystem, prompt, note, clipPromptSchema), nil
}

func (d clipPromptsStep) Parse(raw string, in any) (any, extract.Strategy, error) {
	r, err := inputAs[ClipPromptsInput](d.Name(), in)
	if err != nil {
		return nil, extract.StrategyNone, err
	}
	var p record.ClipFramePrompts
	strategy, err := extract.Decode(raw, nil, &p)
	if err != nil {
		return nil, strategy, err
	}
	if blank(p.StartFramePrompt) || blank(p.EndFramePrompt) {
		return nil, strategy, failure.Extraction("frame prompt missing", raw)
	}
	p.SegmentIndex = r.SegmentIndex
	return p, strategy, nil
}
