package record

// Story is the anonymized scam narrative the visual steps work from.
type Story struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Story          string   `json:"story"`
	CharacterRoles []string `json:"character_roles"`
	Solution       string   `json:"solution"`
	RedFlags       []string `json:"red_flags"`
}

// ScriptSegment is one clip-length beat of the video script.
type ScriptSegment struct {
	SegmentIndex       int      `json:"segment_index"`
	CharactersInvolved []string `json:"characters_involved"`
	VeoPrompt          string   `json:"veo_prompt"`
}

type VeoScript struct {
	Title            string          `json:"title"`
	TotalDurationSec int             `json:"total_duration_sec"`
	Segments         []ScriptSegment `json:"segments"`
}

// CharacterDescription drives reference image generation. Type is "person"
// or "scammer".
type CharacterDescription struct {
	Role                          string `json:"role"`
	Type                          string `json:"type"`
	DescriptionForImageGeneration string `json:"description_for_image_generation"`
}

type CharacterDescriptions struct {
	Characters []CharacterDescription `json:"characters"`
}

// CharacterRef points at a generated character reference grid.
type CharacterRef struct {
	Role        string `json:"role"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
}

// ClipFramePrompts are the start and end still prompts for one segment.
type ClipFramePrompts struct {
	SegmentIndex     int    `json:"segment_index"`
	StartFramePrompt string `json:"start_frame_prompt"`
	EndFramePrompt   string `json:"end_frame_prompt"`
}

// ClipRef points at a generated start or end frame.
type ClipRef struct {
	SegmentIndex int    `json:"segment_index"`
	Frame        string `json:"frame"`
	Filename     string `json:"filename"`
	Path         string `json:"path"`
}

type VeoClip struct {
	SegmentIndex     int     `json:"segment_index"`
	Filename         string  `json:"filename"`
	Path             string  `json:"path"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}
