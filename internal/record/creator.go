package record

import (
	"errors"
	"fmt"
)

// MaxSceneDuration is the longest clip the video backend renders, in seconds.
const MaxSceneDuration = 8

// VideoFormat is the target social format.
type VideoFormat string

const (
	FormatReel  VideoFormat = "reel"
	FormatStory VideoFormat = "story"
	FormatPost  VideoFormat = "post"
)

// formatLimits holds max and default duration in seconds per format.
var formatLimits = map[VideoFormat][2]int{
	FormatReel:  {30, 30},
	FormatStory: {15, 15},
	FormatPost:  {60, 60},
}

// MaxDuration returns the longest allowed video for the format.
func (f VideoFormat) MaxDuration() int {
	if l, ok := formatLimits[f]; ok {
		return l[0]
	}
	return formatLimits[FormatReel][0]
}

// AvatarConfig identifies the on-screen presenter.
type AvatarConfig struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Rank      string `json:"rank,omitempty"`
	Gender    string `json:"gender"`
	Ethnicity string `json:"ethnicity"`
}

// TrustedAvatars are the approved presenter identities.
var TrustedAvatars = []AvatarConfig{
	{ID: "officer_malay_male_01", Name: "Inspektor Amir", Rank: "Inspektor", Gender: "male", Ethnicity: "malay"},
	{ID: "officer_malay_female_01", Name: "Inspektor Siti", Rank: "Inspektor", Gender: "female", Ethnicity: "malay"},
	{ID: "officer_chinese_male_01", Name: "Inspektor Wong", Rank: "Inspektor", Gender: "male", Ethnicity: "chinese"},
	{ID: "officer_chinese_female_01", Name: "Inspektor Mei Lin", Rank: "Inspektor", Gender: "female", Ethnicity: "chinese"},
	{ID: "officer_indian_male_01", Name: "Inspektor Rajan", Rank: "Inspektor", Gender: "male", Ethnicity: "indian"},
	{ID: "officer_indian_female_01", Name: "Inspektor Priya", Rank: "Inspektor", Gender: "female", Ethnicity: "indian"},
}

// FindAvatar looks up a trusted avatar by id.
func FindAvatar(id string) (AvatarConfig, bool) {
	for _, a := range TrustedAvatars {
		if a.ID == id {
			return a, true
		}
	}
	return AvatarConfig{}, false
}

// CreatorConfig is the officer's choice of audience, languages and style.
type CreatorConfig struct {
	TargetGroups         []TargetAudience `json:"target_groups"`
	Languages            []Language       `json:"languages"`
	Tone                 Tone             `json:"tone"`
	Avatar               AvatarConfig     `json:"avatar"`
	VideoDurationSeconds int              `json:"video_duration_seconds,omitempty"`
	VideoFormat          VideoFormat      `json:"video_format"`
	DirectorInstructions string           `json:"director_instructions,omitempty"`
}

// DefaultCreatorConfig is a reel in Bahasa Melayu (Urban) and English for the
// elderly, presented by the first trusted avatar.
func DefaultCreatorConfig() CreatorConfig {
	return CreatorConfig{
		TargetGroups: []TargetAudience{AudienceElderly},
		Languages:    []Language{LanguageMalayUrban, LanguageEnglish},
		Tone:         ToneUrgent,
		Avatar:       TrustedAvatars[0],
		VideoFormat:  FormatReel,
	}
}

// Validate checks required selections and duration bounds.
func (c CreatorConfig) Validate() error {
	if len(c.TargetGroups) == 0 {
		return errors.New("creator config: at least one target group is required")
	}
	if len(c.Languages) == 0 {
		return errors.New("creator config: at least one language is required")
	}
	if c.Avatar.ID == "" {
		return errors.New("creator config: avatar is required")
	}
	if d := c.VideoDurationSeconds; d != 0 && (d < MaxSceneDuration || d > 60) {
		return fmt.Errorf("creator config: video duration %ds outside 8..60", d)
	}
	if c.VideoFormat != "" {
		if _, ok := formatLimits[c.VideoFormat]; !ok {
			return fmt.Errorf("creator config: unknown video format %q", c.VideoFormat)
		}
	}
	return nil
}

// Duration returns the target duration, defaulting to the format's default
// and never exceeding its maximum.
func (c CreatorConfig) Duration() int {
	f := c.VideoFormat
	if f == "" {
		f = FormatReel
	}
	l := formatLimits[f]
	if c.VideoDurationSeconds == 0 {
		return l[1]
	}
	return min(c.VideoDurationSeconds, l[0])
}

// PrimaryLanguage is the first configured language.
func (c CreatorConfig) PrimaryLanguage() Language {
	if len(c.Languages) == 0 {
		return LanguageEnglish
	}
	return c.Languages[0]
}

// SceneCount is how many scenes a script of this duration needs.
func (c CreatorConfig) SceneCount() int {
	return max(3, c.Duration()/MaxSceneDuration)
}
