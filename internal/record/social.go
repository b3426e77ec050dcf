package record

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPlatform is used when no platform is given.
const DefaultPlatform = "instagram"

type TrendAnalysis struct {
	TrendingTopics         []string `json:"trending_topics"`
	RecommendedPostingTime string   `json:"recommended_posting_time"`
	ContentAngle           string   `json:"content_angle"`
	ViralPotential         string   `json:"viral_potential"`
	TrendHooks             []string `json:"trend_hooks"`
	CompetitorInsights     string   `json:"competitor_insights"`
}

type CaptionOption struct {
	Caption             string `json:"caption"`
	Style               string `json:"style"`
	EstimatedEngagement string `json:"estimated_engagement"`
	CallToAction        string `json:"call_to_action"`
}

type ThumbnailRecommendation struct {
	RecommendedSceneID int    `json:"recommended_scene_id"`
	ThumbnailPrompt    string `json:"thumbnail_prompt"`
	TextOverlay        string `json:"text_overlay"`
	Rationale          string `json:"rationale"`
	StyleNotes         string `json:"style_notes"`
}

type HashtagStrategy struct {
	PrimaryHashtags  []string `json:"primary_hashtags"`
	TrendingHashtags []string `json:"trending_hashtags"`
	NicheHashtags    []string `json:"niche_hashtags"`
	BrandedHashtags  []string `json:"branded_hashtags"`
	TotalCount       int      `json:"total_count"`
	HashtagString    string   `json:"hashtag_string"`
}

// Normalize recomputes TotalCount and fills HashtagString when the model left
// it empty.
func (h *HashtagStrategy) Normalize() {
	var all []string
	for _, group := range [][]string{h.PrimaryHashtags, h.TrendingHashtags, h.NicheHashtags, h.BrandedHashtags} {
		all = append(all, group...)
	}
	h.TotalCount = len(all)
	if strings.TrimSpace(h.HashtagString) == "" {
		h.HashtagString = strings.Join(all, " ")
	}
}

// SocialOutput is the social media strategy for a finished video.
type SocialOutput struct {
	ProjectID            string                  `json:"project_id"`
	Platform             string                  `json:"platform"`
	TrendAnalysis        TrendAnalysis           `json:"trend_analysis"`
	Captions             []CaptionOption         `json:"captions"`
	SelectedCaptionIndex int                     `json:"selected_caption_index"`
	Thumbnail            ThumbnailRecommendation `json:"thumbnail"`
	Hashtags             HashtagStrategy         `json:"hashtags"`
	PostingNotes         string                  `json:"posting_notes"`
	GeneratedAt          time.Time               `json:"generated_at"`
	Revision             int                     `json:"revision"`
}

// SocialSection names the part of a strategy an officer wants refined.
type SocialSection string

const (
	SectionTrends    SocialSection = "trends"
	SectionCaptions  SocialSection = "captions"
	SectionThumbnail SocialSection = "thumbnail"
	SectionHashtags  SocialSection = "hashtags"
	SectionAll       SocialSection = "all"
)

// ParseSocialSection validates s; empty means all.
func ParseSocialSection(s string) (SocialSection, error) {
	switch sec := SocialSection(strings.ToLower(strings.TrimSpace(s))); sec {
	case "":
		return SectionAll, nil
	case SectionTrends, SectionCaptions, SectionThumbnail, SectionHashtags, SectionAll:
		return sec, nil
	}
	return "", fmt.Errorf("unknown social section %q", s)
}
