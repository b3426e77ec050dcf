package record

import "time"

// MetaData describes one language version of the video.
type MetaData struct {
	Language             Language       `json:"language"`
	TargetAudience       TargetAudience `json:"target_audience"`
	Tone                 Tone           `json:"tone"`
	Avatar               string         `json:"avatar"`
	VideoFormat          VideoFormat    `json:"video_format"`
	TotalDurationSeconds int            `json:"total_duration_seconds"`
}

// VisualAudioInput is the per-language input to video generation.
type VisualAudioInput struct {
	ProjectID          string     `json:"project_id"`
	MetaData           MetaData   `json:"meta_data"`
	Scenes             []Scene    `json:"scenes"`
	FactSheetReference *FactSheet `json:"fact_sheet_reference,omitempty"`
	SensitivityCleared bool       `json:"sensitivity_cleared"`
}

// VideoPackage bundles every language version with its provenance.
type VideoPackage struct {
	SessionID         string                      `json:"session_id"`
	ScamReport        ScamReport                  `json:"scam_report"`
	CreatorConfig     CreatorConfig               `json:"creator_config"`
	VideoInputs       map[string]VisualAudioInput `json:"video_inputs"`
	SensitivityReport SensitivityCheckOutput      `json:"sensitivity_report"`
	Warnings          []string                    `json:"warnings,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// Primary returns the video input for the creator's primary language, or
// any entry when that one is missing.
func (p VideoPackage) Primary() (VisualAudioInput, bool) {
	if in, ok := p.VideoInputs[p.CreatorConfig.PrimaryLanguage().Code()]; ok {
		return in, true
	}
	for _, in := range p.VideoInputs {
		return in, true
	}
	return VisualAudioInput{}, false
}
