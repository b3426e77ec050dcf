package orchestrator

import "github.com/dusk-indust/scamshield/internal/record"

// Config holds the runtime switches of an Orchestrator.
type Config struct {
	// UseDeepResearch runs intake research as a streamed deep-research job
	// instead of a single text call. The runner must have streaming enabled
	// for this to take effect.
	UseDeepResearch bool

	// SkipSensitivityCheck replaces the compliance review with a pass that
	// records it was skipped. Not for production use.
	SkipSensitivityCheck bool

	// Platform is the default social platform when a StageInput names none.
	Platform string
}

// StageInput carries the caller-supplied parameters of a stage run. Every
// other input is read from the session state.
type StageInput struct {
	// Creator overrides the session's creator config and is saved with the
	// stage output.
	Creator *record.CreatorConfig `json:"creator_config,omitempty"`

	// Platform selects the social platform for social_strategy.
	Platform string `json:"platform,omitempty"`

	// StopAfter ends visual_assets after the named visual step.
	StopAfter string `json:"stop_after,omitempty"`

	// resumeFrom drops visual outputs from this step on before running.
	resumeFrom string
}
