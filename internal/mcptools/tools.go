package mcptools

import "github.com/dusk-indust/scamshield/internal/record"

// --- MCP tool types ---
// Record payloads are typed any in outputs: they are marshalled as-is and
// the tool schema does not constrain them.

// StartIntakeInput is the input for the start_intake tool.
type StartIntakeInput struct {
	Content           string `json:"content" jsonschema:"the scam report: a description, a news URL or a transcript (at least 10 characters)"`
	SourceType        string `json:"source_type,omitempty" jsonschema:"manual_description, news_url, police_report or trending_newsroom (default: manual_description)"`
	AdditionalContext string `json:"additional_context,omitempty" jsonschema:"extra notes for the researcher"`
	OfficerID         string `json:"officer_id,omitempty" jsonschema:"id of the reporting officer"`
}

// StartIntakeOutput is the result of the start_intake tool.
type StartIntakeOutput struct {
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	FactSheet any    `json:"fact_sheet,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// VerifyInput is the input for the verify tool.
type VerifyInput struct {
	SessionID   string              `json:"session_id" jsonschema:"session returned by start_intake"`
	OfficerID   string              `json:"officer_id" jsonschema:"id of the verifying officer"`
	Corrections *record.Corrections `json:"corrections,omitempty" jsonschema:"field edits applied before verification"`
}

// VerifyOutput is the result of the verify tool.
type VerifyOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	FactSheet any    `json:"fact_sheet,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// RunStageInput is the input for the run_stage tool.
type RunStageInput struct {
	SessionID string                `json:"session_id" jsonschema:"session id"`
	Stage     string                `json:"stage" jsonschema:"fact_sheet, script, translations, compliance_check, package_assembly, visual_assets or social_strategy"`
	Creator   *record.CreatorConfig `json:"creator_config,omitempty" jsonschema:"creator settings; defaults to the session's saved config"`
	Platform  string                `json:"platform,omitempty" jsonschema:"social platform for social_strategy"`
	StopAfter string                `json:"stop_after,omitempty" jsonschema:"visual step to stop after: story, script, characters, char_refs, clip_refs or veo"`
}

// StageOutput is the result of a stage run.
type StageOutput struct {
	SessionID     string `json:"session_id"`
	Stage         string `json:"stage"`
	Status        string `json:"status"`
	Output        any    `json:"output,omitempty"`
	Model         string `json:"model,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	LowConfidence bool   `json:"low_confidence,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// GetStateInput is the input for the get_state tool.
type GetStateInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
}

// StageSummary is one row of the stage table.
type StageSummary struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Revision  int    `json:"revision,omitempty"`
	Error     string `json:"error,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// GetStateOutput is the result of the get_state tool.
type GetStateOutput struct {
	SessionID string         `json:"session_id"`
	Stages    []StageSummary `json:"stages"`
	State     any            `json:"state"`
}

// ResumeFromInput is the input for the resume_from tool.
type ResumeFromInput struct {
	SessionID  string                `json:"session_id" jsonschema:"session id"`
	Checkpoint string                `json:"checkpoint" jsonschema:"a stage name, or a visual step: story, script, characters, char_refs, clip_refs, veo"`
	Creator    *record.CreatorConfig `json:"creator_config,omitempty" jsonschema:"creator settings for the rerun"`
	StopAfter  string                `json:"stop_after,omitempty" jsonschema:"visual step to stop after"`
}

// CreateScamReportInput is the input for the create_scam_report tool.
type CreateScamReportInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
	Severity  string `json:"severity,omitempty" jsonschema:"low, medium, high or critical (default: medium)"`
}

// CreateScamReportOutput is the result of the create_scam_report tool.
type CreateScamReportOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Report    any    `json:"report,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// ChatRefineInput is the input for the chat_refine tool.
type ChatRefineInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
	Message   string `json:"message" jsonschema:"officer message about the unverified fact sheet"`
}

// ChatRefineOutput is the result of the chat_refine tool.
type ChatRefineOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Reply     string `json:"reply,omitempty"`
	Language  string `json:"language,omitempty"`
	Updated   bool   `json:"updated"`
	FactSheet any    `json:"fact_sheet,omitempty"`
	History   any    `json:"chat_history,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// RefineInput is the input for the refine tool.
type RefineInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
	Target    string `json:"target" jsonschema:"script or social_strategy"`
	Feedback  string `json:"feedback" jsonschema:"what to change"`
	Section   string `json:"section,omitempty" jsonschema:"social section: trends, captions, thumbnail, hashtags or all (default: all)"`
}

// RunFullInput is the input for the run_full tool.
type RunFullInput struct {
	SessionID string                `json:"session_id" jsonschema:"session with a verified fact sheet"`
	Creator   *record.CreatorConfig `json:"creator_config,omitempty" jsonschema:"creator settings (default: reel for the elderly in Bahasa Melayu and English)"`
}

// RunFullOutput is the result of the run_full tool.
type RunFullOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Package   any    `json:"package,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
