// Package backend wraps the generative model capabilities the pipeline
// depends on and the retry, polling and streaming policy around them.
package backend

import (
	"context"
	"strings"
)

// Schema is a provider-neutral JSON schema used for native structured output.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Object is shorthand for an object schema with the given string properties
// marked required.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

// String, Integer and Array build leaf schemas.
func String(desc string) *Schema     { return &Schema{Type: "string", Description: desc} }
func Integer(desc string) *Schema    { return &Schema{Type: "integer", Description: desc} }
func Boolean(desc string) *Schema    { return &Schema{Type: "boolean", Description: desc} }
func Array(items *Schema) *Schema    { return &Schema{Type: "array", Items: items} }
func StringList(desc string) *Schema { return &Schema{Type: "array", Description: desc, Items: String("")} }

// TextRequest is one text generation call.
type TextRequest struct {
	// Tag names the caller (usually the stage) for logging and fakes.
	Tag         string
	Model       string
	Prompt      string
	System      string
	JSON        bool
	Schema      *Schema
	Temperature float32
	MaxTokens   int32
}

// TextGenerator produces text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, req TextRequest) (string, error)
}

// StreamRequest starts a long-running streamed research job.
type StreamRequest struct {
	Agent  string
	Prompt string
}

// EventType identifies a streamed event.
type EventType string

const (
	EventStart    EventType = "interaction.start"
	EventDelta    EventType = "content.delta"
	EventComplete EventType = "interaction.complete"
	EventError    EventType = "error"
)

// DeltaType distinguishes answer text from progress thoughts.
type DeltaType string

const (
	DeltaText    DeltaType = "text"
	DeltaThought DeltaType = "thought_summary"
)

// StreamEvent is one event of a streamed job. Err is set for events the
// transport could not decode.
type StreamEvent struct {
	Type    EventType `json:"event_type"`
	EventID string    `json:"event_id,omitempty"`
	Handle  string    `json:"-"`
	Delta   *Delta    `json:"delta,omitempty"`
	Message string    `json:"-"`
	Err     error     `json:"-"`
}

// Delta is the payload of a content.delta event.
type Delta struct {
	Type DeltaType `json:"type"`
	Text string    `json:"text"`
}

// StreamGenerator opens an ordered event stream. The channel closes when the
// stream ends, cleanly or not.
type StreamGenerator interface {
	Stream(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error)
}

// JobState is the coarse status of a long-running job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// ParseJobState maps provider status strings onto JobState.
func ParseJobState(s string) JobState {
	switch strings.ToLower(s) {
	case "completed", "succeeded", "done", "success":
		return JobCompleted
	case "failed", "cancelled", "canceled", "error":
		return JobFailed
	}
	return JobRunning
}

// JobStatus is one poll result. Result carries the text output or an asset
// handle, depending on the job.
type JobStatus struct {
	State  JobState
	Result string
	Error  string
}

// JobPoller reports the status of a job handle.
type JobPoller interface {
	Status(ctx context.Context, handle string) (JobStatus, error)
}

// ImageRequest asks for a single still image.
type ImageRequest struct {
	Model       string
	Prompt      string
	References  [][]byte
	AspectRatio string
}

// ImageGenerator returns PNG bytes, or nil when the model produced no image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
}

// VideoRequest submits one clip. FirstFrame and LastFrame enable
// interpolation; References are used only without a first frame.
type VideoRequest struct {
	Model       string
	Prompt      string
	FirstFrame  []byte
	LastFrame   []byte
	References  [][]byte
	AspectRatio string
}

// VideoGenerator submits clips and downloads finished assets. Completion is
// observed through a JobPoller whose Result is the asset handle.
type VideoGenerator interface {
	JobPoller
	SubmitVideo(ctx context.Context, req VideoRequest) (string, error)
	FetchVideo(ctx context.Context, asset string) ([]byte, error)
}
