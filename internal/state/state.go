// Package state holds the per-session pipeline record: one slot per stage,
// the refinement chat log, fact sheet snapshots and the visual checkpoint.
// Stage outputs are stored serialized so that a record handed to a caller
// can never be changed through the state afterwards.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/scamshield/internal/record"
)

// StageName identifies a node in the stage graph.
type StageName string

const (
	StageIntake       StageName = "intake"
	StageFactSheet    StageName = "fact_sheet"
	StageScript       StageName = "script"
	StageTranslations StageName = "translations"
	StageCompliance   StageName = "compliance_check"
	StagePackage      StageName = "package_assembly"
	StageVisual       StageName = "visual_assets"
	StageSocial       StageName = "social_strategy"
)

var stageOrder = []StageName{
	StageIntake,
	StageFactSheet,
	StageScript,
	StageTranslations,
	StageCompliance,
	StagePackage,
	StageVisual,
	StageSocial,
}

// StageNames returns every stage in graph order.
func StageNames() []StageName {
	return append([]StageName(nil), stageOrder...)
}

// ParseStage validates a stage name.
func ParseStage(s string) (StageName, bool) {
	for _, n := range stageOrder {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// Status is the lifecycle state of one stage slot.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusAwaitingReview Status = "awaiting_review"
)

// Done reports whether the slot holds a committed output.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusAwaitingReview
}

// Slot is one stage's status and last committed output.
type Slot struct {
	Status    Status          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Model     string          `json:"model,omitempty"`
	Revision  int             `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ChatRole is the author of a chat log entry.
type ChatRole string

const (
	RoleOfficer ChatRole = "officer"
	RoleAgent   ChatRole = "agent"
)

// ChatEntry is one message of the refinement audit trail.
type ChatEntry struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Target    StageName `json:"target"`
	Timestamp time.Time `json:"timestamp"`
}

// VisualState is the checkpoint of the visual sub-pipeline. A non-nil field
// means that step finished and its output is reused as-is.
type VisualState struct {
	Story         *record.Story                 `json:"story,omitempty"`
	Script        *record.VeoScript             `json:"script,omitempty"`
	Characters    *record.CharacterDescriptions `json:"characters,omitempty"`
	CharacterRefs []record.CharacterRef         `json:"character_refs,omitempty"`
	ClipPrompts   []record.ClipFramePrompts     `json:"clip_prompts,omitempty"`
	ClipRefs      []record.ClipRef              `json:"clip_refs,omitempty"`
	Clips         []record.VeoClip              `json:"clips,omitempty"`
	LastStep      string                        `json:"last_step,omitempty"`
}

// PipelineState is the mutable record of one workflow run.
type PipelineState struct {
	SessionID        string                `json:"session_id"`
	Slots            map[StageName]*Slot   `json:"slots"`
	ChatLog          []ChatEntry           `json:"chat_log"`
	FactSheetHistory []json.RawMessage     `json:"fact_sheet_history"`
	Creator          *record.CreatorConfig `json:"creator_config,omitempty"`
	Report           *record.ScamReport    `json:"scam_report,omitempty"`
	Visual           *VisualState          `json:"visual,omitempty"`
	Meta             map[string]string     `json:"meta,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// NewSessionID returns a fresh uuid v4.
func NewSessionID() string {
	return uuid.NewString()
}

// New creates a state with every slot pending.
func New(sessionID string, now time.Time) *PipelineState {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	s := &PipelineState{
		SessionID: sessionID,
		Slots:     make(map[StageName]*Slot, len(stageOrder)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, n := range stageOrder {
		s.Slots[n] = &Slot{Status: StatusPending, UpdatedAt: now}
	}
	return s
}

// Slot returns a copy of the slot for stage. Unknown stages read as pending.
func (s *PipelineState) Slot(stage StageName) Slot {
	sl, ok := s.Slots[stage]
	if !ok || sl == nil {
		return Slot{Status: StatusPending}
	}
	out := *sl
	out.Output = append(json.RawMessage(nil), sl.Output...)
	return out
}

// Status returns the status of stage.
func (s *PipelineState) Status(stage StageName) Status {
	return s.Slot(stage).Status
}

// Has reports whether stage holds a committed output.
func (s *PipelineState) Has(stage StageName) bool {
	sl, ok := s.Slots[stage]
	return ok && sl != nil && len(sl.Output) > 0
}

// Decode unmarshals the committed output of stage into out. Each call yields
// a fresh value.
func (s *PipelineState) Decode(stage StageName, out any) error {
	sl, ok := s.Slots[stage]
	if !ok || sl == nil || len(sl.Output) == 0 {
		return fmt.Errorf("state: %s has no output", stage)
	}
	if err := json.Unmarshal(sl.Output, out); err != nil {
		return fmt.Errorf("state: decode %s: %w", stage, err)
	}
	return nil
}

// Begin moves stage to in_progress. Any state except in_progress may be
// re-entered; failed and completed stages are re-run this way.
func (s *PipelineState) Begin(stage StageName, now time.Time) error {
	sl, err := s.slot(stage)
	if err != nil {
		return err
	}
	if sl.Status == StatusInProgress {
		return fmt.Errorf("state: %s is already in progress", stage)
	}
	sl.Status = StatusInProgress
	sl.Error, sl.ErrorKind = "", ""
	s.touch(sl, now)
	return nil
}

// Complete commits out for an in-progress stage. With review set the slot
// lands in awaiting_review instead of completed.
func (s *PipelineState) Complete(stage StageName, out any, model string, review bool, now time.Time) error {
	sl, err := s.slot(stage)
	if err != nil {
		return err
	}
	if sl.Status != StatusInProgress {
		return fmt.Errorf("state: cannot complete %s from %s", stage, sl.Status)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", stage, err)
	}
	sl.Output = raw
	sl.Model = model
	sl.Revision++
	sl.Status = StatusCompleted
	if review {
		sl.Status = StatusAwaitingReview
	}
	s.touch(sl, now)
	return nil
}

// Fail marks an in-progress stage failed. The previously committed output,
// if any, is kept.
func (s *PipelineState) Fail(stage StageName, cause error, kind string, now time.Time) error {
	sl, err := s.slot(stage)
	if err != nil {
		return err
	}
	if sl.Status != StatusInProgress {
		return fmt.Errorf("state: cannot fail %s from %s", stage, sl.Status)
	}
	sl.Status = StatusFailed
	if cause != nil {
		sl.Error = cause.Error()
	}
	sl.ErrorKind = kind
	s.touch(sl, now)
	return nil
}

// Interrupted is recorded on stages found in_progress when a session is
// reopened: the run that began them is gone.
const Interrupted = "interrupted before completion"

// HasInProgress reports whether any stage is in_progress.
func (s *PipelineState) HasInProgress() bool {
	for _, sl := range s.Slots {
		if sl != nil && sl.Status == StatusInProgress {
			return true
		}
	}
	return false
}

// FailInterrupted marks every in_progress stage failed and returns their
// names in pipeline order. Their earlier output is kept.
func (s *PipelineState) FailInterrupted(now time.Time) []StageName {
	var names []StageName
	for _, name := range StageNames() {
		sl, ok := s.Slots[name]
		if !ok || sl.Status != StatusInProgress {
			continue
		}
		sl.Status = StatusFailed
		sl.Error = Interrupted
		sl.ErrorKind = "fatal"
		s.touch(sl, now)
		names = append(names, name)
	}
	return names
}

// Abort returns an in-progress stage to prev, for a run that was refused
// before doing any work.
func (s *PipelineState) Abort(stage StageName, prev Slot, now time.Time) error {
	sl, err := s.slot(stage)
	if err != nil {
		return err
	}
	if sl.Status != StatusInProgress {
		return fmt.Errorf("state: cannot abort %s from %s", stage, sl.Status)
	}
	*sl = prev
	sl.Output = append(json.RawMessage(nil), prev.Output...)
	s.touch(sl, now)
	return nil
}

// AppendChat adds an entry to the chat log.
func (s *PipelineState) AppendChat(e ChatEntry) {
	s.ChatLog = append(s.ChatLog, e)
	s.bump(e.Timestamp)
}

// RecentChat returns the last n chat entries for target.
func (s *PipelineState) RecentChat(target StageName, n int) []ChatEntry {
	var out []ChatEntry
	for _, e := range s.ChatLog {
		if e.Target == target {
			out = append(out, e)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// RecordFactSheet appends an immutable snapshot of f to the history.
func (s *PipelineState) RecordFactSheet(f record.FactSheet, now time.Time) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("state: encode fact sheet snapshot: %w", err)
	}
	s.FactSheetHistory = append(s.FactSheetHistory, raw)
	s.bump(now)
	return nil
}

// FactSheet decodes the current fact sheet.
func (s *PipelineState) FactSheet() (record.FactSheet, error) {
	var f record.FactSheet
	err := s.Decode(StageFactSheet, &f)
	return f, err
}

// SetVisual replaces the visual checkpoint.
func (s *PipelineState) SetVisual(v VisualState, now time.Time) {
	s.Visual = &v
	s.bump(now)
}

// SetCreator records the creator config used for downstream stages.
func (s *PipelineState) SetCreator(c record.CreatorConfig, now time.Time) {
	s.Creator = &c
	s.bump(now)
}

// SetReport records the latest scam report.
func (s *PipelineState) SetReport(r record.ScamReport, now time.Time) {
	s.Report = &r
	s.bump(now)
}

// Clone returns a deep copy.
func (s *PipelineState) Clone() *PipelineState {
	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("state: clone: %v", err))
	}
	var out PipelineState
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("state: clone: %v", err))
	}
	return &out
}

func (s *PipelineState) slot(stage StageName) (*Slot, error) {
	if _, ok := ParseStage(string(stage)); !ok {
		return nil, fmt.Errorf("state: unknown stage %q", stage)
	}
	sl, ok := s.Slots[stage]
	if !ok || sl == nil {
		if s.Slots == nil {
			s.Slots = make(map[StageName]*Slot)
		}
		sl = &Slot{Status: StatusPending}
		s.Slots[stage] = sl
	}
	return sl, nil
}

// touch stamps the slot and the state; timestamps never move backwards.
func (s *PipelineState) touch(sl *Slot, now time.Time) {
	if now.Before(sl.UpdatedAt) {
		now = sl.UpdatedAt
	}
	sl.UpdatedAt = now
	s.bump(now)
}

func (s *PipelineState) bump(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}
