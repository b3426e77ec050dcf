package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dusk-indust/scamshield/internal/state"
)

// ProgressStatus is the kind of a progress event.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressThought  ProgressStatus = "thought"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressEvent reports a change in one stage of one session.
type ProgressEvent struct {
	Session string          `json:"session"`
	Stage   state.StageName `json:"stage"`
	Status  ProgressStatus  `json:"status"`
	Message string          `json:"message,omitempty"`
}

// progressBuffer is the channel capacity of a ProgressReporter.
const progressBuffer = 64

// ProgressReporter emits progress events through a buffered channel. Events
// from one goroutine arrive in the order they were emitted. Emit never
// blocks a stage: once progressBuffer events are waiting, further events
// (research thoughts included) are dropped and counted in Dropped.
type ProgressReporter struct {
	mu      sync.RWMutex
	ch      chan ProgressEvent
	closed  bool
	dropped atomic.Int64
}

// NewProgressReporter creates a ProgressReporter.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{ch: make(chan ProgressEvent, progressBuffer)}
}

// Emit sends an event without blocking. The event is dropped when the
// buffer is full or the reporter is closed.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	if pr == nil {
		return
	}
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	if pr.closed {
		return
	}
	select {
	case pr.ch <- event:
	default:
		pr.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (pr *ProgressReporter) Dropped() int64 {
	if pr == nil {
		return 0
	}
	return pr.dropped.Load()
}

// Subscribe returns the event channel.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the event channel. It is safe to call more than once.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if !pr.closed {
		pr.closed = true
		close(pr.ch)
	}
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s (pending)", event.Stage)
	case ProgressWorking:
		return fmt.Sprintf("  ● %s...", event.Stage)
	case ProgressThought:
		return fmt.Sprintf("    … %s", event.Message)
	case ProgressComplete:
		if event.Message != "" {
			return fmt.Sprintf("  ✓ %s complete (%s)", event.Stage, event.Message)
		}
		return fmt.Sprintf("  ✓ %s complete", event.Stage)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Stage, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Stage)
	}
}
