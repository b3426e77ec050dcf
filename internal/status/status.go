// Package status summarises a session's stage table for display.
package status

import (
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/state"
)

// StageInfo describes the state of a single stage slot.
type StageInfo struct {
	Stage     state.StageName
	Status    state.Status
	Revision  int
	Model     string
	Error     string
	UpdatedAt time.Time
	// Blocked holds the reason the stage cannot run yet, empty when its
	// dependencies are met.
	Blocked string
}

// SessionStatus holds the stage table of one session.
type SessionStatus struct {
	SessionID string
	Verified  bool
	Stages    []StageInfo
	// Next is the first stage that is not done and may run now. Empty when
	// every stage is done or nothing can run.
	Next state.StageName
}

// Complete reports whether every stage holds a committed output.
func (s SessionStatus) Complete() bool {
	for _, si := range s.Stages {
		if !si.Status.Done() {
			return false
		}
	}
	return true
}

// Summarize builds the stage table of st.
func Summarize(st *state.PipelineState) SessionStatus {
	router := orchestrator.NewRouter()
	ss := SessionStatus{SessionID: st.SessionID}
	if f, err := st.FactSheet(); err == nil {
		ss.Verified = f.Verified
	}

	for _, name := range state.StageNames() {
		sl := st.Slot(name)
		si := StageInfo{
			Stage:     name,
			Status:    sl.Status,
			Revision:  sl.Revision,
			Model:     sl.Model,
			Error:     sl.Error,
			UpdatedAt: sl.UpdatedAt,
		}
		if name != state.StageIntake {
			if err := router.Check(st, name); err != nil {
				si.Blocked = failure.UserMessage(err)
			}
		}
		if ss.Next == "" && name != state.StageIntake && !sl.Status.Done() && si.Blocked == "" {
			ss.Next = name
		}
		ss.Stages = append(ss.Stages, si)
	}
	return ss
}

// Print writes the stage table of ss to w.
func Print(w io.Writer, ss SessionStatus) {
	fmt.Fprintf(w, "Session: %s\n", ss.SessionID)
	verified := "no"
	if ss.Verified {
		verified = "yes"
	}
	fmt.Fprintf(w, "Fact sheet verified: %s\n\n", verified)

	for _, si := range ss.Stages {
		marker := "  "
		if si.Stage == ss.Next {
			marker = "->"
		}
		line := fmt.Sprintf("  %s %-17s [%s]", marker, si.Stage, si.Status)
		if si.Revision > 0 {
			line += fmt.Sprintf(" rev %d", si.Revision)
		}
		if si.Error != "" {
			line += " " + si.Error
		}
		fmt.Fprintln(w, line)
	}

	if ss.Complete() {
		fmt.Fprintln(w, "  All stages complete.")
	}
}
