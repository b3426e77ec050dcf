// Package visual turns a finished script into video assets: a story, a
// segment script, character reference grids, start and end frames per
// segment, and one generated clip per segment. Every step checkpoints into
// state.VisualState so an interrupted run resumes where it stopped.
package visual

import (
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/state"
)

// Step names a checkpoint of the visual sub-pipeline.
type Step string

const (
	StepStory      Step = "story"
	StepScript     Step = "script"
	StepCharacters Step = "characters"
	StepCharRefs   Step = "char_refs"
	StepClipRefs   Step = "clip_refs"
	StepVeo        Step = "veo"
)

var stepOrder = []Step{StepStory, StepScript, StepCharacters, StepCharRefs, StepClipRefs, StepVeo}

// Steps returns every step in run order.
func Steps() []Step { return append([]Step(nil), stepOrder...) }

// ParseStep validates a step name.
func ParseStep(s string) (Step, bool) {
	for _, st := range stepOrder {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Step) index() int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Clip cost estimate, in seconds and USD.
const (
	ClipSeconds   = 8
	CostPerSecond = 0.15
	ClipCostUSD   = ClipSeconds * CostPerSecond
)

const (
	aspectGrid  = "1:1"
	aspectFrame = "16:9"
)

// done reports whether step already has output in v.
func done(v state.VisualState, step Step) bool {
	switch step {
	case StepStory:
		return v.Story != nil
	case StepScript:
		return v.Script != nil
	case StepCharacters:
		return v.Characters != nil
	}
	last, ok := ParseStep(v.LastStep)
	return ok && last.index() >= step.index()
}

// Reset drops the output of from and every later step so they run again.
func Reset(v state.VisualState, from Step) state.VisualState {
	i := from.index()
	if i < 0 {
		return v
	}
	if i <= StepStory.index() {
		v.Story = nil
	}
	if i <= StepScript.index() {
		v.Script = nil
	}
	if i <= StepCharacters.index() {
		v.Characters = nil
	}
	if i <= StepCharRefs.index() {
		v.CharacterRefs = nil
	}
	if i <= StepClipRefs.index() {
		v.ClipPrompts = nil
		v.ClipRefs = nil
	}
	v.Clips = nil
	if last, ok := ParseStep(v.LastStep); ok && last.index() >= i {
		v.LastStep = ""
		if i > 0 {
			v.LastStep = string(stepOrder[i-1])
		}
	}
	return v
}

// TotalCost sums the estimated cost of the generated clips.
func TotalCost(v state.VisualState) float64 {
	var total float64
	for _, c := range v.Clips {
		total += c.EstimatedCostUSD
	}
	return total
}

// Input is one visual run. Scenes come from the approved script.
type Input struct {
	SessionID string
	FactSheet record.FactSheet
	Scenes    []record.Scene
	// StopAfter ends the run once that step has output. Empty runs every
	// step.
	StopAfter Step
}
