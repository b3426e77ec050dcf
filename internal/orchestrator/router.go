package orchestrator

import (
	"context"
	"time"

	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
)

// Prerequisite is one dependency of a stage. Gate marks the fact sheet
// dependency, which must also carry an officer verification.
type Prerequisite struct {
	Stage state.StageName
	Gate  bool
}

var prerequisites = map[state.StageName][]Prerequisite{
	state.StageFactSheet:    {{Stage: state.StageIntake}},
	state.StageScript:       {{Stage: state.StageFactSheet, Gate: true}},
	state.StageTranslations: {{Stage: state.StageScript}},
	state.StageCompliance:   {{Stage: state.StageScript}, {Stage: state.StageTranslations}},
	state.StagePackage: {
		{Stage: state.StageFactSheet, Gate: true},
		{Stage: state.StageScript},
		{Stage: state.StageTranslations},
		{Stage: state.StageCompliance},
	},
	state.StageVisual: {{Stage: state.StagePackage}},
	state.StageSocial: {{Stage: state.StagePackage}},
}

// Prerequisites returns the direct dependencies of stage in check order.
func Prerequisites(name state.StageName) []Prerequisite {
	return append([]Prerequisite(nil), prerequisites[name]...)
}

// gateMessage is shown when downstream work is requested on an unverified
// fact sheet.
const gateMessage = "Fact Sheet must be verified by officer before script generation"

// outcome is what an executor hands back for committing. commit runs in the
// same state update as the slot transition and only on success.
type outcome struct {
	stage.Result
	review bool
	commit func(st *state.PipelineState, now time.Time) error
}

// executor runs one stage. snap is a private copy of the session state to
// read inputs from; sess is used only for mid-stage checkpoints.
type executor func(ctx context.Context, sess *session, snap *state.PipelineState, in StageInput) outcome

// Router maps stages to their executors and enforces the stage graph.
type Router struct {
	executors map[state.StageName]executor
}

// NewRouter creates a Router with an empty executor registry.
func NewRouter() *Router {
	return &Router{executors: make(map[state.StageName]executor)}
}

func (r *Router) register(name state.StageName, exec executor) {
	r.executors[name] = exec
}

// Check returns a precondition error naming the first unmet dependency of
// name, or nil when the stage may run.
func (r *Router) Check(st *state.PipelineState, name state.StageName) error {
	op := string(name)
	if _, ok := state.ParseStage(op); !ok {
		return failure.Precondition("router", "unknown stage %q", name)
	}
	for _, p := range prerequisites[name] {
		if p.Gate {
			if err := checkGate(st, op); err != nil {
				return err
			}
			continue
		}
		if got := st.Status(p.Stage); got != state.StatusCompleted {
			return failure.Precondition(op, "%s requires %s to be completed (status %s)", name, p.Stage, got)
		}
	}
	return nil
}

func checkGate(st *state.PipelineState, op string) error {
	if !st.Status(state.StageFactSheet).Done() {
		return failure.Precondition(op, "%s requires a fact sheet (status %s)", op, st.Status(state.StageFactSheet))
	}
	f, err := st.FactSheet()
	if err != nil {
		return failure.Fatal(op, err)
	}
	if !f.Verified {
		return failure.Precondition(op, gateMessage)
	}
	return nil
}

// route checks name against st and returns its executor.
func (r *Router) route(st *state.PipelineState, name state.StageName) (executor, error) {
	if err := r.Check(st, name); err != nil {
		return nil, err
	}
	exec, ok := r.executors[name]
	if !ok {
		if name == state.StageIntake {
			return nil, failure.Precondition(string(name), "intake is recorded by start_intake")
		}
		return nil, failure.Precondition(string(name), "stage %s is not available in this configuration", name)
	}
	return exec, nil
}

// verifiedSheet decodes the gated fact sheet. Callers run after Check.
func verifiedSheet(st *state.PipelineState, op string) (record.FactSheet, error) {
	if err := checkGate(st, op); err != nil {
		return record.FactSheet{}, err
	}
	return st.FactSheet()
}
