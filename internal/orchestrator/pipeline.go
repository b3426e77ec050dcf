package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/visual"
)

// chatReplyHistory is how many chat entries a ChatReply carries back.
const chatReplyHistory = 6

// resultErr returns the error of an unsuccessful result as a plain error.
func resultErr(res stage.Result) error {
	if res.Success {
		return nil
	}
	if res.Err == nil {
		return failure.Fatal("orchestrator", errors.New("stage failed without an error"))
	}
	return res.Err
}

// execute runs one stage of sess through its executor and commits the
// outcome. exec overrides the routed executor, e.g. for refinements that
// write to an existing slot. The stage's error is returned unchanged.
func (o *Orchestrator) execute(ctx context.Context, sess *session, name state.StageName, exec executor, in StageInput) stage.Result {
	snap := sess.snapshot()
	id := snap.SessionID

	routed, err := o.router.route(snap, name)
	if err != nil {
		o.log.Info("orchestrator: stage refused", zap.String("session", id), zap.String("stage", string(name)), zap.Error(err))
		return stage.Result{Err: failure.Normalize(string(name), err)}
	}
	if exec == nil {
		exec = routed
	}

	prev := snap.Slot(name)
	if err := sess.update(ctx, func(st *state.PipelineState) error {
		if err := st.Begin(name, o.now()); err != nil {
			return failure.Precondition(string(name), "%s", err)
		}
		return nil
	}); err != nil {
		return stage.Result{Err: failure.Normalize(string(name), err)}
	}
	o.emit(ProgressEvent{Session: id, Stage: name, Status: ProgressWorking})
	o.log.Info("orchestrator: stage started", zap.String("session", id), zap.String("stage", string(name)))

	start := o.now()
	out := exec(ctx, sess, snap, in)
	if out.Duration == 0 {
		out.Duration = o.now().Sub(start)
	}
	// The outcome is recorded even when the caller has gone away.
	saveCtx := context.WithoutCancel(ctx)

	if out.Success && out.Output != nil {
		err := sess.update(saveCtx, func(st *state.PipelineState) error {
			now := o.now()
			if err := st.Complete(name, out.Output, out.Model, out.review, now); err != nil {
				return err
			}
			if out.commit != nil {
				return out.commit(st, now)
			}
			return nil
		})
		if err == nil {
			o.emit(ProgressEvent{Session: id, Stage: name, Status: ProgressComplete, Message: out.Duration.Round(time.Millisecond).String()})
			o.log.Info("orchestrator: stage completed",
				zap.String("session", id),
				zap.String("stage", string(name)),
				zap.Duration("duration", out.Duration),
				zap.Bool("review", out.review),
				zap.Bool("low_confidence", out.LowConfidence),
			)
			return out.Result
		}
		out.Success = false
		out.Output = nil
		out.Err = failure.Fatal(string(name), err)
	}
	if out.Err == nil {
		out.Err = failure.Normalize(string(name), errNoResult(name))
	}

	err = sess.update(saveCtx, func(st *state.PipelineState) error {
		if out.Err.Kind == failure.KindPrecondition {
			return st.Abort(name, prev, o.now())
		}
		return st.Fail(name, out.Err, out.Err.Kind.String(), o.now())
	})
	if err != nil {
		o.log.Error("orchestrator: could not record stage failure", zap.String("session", id), zap.String("stage", string(name)), zap.Error(err))
	}
	o.emit(ProgressEvent{Session: id, Stage: name, Status: ProgressFailed, Message: failure.UserMessage(out.Err)})
	o.log.Warn("orchestrator: stage failed",
		zap.String("session", id),
		zap.String("stage", string(name)),
		zap.Stringer("kind", out.Err.Kind),
		zap.Error(out.Err),
	)
	return out.Result
}

// StartIntake opens a session for in and researches its fact sheet. The
// session id is returned even when research fails, so the fact_sheet stage
// can be re-run.
func (o *Orchestrator) StartIntake(ctx context.Context, in record.IntakeInput) (record.FactSheet, string, error) {
	const op = "start_intake"
	if in.SourceType == "" {
		in.SourceType = record.SourceManualDescription
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = o.now().UTC()
	}
	if err := in.Validate(); err != nil {
		return record.FactSheet{}, "", failure.Precondition(op, "%s", err)
	}

	id := state.NewSessionID()
	unlock := o.locks.lock(id)
	defer unlock()

	now := o.now()
	st := state.New(id, now)
	if err := st.Begin(state.StageIntake, now); err != nil {
		return record.FactSheet{}, "", failure.Fatal(op, err)
	}
	if err := st.Complete(state.StageIntake, in, "", false, now); err != nil {
		return record.FactSheet{}, "", failure.Fatal(op, err)
	}
	if err := o.store.Put(ctx, st); err != nil {
		return record.FactSheet{}, "", failure.Fatal(op, err)
	}
	o.log.Info("orchestrator: session started",
		zap.String("session", id),
		zap.String("source", string(in.SourceType)),
		zap.Bool("deep_research", o.cfg.UseDeepResearch),
	)

	res := o.execute(ctx, &session{st: st, store: o.store}, state.StageFactSheet, nil, StageInput{})
	if !res.Success {
		return record.FactSheet{}, id, resultErr(res)
	}
	return res.Output.(record.FactSheet), id, nil
}

// Verify records the officer's verification of the current fact sheet.
// Corrections are applied first as a new revision; every revision and the
// verified sheet are kept in the session's fact sheet history. A verified
// sheet can only be verified again together with corrections.
func (o *Orchestrator) Verify(ctx context.Context, id, verifierID string, c *record.Corrections) (record.FactSheet, error) {
	const op = "verify"
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, op, id)
	if err != nil {
		return record.FactSheet{}, err
	}
	snap := sess.snapshot()
	if !snap.Status(state.StageFactSheet).Done() {
		return record.FactSheet{}, failure.Precondition(op, "no fact sheet to verify (status %s)", snap.Status(state.StageFactSheet))
	}
	sheet, err := snap.FactSheet()
	if err != nil {
		return record.FactSheet{}, failure.Fatal(op, err)
	}

	corrected := !c.Empty()
	if corrected {
		sheet = sheet.Apply(c)
	}
	verified, err := sheet.Verify(verifierID, "", o.now())
	switch {
	case errors.Is(err, record.ErrAlreadyVerified):
		return record.FactSheet{}, failure.Precondition(op, "fact sheet already verified by %s; send corrections to verify a new revision", sheet.VerifierID)
	case err != nil:
		return record.FactSheet{}, failure.Precondition(op, "%s", err)
	}

	model := snap.Slot(state.StageFactSheet).Model
	err = sess.update(ctx, func(st *state.PipelineState) error {
		now := o.now()
		if corrected {
			if err := st.RecordFactSheet(sheet, now); err != nil {
				return err
			}
		}
		if err := st.RecordFactSheet(verified, now); err != nil {
			return err
		}
		if err := st.Begin(state.StageFactSheet, now); err != nil {
			return err
		}
		return st.Complete(state.StageFactSheet, verified, model, false, now)
	})
	if err != nil {
		return record.FactSheet{}, failure.Fatal(op, err)
	}
	o.emit(ProgressEvent{Session: id, Stage: state.StageFactSheet, Status: ProgressComplete, Message: "verified by " + verified.VerifierID})
	o.log.Info("orchestrator: fact sheet verified",
		zap.String("session", id),
		zap.String("verifier", verified.VerifierID),
		zap.Int("revision", verified.Revision),
		zap.Bool("corrected", corrected),
	)
	return verified, nil
}

// RunStage runs one stage of a session. Inputs other than in come from the
// outputs of earlier stages.
func (o *Orchestrator) RunStage(ctx context.Context, id, name string, in StageInput) stage.Result {
	stg, ok := state.ParseStage(name)
	if !ok {
		return stage.Result{Err: failure.Precondition("run_stage", "unknown stage %q", name)}
	}
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, "run_stage", id)
	if err != nil {
		return stage.Result{Err: failure.Normalize("run_stage", err)}
	}
	return o.execute(ctx, sess, stg, nil, in)
}

// GetState returns a copy of the session state.
func (o *Orchestrator) GetState(ctx context.Context, id string) (*state.PipelineState, error) {
	sess, err := o.open(ctx, "get_state", id)
	if err != nil {
		return nil, err
	}
	return sess.st, nil
}

// ResumeFrom re-enters the pipeline at checkpoint. A visual step reruns the
// visual sub-pipeline from that step, reusing every earlier step's output;
// a stage name reruns that stage. in.StopAfter still bounds a visual run.
func (o *Orchestrator) ResumeFrom(ctx context.Context, id, checkpoint string, in StageInput) stage.Result {
	if step, ok := visual.ParseStep(checkpoint); ok {
		in.resumeFrom = string(step)
		return o.RunStage(ctx, id, string(state.StageVisual), in)
	}
	if name, ok := state.ParseStage(checkpoint); ok {
		if name == state.StageVisual {
			in.resumeFrom = string(visual.StepStory)
		}
		return o.RunStage(ctx, id, checkpoint, in)
	}
	return stage.Result{Err: failure.Precondition("resume_from", "unknown checkpoint %q", checkpoint)}
}

// CreateScamReport builds the publishable report from the verified fact
// sheet and saves it with the session.
func (o *Orchestrator) CreateScamReport(ctx context.Context, id, severity string) (record.ScamReport, error) {
	const op = "create_scam_report"
	sev, err := record.ParseSeverity(severity)
	if err != nil {
		return record.ScamReport{}, failure.Precondition(op, "%s", err)
	}
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, op, id)
	if err != nil {
		return record.ScamReport{}, err
	}
	sheet, err := verifiedSheet(sess.snapshot(), op)
	if err != nil {
		return record.ScamReport{}, err
	}
	report, err := record.NewScamReport(sheet, sev)
	if err != nil {
		return record.ScamReport{}, failure.Precondition(op, "%s", err)
	}
	if err := sess.update(ctx, func(st *state.PipelineState) error {
		st.SetReport(report, o.now())
		return nil
	}); err != nil {
		return record.ScamReport{}, failure.Fatal(op, err)
	}
	o.log.Info("orchestrator: scam report created", zap.String("session", id), zap.String("severity", string(sev)))
	return report, nil
}

// AssemblePackage runs package_assembly and returns the package.
func (o *Orchestrator) AssemblePackage(ctx context.Context, id string, in StageInput) (record.VideoPackage, error) {
	res := o.RunStage(ctx, id, string(state.StagePackage), in)
	if !res.Success {
		return record.VideoPackage{}, resultErr(res)
	}
	return res.Output.(record.VideoPackage), nil
}

// RefineScript revises the committed script from officer feedback. The
// revision replaces the script slot's output; the previous output object is
// left untouched.
func (o *Orchestrator) RefineScript(ctx context.Context, id, feedback string) (record.DirectorOutput, error) {
	const op = "refine_script"
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, op, id)
	if err != nil {
		return record.DirectorOutput{}, err
	}
	var prev record.DirectorOutput
	if err := sess.snapshot().Decode(state.StageScript, &prev); err != nil {
		return record.DirectorOutput{}, failure.Precondition(op, "no script to refine; run the script stage first")
	}

	res := o.execute(ctx, sess, state.StageScript, func(ctx context.Context, _ *session, snap *state.PipelineState, in StageInput) outcome {
		return outcome{Result: o.run(ctx, stage.NameScriptRefine, stage.ScriptRefineInput{
			Previous: prev,
			Creator:  creatorFor(snap, in),
			Feedback: feedback,
		})}
	}, StageInput{})
	if !res.Success {
		return record.DirectorOutput{}, resultErr(res)
	}
	return res.Output.(record.DirectorOutput), nil
}

// RefineSocial revises one section of the committed social strategy.
func (o *Orchestrator) RefineSocial(ctx context.Context, id, feedback, section string) (record.SocialOutput, error) {
	const op = "refine_social"
	sec, err := record.ParseSocialSection(section)
	if err != nil {
		return record.SocialOutput{}, failure.Precondition(op, "%s", err)
	}
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, op, id)
	if err != nil {
		return record.SocialOutput{}, err
	}
	var prev record.SocialOutput
	if err := sess.snapshot().Decode(state.StageSocial, &prev); err != nil {
		return record.SocialOutput{}, failure.Precondition(op, "no social strategy to refine; run the social_strategy stage first")
	}

	res := o.execute(ctx, sess, state.StageSocial, func(ctx context.Context, _ *session, _ *state.PipelineState, _ StageInput) outcome {
		return outcome{Result: o.run(ctx, stage.NameSocialRefine, stage.SocialRefineInput{
			Previous: prev,
			Feedback: feedback,
			Section:  sec,
			At:       o.now(),
		})}
	}, StageInput{})
	if !res.Success {
		return record.SocialOutput{}, resultErr(res)
	}
	return res.Output.(record.SocialOutput), nil
}

// ChatReply is the answer to one chat refinement message.
type ChatReply struct {
	Reply     string            `json:"reply"`
	Language  string            `json:"language"`
	Updated   bool              `json:"updated"`
	FactSheet record.FactSheet  `json:"fact_sheet"`
	History   []state.ChatEntry `json:"chat_history"`
}

// ChatRefine discusses the unverified fact sheet with the officer. Edits the
// model proposes become a new fact sheet revision. Both sides of the
// exchange are appended to the chat log.
func (o *Orchestrator) ChatRefine(ctx context.Context, id, message string) (ChatReply, error) {
	const op = "chat_refine"
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, op, id)
	if err != nil {
		return ChatReply{}, err
	}
	snap := sess.snapshot()
	if !snap.Has(state.StageFactSheet) {
		return ChatReply{}, failure.Precondition(op, "no fact sheet to refine; run start_intake first")
	}
	sheet, err := snap.FactSheet()
	if err != nil {
		return ChatReply{}, failure.Fatal(op, err)
	}
	if sheet.Verified {
		return ChatReply{}, failure.Precondition(op, "fact sheet already verified; use verify with corrections to make changes")
	}

	history := snap.RecentChat(state.StageFactSheet, stage.MaxChatHistory)
	turns := make([]stage.Turn, len(history))
	for i, e := range history {
		turns[i] = stage.Turn{Officer: e.Role == state.RoleOfficer, Content: e.Content}
	}
	if err := sess.update(ctx, func(st *state.PipelineState) error {
		st.AppendChat(state.ChatEntry{Role: state.RoleOfficer, Content: message, Target: state.StageFactSheet, Timestamp: o.now()})
		return nil
	}); err != nil {
		return ChatReply{}, failure.Fatal(op, err)
	}

	res := o.run(ctx, stage.NameFactRefine, stage.FactRefineInput{Current: sheet, History: turns, Message: message})
	if !res.Success {
		return ChatReply{}, resultErr(res)
	}
	out, ok := res.Output.(stage.FactRefineOutput)
	if !ok {
		return ChatReply{}, failure.Fatal(op, fmt.Errorf("fact refine returned %T", res.Output))
	}

	reply := ChatReply{Reply: out.Reply, Language: out.Language, FactSheet: sheet}
	err = sess.update(ctx, func(st *state.PipelineState) error {
		now := o.now()
		if !out.Corrections.Empty() {
			updated := sheet.Apply(out.Corrections)
			if err := st.RecordFactSheet(updated, now); err != nil {
				return err
			}
			if err := st.Begin(state.StageFactSheet, now); err != nil {
				return err
			}
			if err := st.Complete(state.StageFactSheet, updated, res.Model, true, now); err != nil {
				return err
			}
			reply.FactSheet = updated
			reply.Updated = true
		}
		st.AppendChat(state.ChatEntry{Role: state.RoleAgent, Content: out.Reply, Target: state.StageFactSheet, Timestamp: now})
		reply.History = st.RecentChat(state.StageFactSheet, chatReplyHistory)
		return nil
	})
	if err != nil {
		return ChatReply{}, failure.Fatal(op, err)
	}
	o.log.Info("orchestrator: chat refinement", zap.String("session", id), zap.Bool("updated", reply.Updated), zap.String("language", out.Language))
	return reply, nil
}

// RunFull runs every stage after verification with creator: the script
// chain in order, then visual_assets and social_strategy concurrently.
// Stages already completed with the same creator config are reused; once a
// stage runs, every later one runs too.
func (o *Orchestrator) RunFull(ctx context.Context, id string, creator record.CreatorConfig) (record.VideoPackage, error) {
	const op = "run_full"
	if err := creator.Validate(); err != nil {
		return record.VideoPackage{}, failure.Precondition(op, "%s", err)
	}
	unlock := o.locks.lock(id)
	defer unlock()
	sess, err := o.openLocked(ctx, op, id)
	if err != nil {
		return record.VideoPackage{}, err
	}

	in := StageInput{Creator: &creator}
	snap := sess.snapshot()
	reuse := snap.Creator != nil && reflect.DeepEqual(*snap.Creator, creator)
	for _, name := range []state.StageName{state.StageScript, state.StageTranslations, state.StageCompliance, state.StagePackage} {
		if reuse && snap.Status(name) == state.StatusCompleted {
			o.log.Info("orchestrator: reusing completed stage", zap.String("session", id), zap.String("stage", string(name)))
			continue
		}
		reuse = false
		if res := o.execute(ctx, sess, name, nil, in); !res.Success {
			return record.VideoPackage{}, resultErr(res)
		}
	}

	var tasks []Task
	if o.visual != nil {
		tasks = append(tasks, Task{Stage: state.StageVisual, Run: func(ctx context.Context) stage.Result {
			return o.execute(ctx, sess, state.StageVisual, nil, StageInput{})
		}})
	}
	tasks = append(tasks, Task{Stage: state.StageSocial, Run: func(ctx context.Context) stage.Result {
		return o.execute(ctx, sess, state.StageSocial, nil, StageInput{Platform: o.cfg.Platform})
	}})
	_, fanErr := NewFanOut(id, o.emit).Run(ctx, tasks)

	var pkg record.VideoPackage
	if err := sess.snapshot().Decode(state.StagePackage, &pkg); err != nil {
		return record.VideoPackage{}, failure.Fatal(op, err)
	}
	return pkg, fanErr
}
