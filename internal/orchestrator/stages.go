package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/visual"
)

// lowConfidenceNote is prepended to the officer notes of a fact sheet built
// from an interrupted or degraded research reply.
const lowConfidenceNote = "LOW CONFIDENCE: research output was incomplete. Fields marked " + stage.NotRecovered +
	" must be filled in, and every other field checked against the sources, before verifying."

// failed wraps err as the outcome of a stage that could not start.
func failed(name state.StageName, err error) outcome {
	return outcome{Result: stage.Result{Err: failure.Normalize(string(name), err)}}
}

// run executes the named definition.
func (o *Orchestrator) run(ctx context.Context, def string, in any) stage.Result {
	d, err := o.defs.Get(def)
	if err != nil {
		return stage.Result{Err: failure.Fatal(def, err)}
	}
	return o.runner.Run(ctx, d, in)
}

// creatorFor resolves the creator config of a run: the caller's override,
// then the one saved with the session, then the default.
func creatorFor(snap *state.PipelineState, in StageInput) record.CreatorConfig {
	switch {
	case in.Creator != nil:
		return *in.Creator
	case snap.Creator != nil:
		return *snap.Creator
	}
	return record.DefaultCreatorConfig()
}

// keepCreator saves c with the stage output when it is new to the session.
func keepCreator(snap *state.PipelineState, in StageInput, c record.CreatorConfig) func(*state.PipelineState, time.Time) error {
	return func(st *state.PipelineState, now time.Time) error {
		if in.Creator != nil || snap.Creator == nil {
			st.SetCreator(c, now)
		}
		return nil
	}
}

func (o *Orchestrator) execFactSheet(ctx context.Context, _ *session, snap *state.PipelineState, _ StageInput) outcome {
	var intake record.IntakeInput
	if err := snap.Decode(state.StageIntake, &intake); err != nil {
		return failed(state.StageFactSheet, err)
	}
	return o.research(ctx, snap.SessionID, intake)
}

// research produces an unverified fact sheet. It always lands in
// awaiting_review; only Verify completes the slot.
func (o *Orchestrator) research(ctx context.Context, id string, intake record.IntakeInput) outcome {
	name := stage.NameResearch
	if o.cfg.UseDeepResearch {
		name = stage.NameDeepResearch
	}
	def, err := o.defs.Get(name)
	if err != nil {
		return failed(state.StageFactSheet, err)
	}
	sink := func(thought string) {
		o.emit(ProgressEvent{Session: id, Stage: state.StageFactSheet, Status: ProgressThought, Message: thought})
	}
	res := o.runner.RunStream(ctx, def, stage.ResearchInput{Intake: intake}, sink)
	out := outcome{Result: res, review: true}
	if !res.Success {
		return out
	}
	sheet, ok := res.Output.(record.FactSheet)
	if !ok {
		return failed(state.StageFactSheet, fmt.Errorf("research returned %T", res.Output))
	}
	if res.LowConfidence {
		sheet.LowConfidence = true
		sheet.OfficerNotes = strings.TrimSpace(lowConfidenceNote + " " + sheet.OfficerNotes)
	}
	if sheet.CategoryRaw != "" {
		o.log.Warn("orchestrator: unrecognised scam category, filed as Other",
			zap.String("session", id),
			zap.String("category", sheet.CategoryRaw),
		)
	}
	out.Output = sheet
	out.commit = func(st *state.PipelineState, now time.Time) error {
		return st.RecordFactSheet(sheet, now)
	}
	return out
}

func (o *Orchestrator) execScript(ctx context.Context, _ *session, snap *state.PipelineState, in StageInput) outcome {
	sheet, err := verifiedSheet(snap, string(state.StageScript))
	if err != nil {
		return failed(state.StageScript, err)
	}
	c := creatorFor(snap, in)
	res := o.run(ctx, stage.NameDirector, stage.DirectorInput{SessionID: snap.SessionID, FactSheet: sheet, Creator: c})
	return outcome{Result: res, commit: keepCreator(snap, in, c)}
}

func (o *Orchestrator) execTranslations(ctx context.Context, _ *session, snap *state.PipelineState, in StageInput) outcome {
	var script record.DirectorOutput
	if err := snap.Decode(state.StageScript, &script); err != nil {
		return failed(state.StageTranslations, err)
	}
	c := creatorFor(snap, in)
	res := o.run(ctx, stage.NameLinguistic, stage.LinguisticInput{Script: script, Languages: c.Languages})
	return outcome{Result: res, commit: keepCreator(snap, in, c)}
}

func (o *Orchestrator) execCompliance(ctx context.Context, _ *session, snap *state.PipelineState, _ StageInput) outcome {
	var (
		script record.DirectorOutput
		tr     record.LinguisticOutput
	)
	if err := snap.Decode(state.StageScript, &script); err != nil {
		return failed(state.StageCompliance, err)
	}
	if err := snap.Decode(state.StageTranslations, &tr); err != nil {
		return failed(state.StageCompliance, err)
	}

	if o.cfg.SkipSensitivityCheck {
		o.log.Warn("orchestrator: sensitivity check skipped by configuration", zap.String("session", snap.SessionID))
		return outcome{Result: stage.Result{
			Success: true,
			Skipped: true,
			Output: record.SensitivityCheckOutput{
				ProjectID:         script.ProjectID,
				Passed:            true,
				Flags:             []record.SensitivityFlag{},
				ComplianceSummary: "Sensitivity check skipped by configuration.",
				DetailedAnalysis:  []record.ComplianceAnalysis{},
				CheckedAgainst:    []string{},
			},
		}}
	}

	res := o.run(ctx, stage.NameSensitivity, stage.SensitivityInput{Script: script, Translations: tr})
	if out, ok := res.Output.(record.SensitivityCheckOutput); ok && out.HasCritical() {
		o.log.Warn("orchestrator: critical sensitivity issues, review required",
			zap.String("session", snap.SessionID),
			zap.Int("flags", len(out.Flags)),
		)
	}
	return outcome{Result: res}
}

func (o *Orchestrator) execPackage(_ context.Context, _ *session, snap *state.PipelineState, in StageInput) outcome {
	const name = state.StagePackage
	sheet, err := verifiedSheet(snap, string(name))
	if err != nil {
		return failed(name, err)
	}
	var (
		script record.DirectorOutput
		tr     record.LinguisticOutput
		check  record.SensitivityCheckOutput
	)
	for stg, out := range map[state.StageName]any{
		state.StageScript:       &script,
		state.StageTranslations: &tr,
		state.StageCompliance:   &check,
	} {
		if err := snap.Decode(stg, out); err != nil {
			return failed(name, err)
		}
	}

	c := creatorFor(snap, in)
	report := snap.Report
	if report == nil {
		r, err := record.NewScamReport(sheet, record.SeverityMedium)
		if err != nil {
			return failed(name, err)
		}
		report = &r
	}

	pkg := assemble(snap.SessionID, sheet, c, script, tr, check, *report, o.now())
	for _, issue := range CheckCoherence(script, tr, c) {
		o.log.Warn("orchestrator: coherence issue",
			zap.String("session", snap.SessionID),
			zap.String("issue", issue.String()),
		)
		pkg.Warnings = append(pkg.Warnings, issue.String())
	}
	o.log.Info("orchestrator: video package assembled",
		zap.String("session", snap.SessionID),
		zap.Int("languages", len(pkg.VideoInputs)),
		zap.Bool("sensitivity_cleared", check.Passed),
	)

	keep := keepCreator(snap, in, c)
	return outcome{
		Result: stage.Result{Success: true, Output: pkg},
		commit: func(st *state.PipelineState, now time.Time) error {
			if st.Report == nil {
				st.SetReport(*report, now)
			}
			return keep(st, now)
		},
	}
}

// assemble builds one video input per translated language. Visual fields
// come from the script scene with the same id.
func assemble(
	sessionID string,
	sheet record.FactSheet,
	c record.CreatorConfig,
	script record.DirectorOutput,
	tr record.LinguisticOutput,
	check record.SensitivityCheckOutput,
	report record.ScamReport,
	now time.Time,
) record.VideoPackage {
	byID := make(map[int]record.Scene, len(script.SceneBreakdown))
	for _, s := range script.SceneBreakdown {
		byID[s.SceneID] = s
	}
	audience := record.AudienceGeneral
	if len(c.TargetGroups) > 0 {
		audience = c.TargetGroups[0]
	}

	inputs := make(map[string]record.VisualAudioInput, len(tr.Translations))
	for _, name := range slices.Sorted(maps.Keys(tr.Translations)) {
		texts := tr.Translations[name]
		lang := record.ParseLanguage(name)
		scenes := make([]record.Scene, 0, len(texts))
		for i, t := range texts {
			s, ok := byID[t.SceneID]
			if !ok && i < len(script.SceneBreakdown) {
				s = script.SceneBreakdown[i]
			}
			s.Extra = maps.Clone(s.Extra)
			s.SceneID = t.SceneID
			if s.SceneID == 0 {
				s.SceneID = i + 1
			}
			if s.DurationEstSeconds == 0 {
				s.DurationEstSeconds = record.MaxSceneDuration
			}
			s.AudioScript = t.AudioScript
			s.TextOverlay = t.TextOverlay
			scenes = append(scenes, s)
		}
		ref := sheet.Clone()
		code := lang.Code()
		inputs[code] = record.VisualAudioInput{
			ProjectID: script.ProjectID + "_" + code,
			MetaData: record.MetaData{
				Language:             lang,
				TargetAudience:       audience,
				Tone:                 c.Tone,
				Avatar:               c.Avatar.ID,
				VideoFormat:          c.VideoFormat,
				TotalDurationSeconds: c.Duration(),
			},
			Scenes:             scenes,
			FactSheetReference: &ref,
			SensitivityCleared: check.Passed,
		}
	}

	return record.VideoPackage{
		SessionID:         sessionID,
		ScamReport:        report,
		CreatorConfig:     c,
		VideoInputs:       inputs,
		SensitivityReport: check,
		CreatedAt:         now,
	}
}

func (o *Orchestrator) execSocial(ctx context.Context, _ *session, snap *state.PipelineState, in StageInput) outcome {
	sheet, err := verifiedSheet(snap, string(state.StageSocial))
	if err != nil {
		return failed(state.StageSocial, err)
	}
	var script record.DirectorOutput
	if err := snap.Decode(state.StageScript, &script); err != nil {
		return failed(state.StageSocial, err)
	}
	platform := in.Platform
	if platform == "" {
		platform = o.cfg.Platform
	}
	c := creatorFor(snap, in)
	res := o.run(ctx, stage.NameSocial, stage.SocialInput{
		FactSheet: sheet,
		Script:    script,
		Creator:   c,
		Platform:  platform,
		At:        o.now(),
	})
	return outcome{Result: res}
}

// execVisual runs the visual sub-pipeline from the session's checkpoint.
// Every finished step is saved as it completes, so a failed run keeps the
// steps before the failure. A run stopped early lands in awaiting_review.
func (o *Orchestrator) execVisual(ctx context.Context, sess *session, snap *state.PipelineState, in StageInput) outcome {
	const name = state.StageVisual
	var stop visual.Step
	if in.StopAfter != "" {
		s, ok := visual.ParseStep(in.StopAfter)
		if !ok {
			return failed(name, failure.Precondition(string(name), "unknown stop_after step %q", in.StopAfter))
		}
		stop = s
	}
	sheet, err := verifiedSheet(snap, string(name))
	if err != nil {
		return failed(name, err)
	}
	var script record.DirectorOutput
	if err := snap.Decode(state.StageScript, &script); err != nil {
		return failed(name, err)
	}

	var prev state.VisualState
	if snap.Visual != nil {
		prev = *snap.Visual
	}
	if in.resumeFrom != "" {
		step, _ := visual.ParseStep(in.resumeFrom)
		prev = visual.Reset(prev, step)
	}
	save := func(ctx context.Context, v state.VisualState) error {
		return sess.update(ctx, func(st *state.PipelineState) error {
			st.SetVisual(v, o.now())
			return nil
		})
	}

	start := o.now()
	v, err := o.visual.Run(ctx, visual.Input{
		SessionID: snap.SessionID,
		FactSheet: sheet,
		Scenes:    script.SceneBreakdown,
		StopAfter: stop,
	}, prev, save)
	res := stage.Result{Duration: o.now().Sub(start)}
	if err != nil {
		res.Err = failure.Normalize(string(name), err)
		return outcome{Result: res}
	}
	res.Success = true
	res.Output = v
	return outcome{
		Result: res,
		review: v.LastStep != string(visual.StepVeo),
		commit: func(st *state.PipelineState, now time.Time) error {
			st.SetVisual(v, now)
			return nil
		},
	}
}
