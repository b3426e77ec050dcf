package orchestrator

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/visual"
)

const officer = "OFC-001"

type harness struct {
	o        *Orchestrator
	s        *backend.Scripted
	store    *state.MemStore
	progress *ProgressReporter
}

// newHarness builds an Orchestrator over the offline script. custom runs
// before the offline replies are loaded, so its replies take precedence.
func newHarness(t *testing.T, cfg Config, custom func(s *backend.Scripted)) *harness {
	t.Helper()
	s := backend.NewScripted()
	if custom != nil {
		custom(s)
	}
	stage.ScriptOffline(s)

	runner := stage.NewRunner(s, stage.WithStreaming(s, s, time.Millisecond, time.Second))
	defs := stage.NewRegistry(stage.DefaultModels())
	vp := visual.New(runner, defs, s, s, visual.Config{OutputDir: t.TempDir(), Parallel: 2})
	store := state.NewMemStore()
	pr := NewProgressReporter()
	t.Cleanup(pr.Close)

	return &harness{
		o:        New(store, runner, defs, cfg, WithVisual(vp), WithProgress(pr)),
		s:        s,
		store:    store,
		progress: pr,
	}
}

func intake() record.IntakeInput {
	return record.IntakeInput{
		Content:   "A retiree lost RM50k to a fake courier call",
		OfficerID: officer,
	}
}

// start opens a session and returns its id.
func (h *harness) start(t *testing.T) string {
	t.Helper()
	_, id, err := h.o.StartIntake(context.Background(), intake())
	require.NoError(t, err)
	return id
}

// verified opens a session with a verified fact sheet.
func (h *harness) verified(t *testing.T) string {
	t.Helper()
	id := h.start(t)
	_, err := h.o.Verify(context.Background(), id, officer, nil)
	require.NoError(t, err)
	return id
}

// runStages runs names in order and requires each to succeed.
func (h *harness) runStages(t *testing.T, id string, names ...state.StageName) {
	t.Helper()
	for _, n := range names {
		res := h.o.RunStage(context.Background(), id, string(n), StageInput{})
		require.True(t, res.Success, "%s: %v", n, res.Err)
	}
}

func (h *harness) state(t *testing.T, id string) *state.PipelineState {
	t.Helper()
	st, err := h.o.GetState(context.Background(), id)
	require.NoError(t, err)
	return st
}

var scriptChain = []state.StageName{state.StageScript, state.StageTranslations, state.StageCompliance, state.StagePackage}

func gridCalls(s *backend.Scripted) int {
	n := 0
	for _, c := range s.ImageCalls() {
		if c.AspectRatio == "1:1" {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// StartIntake
// ---------------------------------------------------------------------------

func TestStartIntake_FactSheetAwaitsReview(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	sheet, id, err := h.o.StartIntake(context.Background(), intake())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, "Fake Courier Call (Macau Scam)", sheet.ScamName)
	assert.Equal(t, record.CategoryImpersonation, sheet.Category)
	assert.False(t, sheet.Verified)

	st := h.state(t, id)
	assert.Equal(t, state.StatusCompleted, st.Status(state.StageIntake))
	assert.Equal(t, state.StatusAwaitingReview, st.Status(state.StageFactSheet))
	assert.Len(t, st.FactSheetHistory, 1)

	var in record.IntakeInput
	require.NoError(t, st.Decode(state.StageIntake, &in))
	assert.Equal(t, record.SourceManualDescription, in.SourceType)
	assert.False(t, in.Timestamp.IsZero())
}

func TestStartIntake_ShortContent(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	_, id, err := h.o.StartIntake(context.Background(), record.IntakeInput{Content: "help"})
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
	assert.Empty(t, id)
	assert.Empty(t, h.s.TextCalls(stage.NameResearch))
}

func TestStartIntake_ResearchFailureKeepsSession(t *testing.T) {
	h := newHarness(t, Config{}, func(s *backend.Scripted) {
		s.OnText(stage.NameResearch, backend.Text("I cannot help with that."))
	})

	_, id, err := h.o.StartIntake(context.Background(), intake())
	require.Error(t, err)
	require.NotEmpty(t, id)

	st := h.state(t, id)
	assert.Equal(t, state.StatusCompleted, st.Status(state.StageIntake))
	assert.Equal(t, state.StatusFailed, st.Status(state.StageFactSheet))
	assert.NotEmpty(t, st.Slot(state.StageFactSheet).ErrorKind)
}

func TestStartIntake_DeepResearchPartialStream(t *testing.T) {
	h := newHarness(t, Config{UseDeepResearch: true}, func(s *backend.Scripted) {
		s.OnStream([]backend.StreamEvent{
			{Type: backend.EventStart, Handle: "int-1"},
			{Type: backend.EventDelta, Delta: &backend.Delta{Type: backend.DeltaThought, Text: "Checking PDRM advisories"}},
			{Type: backend.EventDelta, Delta: &backend.Delta{Type: backend.DeltaText, Text: stage.OfflineReplies[stage.NameDeepResearch]}},
		}, nil)
	})
	events := h.progress.Subscribe()

	sheet, id, err := h.o.StartIntake(context.Background(), intake())
	require.NoError(t, err)
	assert.True(t, sheet.LowConfidence)
	assert.True(t, strings.HasPrefix(sheet.OfficerNotes, "LOW CONFIDENCE"))
	assert.Empty(t, h.s.TextCalls(stage.NameDeepResearch))

	h.progress.Close()
	var thoughts []string
	for ev := range events {
		if ev.Status == ProgressThought {
			assert.Equal(t, id, ev.Session)
			thoughts = append(thoughts, ev.Message)
		}
	}
	assert.Equal(t, []string{"Checking PDRM advisories"}, thoughts)
}

// ---------------------------------------------------------------------------
// Verification gate
// ---------------------------------------------------------------------------

func TestRunStage_ScriptBeforeVerifyIsRefused(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)

	res := h.o.RunStage(context.Background(), id, string(state.StageScript), StageInput{})
	require.False(t, res.Success)
	assert.Equal(t, failure.KindPrecondition, res.Err.Kind)
	assert.Equal(t, gateMessage, failure.UserMessage(res.Err))
	assert.Empty(t, h.s.TextCalls(stage.NameDirector))
	assert.Equal(t, state.StatusPending, h.state(t, id).Status(state.StageScript))
}

func TestVerify_Twice(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)

	v, err := h.o.Verify(context.Background(), id, officer, nil)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, officer, v.VerifierID)
	require.NotNil(t, v.VerifiedAt)
	assert.Equal(t, state.StatusCompleted, h.state(t, id).Status(state.StageFactSheet))

	_, err = h.o.Verify(context.Background(), id, "OFC-002", nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
	assert.Contains(t, err.Error(), "already verified by "+officer)
}

func TestVerify_WithCorrections(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)
	first, err := h.o.Verify(context.Background(), id, officer, nil)
	require.NoError(t, err)

	name := "Macau Scam (Courier Variant)"
	v, err := h.o.Verify(context.Background(), id, "OFC-002", &record.Corrections{ScamName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, v.ScamName)
	assert.Equal(t, "OFC-002", v.VerifierID)
	assert.Equal(t, first.Revision+1, v.Revision)

	// research, first verify, corrected revision, second verify
	st := h.state(t, id)
	assert.Len(t, st.FactSheetHistory, 4)
	current, err := st.FactSheet()
	require.NoError(t, err)
	assert.Equal(t, name, current.ScamName)
}

func TestVerify_UnknownSession(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	_, err := h.o.Verify(context.Background(), "nope", officer, nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
}

// ---------------------------------------------------------------------------
// RunStage
// ---------------------------------------------------------------------------

func TestRunStage_ChainBuildsPackage(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, scriptChain...)

	st := h.state(t, id)
	for _, n := range scriptChain {
		assert.Equal(t, state.StatusCompleted, st.Status(n), n)
	}
	require.NotNil(t, st.Creator)
	require.NotNil(t, st.Report)
	assert.Equal(t, record.SeverityMedium, st.Report.Severity)

	var pkg record.VideoPackage
	require.NoError(t, st.Decode(state.StagePackage, &pkg))
	assert.Equal(t, id, pkg.SessionID)
	require.Len(t, pkg.VideoInputs, 2)
	for _, code := range []string{"bm", "en"} {
		in, ok := pkg.VideoInputs[code]
		require.True(t, ok, code)
		assert.True(t, strings.HasPrefix(in.ProjectID, "scam_"), in.ProjectID)
		assert.True(t, strings.HasSuffix(in.ProjectID, "_"+code), in.ProjectID)
		assert.Len(t, in.Scenes, 3)
		assert.True(t, in.SensitivityCleared)
		assert.Equal(t, record.AudienceElderly, in.MetaData.TargetAudience)
		require.NotNil(t, in.FactSheetReference)
		assert.True(t, in.FactSheetReference.Verified)
	}
	assert.Equal(t, "Police never ask for money by phone. Hang up and call 997.", pkg.VideoInputs["en"].Scenes[2].AudioScript)
	assert.Empty(t, pkg.Warnings)
}

func TestRunStage_CreatorOverride(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)

	c := record.DefaultCreatorConfig()
	c.Languages = []record.Language{record.LanguageEnglish, record.LanguageTamil}
	res := h.o.RunStage(context.Background(), id, string(state.StageScript), StageInput{Creator: &c})
	require.True(t, res.Success, "%v", res.Err)
	h.runStages(t, id, state.StageTranslations, state.StageCompliance)

	pkg, err := h.o.AssemblePackage(context.Background(), id, StageInput{})
	require.NoError(t, err)
	assert.Contains(t, pkg.VideoInputs, "en")
	assert.Contains(t, pkg.VideoInputs, "ta")
	assert.NotContains(t, pkg.VideoInputs, "bm")
	assert.Equal(t, c.Languages, pkg.CreatorConfig.Languages)
}

func TestRunStage_OutOfOrder(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)

	res := h.o.RunStage(context.Background(), id, string(state.StagePackage), StageInput{})
	require.False(t, res.Success)
	assert.Equal(t, failure.KindPrecondition, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "requires script")

	res = h.o.RunStage(context.Background(), id, "render", StageInput{})
	require.False(t, res.Success)
	assert.Equal(t, failure.KindPrecondition, res.Err.Kind)
}

func TestRunStage_SkipSensitivityCheck(t *testing.T) {
	h := newHarness(t, Config{SkipSensitivityCheck: true}, nil)
	id := h.verified(t)
	h.runStages(t, id, state.StageScript, state.StageTranslations)

	res := h.o.RunStage(context.Background(), id, string(state.StageCompliance), StageInput{})
	require.True(t, res.Success)
	assert.True(t, res.Skipped)
	out := res.Output.(record.SensitivityCheckOutput)
	assert.True(t, out.Passed)
	assert.Equal(t, "Sensitivity check skipped by configuration.", out.ComplianceSummary)
	assert.Empty(t, h.s.TextCalls(stage.NameSensitivity))
}

func TestRunStage_FailureKeepsEarlierStages(t *testing.T) {
	h := newHarness(t, Config{}, func(s *backend.Scripted) {
		s.OnText(stage.NameLinguistic, backend.Text("Sorry, I cannot translate this."))
	})
	id := h.verified(t)
	h.runStages(t, id, state.StageScript)
	before := h.state(t, id).Slot(state.StageScript)

	res := h.o.RunStage(context.Background(), id, string(state.StageTranslations), StageInput{})
	require.False(t, res.Success)
	assert.Equal(t, failure.KindExtraction, res.Err.Kind)

	st := h.state(t, id)
	tr := st.Slot(state.StageTranslations)
	assert.Equal(t, state.StatusFailed, tr.Status)
	assert.Equal(t, failure.KindExtraction.String(), tr.ErrorKind)
	assert.NotEmpty(t, tr.Error)

	after := st.Slot(state.StageScript)
	assert.Equal(t, state.StatusCompleted, after.Status)
	assert.JSONEq(t, string(before.Output), string(after.Output))
}

func TestRunStage_PreconditionRestoresSlot(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, scriptChain...)

	res := h.o.RunStage(context.Background(), id, string(state.StageVisual), StageInput{StopAfter: "render"})
	require.False(t, res.Success)
	assert.Equal(t, failure.KindPrecondition, res.Err.Kind)
	assert.Equal(t, state.StatusPending, h.state(t, id).Status(state.StageVisual))
}

func TestRunStage_ProgressEvents(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	events := h.progress.Subscribe()
	for len(events) > 0 {
		<-events
	}

	h.runStages(t, id, state.StageScript)

	var got []ProgressStatus
	for len(events) > 0 {
		ev := <-events
		assert.Equal(t, state.StageScript, ev.Stage)
		got = append(got, ev.Status)
	}
	assert.Equal(t, []ProgressStatus{ProgressWorking, ProgressComplete}, got)
}

// ---------------------------------------------------------------------------
// Visual checkpoints
// ---------------------------------------------------------------------------

func TestVisual_StopAfterThenResume(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, scriptChain...)

	res := h.o.RunStage(context.Background(), id, string(state.StageVisual), StageInput{StopAfter: string(visual.StepCharRefs)})
	require.True(t, res.Success, "%v", res.Err)

	st := h.state(t, id)
	assert.Equal(t, state.StatusAwaitingReview, st.Status(state.StageVisual))
	require.NotNil(t, st.Visual)
	assert.Equal(t, string(visual.StepCharRefs), st.Visual.LastStep)
	assert.NotEmpty(t, st.Visual.CharacterRefs)
	assert.Empty(t, st.Visual.Clips)
	grids := gridCalls(h.s)
	require.Positive(t, grids)

	res = h.o.ResumeFrom(context.Background(), id, string(visual.StepClipRefs), StageInput{})
	require.True(t, res.Success, "%v", res.Err)

	st = h.state(t, id)
	assert.Equal(t, state.StatusCompleted, st.Status(state.StageVisual))
	assert.Equal(t, string(visual.StepVeo), st.Visual.LastStep)
	assert.Len(t, st.Visual.Clips, 3)
	assert.Equal(t, grids, gridCalls(h.s), "reference grids must be reused")
	assert.Len(t, h.s.TextCalls(stage.NameStory), 1)
}

func TestVisual_StopAtClipRefsReusesGridFiles(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, scriptChain...)

	res := h.o.RunStage(context.Background(), id, string(state.StageVisual), StageInput{StopAfter: string(visual.StepCharRefs)})
	require.True(t, res.Success, "%v", res.Err)
	first := h.state(t, id).Visual
	require.NotEmpty(t, first.CharacterRefs)
	grids := gridCalls(h.s)
	files := make(map[string][]byte)
	for _, r := range first.CharacterRefs {
		data, err := os.ReadFile(r.Path)
		require.NoError(t, err)
		files[r.Path] = data
	}

	res = h.o.RunStage(context.Background(), id, string(state.StageVisual), StageInput{StopAfter: string(visual.StepClipRefs)})
	require.True(t, res.Success, "%v", res.Err)
	second := h.state(t, id).Visual
	assert.Equal(t, string(visual.StepClipRefs), second.LastStep)
	assert.Equal(t, first.CharacterRefs, second.CharacterRefs)
	for path, data := range files {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, data, got, path)
	}
	assert.Equal(t, grids, gridCalls(h.s))
	assert.Empty(t, h.s.VideoCalls())
	assert.Equal(t, state.StatusAwaitingReview, h.state(t, id).Status(state.StageVisual))
}

// ---------------------------------------------------------------------------
// Interrupted runs
// ---------------------------------------------------------------------------

// interrupt leaves stage in_progress in the store, as a process killed
// mid-stage would.
func (h *harness) interrupt(t *testing.T, id string, name state.StageName) {
	t.Helper()
	st, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, st.Begin(name, time.Now()))
	require.NoError(t, h.store.Put(context.Background(), st))
}

func TestRunStage_InterruptedStageCanRerun(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.interrupt(t, id, state.StageScript)

	// Reading does not touch the stored slot.
	assert.Equal(t, state.StatusInProgress, h.state(t, id).Status(state.StageScript))

	res := h.o.RunStage(context.Background(), id, string(state.StageScript), StageInput{})
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, state.StatusCompleted, h.state(t, id).Status(state.StageScript))

	res = h.o.RunStage(context.Background(), id, string(state.StageScript), StageInput{})
	require.True(t, res.Success, "%v", res.Err)
}

func TestResumeFrom_InterruptedStage(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, state.StageScript)
	h.interrupt(t, id, state.StageTranslations)

	res := h.o.ResumeFrom(context.Background(), id, string(state.StageTranslations), StageInput{})
	require.True(t, res.Success, "%v", res.Err)
	assert.True(t, h.state(t, id).Status(state.StageTranslations).Done())
}

func TestReport_MarksInterruptedStageFailed(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.interrupt(t, id, state.StageScript)

	_, err := h.o.CreateScamReport(context.Background(), id, "high")
	require.NoError(t, err)
	sl := h.state(t, id).Slot(state.StageScript)
	assert.Equal(t, state.StatusFailed, sl.Status)
	assert.Equal(t, state.Interrupted, sl.Error)
	assert.Equal(t, "fatal", sl.ErrorKind)
}

func TestResumeFrom_StageName(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, state.StageScript)

	res := h.o.ResumeFrom(context.Background(), id, string(state.StageScript), StageInput{})
	require.True(t, res.Success)
	assert.Len(t, h.s.TextCalls(stage.NameDirector), 2)
	assert.Equal(t, 2, h.state(t, id).Slot(state.StageScript).Revision)
}

func TestResumeFrom_UnknownCheckpoint(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)

	res := h.o.ResumeFrom(context.Background(), id, "render", StageInput{})
	require.False(t, res.Success)
	assert.Equal(t, failure.KindPrecondition, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "unknown checkpoint")
}

// ---------------------------------------------------------------------------
// Refinement
// ---------------------------------------------------------------------------

func TestChatRefine_UpdatesFactSheet(t *testing.T) {
	h := newHarness(t, Config{}, func(s *backend.Scripted) {
		s.OnText(stage.NameFactRefine, backend.Text(`{"reply": "Saya telah kemas kini tanda bahaya.", "updates": {"red_flag": "Police never ask for transfers to a safe account."}}`))
	})
	id := h.start(t)

	reply, err := h.o.ChatRefine(context.Background(), id, "Boleh tukar tanda bahaya untuk akaun selamat?")
	require.NoError(t, err)
	assert.True(t, reply.Updated)
	assert.Equal(t, "Police never ask for transfers to a safe account.", reply.FactSheet.RedFlag)
	assert.False(t, reply.FactSheet.Verified)
	require.Len(t, reply.History, 2)
	assert.Equal(t, state.RoleOfficer, reply.History[0].Role)
	assert.Equal(t, state.RoleAgent, reply.History[1].Role)

	st := h.state(t, id)
	assert.Equal(t, state.StatusAwaitingReview, st.Status(state.StageFactSheet))
	assert.Len(t, st.FactSheetHistory, 2)
	current, err := st.FactSheet()
	require.NoError(t, err)
	assert.Equal(t, reply.FactSheet.RedFlag, current.RedFlag)
	assert.Equal(t, 2, st.Slot(state.StageFactSheet).Revision)
}

func TestChatRefine_ReplyOnly(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)

	reply, err := h.o.ChatRefine(context.Background(), id, "Is the category right?")
	require.NoError(t, err)
	assert.False(t, reply.Updated)
	assert.NotEmpty(t, reply.Reply)
	assert.Len(t, h.state(t, id).FactSheetHistory, 1)
}

func TestChatRefine_SendsRecentHistory(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)

	for i := 0; i < 7; i++ {
		_, err := h.o.ChatRefine(context.Background(), id, "Please double check the sources.")
		require.NoError(t, err)
	}
	calls := h.s.TextCalls(stage.NameFactRefine)
	require.Len(t, calls, 7)
	assert.Len(t, h.state(t, id).ChatLog, 14)
}

func TestChatRefine_AfterVerifyIsRefused(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)

	_, err := h.o.ChatRefine(context.Background(), id, "change the name")
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
	assert.Empty(t, h.s.TextCalls(stage.NameFactRefine))
}

func TestRefineScript(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)

	_, err := h.o.RefineScript(context.Background(), id, "shorter hook")
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))

	h.runStages(t, id, state.StageScript)
	out, err := h.o.RefineScript(context.Background(), id, "shorter hook")
	require.NoError(t, err)
	assert.Len(t, out.SceneBreakdown, 3)
	calls := h.s.TextCalls(stage.NameScriptRefine)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "shorter hook")
	assert.Equal(t, 2, h.state(t, id).Slot(state.StageScript).Revision)
}

func TestRefineSocial(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	h.runStages(t, id, scriptChain...)
	h.runStages(t, id, state.StageSocial)

	out, err := h.o.RefineSocial(context.Background(), id, "more urgent", "captions")
	require.NoError(t, err)
	assert.Len(t, out.Captions, 3)

	_, err = h.o.RefineSocial(context.Background(), id, "more urgent", "memes")
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
}

// ---------------------------------------------------------------------------
// Scam report
// ---------------------------------------------------------------------------

func TestCreateScamReport(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)

	_, err := h.o.CreateScamReport(context.Background(), id, "high")
	require.Error(t, err)
	assert.Contains(t, err.Error(), gateMessage)

	_, err = h.o.Verify(context.Background(), id, officer, nil)
	require.NoError(t, err)

	_, err = h.o.CreateScamReport(context.Background(), id, "catastrophic")
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))

	report, err := h.o.CreateScamReport(context.Background(), id, "high")
	require.NoError(t, err)
	assert.Equal(t, record.SeverityHigh, report.Severity)
	assert.Equal(t, "Fake Courier Call (Macau Scam)", report.Title)

	st := h.state(t, id)
	require.NotNil(t, st.Report)
	assert.Equal(t, record.SeverityHigh, st.Report.Severity)

	// package assembly keeps an existing report
	h.runStages(t, id, scriptChain...)
	var pkg record.VideoPackage
	require.NoError(t, h.state(t, id).Decode(state.StagePackage, &pkg))
	assert.Equal(t, record.SeverityHigh, pkg.ScamReport.Severity)
}

// ---------------------------------------------------------------------------
// RunFull
// ---------------------------------------------------------------------------

func TestRunFull(t *testing.T) {
	h := newHarness(t, Config{Platform: "tiktok"}, nil)
	id := h.verified(t)

	pkg, err := h.o.RunFull(context.Background(), id, record.DefaultCreatorConfig())
	require.NoError(t, err)
	assert.Len(t, pkg.VideoInputs, 2)

	st := h.state(t, id)
	for _, n := range state.StageNames() {
		assert.Equal(t, state.StatusCompleted, st.Status(n), n)
	}
	assert.Len(t, st.Visual.Clips, 3)
	calls := h.s.TextCalls(stage.NameSocial)
	require.Len(t, calls, 1)
	assert.Contains(t, strings.ToLower(calls[0].Prompt), "tiktok")
}

func TestRunFull_ReusesStagesForSameCreator(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)
	c := record.DefaultCreatorConfig()

	_, err := h.o.RunFull(context.Background(), id, c)
	require.NoError(t, err)
	_, err = h.o.RunFull(context.Background(), id, c)
	require.NoError(t, err)
	assert.Len(t, h.s.TextCalls(stage.NameDirector), 1)
	assert.Len(t, h.s.TextCalls(stage.NameLinguistic), 1)

	c.Tone = record.ToneCalm
	_, err = h.o.RunFull(context.Background(), id, c)
	require.NoError(t, err)
	assert.Len(t, h.s.TextCalls(stage.NameDirector), 2)
	assert.Len(t, h.s.TextCalls(stage.NameLinguistic), 2)
}

func TestRunFull_Unverified(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.start(t)

	_, err := h.o.RunFull(context.Background(), id, record.DefaultCreatorConfig())
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
	assert.Empty(t, h.s.TextCalls(stage.NameDirector))
}

func TestRunFull_InvalidCreator(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id := h.verified(t)

	c := record.DefaultCreatorConfig()
	c.TargetGroups = nil
	_, err := h.o.RunFull(context.Background(), id, c)
	require.Error(t, err)
	assert.Equal(t, failure.KindPrecondition, failure.KindOf(err))
}

func TestSessions_AreIndependent(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	a := h.verified(t)
	b := h.start(t)

	h.runStages(t, a, state.StageScript)
	assert.Equal(t, state.StatusPending, h.state(t, b).Status(state.StageScript))

	ids, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, ids)
}
