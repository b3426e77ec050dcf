//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/export"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/status"
	"github.com/dusk-indust/scamshield/internal/visual"
)

// clock is the fixed time every e2e session runs at.
var clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fixturePath returns a file under the shared testdata/fixtures directory.
func fixturePath(parts ...string) string {
	return filepath.Join(append([]string{"..", "..", "testdata", "fixtures"}, parts...)...)
}

func loadIntake(t *testing.T) record.IntakeInput {
	t.Helper()
	data, err := os.ReadFile(fixturePath("intake", "courier_call.json"))
	require.NoError(t, err)
	var in record.IntakeInput
	require.NoError(t, json.Unmarshal(data, &in))
	return in
}

// newPipeline wires an orchestrator over scripted offline replies and drains
// its progress events in the background.
func newPipeline(t *testing.T) (*orchestrator.Orchestrator, *backend.Scripted) {
	t.Helper()
	s := stage.ScriptOffline(backend.NewScripted())
	now := func() time.Time { return clock }

	runner := stage.NewRunner(s,
		stage.WithStreaming(s, s, time.Millisecond, time.Second),
		stage.WithClock(now),
	)
	defs := stage.NewRegistry(stage.DefaultModels())
	vp := visual.New(runner, defs, s, s, visual.Config{
		OutputDir:    t.TempDir(),
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
		Parallel:     2,
	})

	progress := orchestrator.NewProgressReporter()
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for range progress.Subscribe() {
		}
	}()
	t.Cleanup(func() {
		progress.Close()
		<-drainDone
	})

	o := orchestrator.New(state.NewMemStore(), runner, defs, orchestrator.Config{Platform: "instagram"},
		orchestrator.WithVisual(vp),
		orchestrator.WithProgress(progress),
		orchestrator.WithClock(now),
	)
	return o, s
}

// TestScenario_CourierCall walks the officer workflow from intake to the
// first script.
func TestScenario_CourierCall(t *testing.T) {
	o, _ := newPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sheet, id, err := o.StartIntake(ctx, loadIntake(t))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.NotEmpty(t, sheet.ScamName)
	assert.NotEmpty(t, sheet.RedFlag)
	assert.NotEmpty(t, sheet.TheFix)
	assert.False(t, sheet.Verified)

	// The script stage is refused until an officer verifies the sheet.
	res := o.RunStage(ctx, id, string(state.StageScript), orchestrator.StageInput{})
	require.False(t, res.Success)
	fe, ok := failure.As(res.Err)
	require.True(t, ok)
	assert.Equal(t, failure.KindPrecondition, fe.Kind)

	verified, err := o.Verify(ctx, id, "OFC-001", nil)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, "OFC-001", verified.VerifierID)

	res = o.RunStage(ctx, id, string(state.StageScript), orchestrator.StageInput{})
	require.True(t, res.Success, "script: %v", res.Err)
	script, ok := res.Output.(record.DirectorOutput)
	require.True(t, ok)
	require.NotEmpty(t, script.SceneBreakdown)
	for _, scene := range script.SceneBreakdown {
		assert.LessOrEqual(t, scene.DurationEstSeconds, record.MaxSceneDuration, "scene %d", scene.SceneID)
	}
}

// TestScenario_FullPackage runs every stage and exports the package.
func TestScenario_FullPackage(t *testing.T) {
	o, s := newPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, id, err := o.StartIntake(ctx, loadIntake(t))
	require.NoError(t, err)
	_, err = o.Verify(ctx, id, "OFC-001", nil)
	require.NoError(t, err)
	_, err = o.CreateScamReport(ctx, id, "high")
	require.NoError(t, err)

	pkg, err := o.RunFull(ctx, id, record.DefaultCreatorConfig())
	require.NoError(t, err)
	require.Len(t, pkg.VideoInputs, 2)
	assert.Equal(t, record.SeverityHigh, pkg.ScamReport.Severity)
	assert.True(t, pkg.SensitivityReport.Passed)

	st, err := o.GetState(ctx, id)
	require.NoError(t, err)
	ss := status.Summarize(st)
	assert.True(t, ss.Complete())
	require.NotNil(t, st.Visual)
	assert.NotEmpty(t, st.Visual.Clips)
	assert.NotEmpty(t, s.VideoCalls())

	exports, err := export.ExportPackage(st, clock)
	require.NoError(t, err)
	paths, err := export.WritePackages(t.TempDir(), exports)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	for _, pe := range exports {
		require.NotNil(t, pe.Social, pe.Language)
		assert.NotEmpty(t, pe.VideoInput.Scenes, pe.Language)
	}
}

// TestScenario_ResumeVisual stops the visual run after the character grids
// and resumes it from the clip references.
func TestScenario_ResumeVisual(t *testing.T) {
	o, s := newPipeline(t)
	ctx := context.Background()

	_, id, err := o.StartIntake(ctx, loadIntake(t))
	require.NoError(t, err)
	_, err = o.Verify(ctx, id, "OFC-001", nil)
	require.NoError(t, err)
	for _, name := range []state.StageName{state.StageScript, state.StageTranslations, state.StageCompliance, state.StagePackage} {
		res := o.RunStage(ctx, id, string(name), orchestrator.StageInput{})
		require.True(t, res.Success, "%s: %v", name, res.Err)
	}

	res := o.RunStage(ctx, id, string(state.StageVisual), orchestrator.StageInput{StopAfter: string(visual.StepCharRefs)})
	require.True(t, res.Success, "visual: %v", res.Err)
	st, err := o.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusAwaitingReview, st.Status(state.StageVisual))
	assert.Empty(t, s.VideoCalls())
	grids := len(s.ImageCalls())

	res = o.ResumeFrom(ctx, id, string(visual.StepClipRefs), orchestrator.StageInput{})
	require.True(t, res.Success, "resume: %v", res.Err)
	st, err = o.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status(state.StageVisual))
	assert.NotEmpty(t, s.VideoCalls())
	assert.Greater(t, len(s.ImageCalls()), grids)
}
