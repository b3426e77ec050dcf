package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

func verifiedSheet(t *testing.T) record.FactSheet {
	t.Helper()
	f := record.FactSheet{
		ScamName: "Fake Courier Call",
		RedFlag:  "Safe account request",
		TheFix:   "Call 997",
		Category: record.CategoryImpersonation,
	}
	v, err := f.Verify("OFC-001", "", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	return v
}

func directorInput(t *testing.T) DirectorInput {
	return DirectorInput{
		SessionID: "0123456789abcdef",
		FactSheet: verifiedSheet(t),
		Creator:   record.DefaultCreatorConfig(),
	}
}

func newTestRunner(s *backend.Scripted, opts ...Option) *Runner {
	return NewRunner(s, opts...)
}

// panicky is a Definition whose Parse panics.
type panicky struct{}

func (panicky) Name() string       { return "panicky" }
func (panicky) Validate(any) error { return nil }
func (panicky) Parse(string, any) (any, extract.Strategy, error) {
	panic("boom")
}
func (panicky) BuildRequest(any, string) (backend.TextRequest, error) {
	return backend.TextRequest{Prompt: "p"}, nil
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_Success(t *testing.T) {
	s := backend.NewScripted().OnText(NameDirector, backend.Text(offlineScript))
	res := newTestRunner(s).Run(context.Background(), NewDirector(DefaultModels().Director), directorInput(t))

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "gemini-2.0-flash", res.Model)
	assert.Equal(t, extract.StrategyDirect, res.Strategy)
	assert.False(t, res.LowConfidence)

	out := res.Output.(record.DirectorOutput)
	assert.Equal(t, "scam_impersonation_01234567", out.ProjectID)
	assert.Len(t, out.SceneBreakdown, 3)
	assert.Equal(t, 1, out.Revision)
	assert.Equal(t, record.LanguageMalayUrban, out.PrimaryLanguage)
}

func TestRun_RetriesMalformedOutputWithNote(t *testing.T) {
	s := backend.NewScripted().OnText(NameDirector,
		backend.Text("Sorry, here is your script: scenes are great"),
		backend.Text(offlineScript),
	)
	res := newTestRunner(s).Run(context.Background(), NewDirector(DefaultModels().Director), directorInput(t))

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	calls := s.TextCalls(NameDirector)
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0].Prompt, RetryNote)
	assert.Contains(t, calls[1].Prompt, RetryNote)
	assert.Equal(t, NameDirector, calls[1].Tag)
}

func TestRun_ExhaustedRetriesReturnExtraction(t *testing.T) {
	s := backend.NewScripted().OnText(NameDirector, backend.Text("no json here"))
	res := newTestRunner(s).Run(context.Background(), NewDirector(DefaultModels().Director), directorInput(t))

	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, failure.KindExtraction, res.Err.Kind)
	assert.Equal(t, DefaultMaxRetries+1, res.Attempts)
	assert.Len(t, s.TextCalls(NameDirector), DefaultMaxRetries+1)
}

func TestRun_MaxRetriesZero(t *testing.T) {
	s := backend.NewScripted().OnText(NameDirector, backend.Text("no json here"))
	res := newTestRunner(s, WithMaxRetries(0)).Run(context.Background(), NewDirector(DefaultModels().Director), directorInput(t))

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
}

func TestRun_PreconditionSkipsBackend(t *testing.T) {
	s := backend.NewScripted()
	in := directorInput(t)
	in.FactSheet.Verified = false

	res := newTestRunner(s).Run(context.Background(), NewDirector(DefaultModels().Director), in)

	require.NotNil(t, res.Err)
	assert.Equal(t, failure.KindPrecondition, res.Err.Kind)
	assert.Contains(t, res.Err.Error(), "must be verified")
	assert.Equal(t, 0, res.Attempts)
	assert.Empty(t, s.TextCalls(NameDirector))
}

func TestRun_WrongInputTypeIsFatal(t *testing.T) {
	res := newTestRunner(backend.NewScripted()).Run(context.Background(), NewDirector(DefaultModels().Director), "not an input")

	require.NotNil(t, res.Err)
	assert.Equal(t, failure.KindFatal, res.Err.Kind)
}

func TestRun_BackendFailureIsNotRetriedAsMalformed(t *testing.T) {
	s := backend.NewScripted().OnText(NameDirector, backend.Fail(errors.New("permission denied")))
	res := newTestRunner(s).Run(context.Background(), NewDirector(DefaultModels().Director), directorInput(t))

	require.NotNil(t, res.Err)
	assert.Equal(t, failure.KindFatal, res.Err.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, s.TextCalls(NameDirector), 1)
}

func TestRun_RecoversPanic(t *testing.T) {
	res := newTestRunner(backend.NewScripted().OnText("panicky", backend.Text("{}"))).
		Run(context.Background(), panicky{}, nil)

	require.NotNil(t, res.Err)
	assert.Equal(t, failure.KindFatal, res.Err.Kind)
	assert.Contains(t, res.Err.Error(), "boom")
	assert.False(t, res.Success)
}

func TestRun_DurationFromClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	s := backend.NewScripted().OnText(NameDirector, backend.Text(offlineScript))
	res := newTestRunner(s, WithClock(clock)).Run(context.Background(), NewDirector(DefaultModels().Director), directorInput(t))

	require.True(t, res.Success)
	assert.Equal(t, time.Second, res.Duration)
}

// ---------------------------------------------------------------------------
// Fallback and Skip
// ---------------------------------------------------------------------------

func TestRun_SensitivityFallsBackAfterRetries(t *testing.T) {
	s := backend.NewScripted().OnText(NameSensitivity, backend.Text("The script looks fine to me."))
	script := directorOutput(t)
	res := newTestRunner(s).Run(context.Background(), NewSensitivity(DefaultModels().Sensitivity),
		SensitivityInput{Script: script})

	require.True(t, res.Success)
	assert.True(t, res.LowConfidence)
	assert.Equal(t, DefaultMaxRetries+1, res.Attempts)
	out := res.Output.(record.SensitivityCheckOutput)
	assert.True(t, out.Passed)
	assert.Empty(t, out.Flags)
	assert.Contains(t, out.ComplianceSummary, "fell back to defaults")
	require.Len(t, out.DetailedAnalysis, 1)
	assert.Equal(t, "Automated review completed. Manual review recommended.", out.DetailedAnalysis[0].Analysis)
}

func TestRun_LinguisticSkipsWhenOnlyPrimary(t *testing.T) {
	s := backend.NewScripted()
	script := directorOutput(t)
	script.PrimaryLanguage = record.LanguageEnglish

	res := newTestRunner(s).Run(context.Background(), NewLinguistic(DefaultModels().Linguistic),
		LinguisticInput{Script: script, Languages: []record.Language{record.LanguageEnglish}})

	require.True(t, res.Success)
	assert.True(t, res.Skipped)
	assert.Empty(t, s.TextCalls(NameLinguistic))
	out := res.Output.(record.LinguisticOutput)
	assert.Len(t, out.Translations["English"], len(script.SceneBreakdown))
}

// ---------------------------------------------------------------------------
// RunStream
// ---------------------------------------------------------------------------

func TestRunStream_ForwardsThoughtsAndParses(t *testing.T) {
	s := backend.NewScripted().OnStream([]backend.StreamEvent{
		{Type: backend.EventStart, Handle: "int-9"},
		{Type: backend.EventDelta, Delta: &backend.Delta{Type: backend.DeltaThought, Text: "Reading PDRM advisories"}},
		{Type: backend.EventDelta, Delta: &backend.Delta{Type: backend.DeltaText, Text: "Report follows.\n```json\n" + offlineFactSheet + "\n```"}},
		{Type: backend.EventComplete},
	}, nil)
	r := newTestRunner(s, WithStreaming(s, s, time.Millisecond, time.Second))
	def := NewDeepResearch(DefaultModels().Research, "agent-x")

	var thoughts []string
	res := r.RunStream(context.Background(), def, ResearchInput{Intake: record.IntakeInput{
		SourceType: record.SourceManualDescription,
		Content:    "A retiree lost RM50k to a fake courier call",
	}}, func(th string) { thoughts = append(thoughts, th) })

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, "agent-x", res.Model)
	assert.Equal(t, []string{"Reading PDRM advisories"}, thoughts)
	f := res.Output.(record.FactSheet)
	assert.Equal(t, record.CategoryImpersonation, f.Category)
	assert.NotEmpty(t, f.CounterHack)
	assert.Empty(t, s.TextCalls(NameDeepResearch))
}

func TestRunStream_RetryUsesTextRequest(t *testing.T) {
	s := backend.NewScripted().
		OnStream([]backend.StreamEvent{
			{Type: backend.EventStart, Handle: "int-10"},
			{Type: backend.EventDelta, Delta: &backend.Delta{Type: backend.DeltaText, Text: "I could not finish."}},
			{Type: backend.EventComplete},
		}, nil).
		OnText(NameDeepResearch, backend.Text(offlineFactSheet))
	r := newTestRunner(s, WithStreaming(s, s, time.Millisecond, time.Second))

	res := r.RunStream(context.Background(), NewDeepResearch(DefaultModels().Research, "agent-x"),
		ResearchInput{Intake: record.IntakeInput{Content: "A retiree lost RM50k to a fake courier call"}}, nil)

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, 2, res.Attempts)
	calls := s.TextCalls(NameDeepResearch)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, RetryNote)
	assert.Contains(t, calls[0].Prompt, "counter_hack")
}

func TestRunStream_WithoutStreamingRunsText(t *testing.T) {
	s := backend.NewScripted().OnText(NameDeepResearch, backend.Text(offlineFactSheet))
	res := newTestRunner(s).RunStream(context.Background(), NewDeepResearch(DefaultModels().Research, "agent-x"),
		ResearchInput{Intake: record.IntakeInput{Content: "A retiree lost RM50k to a fake courier call"}}, nil)

	require.True(t, res.Success)
	assert.Len(t, s.TextCalls(NameDeepResearch), 1)
}
