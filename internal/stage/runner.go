package stage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/failure"
)

// RetryNote is appended to the prompt after a reply could not be parsed.
const RetryNote = "Your previous output was malformed JSON. Respond with ONLY one valid JSON object."

// DefaultMaxRetries is how many times a stage is re-asked after malformed
// output, on top of the first attempt.
const DefaultMaxRetries = 2

// Runner executes Definitions. It never panics and never touches session
// state; committing a Result is the caller's job.
type Runner struct {
	text   backend.TextGenerator
	caller *backend.Caller

	stream       backend.StreamGenerator
	poller       backend.JobPoller
	pollInterval time.Duration
	pollTimeout  time.Duration

	maxRetries int
	log        *zap.Logger
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithCaller replaces the backend caller, e.g. to inject a test clock.
func WithCaller(c *backend.Caller) Option {
	return func(r *Runner) { r.caller = c }
}

// WithMaxRetries sets the malformed-output retry budget.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithStreaming enables RunStream with the given stream source and the
// poller used when a stream drops before any text arrives.
func WithStreaming(gen backend.StreamGenerator, poller backend.JobPoller, interval, timeout time.Duration) Option {
	return func(r *Runner) {
		r.stream = gen
		r.poller = poller
		if interval > 0 {
			r.pollInterval = interval
		}
		if timeout > 0 {
			r.pollTimeout = timeout
		}
	}
}

// WithClock overrides the time source used for Result.Duration.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a Runner over text.
func NewRunner(text backend.TextGenerator, opts ...Option) *Runner {
	r := &Runner{
		text:         text,
		maxRetries:   DefaultMaxRetries,
		pollInterval: 10 * time.Second,
		pollTimeout:  600 * time.Second,
		log:          zap.NewNop(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.caller == nil {
		r.caller = backend.NewCaller(backend.TextPolicy(), backend.WithLogger(r.log))
	}
	return r
}

// fetchFunc obtains raw model text for one attempt. partial reports text
// recovered from an interrupted stream.
type fetchFunc func(ctx context.Context, attempt int, note string) (raw, model string, partial bool, err error)

// Run executes def once with malformed-output retries.
func (r *Runner) Run(ctx context.Context, def Definition, in any) (res Result) {
	return r.run(ctx, def, in, r.textFetch(def, in))
}

// RunStream executes a streaming definition, forwarding thoughts to sink in
// order. If the stream output cannot be parsed, retries fall back to the
// definition's plain text request. Definitions that do not stream, or a
// Runner without streaming, behave as Run.
func (r *Runner) RunStream(ctx context.Context, def Definition, in any, sink backend.ThoughtSink) Result {
	st, ok := def.(Streamer)
	if !ok || r.stream == nil {
		r.log.Debug("stage: streaming unavailable, running as text", zap.String("stage", def.Name()))
		return r.Run(ctx, def, in)
	}
	text := r.textFetch(def, in)
	return r.run(ctx, def, in, func(ctx context.Context, attempt int, note string) (string, string, bool, error) {
		if attempt > 0 {
			return text(ctx, attempt, note)
		}
		req, err := st.BuildStream(in)
		if err != nil {
			return "", "", false, failure.Fatal(def.Name(), err)
		}
		out, err := r.caller.Stream(ctx, def.Name(), r.stream, req, backend.StreamOptions{
			Sink:         sink,
			Poller:       r.poller,
			PollInterval: r.pollInterval,
			PollTimeout:  r.pollTimeout,
		})
		return out.Text, req.Agent, out.Partial, err
	})
}

func (r *Runner) textFetch(def Definition, in any) fetchFunc {
	return func(ctx context.Context, _ int, note string) (string, string, bool, error) {
		req, err := def.BuildRequest(in, note)
		if err != nil {
			return "", "", false, failure.Fatal(def.Name(), err)
		}
		req.Tag = def.Name()
		raw, err := backend.Call(ctx, r.caller, def.Name(), func(ctx context.Context) (string, error) {
			return r.text.Generate(ctx, req)
		})
		return raw, req.Model, false, err
	}
}

func (r *Runner) run(ctx context.Context, def Definition, in any, fetch fetchFunc) (res Result) {
	name := def.Name()
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("stage: panic recovered", zap.String("stage", name), zap.Any("panic", p))
			res = Result{Err: failure.Fatal(name, fmt.Errorf("panic: %v", p)), Attempts: res.Attempts}
		}
		res.Duration = r.now().Sub(start)
	}()

	if err := def.Validate(in); err != nil {
		res.Err = failure.Normalize(name, err)
		r.log.Info("stage: precondition not met", zap.String("stage", name), zap.Error(res.Err))
		return res
	}
	if sk, ok := def.(Skipper); ok {
		if out, ok := sk.Skip(in); ok {
			r.log.Info("stage: nothing to do, skipped", zap.String("stage", name))
			return Result{Success: true, Output: out, Skipped: true}
		}
	}

	var last *failure.Error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		note := ""
		if attempt > 0 {
			note = RetryNote
		}
		res.Attempts = attempt + 1

		raw, model, partial, err := fetch(ctx, attempt, note)
		if model != "" {
			res.Model = model
		}
		if err != nil {
			res.Err = failure.Normalize(name, err)
			r.log.Warn("stage: backend call failed", zap.String("stage", name), zap.Int("attempt", res.Attempts), zap.Error(res.Err))
			return res
		}

		out, strategy, err := def.Parse(raw, in)
		if err == nil {
			res.Success = true
			res.Output = out
			res.Strategy = strategy
			res.LowConfidence = partial || strategy.Degraded()
			r.log.Info("stage: completed",
				zap.String("stage", name),
				zap.Int("attempts", res.Attempts),
				zap.Stringer("strategy", strategy),
				zap.Bool("low_confidence", res.LowConfidence),
			)
			return res
		}

		fe := failure.Normalize(name, err)
		if fe.Kind != failure.KindExtraction {
			res.Err = fe
			return res
		}
		last = fe
		r.log.Warn("stage: malformed output",
			zap.String("stage", name),
			zap.Int("attempt", res.Attempts),
			zap.String("reason", fe.Reason),
		)
		if ctx.Err() != nil {
			break
		}
	}

	if fb, ok := def.(Fallback); ok && last != nil {
		if out, ok := fb.Fallback(in, last); ok {
			r.log.Warn("stage: using fallback output", zap.String("stage", name), zap.Error(last))
			res.Success = true
			res.Output = out
			res.LowConfidence = true
			return res
		}
	}
	res.Err = last
	return res
}
