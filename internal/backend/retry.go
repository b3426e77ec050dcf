package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/dusk-indust/scamshield/internal/failure"
)

// Policy bounds retries for one class of call. The delay before retry i
// (0-based) is min(BaseDelay + i*Increment, MaxDelay).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Increment   time.Duration
	MaxDelay    time.Duration
	// Timeout bounds each attempt; zero means no per-attempt limit.
	Timeout time.Duration
}

// TextPolicy is used for agent text calls.
func TextPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Increment: 2 * time.Second, MaxDelay: 10 * time.Second, Timeout: 60 * time.Second}
}

// ImagePolicy is used for image generation, which sees frequent capacity
// errors under load.
func ImagePolicy() Policy {
	return Policy{MaxAttempts: 8, BaseDelay: time.Second, Increment: 10 * time.Second, MaxDelay: 90 * time.Second}
}

// Delay returns the wait before the retry following attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay + time.Duration(attempt)*p.Increment
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

var retryableMarkers = []string{
	"503",
	"429",
	"unavailable",
	"high demand",
	"resource_exhausted",
	"ratelimit",
	"too many requests",
}

// rateWordRe matches "rate" as a standalone token ("rate limit",
// "RATE_LIMIT_EXCEEDED") but not inside words such as "generate".
var rateWordRe = regexp.MustCompile(`(?i)(^|[^a-z])rate([^a-z]|$)`)

// IsRetryable reports whether err looks like a transient capacity or
// availability failure. Everything else is treated as fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) && retryableStatus(se.StatusCode) {
		return true
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) && retryableStatus(ge.Code) {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return rateWordRe.MatchString(s)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// StatusError is a non-2xx response from a REST endpoint.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// Caller applies a Policy to backend calls.
type Caller struct {
	policy Policy
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *zap.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces time.Now and the context-aware sleep. Tests use it to
// run retry and polling loops without waiting.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) CallerOption {
	return func(c *Caller) {
		c.now = now
		c.sleep = sleep
	}
}

// NewCaller creates a Caller for the given policy.
func NewCaller(p Policy, opts ...CallerOption) *Caller {
	c := &Caller{
		policy: p,
		log:    zap.NewNop(),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPolicy returns a copy of c using p, sharing the logger and clock.
func (c *Caller) WithPolicy(p Policy) *Caller {
	cp := *c
	cp.policy = p
	return &cp
}

// Policy returns the caller's policy.
func (c *Caller) Policy() Policy { return c.policy }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, fails fatally or the attempt budget runs out.
// Errors already classified as *failure.Error pass through unchanged;
// transient errors surface as KindTransient after the last attempt and
// everything else as KindFatal.
func (c *Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := max(1, c.policy.MaxAttempts)
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		err := c.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if fe, ok := failure.As(err); ok {
			return fe
		}
		if ctx.Err() != nil {
			return failure.Fatal(op, ctx.Err())
		}
		if !IsRetryable(err) {
			c.log.Warn("backend: fatal error", zap.String("op", op), zap.Error(err))
			return failure.Fatal(op, err)
		}
		last = err
		if attempt == attempts-1 {
			break
		}
		delay := c.policy.Delay(attempt)
		c.log.Warn("backend: transient error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return failure.Fatal(op, err)
		}
	}
	c.log.Error("backend: retries exhausted", zap.String("op", op), zap.Int("attempts", attempts), zap.Error(last))
	return failure.Transient(op, last)
}

func (c *Caller) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.policy.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()
	return fn(actx)
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, c *Caller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Poll queries handle every interval until the job reaches a terminal state.
// Exceeding overall yields a KindTimeout error; a failed job is KindFatal.
// Transient poll errors are logged and polling continues.
func (c *Caller) Poll(ctx context.Context, op string, p JobPoller, handle string, interval, overall time.Duration) (JobStatus, error) {
	start := c.now()
	var last JobStatus
	for polls := 1; ; polls++ {
		st, err := p.Status(ctx, handle)
		switch {
		case err != nil && ctx.Err() != nil:
			return last, failure.Fatal(op, ctx.Err())
		case err != nil && !IsRetryable(err):
			return last, failure.Fatal(op, err)
		case err != nil:
			c.log.Warn("backend: poll error, continuing", zap.String("op", op), zap.String("handle", handle), zap.Error(err))
		default:
			last = st
			switch st.State {
			case JobCompleted:
				c.log.Info("backend: job completed", zap.String("op", op), zap.String("handle", handle), zap.Int("polls", polls))
				return st, nil
			case JobFailed:
				msg := st.Error
				if msg == "" {
					msg = "job failed"
				}
				return st, failure.Fatal(op, errors.New(msg))
			}
		}

		elapsed := c.now().Sub(start)
		if elapsed >= overall {
			c.log.Warn("backend: job timed out", zap.String("op", op), zap.String("handle", handle), zap.Duration("elapsed", elapsed))
			return last, failure.Timeout(op, overall)
		}
		c.log.Debug("backend: job running", zap.String("op", op), zap.Duration("elapsed", elapsed))
		if err := c.sleep(ctx, interval); err != nil {
			return last, failure.Fatal(op, err)
		}
	}
}
