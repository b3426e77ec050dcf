package backend

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/failure"
)

// ThoughtSink receives progress thoughts in the order the backend emits them.
type ThoughtSink func(thought string)

// StreamOptions configures Stream's polling fallback and progress delivery.
type StreamOptions struct {
	Sink         ThoughtSink
	Poller       JobPoller
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// StreamOutcome is the text recovered from a streamed job. Partial is set
// when the stream broke after some text arrived; that text is returned as a
// lower-confidence success rather than discarded.
type StreamOutcome struct {
	Text    string
	Handle  string
	Partial bool
	Polled  bool
}

// Stream consumes a streamed job. Thoughts are forwarded to opts.Sink
// synchronously, one at a time. If the stream ends early, partial text is
// preferred; with no text but a job handle, the job is polled to completion.
func (c *Caller) Stream(ctx context.Context, op string, gen StreamGenerator, req StreamRequest, opts StreamOptions) (StreamOutcome, error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The stream outlives the open call, so no per-attempt timeout here.
	open := c.policy
	open.Timeout = 0
	events, err := Call(sctx, c.WithPolicy(open), op, func(ctx context.Context) (<-chan StreamEvent, error) {
		return gen.Stream(ctx, req)
	})
	if err != nil {
		return StreamOutcome{}, err
	}

	var (
		text      strings.Builder
		handle    string
		streamErr error
		completed bool
	)

loop:
	for ev := range events {
		if ev.Err != nil {
			c.log.Warn("backend: undecodable stream event", zap.String("op", op), zap.Error(ev.Err))
			continue
		}
		switch ev.Type {
		case EventStart:
			handle = ev.Handle
			c.log.Info("backend: stream started", zap.String("op", op), zap.String("handle", handle))
		case EventDelta:
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case DeltaThought:
				if opts.Sink != nil {
					opts.Sink(ev.Delta.Text)
				}
			default:
				text.WriteString(ev.Delta.Text)
			}
		case EventComplete:
			completed = true
			break loop
		case EventError:
			msg := ev.Message
			if msg == "" {
				msg = "stream error"
			}
			streamErr = errors.New(msg)
			break loop
		}
	}
	if streamErr == nil && !completed && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	out := StreamOutcome{Text: text.String(), Handle: handle}
	if completed && out.Text != "" {
		return out, nil
	}
	if !completed && out.Text != "" {
		out.Partial = true
		c.log.Warn("backend: stream interrupted, keeping partial text",
			zap.String("op", op), zap.Int("chars", len(out.Text)), zap.Error(streamErr))
		return out, nil
	}
	if handle != "" && opts.Poller != nil && ctx.Err() == nil {
		c.log.Warn("backend: stream ended without text, polling", zap.String("op", op), zap.String("handle", handle), zap.Error(streamErr))
		if opts.Sink != nil {
			opts.Sink("Reconnecting to research session...")
		}
		st, err := c.Poll(ctx, op, opts.Poller, handle, opts.PollInterval, opts.PollTimeout)
		if err != nil {
			return out, err
		}
		out.Text = st.Result
		out.Polled = true
		return out, nil
	}

	switch {
	case streamErr != nil && IsRetryable(streamErr):
		return out, failure.Transient(op, streamErr)
	case streamErr != nil:
		return out, failure.Fatal(op, streamErr)
	}
	return out, failure.Fatal(op, errors.New("stream ended without content or job handle"))
}
