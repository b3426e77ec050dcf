package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Compile-time interface checks.
var (
	_ TextGenerator   = (*Scripted)(nil)
	_ StreamGenerator = (*Scripted)(nil)
	_ ImageGenerator  = (*Scripted)(nil)
	_ VideoGenerator  = (*Scripted)(nil)
)

// Reply is one scripted text response.
type Reply struct {
	Text string
	Err  error
}

// Text and Fail build replies.
func Text(s string) Reply  { return Reply{Text: s} }
func Fail(err error) Reply { return Reply{Err: err} }

// Scripted is an in-memory backend returning canned responses. Text replies
// are keyed by TextRequest.Tag and consumed in order; the last reply for a
// tag repeats. It backs offline runs and tests.
type Scripted struct {
	mu sync.Mutex

	replies   map[string][]Reply
	textCalls map[string][]TextRequest

	streamEvents []StreamEvent
	streamErr    error
	statuses     map[string][]JobStatus

	imageFn    func(ImageRequest) ([]byte, error)
	imageCalls []ImageRequest

	videoCalls []VideoRequest
	videoFn    func(VideoRequest) error
}

// NewScripted returns an empty script. Unscripted text tags fail fatally.
func NewScripted() *Scripted {
	return &Scripted{
		replies:   make(map[string][]Reply),
		textCalls: make(map[string][]TextRequest),
		statuses:  make(map[string][]JobStatus),
	}
}

// OnText appends replies for tag.
func (s *Scripted) OnText(tag string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[tag] = append(s.replies[tag], replies...)
	return s
}

// OnStream sets the events every Stream call delivers, or the error it
// returns when opening.
func (s *Scripted) OnStream(events []StreamEvent, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamEvents = events
	s.streamErr = err
	return s
}

// OnStatus scripts successive poll results for handle; the last repeats.
func (s *Scripted) OnStatus(handle string, statuses ...JobStatus) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[handle] = append(s.statuses[handle], statuses...)
	return s
}

// OnImage replaces the default image function.
func (s *Scripted) OnImage(fn func(ImageRequest) ([]byte, error)) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageFn = fn
	return s
}

// OnVideo installs a hook consulted before each submission; a non-nil error
// fails the submission.
func (s *Scripted) OnVideo(fn func(VideoRequest) error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoFn = fn
	return s
}

// TextCalls returns the requests made for tag.
func (s *Scripted) TextCalls(tag string) []TextRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TextRequest(nil), s.textCalls[tag]...)
}

// ImageCalls returns every image request made so far.
func (s *Scripted) ImageCalls() []ImageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImageRequest(nil), s.imageCalls...)
}

// VideoCalls returns every video submission made so far.
func (s *Scripted) VideoCalls() []VideoRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VideoRequest(nil), s.videoCalls...)
}

// Generate implements TextGenerator.
func (s *Scripted) Generate(ctx context.Context, req TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.textCalls[req.Tag])
	s.textCalls[req.Tag] = append(s.textCalls[req.Tag], req)
	replies := s.replies[req.Tag]
	if len(replies) == 0 {
		return "", fmt.Errorf("scripted: no reply for %q", req.Tag)
	}
	r := replies[min(n, len(replies)-1)]
	return r.Text, r.Err
}

// Stream implements StreamGenerator.
func (s *Scripted) Stream(ctx context.Context, _ StreamRequest) (<-chan StreamEvent, error) {
	s.mu.Lock()
	events, err := s.streamEvents, s.streamErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Status implements JobPoller. Video operations without a script complete
// immediately with an asset named after the operation.
func (s *Scripted) Status(ctx context.Context, handle string) (JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return JobStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.statuses[handle]
	if len(list) == 0 {
		if strings.HasPrefix(handle, "operations/") {
			return JobStatus{State: JobCompleted, Result: "asset/" + strings.TrimPrefix(handle, "operations/")}, nil
		}
		return JobStatus{}, fmt.Errorf("scripted: unknown job %q", handle)
	}
	st := list[0]
	if len(list) > 1 {
		s.statuses[handle] = list[1:]
	}
	return st, nil
}

// GenerateImage implements ImageGenerator. The default returns a small
// deterministic payload derived from the prompt.
func (s *Scripted) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.imageCalls = append(s.imageCalls, req)
	fn := s.imageFn
	s.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return []byte("\x89PNG scripted " + truncate(req.Prompt, 32)), nil
}

// SubmitVideo implements VideoGenerator.
func (s *Scripted) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.videoCalls = append(s.videoCalls, req)
	n := len(s.videoCalls)
	fn := s.videoFn
	s.mu.Unlock()
	if fn != nil {
		if err := fn(req); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("operations/clip-%d", n), nil
}

// FetchVideo implements VideoGenerator.
func (s *Scripted) FetchVideo(ctx context.Context, asset string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("scripted video " + asset), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
