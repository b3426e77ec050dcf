// Package orchestrator sequences stage runs for a session according to the
// stage graph:
//
//	intake → fact_sheet [verified] → script → translations → compliance_check
//	       → package_assembly → {visual_assets, social_strategy}
//
// Each operation loads the session from a state.Store, checks the stage's
// prerequisites, runs it and commits the output only when it succeeded.
// Earlier stages are never rolled back by a later failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/visual"
)

// Orchestrator runs pipeline operations against sessions in a store. It is
// safe for concurrent use; operations on the same session are serialized and
// different sessions proceed independently.
type Orchestrator struct {
	store    state.Store
	runner   *stage.Runner
	defs     *stage.Registry
	visual   *visual.Pipeline
	router   *Router
	progress *ProgressReporter
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	locks sessionLocks
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithProgress sends progress events to pr.
func WithProgress(pr *ProgressReporter) Option {
	return func(o *Orchestrator) { o.progress = pr }
}

// WithVisual enables the visual_assets stage.
func WithVisual(p *visual.Pipeline) Option {
	return func(o *Orchestrator) { o.visual = p }
}

// New returns an Orchestrator over store.
func New(store state.Store, runner *stage.Runner, defs *stage.Registry, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		runner: runner,
		defs:   defs,
		cfg:    cfg,
		log:    zap.NewNop(),
		now:    time.Now,
		locks:  sessionLocks{m: make(map[string]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.router = NewRouter()
	o.router.register(state.StageFactSheet, o.execFactSheet)
	o.router.register(state.StageScript, o.execScript)
	o.router.register(state.StageTranslations, o.execTranslations)
	o.router.register(state.StageCompliance, o.execCompliance)
	o.router.register(state.StagePackage, o.execPackage)
	o.router.register(state.StageSocial, o.execSocial)
	if o.visual != nil {
		o.router.register(state.StageVisual, o.execVisual)
	}
	return o
}

// Router returns the stage router, e.g. to inspect prerequisites.
func (o *Orchestrator) Router() *Router { return o.router }

// sessionLocks serializes operations per session id.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// session is the working copy of one PipelineState during an operation.
// Fan-out stages share it, so every access goes through mu.
type session struct {
	mu    sync.Mutex
	st    *state.PipelineState
	store state.Store
}

// snapshot returns a private deep copy of the state.
func (s *session) snapshot() *state.PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

// update applies fn and persists the result. When fn or the store fails the
// working copy is restored from before fn ran.
func (s *session) update(ctx context.Context, fn func(st *state.PipelineState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.st.Clone()
	if err := fn(s.st); err != nil {
		s.st = before
		return err
	}
	if err := s.store.Put(ctx, s.st); err != nil {
		s.st = before
		return fmt.Errorf("orchestrator: save session %s: %w", s.st.SessionID, err)
	}
	return nil
}

// open loads a session. An unknown id is a precondition error.
func (o *Orchestrator) open(ctx context.Context, op, id string) (*session, error) {
	if id == "" {
		return nil, failure.Precondition(op, "session id is required")
	}
	st, err := o.store.Get(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return nil, failure.Precondition(op, "unknown session %q", id)
	}
	if err != nil {
		return nil, failure.Fatal(op, err)
	}
	return &session{st: st, store: o.store}, nil
}

// openLocked loads a session for a caller holding its lock. No run of the
// session is live in this process then, so a stage still in_progress was
// cut off (process killed mid-stage); it is marked failed so it can be
// re-run.
func (o *Orchestrator) openLocked(ctx context.Context, op, id string) (*session, error) {
	sess, err := o.open(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !sess.snapshot().HasInProgress() {
		return sess, nil
	}
	var stale []state.StageName
	err = sess.update(ctx, func(st *state.PipelineState) error {
		stale = st.FailInterrupted(o.now())
		return nil
	})
	if err != nil {
		return nil, failure.Fatal(op, err)
	}
	for _, n := range stale {
		o.log.Warn("orchestrator: interrupted stage marked failed", zap.String("session", id), zap.String("stage", string(n)))
	}
	return sess, nil
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	o.progress.Emit(ev)
}

func errNoResult(name state.StageName) error {
	return failure.Fatal(string(name), errors.New("stage returned no result"))
}
