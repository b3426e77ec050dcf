package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/config"
	"github.com/dusk-indust/scamshield/internal/logging"
	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/visual"
)

// offlinePoll keeps scripted research and clip polls short.
const offlinePoll = 10 * time.Millisecond

// app holds everything a subcommand needs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    state.Store
	orch     *orchestrator.Orchestrator
	progress *orchestrator.ProgressReporter
	out      io.Writer
	closers  []func() error
	watching chan struct{}
}

// newApp loads configuration and wires the store, backends and orchestrator.
func newApp(ctx context.Context, g globalFlags, out io.Writer) (*app, error) {
	cfg, err := config.LoadEnv(g.ConfigDir)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.Store != "" {
		cfg.Store.Kind = g.Store
	}
	if g.DB != "" {
		cfg.Store.Path = g.DB
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, out: out, progress: orchestrator.NewProgressReporter()}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	a.store, err = openStore(cfg.Store, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.wire(ctx, g.Offline); err != nil {
		a.Close()
		return nil, err
	}
	if g.Progress != nil {
		a.watch(g.Progress)
	}
	return a, nil
}

// watch prints progress events to w until the reporter is closed.
func (a *app) watch(w io.Writer) {
	a.watching = make(chan struct{})
	go func() {
		defer close(a.watching)
		for ev := range a.progress.Subscribe() {
			fmt.Fprintln(w, orchestrator.FormatProgress(ev))
		}
	}()
}

// openStore opens the configured session store.
func openStore(s config.Store, a *app) (state.Store, error) {
	switch s.Kind {
	case config.StoreMem:
		return state.NewMemStore(), nil
	case config.StoreFile:
		return state.NewFileStore(s.Path)
	case config.StoreKuzu:
		ks, err := state.NewKuzuFileStore(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open kuzu store: %w", err)
		}
		a.closers = append(a.closers, ks.Close)
		return ks, nil
	}
	return nil, fmt.Errorf("unknown store kind %q", s.Kind)
}

// backends groups the generator interfaces the pipeline draws on.
type backends struct {
	text   backend.TextGenerator
	stream backend.StreamGenerator
	poller backend.JobPoller
	images backend.ImageGenerator
	video  backend.VideoGenerator
}

func (a *app) wire(ctx context.Context, offline bool) error {
	var (
		b        backends
		interval = a.cfg.ResearchPoll.Interval
		timeout  = a.cfg.ResearchPoll.Timeout
		vcfg     = a.cfg.VisualConfig()
	)
	if offline {
		s := stage.ScriptOffline(backend.NewScripted())
		b = backends{text: s, stream: s, poller: s, images: s, video: s}
		interval = offlinePoll
		vcfg.PollInterval = offlinePoll
	} else {
		if a.cfg.APIKey == "" {
			return errors.New("GEMINI_API_KEY is not set (use --offline to run against scripted replies)")
		}
		gt, err := backend.NewGeminiText(ctx, a.cfg.APIKey)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, gt.Close)
		rest := backend.NewRESTClient(backend.WithAPIKey(a.cfg.APIKey))
		b = backends{text: gt, stream: rest, poller: rest, images: rest, video: rest}
	}

	opts := append(a.cfg.RunnerOptions(),
		stage.WithLogger(a.log),
		stage.WithStreaming(b.stream, b.poller, interval, timeout),
	)
	runner := stage.NewRunner(b.text, opts...)
	defs := stage.NewRegistry(a.cfg.Models)
	vp := visual.New(runner, defs, b.images, b.video, vcfg, visual.WithLogger(a.log))

	a.orch = orchestrator.New(a.store, runner, defs, a.cfg.Orchestrator(),
		orchestrator.WithLogger(a.log),
		orchestrator.WithProgress(a.progress),
		orchestrator.WithVisual(vp),
	)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	a.progress.Close()
	if a.watching != nil {
		<-a.watching
		if n := a.progress.Dropped(); n > 0 {
			a.log.Warn("progress events dropped", zap.Int64("dropped", n))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
}

// printf writes to the command's output.
func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
