package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
)

// Task is one independent stage run of a fan-out.
type Task struct {
	Stage state.StageName
	Run   func(ctx context.Context) stage.Result
}

// FanOut runs independent stages concurrently. Unlike the sequential chain,
// a failing task does not cancel its siblings: each fan-out stage is
// committed or failed on its own.
type FanOut struct {
	session    string
	onProgress func(ProgressEvent)
}

// NewFanOut creates a FanOut for session. onProgress may be nil.
func NewFanOut(session string, onProgress func(ProgressEvent)) *FanOut {
	return &FanOut{session: session, onProgress: onProgress}
}

// Run starts every task and waits for all of them. Results are returned in
// task order together with the first failure, if any.
func (f *FanOut) Run(ctx context.Context, tasks []Task) ([]stage.Result, error) {
	results := make([]stage.Result, len(tasks))
	var g errgroup.Group

	for i, task := range tasks {
		f.emit(ProgressEvent{Session: f.session, Stage: task.Stage, Status: ProgressPending})

		g.Go(func() error {
			res := task.Run(ctx)
			results[i] = res
			if !res.Success {
				if res.Err == nil {
					return errNoResult(task.Stage)
				}
				return res.Err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

func (f *FanOut) emit(ev ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(ev)
	}
}
