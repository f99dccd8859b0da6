package api

import (
	"context"
	"sync"

	"github.com/ridgeline-data/segment.report/internal/fault"
)

// run is one in-flight planning computation. Progress is the latest event
// from the pipeline, read back when clients poll the project.
type run struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	stage   string
	percent float64
}

// observe is the pipeline's progress sink.
func (r *run) observe(stage string, percent float64) {
	r.mu.Lock()
	r.stage = stage
	r.percent = percent
	r.mu.Unlock()
}

func (r *run) snapshot() (string, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage, r.percent
}

// runner tracks the in-process computation per project so cancellation can
// reach the pipeline context. The database status row is the authority on
// whether a run may start; this map only holds the live handles.
type runner struct {
	mu     sync.Mutex
	active map[string]*run
}

func newRunner() *runner {
	return &runner{active: make(map[string]*run)}
}

// start registers a run for the project and returns its context.
func (rn *runner) start(projectID string) (*run, context.Context, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if _, ok := rn.active[projectID]; ok {
		return nil, nil, fault.New(fault.Conflict, "project %s already has a run in flight", projectID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}
	rn.active[projectID] = r
	return r, ctx, nil
}

func (rn *runner) finish(projectID string) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if r, ok := rn.active[projectID]; ok {
		r.cancel()
		delete(rn.active, projectID)
	}
}

// get returns the live run for a project, if any.
func (rn *runner) get(projectID string) (*run, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	r, ok := rn.active[projectID]
	return r, ok
}

// signalCancel fires the run's context. The status row is flipped to
// cancelling separately; this just interrupts the pipeline.
func (rn *runner) signalCancel(projectID string) bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	r, ok := rn.active[projectID]
	if ok {
		r.cancel()
	}
	return ok
}
