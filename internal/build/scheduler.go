package build

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/source"
)

// Result is the outcome of one module compilation.
type Result struct {
	Kind      source.Kind
	Module    string
	Artifacts []string
	Warnings  []errors.BuildError
	Duration  time.Duration
	Err       error
}

// BuildCallback receives every finished Result.
type BuildCallback func(Result)

// Task is the handle of one requested compilation.
type Task struct {
	Kind   source.Kind
	Module string

	ctx    context.Context
	done   chan struct{}
	result Result
}

func newTask(ctx context.Context, kind source.Kind, module string) *Task {
	return &Task{
		Kind:   kind,
		Module: module,
		ctx:    ctx,
		done:   make(chan struct{}),
	}
}

// Done is closed once the compilation finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the compilation finished or ctx is done and returns the
// compilation error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.result.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (t *Task) Result() Result {
	<-t.done
	return t.result
}

func (t *Task) finish(r Result) {
	t.result = r
	close(t.done)
}

type slotKey struct {
	kind   source.Kind
	module string
}

// slot exists while a build for its module runs. pending is the single
// follow-up build that every request arriving meanwhile shares.
type slot struct {
	pending *Task
}

// Scheduler runs compilations in their own goroutines, keeping at most one
// build per (kind, module) in flight.
type Scheduler struct {
	compilers map[source.Kind]Compiler
	logger    logging.Logger
	metrics   *BuildMetrics
	recorder  Recorder

	mu        sync.Mutex
	slots     map[slotKey]*slot
	callbacks []BuildCallback
	inFlight  int

	wg sync.WaitGroup
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRecorder exports observations through r.
func WithRecorder(r Recorder) SchedulerOption {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithMetrics shares m instead of a private BuildMetrics.
func WithMetrics(m *BuildMetrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a Scheduler dispatching to compilers by kind.
func NewScheduler(logger logging.Logger, compilers []Compiler, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	s := &Scheduler{
		compilers: make(map[source.Kind]Compiler, len(compilers)),
		logger:    logger.WithComponent("scheduler"),
		metrics:   NewBuildMetrics(),
		recorder:  NoopRecorder{},
		slots:     make(map[slotKey]*slot),
	}
	for _, c := range compilers {
		s.compilers[c.Kind()] = c
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AddCallback registers a callback for build completion events.
// Callbacks are called synchronously for each build result.
func (s *Scheduler) AddCallback(callback BuildCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks = append(s.callbacks, callback)
}

// Metrics returns the scheduler's build metrics.
func (s *Scheduler) Metrics() *BuildMetrics {
	return s.metrics
}

// Submit requests a compilation of module. When no build of the module is
// running one starts immediately. Otherwise the returned Task is the single
// follow-up build that starts when the running one ends; every request made
// before then shares it.
func (s *Scheduler) Submit(ctx context.Context, kind source.Kind, module string) *Task {
	key := slotKey{kind: kind, module: filepath.Clean(module)}

	s.mu.Lock()
	if sl, running := s.slots[key]; running {
		if sl.pending == nil {
			sl.pending = newTask(ctx, kind, module)
		} else {
			s.metrics.RecordCoalesced()
			s.recorder.IncCoalesced(kind)
		}
		task := sl.pending
		s.mu.Unlock()
		s.logger.Debug(ctx, "Build queued behind running build", "kind", kind, "module", module)
		return task
	}

	task := newTask(ctx, kind, module)
	s.slots[key] = &slot{}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(key, task)

	return task
}

// SubmitAll submits every module separately so one broken module does not
// hold back the others.
func (s *Scheduler) SubmitAll(ctx context.Context, kind source.Kind, modules []string) []*Task {
	tasks := make([]*Task, 0, len(modules))
	for _, module := range modules {
		tasks = append(tasks, s.Submit(ctx, kind, module))
	}

	return tasks
}

// Go runs fn in a goroutine that Wait accounts for.
func (s *Scheduler) Go(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every submitted build and every Go function finished.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(key slotKey, task *Task) {
	defer s.wg.Done()

	for task != nil {
		s.execute(task)

		s.mu.Lock()
		sl := s.slots[key]
		task, sl.pending = sl.pending, nil
		if task == nil {
			delete(s.slots, key)
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) execute(task *Task) {
	ctx := task.ctx
	s.adjustInFlight(1)
	defer s.adjustInFlight(-1)

	op := logging.StartOperation(s.logger, "build", "kind", task.Kind, "module", task.Module)

	result := Result{Kind: task.Kind, Module: task.Module}
	compiler, ok := s.compilers[task.Kind]
	if !ok {
		result.Err = errors.NewInternalError("NO_COMPILER", fmt.Sprintf("no compiler registered for %s", task.Kind), nil)
	} else if err := ctx.Err(); err != nil {
		result.Err = err
	} else {
		out, err := compiler.Compile(ctx, []string{task.Module})
		if out != nil {
			result.Artifacts = out.Artifacts
			result.Warnings = out.Warnings
		}
		result.Err = err
	}

	if result.Err != nil {
		result.Duration = op.EndWithError(ctx, result.Err, "Build failed")
	} else {
		result.Duration = op.End(ctx, fmt.Sprintf("%s built in %dms", task.Module, op.Elapsed().Milliseconds()))
	}
	for i := range result.Warnings {
		s.logger.Warn(ctx, &result.Warnings[i], "Build warning", "module", task.Module)
	}

	s.metrics.RecordBuild(result)
	s.recorder.ObserveBuild(task.Kind, result.Duration, result.Err)

	s.mu.Lock()
	callbacks := make([]BuildCallback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, callback := range callbacks {
		callback(result)
	}

	task.finish(result)
}

func (s *Scheduler) adjustInFlight(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight += delta
	s.recorder.SetInFlight(s.inFlight)
}
