// Package dispatch decides which modules a file-change event rebuilds.
//
// A Dispatcher serves one asset kind. Paths containing the module marker
// rebuild the module itself. Paths containing a partial marker rebuild
// every module that references the partial. Anything else is markup and
// follows the kind's markup policy. Module lists are enumerated afresh for
// every event.
package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/resolver"
	"github.com/conneroisu/assetkit/internal/source"
	"github.com/conneroisu/assetkit/internal/watcher"
)

// Action is the rebuild decision for one event.
type Action int

const (
	ActionIgnore Action = iota
	ActionModule
	ActionPartial
	ActionMarkup
)

func (a Action) String() string {
	switch a {
	case ActionModule:
		return "module"
	case ActionPartial:
		return "partial"
	case ActionMarkup:
		return "markup"
	default:
		return "ignore"
	}
}

// Plan is the action for one event and the modules it rebuilds.
type Plan struct {
	Action  Action
	Targets []string
}

// Scheduler accepts compilation requests. *build.Scheduler implements it.
type Scheduler interface {
	Submit(ctx context.Context, kind source.Kind, module string) *build.Task
	SubmitAll(ctx context.Context, kind source.Kind, modules []string) []*build.Task
	Go(fn func())
}

// Dispatcher turns events of one kind into scheduled compilations.
type Dispatcher struct {
	kind      source.Kind
	cfg       config.KindConfig
	resolver  resolver.Resolver
	scheduler Scheduler
	logger    logging.Logger
	enumerate func(patterns []string) ([]string, error)
}

// New creates a Dispatcher for kind.
func New(kind source.Kind, cfg config.KindConfig, res resolver.Resolver, scheduler Scheduler, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Dispatcher{
		kind:      kind,
		cfg:       cfg,
		resolver:  res,
		scheduler: scheduler,
		logger:    logger.WithComponent("dispatch").With("kind", kind),
		enumerate: source.Enumerate,
	}
}

// Kind returns the asset kind the dispatcher serves.
func (d *Dispatcher) Kind() source.Kind {
	return d.kind
}

// Classify picks the action for ev without touching the filesystem.
func (d *Dispatcher) Classify(ev watcher.ChangeEvent) Action {
	if !ev.Type.Actionable() {
		return ActionIgnore
	}

	path := filepath.ToSlash(ev.Path)
	if d.cfg.ModuleMarker != "" && strings.Contains(path, d.cfg.ModuleMarker) {
		return ActionModule
	}
	if len(d.cfg.PartialMarkers) == 0 {
		return ActionPartial
	}
	for _, marker := range d.cfg.PartialMarkers {
		if strings.Contains(path, marker) {
			return ActionPartial
		}
	}
	if d.cfg.MarkupPolicy == config.MarkupPolicyNone {
		return ActionIgnore
	}

	return ActionMarkup
}

// Plan classifies ev and computes the modules it rebuilds.
func (d *Dispatcher) Plan(ctx context.Context, ev watcher.ChangeEvent) (Plan, error) {
	action := d.Classify(ev)
	plan := Plan{Action: action}
	if action == ActionIgnore {
		return plan, nil
	}

	modules, err := d.enumerate(d.cfg.Modules)
	if err != nil {
		return plan, err
	}

	switch action {
	case ActionModule:
		for _, module := range modules {
			if source.SamePath(module, ev.Path) {
				plan.Targets = []string{module}
				break
			}
		}
		if len(plan.Targets) == 0 {
			d.logger.Debug(ctx, "No enumerated module matches path", "path", ev.Path)
		}
	case ActionPartial:
		plan.Targets, err = d.resolver.Resolve(ctx, ev.Path, modules)
		if err != nil {
			return plan, err
		}
	case ActionMarkup:
		plan.Targets = d.markupTargets(ctx, modules)
	}

	return plan, nil
}

func (d *Dispatcher) markupTargets(ctx context.Context, modules []string) []string {
	switch d.cfg.MarkupPolicy {
	case config.MarkupPolicyAll:
		return modules
	case config.MarkupPolicyUtility:
		for _, module := range modules {
			if source.SamePath(module, d.cfg.UtilityModule) {
				return []string{module}
			}
		}
		d.logger.Debug(ctx, "Utility module is not an enumerated module", "module", d.cfg.UtilityModule)
	}

	return nil
}

// Label is the human-readable line logged for an action.
func (d *Dispatcher) Label(action Action) string {
	switch action {
	case ActionModule:
		return "Module Changed: Rebuilding"
	case ActionPartial:
		return "Partial Changed: Rebuilding Parent Module"
	case ActionMarkup:
		if d.cfg.MarkupPolicy == config.MarkupPolicyAll {
			return "Markup Changed: Rebuilding All Modules"
		}
		return "Markup Changed: Rebuilding Utility Module"
	default:
		return "Ignored"
	}
}

// Dispatch logs ev and schedules its rebuild without blocking. Planning
// runs in a goroutine tracked by the scheduler; failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, ev watcher.ChangeEvent) {
	action := d.Classify(ev)
	logger := d.logger.With("dispatch_id", uuid.NewString())

	if action == ActionIgnore {
		logger.Debug(ctx, "Ignoring event", "event", ev.Type, "path", ev.Path)
		return
	}
	logger.Info(ctx, d.Label(action), "event", ev.Type, "path", ev.Path, "action", action)

	d.scheduler.Go(func() {
		plan, err := d.Plan(ctx, ev)
		if err != nil {
			logger.Error(ctx, err, "Cannot plan rebuild", "path", ev.Path)
			return
		}
		d.scheduler.SubmitAll(ctx, d.kind, plan.Targets)
		if len(plan.Targets) > 0 {
			logger.Debug(ctx, fmt.Sprintf("Scheduled %d module(s)", len(plan.Targets)), "targets", plan.Targets)
		}
	})
}

// DispatchAll dispatches a debounced batch in order. It is shaped as a
// watcher.ChangeHandler.
func (d *Dispatcher) DispatchAll(ctx context.Context) watcher.ChangeHandler {
	return func(events []watcher.ChangeEvent) error {
		for _, ev := range events {
			if source.Match(d.cfg.Watch, ev.Path) {
				d.Dispatch(ctx, ev)
			}
		}
		return nil
	}
}

// BuildAll submits every enumerated module and returns the task handles.
func (d *Dispatcher) BuildAll(ctx context.Context) ([]*build.Task, error) {
	modules, err := d.enumerate(d.cfg.Modules)
	if err != nil {
		return nil, err
	}
	d.logger.Info(ctx, fmt.Sprintf("Building all %s modules", d.kind), "modules", len(modules))

	return d.scheduler.SubmitAll(ctx, d.kind, modules), nil
}
