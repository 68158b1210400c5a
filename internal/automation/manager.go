package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// executionLogTimeout bounds writing one execution record.
const executionLogTimeout = 5 * time.Second

// FeedbackSource delivers feedback events. *z21.Client satisfies it.
type FeedbackSource interface {
	OnFeedback(fn func(z21.FeedbackEvent)) func()
}

// ExecutionLog persists execution records.
type ExecutionLog interface {
	CreateExecution(ctx context.Context, exec *Execution) error
}

// SessionStore persists journey sessions and the trip log.
type SessionStore interface {
	SaveSession(ctx context.Context, state JourneyState) error
	LoadSessions(ctx context.Context) ([]JourneyState, error)
	AppendTrip(ctx context.Context, reached StationReached) error
}

// ManagerOptions holds the optional collaborators shared by all managers.
// Sessions is only used by the JourneyManager.
type ManagerOptions struct {
	Logger       Logger
	Recorder     Recorder
	ExecutionLog ExecutionLog
	Sessions     SessionStore
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Recorder == nil {
		o.Recorder = noopRecorder{}
	}
	return o
}

// observers is an ordered callback list with token-based removal.
type observers[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]func(T)
	order  []uint64
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	if o.fns == nil {
		o.fns = make(map[uint64]func(T))
	}
	o.nextID++
	id := o.nextID
	o.fns[id] = fn
	o.order = append(o.order, id)
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			for i, v := range o.order {
				if v == id {
					o.order = append(o.order[:i:i], o.order[i+1:]...)
					break
				}
			}
			o.mu.Unlock()
		})
	}
}

// notify calls every observer synchronously, containing panics.
func (o *observers[T]) notify(logger Logger, v T) {
	o.mu.RLock()
	fns := make([]func(T), 0, len(o.order))
	for _, id := range o.order {
		fns = append(fns, o.fns[id])
	}
	o.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("observer panic", "panic", r)
				}
			}()
			fn(v)
		}()
	}
}

// trigger is one resolved unit of work for the runner.
type trigger struct {
	kind     TriggerKind
	id       string
	name     string
	port     uint32
	workflow *Workflow
	ec       *ExecutionContext
}

// runner executes triggers and records the outcome. It is shared by the
// workflow and station managers.
type runner struct {
	executor *Executor
	opts     ManagerOptions
	execSubs observers[Execution]
}

// run executes t and never panics. Errors are logged with trigger and
// action names.
func (r *runner) run(ctx context.Context, t trigger) {
	start := time.Now()
	exec := Execution{
		ID:           GenerateID(),
		TriggerKind:  t.kind,
		TriggerID:    t.id,
		TriggerName:  t.name,
		Port:         t.port,
		StartedAt:    start.UTC(),
		Status:       StatusCompleted,
		ActionsTotal: len(t.workflow.Actions),
	}

	err := r.safeExecute(ctx, t)
	elapsed := time.Since(start)
	exec.DurationMS = int(elapsed.Milliseconds())

	if err != nil {
		exec.Status = StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			exec.Status = StatusCancelled
		}
		exec.Error = err.Error()

		var actionErr *ActionError
		if errors.As(err, &actionErr) {
			r.opts.Logger.Error("trigger execution failed",
				"kind", t.kind,
				"trigger", t.name,
				"action", actionErr.Action,
				"error", err,
			)
		} else {
			r.opts.Logger.Error("trigger execution failed", "kind", t.kind, "trigger", t.name, "error", err)
		}
	} else {
		r.opts.Logger.Info("trigger executed",
			"kind", t.kind,
			"trigger", t.name,
			"port", t.port,
			"duration_ms", exec.DurationMS,
		)
	}

	r.opts.Recorder.TriggerExecuted(t.kind, exec.Status, elapsed)

	if r.opts.ExecutionLog != nil {
		logCtx, cancel := context.WithTimeout(context.Background(), executionLogTimeout)
		if logErr := r.opts.ExecutionLog.CreateExecution(logCtx, &exec); logErr != nil {
			r.opts.Logger.Warn("failed to record execution", "trigger", t.name, "error", logErr)
		}
		cancel()
	}

	r.execSubs.notify(r.opts.Logger, exec)
}

func (r *runner) safeExecute(ctx context.Context, t trigger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during execution: %v", p)
		}
	}()
	return r.executor.ExecuteWorkflow(ctx, t.workflow, t.ec)
}
