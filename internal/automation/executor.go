package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans created by this package.
const tracerName = "github.com/ahuelsmann/MOBAflow-sub003/internal/automation"

// Action results reported to the Recorder.
const (
	resultOK      = "ok"
	resultError   = "error"
	resultSkipped = "skipped"
)

// Recorder receives execution measurements. The metrics package implements it.
type Recorder interface {
	ActionExecuted(actionType ActionType, result string, d time.Duration)
	TriggerExecuted(kind TriggerKind, status ExecutionStatus, d time.Duration)
	TriggerSkipped(kind TriggerKind, reason string)
	StationReached(journey string)
}

type noopRecorder struct{}

func (noopRecorder) ActionExecuted(ActionType, string, time.Duration)            {}
func (noopRecorder) TriggerExecuted(TriggerKind, ExecutionStatus, time.Duration) {}
func (noopRecorder) TriggerSkipped(TriggerKind, string)                          {}
func (noopRecorder) StationReached(string)                                       {}

// Executor runs action lists against an ExecutionContext.
//
// Sequential mode runs actions strictly in order and stops at the first
// failure. Parallel mode starts every action at once and joins the errors.
//
// Thread Safety: Execute is safe for concurrent use. Configure the tracer and
// recorder before the first execution.
type Executor struct {
	logger   Logger
	tracer   trace.Tracer
	recorder Recorder
}

// NewExecutor creates an executor using the global OpenTelemetry tracer.
func NewExecutor(logger Logger) *Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		recorder: noopRecorder{},
	}
}

// SetTracer replaces the tracer.
func (e *Executor) SetTracer(tracer trace.Tracer) {
	if tracer != nil {
		e.tracer = tracer
	}
}

// SetRecorder installs a measurement sink.
func (e *Executor) SetRecorder(r Recorder) {
	if r != nil {
		e.recorder = r
	}
}

// Execute runs actions with the given mode.
//
// Parameters:
//   - ctx: Context for cancellation; cancellation stops pending delays
//   - actions: Ordered action list
//   - mode: ModeSequential (default when empty) or ModeParallel
//   - ec: Capabilities and announcement context; nil means no capabilities
//
// Returns:
//   - error: nil on success; an *ActionError (sequential) or a join of
//     *ActionError values (parallel). Use errors.Is with ErrInvalidArgument
//     or ErrNotSupported to detect configuration problems.
func (e *Executor) Execute(ctx context.Context, actions []Action, mode ExecutionMode, ec *ExecutionContext) error {
	return e.run(ctx, "", actions, mode, ec)
}

// ExecuteWorkflow runs a workflow's actions in its configured mode.
func (e *Executor) ExecuteWorkflow(ctx context.Context, wf *Workflow, ec *ExecutionContext) error {
	return e.run(ctx, wf.Name, wf.Actions, wf.ExecutionMode, ec)
}

func (e *Executor) run(ctx context.Context, workflow string, actions []Action, mode ExecutionMode, ec *ExecutionContext) error {
	if ec == nil {
		ec = &ExecutionContext{}
	}
	if mode == "" {
		mode = ModeSequential
	}

	ctx, span := e.tracer.Start(ctx, "automation.execute",
		trace.WithAttributes(
			attribute.String("workflow", workflow),
			attribute.String("mode", string(mode)),
			attribute.Int("actions", len(actions)),
		),
	)
	defer span.End()

	var err error
	switch mode {
	case ModeParallel:
		err = e.runParallel(ctx, workflow, actions, ec)
	default:
		err = e.runSequential(ctx, workflow, actions, ec)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Executor) runSequential(ctx context.Context, workflow string, actions []Action, ec *ExecutionContext) error {
	for i := range actions {
		action := &actions[i]
		if err := e.executeAction(ctx, action, ec); err != nil {
			return &ActionError{Workflow: workflow, Action: action.Name, Type: action.Type, Err: err}
		}
		if action.DelayAfterMs > 0 {
			if !sleepCtx(ctx, time.Duration(action.DelayAfterMs)*time.Millisecond) {
				return fmt.Errorf("workflow %q interrupted after %q: %w", workflow, action.Name, ctx.Err())
			}
		}
	}
	return nil
}

// runParallel ignores DelayAfterMs; there is no sequence to pause.
func (e *Executor) runParallel(ctx context.Context, workflow string, actions []Action, ec *ExecutionContext) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i := range actions {
		wg.Add(1)
		go func(action *Action) {
			defer wg.Done()
			if err := e.executeAction(ctx, action, ec); err != nil {
				mu.Lock()
				errs = append(errs, &ActionError{Workflow: workflow, Action: action.Name, Type: action.Type, Err: err})
				mu.Unlock()
			}
		}(&actions[i])
	}

	wg.Wait()
	return errors.Join(errs...)
}

// executeAction dispatches one action on its tag.
func (e *Executor) executeAction(ctx context.Context, action *Action, ec *ExecutionContext) error {
	ctx, span := e.tracer.Start(ctx, "automation.action",
		trace.WithAttributes(
			attribute.String("action", action.Name),
			attribute.String("type", string(action.Type)),
		),
	)
	defer span.End()

	start := time.Now()
	ran, err := e.dispatch(ctx, action, ec)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.recorder.ActionExecuted(action.Type, resultError, elapsed)
	case !ran:
		span.SetAttributes(attribute.Bool("skipped", true))
		e.recorder.ActionExecuted(action.Type, resultSkipped, elapsed)
	default:
		e.recorder.ActionExecuted(action.Type, resultOK, elapsed)
	}
	return err
}

// dispatch reports ran=false when the action was a silent no-op.
func (e *Executor) dispatch(ctx context.Context, action *Action, ec *ExecutionContext) (ran bool, err error) {
	switch action.Type {
	case ActionCommand:
		return e.executeCommand(ctx, action, ec)
	case ActionAudio:
		return e.executeAudio(ctx, action, ec)
	case ActionAnnouncement:
		return e.executeAnnouncement(ctx, action, ec)
	default:
		return false, fmt.Errorf("%w: %q", ErrNotSupported, action.Type)
	}
}

func (e *Executor) executeCommand(ctx context.Context, action *Action, ec *ExecutionContext) (bool, error) {
	if action.Command == nil || len(action.Command.Bytes) == 0 {
		return false, fmt.Errorf("%w: command action %q has no bytes", ErrInvalidArgument, action.Name)
	}
	if ec.Sender == nil {
		return false, nil
	}
	if err := ec.Sender.SendCommand(ctx, action.Command.Bytes); err != nil {
		return true, fmt.Errorf("sending command: %w", err)
	}
	e.logger.Debug("command action sent", "action", action.Name, "bytes", len(action.Command.Bytes))
	return true, nil
}

func (e *Executor) executeAudio(ctx context.Context, action *Action, ec *ExecutionContext) (bool, error) {
	if action.Audio == nil || action.Audio.FilePath == "" || ec.Player == nil {
		return false, nil
	}
	if err := ec.Player.Play(ctx, action.Audio.FilePath); err != nil {
		return true, fmt.Errorf("playing %q: %w", action.Audio.FilePath, err)
	}
	e.logger.Debug("audio action played", "action", action.Name, "file", action.Audio.FilePath)
	return true, nil
}

func (e *Executor) executeAnnouncement(ctx context.Context, action *Action, ec *ExecutionContext) (bool, error) {
	var template, voice string
	if action.Announcement != nil {
		template = action.Announcement.Text
		voice = action.Announcement.VoiceID
	}
	if ec.JourneyTemplate != "" {
		template = ec.JourneyTemplate
	}

	text := ResolveAnnouncement(template, ec.Station, ec.StationNumber)
	if text == "" || ec.Speech == nil {
		return false, nil
	}
	if err := ec.Speech.Speak(ctx, text, voice); err != nil {
		return true, fmt.Errorf("speaking announcement: %w", err)
	}
	e.logger.Debug("announcement spoken", "action", action.Name, "text", text)
	return true, nil
}

// sleepCtx waits for d or until ctx is done. It reports whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
