package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// Skip reasons reported to the Recorder.
const (
	skipDebounce  = "debounce"
	skipCondition = "condition"
	skipNoFlow    = "no_flow"
	skipInactive  = "inactive"
)

type workflowEntry struct {
	workflow *Workflow
	cond     *Condition
}

// WorkflowManager runs project workflows when their feedback port fires.
//
// Every workflow whose InPort matches the event is handled independently.
// Workflows sharing a port run concurrently and in no particular order.
//
// Thread Safety: All methods are safe for concurrent use.
type WorkflowManager struct {
	runner

	caps       Capabilities
	entries    []workflowEntry
	byPort     map[uint32][]int
	dispatcher *Dispatcher

	unsubscribe func()
	disposeOnce sync.Once
}

// NewWorkflowManager creates a manager over a snapshot of workflows and
// subscribes it to source. A nil source leaves feedback to HandleFeedback.
//
// Parameters:
//   - source: Feedback event source, typically *z21.Client
//   - workflows: Workflow definitions; copied on construction
//   - executor: Executes action lists
//   - caps: Capabilities handed to every execution
//   - opts: Optional logger, recorder and execution log
//
// Returns:
//   - *WorkflowManager: Ready manager
//   - error: ErrInvalidCondition if a workflow condition does not compile
func NewWorkflowManager(source FeedbackSource, workflows []Workflow, executor *Executor, caps Capabilities, opts ManagerOptions) (*WorkflowManager, error) {
	m := &WorkflowManager{
		runner:     runner{executor: executor, opts: opts.withDefaults()},
		caps:       caps,
		byPort:     make(map[uint32][]int),
		dispatcher: NewDispatcher(),
	}

	for i := range workflows {
		wf := workflows[i].DeepCopy()
		cond, err := CompileCondition(wf.Condition)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		m.byPort[wf.InPort] = append(m.byPort[wf.InPort], len(m.entries))
		m.entries = append(m.entries, workflowEntry{workflow: wf, cond: cond})
	}

	if source != nil {
		m.unsubscribe = source.OnFeedback(m.HandleFeedback)
	}
	m.opts.Logger.Info("workflow manager started", "workflows", len(m.entries))
	return m, nil
}

// HandleFeedback dispatches ev to every workflow listening on its port.
func (m *WorkflowManager) HandleFeedback(ev z21.FeedbackEvent) {
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	for _, idx := range m.byPort[ev.Port] {
		entry := m.entries[idx]
		wf := entry.workflow

		ok, err := entry.cond.Evaluate(ev.Port, wf.Name, at)
		if err != nil {
			m.opts.Logger.Warn("workflow condition failed", "workflow", wf.Name, "error", err)
			continue
		}
		if !ok {
			m.opts.Logger.Debug("workflow condition false", "workflow", wf.Name, "port", ev.Port)
			m.opts.Recorder.TriggerSkipped(TriggerWorkflow, skipCondition)
			continue
		}

		t := trigger{
			kind:     TriggerWorkflow,
			id:       wf.ID,
			name:     wf.Name,
			port:     ev.Port,
			workflow: wf,
			ec:       NewExecutionContext(m.caps),
		}
		if !m.dispatcher.Dispatch(wf.ID, wf.DebounceInterval(), func() { m.run(context.Background(), t) }) {
			m.opts.Logger.Debug("workflow skipped, debouncing or queue full", "workflow", wf.Name, "port", ev.Port)
			m.opts.Recorder.TriggerSkipped(TriggerWorkflow, skipDebounce)
		}
	}
}

// OnExecution registers fn for every finished execution.
func (m *WorkflowManager) OnExecution(fn func(Execution)) func() {
	return m.execSubs.add(fn)
}

// Workflows returns copies of the managed workflows.
func (m *WorkflowManager) Workflows() []Workflow {
	out := make([]Workflow, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e.workflow.DeepCopy()
	}
	return out
}

// IsDebouncing reports whether the workflow's debounce timer is active.
func (m *WorkflowManager) IsDebouncing(workflowID string) bool {
	return m.dispatcher.IsDebouncing(workflowID)
}

// ResetAll cancels all debounce timers. Definitions are untouched.
func (m *WorkflowManager) ResetAll() {
	m.dispatcher.ResetAll()
	m.opts.Logger.Info("workflow manager reset")
}

// Wait blocks until every running execution has finished.
func (m *WorkflowManager) Wait() {
	m.dispatcher.Wait()
}

// Dispose unsubscribes from feedback, stops all timers and waits for
// running executions. Safe to call multiple times.
func (m *WorkflowManager) Dispose() {
	m.disposeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.dispatcher.Dispose()
		m.opts.Logger.Info("workflow manager disposed")
	})
}
