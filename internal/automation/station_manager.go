package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

type stationEntry struct {
	station *Station
	number  int
	flow    *Workflow
	cond    *Condition
}

// StationManager runs a station's flow when the station's feedback port fires.
//
// The flow is the station's inline Flow or, failing that, the project
// workflow named by WorkflowID. Debounce comes from the resolved workflow.
// Stations without a flow are ignored.
//
// Thread Safety: All methods are safe for concurrent use.
type StationManager struct {
	runner

	caps       Capabilities
	entries    []stationEntry
	byPort     map[uint32][]int
	dispatcher *Dispatcher

	unsubscribe func()
	disposeOnce sync.Once
}

// NewStationManager creates a manager over a snapshot of project's stations.
// A nil source leaves feedback to HandleFeedback.
func NewStationManager(source FeedbackSource, project *Project, executor *Executor, caps Capabilities, opts ManagerOptions) (*StationManager, error) {
	m := &StationManager{
		runner:     runner{executor: executor, opts: opts.withDefaults()},
		caps:       caps,
		byPort:     make(map[uint32][]int),
		dispatcher: NewDispatcher(),
	}

	workflows := indexWorkflows(project.Workflows)
	seen := make(map[string]struct{}, len(project.Stations))
	for i := range project.Stations {
		entry := stationEntry{
			station: project.Stations[i].DeepCopy(),
			number:  i + 1,
		}
		if _, dup := seen[entry.station.ID]; dup {
			return nil, fmt.Errorf("station %q: %w: id %s", entry.station.Name, ErrAlreadyExists, entry.station.ID)
		}
		seen[entry.station.ID] = struct{}{}
		entry.flow = resolveFlow(entry.station, workflows)
		if entry.flow != nil {
			cond, err := CompileCondition(entry.flow.Condition)
			if err != nil {
				return nil, fmt.Errorf("station %q: %w", entry.station.Name, err)
			}
			entry.cond = cond
		}
		m.byPort[entry.station.InPort] = append(m.byPort[entry.station.InPort], len(m.entries))
		m.entries = append(m.entries, entry)
	}

	if source != nil {
		m.unsubscribe = source.OnFeedback(m.HandleFeedback)
	}
	m.opts.Logger.Info("station manager started", "stations", len(m.entries))
	return m, nil
}

// HandleFeedback dispatches ev to every station listening on its port.
func (m *StationManager) HandleFeedback(ev z21.FeedbackEvent) {
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	for _, idx := range m.byPort[ev.Port] {
		entry := m.entries[idx]
		st := entry.station

		if entry.flow == nil {
			m.opts.Logger.Debug("station has no flow", "station", st.Name, "port", ev.Port)
			m.opts.Recorder.TriggerSkipped(TriggerStation, skipNoFlow)
			continue
		}

		ok, err := entry.cond.Evaluate(ev.Port, st.Name, at)
		if err != nil {
			m.opts.Logger.Warn("station condition failed", "station", st.Name, "error", err)
			continue
		}
		if !ok {
			m.opts.Recorder.TriggerSkipped(TriggerStation, skipCondition)
			continue
		}

		ec := NewExecutionContext(m.caps)
		ec.Station = st
		ec.StationNumber = entry.number

		t := trigger{
			kind:     TriggerStation,
			id:       st.ID,
			name:     st.Name,
			port:     ev.Port,
			workflow: entry.flow,
			ec:       ec,
		}
		if !m.dispatcher.Dispatch(st.ID, entry.flow.DebounceInterval(), func() { m.run(context.Background(), t) }) {
			m.opts.Logger.Debug("station skipped, debouncing or queue full", "station", st.Name, "port", ev.Port)
			m.opts.Recorder.TriggerSkipped(TriggerStation, skipDebounce)
		}
	}
}

// OnExecution registers fn for every finished execution.
func (m *StationManager) OnExecution(fn func(Execution)) func() {
	return m.execSubs.add(fn)
}

// IsDebouncing reports whether the station's debounce timer is active.
func (m *StationManager) IsDebouncing(stationID string) bool {
	return m.dispatcher.IsDebouncing(stationID)
}

// ResetAll cancels all debounce timers.
func (m *StationManager) ResetAll() {
	m.dispatcher.ResetAll()
	m.opts.Logger.Info("station manager reset")
}

// Wait blocks until every running execution has finished.
func (m *StationManager) Wait() {
	m.dispatcher.Wait()
}

// Dispose unsubscribes, stops timers and waits for running executions.
// Safe to call multiple times.
func (m *StationManager) Dispose() {
	m.disposeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.dispatcher.Dispose()
		m.opts.Logger.Info("station manager disposed")
	})
}

// indexWorkflows maps workflow IDs to independent copies.
func indexWorkflows(workflows []Workflow) map[string]*Workflow {
	out := make(map[string]*Workflow, len(workflows))
	for i := range workflows {
		out[workflows[i].ID] = workflows[i].DeepCopy()
	}
	return out
}

// resolveFlow returns the station's inline flow or its referenced workflow.
func resolveFlow(s *Station, workflows map[string]*Workflow) *Workflow {
	if s.Flow != nil {
		return s.Flow
	}
	if s.WorkflowID == "" {
		return nil
	}
	return workflows[s.WorkflowID]
}
