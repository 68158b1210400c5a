package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

const (
	// journeyQueueSize bounds feedback waiting for the journey worker.
	journeyQueueSize = 256

	// sessionStoreTimeout bounds one session store call.
	sessionStoreTimeout = 5 * time.Second
)

type journeyEntry struct {
	journey *Journey
	flows   []*Workflow // resolved flow per station index, nil when none
}

// JourneyManager counts laps per journey and advances through its stations.
//
// Each matching feedback increments the journey's counter. When the counter
// reaches the current station's NumberOfLapsToStop the station is reached:
// its flow runs with the journey's announcement template, the counter resets
// and the position advances according to BehaviorOnLastStop.
//
// Feedback is processed by a single worker in arrival order, so journeys
// never advance concurrently.
//
// Thread Safety: All methods are safe for concurrent use.
type JourneyManager struct {
	runner

	caps    Capabilities
	entries map[string]*journeyEntry
	order   []string
	byPort  map[uint32][]string

	mu     sync.Mutex
	states map[string]*JourneyState
	// generation counts resets per journey; an advance started before a
	// reset must not move the reset session on.
	generation map[string]uint64
	disposed   bool

	stateSubs   observers[JourneyState]
	reachedSubs observers[StationReached]

	queue       chan z21.FeedbackEvent
	done        chan struct{}
	wg          sync.WaitGroup
	workerDone  chan struct{}
	unsubscribe func()
	disposeOnce sync.Once
}

// NewJourneyManager creates a manager over a snapshot of project's journeys.
//
// Every journey starts active at its FirstPos. When opts.Sessions is set,
// previously saved sessions are restored; sessions for unknown journeys are
// ignored.
//
// Parameters:
//   - ctx: Context for restoring sessions
//   - source: Feedback source; nil leaves feedback to HandleFeedback
//   - project: Journeys plus the workflows station flows may reference
//   - executor: Runs station flows
//   - caps: Capabilities handed to every station flow
//   - opts: Optional logger, recorder, execution log and session store
func NewJourneyManager(ctx context.Context, source FeedbackSource, project *Project, executor *Executor, caps Capabilities, opts ManagerOptions) (*JourneyManager, error) {
	m := &JourneyManager{
		runner:     runner{executor: executor, opts: opts.withDefaults()},
		caps:       caps,
		entries:    make(map[string]*journeyEntry, len(project.Journeys)),
		byPort:     make(map[uint32][]string),
		states:     make(map[string]*JourneyState, len(project.Journeys)),
		generation: make(map[string]uint64, len(project.Journeys)),
		queue:      make(chan z21.FeedbackEvent, journeyQueueSize),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}

	workflows := indexWorkflows(project.Workflows)
	for i := range project.Journeys {
		j := project.Journeys[i].DeepCopy()
		if len(j.Stations) == 0 {
			return nil, fmt.Errorf("journey %q: %w: no stations", j.Name, ErrInvalidJourney)
		}
		if j.FirstPos < 0 || j.FirstPos >= len(j.Stations) {
			return nil, fmt.Errorf("journey %q: %w: first_pos %d", j.Name, ErrInvalidJourney, j.FirstPos)
		}
		if _, dup := m.entries[j.ID]; dup {
			return nil, fmt.Errorf("journey %q: %w: id %s", j.Name, ErrAlreadyExists, j.ID)
		}

		entry := &journeyEntry{journey: j, flows: make([]*Workflow, len(j.Stations))}
		for k := range j.Stations {
			entry.flows[k] = resolveFlow(&j.Stations[k], workflows)
		}
		m.entries[j.ID] = entry
		m.order = append(m.order, j.ID)
		m.byPort[j.InPort] = append(m.byPort[j.InPort], j.ID)
		m.states[j.ID] = initialState(j)
	}

	m.restoreSessions(ctx)

	go m.worker()
	if source != nil {
		m.unsubscribe = source.OnFeedback(m.HandleFeedback)
	}
	m.opts.Logger.Info("journey manager started", "journeys", len(m.order))
	return m, nil
}

func initialState(j *Journey) *JourneyState {
	return &JourneyState{
		JourneyID:          j.ID,
		JourneyName:        j.Name,
		CurrentPos:         j.FirstPos,
		CurrentStationName: j.Stations[j.FirstPos].Name,
		Active:             true,
	}
}

func (m *JourneyManager) restoreSessions(ctx context.Context) {
	if m.opts.Sessions == nil {
		return
	}
	saved, err := m.opts.Sessions.LoadSessions(ctx)
	if err != nil {
		m.opts.Logger.Warn("failed to restore journey sessions", "error", err)
		return
	}

	restored := 0
	for _, s := range saved {
		entry, ok := m.entries[s.JourneyID]
		if !ok {
			continue
		}
		st := m.states[s.JourneyID]
		if s.CurrentPos >= 0 && s.CurrentPos < len(entry.journey.Stations) {
			st.CurrentPos = s.CurrentPos
			st.CurrentStationName = entry.journey.Stations[s.CurrentPos].Name
		}
		if s.Counter >= 0 {
			st.Counter = s.Counter
		}
		st.Active = s.Active
		restored++
	}
	m.opts.Logger.Info("journey sessions restored", "count", restored)
}

// HandleFeedback queues ev for the journey worker. Feedback for ports no
// journey listens on is ignored.
func (m *JourneyManager) HandleFeedback(ev z21.FeedbackEvent) {
	if _, ok := m.byPort[ev.Port]; !ok {
		return
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	select {
	case m.queue <- ev:
	default:
		m.wg.Done()
		m.opts.Logger.Warn("journey queue full, feedback dropped", "port", ev.Port)
	}
}

func (m *JourneyManager) worker() {
	defer close(m.workerDone)
	for {
		select {
		case ev := <-m.queue:
			for _, id := range m.byPort[ev.Port] {
				m.advance(id, ev.Port, ev.ReceivedAt)
			}
			m.wg.Done()
		case <-m.done:
			return
		}
	}
}

// advance applies one feedback to journey id.
func (m *JourneyManager) advance(id string, port uint32, at time.Time) {
	entry := m.entries[id]
	j := entry.journey

	m.mu.Lock()
	st := m.states[id]
	if !st.Active {
		m.mu.Unlock()
		m.opts.Recorder.TriggerSkipped(TriggerJourney, skipInactive)
		return
	}
	if interval := j.DebounceInterval(); interval > 0 && !st.LastFeedback.IsZero() && at.Sub(st.LastFeedback) < interval {
		m.mu.Unlock()
		m.opts.Logger.Debug("journey debounced", "journey", j.Name, "port", port)
		m.opts.Recorder.TriggerSkipped(TriggerJourney, skipDebounce)
		return
	}
	st.Counter++
	st.LastFeedback = at
	pos := st.CurrentPos
	gen := m.generation[id]
	counted := *st
	m.mu.Unlock()

	m.stateChanged(counted)

	station := j.Stations[pos]
	if counted.Counter < station.NumberOfLapsToStop {
		return
	}

	reached := StationReached{
		JourneyID:   j.ID,
		JourneyName: j.Name,
		Station:     *station.DeepCopy(),
		Position:    pos,
		ReachedAt:   at,
	}
	m.opts.Logger.Info("station reached", "journey", j.Name, "station", station.Name, "position", reached.StationNumber())
	m.opts.Recorder.StationReached(j.Name)
	m.appendTrip(reached)
	m.reachedSubs.notify(m.opts.Logger, reached)

	if flow := entry.flows[pos]; flow != nil {
		ec := NewExecutionContext(m.caps)
		ec.Station = &reached.Station
		ec.JourneyTemplate = j.Text
		ec.StationNumber = reached.StationNumber()
		m.run(context.Background(), trigger{
			kind:     TriggerJourney,
			id:       j.ID,
			name:     j.Name,
			port:     port,
			workflow: flow,
			ec:       ec,
		})
	}

	m.mu.Lock()
	if m.generation[id] != gen {
		m.mu.Unlock()
		m.opts.Logger.Info("journey reset while station flow ran, keeping reset session", "journey", j.Name, "station", station.Name)
		return
	}
	st.Counter = 0
	next := m.moveOn(st, j)
	after := *st
	m.mu.Unlock()

	m.stateChanged(after)
	if next != nil {
		m.stateChanged(*next)
	}
}

// moveOn advances st past its current station. It returns the state of a
// journey that was activated by BehaviorGotoJourney. Caller holds m.mu.
func (m *JourneyManager) moveOn(st *JourneyState, j *Journey) *JourneyState {
	if st.CurrentPos+1 < len(j.Stations) {
		st.CurrentPos++
		st.CurrentStationName = j.Stations[st.CurrentPos].Name
		return nil
	}

	switch j.BehaviorOnLastStop {
	case BehaviorStop:
		st.Active = false
		m.opts.Logger.Info("journey finished", "journey", j.Name)
		return nil

	case BehaviorGotoJourney:
		st.CurrentPos = 0
		st.CurrentStationName = j.Stations[0].Name

		nextEntry, ok := m.entries[j.NextJourneyID]
		if !ok {
			m.opts.Logger.Warn("next journey not found", "journey", j.Name, "next_journey_id", j.NextJourneyID)
			return nil
		}
		next := m.states[j.NextJourneyID]
		*next = *initialState(nextEntry.journey)
		m.generation[j.NextJourneyID]++
		m.opts.Logger.Info("journey handed over", "journey", j.Name, "next", nextEntry.journey.Name)
		cpy := *next
		return &cpy

	default:
		st.CurrentPos = 0
		st.CurrentStationName = j.Stations[0].Name
		return nil
	}
}

func (m *JourneyManager) stateChanged(s JourneyState) {
	m.stateSubs.notify(m.opts.Logger, s)
	if m.opts.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionStoreTimeout)
	defer cancel()
	if err := m.opts.Sessions.SaveSession(ctx, s); err != nil {
		m.opts.Logger.Warn("failed to save journey session", "journey", s.JourneyName, "error", err)
	}
}

func (m *JourneyManager) appendTrip(r StationReached) {
	if m.opts.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionStoreTimeout)
	defer cancel()
	if err := m.opts.Sessions.AppendTrip(ctx, r); err != nil {
		m.opts.Logger.Warn("failed to append trip", "journey", r.JourneyName, "error", err)
	}
}

// OnStateChanged registers fn for every session change.
func (m *JourneyManager) OnStateChanged(fn func(JourneyState)) func() {
	return m.stateSubs.add(fn)
}

// OnStationReached registers fn for every reached station.
func (m *JourneyManager) OnStationReached(fn func(StationReached)) func() {
	return m.reachedSubs.add(fn)
}

// OnExecution registers fn for every finished station flow.
func (m *JourneyManager) OnExecution(fn func(Execution)) func() {
	return m.execSubs.add(fn)
}

// State returns the session of journey id.
func (m *JourneyManager) State(id string) (JourneyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return JourneyState{}, fmt.Errorf("%w: %s", ErrJourneyNotFound, id)
	}
	return *st, nil
}

// States returns all sessions in definition order.
func (m *JourneyManager) States() []JourneyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]JourneyState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.states[id])
	}
	return out
}

// Journeys returns copies of the managed journeys in definition order.
func (m *JourneyManager) Journeys() []Journey {
	out := make([]Journey, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.entries[id].journey.DeepCopy())
	}
	return out
}

// Reset returns journey id to a fresh active session at its FirstPos.
// A station flow already running for the journey finishes, but the
// journey does not move on afterwards.
func (m *JourneyManager) Reset(id string) error {
	entry, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJourneyNotFound, id)
	}
	m.mu.Lock()
	st := m.states[id]
	*st = *initialState(entry.journey)
	m.generation[id]++
	snapshot := *st
	m.mu.Unlock()

	m.opts.Logger.Info("journey reset", "journey", entry.journey.Name)
	m.stateChanged(snapshot)
	return nil
}

// ResetAll resets every journey.
func (m *JourneyManager) ResetAll() {
	for _, id := range m.order {
		_ = m.Reset(id)
	}
}

// Wait blocks until all queued feedback has been processed.
func (m *JourneyManager) Wait() {
	m.wg.Wait()
}

// Dispose unsubscribes, drains queued feedback and stops the worker.
// Safe to call multiple times.
func (m *JourneyManager) Dispose() {
	m.disposeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.mu.Lock()
		m.disposed = true
		m.mu.Unlock()

		m.wg.Wait()
		close(m.done)
		<-m.workerDone
		m.opts.Logger.Info("journey manager disposed")
	})
}
