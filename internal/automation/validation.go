package automation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxDescriptionLen    = 500
	maxActions           = 100
	maxCommandBytes      = 64
	maxDelayAfterMs      = 300000 // 5 minutes
	maxDebounceSeconds   = 3600
	maxLapsToStop        = 1000
	maxStationsInJourney = 200
)

// Pre-computed validation set for O(1) action type lookups.
var validActionTypes map[ActionType]struct{}

func init() {
	validActionTypes = make(map[ActionType]struct{}, len(AllActionTypes()))
	for _, t := range AllActionTypes() {
		validActionTypes[t] = struct{}{}
	}
}

// ValidateName checks if a name is valid.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateWorkflow performs comprehensive validation on a workflow.
// Returns an error describing the first validation failure found.
func ValidateWorkflow(w *Workflow) error {
	if w == nil {
		return ErrInvalidWorkflow
	}
	if err := ValidateName(w.Name); err != nil {
		return err
	}
	if len(w.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidWorkflow, maxDescriptionLen)
	}
	switch w.ExecutionMode {
	case "", ModeSequential, ModeParallel:
	default:
		return fmt.Errorf("%w: execution mode %q", ErrInvalidWorkflow, w.ExecutionMode)
	}
	if err := validateDebounce(w.DebounceIntervalSeconds); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}
	if len(w.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i, action := range w.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	if _, err := CompileCondition(w.Condition); err != nil {
		return err
	}
	return nil
}

// ValidateAction checks that an action's payload matches its tag.
func ValidateAction(a Action) error {
	if err := ValidateName(a.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}
	if _, ok := validActionTypes[a.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrNotSupported, a.Type)
	}
	if a.DelayAfterMs < 0 || a.DelayAfterMs > maxDelayAfterMs {
		return fmt.Errorf("%w: delay_after_ms must be 0-%d", ErrInvalidAction, maxDelayAfterMs)
	}

	payloads := 0
	for _, set := range []bool{a.Command != nil, a.Audio != nil, a.Announcement != nil} {
		if set {
			payloads++
		}
	}
	if payloads > 1 {
		return fmt.Errorf("%w: more than one payload set", ErrInvalidAction)
	}

	switch a.Type {
	case ActionCommand:
		if a.Command == nil || len(a.Command.Bytes) == 0 {
			return fmt.Errorf("%w: command action requires bytes", ErrInvalidAction)
		}
		if len(a.Command.Bytes) > maxCommandBytes {
			return fmt.Errorf("%w: command exceeds %d bytes", ErrInvalidAction, maxCommandBytes)
		}
	case ActionAudio:
		if a.Audio == nil {
			return fmt.Errorf("%w: audio action requires a payload", ErrInvalidAction)
		}
	case ActionAnnouncement:
		if a.Announcement == nil {
			return fmt.Errorf("%w: announcement action requires a payload", ErrInvalidAction)
		}
	}
	return nil
}

// ValidateStation checks a station definition.
func ValidateStation(s *Station) error {
	if s == nil {
		return ErrInvalidStation
	}
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.NumberOfLapsToStop < 1 || s.NumberOfLapsToStop > maxLapsToStop {
		return fmt.Errorf("%w: number_of_laps_to_stop must be 1-%d", ErrInvalidStation, maxLapsToStop)
	}
	if s.Track != nil && *s.Track < 0 {
		return fmt.Errorf("%w: track must not be negative", ErrInvalidStation)
	}
	if s.Flow != nil {
		if err := ValidateWorkflow(s.Flow); err != nil {
			return fmt.Errorf("station %q flow: %w", s.Name, err)
		}
	}
	return nil
}

// ValidateJourney checks a journey definition including its stations.
func ValidateJourney(j *Journey) error {
	if j == nil {
		return ErrInvalidJourney
	}
	if err := ValidateName(j.Name); err != nil {
		return err
	}
	if len(j.Stations) == 0 {
		return fmt.Errorf("%w: journey needs at least one station", ErrInvalidJourney)
	}
	if len(j.Stations) > maxStationsInJourney {
		return fmt.Errorf("%w: exceeds maximum of %d stations", ErrInvalidJourney, maxStationsInJourney)
	}
	if j.FirstPos < 0 || j.FirstPos >= len(j.Stations) {
		return fmt.Errorf("%w: first_pos %d outside 0-%d", ErrInvalidJourney, j.FirstPos, len(j.Stations)-1)
	}
	switch j.BehaviorOnLastStop {
	case "", BehaviorBeginAgain, BehaviorStop:
	case BehaviorGotoJourney:
		if j.NextJourneyID == "" {
			return fmt.Errorf("%w: goto_journey requires next_journey_id", ErrInvalidJourney)
		}
	default:
		return fmt.Errorf("%w: behavior_on_last_stop %q", ErrInvalidJourney, j.BehaviorOnLastStop)
	}
	if err := validateDebounce(j.DebounceIntervalSeconds); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJourney, err)
	}
	for i := range j.Stations {
		if err := ValidateStation(&j.Stations[i]); err != nil {
			return fmt.Errorf("station[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateProject validates every entity and cross-reference in p.
func ValidateProject(p *Project) error {
	workflows := make(map[string]struct{}, len(p.Workflows))
	for i := range p.Workflows {
		w := &p.Workflows[i]
		if err := ValidateWorkflow(w); err != nil {
			return fmt.Errorf("workflow %q: %w", w.Name, err)
		}
		if _, dup := workflows[w.ID]; dup {
			return fmt.Errorf("workflow %q: %w: id %s", w.Name, ErrAlreadyExists, w.ID)
		}
		workflows[w.ID] = struct{}{}
	}

	checkRef := func(s *Station) error {
		if s.Flow == nil && s.WorkflowID != "" {
			if _, ok := workflows[s.WorkflowID]; !ok {
				return fmt.Errorf("station %q: %w: %s", s.Name, ErrWorkflowNotFound, s.WorkflowID)
			}
		}
		return nil
	}

	// Station IDs key the station debounce timers.
	stations := make(map[string]struct{}, len(p.Stations))
	for i := range p.Stations {
		s := &p.Stations[i]
		if err := ValidateStation(s); err != nil {
			return fmt.Errorf("station %q: %w", s.Name, err)
		}
		if _, dup := stations[s.ID]; dup {
			return fmt.Errorf("station %q: %w: id %s", s.Name, ErrAlreadyExists, s.ID)
		}
		stations[s.ID] = struct{}{}
		if err := checkRef(s); err != nil {
			return err
		}
	}

	journeys := make(map[string]struct{}, len(p.Journeys))
	for i := range p.Journeys {
		j := &p.Journeys[i]
		if _, dup := journeys[j.ID]; dup {
			return fmt.Errorf("journey %q: %w: id %s", j.Name, ErrAlreadyExists, j.ID)
		}
		journeys[j.ID] = struct{}{}
	}
	for i := range p.Journeys {
		j := &p.Journeys[i]
		if err := ValidateJourney(j); err != nil {
			return fmt.Errorf("journey %q: %w", j.Name, err)
		}
		for k := range j.Stations {
			if err := checkRef(&j.Stations[k]); err != nil {
				return fmt.Errorf("journey %q: %w", j.Name, err)
			}
		}
		if j.BehaviorOnLastStop == BehaviorGotoJourney {
			if _, ok := journeys[j.NextJourneyID]; !ok {
				return fmt.Errorf("journey %q: %w: next journey %s", j.Name, ErrJourneyNotFound, j.NextJourneyID)
			}
		}
	}
	return nil
}

func validateDebounce(seconds float64) error {
	if seconds < 0 || seconds > maxDebounceSeconds {
		return fmt.Errorf("debounce_interval_seconds must be 0-%d", maxDebounceSeconds)
	}
	return nil
}

// AssignIDs fills empty IDs and defaults throughout p.
func AssignIDs(p *Project) {
	for i := range p.Workflows {
		assignWorkflowIDs(&p.Workflows[i])
	}
	for i := range p.Stations {
		assignStationIDs(&p.Stations[i])
	}
	for i := range p.Journeys {
		j := &p.Journeys[i]
		if j.ID == "" {
			j.ID = GenerateID()
		}
		if j.BehaviorOnLastStop == "" {
			j.BehaviorOnLastStop = BehaviorBeginAgain
		}
		for k := range j.Stations {
			assignStationIDs(&j.Stations[k])
		}
	}
}

func assignWorkflowIDs(w *Workflow) {
	if w.ID == "" {
		w.ID = GenerateID()
	}
	if w.ExecutionMode == "" {
		w.ExecutionMode = ModeSequential
	}
	for i := range w.Actions {
		a := &w.Actions[i]
		if a.ID == "" {
			a.ID = GenerateID()
		}
		if a.Name == "" {
			a.Name = string(a.Type)
		}
	}
}

func assignStationIDs(s *Station) {
	if s.ID == "" {
		s.ID = GenerateID()
	}
	if s.NumberOfLapsToStop == 0 {
		s.NumberOfLapsToStop = 1
	}
	if s.Flow != nil {
		assignWorkflowIDs(s.Flow)
	}
}

// GenerateID creates a new UUID for an entity or execution.
func GenerateID() string {
	return uuid.New().String()
}
