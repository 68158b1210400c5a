package automation

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ExecutionMode selects how a workflow runs its actions.
type ExecutionMode string

const (
	// ModeSequential runs actions one after another; the first failure aborts.
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel starts all actions together and joins their errors.
	ModeParallel ExecutionMode = "parallel"
)

// ActionType is the tag of an Action.
type ActionType string

const (
	ActionCommand      ActionType = "command"
	ActionAudio        ActionType = "audio"
	ActionAnnouncement ActionType = "announcement"
)

// AllActionTypes returns the closed set of supported action tags.
func AllActionTypes() []ActionType {
	return []ActionType{ActionCommand, ActionAudio, ActionAnnouncement}
}

// BehaviorOnLastStop decides what a journey does after its last station.
type BehaviorOnLastStop string

const (
	// BehaviorBeginAgain wraps the journey to its first station.
	BehaviorBeginAgain BehaviorOnLastStop = "begin_again"

	// BehaviorGotoJourney hands over to NextJourneyID at its FirstPos.
	BehaviorGotoJourney BehaviorOnLastStop = "goto_journey"

	// BehaviorStop deactivates the journey.
	BehaviorStop BehaviorOnLastStop = "stop"
)

// Workflow binds a feedback port to an ordered action list.
type Workflow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// InPort is the feedback input that triggers the workflow.
	InPort uint32 `json:"in_port" yaml:"in_port"`

	Actions       []Action      `json:"actions" yaml:"actions"`
	ExecutionMode ExecutionMode `json:"execution_mode" yaml:"execution_mode"`

	// Debounce policy
	UseDebounceTimer        bool    `json:"use_debounce_timer" yaml:"use_debounce_timer"`
	DebounceIntervalSeconds float64 `json:"debounce_interval_seconds" yaml:"debounce_interval_seconds"`

	// Condition is an optional expression gating execution, e.g. "hour >= 6".
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// DebounceInterval returns the debounce window, or zero when disabled.
func (w *Workflow) DebounceInterval() time.Duration {
	if !w.UseDebounceTimer || w.DebounceIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(w.DebounceIntervalSeconds * float64(time.Second))
}

// Action is one step of a workflow. Exactly one payload matching Type is set.
type Action struct {
	ID   string     `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
	Type ActionType `json:"type" yaml:"type"`

	Command      *CommandAction      `json:"command,omitempty" yaml:"command,omitempty"`
	Audio        *AudioAction        `json:"audio,omitempty" yaml:"audio,omitempty"`
	Announcement *AnnouncementAction `json:"announcement,omitempty" yaml:"announcement,omitempty"`

	// DelayAfterMs pauses the sequence after this action completes.
	DelayAfterMs int `json:"delay_after_ms,omitempty" yaml:"delay_after_ms,omitempty"`
}

// CommandAction sends raw bytes to the command station.
type CommandAction struct {
	Bytes HexBytes `json:"bytes" yaml:"bytes"`
}

// AudioAction plays a sound file.
type AudioAction struct {
	FilePath string `json:"file_path" yaml:"file_path"`
}

// AnnouncementAction speaks a text. Journey templates take precedence over Text.
type AnnouncementAction struct {
	Text    string `json:"text" yaml:"text"`
	VoiceID string `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
}

// HexBytes is a byte slice that marshals as space-separated hex ("07 00 40 00").
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return []byte(strings.Join(parts, " ")), nil
}

// UnmarshalText accepts hex with optional spaces, dashes or colons as separators.
func (b *HexBytes) UnmarshalText(text []byte) error {
	cleaned := strings.NewReplacer(" ", "", "-", "", ":", "", "\t", "").Replace(string(text))
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("%w: command bytes %q: %w", ErrInvalidAction, string(text), err)
	}
	*b = decoded
	return nil
}

// Station is a stop on a layout with its own feedback port and optional flow.
type Station struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	InPort             uint32 `json:"in_port" yaml:"in_port"`
	NumberOfLapsToStop int    `json:"number_of_laps_to_stop" yaml:"number_of_laps_to_stop"`

	// Track is the platform track number; nil when unset.
	Track        *int `json:"track,omitempty" yaml:"track,omitempty"`
	IsExitOnLeft bool `json:"is_exit_on_left" yaml:"is_exit_on_left"`

	// WorkflowID references a project workflow. Flow, if set, wins.
	WorkflowID string    `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`
	Flow       *Workflow `json:"flow,omitempty" yaml:"flow,omitempty"`
}

// Journey is a train's route: a lap counter on one port advancing through stations.
type Journey struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	InPort uint32 `json:"in_port" yaml:"in_port"`

	Stations []Station `json:"stations" yaml:"stations"`

	// Text is the announcement template used for station flows.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// FirstPos is the 0-based station index a fresh session starts at.
	FirstPos int `json:"first_pos" yaml:"first_pos"`

	BehaviorOnLastStop BehaviorOnLastStop `json:"behavior_on_last_stop" yaml:"behavior_on_last_stop"`
	NextJourneyID      string             `json:"next_journey_id,omitempty" yaml:"next_journey_id,omitempty"`

	UseDebounceTimer        bool    `json:"use_debounce_timer" yaml:"use_debounce_timer"`
	DebounceIntervalSeconds float64 `json:"debounce_interval_seconds" yaml:"debounce_interval_seconds"`
}

// DebounceInterval returns the debounce window, or zero when disabled.
func (j *Journey) DebounceInterval() time.Duration {
	if !j.UseDebounceTimer || j.DebounceIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(j.DebounceIntervalSeconds * float64(time.Second))
}

// Project is the complete automation configuration.
type Project struct {
	Name      string     `json:"name" yaml:"name"`
	Workflows []Workflow `json:"workflows" yaml:"workflows"`
	Stations  []Station  `json:"stations" yaml:"stations"`
	Journeys  []Journey  `json:"journeys" yaml:"journeys"`
}

// JourneyState is the runtime session of one journey.
type JourneyState struct {
	JourneyID          string    `json:"journey_id"`
	JourneyName        string    `json:"journey_name"`
	Counter            int       `json:"counter"`
	CurrentPos         int       `json:"current_pos"`
	CurrentStationName string    `json:"current_station_name,omitempty"`
	LastFeedback       time.Time `json:"last_feedback,omitzero"`
	Active             bool      `json:"active"`
}

// StationReached is raised when a journey's lap counter reaches a station's threshold.
type StationReached struct {
	JourneyID   string    `json:"journey_id"`
	JourneyName string    `json:"journey_name"`
	Station     Station   `json:"station"`
	Position    int       `json:"position"`
	ReachedAt   time.Time `json:"reached_at"`
}

// StationNumber returns the 1-based position of the station in the journey.
func (s StationReached) StationNumber() int {
	return s.Position + 1
}

// TriggerKind names the component that started an execution.
type TriggerKind string

const (
	TriggerWorkflow TriggerKind = "workflow"
	TriggerStation  TriggerKind = "station"
	TriggerJourney  TriggerKind = "journey"
)

// ExecutionStatus is the outcome of one trigger execution.
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Execution records one run of a trigger's action list.
type Execution struct {
	ID           string          `json:"id"`
	TriggerKind  TriggerKind     `json:"trigger_kind"`
	TriggerID    string          `json:"trigger_id"`
	TriggerName  string          `json:"trigger_name"`
	Port         uint32          `json:"port"`
	StartedAt    time.Time       `json:"started_at"`
	DurationMS   int             `json:"duration_ms"`
	Status       ExecutionStatus `json:"status"`
	ActionsTotal int             `json:"actions_total"`
	Error        string          `json:"error,omitempty"`
}

// DeepCopy creates an independent copy of the Workflow.
func (w *Workflow) DeepCopy() *Workflow {
	if w == nil {
		return nil
	}
	cpy := *w
	if w.Actions != nil {
		cpy.Actions = make([]Action, len(w.Actions))
		for i := range w.Actions {
			cpy.Actions[i] = w.Actions[i].deepCopy()
		}
	}
	return &cpy
}

func (a Action) deepCopy() Action {
	cpy := a
	if a.Command != nil {
		cmd := CommandAction{Bytes: append(HexBytes(nil), a.Command.Bytes...)}
		cpy.Command = &cmd
	}
	if a.Audio != nil {
		audio := *a.Audio
		cpy.Audio = &audio
	}
	if a.Announcement != nil {
		ann := *a.Announcement
		cpy.Announcement = &ann
	}
	return cpy
}

// DeepCopy creates an independent copy of the Station.
func (s *Station) DeepCopy() *Station {
	if s == nil {
		return nil
	}
	cpy := *s
	cpy.Track = cloneIntPtr(s.Track)
	cpy.Flow = s.Flow.DeepCopy()
	return &cpy
}

// DeepCopy creates an independent copy of the Journey.
func (j *Journey) DeepCopy() *Journey {
	if j == nil {
		return nil
	}
	cpy := *j
	if j.Stations != nil {
		cpy.Stations = make([]Station, len(j.Stations))
		for i := range j.Stations {
			cpy.Stations[i] = *j.Stations[i].DeepCopy()
		}
	}
	return &cpy
}

// DeepCopy creates an independent copy of the Project.
func (p *Project) DeepCopy() *Project {
	if p == nil {
		return nil
	}
	cpy := Project{Name: p.Name}
	if p.Workflows != nil {
		cpy.Workflows = make([]Workflow, len(p.Workflows))
		for i := range p.Workflows {
			cpy.Workflows[i] = *p.Workflows[i].DeepCopy()
		}
	}
	if p.Stations != nil {
		cpy.Stations = make([]Station, len(p.Stations))
		for i := range p.Stations {
			cpy.Stations[i] = *p.Stations[i].DeepCopy()
		}
	}
	if p.Journeys != nil {
		cpy.Journeys = make([]Journey, len(p.Journeys))
		for i := range p.Journeys {
			cpy.Journeys[i] = *p.Journeys[i].DeepCopy()
		}
	}
	return &cpy
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Trip is one entry of the trip log: a station reached by a journey.
type Trip struct {
	ID          int64     `json:"id"`
	JourneyID   string    `json:"journey_id"`
	JourneyName string    `json:"journey_name"`
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name"`
	Position    int       `json:"position"`
	ReachedAt   time.Time `json:"reached_at"`
}
