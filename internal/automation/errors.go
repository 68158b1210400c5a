package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrInvalidArgument) {
//	    // configuration problem, not a runtime fault
//	}
var (
	// ErrInvalidArgument is returned when an action is missing required
	// parameters, e.g. a command action without bytes.
	ErrInvalidArgument = errors.New("automation: invalid argument")

	// ErrNotSupported is returned for an action type outside the known set.
	ErrNotSupported = errors.New("automation: action type not supported")

	// ErrWorkflowNotFound is returned when a workflow ID does not exist.
	ErrWorkflowNotFound = errors.New("automation: workflow not found")

	// ErrJourneyNotFound is returned when a journey ID does not exist.
	ErrJourneyNotFound = errors.New("automation: journey not found")

	// ErrStationNotFound is returned when a station ID does not exist.
	ErrStationNotFound = errors.New("automation: station not found")

	// ErrAlreadyExists is returned when creating an entity whose ID is taken.
	ErrAlreadyExists = errors.New("automation: already exists")

	// ErrInvalidWorkflow is returned when workflow validation fails.
	ErrInvalidWorkflow = errors.New("automation: invalid workflow")

	// ErrInvalidAction is returned when an action definition is malformed.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrInvalidStation is returned when station validation fails.
	ErrInvalidStation = errors.New("automation: invalid station")

	// ErrInvalidJourney is returned when journey validation fails.
	ErrInvalidJourney = errors.New("automation: invalid journey")

	// ErrInvalidName is returned when a name is empty or too long.
	ErrInvalidName = errors.New("automation: invalid name")

	// ErrInvalidCondition is returned when a trigger condition does not compile.
	ErrInvalidCondition = errors.New("automation: invalid condition")
)

// ActionError wraps a failure of a single action with the names needed to
// diagnose it.
type ActionError struct {
	Workflow string
	Action   string
	Type     ActionType
	Err      error
}

func (e *ActionError) Error() string {
	if e.Workflow == "" {
		return fmt.Sprintf("action %q (%s): %v", e.Action, e.Type, e.Err)
	}
	return fmt.Sprintf("workflow %q action %q (%s): %v", e.Workflow, e.Action, e.Type, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
