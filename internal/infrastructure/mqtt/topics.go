package mqtt

import (
	"strconv"
	"strings"
)

// DefaultTopicPrefix is the root of every MOBAflow topic.
const DefaultTopicPrefix = "mobaflow"

// Topics builds MOBAflow topic names under a configurable prefix.
//
//	topics := mqtt.NewTopics("mobaflow")
//	topics.Feedback(5)        // mobaflow/feedback/5
//	topics.Command("estop")   // mobaflow/command/estop
//
// Events the service publishes:
//
//	{prefix}/status                         retained service online/offline
//	{prefix}/z21/status                     retained track/central status
//	{prefix}/z21/system_state               retained system state snapshot
//	{prefix}/z21/connection                 retained connected flag
//	{prefix}/feedback/{port}                feedback events
//	{prefix}/journey/{id}/state             retained journey state
//	{prefix}/journey/{id}/station           station reached events
//	{prefix}/execution/{kind}/{id}          trigger execution results
//
// Commands the service accepts:
//
//	{prefix}/command/{name}
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Surrounding slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

func (t Topics) join(parts ...string) string {
	return t.Prefix() + "/" + strings.Join(parts, "/")
}

// ServiceStatus is the retained online/offline topic, also used as LWT.
func (t Topics) ServiceStatus() string { return t.join("status") }

// Z21Status carries track power and central state changes.
func (t Topics) Z21Status() string { return t.join("z21", "status") }

// Z21SystemState carries the periodic system state snapshot.
func (t Topics) Z21SystemState() string { return t.join("z21", "system_state") }

// Z21Connection carries the controller connection flag.
func (t Topics) Z21Connection() string { return t.join("z21", "connection") }

// Feedback carries R-Bus feedback events for one port.
func (t Topics) Feedback(port uint32) string {
	return t.join("feedback", strconv.FormatUint(uint64(port), 10))
}

// JourneyState carries a journey's retained lap state.
func (t Topics) JourneyState(journeyID string) string {
	return t.join("journey", journeyID, "state")
}

// StationReached carries station arrival events of a journey.
func (t Topics) StationReached(journeyID string) string {
	return t.join("journey", journeyID, "station")
}

// Execution carries the result of one trigger execution.
func (t Topics) Execution(kind, triggerID string) string {
	return t.join("execution", kind, triggerID)
}

// Command is the topic for a named command.
func (t Topics) Command(name string) string { return t.join("command", name) }

// AllCommands matches every command topic.
func (t Topics) AllCommands() string { return t.join("command", "#") }

// CommandName extracts the command name from a topic matched by
// AllCommands. ok is false for topics outside the command tree.
func (t Topics) CommandName(topic string) (name string, ok bool) {
	name, ok = strings.CutPrefix(topic, t.join("command")+"/")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
