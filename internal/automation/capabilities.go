package automation

import "context"

// CommandSender sends raw frames to the command station.
// *z21.Client satisfies it.
type CommandSender interface {
	SendCommand(ctx context.Context, data []byte) error
}

// AudioPlayer plays a sound file and returns when playback has finished.
type AudioPlayer interface {
	Play(ctx context.Context, filePath string) error
}

// SpeechEngine speaks text and returns when speech has finished.
// An empty voiceID selects the engine's default voice.
type SpeechEngine interface {
	Speak(ctx context.Context, text, voiceID string) error
}

// Capabilities is the set of optional external services actions may use.
// A nil field means the capability is absent; actions needing it do nothing.
type Capabilities struct {
	Sender CommandSender
	Player AudioPlayer
	Speech SpeechEngine
}

// ExecutionContext is built fresh for every execution.
type ExecutionContext struct {
	Capabilities

	// Station is the station being announced, if any.
	Station *Station

	// JourneyTemplate overrides announcement texts when non-empty.
	JourneyTemplate string

	// StationNumber is the 1-based position of Station in its journey.
	StationNumber int
}

// NewExecutionContext returns a context carrying only caps.
func NewExecutionContext(caps Capabilities) *ExecutionContext {
	return &ExecutionContext{Capabilities: caps}
}
