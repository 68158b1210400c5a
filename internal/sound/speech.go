package sound

import (
	"context"
	"fmt"
	"strings"
)

// CommandSpeech speaks text with an external text-to-speech program such
// as espeak-ng, piper or say.
type CommandSpeech struct {
	cmd   *command
	voice string
}

// NewSpeech returns a speech engine for cfg. The text replaces {text} in
// the arguments, or is written to the program's stdin when no argument
// contains {text}. {voice} is the action's voice, falling back to
// cfg.Voice.
//
// Returns ErrNotConfigured for an empty command and ErrCommandNotFound
// when the program cannot be resolved.
func NewSpeech(cfg Config) (*CommandSpeech, error) {
	cmd, err := newCommand("speech", cfg)
	if err != nil {
		return nil, err
	}
	return &CommandSpeech{cmd: cmd, voice: cfg.Voice}, nil
}

// SetLogger sets the logger.
func (s *CommandSpeech) SetLogger(logger Logger) {
	if logger != nil {
		s.cmd.logger = logger
	}
}

// Speak speaks text and returns when speech has finished.
func (s *CommandSpeech) Speak(ctx context.Context, text, voiceID string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidArgument)
	}
	voice := voiceID
	if voice == "" {
		voice = s.voice
	}

	args, used := expandArgs(s.cmd.args, map[string]string{
		placeholderText:  text,
		placeholderVoice: voice,
	}, placeholderText)
	if used {
		return s.cmd.run(ctx, args, nil)
	}
	return s.cmd.run(ctx, args, strings.NewReader(text))
}
