package sound

import (
	"context"
	"fmt"
	"strings"
)

// CommandPlayer plays audio files with an external program such as
// aplay, paplay or mpg123.
type CommandPlayer struct {
	cmd *command
}

// NewPlayer returns a player for cfg. The file path replaces {file} in the
// arguments, or is appended when no argument contains {file}.
//
// Returns ErrNotConfigured for an empty command and ErrCommandNotFound
// when the program cannot be resolved.
func NewPlayer(cfg Config) (*CommandPlayer, error) {
	cmd, err := newCommand("audio", cfg)
	if err != nil {
		return nil, err
	}
	return &CommandPlayer{cmd: cmd}, nil
}

// SetLogger sets the logger.
func (p *CommandPlayer) SetLogger(logger Logger) {
	if logger != nil {
		p.cmd.logger = logger
	}
}

// Play plays filePath and returns when playback has finished.
func (p *CommandPlayer) Play(ctx context.Context, filePath string) error {
	if strings.TrimSpace(filePath) == "" {
		return fmt.Errorf("%w: empty file path", ErrInvalidArgument)
	}
	args, used := expandArgs(p.cmd.args, map[string]string{placeholderFile: filePath}, placeholderFile)
	if !used {
		args = append(args, filePath)
	}
	return p.cmd.run(ctx, args, nil)
}
