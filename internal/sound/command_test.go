package sound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestHelperProcess is run as the external program by the tests below.
// The first argument after "--" selects its behaviour.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SOUND_WANT_HELPER") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(2)
	}

	switch args[0] {
	case "record":
		stdin, _ := io.ReadAll(os.Stdin)
		out := strings.Join(args[1:], "|") + "\n" + string(stdin)
		if err := os.WriteFile(os.Getenv("SOUND_HELPER_OUT"), []byte(out), 0o600); err != nil {
			os.Exit(4)
		}
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stderr, "no such device")
		os.Exit(3)
	case "sleep":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	}
	os.Exit(2)
}

// helperConfig returns a Config that runs this test binary as the
// external program in the given mode.
func helperConfig(t *testing.T, mode string, args ...string) (Config, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.txt")
	t.Setenv("SOUND_WANT_HELPER", "1")
	t.Setenv("SOUND_HELPER_OUT", out)

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return Config{
		Command: exe,
		Args:    append([]string{"-test.run=TestHelperProcess", "--", mode}, args...),
		Timeout: 5 * time.Second,
	}, out
}

func readOutput(t *testing.T, path string) (args []string, stdin string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading helper output: %v", err)
	}
	line, rest, _ := strings.Cut(string(data), "\n")
	return strings.Split(line, "|"), rest
}

func TestNewPlayerNotConfigured(t *testing.T) {
	if _, err := NewPlayer(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if _, err := NewSpeech(Config{Command: "  "}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestNewPlayerCommandNotFound(t *testing.T) {
	_, err := NewPlayer(Config{Command: "mobaflow-no-such-player-binary"})
	if !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("err = %v, want ErrCommandNotFound", err)
	}
}

func TestPlaySubstitutesFile(t *testing.T) {
	cfg, out := helperConfig(t, "record", "-q", "{file}")
	p, err := NewPlayer(cfg)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if err := p.Play(context.Background(), "/sounds/horn.wav"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	args, _ := readOutput(t, out)
	if len(args) != 2 || args[0] != "-q" || args[1] != "/sounds/horn.wav" {
		t.Errorf("args = %q", args)
	}
}

func TestPlayAppendsFileWithoutPlaceholder(t *testing.T) {
	cfg, out := helperConfig(t, "record")
	p, err := NewPlayer(cfg)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if err := p.Play(context.Background(), "bell.wav"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	args, _ := readOutput(t, out)
	if len(args) != 1 || args[0] != "bell.wav" {
		t.Errorf("args = %q", args)
	}
}

func TestPlayEmptyPath(t *testing.T) {
	cfg, _ := helperConfig(t, "record")
	p, err := NewPlayer(cfg)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if err := p.Play(context.Background(), " "); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestPlayFailureIncludesStderr(t *testing.T) {
	cfg, _ := helperConfig(t, "fail")
	p, err := NewPlayer(cfg)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	err = p.Play(context.Background(), "x.wav")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}
	if !strings.Contains(err.Error(), "no such device") {
		t.Errorf("err = %v, want stderr in message", err)
	}
}

func TestPlayTimeout(t *testing.T) {
	cfg, _ := helperConfig(t, "sleep")
	cfg.Timeout = 100 * time.Millisecond
	p, err := NewPlayer(cfg)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	start := time.Now()
	err = p.Play(context.Background(), "x.wav")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Play returned after %v", elapsed)
	}
}

func TestPlayCancelled(t *testing.T) {
	cfg, _ := helperConfig(t, "sleep")
	p, err := NewPlayer(cfg)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := p.Play(ctx, "x.wav"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSpeakSubstitutesTextAndVoice(t *testing.T) {
	cfg, out := helperConfig(t, "record", "-v", "{voice}", "{text}")
	cfg.Voice = "de"
	s, err := NewSpeech(cfg)
	if err != nil {
		t.Fatalf("NewSpeech: %v", err)
	}

	if err := s.Speak(context.Background(), "Nächster Halt Bergdorf", ""); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	args, stdin := readOutput(t, out)
	if len(args) != 3 || args[1] != "de" || args[2] != "Nächster Halt Bergdorf" {
		t.Errorf("args = %q", args)
	}
	if stdin != "" {
		t.Errorf("stdin = %q, want empty", stdin)
	}

	if err := s.Speak(context.Background(), "Hallo", "en"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if args, _ := readOutput(t, out); args[1] != "en" {
		t.Errorf("voice = %q, want en", args[1])
	}
}

func TestSpeakWritesStdinWithoutPlaceholder(t *testing.T) {
	cfg, out := helperConfig(t, "record")
	s, err := NewSpeech(cfg)
	if err != nil {
		t.Fatalf("NewSpeech: %v", err)
	}
	if err := s.Speak(context.Background(), "Zug fährt ab", "x"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if _, stdin := readOutput(t, out); stdin != "Zug fährt ab" {
		t.Errorf("stdin = %q", stdin)
	}
}

func TestSpeakEmptyText(t *testing.T) {
	cfg, _ := helperConfig(t, "record")
	s, err := NewSpeech(cfg)
	if err != nil {
		t.Fatalf("NewSpeech: %v", err)
	}
	if err := s.Speak(context.Background(), "", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	if n != 6 || err != nil {
		t.Errorf("Write = %d, %v", n, err)
	}
	_, _ = b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Errorf("String = %q, want abcd", b.String())
	}
}
