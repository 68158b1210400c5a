package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// callLog records capability calls across fakes in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// fakeSender records sent frames.
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
	log  *callLog
}

func (f *fakeSender) SendCommand(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.log != nil {
		f.log.add("send")
	}
	if f.err != nil {
		return f.err
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)
	f.sent = append(f.sent, cpy)
	return nil
}

func (f *fakeSender) GetSent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakePlayer records played files.
type fakePlayer struct {
	mu     sync.Mutex
	played []string
	err    error
	log    *callLog
}

func (f *fakePlayer) Play(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.log != nil {
		f.log.add("play")
	}
	if f.err != nil {
		return f.err
	}
	f.played = append(f.played, path)
	return nil
}

func (f *fakePlayer) GetPlayed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

// fakeSpeech records spoken texts. When block is set, Speak waits for it.
type fakeSpeech struct {
	mu      sync.Mutex
	spoken  []string
	voices  []string
	log     *callLog
	started chan struct{}
	block   chan struct{}
}

func (f *fakeSpeech) Speak(ctx context.Context, text, voiceID string) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.log != nil {
		f.log.add("speak")
	}
	f.spoken = append(f.spoken, text)
	f.voices = append(f.voices, voiceID)
	return nil
}

func (f *fakeSpeech) GetSpoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

// countingRecorder counts recorder calls by result.
type countingRecorder struct {
	mu       sync.Mutex
	actions  map[string]int
	triggers map[ExecutionStatus]int
	skipped  map[string]int
	reached  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		actions:  make(map[string]int),
		triggers: make(map[ExecutionStatus]int),
		skipped:  make(map[string]int),
	}
}

func (r *countingRecorder) ActionExecuted(_ ActionType, result string, _ time.Duration) {
	r.mu.Lock()
	r.actions[result]++
	r.mu.Unlock()
}

func (r *countingRecorder) TriggerExecuted(_ TriggerKind, status ExecutionStatus, _ time.Duration) {
	r.mu.Lock()
	r.triggers[status]++
	r.mu.Unlock()
}

func (r *countingRecorder) TriggerSkipped(_ TriggerKind, reason string) {
	r.mu.Lock()
	r.skipped[reason]++
	r.mu.Unlock()
}

func (r *countingRecorder) StationReached(string) {
	r.mu.Lock()
	r.reached++
	r.mu.Unlock()
}

func (r *countingRecorder) Skipped(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped[reason]
}

func commandAction(name string, b ...byte) Action {
	return Action{Name: name, Type: ActionCommand, Command: &CommandAction{Bytes: b}}
}

func audioAction(name, path string) Action {
	return Action{Name: name, Type: ActionAudio, Audio: &AudioAction{FilePath: path}}
}

func announcementAction(name, text string) Action {
	return Action{Name: name, Type: ActionAnnouncement, Announcement: &AnnouncementAction{Text: text}}
}

func TestExecuteSequentialOrder(t *testing.T) {
	log := &callLog{}
	sender := &fakeSender{log: log}
	player := &fakePlayer{log: log}
	speech := &fakeSpeech{log: log}
	ec := NewExecutionContext(Capabilities{Sender: sender, Player: player, Speech: speech})

	actions := []Action{
		announcementAction("announce", "Zug fährt ein"),
		commandAction("power on", 0x07, 0x00, 0x40, 0x00, 0x21, 0x81, 0xA0),
		audioAction("horn", "/sounds/horn.wav"),
	}

	if err := NewExecutor(nil).Execute(context.Background(), actions, ModeSequential, ec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := log.get()
	want := []string{"speak", "send", "play"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if sent := sender.GetSent(); len(sent) != 1 || len(sent[0]) != 7 {
		t.Errorf("sent = %v", sent)
	}
	if played := player.GetPlayed(); len(played) != 1 || played[0] != "/sounds/horn.wav" {
		t.Errorf("played = %v", played)
	}
}

func TestExecuteSequentialStopsOnFirstError(t *testing.T) {
	sendErr := errors.New("socket closed")
	player := &fakePlayer{}
	ec := NewExecutionContext(Capabilities{Sender: &fakeSender{err: sendErr}, Player: player})

	actions := []Action{
		commandAction("turnout", 0x01),
		audioAction("after", "/sounds/never.wav"),
	}
	err := NewExecutor(nil).Execute(context.Background(), actions, ModeSequential, ec)
	if err == nil {
		t.Fatal("Execute: expected error")
	}

	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("error type = %T, want *ActionError", err)
	}
	if actionErr.Action != "turnout" {
		t.Errorf("ActionError.Action = %q, want %q", actionErr.Action, "turnout")
	}
	if !errors.Is(err, sendErr) {
		t.Errorf("errors.Is(err, sendErr) = false; err = %v", err)
	}
	if played := player.GetPlayed(); len(played) != 0 {
		t.Errorf("actions after failure ran: %v", played)
	}
}

func TestExecuteCommandWithoutBytes(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"nil payload", Action{Name: "empty", Type: ActionCommand}},
		{"empty bytes", Action{Name: "empty", Type: ActionCommand, Command: &CommandAction{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No sender configured: the configuration error still wins.
			err := NewExecutor(nil).Execute(context.Background(), []Action{tt.action}, ModeSequential, nil)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestExecuteMissingCapabilitiesAreNoops(t *testing.T) {
	rec := newCountingRecorder()
	exec := NewExecutor(nil)
	exec.SetRecorder(rec)

	actions := []Action{
		commandAction("cmd", 0x01, 0x02),
		audioAction("sound", "/sounds/bell.wav"),
		announcementAction("speak", "Hallo"),
		audioAction("empty path", ""),
	}
	if err := exec.Execute(context.Background(), actions, ModeSequential, NewExecutionContext(Capabilities{})); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.actions[resultSkipped] != 4 {
		t.Errorf("skipped = %d, want 4", rec.actions[resultSkipped])
	}
}

func TestExecuteUnknownActionType(t *testing.T) {
	err := NewExecutor(nil).Execute(context.Background(), []Action{{Name: "odd", Type: "teleport"}}, ModeSequential, nil)
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("err = %v, want ErrNotSupported", err)
	}
}

func TestExecuteParallelJoinsErrors(t *testing.T) {
	sendErr := errors.New("boom")
	ec := NewExecutionContext(Capabilities{Sender: &fakeSender{err: sendErr}})

	actions := []Action{
		commandAction("first", 0x01),
		commandAction("second", 0x02),
		audioAction("harmless", ""),
	}
	err := NewExecutor(nil).Execute(context.Background(), actions, ModeParallel, ec)
	if err == nil {
		t.Fatal("Execute: expected error")
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("error %T does not join errors", err)
	}
	errs := joined.Unwrap()
	if len(errs) != 2 {
		t.Fatalf("joined errors = %d, want 2", len(errs))
	}
	names := map[string]bool{}
	for _, e := range errs {
		var actionErr *ActionError
		if !errors.As(e, &actionErr) {
			t.Fatalf("joined error %T is not *ActionError", e)
		}
		names[actionErr.Action] = true
	}
	if !names["first"] || !names["second"] {
		t.Errorf("failed actions = %v, want first and second", names)
	}
}

func TestExecuteParallelRunsConcurrently(t *testing.T) {
	speech := &fakeSpeech{
		started: make(chan struct{}, 2),
		block:   make(chan struct{}),
	}
	ec := NewExecutionContext(Capabilities{Speech: speech})
	actions := []Action{
		announcementAction("a", "eins"),
		announcementAction("b", "zwei"),
	}

	done := make(chan error, 1)
	go func() {
		done <- NewExecutor(nil).Execute(context.Background(), actions, ModeParallel, ec)
	}()

	// Both announcements must be in flight before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-speech.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 actions started", i)
		}
	}
	close(speech.block)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return")
	}
	if got := len(speech.GetSpoken()); got != 2 {
		t.Errorf("spoken = %d, want 2", got)
	}
}

func TestExecuteAnnouncementTemplate(t *testing.T) {
	track := 3
	speech := &fakeSpeech{}
	ec := NewExecutionContext(Capabilities{Speech: speech})
	ec.Station = &Station{Name: "Hauptbahnhof", Track: &track, IsExitOnLeft: true}
	ec.StationNumber = 2

	t.Run("journey template wins", func(t *testing.T) {
		ec.JourneyTemplate = "Halt {StationNumber}: {StationName}, Gleis {Track}, Ausgang {ExitDirection}"
		actions := []Action{announcementAction("announce", "ignored {StationName}")}
		if err := NewExecutor(nil).Execute(context.Background(), actions, ModeSequential, ec); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		spoken := speech.GetSpoken()
		want := "Halt 2: Hauptbahnhof, Gleis 3, Ausgang links"
		if len(spoken) != 1 || spoken[0] != want {
			t.Errorf("spoken = %v, want %q", spoken, want)
		}
	})

	t.Run("action text without template", func(t *testing.T) {
		ec.JourneyTemplate = ""
		actions := []Action{announcementAction("announce", "Willkommen in {StationName}")}
		if err := NewExecutor(nil).Execute(context.Background(), actions, ModeSequential, ec); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		spoken := speech.GetSpoken()
		if got := spoken[len(spoken)-1]; got != "Willkommen in Hauptbahnhof" {
			t.Errorf("spoken = %q", got)
		}
	})
}

func TestExecuteDelayHonoursCancellation(t *testing.T) {
	sender := &fakeSender{}
	ec := NewExecutionContext(Capabilities{Sender: sender})

	first := commandAction("first", 0x01)
	first.DelayAfterMs = 10000
	actions := []Action{first, commandAction("second", 0x02)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewExecutor(nil).Execute(ctx, actions, ModeSequential, ec)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("delay not interrupted, took %v", elapsed)
	}
	if got := len(sender.GetSent()); got != 1 {
		t.Errorf("sent = %d, want 1", got)
	}
}

func TestExecuteWorkflowUsesMode(t *testing.T) {
	speech := &fakeSpeech{
		started: make(chan struct{}, 2),
		block:   make(chan struct{}),
	}
	wf := &Workflow{
		Name:          "parallel announce",
		ExecutionMode: ModeParallel,
		Actions: []Action{
			announcementAction("a", "eins"),
			announcementAction("b", "zwei"),
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- NewExecutor(nil).ExecuteWorkflow(context.Background(), wf, NewExecutionContext(Capabilities{Speech: speech}))
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-speech.started:
		case <-time.After(2 * time.Second):
			t.Fatal("workflow did not run its actions in parallel")
		}
	}
	close(speech.block)
	if err := <-done; err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
}

func TestExecuteRecordsResults(t *testing.T) {
	rec := newCountingRecorder()
	exec := NewExecutor(nil)
	exec.SetRecorder(rec)

	ec := NewExecutionContext(Capabilities{Sender: &fakeSender{}})
	actions := []Action{commandAction("ok", 0x01), audioAction("skipped", "x.wav")}
	if err := exec.Execute(context.Background(), actions, ModeSequential, ec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.actions[resultOK] != 1 || rec.actions[resultSkipped] != 1 {
		t.Errorf("actions = %v, want ok=1 skipped=1", rec.actions)
	}
}
