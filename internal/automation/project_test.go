package automation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleProject = `
name: Demo layout
workflows:
  - id: wf-signal
    name: Signal Nord
    in_port: 5
    execution_mode: sequential
    use_debounce_timer: true
    debounce_interval_seconds: 1.5
    condition: hour >= 6
    actions:
      - name: turnout
        type: command
        command:
          bytes: 0A 00 40 00 53 03 2C 88 F4
        delay_after_ms: 200
      - name: horn
        type: audio
        audio:
          file_path: /sounds/horn.wav
stations:
  - id: st-nord
    name: Nord
    in_port: 10
    number_of_laps_to_stop: 1
    workflow_id: wf-signal
journeys:
  - id: j-re1
    name: RE 1
    in_port: 1
    text: "Nächster Halt {StationName}, Ausgang {ExitDirection}"
    behavior_on_last_stop: begin_again
    stations:
      - name: Bergdorf
        number_of_laps_to_stop: 2
        track: 1
        is_exit_on_left: true
        flow:
          name: ansage
          actions:
            - type: announcement
              announcement:
                text: unused
`

func TestParseProject(t *testing.T) {
	p, err := ParseProject([]byte(sampleProject))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}

	if p.Name != "Demo layout" || len(p.Workflows) != 1 || len(p.Stations) != 1 || len(p.Journeys) != 1 {
		t.Fatalf("project = %+v", p)
	}
	wf := p.Workflows[0]
	if wf.DebounceInterval().Seconds() != 1.5 {
		t.Errorf("DebounceInterval = %v, want 1.5s", wf.DebounceInterval())
	}
	cmd := wf.Actions[0].Command
	if cmd == nil || len(cmd.Bytes) != 9 || cmd.Bytes[0] != 0x0A || cmd.Bytes[8] != 0xF4 {
		t.Errorf("command bytes = %v", cmd)
	}
	if wf.Actions[0].DelayAfterMs != 200 {
		t.Errorf("DelayAfterMs = %d", wf.Actions[0].DelayAfterMs)
	}
	st := p.Journeys[0].Stations[0]
	if st.Track == nil || *st.Track != 1 || !st.IsExitOnLeft || st.Flow == nil {
		t.Errorf("journey station = %+v", st)
	}

	reg := NewRegistry(nil)
	if err := reg.Load(context.Background(), p); err != nil {
		t.Fatalf("Registry.Load: %v", err)
	}
}

func TestParseProjectRejectsUnknownKeys(t *testing.T) {
	_, err := ParseProject([]byte("workflows:\n  - name: x\n    inport: 5\n"))
	if err == nil || !strings.Contains(err.Error(), "inport") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestParseProjectBadHex(t *testing.T) {
	src := "workflows:\n  - name: x\n    actions:\n      - type: command\n        command:\n          bytes: ZZ\n"
	if _, err := ParseProject([]byte(src)); err == nil {
		t.Error("invalid hex accepted")
	}
}

func TestLoadProjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := os.WriteFile(path, []byte(sampleProject), 0o600); err != nil {
		t.Fatalf("writing project: %v", err)
	}
	p, err := LoadProjectFile(path)
	if err != nil {
		t.Fatalf("LoadProjectFile: %v", err)
	}
	if p.Workflows[0].ID != "wf-signal" {
		t.Errorf("workflow id = %q", p.Workflows[0].ID)
	}

	if _, err := LoadProjectFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestMarshalProjectRoundTrip(t *testing.T) {
	p, err := ParseProject([]byte(sampleProject))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}
	data, err := MarshalProject(p)
	if err != nil {
		t.Fatalf("MarshalProject: %v", err)
	}
	if !strings.Contains(string(data), "0A 00 40 00 53 03 2C 88 F4") {
		t.Errorf("command bytes not rendered as hex:\n%s", data)
	}
	again, err := ParseProject(data)
	if err != nil {
		t.Fatalf("ParseProject(marshalled): %v", err)
	}
	if len(again.Journeys[0].Stations) != 1 || again.Journeys[0].Text != p.Journeys[0].Text {
		t.Errorf("round trip lost journey data: %+v", again.Journeys[0])
	}
}
