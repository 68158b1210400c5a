package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/auth"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/database"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

const testProject = `
name: Test layout
workflows:
  - id: wf-signal
    name: Signal
    in_port: 5
    actions:
      - name: turnout
        type: command
        command:
          bytes: 0A 00 40 00 53 03 2C 88 F4
journeys:
  - id: j-1
    name: RE 1
    in_port: 1
    stations:
      - name: Nord
        number_of_laps_to_stop: 1
      - name: Sued
        number_of_laps_to_stop: 2
`

// writeConfig writes a config for an offline daemon with everything
// optional switched off. extra is appended verbatim.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	content := `
site:
  id: test-site
z21:
  host: "127.0.0.1"
  port: 21105
  keepalive_interval: 30
  system_state_poll_interval: -1
database:
  path: "` + filepath.Join(dir, "mobaflow.db") + `"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
` + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_EmptyDatabasePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "site:\n  id: test\ndatabase:\n  path: \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "database.path") {
		t.Fatalf("run() error = %v, want database.path validation error", err)
	}
}

func TestRun_InvalidProjectFile(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(project, []byte("workflows:\n  - name: \"\"\n    in_port: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, "automation:\n  project_file: "+project+"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx, path); err == nil {
		t.Fatal("run() should fail with an invalid project")
	}
}

// TestRun_StartsOfflineAndImportsProject runs the daemon against a Z21
// address nobody answers on and stops it again.
func TestRun_StartsOfflineAndImportsProject(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(project, []byte(testProject), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, `
automation:
  project_file: `+project+`
  import_project: true
  execution_log: true
  persist_sessions: true
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	db, err := database.Open(database.Config{Path: filepath.Join(dir, "mobaflow.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	stored, err := automation.NewSQLiteRepository(db.DB).LoadProject(context.Background())
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if stored.Name != "Test layout" || len(stored.Workflows) != 1 || len(stored.Journeys) != 1 {
		t.Errorf("stored project = %+v", stored)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("default = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnvVar, "/custom/env.yaml")
	if got := resolveConfigPath(""); got != "/custom/env.yaml" {
		t.Errorf("env = %q", got)
	}
	if got := resolveConfigPath("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("flag = %q, want flag to win over env", got)
	}
}

func TestIssueToken(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "security:\n  jwt:\n    secret: "+testSecret+"\n    token_ttl: 60\n")

	var out bytes.Buffer
	if err := issueToken(&out, path, "alice"); err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl < 59*time.Minute || ttl > 61*time.Minute {
		t.Errorf("token expires in %v, want about 1h", ttl)
	}
}

func TestIssueToken_NoSecret(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	var out bytes.Buffer
	if err := issueToken(&out, path, "alice"); err == nil {
		t.Fatal("issueToken without a secret should fail")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}
