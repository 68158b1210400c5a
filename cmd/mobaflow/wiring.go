package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/api"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/logging"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/metrics"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/sound"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// loadProject builds the registry from the configured project file, or
// from the database when no file is configured. A file is only written to
// the database when automation.import_project is set.
func loadProject(ctx context.Context, cfg *config.Config, repo *automation.SQLiteRepository, log *logging.Logger) (*automation.Registry, error) {
	if cfg.Automation.ProjectFile == "" {
		registry := automation.NewRegistry(repo)
		registry.SetLogger(log.Component("registry"))
		if err := registry.RefreshCache(ctx); err != nil {
			return nil, fmt.Errorf("loading stored project: %w", err)
		}
		return registry, nil
	}

	project, err := automation.LoadProjectFile(cfg.Automation.ProjectFile)
	if err != nil {
		return nil, fmt.Errorf("loading project file: %w", err)
	}

	var store automation.Repository
	if cfg.Automation.ImportProject {
		store = repo
	}
	registry := automation.NewRegistry(store)
	registry.SetLogger(log.Component("registry"))
	if err := registry.Load(ctx, project); err != nil {
		return nil, fmt.Errorf("loading project %s: %w", cfg.Automation.ProjectFile, err)
	}
	return registry, nil
}

// newZ21Client creates an unconnected client from the z21 config section.
func newZ21Client(cfg *config.Config, log *logging.Logger) (*z21.Client, error) {
	flags, err := cfg.BroadcastFlags()
	if err != nil {
		return nil, fmt.Errorf("z21 broadcast flags: %w", err)
	}
	client := z21.NewClient(z21.NewUDPTransport(), z21.ClientConfig{
		KeepaliveInterval:       seconds(cfg.Z21.KeepaliveInterval),
		SystemStatePollInterval: seconds(cfg.Z21.SystemStatePollInterval),
		MaxKeepaliveFailures:    cfg.Z21.MaxKeepaliveFailures,
		BroadcastFlags:          flags,
	})
	client.SetLogger(log.Component("z21"))
	return client, nil
}

// connectZ21 opens the session. A station that is switched off must not
// keep the daemon from starting, so failures are logged only.
func connectZ21(ctx context.Context, cfg *config.Config, client *z21.Client, log *logging.Logger) {
	addr := cfg.Z21Address()
	var err error
	if cfg.Z21.RecoverOnStart {
		err = client.Recover(ctx, addr)
	} else {
		err = client.Connect(ctx, addr)
	}
	if err != nil {
		log.Warn("z21 connect failed, continuing offline", "address", addr, "error", err)
		return
	}
	log.Info("z21 session started", "address", addr)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// automationManagers groups the three trigger managers.
type automationManagers struct {
	workflows *automation.WorkflowManager
	stations  *automation.StationManager
	journeys  *automation.JourneyManager
}

func (m *automationManagers) resetAll() {
	m.workflows.ResetAll()
	m.stations.ResetAll()
	m.journeys.ResetAll()
}

// dispose stops the managers and waits for in-flight executions.
func (m *automationManagers) dispose() {
	m.journeys.Dispose()
	m.stations.Dispose()
	m.workflows.Dispose()
}

// soundCapabilities creates the audio player and speech engine. A missing
// or unusable program leaves the capability absent.
func soundCapabilities(cfg *config.Config, log *logging.Logger) (*sound.CommandPlayer, *sound.CommandSpeech) {
	soundLog := log.Component("sound")

	player, err := sound.NewPlayer(sound.Config{
		Command: cfg.Sound.PlayerCommand,
		Args:    cfg.Sound.PlayerArgs,
		Timeout: cfg.GetSoundTimeout(),
	})
	switch {
	case errors.Is(err, sound.ErrNotConfigured):
		player = nil
	case err != nil:
		log.Warn("audio player unavailable", "error", err)
		player = nil
	default:
		player.SetLogger(soundLog)
	}

	speech, err := sound.NewSpeech(sound.Config{
		Command: cfg.Sound.SpeechCommand,
		Args:    cfg.Sound.SpeechArgs,
		Voice:   cfg.Sound.Voice,
		Timeout: cfg.GetSoundTimeout(),
	})
	switch {
	case errors.Is(err, sound.ErrNotConfigured):
		speech = nil
	case err != nil:
		log.Warn("speech engine unavailable", "error", err)
		speech = nil
	default:
		speech.SetLogger(soundLog)
	}
	return player, speech
}

// startAutomation creates the workflow, station and journey managers over
// project, all subscribed to client feedback.
func startAutomation(ctx context.Context, cfg *config.Config, project *automation.Project, client *z21.Client,
	repo *automation.SQLiteRepository, prom *metrics.Metrics, log *logging.Logger) (*automationManagers, error) {
	caps := automation.Capabilities{Sender: client}
	player, speech := soundCapabilities(cfg, log)
	if player != nil {
		caps.Player = player
	}
	if speech != nil {
		caps.Speech = speech
	}

	autoLog := log.Component("automation")
	opts := automation.ManagerOptions{Logger: autoLog}
	if prom != nil {
		opts.Recorder = prom
	}
	if cfg.Automation.ExecutionLog {
		opts.ExecutionLog = repo
	}
	if cfg.Automation.PersistSessions {
		opts.Sessions = repo
	}

	executor := automation.NewExecutor(autoLog)

	workflows, err := automation.NewWorkflowManager(client, project.Workflows, executor, caps, opts)
	if err != nil {
		return nil, fmt.Errorf("creating workflow manager: %w", err)
	}
	stations, err := automation.NewStationManager(client, project, executor, caps, opts)
	if err != nil {
		workflows.Dispose()
		return nil, fmt.Errorf("creating station manager: %w", err)
	}
	journeys, err := automation.NewJourneyManager(ctx, client, project, executor, caps, opts)
	if err != nil {
		stations.Dispose()
		workflows.Dispose()
		return nil, fmt.Errorf("creating journey manager: %w", err)
	}

	log.Info("automation started",
		"workflows", len(project.Workflows),
		"stations", len(project.Stations),
		"journeys", len(project.Journeys),
		"audio", caps.Player != nil,
		"speech", caps.Speech != nil,
	)
	return &automationManagers{workflows: workflows, stations: stations, journeys: journeys}, nil
}

// healthCheck verifies the infrastructure connections. The Z21 is left out
// because the daemon runs offline until the station answers.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
