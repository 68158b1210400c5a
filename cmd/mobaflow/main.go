// MOBAflow - model railway automation for Z21 command stations.
//
// The daemon connects to a Z21 over UDP, turns occupancy feedback into
// workflow, station and journey executions, and publishes state to MQTT,
// InfluxDB, Prometheus and a small HTTP/WebSocket control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ahuelsmann/MOBAflow-sub003/migrations"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/api"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/auth"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/database"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/influxdb"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/logging"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/mqtt"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/metrics"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "MOBAFLOW_CONFIG"

	// shutdownTimeout bounds the logoff sent to the command station.
	shutdownTimeout = 3 * time.Second
)

func main() {
	configFlag := flag.String("config", "", "path to the config file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	showVersion := flag.Bool("version", false, "print version and exit")
	issueFor := flag.String("issue-token", "", "print an operator token for `subject` and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mobaflow %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	configPath := resolveConfigPath(*configFlag)

	if *issueFor != "" {
		if err := issueToken(os.Stdout, configPath, *issueFor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancelled on Ctrl+C or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath picks the -config flag, then $MOBAFLOW_CONFIG, then
// the default path.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// issueToken writes a signed operator token for subject to w.
func issueToken(w io.Writer, configPath, subject string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.AuthEnabled() {
		return errors.New("security.jwt.secret is not set; control routes are unauthenticated")
	}
	token, err := auth.IssueToken(subject, auth.RoleOperator, cfg.Security.JWT.Secret, cfg.GetTokenTTL())
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the actual application logic, separated from main for testability.
//
// Components are closed by the deferred chain in reverse start order:
// API, automation managers, Z21 client, relay, InfluxDB, MQTT, database.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting MOBAflow", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)

	repo := automation.NewSQLiteRepository(db.DB)
	registry, err := loadProject(ctx, cfg, repo, log)
	if err != nil {
		return err
	}

	health := map[string]api.HealthChecker{"database": db}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var prom *metrics.Metrics
	if cfg.Metrics.Enabled {
		prom = metrics.New()
	}

	// The hub is shared by the relay and the API server.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	client, err := newZ21Client(cfg, log)
	if err != nil {
		return err
	}

	// Managers are created below; the reset closure only runs once the
	// relay has started.
	var managers *automationManagers

	relayOpts := relay.Options{
		Broadcaster: hub,
		Logger:      log.Component("relay"),
		Reset: func() {
			if managers != nil {
				managers.resetAll()
			}
		},
	}
	if mqttClient != nil {
		relayOpts.Publisher = mqttClient
		relayOpts.Controller = client
	}
	if influxClient != nil {
		relayOpts.Points = influxClient
	}
	if prom != nil {
		relayOpts.Metrics = prom
	}
	rel := relay.New(relayOpts)
	defer func() {
		log.Info("stopping relay")
		if closeErr := rel.Close(); closeErr != nil {
			log.Error("error closing relay", "error", closeErr)
		}
	}()

	defer func() {
		log.Info("disconnecting from Z21")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if discErr := client.Disconnect(shutdownCtx); discErr != nil {
			log.Warn("error disconnecting from Z21", "error", discErr)
		}
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing Z21 client", "error", closeErr)
		}
	}()
	rel.AttachClient(client)
	if prom != nil {
		if regErr := prom.RegisterClient(client); regErr != nil {
			return fmt.Errorf("registering client metrics: %w", regErr)
		}
	}

	managers, err = startAutomation(ctx, cfg, registry.Project(), client, repo, prom, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping automation")
		managers.dispose()
	}()
	rel.AttachJourneys(managers.journeys)
	rel.AttachExecutions(managers.workflows)
	rel.AttachExecutions(managers.stations)
	rel.AttachExecutions(managers.journeys)

	if startErr := rel.Start(); startErr != nil {
		return fmt.Errorf("starting relay: %w", startErr)
	}

	connectZ21(ctx, cfg, client, log)

	// HTTP API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Metrics:    cfg.Metrics,
			Logger:     log.Component("api"),
			Controller: client,
			Workflows:  managers.workflows,
			Stations:   managers.stations,
			Journeys:   managers.journeys,
			Statistics: rel.Statistics(),
			Health:     health,
			Hub:        hub,
			Version:    version,
		}
		if cfg.Automation.ExecutionLog {
			deps.Executions = repo
		}
		if prom != nil {
			deps.Prometheus = prom.Handler()
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("HTTP API disabled")
	}

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}
