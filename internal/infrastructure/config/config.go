package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for MOBAflow.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Z21        Z21Config        `yaml:"z21"`
	Automation AutomationConfig `yaml:"automation"`
	Sound      SoundConfig      `yaml:"sound"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// SiteConfig identifies the layout.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Z21Config contains command station connection settings.
type Z21Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// KeepaliveInterval is the status poll period (seconds).
	KeepaliveInterval int `yaml:"keepalive_interval"`

	// SystemStatePollInterval is the system state poll period (seconds).
	// Negative disables polling.
	SystemStatePollInterval int `yaml:"system_state_poll_interval"`

	// MaxKeepaliveFailures is the number of consecutive failed keepalives
	// after which the connection is considered lost.
	MaxKeepaliveFailures int `yaml:"max_keepalive_failures"`

	// BroadcastFlags selects the event classes the station pushes, e.g. "0x00000001".
	BroadcastFlags string `yaml:"broadcast_flags"`

	// RecoverOnStart runs the recovery handshake instead of a plain connect.
	RecoverOnStart bool `yaml:"recover_on_start"`
}

// AutomationConfig contains workflow, station and journey settings.
type AutomationConfig struct {
	// ProjectFile is the YAML project definition. Empty loads the project
	// stored in the database.
	ProjectFile string `yaml:"project_file"`

	// ImportProject persists the file's project into the database.
	ImportProject bool `yaml:"import_project"`

	// ExecutionLog records every trigger execution in the database.
	ExecutionLog bool `yaml:"execution_log"`

	// PersistSessions stores journey state and the trip log.
	PersistSessions bool `yaml:"persist_sessions"`
}

// SoundConfig contains the external programs used for audio and speech.
// Arguments may contain {file}, {text} and {voice} placeholders.
type SoundConfig struct {
	PlayerCommand string   `yaml:"player_command"`
	PlayerArgs    []string `yaml:"player_args"`
	SpeechCommand string   `yaml:"speech_command"`
	SpeechArgs    []string `yaml:"speech_args"`
	Voice         string   `yaml:"voice"`

	// Timeout bounds one playback or announcement (seconds).
	Timeout int `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains operator token settings. An empty secret disables
// authentication on control routes.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// TokenTTL is the lifetime of issued tokens (minutes).
	TokenTTL int `yaml:"token_ttl"`
}

// minJWTSecretLength is the shortest accepted signing secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MOBAFLOW_SECTION_KEY
// For example: MOBAFLOW_Z21_HOST, MOBAFLOW_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "layout-001",
			Name: "MOBAflow",
		},
		Z21: Z21Config{
			Host:                    "192.168.0.111",
			Port:                    21105,
			KeepaliveInterval:       30,
			SystemStatePollInterval: 5,
			MaxKeepaliveFailures:    3,
			BroadcastFlags:          "0x00000001",
		},
		Automation: AutomationConfig{
			ExecutionLog:    true,
			PersistSessions: true,
		},
		Sound: SoundConfig{
			Timeout: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/mobaflow.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mobaflow",
			},
			QoS:         1,
			TopicPrefix: "mobaflow",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 720,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MOBAFLOW_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Z21
	if v := os.Getenv("MOBAFLOW_Z21_HOST"); v != "" {
		cfg.Z21.Host = v
	}
	if v, ok := envInt("MOBAFLOW_Z21_PORT"); ok {
		cfg.Z21.Port = v
	}

	// Automation
	if v := os.Getenv("MOBAFLOW_AUTOMATION_PROJECT_FILE"); v != "" {
		cfg.Automation.ProjectFile = v
	}

	// Database
	if v := os.Getenv("MOBAFLOW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MOBAFLOW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MOBAFLOW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MOBAFLOW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MOBAFLOW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("MOBAFLOW_API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("MOBAFLOW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MOBAFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("MOBAFLOW_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Every validation failure joined into one message, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Z21
	if c.Z21.Host == "" {
		errs = append(errs, "z21.host is required")
	}
	if c.Z21.Port < 1 || c.Z21.Port > 65535 {
		errs = append(errs, "z21.port must be between 1 and 65535")
	}
	if c.Z21.KeepaliveInterval < 1 {
		errs = append(errs, "z21.keepalive_interval must be at least 1 second")
	}
	if c.Z21.MaxKeepaliveFailures < 1 {
		errs = append(errs, "z21.max_keepalive_failures must be at least 1")
	}
	if _, err := c.BroadcastFlags(); err != nil {
		errs = append(errs, fmt.Sprintf("z21.broadcast_flags: %v", err))
	}

	// Sound
	if c.Sound.Timeout < 1 {
		errs = append(errs, "sound.timeout must be at least 1 second")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	// Security: an empty secret disables auth, a short one is rejected.
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BroadcastFlags parses z21.broadcast_flags ("0x00000001" or decimal).
func (c *Config) BroadcastFlags() (uint32, error) {
	if c.Z21.BroadcastFlags == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(c.Z21.BroadcastFlags, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", c.Z21.BroadcastFlags)
	}
	return uint32(v), nil
}

// Z21Address returns the command station's host:port.
func (c *Config) Z21Address() string {
	return fmt.Sprintf("%s:%d", c.Z21.Host, c.Z21.Port)
}

// AuthEnabled reports whether control routes require a token.
func (c *Config) AuthEnabled() bool {
	return c.Security.JWT.Secret != ""
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetSoundTimeout returns the per-call sound timeout.
func (c *Config) GetSoundTimeout() time.Duration {
	return time.Duration(c.Sound.Timeout) * time.Second
}

// GetTokenTTL returns the lifetime of issued operator tokens.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}
