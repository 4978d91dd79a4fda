package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for labeldash.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Dashboard DashboardConfig `yaml:"dashboard"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Debug enables per-message send/receive logging in the session.
	Debug bool `yaml:"debug"`
}

// DashboardConfig identifies this dashboard instance.
// The ID is stamped into every print job and used for status topics.
type DashboardConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection and session settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Subscribe MQTTSubscribeConfig `yaml:"subscribe"`

	// Prefix is joined in front of every outbound topic.
	Prefix []string `yaml:"prefix"`

	// Subscriptions are subscribed once the first connection succeeds and
	// restored after every reconnect.
	Subscriptions []string `yaml:"subscriptions"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientIDPrefix is prepended to the generated session identity.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig controls connect attempts.
type MQTTReconnectConfig struct {
	RetryInterval  int `yaml:"retry_interval"`  // seconds between failed connect attempts
	ConnectTimeout int `yaml:"connect_timeout"` // seconds per attempt
}

// MQTTSubscribeConfig controls subscription acknowledgment and retry pacing.
type MQTTSubscribeConfig struct {
	Timeout       int `yaml:"timeout"`        // seconds to wait for a SUBACK
	RetryInterval int `yaml:"retry_interval"` // seconds between reconciliation retries
	MaxAttempts   int `yaml:"max_attempts"`   // warn after this many failures; 0 = never
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	PanelDir string           `yaml:"panel_dir"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite database settings for the print job history.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the YAML file at path over Default, applies LABELDASH_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadDefault is Load without a file.
func LoadDefault() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults.
// It is also used when no config file exists (e.g. for the CLI print command).
func Default() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			ID:   "dashboard-01",
			Name: "Label Printing",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "labeldash-",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				RetryInterval:  5,
				ConnectTimeout: 10,
			},
			Subscribe: MQTTSubscribeConfig{
				Timeout:       5,
				RetryInterval: 1,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Database: DatabaseConfig{
			Path:        "./data/labeldash.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverrides maps environment variables to the setting each replaces.
// Empty variables are ignored, as are integers that do not parse.
var envOverrides = map[string]func(*Config, string){
	"LABELDASH_DASHBOARD_ID":   func(c *Config, v string) { c.Dashboard.ID = v },
	"LABELDASH_MQTT_HOST":      func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"LABELDASH_MQTT_PORT":      func(c *Config, v string) { setInt(&c.MQTT.Broker.Port, v) },
	"LABELDASH_MQTT_USERNAME":  func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"LABELDASH_MQTT_PASSWORD":  func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"LABELDASH_MQTT_PREFIX":    func(c *Config, v string) { c.MQTT.Prefix = splitTopic(v) },
	"LABELDASH_API_HOST":       func(c *Config, v string) { c.API.Host = v },
	"LABELDASH_API_PORT":       func(c *Config, v string) { setInt(&c.API.Port, v) },
	"LABELDASH_DATABASE_PATH":  func(c *Config, v string) { c.Database.Path = v },
	"LABELDASH_INFLUXDB_URL":   func(c *Config, v string) { c.InfluxDB.URL = v },
	"LABELDASH_INFLUXDB_TOKEN": func(c *Config, v string) { c.InfluxDB.Token = v },
}

func applyEnvOverrides(cfg *Config) {
	for name, set := range envOverrides {
		if v := os.Getenv(name); v != "" {
			set(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// splitTopic splits "a/b/c" into its non-empty segments.
func splitTopic(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Dashboard.ID == "" {
		errs = append(errs, "dashboard.id is required")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Subscribe.Timeout < 1 {
		errs = append(errs, "mqtt.subscribe.timeout must be at least 1 second")
	}
	if c.MQTT.Subscribe.RetryInterval < 1 {
		errs = append(errs, "mqtt.subscribe.retry_interval must be at least 1 second")
	}
	if c.MQTT.Subscribe.MaxAttempts < 0 {
		errs = append(errs, "mqtt.subscribe.max_attempts cannot be negative")
	}
	for _, topic := range c.MQTT.Subscriptions {
		if strings.TrimSpace(topic) == "" {
			errs = append(errs, "mqtt.subscriptions cannot contain empty topics")
			break
		}
	}

	// API validation
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if !oneOf(c.Logging.Level, "", "debug", "info", "warn", "warning", "error") {
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	if !oneOf(c.Logging.Format, "", "json", "text") {
		errs = append(errs, "logging.format must be json or text")
	}
	if !oneOf(c.Logging.Output, "", "stdout", "stderr", "discard", "none") {
		errs = append(errs, "logging.output must be stdout, stderr or discard")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// SubscribeTimeout returns the SUBACK wait as a Duration.
func (m MQTTConfig) SubscribeTimeout() time.Duration {
	return time.Duration(m.Subscribe.Timeout) * time.Second
}

// RedialInterval returns the pause between failed connect attempts.
func (m MQTTConfig) RedialInterval() time.Duration {
	return time.Duration(m.Reconnect.RetryInterval) * time.Second
}

// SubscribeRetryInterval returns the reconciliation retry pacing as a Duration.
func (m MQTTConfig) SubscribeRetryInterval() time.Duration {
	return time.Duration(m.Subscribe.RetryInterval) * time.Second
}

// DashboardDocument is the JSON document the browser dashboard loads from
// /config/config.json before it opens its own view of the session.
type DashboardDocument struct {
	ID   string              `json:"id"`
	Name string              `json:"name"`
	MQTT DashboardMQTTDetail `json:"mqtt"`
}

// DashboardMQTTDetail is the mqtt section of DashboardDocument.
type DashboardMQTTDetail struct {
	Host   string   `json:"host"`
	Port   int      `json:"port"`
	Prefix []string `json:"prefix"`
}

// DashboardDocument renders the public subset of the configuration.
// Credentials are never included.
func (c *Config) DashboardDocument() DashboardDocument {
	prefix := c.MQTT.Prefix
	if prefix == nil {
		prefix = []string{}
	}
	return DashboardDocument{
		ID:   c.Dashboard.ID,
		Name: c.Dashboard.Name,
		MQTT: DashboardMQTTDetail{
			Host:   c.MQTT.Broker.Host,
			Port:   c.MQTT.Broker.Port,
			Prefix: prefix,
		},
	}
}

func oneOf(value string, allowed ...string) bool {
	value = strings.ToLower(value)
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
