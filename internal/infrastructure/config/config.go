package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Envelope Sorting Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Controller ControllerConfig `yaml:"controller"`
	Transport  TransportConfig  `yaml:"transport"`
	Batch      BatchConfig      `yaml:"batch"`
	Storage    StorageConfig    `yaml:"storage"`
}

// SiteConfig contains kiosk-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for throughput telemetry.
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

// ControllerConfig contains scan aggregation and validation settings.
type ControllerConfig struct {
	// Scanners selects which channels participate in validation.
	Scanners ScannerToggles `yaml:"scanners"`

	// DebounceCooldownMS is the duplicate-suppression window per channel.
	DebounceCooldownMS int `yaml:"debounce_cooldown_ms"`

	// FlushDelayMS is the keystroke inactivity window after which a
	// buffered code without an explicit terminator is flushed.
	FlushDelayMS int `yaml:"flush_delay_ms"`

	// FallbackTimeoutMS is how long to wait for scanner 1 before the
	// no-scan sentinel is substituted.
	FallbackTimeoutMS int `yaml:"fallback_timeout_ms"`

	// DisplayResetMS is the highlight reset window attached to result
	// events so UI layers can time their reset.
	DisplayResetMS int `yaml:"display_reset_ms"`

	// NoScanSentinel is the value recorded for scanner 1 when the
	// fallback path completes an item.
	NoScanSentinel string `yaml:"no_scan_sentinel"`
}

// ScannerToggles selects the channels enabled for validation.
type ScannerToggles struct {
	Scanner1 bool `yaml:"scanner1"`
	Scanner2 bool `yaml:"scanner2"`
	Scanner3 bool `yaml:"scanner3"`
}

// TransportConfig contains sorter hardware connection settings.
type TransportConfig struct {
	// Enabled controls whether the hardware link is opened at startup.
	// When false, outbound commands are logged and dropped (bench mode).
	Enabled bool `yaml:"enabled"`

	// Connection is the line bridge URL, e.g. "tcp://localhost:5331"
	// or "unix:///run/envsort-serial.sock".
	Connection string `yaml:"connection"`

	// ConnectTimeoutMS bounds the initial dial.
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`

	// ReadTimeoutMS bounds individual line reads.
	ReadTimeoutMS int `yaml:"read_timeout_ms"`

	// ReconnectDelayMS is the initial backoff between reconnect attempts.
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`
}

// BatchConfig contains batch logging API client settings.
type BatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	BatchCode string `yaml:"batch_code"`
}

// StorageConfig contains file storage locations.
type StorageConfig struct {
	// ReferencePath is the JSON reference dataset file. Created with
	// defaults on first run if absent.
	ReferencePath string `yaml:"reference_path"`

	// SessionDir is where session_*.json files are written.
	SessionDir string `yaml:"session_dir"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ENVSORT_SECTION_KEY
// For example: ENVSORT_DATABASE_PATH, ENVSORT_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The timing defaults match the sorter hardware: 2s debounce cooldown,
// 120ms flush delay, 5s scanner-1 fallback, 2s display reset.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "kiosk-001",
			Name:     "Envelope Sorting",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/envsort.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "envsort-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Controller: ControllerConfig{
			Scanners: ScannerToggles{
				Scanner1: true,
				Scanner2: true,
				Scanner3: true,
			},
			DebounceCooldownMS: 2000,
			FlushDelayMS:       120,
			FallbackTimeoutMS:  5000,
			DisplayResetMS:     2000,
			NoScanSentinel:     "NO_SCAN",
		},
		Transport: TransportConfig{
			Connection:       "tcp://localhost:5331",
			ConnectTimeoutMS: 10000,
			ReadTimeoutMS:    30000,
			ReconnectDelayMS: 5000,
		},
		Batch: BatchConfig{
			BaseURL:   "http://localhost:5000",
			TimeoutMS: 5000,
		},
		Storage: StorageConfig{
			ReferencePath: "./data/reference.json",
			SessionDir:    "./data/sessions",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ENVSORT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("ENVSORT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ENVSORT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ENVSORT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ENVSORT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ENVSORT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ENVSORT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Transport
	if v := os.Getenv("ENVSORT_TRANSPORT_CONNECTION"); v != "" {
		cfg.Transport.Connection = v
	}

	// Batch API
	if v := os.Getenv("ENVSORT_BATCH_URL"); v != "" {
		cfg.Batch.BaseURL = v
	}

	// InfluxDB
	if v := os.Getenv("ENVSORT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port must be 1-65535, got %d", c.API.Port))
	}

	// MQTT validation (only when enabled)
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Sprintf("mqtt.qos must be 0-2, got %d", c.MQTT.QoS))
		}
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Controller validation
	if c.Controller.DebounceCooldownMS < 0 {
		errs = append(errs, "controller.debounce_cooldown_ms must not be negative")
	}
	if c.Controller.FlushDelayMS <= 0 {
		errs = append(errs, "controller.flush_delay_ms must be positive")
	}
	if c.Controller.FallbackTimeoutMS <= 0 {
		errs = append(errs, "controller.fallback_timeout_ms must be positive")
	}
	if c.Controller.NoScanSentinel == "" {
		errs = append(errs, "controller.no_scan_sentinel is required")
	}

	// Transport validation (only when enabled)
	if c.Transport.Enabled {
		if c.Transport.Connection == "" {
			errs = append(errs, "transport.connection is required when transport is enabled")
		} else if !strings.HasPrefix(c.Transport.Connection, "tcp://") &&
			!strings.HasPrefix(c.Transport.Connection, "unix://") {
			errs = append(errs, fmt.Sprintf("transport.connection must use tcp:// or unix:// scheme, got %q", c.Transport.Connection))
		}
	}

	// Batch validation (only when enabled)
	if c.Batch.Enabled {
		if c.Batch.BaseURL == "" {
			errs = append(errs, "batch.base_url is required when batch is enabled")
		}
		if c.Batch.BatchCode == "" {
			errs = append(errs, "batch.batch_code is required when batch is enabled")
		}
	}

	// Storage validation
	if c.Storage.ReferencePath == "" {
		errs = append(errs, "storage.reference_path is required")
	}
	if c.Storage.SessionDir == "" {
		errs = append(errs, "storage.session_dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// DebounceCooldown returns the per-channel duplicate suppression window.
func (c *ControllerConfig) DebounceCooldown() time.Duration {
	return time.Duration(c.DebounceCooldownMS) * time.Millisecond
}

// FlushDelay returns the keystroke inactivity flush window.
func (c *ControllerConfig) FlushDelay() time.Duration {
	return time.Duration(c.FlushDelayMS) * time.Millisecond
}

// FallbackTimeout returns the scanner-1 fallback wait.
func (c *ControllerConfig) FallbackTimeout() time.Duration {
	return time.Duration(c.FallbackTimeoutMS) * time.Millisecond
}

// DisplayReset returns the UI highlight reset window.
func (c *ControllerConfig) DisplayReset() time.Duration {
	return time.Duration(c.DisplayResetMS) * time.Millisecond
}

// ConnectTimeout returns the transport dial timeout as a duration.
func (c *TransportConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// ReadTimeout returns the transport read timeout as a duration.
func (c *TransportConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// ReconnectDelay returns the transport reconnect backoff base as a duration.
func (c *TransportConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// Timeout returns the batch API request timeout as a duration.
func (c *BatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
