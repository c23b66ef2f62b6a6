package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
site:
  id: "test-kiosk"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
controller:
  debounce_cooldown_ms: 1500
  no_scan_sentinel: "NO_SCAN"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-kiosk" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-kiosk")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.Controller.DebounceCooldownMS != 1500 {
		t.Errorf("Controller.DebounceCooldownMS = %d, want 1500", cfg.Controller.DebounceCooldownMS)
	}

	// Unset sections keep their defaults
	if cfg.Controller.FlushDelayMS != 120 {
		t.Errorf("Controller.FlushDelayMS = %d, want default 120", cfg.Controller.FlushDelayMS)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero flush delay",
			mutate:  func(c *Config) { c.Controller.FlushDelayMS = 0 },
			wantErr: true,
		},
		{
			name:    "empty sentinel",
			mutate:  func(c *Config) { c.Controller.NoScanSentinel = "" },
			wantErr: true,
		},
		{
			name: "bad transport scheme",
			mutate: func(c *Config) {
				c.Transport.Enabled = true
				c.Transport.Connection = "serial:///dev/ttyUSB0"
			},
			wantErr: true,
		},
		{
			name: "transport disabled skips connection check",
			mutate: func(c *Config) {
				c.Transport.Enabled = false
				c.Transport.Connection = "serial:///dev/ttyUSB0"
			},
			wantErr: false,
		},
		{
			name: "batch enabled without code",
			mutate: func(c *Config) {
				c.Batch.Enabled = true
				c.Batch.BatchCode = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Org = "envsort"
				c.InfluxDB.Bucket = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestControllerConfig_Durations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.Controller.DebounceCooldown().Milliseconds(); got != 2000 {
		t.Errorf("DebounceCooldown() = %dms, want 2000", got)
	}
	if got := cfg.Controller.FlushDelay().Milliseconds(); got != 120 {
		t.Errorf("FlushDelay() = %dms, want 120", got)
	}
	if got := cfg.Controller.FallbackTimeout().Milliseconds(); got != 5000 {
		t.Errorf("FallbackTimeout() = %dms, want 5000", got)
	}
	if got := cfg.Controller.DisplayReset().Milliseconds(); got != 2000 {
		t.Errorf("DisplayReset() = %dms, want 2000", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("ENVSORT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ENVSORT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ENVSORT_MQTT_USERNAME", "testuser")
	t.Setenv("ENVSORT_MQTT_PASSWORD", "testpass")
	t.Setenv("ENVSORT_API_HOST", "192.168.1.1")
	t.Setenv("ENVSORT_API_PORT", "9090")
	t.Setenv("ENVSORT_TRANSPORT_CONNECTION", "unix:///run/sorter.sock")
	t.Setenv("ENVSORT_BATCH_URL", "http://batch.example.com")
	t.Setenv("ENVSORT_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}

	if cfg.Transport.Connection != "unix:///run/sorter.sock" {
		t.Errorf("Transport.Connection = %q, want %q", cfg.Transport.Connection, "unix:///run/sorter.sock")
	}

	if cfg.Batch.BaseURL != "http://batch.example.com" {
		t.Errorf("Batch.BaseURL = %q, want %q", cfg.Batch.BaseURL, "http://batch.example.com")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.Controller.NoScanSentinel != "NO_SCAN" {
		t.Errorf("defaultConfig NoScanSentinel = %q, want %q", cfg.Controller.NoScanSentinel, "NO_SCAN")
	}

	if !cfg.Controller.Scanners.Scanner1 || !cfg.Controller.Scanners.Scanner2 || !cfg.Controller.Scanners.Scanner3 {
		t.Error("defaultConfig should enable all three scanners")
	}
}
