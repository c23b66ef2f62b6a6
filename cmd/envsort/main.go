// Envelope Sorting Core - Kiosk Scan Aggregation Service
//
// This is the main entry point for the Envelope Sorting Core application.
// It aggregates barcode scans from three sources per item, validates them
// against a reference dataset, and drives the sorter hardware:
//   - Offline-first operation (local session files, local SQLite history)
//   - Line-oriented serial-bridge protocol to the sorter
//   - Optional MQTT, InfluxDB telemetry, and upstream batch logging
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/envsort/envsort-core/migrations"

	"github.com/envsort/envsort-core/internal/api"
	"github.com/envsort/envsort-core/internal/audit"
	"github.com/envsort/envsort-core/internal/batch"
	"github.com/envsort/envsort-core/internal/controller"
	"github.com/envsort/envsort-core/internal/infrastructure/config"
	"github.com/envsort/envsort-core/internal/infrastructure/database"
	"github.com/envsort/envsort-core/internal/infrastructure/influxdb"
	"github.com/envsort/envsort-core/internal/infrastructure/logging"
	"github.com/envsort/envsort-core/internal/infrastructure/mqtt"
	"github.com/envsort/envsort-core/internal/session"
	"github.com/envsort/envsort-core/internal/timer"
	"github.com/envsort/envsort-core/internal/transport"
	"github.com/envsort/envsort-core/internal/validate"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Envelope Sorting Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	auditRepo := audit.NewSQLiteRepository(db.DB)
	sessionRepo := session.NewRepository(db.DB)

	// Load reference dataset (created with defaults on first run)
	ref, err := validate.LoadReference(cfg.Storage.ReferencePath)
	if err != nil {
		return fmt.Errorf("loading reference dataset: %w", err)
	}
	log.Info("reference dataset loaded",
		"path", cfg.Storage.ReferencePath,
		"entries", ref.Len(),
	)

	sessionLog := session.NewLog(cfg.Storage.SessionDir)
	sessionLog.SetLogger(log)

	// Connect to MQTT broker (optional)
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Batch logging API client (optional)
	var batchClient *batch.Client
	if cfg.Batch.Enabled {
		batchClient = batch.NewClient(cfg.Batch)
		log.Info("batch client configured", "base_url", cfg.Batch.BaseURL)
	} else {
		log.Info("batch logging disabled")
	}

	// Connect to the sorter hardware (optional, bench mode without it)
	var hardware transport.Conn
	if cfg.Transport.Enabled {
		hwClient, hwErr := transport.Connect(ctx, transport.Config{
			Connection:     cfg.Transport.Connection,
			ConnectTimeout: cfg.Transport.ConnectTimeout(),
			ReadTimeout:    cfg.Transport.ReadTimeout(),
			ReconnectDelay: cfg.Transport.ReconnectDelay(),
		})
		if hwErr != nil {
			return fmt.Errorf("connecting to sorter hardware: %w", hwErr)
		}
		defer func() {
			log.Info("closing hardware connection")
			if closeErr := hwClient.Close(); closeErr != nil {
				log.Error("error closing hardware connection", "error", closeErr)
			}
		}()
		hwClient.SetLogger(log)
		hardware = hwClient
		log.Info("sorter hardware connected", "connection", cfg.Transport.Connection)
	} else {
		hardware = transport.Noop()
		log.Info("hardware link disabled, commands will be dropped")
	}

	// WebSocket hub is shared between the API server and the controller
	hub := api.NewHub(cfg.WebSocket, log)

	// Timer callbacks are marshalled onto the controller loop. The
	// scheduler closes over ctrl, which is assigned below; callbacks
	// cannot fire before the loop starts.
	var ctrl *controller.SessionController
	timers := timer.NewScheduler(func(fn func()) {
		ctrl.Dispatch(fn)
	})
	defer timers.Stop()

	deps := controller.Deps{
		Config:    cfg.Controller,
		Timers:    timers,
		Validator: validate.New(ref),
		Sessions:  sessionLog,
		Store:     sessionRepo,
		Audit:     auditRepo,
		Hardware:  hardware,
		Hub:       hub,
		Logger:    log,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	if batchClient != nil {
		deps.Batch = batchClient
	}
	ctrl = controller.New(deps)

	// Feed hardware lines into the controller's event queue
	hardware.SetOnLine(ctrl.SubmitLine)

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Controller:  ctrl,
		SessionRepo: sessionRepo,
		AuditRepo:   auditRepo,
		Reference:   ref,
		Hardware:    hardware,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete")

	// Supervise the long-running loops
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, hardware, InfluxDB, MQTT, database.

	log.Info("Envelope Sorting Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ENVSORT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ENVSORT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Hardware link health is reflected in its stats and reconnect loop;
	// a disconnected sorter is an operational state, not a startup failure.

	return nil
}
