// TapFlow Core - Flow Execution Engine
//
// This is the main entry point for the TapFlow Core application.
// TapFlow replays recorded touch sequences against appliance
// touchscreens via on-device agents, harvesting sensor readings from
// UIs that expose no other integration surface:
//   - Flow execution with screen verification and drift repair
//   - Scheduled sensor refresh with skip analysis
//   - MQTT publication for home automation hubs
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/tapflow-core/migrations"

	"github.com/nerrad567/tapflow-core/internal/api"
	"github.com/nerrad567/tapflow-core/internal/device"
	"github.com/nerrad567/tapflow-core/internal/events"
	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/extraction"
	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/config"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/database"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/logging"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tapflow-core/internal/scheduler"
	"github.com/nerrad567/tapflow-core/internal/sensor"
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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit // Startup sequence: component wiring + defer chain
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TapFlow Core",
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

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Device agents from configuration
	registry := device.NewRegistry(cfg.Agent.Devices, cfg.AgentTimeout())
	log.Info("device registry initialised", "devices", len(registry.DeviceIDs()))

	// Persistence
	flowRepo := flow.NewSQLiteRepository(db.DB)
	sensorStore := sensor.NewSQLiteStore(db.DB)

	// WebSocket hub is created here so the event sink can broadcast
	// before the API server starts.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Event fan-out to MQTT, InfluxDB, and the hub. A nil influx client
	// would be a typed-nil trap behind the Recorder interface, so it is
	// only wired when connected.
	var recorder events.Recorder
	if influxClient != nil {
		recorder = influxClient
	}
	sink := events.NewSink(mqttClient, recorder, hub, byte(cfg.MQTT.QoS), log)

	// Flow executor
	exec := executor.New(executor.Config{
		MaxTransportRetries:  cfg.Executor.MaxTransportRetries,
		RetryBackoff:         cfg.RetryBackoffDuration(),
		DriftRepairThreshold: cfg.Executor.DriftRepairThreshold,
		ActivityPollInterval: time.Duration(cfg.Executor.ActivityPollInterval) * time.Millisecond,
		ActivityTimeout:      time.Duration(cfg.Executor.ActivityTimeout) * time.Millisecond,
	}, executor.Deps{
		Flows:     flowRepo,
		Sensors:   sensorStore,
		Agents:    registry,
		Repair:    sensor.NewBoundsRepairService(sensorStore, log),
		Extractor: extraction.NewHTTPExtractor(cfg.Agent.Devices, cfg.AgentTimeout()),
		Logger:    log,
		Sink:      sink,
	})

	// Flow run commands from the bus: hub automations trigger a flow by
	// publishing to tapflow/flow/{id}/run.
	commands := events.NewCommandListener(mqttClient, flowRepo, exec, byte(cfg.MQTT.QoS), log)
	if err := commands.Start(ctx); err != nil {
		return fmt.Errorf("subscribing to flow run commands: %w", err)
	}
	log.Info("flow command listener started", "topic", mqtt.Topics{}.AllFlowRuns())

	// Scheduler (optional)
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{
			TickInterval:   time.Duration(cfg.Scheduler.TickInterval) * time.Second,
			BusyRetryDelay: time.Duration(cfg.Scheduler.BusyRetryDelay) * time.Second,
		}, flowRepo, exec, log)
		if startErr := sched.Start(ctx); startErr != nil {
			return fmt.Errorf("starting scheduler: %w", startErr)
		}
		defer func() {
			log.Info("stopping scheduler")
			sched.Stop()
		}()
		log.Info("scheduler started",
			"tick_interval", cfg.Scheduler.TickInterval,
			"busy_retry_delay", cfg.Scheduler.BusyRetryDelay,
		)
	} else {
		log.Info("scheduler disabled")
	}

	// API server
	apiDeps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Flows:       flowRepo,
		Sensors:     sensorStore,
		Runner:      exec,
		Devices:     registry,
		DB:          db,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	}
	if sched != nil {
		apiDeps.Scheduler = sched
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Scheduler
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("TapFlow Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TAPFLOW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TAPFLOW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
