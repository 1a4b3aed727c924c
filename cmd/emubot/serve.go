package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/emubot-core/migrations"

	"github.com/nerrad567/emubot-core/internal/api"
	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/catalog"
	"github.com/nerrad567/emubot-core/internal/infrastructure/config"
	"github.com/nerrad567/emubot-core/internal/infrastructure/database"
	"github.com/nerrad567/emubot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/emubot-core/internal/infrastructure/logging"
	"github.com/nerrad567/emubot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/emubot-core/internal/remote"
	"github.com/nerrad567/emubot-core/internal/telemetry"
)

const (
	// deviceListTimeout bounds the startup `adb devices` listing.
	deviceListTimeout = 5 * time.Second

	auditPruneInterval = 24 * time.Hour
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the emubot service",
		Long: `Run the emubot service: script and bot catalog, execution engine,
runner, HTTP API and, when enabled, the MQTT bridge and InfluxDB telemetry.
Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, path)
		},
	}
}

// serve is the service lifecycle, separated from the command for testability.
// It returns nil on a clean shutdown.
func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting emubot",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
		"site", cfg.Site.ID,
	)

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Database))
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // informational only
	log.Info("database migrations complete", "schema_version", schema)

	// Catalog
	cat := catalog.NewRegistry(catalog.NewSQLiteRepository(db.DB))
	cat.SetLogger(log.Component("catalog"))
	if refreshErr := cat.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading catalog: %w", refreshErr)
	}
	scripts, bots := cat.Counts()
	log.Info("catalog loaded", "scripts", scripts, "bots", bots)

	// Audit trail
	trail := audit.NewTrail(audit.NewSQLiteRepository(db.DB))
	trail.SetLogger(log.Component("audit"))
	if retention := cfg.GetAuditRetention(); retention > 0 {
		go pruneAudit(ctx, trail, retention, log)
	}

	// Execution stack
	c := newCore(cfg, cat, log)
	listDevices(ctx, c, log)

	// Telemetry (InfluxDB optional; counters always on)
	var influxClient *influxdb.Client
	var sink telemetry.Sink
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
		sink = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}
	recorder := telemetry.NewRecorder(sink)
	c.engine.SetObserver(recorder)
	c.runner.AddObserver(recorder)

	// MQTT bridge (optional)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, bridgeErr := remote.NewBridge(remote.Options{
			Client: mqttClient,
			Bots:   cat,
			Runner: c.runner,
			Engine: c.engine,
			Audit:  trail,
			QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
			Logger: log.Component("remote"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
		c.runner.AddObserver(bridge)
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API
	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Catalog:   cat,
		Runner:    c.runner,
		Engine:    c.engine,
		Instances: c.instances,
		DB:        db,
		Audit:     trail,
		Telemetry: recorder,
		Version:   version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if !cfg.AuthEnabled() {
		log.Warn("API authentication disabled; set security.jwt.secret to require tokens")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if err := shutdown(cfg.GetShutdownTimeout(), c); err != nil {
		log.Warn("scripts did not stop before timeout", "error", err)
	}

	log.Info("emubot stopped")
	return nil
}

// shutdown interrupts running scripts first, since runner drivers block on
// their executions, then waits for the drivers to return.
func shutdown(timeout time.Duration, c *core) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := c.engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := c.runner.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("runner: %w", err))
	}
	return errors.Join(errs...)
}

// pruneAudit deletes expired audit entries now and then daily until ctx ends.
func pruneAudit(ctx context.Context, trail *audit.Trail, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(auditPruneInterval)
	defer ticker.Stop()

	for {
		n, err := trail.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("audit prune failed", "error", err)
		case n > 0:
			log.Info("audit entries pruned", "count", n, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// listDevices logs the attached adb devices. Failure is not fatal: the
// emulators may come up after the service.
func listDevices(ctx context.Context, c *core, log *logging.Logger) {
	listCtx, cancel := context.WithTimeout(ctx, deviceListTimeout)
	defer cancel()

	serials, err := c.device.Devices(listCtx)
	if err != nil {
		log.Warn("adb device listing failed", "error", err)
		return
	}
	log.Info("adb devices attached", "count", len(serials), "serials", serials)
}

// healthCheck verifies all connected services.
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

	return nil
}
