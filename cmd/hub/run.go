package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/ingest"
	"github.com/nerrad567/gray-logic-hub/internal/outbound"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// historyPruneInterval is how often old value history is deleted.
const historyPruneInterval = time.Hour

// run wires every component and blocks until ctx is cancelled.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"hub_id", cfg.Hub.ID,
		"level", cfg.Logging.Level,
	)

	// ─── Storage ────────────────────────────────────────────────────

	var (
		db      *database.DB
		history *device.SQLiteValueHistoryRepository
	)
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
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

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		history = device.NewSQLiteValueHistoryRepository(db.DB)
	} else {
		log.Info("database disabled, value history off")
	}

	// ─── Devices ────────────────────────────────────────────────────

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("device"))
	if err := registerStaticDevices(registry, cfg.Devices); err != nil {
		return err
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// ─── MQTT ───────────────────────────────────────────────────────

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

	// ─── InfluxDB (optional) ────────────────────────────────────────

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

	// ─── Automation store ───────────────────────────────────────────

	dispatcher := newDispatcher(cfg.Outbound, mqttClient, cfg.MQTT.QoS)
	hubMetrics := metrics.New()

	wsHub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go wsHub.Run(ctx)

	hubs := automation.Hubs{wsHub}
	if mqttClient != nil {
		hubs = append(hubs, mqtt.NewEventMirror(mqttClient, log.Component("mqtt")))
	}
	if influxClient != nil {
		hubs = append(hubs, ingest.NewTelemetry(influxClient, log.Component("telemetry")))
	}

	store := automation.NewStore(registry, dispatcher,
		automation.WithHub(hubs),
		automation.WithRecorder(hubMetrics),
		automation.WithLogger(log.Component("automation")),
		automation.WithRequestTimeout(outbound.Timeout(cfg.Outbound)),
	)
	defer func() {
		log.Info("closing automation store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing automation store", "error", closeErr)
		}
	}()

	pipelineOpts := []ingest.Option{
		ingest.WithHub(hubs),
		ingest.WithRecorder(hubMetrics),
		ingest.WithLogger(log.Component("ingest")),
	}
	if history != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithHistory(history))
	}
	if influxClient != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithTelemetry(influxClient))
	}
	pipeline := ingest.NewPipeline(store, pipelineOpts...)

	if mqttClient != nil {
		subscriber := ingest.NewSubscriber(mqttClient, pipeline, byte(cfg.MQTT.QoS)) //nolint:gosec // qos validated 0-2
		if startErr := subscriber.Start(); startErr != nil {
			return fmt.Errorf("subscribing to channel values: %w", startErr)
		}
		defer func() {
			if stopErr := subscriber.Stop(); stopErr != nil {
				log.Warn("error unsubscribing channel values", "error", stopErr)
			}
		}()
		log.Info("MQTT value ingest started", "topic", mqtt.Topics{}.AllChannelValues())
	}

	// ─── API server ─────────────────────────────────────────────────

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Registry:    registry,
		Store:       store,
		Pipeline:    pipeline,
		History:     historyOrNil(history),
		Metrics:     hubMetrics,
		MQTT:        mqttClient,
		DB:          db,
		ExternalHub: wsHub,
		Version:     version,
	})
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// ─── Background work ────────────────────────────────────────────

	if cfg.Hub.ConnectOnStart {
		go func() {
			if connErr := ingest.ConnectStatic(ctx, registry.List(), dispatcher, log.Component("ingest")); connErr != nil {
				log.Warn("some static channels did not accept a connect request", "error", connErr)
			}
		}()
	}

	if history != nil && cfg.Hub.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.Hub.HistoryRetentionDays) * 24 * time.Hour
		go pruneHistory(ctx, history, retention, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, MQTT ingest, automation store, InfluxDB, MQTT, database.

	log.Info("Gray Logic Hub stopped")
	return nil
}

// registerStaticDevices registers the devices declared in configuration.
func registerStaticDevices(registry *device.Registry, devices []config.DeviceConfig) error {
	for _, dc := range devices {
		d, err := device.New(device.Definition{
			ID:        dc.ID,
			Channels:  dc.Channels,
			Subscribe: dc.Subscribe,
			Update:    dc.Update,
		})
		if err != nil {
			return fmt.Errorf("registering device %q: %w", dc.ID, err)
		}
		registry.Register(d)
	}
	return nil
}

// newDispatcher routes http(s) templates over HTTP and mqtt templates
// through the broker when MQTT is enabled.
func newDispatcher(cfg config.OutboundConfig, mqttClient *mqtt.Client, qos int) *outbound.Dispatcher {
	d := outbound.NewDispatcher(cfg)

	httpRequester := outbound.NewHTTPRequester(&http.Client{Timeout: outbound.Timeout(cfg)}, cfg.UserAgent)
	d.Handle("http", httpRequester)
	d.Handle("https", httpRequester)

	if mqttClient != nil {
		d.Handle("mqtt", outbound.NewMQTTRequester(mqttClient, byte(qos))) //nolint:gosec // qos validated 0-2
	}
	return d
}

// historyOrNil keeps a nil repository a nil interface.
func historyOrNil(h *device.SQLiteValueHistoryRepository) device.ValueHistoryRepository {
	if h == nil {
		return nil
	}
	return h
}

// historyPruner deletes old value history.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory deletes value history older than retention once at start
// and then every historyPruneInterval.
func pruneHistory(ctx context.Context, history historyPruner, retention time.Duration, log *logging.Logger) {
	prune := func() {
		n, err := history.PruneHistory(ctx, retention)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("value history prune failed", "error", err)
		case n > 0:
			log.Info("value history pruned", "rows", n)
		}
	}

	prune()
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled components are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
