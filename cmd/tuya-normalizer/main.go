package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus/mqttbus"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/config"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/enrollment"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/metrics"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/refresh"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/store"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfgPath := flag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	logLevel := flag.String("log-level", "", "override log.level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("tuya-normalizer starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	deviceDB, err := engine.LoadDeviceDir(cfg.DevicesDir, logger)
	if err != nil {
		return fmt.Errorf("load device definitions: %w", err)
	}
	logger.Info("device definitions loaded", "devices", deviceDB.Len())

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	gw, err := mqttbus.New(mqttbus.Config{
		Broker:          cfg.Gateway.Broker,
		Username:        cfg.Gateway.Username,
		Password:        cfg.Gateway.Password,
		TopicPrefix:     cfg.Gateway.TopicPrefix,
		CoordinatorIEEE: cfg.Gateway.CoordinatorIEEE,
		RequestTimeout:  cfg.Gateway.RequestTimeout.Std(),
	}, logger)
	if err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	defer gw.Close()

	events := engine.NewEventBus(logger)
	eng := engine.New(gw, db, db, deviceDB, events, engine.Config{
		Enrollment: enrollment.Config{
			MaxAttempts:    cfg.Enrollment.MaxAttempts,
			Backoff:        cfg.Enrollment.Backoff.Std(),
			AttemptTimeout: cfg.Enrollment.AttemptTimeout.Std(),
		},
		Refresh: refresh.Config{
			InitialDelay: cfg.Refresh.InitialDelay.Std(),
			Interval:     cfg.Refresh.Interval.Std(),
		},
		ReadTimeout: cfg.Refresh.ReadTimeout.Std(),
	}, logger)
	defer eng.Stop()

	// Publishers subscribe before restore so they see restored capabilities.
	mqtt := initMQTT(eng, cfg, logger)
	defer mqtt.Stop()

	sink := initMetrics(events, cfg, logger)
	if sink != nil {
		defer sink.Close()
	}

	if err := eng.Restore(); err != nil {
		logger.Error("restore devices", "err", err)
	}

	webOpts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webServer := web.NewServer(eng, logger, webOpts...)
	defer webServer.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.Path)
	default:
		return store.NewBoltStore(cfg.Store.Path)
	}
}

func initMetrics(events *engine.EventBus, cfg *config.Config, logger *slog.Logger) *metrics.Sink {
	if !cfg.InfluxDB.Enabled {
		return nil
	}
	sink, err := metrics.Connect(metrics.Config{
		URL:           cfg.InfluxDB.URL,
		Token:         cfg.InfluxDB.Token,
		Org:           cfg.InfluxDB.Org,
		Bucket:        cfg.InfluxDB.Bucket,
		BatchSize:     cfg.InfluxDB.BatchSize,
		FlushInterval: cfg.InfluxDB.FlushInterval.Std(),
	}, logger)
	if err != nil {
		logger.Error("influxdb", "err", err)
		return nil
	}
	sink.Start(events)
	return sink
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
