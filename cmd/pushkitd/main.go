// pushkitd runs the background worker runtime as a daemon: it receives push
// payloads over HTTP, presents notifications, and fans clicks out to page
// sessions over the direct SSE stream, the MQTT broadcast channel, and the
// stored-signal fallback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moachat/pushkit/internal/api"
	"github.com/moachat/pushkit/internal/cachegen"
	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/errors"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/notify"
	"github.com/moachat/pushkit/internal/observability/metrics"
	"github.com/moachat/pushkit/internal/routing"
	"github.com/moachat/pushkit/internal/worker"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "pushkitd",
		Short:        "Push delivery and click routing daemon",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE: func(*cobra.Command, []string) error {
			settings, err := conf.Load(configFile)
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			fmt.Println("configuration ok")
			return nil
		},
	})

	return root
}

func run(ctx context.Context, configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := logger.LogLevelInfo
	if settings.WebServer.Debug {
		level = logger.LogLevelDebug
	}
	log := logger.NewSlogLogger(os.Stdout, level, []logger.Field{
		logger.String("service", "pushkitd"),
		logger.String("version", version),
	})

	if settings.Sentry.DSN != "" {
		if err := errors.InitTelemetry(settings.Sentry.DSN, version); err != nil {
			log.Warn("error telemetry disabled", logger.Error(err))
		}
	}

	m, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	storage, err := openStorage(settings, log)
	if err != nil {
		return err
	}

	caches := cachegen.NewManager(storage, settings.Worker.CacheVersion, settings.Worker.PrecacheRoutes, nil, log)

	surface, err := openSurface(settings, log)
	if err != nil {
		return err
	}
	presenter := notify.NewPresenter(surface, log, m.Push)

	broadcast, err := openBroadcast(settings, log)
	if err != nil {
		return err
	}
	defer func() { _ = broadcast.Close() }()

	stored := routing.NewStoredSignal(settings.Worker.StoredSignalTTL.Std())
	registry := worker.NewInProcRegistry(nil)
	dispatcher := routing.NewDispatcher(registry, broadcast, stored, settings.BaseURL, log, m.Routing)

	runtime := worker.New(caches, presenter, dispatcher, settings.Worker.Defaults, log, m.Push)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.Install(ctx); err != nil {
		return fmt.Errorf("cache install failed: %w", err)
	}
	if err := runtime.Activate(ctx); err != nil {
		return fmt.Errorf("cache activate failed: %w", err)
	}
	log.Info("cache generation active",
		logger.String("generation", cachegen.GenerationName(settings.Worker.CacheVersion)))

	controller := api.New(settings, runtime, broadcast, registry, m, log)
	log.Info("pushkitd listening", logger.Int("port", settings.WebServer.Port))
	return controller.Start(ctx)
}

func openStorage(settings *conf.Settings, log logger.Logger) (cachegen.Storage, error) {
	if settings.Store.Path == "" {
		log.Info("using in-memory cache storage")
		return cachegen.NewMemoryStorage(), nil
	}
	storage, err := cachegen.OpenSQLiteStorage(settings.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	log.Info("using sqlite cache storage", logger.String("path", settings.Store.Path))
	return storage, nil
}

func openSurface(settings *conf.Settings, log logger.Logger) (notify.Surface, error) {
	if len(settings.Notifier.URLs) == 0 {
		log.Warn("no notifier URLs configured, notifications will be logged only")
		return notify.NewLogSurface(log), nil
	}
	surface, err := notify.NewShoutrrrSurface(settings.Notifier.URLs, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure notification surface: %w", err)
	}
	return surface, nil
}

func openBroadcast(settings *conf.Settings, log logger.Logger) (routing.Broadcast, error) {
	if !settings.MQTT.Enabled {
		return routing.NewInProcBroadcast(), nil
	}
	b, err := routing.NewMQTTBroadcast(settings.MQTT, settings.Worker.BroadcastTopic, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect broadcast channel: %w", err)
	}
	return b, nil
}
