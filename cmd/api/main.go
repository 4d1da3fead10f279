package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/voltronic2mqtt/internal/adapter/actor"
	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/actor"
	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/plugins"
	"github.com/berfenger/voltronic2mqtt/internal/server"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func main() {

	// load and print config
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// device link, shared by the drivers and the command queue
	dispatcher := voltronic.NewDispatcher(cfg.Device.LinkConfig(), cfg.Device.QueueSize, logger)

	// load plugins and pick the device driver
	loader := plugin.NewLoader(cfg.Plugins.Directory, plugins.Catalog(), plugin.Deps{
		Device:         cfg.Device.LinkConfig(),
		Dispatcher:     dispatcher,
		VerifyChecksum: cfg.Device.VerifyChecksum,
		Logger:         logger,
	}, logger)
	discovery, err := loader.Discover(context.Background(), false)
	if err != nil {
		logger.Fatal("plugin discovery failed", zap.Error(err))
	}
	for _, loadErr := range discovery.Errors {
		logger.Warn("plugin not loaded", zap.Error(loadErr))
	}
	driver, err := loader.Device(cfg.Plugin)
	if err != nil {
		logger.Fatal("device plugin not available", zap.String("plugin", cfg.Plugin), zap.Error(err))
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg,
			inverterActorProvider(driver, logger),
			mqttActorProvider(cfg, logger),
			commandQueueActorProvider(cfg, dispatcher, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, loader.Plugins)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func inverterActorProvider(driver port.DeviceDriver, logger *zap.Logger) actor.InverterActorProvider {
	return func() *adactor.InverterActor {
		return adactor.NewInverterActor(driver, adactor.DEFAULT_DEVICE_TASK_TIMEOUT, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func commandQueueActorProvider(cfg *config.Config, dispatcher *voltronic.Dispatcher, logger *zap.Logger) actor.CommandQueueActorProvider {
	return func(publisher port.Publisher, es *eventstream.EventStream) *adactor.CommandQueueActor {
		return adactor.NewCommandQueueActor(dispatcher, publisher, es, cfg.Device.VerifyChecksum, logger)
	}
}

func safePrintConfig(cfg config.Config) {
	slog.Info("Using", "config", cfg.Redacted())
}
