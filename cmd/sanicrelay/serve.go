package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sanicball-project/sanicrelay/internal/api"
	"github.com/sanicball-project/sanicrelay/internal/cli"
	"github.com/sanicball-project/sanicrelay/internal/config"
	"github.com/sanicball-project/sanicrelay/internal/db"
	"github.com/sanicball-project/sanicrelay/internal/events"
	"github.com/sanicball-project/sanicrelay/internal/match"
	"github.com/sanicball-project/sanicrelay/internal/network"
	"github.com/sanicball-project/sanicrelay/internal/scheduler"
	"github.com/sanicball-project/sanicrelay/internal/server"
	"github.com/sanicball-project/sanicrelay/internal/telemetry"
	"github.com/sanicball-project/sanicrelay/internal/util"
)

const statsInterval = 24 * time.Hour

func serveCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configDir)
		},
	}
}

func runServe(configDir string) error {
	fmt.Printf(banner, version)
	fmt.Println()

	// Defaults until the config is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting sanicrelay")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appData := cfg.GetApplicationData()
	if err := util.InitLogger(util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxSizeMB:  appData.Logging.MaxSizeMB,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	var history *db.HistoryStore
	if appData.Database.Enabled {
		history, err = db.NewHistoryStore(appData.Database.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open match history, history disabled")
		} else {
			history.Subscribe(eventBus)
			defer history.Close()
		}
	}

	serverData := cfg.GetServerData()
	udpConn, err := network.Listen(ctx, serverData.IP, serverData.Port)
	if err != nil {
		return err
	}
	var conn server.PacketConn = udpConn
	if serverData.MaxPacketsPerSec > 0 {
		conn = network.NewLimitedConn(udpConn, serverData.MaxPacketsPerSec)
	}

	relay := server.New(conn, server.Options{
		Match: match.Config{
			Settings:         cfg.GetMatchData().Settings(),
			MOTD:             serverData.MOTD,
			LobbyCountdown:   appData.Timers.LobbyCountdownDuration(),
			StageLoadTimeout: appData.Timers.StageLoadTimeoutDuration(),
		},
		AppID:        serverData.AppID,
		PollInterval: appData.Timers.PollIntervalDuration(),
		Bus:          eventBus,
		Metrics:      metrics,
	})

	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	var pruner scheduler.Pruner
	if history != nil {
		pruner = history
	}
	sched := scheduler.NewScheduler(scheduler.Config{
		PruneInterval: appData.Timers.HistoryPruneIntervalDuration(),
		Retention:     time.Duration(appData.Database.RetentionDays) * 24 * time.Hour,
		StatsInterval: statsInterval,
	}, pruner, func() (int, int) {
		snap := relay.Snapshot()
		return len(snap.Clients), len(snap.Players)
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	// The relay loop is the only fatal task.
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", serverData.Port).Msg("starting relay")
		if err := relay.Run(ctx); err != nil {
			errCh <- fmt.Errorf("relay: %w", err)
		}
	}()

	if appData.API.Enabled {
		var historySource api.HistorySource
		if history != nil {
			historySource = history
		}
		apiServer := api.NewServer(cfg, api.Options{
			Version:  version,
			Match:    relay,
			History:  historySource,
			Gatherer: registry,
			Bus:      eventBus,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", appData.API.Port).Msg("starting status API")
			if err := startWithRetry(ctx, "status API", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("status API failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if appData.Console.Enabled {
		console := cli.NewCLI(cfg, relay, quit, os.Stdin, os.Stdout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			console.Start(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quitCh:
		log.Info().Msg("shutdown requested from console")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")
	eventBus.Emit(ctx, events.New(events.EventShutdown, "main", nil))
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()

	log.Info().Msg("sanicrelay stopped")
	return runErr
}

// startWithRetry starts a listener, retrying bind failures every 3 seconds.
// It returns nil on success or the last error once retries run out.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
