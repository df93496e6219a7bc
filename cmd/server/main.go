package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/mmutlucod/realtime-call-app/internal/adapters/http"
	"github.com/mmutlucod/realtime-call-app/internal/adapters/push"
	"github.com/mmutlucod/realtime-call-app/internal/adapters/turnrest"
	"github.com/mmutlucod/realtime-call-app/internal/app"
	"github.com/mmutlucod/realtime-call-app/internal/app/notify"
	"github.com/mmutlucod/realtime-call-app/internal/app/orch"
	"github.com/mmutlucod/realtime-call-app/internal/config"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var notifier core.Notifier = notify.LogNotifier{}
	if cfg.Push.Enabled {
		notifier = push.NewExpoNotifier(cfg.Push.Endpoint, cfg.Push.AccessToken, cfg.Push.Timeout)
	}
	alerts := notify.NewDispatcher(notifier, cfg.Push.Workers, cfg.Push.QueueSize, cfg.Push.Timeout)

	calls, err := store.Open(cfg.CallLog)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.CallLog.Driver).Msg("failed to open call log")
	}

	var turn *turnrest.Generator
	if cfg.ICE.TurnSecret != "" {
		turn, err = turnrest.NewGenerator(cfg.ICE.TurnSecret, cfg.ICE.TurnTTL, cfg.ICE.TurnURLs)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid TURN REST settings")
		}
	}

	policy, err := app.PolicyFor(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backpressure policy")
	}

	coordinator := &orch.Coordinator{
		Registry:    app.NewRegistry(),
		Calls:       app.NewCallTable(),
		Policy:      policy,
		Alerts:      alerts,
		CallLog:     calls,
		RingTimeout: cfg.RingTimeout,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: coordinator, History: calls, Turn: turn})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("call signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	coordinator.Close()
	alerts.Close()
	if err := calls.Close(); err != nil {
		log.Error().Err(err).Msg("call log close")
	}
	log.Info().Msg("Server exited gracefully")
}
