package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/relay"
	"github.com/dkeye/Huddle/internal/config"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	iceServers, err := cfg.ICEServers()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ICE server config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rooms := app.NewRoomStore(time.Now)
	reg := app.NewRegistry()
	delivery := signal.NewDelivery(reg, app.PolicyByName(cfg.Backpressure))
	hub := signal.NewHub(relay.New(rooms, reg, delivery), cfg.HubQueue)
	limiter := signal.NewConnRateLimiter(cfg.RateLimit, cfg.RateBurst)
	ctl := signal.NewSignalWSController(hub, reg, limiter, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	sweeper := app.NewSweeper(rooms, cfg.SweepInterval, cfg.StaleAfter, hub.Exec)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Rooms:      rooms,
		Registry:   reg,
		Signal:     ctl,
		ICEServers: iceServers,
		StartedAt:  time.Now(),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() { hub.Run(ctx) })
	sweeper.Start(ctx)
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("Huddle signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	})

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"sweeper": func(ctx context.Context) error {
				return sweeper.Stop(ctx)
			},
			// connections go first so their disconnects still reach the hub
			"hub": func(ctx context.Context) error {
				closeErr := ctl.CloseAll(ctx)
				return errors.Join(closeErr, hub.Stop(ctx))
			},
		},
	)

	exitCode := <-wait
	cancel()
	wg.Wait()
	log.Info().Int("code", exitCode).Msg("Server exited")
	os.Exit(exitCode)
}
