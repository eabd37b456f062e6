// copyfollow mirrors a set of leader traders' perpetual-futures fills onto
// a set of followers, sized per follower's configured ratio.
//
// Architecture: Ingest -> Grouper -> Executor, with a config cache
// refreshed from the database in the background and a small HTTP/cron
// surface managing followers and leaderboard ranking beside the pipeline.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/copyfollow/internal/api"
	"github.com/web3guy0/copyfollow/internal/bus"
	"github.com/web3guy0/copyfollow/internal/config"
	"github.com/web3guy0/copyfollow/internal/database"
	"github.com/web3guy0/copyfollow/internal/exchange"
	"github.com/web3guy0/copyfollow/internal/executor"
	"github.com/web3guy0/copyfollow/internal/followercache"
	"github.com/web3guy0/copyfollow/internal/grouper"
	"github.com/web3guy0/copyfollow/internal/ingest"
	"github.com/web3guy0/copyfollow/internal/leaderboard"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Int("leaders", len(cfg.LeaderAddresses)).
		Msg("copyfollow starting")

	db, err := database.New(cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Config cache — eager load before the pipeline emits anything
	// (spec.md §4.3: "the pipeline will not emit orders before the first
	// load completes").
	cache := followercache.NewStore(db)
	if err := cache.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load initial follower cache")
	}
	go cache.RefreshLoop(ctx, cfg.RefreshInterval)

	// 2. Buses
	fillBus := bus.NewBroadcast[grouper.Fill](cfg.FillBusCapacity)
	orderBus := bus.NewBroadcast[grouper.FullOrder](cfg.OrderBusCapacity)

	// 3. Grouper
	grouperFills := fillBus.Subscribe()
	g := grouper.New(grouper.Config{
		DebounceDelay:  time.Duration(cfg.DebounceMs) * time.Millisecond,
		QuietWindow:    time.Duration(cfg.QuietMs) * time.Millisecond,
		SweepInterval:  time.Duration(cfg.SweepMs) * time.Millisecond,
		SweepThreshold: 600 * time.Millisecond,
	})
	go g.Run(ctx, grouperFills, orderBus.Publish)

	// 4. Ingest — one subscriber per leader address
	for _, leader := range cfg.LeaderAddresses {
		sub := ingest.NewSubscriber(cfg.ExchangeWSURL, leader, cfg.ReconnectDelay, fillBus.Publish)
		go sub.Run(ctx)
	}

	// 5. Executor — dispatcher + worker pool, one exchange.Client per worker
	dispatcher := executor.NewDispatcher(cache, cfg.ChannelCapacity)
	dispatcherOrders := orderBus.Subscribe()
	go dispatcher.Run(ctx, dispatcherOrders)

	for i := 0; i < cfg.WorkerCount; i++ {
		client, err := exchange.NewClient(cfg.ExchangeRESTURL, cfg.AgentKey)
		if err != nil {
			log.Fatal().Err(err).Int("worker", i).Msg("failed to build exchange client")
		}
		worker := executor.NewWorker(i, client, db, dispatcher.Tasks())
		go worker.Run(ctx)
	}

	// 6. HTTP CRUD surface
	httpServer := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: api.NewServer(db).Handler(),
	}
	go func() {
		log.Info().Str("addr", cfg.APIAddr).Msg("api: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api: server error")
		}
	}()

	// 7. Leaderboard cron
	lbScheduler, err := leaderboard.NewScheduler(db, cfg.LeaderboardCron)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build leaderboard scheduler")
	}
	lbScheduler.Start()

	log.Info().Msg("all services started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	cancel()
	lbScheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api: shutdown error")
	}

	fillBus.Close()
	orderBus.Close()

	log.Info().Msg("shutdown complete")
}
