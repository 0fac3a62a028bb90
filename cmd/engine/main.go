// cmd/engine/main.go
//
// Entrypoint for the heat-scoring and aggregation engine. Wires config,
// logging, storage, cache, the upstream client, and every scoring
// component, then starts the scheduler and (if a mux is mounted) the HTTP
// contract surface from internal/api.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heatsight/internal/aggregator"
	"heatsight/internal/api"
	"heatsight/internal/cache"
	"heatsight/internal/config"
	"heatsight/internal/fanout"
	"heatsight/internal/scheduler"
	"heatsight/internal/sourceweight"
	"heatsight/internal/store"
	"heatsight/internal/trending"
	"heatsight/internal/upstream"
	appLogger "heatsight/pkg/logger"
)

func main() {
	log := appLogger.NewLogger()
	log.Info("starting heatsight engine")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "port", cfg.Port, "heatlink_api_url", cfg.HeatlinkAPIURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info("migrations complete")

	heatCache := cache.Connect(ctx, cfg.RedisURL, log)
	defer heatCache.Disconnect()

	heatStore := store.New(db)
	client := upstream.New(cfg, heatCache, log)
	fetcher := fanout.New(client, log, cfg.FanoutChunkSize, cfg.FanoutSourceTimeout)
	batch := aggregator.New(client, fetcher, heatStore, heatCache, cfg, log)
	trendingAgg := trending.New(heatStore, heatCache, cfg, log)
	learner := sourceweight.New(client, heatCache, cfg, log)

	sched := scheduler.New(batch, trendingAgg, learner, cfg, log)
	if err := sched.Start(ctx); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler started",
		"heat_update_interval_seconds", cfg.HeatUpdateIntervalSec,
		"keyword_update_interval_seconds", cfg.KeywordUpdateIntervalSec,
		"source_weight_update_interval_seconds", cfg.SourceWeightIntervalSec,
	)

	handlers := api.New(heatStore, heatCache, client, batch, trendingAgg, learner, log)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("GET /health/details", handlers.HealthDetails)
	mux.HandleFunc("GET /health/cache", handlers.HealthCache)
	mux.HandleFunc("POST /heat-score/scores", handlers.Scores)
	mux.HandleFunc("POST /heat-score/detailed-scores", handlers.DetailedScores)
	mux.HandleFunc("GET /heat-score/top", handlers.Top)
	mux.HandleFunc("GET /heat-score/keywords", handlers.Keywords)
	mux.HandleFunc("GET /heat-score/source-weights", handlers.SourceWeights)
	mux.HandleFunc("POST /heat-score/update-heat-scores", handlers.UpdateHeatScores)
	mux.HandleFunc("POST /heat-score/update-keyword-heat", handlers.UpdateKeywordHeat)
	mux.HandleFunc("POST /heat-score/update-source-weights", handlers.UpdateSourceWeights)
	mux.HandleFunc("POST /heat-score/update-categories", handlers.UpdateCategories)
	mux.HandleFunc("GET /external/hot", handlers.GetHot)
	mux.HandleFunc("GET /external/unified", handlers.GetUnified)
	mux.HandleFunc("GET /external/search", handlers.Search)
	mux.HandleFunc("GET /external/sources", handlers.Sources)
	mux.HandleFunc("GET /external/source/{source_id}", func(w http.ResponseWriter, r *http.Request) {
		handlers.Source(w, r, r.PathValue("source_id"))
	})

	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("http server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced shutdown", "error", err)
	}
	sched.Stop()
	log.Info("shutdown complete")
}
