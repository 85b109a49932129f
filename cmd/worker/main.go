// Package main provides the entry point for the ASO worker service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/internal/appstore"
	"github.com/appagent/aso/internal/config"
	"github.com/appagent/aso/internal/db/gorm"
	"github.com/appagent/aso/internal/llm"
	"github.com/appagent/aso/internal/pipeline"
	"github.com/appagent/aso/internal/scoring"
	"github.com/appagent/aso/internal/worker"
)

var Version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Local .env is optional; real deployments set the environment.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	log.Info().
		Str("version", Version).
		Msg("Starting AppAgent ASO worker")

	cfg := config.Get()

	store, err := gorm.NewStore(gorm.Config{
		DSN:      cfg.DatabaseDSN,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	competitorStore := gorm.NewCompetitorStore(store)
	keywordStore := gorm.NewKeywordStore(store)
	localizationStore := gorm.NewLocalizationStore(store)

	cache := appstore.NewCache(cfg.RedisAddr)
	searchClient := appstore.NewClient(cfg.SearchBaseURL, cache, cfg.SearchCacheTTL)
	calculator := scoring.NewCalculator(searchClient)

	model, err := llm.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize model client")
	}

	pipelines := pipeline.New(pipeline.Deps{
		Search:          searchClient,
		Model:           model,
		Scorer:          calculator,
		Competitors:     competitorStore,
		Keywords:        keywordStore,
		Localizations:   localizationStore,
		KeywordCache:    cache,
		KeywordCacheTTL: cfg.KeywordCacheTTL,
	})

	svc := worker.NewService(Version, cfg, worker.Deps{
		Store:         store,
		Competitors:   competitorStore,
		Keywords:      keywordStore,
		Localizations: localizationStore,
		Pipelines:     pipelines,
		Search:        searchClient,
		Scorer:        calculator,
	})

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Worker shutdown complete")
}
