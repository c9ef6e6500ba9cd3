package main

import (
	"context"
	"os"

	"invoice-reconciler/internal/adapters/cli"
	"invoice-reconciler/internal/ai"
	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/config"
	"invoice-reconciler/internal/db"
	"invoice-reconciler/internal/ledger"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.WarnLevel)
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	store := ledger.NewStore(pool)
	extractor := ai.NewExtractor(cfg.OpenAIKey, cfg.ExtractorModel, cfg.ExtractionTimeout)
	comparator := ai.NewComparator(cfg.OpenAIKey, cfg.ComparatorModel, cfg.ComparisonTimeout)

	svc := app.NewAppService(store, extractor, comparator, log, cfg.SearchTimeout)
	cli.Run(ctx, svc, os.Args[1:])
}
