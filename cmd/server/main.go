package main

import (
	"context"
	"net/http"
	"os"

	"invoice-reconciler/internal/adapters/web"
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
	log.SetOutput(os.Stdout)

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
	handler := web.NewHandler(svc, log, cfg.AllowedOrigins)

	log.Infof("server starting on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
