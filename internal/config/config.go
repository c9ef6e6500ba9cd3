package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config carries everything the collaborator clients and adapters need.
// It is constructed once in cmd/ and passed explicitly; nothing reads
// ambient globals after startup.
type Config struct {
	DatabaseURL     string `validate:"required"`
	OpenAIKey       string `validate:"required"`
	ExtractorModel  string `validate:"required"`
	ComparatorModel string `validate:"required"`
	ListenAddr      string `validate:"required"`
	AllowedOrigins  string

	// Document analysis is materially slower than catalog search.
	ExtractionTimeout time.Duration `validate:"min=1s"`
	ComparisonTimeout time.Duration `validate:"min=1s"`
	SearchTimeout     time.Duration `validate:"min=100ms"`
}

// Load populates Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		ExtractorModel:    envOr("EXTRACTOR_MODEL", "gpt-4o"),
		ComparatorModel:   envOr("COMPARATOR_MODEL", "gpt-4o"),
		ListenAddr:        ":" + envOr("SERVER_PORT", "8080"),
		AllowedOrigins:    os.Getenv("ALLOWED_ORIGINS"),
		ExtractionTimeout: durationOr("EXTRACTION_TIMEOUT", 60*time.Second),
		ComparisonTimeout: durationOr("COMPARISON_TIMEOUT", 60*time.Second),
		SearchTimeout:     durationOr("SEARCH_TIMEOUT", 3*time.Second),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
