package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"docsummary/internal/summarizer"
)

const (
	StoreDriverJSON   = "json"
	StoreDriverSQLite = "sqlite"
)

type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR"        envDefault:":3000"`
	JWTSecret      string        `env:"JWT_SECRET,required,notEmpty"`
	JWTTTL         time.Duration `env:"JWT_TTL"          envDefault:"24h"`
	StoreDriver    string        `env:"STORE_DRIVER"     envDefault:"json"`
	DataDir        string        `env:"DATA_DIR"         envDefault:"data"`
	DBPath         string        `env:"DB_PATH"          envDefault:"data/db.sqlite"`
	UploadDir      string        `env:"UPLOAD_DIR"       envDefault:"uploads"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	LogLevel       string        `env:"LOG_LEVEL"        envDefault:"info"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL"    envDefault:"gpt-4o-mini"`

	SummaryTemperature               float64       `env:"SUMMARY_TEMPERATURE"                  envDefault:"0.3"`
	SummaryMaxOutputTokens           int64         `env:"SUMMARY_MAX_OUTPUT_TOKENS"            envDefault:"2000"`
	SummaryIndividualMaxOutputTokens int64         `env:"SUMMARY_INDIVIDUAL_MAX_OUTPUT_TOKENS" envDefault:"1000"`
	SummaryTokenThreshold            int           `env:"SUMMARY_TOKEN_THRESHOLD"              envDefault:"12000"`
	SummaryRequestTimeout            time.Duration `env:"SUMMARY_REQUEST_TIMEOUT"              envDefault:"10m"`
	ChunkSize                        int           `env:"CHUNK_SIZE"                           envDefault:"4000"`
	ChunkOverlap                     int           `env:"CHUNK_OVERLAP"                        envDefault:"200"`
	MapConcurrency                   int           `env:"MAP_CONCURRENCY"                      envDefault:"4"`
	DocumentConcurrency              int           `env:"DOCUMENT_CONCURRENCY"                 envDefault:"2"`
	ModelRequestsPerSecond           float64       `env:"MODEL_REQUESTS_PER_SECOND"            envDefault:"0"`
	ModelBurst                       int           `env:"MODEL_BURST"                          envDefault:"1"`
	ModelCacheSize                   int           `env:"MODEL_CACHE_SIZE"                     envDefault:"256"`
	ModelCacheTTL                    time.Duration `env:"MODEL_CACHE_TTL"                      envDefault:"24h"`

	ExtractionWorkers int    `env:"EXTRACTION_WORKERS" envDefault:"2"`
	ReconcileSpec     string `env:"RECONCILE_SPEC"     envDefault:"*/10 * * * *"`
}

// Load reads an optional .env file and then parses the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	return Parse(env.Options{})
}

// Parse parses the configuration with explicit env options; tests pass
// Environment to avoid touching the process environment.
func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverJSON, StoreDriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.ChunkSize <= 0 {
		return errors.New("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errors.New("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.SummaryTokenThreshold <= 0 {
		return errors.New("SUMMARY_TOKEN_THRESHOLD must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}

	return nil
}

// ModelConfigured reports whether a model backend credential is present.
func (c Config) ModelConfigured() bool {
	return c.OpenAIAPIKey != ""
}

func (c Config) SummaryOptions() summarizer.Options {
	return summarizer.Options{
		Model:                     c.OpenAIModel,
		Temperature:               c.SummaryTemperature,
		MaxOutputTokens:           c.SummaryMaxOutputTokens,
		IndividualMaxOutputTokens: c.SummaryIndividualMaxOutputTokens,
		TokenThreshold:            c.SummaryTokenThreshold,
		ChunkSize:                 c.ChunkSize,
		ChunkOverlap:              c.ChunkOverlap,
		MapConcurrency:            c.MapConcurrency,
		DocumentConcurrency:       c.DocumentConcurrency,
	}
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
