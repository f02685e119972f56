// Package bootstrap builds the components shared by the API server and the
// command line tool from one configuration.
package bootstrap

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/academicapi"
	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/cache/redis"
	"github.com/henny-hen/DASOS-backend/internal/extraction"
	"github.com/henny-hen/DASOS-backend/internal/llm"
	"github.com/henny-hen/DASOS-backend/internal/pipeline"
	"github.com/henny-hen/DASOS-backend/internal/storage/sqlite"
	"github.com/henny-hen/DASOS-backend/pkg/circuitbreaker"
	"github.com/henny-hen/DASOS-backend/pkg/config"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
	"github.com/henny-hen/DASOS-backend/pkg/retry"
)

type Components struct {
	Store     *sqlite.Client
	Redis     *redis.Client
	Processor *extraction.Processor
	API       *academicapi.Client
	Syncer    *academicapi.Syncer
	Runner    *pipeline.Runner
}

type Options struct {
	// ForceRefresh makes the API client ignore cached payloads.
	ForceRefresh bool
	// TrendMode overrides analysis.trendMode when set.
	TrendMode string
}

// InitLogger configures the package logger from the logging section.
func InitLogger(cfg *config.Config) error {
	return logger.InitWithRotation(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath, logger.FileOptions{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   true,
	})
}

// Open opens the store and wires every component. Redis and the LLM narrator
// are optional; when Redis is unreachable the on-disk cache is used instead.
func Open(cfg *config.Config, opts Options) (*Components, error) {
	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := &Components{Store: store}

	var cache academicapi.PayloadCache = academicapi.NewFileCache(cfg.API.CacheDir)
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			logger.Warn("Redis unavailable, using file cache", zap.Error(err))
		} else {
			c.Redis = rc
			cache = rc
		}
	}

	c.API = academicapi.NewClient(academicapi.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: time.Duration(cfg.API.TimeoutSec) * time.Second,
		Retry: retry.Config{
			MaxAttempts:    cfg.API.MaxAttempts,
			InitialDelay:   time.Duration(cfg.API.InitialDelay) * time.Millisecond,
			MaxDelay:       10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		Breaker: circuitbreaker.Config{
			MaxRequests:      1,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 1,
		},
		Cache:        cache,
		ForceRefresh: opts.ForceRefresh,
	})
	c.Syncer = academicapi.NewSyncer(store, c.API, cfg.API.Workers, time.Duration(cfg.API.RequestPaceMS)*time.Millisecond)
	c.Processor = extraction.NewProcessor(store)

	trendMode := cfg.Analysis.TrendMode
	if opts.TrendMode != "" {
		trendMode = opts.TrendMode
	}
	estimator, err := analysis.SelectEstimator(trendMode)
	if err != nil {
		c.Close()
		return nil, err
	}

	var narrator pipeline.Narrator
	if cfg.LLM.Enabled {
		narrator = llm.NewNarrator(llm.NewClient(llm.Options{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		}))
	}

	c.Runner = pipeline.NewRunner(
		store,
		analysis.NewTrendAnalyzer(estimator, cfg.Analysis.Alpha),
		analysis.NewCorrelationEngine(cfg.Analysis.Alpha),
		trendMode,
		narrator,
	).WithDefaultMetric(cfg.Analysis.Metric)

	logger.Info("Components initialized",
		zap.String("database", cfg.SQLite.Path),
		zap.String("trend_mode", trendMode),
		zap.String("metric", cfg.Analysis.Metric),
		zap.Bool("redis", c.Redis != nil),
		zap.Bool("narrator", narrator != nil),
	)
	return c, nil
}

func (c *Components) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := c.Store.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
}
