package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/inspector/internal/config"
	"github.com/leapstack-labs/inspector/pkg/adapter"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/objstore"
	s3store "github.com/leapstack-labs/inspector/pkg/objstore/s3"
	"github.com/leapstack-labs/inspector/pkg/ocr"
	"github.com/leapstack-labs/inspector/pkg/ocr/textract"
)

// Default load settings.
const (
	DefaultBatchSize        = 1000
	DefaultQualityThreshold = 0.95
)

// Settings are the run-wide knobs stages read.
type Settings struct {
	// StagingBucket receives direct-content PDFs before OCR.
	StagingBucket    string
	OCR              ocr.Options
	BatchSize        int
	QualityThreshold float64
}

func (s Settings) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

func (s Settings) qualityThreshold() float64 {
	if s.QualityThreshold <= 0 {
		return DefaultQualityThreshold
	}
	return s.QualityThreshold
}

// Env gives stages their clients. Each stage opens what it needs through
// the factories and closes it before returning.
type Env struct {
	Logger   *slog.Logger
	Settings Settings

	OpenStore      func(ctx context.Context) (objstore.Store, error)
	OpenWarehouse  func(ctx context.Context) (core.Adapter, error)
	OpenRecognizer func(ctx context.Context) (ocr.Recognizer, error)

	// AI is nil when no extraction service is configured.
	AI      AIExtractor
	Metrics *Metrics
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e *Env) store(ctx context.Context) (objstore.Store, error) {
	if e.OpenStore == nil {
		return nil, fmt.Errorf("no object store configured")
	}
	return e.OpenStore(ctx)
}

func (e *Env) warehouse(ctx context.Context) (core.Adapter, error) {
	if e.OpenWarehouse == nil {
		return nil, fmt.Errorf("no warehouse configured")
	}
	return e.OpenWarehouse(ctx)
}

func (e *Env) recognizer(ctx context.Context) (ocr.Recognizer, error) {
	if e.OpenRecognizer == nil {
		return nil, fmt.Errorf("no OCR service configured")
	}
	return e.OpenRecognizer(ctx)
}

// NewEnv wires production clients from configuration. Warehouse adapters
// must be registered by the caller's imports.
func NewEnv(cfg *config.Config, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}

	env := &Env{
		Logger: logger,
		Settings: Settings{
			StagingBucket: cfg.Storage.StagingBucket,
			OCR: ocr.Options{
				PollInterval: cfg.OCR.PollInterval,
				MaxWait:      cfg.OCR.MaxWait,
				Logger:       logger,
			},
			BatchSize:        cfg.Pipeline.BatchSize,
			QualityThreshold: cfg.Pipeline.QualityThreshold,
		},
		Metrics: metrics,
	}

	warehouse := cfg.Warehouse.AdapterConfig()
	env.OpenWarehouse = func(ctx context.Context) (core.Adapter, error) {
		return adapter.Open(ctx, warehouse, logger)
	}

	storage := cfg.Storage
	env.OpenStore = func(ctx context.Context) (objstore.Store, error) {
		if storage.Type == "s3" {
			return s3store.NewFromConfig(ctx, storage.Region, storage.Endpoint)
		}
		return objstore.NewDir(storage.Root), nil
	}

	region := cfg.OCR.Region
	if region == "" {
		region = storage.Region
	}
	env.OpenRecognizer = func(ctx context.Context) (ocr.Recognizer, error) {
		return textract.NewFromConfig(ctx, region)
	}

	if cfg.AI.Enabled() {
		env.AI = NewAIClient(AIClientConfig{
			Endpoint: cfg.AI.Endpoint,
			APIKey:   cfg.AI.APIKey,
			Rate:     cfg.AI.Rate,
			Burst:    cfg.AI.Burst,
			Timeout:  cfg.AI.Timeout,
			Logger:   logger,
		})
	}
	return env, nil
}

// closeQuietly closes c, logging a failure.
func closeQuietly(logger *slog.Logger, what string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logger.Warn("failed to close "+what, "error", err)
	}
}
