package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/inspector/pkg/adapter"
)

// Default configuration values.
const (
	DefaultProject          = "entities.yaml"
	DefaultOutputDir        = "pipelines"
	DefaultStateFile        = ".inspector/state.db"
	DefaultOutput           = "auto"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultWarehouseType    = "duckdb"
	DefaultStorageType      = "local"
	DefaultBatchSize        = 1000
	DefaultQualityThreshold = 0.95
	DefaultConcurrency      = 4
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxWait          = 300 * time.Second
	DefaultAIRate           = 2.0
	DefaultAIBurst          = 1
	DefaultAITimeout        = 60 * time.Second
	DefaultMetricsJob       = "inspector"
)

// defaults is the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"project":                    DefaultProject,
		"output_dir":                 DefaultOutputDir,
		"state_path":                 DefaultStateFile,
		"output":                     DefaultOutput,
		"verbose":                    false,
		"log_level":                  DefaultLogLevel,
		"log_format":                 DefaultLogFormat,
		"warehouse.type":             DefaultWarehouseType,
		"storage.type":               DefaultStorageType,
		"storage.root":               ".",
		"ocr.poll_interval":          DefaultPollInterval.String(),
		"ocr.max_wait":               DefaultMaxWait.String(),
		"ai.rate":                    DefaultAIRate,
		"ai.burst":                   DefaultAIBurst,
		"ai.timeout":                 DefaultAITimeout.String(),
		"pipeline.batch_size":        DefaultBatchSize,
		"pipeline.quality_threshold": DefaultQualityThreshold,
		"pipeline.concurrency":       DefaultConcurrency,
		"metrics.job":                DefaultMetricsJob,
	}
}

// DefaultSchemaForType returns the schema a warehouse uses when none is configured.
func DefaultSchemaForType(dbType string) string {
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		return "public"
	case "duckdb":
		return "main"
	default:
		return ""
	}
}

// applyWarehouseDefaults fills type-dependent warehouse settings.
func applyWarehouseDefaults(w *WarehouseConfig) {
	w.Type = adapter.Canonical(w.Type)
	if w.Schema == "" {
		w.Schema = DefaultSchemaForType(w.Type)
	}
	if (w.Type == "postgres" || w.Type == "postgresql") && w.Port == 0 {
		w.Port = 5432
	}
}

// Validate checks the settings commands cannot work around.
func (c *Config) Validate() error {
	if c.Warehouse.Type == "" {
		return fmt.Errorf("warehouse.type is required")
	}
	if !adapter.IsRegistered(c.Warehouse.Type) {
		return fmt.Errorf("unknown warehouse type %q (available: %s)",
			c.Warehouse.Type, strings.Join(adapter.ListAdapters(), ", "))
	}
	switch c.Storage.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage type %q (expected local or s3)", c.Storage.Type)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.QualityThreshold < 0 || c.Pipeline.QualityThreshold > 1 {
		return fmt.Errorf("pipeline.quality_threshold must be between 0 and 1, got %g", c.Pipeline.QualityThreshold)
	}
	return nil
}
