// Package config loads inspector configuration.
//
// Values are layered with koanf: built-in defaults, then inspector.yaml
// (found in the project root or any parent directory), then INSPECTOR_
// environment variables, then command-line flags that were explicitly set.
package config

import (
	"strings"
	"time"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// Config is the complete inspector configuration.
type Config struct {
	// ProjectRoot is the directory that holds inspector.yaml. Not loaded from config.
	ProjectRoot string `koanf:"-"`

	// Project is the entity model file, relative to the project root.
	Project   string `koanf:"project"`
	OutputDir string `koanf:"output_dir"`
	StatePath string `koanf:"state_path"`

	Verbose   bool   `koanf:"verbose"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Output    string `koanf:"output"`

	Warehouse WarehouseConfig `koanf:"warehouse"`
	Storage   StorageConfig   `koanf:"storage"`
	OCR       OCRConfig       `koanf:"ocr"`
	AI        AIConfig        `koanf:"ai"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// WarehouseConfig is the destination database.
type WarehouseConfig struct {
	Type     string            `koanf:"type"`
	Path     string            `koanf:"path"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
}

// AdapterConfig converts the warehouse section into adapter connection settings.
func (w WarehouseConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     strings.ToLower(w.Type),
		Path:     w.Path,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		Username: w.User,
		Password: w.Password,
		Schema:   w.Schema,
		Options:  w.Options,
	}
}

// StorageConfig selects the object store documents are read from.
type StorageConfig struct {
	// Type is "local" or "s3".
	Type     string `koanf:"type"`
	Root     string `koanf:"root"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
	// StagingBucket receives direct-content PDFs before OCR.
	StagingBucket string `koanf:"staging_bucket"`
}

// OCRConfig configures the document analysis service.
type OCRConfig struct {
	Region       string        `koanf:"region"`
	PollInterval time.Duration `koanf:"poll_interval"`
	MaxWait      time.Duration `koanf:"max_wait"`
}

// AIConfig configures the external AI extraction service.
type AIConfig struct {
	Endpoint string        `koanf:"endpoint"`
	APIKey   string        `koanf:"api_key"`
	Rate     float64       `koanf:"rate"`
	Burst    int           `koanf:"burst"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Enabled reports whether an AI endpoint is configured.
func (a AIConfig) Enabled() bool {
	return a.Endpoint != ""
}

// PipelineConfig tunes extraction and load stages.
type PipelineConfig struct {
	BatchSize        int     `koanf:"batch_size"`
	QualityThreshold float64 `koanf:"quality_threshold"`
	Concurrency      int     `koanf:"concurrency"`
}

// MetricsConfig configures the Pushgateway metrics are pushed to after a run.
type MetricsConfig struct {
	PushURL string `koanf:"push_url"`
	Job     string `koanf:"job"`
}
