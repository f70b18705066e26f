package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/inspector/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/inspector/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/inspector/pkg/adapters/sqlite"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("project-dir", "", "")
	fs.String("state", "", "")
	fs.String("warehouse", "", "")
	fs.Int("batch", 0, "")
	fs.Bool("verbose", false, "")
	fs.String("log-level", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--project-dir", dir}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "duckdb", cfg.Warehouse.Type)
	assert.Equal(t, "main", cfg.Warehouse.Schema)
	assert.Equal(t, DefaultBatchSize, cfg.Pipeline.BatchSize)
	assert.InDelta(t, DefaultQualityThreshold, cfg.Pipeline.QualityThreshold, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.OCR.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.OCR.MaxWait)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, DefaultOutputDir), cfg.OutputDir)
	assert.Empty(t, GetConfigFileUsed())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileEnvFlagPrecedence(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
warehouse:
  type: postgres
  host: db.internal
  user: loader
  password: ${INSPECTOR_TEST_PASSWORD}
pipeline:
  batch_size: 250
  quality_threshold: 0.9
ocr:
  poll_interval: 5s
log_level: warn
`)
	t.Setenv("INSPECTOR_TEST_PASSWORD", "s3cret")
	t.Setenv("INSPECTOR_PIPELINE__QUALITY_THRESHOLD", "0.8")
	t.Setenv("INSPECTOR_WAREHOUSE__DATABASE", "warehouse")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--batch", "50", "--state", "custom.db"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, 5432, cfg.Warehouse.Port)
	assert.Equal(t, "public", cfg.Warehouse.Schema)
	assert.Equal(t, "s3cret", cfg.Warehouse.Password)
	assert.Equal(t, "warehouse", cfg.Warehouse.Database, "env overrides file")
	assert.InDelta(t, 0.8, cfg.Pipeline.QualityThreshold, 1e-9, "env overrides file")
	assert.Equal(t, 50, cfg.Pipeline.BatchSize, "flag overrides file")
	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.StatePath)
	assert.Equal(t, 5*time.Second, cfg.OCR.PollInterval)
	assert.Equal(t, "warn", cfg.LogLevel)

	ac := cfg.Warehouse.AdapterConfig()
	assert.Equal(t, "loader", ac.Username)
	assert.Equal(t, "db.internal", ac.Host)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := writeConfig(t, dir, "warehouse:\n  type: sqlite\n")

	fs := newFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Warehouse.Type)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "project: model.yaml\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Empty(t, FindProjectRoot(t.TempDir()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "valid"},
		{name: "unknown warehouse", mutate: func(c *Config) { c.Warehouse.Type = "oracle" }, errSubstr: "unknown warehouse type"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "gcs" }, errSubstr: "unknown storage type"},
		{name: "zero batch", mutate: func(c *Config) { c.Pipeline.BatchSize = 0 }, errSubstr: "batch_size"},
		{name: "threshold above one", mutate: func(c *Config) { c.Pipeline.QualityThreshold = 1.5 }, errSubstr: "quality_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Warehouse: WarehouseConfig{Type: "duckdb"},
				Storage:   StorageConfig{Type: "local"},
				Pipeline:  PipelineConfig{BatchSize: 10, QualityThreshold: 0.95},
			}
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("INSPECTOR_TEST_HOST", "example.org")
	assert.Equal(t, "example.org:5432", ExpandEnv("${INSPECTOR_TEST_HOST}:5432"))
	assert.Equal(t, "${INSPECTOR_TEST_UNSET}", ExpandEnv("${INSPECTOR_TEST_UNSET}"))
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	logger := NewLogger(cfg, os.Stderr)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cfg := &Config{Project: "entities.yaml"}
	assert.Same(t, cfg, FromContext(WithConfig(context.Background(), cfg)))
}
