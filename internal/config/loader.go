package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// File names searched for in the project root.
const (
	ConfigFileName    = "inspector.yaml"
	ConfigFileNameAlt = "inspector.yml"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: INSPECTOR_WAREHOUSE__HOST sets warehouse.host.
const EnvPrefix = "INSPECTOR_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

type (
	loggerKey struct{}
	configKey struct{}
)

var (
	k              = koanf.New(".")
	configFileUsed string
)

// flagKeys maps flags whose names do not follow the key layout.
var flagKeys = map[string]string{
	"state":       "state_path",
	"database":    "warehouse.path",
	"warehouse":   "warehouse.type",
	"staging":     "storage.staging_bucket",
	"ai":          "ai.endpoint",
	"batch":       "pipeline.batch_size",
	"push-url":    "metrics.push_url",
	"concurrency": "pipeline.concurrency",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// configIn returns the config file in dir, or "".
func configIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindProjectRoot searches upward from startDir for an inspector config file.
// Returns "" if none is found within maxUpwardSearchLevels.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// projectRoot resolves the project root: --project-dir, the directory of an
// explicit config file, an upward search from the working directory, then
// the working directory itself.
func projectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Lookup("project-dir") != nil && flags.Changed("project-dir") {
		if dir, _ := flags.GetString("project-dir"); dir != "" {
			if abs, err := filepath.Abs(dir); err == nil {
				return abs
			}
			return filepath.Clean(dir)
		}
	}
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// Load reads configuration from defaults, the config file, the environment
// and flags, in increasing precedence. Only flags that were set on the
// command line override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	root := projectRoot(cfgFile, flags)

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = configIn(root)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "project-dir" || f.Name == "config" {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = root

	applyWarehouseDefaults(&cfg.Warehouse)
	expandSecrets(&cfg)

	cfg.Project = resolvePath(cfg.Project, root)
	cfg.OutputDir = resolvePath(cfg.OutputDir, root)
	cfg.StatePath = resolvePath(cfg.StatePath, root)
	if cfg.Storage.Type == "local" {
		cfg.Storage.Root = resolvePath(cfg.Storage.Root, root)
	}
	if cfg.Warehouse.Path != "" && cfg.Warehouse.Path != ":memory:" {
		cfg.Warehouse.Path = resolvePath(cfg.Warehouse.Path, root)
	}

	return &cfg, nil
}

// envKey turns INSPECTOR_PIPELINE__BATCH_SIZE into pipeline.batch_size.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// resolvePath anchors a relative path at baseDir.
func resolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ExpandEnv replaces ${VAR} with the variable's value, leaving unset
// variables untouched.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

func expandSecrets(c *Config) {
	w := &c.Warehouse
	w.Host = ExpandEnv(w.Host)
	w.User = ExpandEnv(w.User)
	w.Password = ExpandEnv(w.Password)
	w.Database = ExpandEnv(w.Database)
	c.AI.Endpoint = ExpandEnv(c.AI.Endpoint)
	c.AI.APIKey = ExpandEnv(c.AI.APIKey)
	c.Metrics.PushURL = ExpandEnv(c.Metrics.PushURL)
}

// GetConfigFileUsed returns the path of the config file that was loaded, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// WithConfig stores a loaded configuration in ctx.
func WithConfig(ctx context.Context, c *Config) context.Context {
	return context.WithValue(ctx, configKey{}, c)
}

// FromContext returns the configuration stored by WithConfig, or nil.
func FromContext(ctx context.Context) *Config {
	c, _ := ctx.Value(configKey{}).(*Config)
	return c
}

// WithLogger stores a logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the process logger from the log settings.
func NewLogger(c *Config, w *os.File) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
