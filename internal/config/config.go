// Package config loads runtime settings from defaults, an optional YAML file,
// .env files and GROWPILOT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"growpilot/internal/blob"
	"growpilot/internal/core"
	"growpilot/internal/forecast"
	"growpilot/internal/session"
)

// EnvPrefix namespaces environment variables.
const EnvPrefix = "GROWPILOT"

// Config is the full runtime configuration.
type Config struct {
	Addr     string         `mapstructure:"addr"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Session  SessionConfig  `mapstructure:"session"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Export   ExportConfig   `mapstructure:"export"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Trace writes one JSON line per service operation span.
	Trace bool `mapstructure:"trace"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type SessionConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type ForecastConfig struct {
	Horizon int `mapstructure:"horizon"`
}

type BlobConfig struct {
	Driver string        `mapstructure:"driver"`
	FSRoot string        `mapstructure:"fs_root"`
	S3     blob.S3Config `mapstructure:"s3"`
}

// ExportConfig controls archiving of downloaded exports.
type ExportConfig struct {
	Archive bool `mapstructure:"archive"`
}

var defaults = map[string]any{
	"addr":                      ":8080",
	"log.level":                 "info",
	"log.format":                "text",
	"log.trace":                 false,
	"storage.driver":            string(core.StorageMemory),
	"session.idle_timeout":      session.DefaultIdleTimeout,
	"forecast.horizon":          forecast.DefaultHorizon,
	"blob.driver":               string(blob.DriverFilesystem),
	"blob.fs_root":              "./exports",
	"blob.s3.bucket":            "",
	"blob.s3.region":            "",
	"blob.s3.endpoint":          "",
	"blob.s3.path_style":        false,
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"export.archive":            false,
}

// New returns a viper instance with defaults and environment binding in place.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Options controls where Load looks for settings.
type Options struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFiles are loaded into the process environment; missing files are
	// skipped. Variables already set win.
	EnvFiles []string
}

// Load reads every source into v and decodes the result.
func Load(v *viper.Viper, opts Options) (Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Export.Archive && c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required when archiving to s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout: must be positive"))
	}
	if c.Forecast.Horizon <= 0 {
		errs = append(errs, errors.New("forecast.horizon: must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// BlobStore returns the blob configuration in the form blob.Open expects.
func (c Config) BlobStore() blob.Config {
	return blob.Config{Driver: blob.Driver(c.Blob.Driver), FSRoot: c.Blob.FSRoot, S3: c.Blob.S3}
}

// Logger builds the process logger.
func (c LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
