package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/drowsy/internal/env"
	"github.com/loykin/drowsy/internal/logger"
	"github.com/loykin/drowsy/internal/perclos"
)

// EnvPrefix prefixes every environment override, e.g. DROWSY_DETECTOR_TIME_WINDOW.
const EnvPrefix = "DROWSY"

var ErrInvalidConfig = errors.New("invalid configuration")

// Detector is the immutable snapshot read once per session.
type Detector struct {
	EyeOpenProbabilityThreshold  float64       `toml:"eye_open_probability_threshold" mapstructure:"eye_open_probability_threshold" json:"eye_open_probability_threshold"`
	SlowEyelidClosureMinDuration time.Duration `toml:"slow_eyelid_closure_min_duration" mapstructure:"slow_eyelid_closure_min_duration" json:"slow_eyelid_closure_min_duration"`
	DrowsyThreshold              float64       `toml:"drowsy_threshold" mapstructure:"drowsy_threshold" json:"drowsy_threshold"`
	LikelyDrowsyThreshold        float64       `toml:"likely_drowsy_threshold" mapstructure:"likely_drowsy_threshold" json:"likely_drowsy_threshold"`
	TimeWindow                   time.Duration `toml:"time_window" mapstructure:"time_window" json:"time_window"`
}

func DefaultDetector() Detector {
	return Detector{
		EyeOpenProbabilityThreshold:  0.5,
		SlowEyelidClosureMinDuration: 500 * time.Millisecond,
		DrowsyThreshold:              0.15,
		LikelyDrowsyThreshold:        0.08,
		TimeWindow:                   15 * time.Second,
	}
}

func (d Detector) Thresholds() perclos.Thresholds {
	return perclos.Thresholds{Drowsy: d.DrowsyThreshold, LikelyDrowsy: d.LikelyDrowsyThreshold}
}

// Validate reports every violated constraint, each wrapping ErrInvalidConfig.
func (d Detector) Validate() error {
	var errs []error
	if d.EyeOpenProbabilityThreshold < 0 || d.EyeOpenProbabilityThreshold > 1 {
		errs = append(errs, fmt.Errorf("%w: eye_open_probability_threshold %v outside [0,1]",
			ErrInvalidConfig, d.EyeOpenProbabilityThreshold))
	}
	if d.SlowEyelidClosureMinDuration <= 0 {
		errs = append(errs, fmt.Errorf("%w: slow_eyelid_closure_min_duration must be positive, got %s",
			ErrInvalidConfig, d.SlowEyelidClosureMinDuration))
	}
	if d.TimeWindow <= 0 {
		errs = append(errs, fmt.Errorf("%w: time_window must be positive, got %s", ErrInvalidConfig, d.TimeWindow))
	}
	if err := d.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	return errors.Join(errs...)
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level" json:"level"`
	Format     string `toml:"format" mapstructure:"format" json:"format"`
	Color      bool   `toml:"color" mapstructure:"color" json:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps" json:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source" json:"source"`
	File       string `toml:"file" mapstructure:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress" json:"compress"`
	// LogEvents registers the catch-all event logger on every session.
	LogEvents bool `toml:"log_events" mapstructure:"log_events" json:"log_events"`
}

func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(l.Level),
			Format:     logger.Format(l.Format),
			Color:      l.Color,
			TimeStamps: l.TimeStamps,
			Source:     l.Source,
		},
		File: logger.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen" json:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path" json:"base_path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled" json:"enabled"`
}

type HistoryConfig struct {
	Enabled   bool   `toml:"enabled" mapstructure:"enabled" json:"enabled"`
	DSN       string `toml:"dsn" mapstructure:"dsn" json:"dsn"`
	QueueSize int    `toml:"queue_size" mapstructure:"queue_size" json:"queue_size"`
}

// Config represents the top-level TOML structure.
type Config struct {
	EnvFiles []string      `toml:"env_files" mapstructure:"env_files" json:"env_files"`
	Detector Detector      `toml:"detector" mapstructure:"detector" json:"detector"`
	Log      LogConfig     `toml:"log" mapstructure:"log" json:"log"`
	Server   ServerConfig  `toml:"server" mapstructure:"server" json:"server"`
	Metrics  MetricsConfig `toml:"metrics" mapstructure:"metrics" json:"metrics"`
	History  HistoryConfig `toml:"history" mapstructure:"history" json:"history"`
}

func Default() *Config {
	return &Config{
		Detector: DefaultDetector(),
		Log: LogConfig{
			Level:      string(logger.LevelInfo),
			Format:     string(logger.FormatText),
			TimeStamps: true,
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
		},
		Server:  ServerConfig{Listen: ":8080", BasePath: "/api"},
		Metrics: MetricsConfig{Enabled: true},
		History: HistoryConfig{QueueSize: 256},
	}
}

func (c *Config) Validate() error {
	errs := []error{c.Detector.Validate()}
	switch logger.Format(c.Log.Format) {
	case logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format))
	}
	if c.History.Enabled {
		if c.History.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: history enabled without dsn", ErrInvalidConfig))
		}
		if c.History.QueueSize <= 0 {
			errs = append(errs, fmt.Errorf("%w: history queue_size must be positive", ErrInvalidConfig))
		}
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("env_files", []string{})
	v.SetDefault("detector.eye_open_probability_threshold", def.Detector.EyeOpenProbabilityThreshold)
	v.SetDefault("detector.slow_eyelid_closure_min_duration", def.Detector.SlowEyelidClosureMinDuration)
	v.SetDefault("detector.drowsy_threshold", def.Detector.DrowsyThreshold)
	v.SetDefault("detector.likely_drowsy_threshold", def.Detector.LikelyDrowsyThreshold)
	v.SetDefault("detector.time_window", def.Detector.TimeWindow)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.color", def.Log.Color)
	v.SetDefault("log.timestamps", def.Log.TimeStamps)
	v.SetDefault("log.source", def.Log.Source)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
	v.SetDefault("log.compress", def.Log.Compress)
	v.SetDefault("log.log_events", def.Log.LogEvents)
	v.SetDefault("server.listen", def.Server.Listen)
	v.SetDefault("server.base_path", def.Server.BasePath)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("history.enabled", def.History.Enabled)
	v.SetDefault("history.dsn", def.History.DSN)
	v.SetDefault("history.queue_size", def.History.QueueSize)
	return v
}

// Load reads the TOML file at path (optional when empty), applies env_files and
// DROWSY_* environment overrides, and validates the result.
//
// Precedence, lowest first: defaults, file, env_files entries, process environment.
// ${VAR} references in history.dsn and log.file resolve against the same layers.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	vars := env.New()
	for _, p := range v.GetStringSlice("env_files") {
		if path != "" && !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		applyEnvPairs(v, pairs)
		for k, val := range pairs {
			vars.Set(k, val)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.History.DSN = vars.Expand(c.History.DSN)
	c.Log.File = vars.Expand(c.Log.File)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnvPairs turns DROWSY_SECTION_KEY entries into section.key overrides unless the
// process environment already sets the variable.
func applyEnvPairs(v *viper.Viper, pairs map[string]string) {
	prefix := EnvPrefix + "_"
	for k, val := range pairs {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(k, prefix)), "_")
		if !ok {
			continue
		}
		v.Set(section+"."+key, val)
	}
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, val, ok := strings.Cut(line, "="); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}
	return m, nil
}
