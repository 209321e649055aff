// Package config loads map_graph settings from defaults, an optional YAML
// file and MAPGRAPH_* environment variables.
package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// MAPGRAPH_BUILD_WORKERS.
const EnvPrefix = "MAPGRAPH"

type Config struct {
	Log    Log    `mapstructure:"log"`
	Build  Build  `mapstructure:"build"`
	Server Server `mapstructure:"server"`
}

type Log struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Build configures one preprocessing run.
type Build struct {
	Input        string `mapstructure:"input"`
	OutputDir    string `mapstructure:"output_dir"`
	Workers      int    `mapstructure:"workers"`
	Header       bool   `mapstructure:"header"`
	TextListings bool   `mapstructure:"text_listings"`
	MetricsFile  string `mapstructure:"metrics_file"`
}

type Server struct {
	Addr          string        `mapstructure:"addr"`
	DataDir       string        `mapstructure:"data_dir"`
	PlacesFile    string        `mapstructure:"places_file"`
	CORSOrigin    string        `mapstructure:"cors_origin"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("build.input", "")
	v.SetDefault("build.output_dir", "data")
	v.SetDefault("build.workers", runtime.NumCPU())
	v.SetDefault("build.header", true)
	v.SetDefault("build.text_listings", true)
	v.SetDefault("build.metrics_file", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.data_dir", "data")
	v.SetDefault("server.places_file", "")
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("server.max_concurrent", runtime.NumCPU()*2)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
}

// New returns a viper instance with defaults and environment binding applied.
// Callers may layer flags on top before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}

var (
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validEncodings = map[string]bool{"console": true, "json": true}
)

// Validate checks the logging section.
func (l Log) Validate() error {
	if !validLevels[strings.ToLower(l.Level)] {
		return errors.Errorf("invalid log level %q", l.Level)
	}
	if !validEncodings[strings.ToLower(l.Encoding)] {
		return errors.Errorf("invalid log encoding %q", l.Encoding)
	}
	return nil
}

// Validate checks the settings a preprocessing run needs.
func (b Build) Validate() error {
	if b.Input == "" {
		return errors.New("build input path is required")
	}
	if b.OutputDir == "" {
		return errors.New("build output dir is required")
	}
	if b.Workers < 1 {
		return errors.Errorf("build workers must be positive, got %d", b.Workers)
	}
	return nil
}

// Validate checks the settings the query server needs.
func (s Server) Validate() error {
	if s.Addr == "" {
		return errors.New("server addr is required")
	}
	if s.DataDir == "" {
		return errors.New("server data dir is required")
	}
	if s.MaxConcurrent < 1 {
		return errors.Errorf("server max_concurrent must be positive, got %d", s.MaxConcurrent)
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	return nil
}
