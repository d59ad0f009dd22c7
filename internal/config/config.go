package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AUDITOR_"

type HTTPConfig struct {
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type GRPCConfig struct {
	Port int `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type RunnerConfig struct {
	Workers        int           `koanf:"workers"`
	Timeout        time.Duration `koanf:"timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	Port           int           `koanf:"port"`
	Become         bool          `koanf:"become"`
	LocalHosts     []string      `koanf:"local_hosts"`
}

type RetentionConfig struct {
	Cron   string        `koanf:"cron"`
	Period time.Duration `koanf:"period"`
}

type ConsulConfig struct {
	Address string `koanf:"address"`
}

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Runner    RunnerConfig    `koanf:"runner"`
	Retention RetentionConfig `koanf:"retention"`
	Consul    ConsulConfig    `koanf:"consul"`
}

var defaults = map[string]interface{}{
	"http.port": 8000,
	"http.cors_origins": []string{
		"http://localhost:3000", "http://localhost:3001",
		"http://127.0.0.1:3000", "http://127.0.0.1:3001",
	},
	"grpc.port":              9090,
	"database.path":          "/data/auditor.db",
	"log.level":              "info",
	"log.development":        false,
	"runner.workers":         8,
	"runner.timeout":         "5m",
	"runner.connect_timeout": "15s",
	"runner.port":            22,
	"runner.become":          false,
	"runner.local_hosts":     []string{"local"},
	"retention.cron":         "@every 1h",
	"retention.period":       "168h",
	"consul.address":         "",
}

// Load reads defaults, then the first config file found, then AUDITOR_*
// environment overrides. An explicit path that cannot be read is an error;
// the well-known locations are optional.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else {
		for _, candidate := range []string{"/etc/auditor/config.toml", "config.toml"} {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if err := k.Load(file.Provider(candidate), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load config %s: %w", candidate, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// envKey maps AUDITOR_RUNNER_CONNECT_TIMEOUT to runner.connect_timeout.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 {
		errs = append(errs, errors.New("http.port must be positive"))
	}
	if c.Runner.Workers <= 0 {
		errs = append(errs, errors.New("runner.workers must be positive"))
	}
	if c.Runner.Timeout <= 0 {
		errs = append(errs, errors.New("runner.timeout must be positive"))
	}
	if c.Runner.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("runner.connect_timeout must be positive"))
	}
	if c.Retention.Period <= 0 {
		errs = append(errs, errors.New("retention.period must be positive"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	return errors.Join(errs...)
}

// HTTPAddr is the listen address of the HTTP API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPC.Port)
}
