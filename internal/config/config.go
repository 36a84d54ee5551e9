// Package config loads service configuration with viper.
//
// Precedence: CLI flags > RULESETS_* environment variables > config file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. RULESETS_SERVER_PORT
const EnvPrefix = "RULESETS"

// Store drivers
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreDir    = "dir"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Evaluator EvaluatorConfig
	Broadcast BroadcastConfig
	Metrics   MetricsConfig
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Addr returns host:port for net.Listen
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig selects and configures the ruleset store
type StoreConfig struct {
	Driver   string
	URL      string
	Dir      string
	CacheTTL time.Duration
}

// EvaluatorConfig bounds evaluation
type EvaluatorConfig struct {
	MaxDepth int
}

// BroadcastConfig sizes subscriber queues
type BroadcastConfig struct {
	Buffer int
}

// MetricsConfig names the Prometheus namespace
type MetricsConfig struct {
	Namespace string
}

// New returns a viper instance with defaults and environment binding applied.
// Callers may bind CLI flags onto it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.url", "")
	v.SetDefault("store.dir", "")
	v.SetDefault("store.cache_ttl", "0s")

	v.SetDefault("evaluator.max_depth", 64)
	v.SetDefault("broadcast.buffer", 16)
	v.SetDefault("metrics.namespace", "rulesets")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig loads configuration from an optional file plus the environment
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Load reads configPath (if set) into v and builds a validated Config
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			IdleTimeout:    v.GetDuration("server.idle_timeout"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxBodyBytes:   v.GetInt64("server.max_body_bytes"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(v.GetString("store.driver")),
			URL:      v.GetString("store.url"),
			Dir:      v.GetString("store.dir"),
			CacheTTL: v.GetDuration("store.cache_ttl"),
		},
		Evaluator: EvaluatorConfig{
			MaxDepth: v.GetInt("evaluator.max_depth"),
		},
		Broadcast: BroadcastConfig{
			Buffer: v.GetInt("broadcast.buffer"),
		},
		Metrics: MetricsConfig{
			Namespace: v.GetString("metrics.namespace"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks port range, positive timeouts and limits, and that the
// chosen store driver has what it needs
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"read_timeout", c.Server.ReadTimeout},
		{"write_timeout", c.Server.WriteTimeout},
		{"idle_timeout", c.Server.IdleTimeout},
		{"request_timeout", c.Server.RequestTimeout},
	}
	for _, to := range timeouts {
		if to.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", to.name, to.value)
		}
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Store.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %v", c.Store.CacheTTL)
	}
	if c.Evaluator.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.Evaluator.MaxDepth)
	}
	if c.Broadcast.Buffer <= 0 {
		return fmt.Errorf("broadcast buffer must be positive, got %d", c.Broadcast.Buffer)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQL:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the sql store")
		}
	case StoreDir:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the dir store")
		}
	default:
		return fmt.Errorf("unknown store driver %q (expected memory, sql or dir)", c.Store.Driver)
	}

	return nil
}
