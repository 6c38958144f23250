package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Evidence EvidenceConfig `yaml:"evidence" mapstructure:"evidence"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// RegistryConfig selects where jurisdiction data comes from. With neither
// Path nor URL set the embedded table is used.
type RegistryConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	URL           string `yaml:"url" mapstructure:"url"`
	OverridesPath string `yaml:"overrides_path" mapstructure:"overrides_path"`
}

// CacheConfig configures the result cache backend.
type CacheConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	// JanitorMins is how often serve purges expired entries. 0 disables.
	JanitorMins int   `yaml:"janitor_mins" mapstructure:"janitor_mins"`
	MaxConns    int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// FetchConfig configures both fetch strategies.
type FetchConfig struct {
	StaticTimeoutSecs      int      `yaml:"static_timeout_secs" mapstructure:"static_timeout_secs"`
	InteractiveTimeoutSecs int      `yaml:"interactive_timeout_secs" mapstructure:"interactive_timeout_secs"`
	UserAgent              string   `yaml:"user_agent" mapstructure:"user_agent"`
	ThinkMinMs             int      `yaml:"think_min_ms" mapstructure:"think_min_ms"`
	ThinkMaxMs             int      `yaml:"think_max_ms" mapstructure:"think_max_ms"`
	RatePerSec             float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	ForceInteractive       []string `yaml:"force_interactive" mapstructure:"force_interactive"`
	BrowserBin             string   `yaml:"browser_bin" mapstructure:"browser_bin"`
	RemoteURL              string   `yaml:"remote_url" mapstructure:"remote_url"`
	Headless               bool     `yaml:"headless" mapstructure:"headless"`
}

// BreakerConfig configures the per-jurisdiction circuit breaker.
type BreakerConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int  `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// EvidenceConfig configures screenshot storage.
type EvidenceConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// BatchConfig configures batch verification pacing.
type BatchConfig struct {
	DelayCrossMs int `yaml:"delay_cross_ms" mapstructure:"delay_cross_ms"`
	DelaySameMs  int `yaml:"delay_same_ms" mapstructure:"delay_same_ms"`
	MaxItems     int `yaml:"max_items" mapstructure:"max_items"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.janitor_mins", 60)
	v.SetDefault("fetch.static_timeout_secs", 15)
	v.SetDefault("fetch.interactive_timeout_secs", 45)
	v.SetDefault("fetch.think_min_ms", 500)
	v.SetDefault("fetch.think_max_ms", 2000)
	v.SetDefault("fetch.rate_per_sec", 1.0)
	v.SetDefault("fetch.force_interactive", []string{"CA", "TX", "NY", "FL", "IL"})
	v.SetDefault("fetch.headless", true)
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 300)
	v.SetDefault("evidence.enabled", true)
	v.SetDefault("evidence.dir", "evidence")
	v.SetDefault("batch.delay_cross_ms", 2000)
	v.SetDefault("batch.delay_same_ms", 500)
	v.SetDefault("batch.max_items", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "serve", "verify"
// or "cache".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Cache.Backend {
	case "file", "sqlite":
		if c.Cache.Dir == "" {
			errs = append(errs, "cache.dir is required for the "+c.Cache.Backend+" backend")
		}
	case "postgres":
		if c.Cache.DSN == "" {
			errs = append(errs, "cache.dsn is required for the postgres backend")
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, "cache.redis_url is required for the redis backend")
		}
	default:
		errs = append(errs, "cache.backend must be one of file, sqlite, postgres, redis")
	}
	if c.Cache.TTLHours <= 0 {
		errs = append(errs, "cache.ttl_hours must be > 0")
	}

	switch mode {
	case "cache":
	case "serve", "verify":
		if c.Fetch.StaticTimeoutSecs <= 0 || c.Fetch.InteractiveTimeoutSecs <= 0 {
			errs = append(errs, "fetch timeouts must be > 0")
		}
		if c.Fetch.ThinkMinMs < 0 || c.Fetch.ThinkMaxMs < c.Fetch.ThinkMinMs {
			errs = append(errs, "fetch.think_max_ms must be >= fetch.think_min_ms >= 0")
		}
		if c.Registry.Path != "" && c.Registry.URL != "" {
			errs = append(errs, "registry.path and registry.url are mutually exclusive")
		}
		if c.Evidence.Enabled && c.Evidence.Dir == "" {
			errs = append(errs, "evidence.dir is required when evidence is enabled")
		}
		if c.Batch.MaxItems < 1 || c.Batch.MaxItems > 500 {
			errs = append(errs, "batch.max_items must be between 1 and 500")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
