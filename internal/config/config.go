package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eugenferber616-design/earnings-cache/internal/cache"
	"github.com/eugenferber616-design/earnings-cache/internal/universe"
)

// Config holds the full application configuration.
type Config struct {
	Finnhub  FinnhubConfig  `yaml:"finnhub" mapstructure:"finnhub"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Universe UniverseConfig `yaml:"universe" mapstructure:"universe"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// FinnhubConfig holds provider credentials and endpoint.
type FinnhubConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CacheConfig configures the freshness gate and the fetch window.
type CacheConfig struct {
	TTLHours  int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	DaysAhead int    `yaml:"days_ahead" mapstructure:"days_ahead"`
	DaysBack  int    `yaml:"days_back" mapstructure:"days_back"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// UniverseConfig configures the symbol-universe filter.
type UniverseConfig struct {
	Exchanges string `yaml:"exchanges" mapstructure:"exchanges"`
	TTLDays   int    `yaml:"ttl_days" mapstructure:"ttl_days"`
	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
}

// ExchangeList splits the configured exchange string into a clean slice.
func (u UniverseConfig) ExchangeList() []string {
	var out []string
	for _, ex := range strings.Split(u.Exchanges, ",") {
		if ex = strings.TrimSpace(ex); ex != "" {
			out = append(out, ex)
		}
	}
	return out
}

// StoreConfig configures the run-log database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the read-only artifact server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// WatchConfig configures daemon-mode scheduling.
type WatchConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

const (
	defaultDaysAhead = 120
	defaultDaysBack  = 1
)

// Load reads configuration from file and environment. Invalid TTL and window
// values are clamped to their defaults rather than failing the run.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EARNINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The empty token default keeps the env binding visible to
	// Unmarshal.
	v.SetDefault("finnhub.token", "")
	v.SetDefault("finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("cache.ttl_hours", cache.DefaultTTLHours)
	v.SetDefault("cache.days_ahead", defaultDaysAhead)
	v.SetDefault("cache.days_back", defaultDaysBack)
	v.SetDefault("cache.output_dir", "docs")
	v.SetDefault("universe.exchanges", "US,DE,PA,LSE,AS,MI,MC,STO,SWX")
	v.SetDefault("universe.ttl_days", universe.DefaultTTLDays)
	v.SetDefault("universe.cache_path", "docs/symbols_cache.json")
	v.SetDefault("store.path", "earnings-cache.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("watch.schedule", "0 3 * * *")
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

	cfg.clamp()
	return &cfg, nil
}

// clamp replaces invalid numeric settings with their defaults.
func (c *Config) clamp() {
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = cache.DefaultTTLHours
	}
	if c.Cache.DaysAhead <= 0 {
		c.Cache.DaysAhead = defaultDaysAhead
	}
	if c.Cache.DaysBack < 0 {
		c.Cache.DaysBack = defaultDaysBack
	}
	if c.Universe.TTLDays <= 0 {
		c.Universe.TTLDays = universe.DefaultTTLDays
	}
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
