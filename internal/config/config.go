package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nightshift-games/checkpoint/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Balance BalanceConfig `yaml:"balance" mapstructure:"balance"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// CatalogConfig points at the subject catalog. Empty path means the
// embedded default catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BalanceConfig holds session-balance knobs.
type BalanceConfig struct {
	ResetInfractionsOnShift bool `yaml:"reset_infractions_on_shift" mapstructure:"reset_infractions_on_shift"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
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
	v.SetEnvPrefix("CHECKPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "checkpoint.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("balance.reset_infractions_on_shift", false)

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

// Validate checks the fields required by the given command mode.
func Validate(cfg *Config, mode string) error {
	var missing []string

	check := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch mode {
	case "run", "export":
		check(cfg.Store.Driver == "sqlite" || cfg.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		check(cfg.Store.DatabaseURL != "", "store.database_url is required")
	case "serve":
		check(cfg.Store.Driver == "sqlite" || cfg.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		check(cfg.Store.DatabaseURL != "", "store.database_url is required")
		check(cfg.Server.Port > 0, "server.port must be > 0")
		check(cfg.Server.RateLimit > 0, "server.rate_limit must be > 0")
		check(cfg.Server.RateBurst > 0, "server.rate_burst must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(missing, "; "))
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
