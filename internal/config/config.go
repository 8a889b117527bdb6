// Package config loads application configuration from an optional config.yaml
// overlaid with BULLETIN_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Parser    ParserConfig    `yaml:"parser" mapstructure:"parser"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and locates the repository backend.
type StoreConfig struct {
	// Backend is "embedded" (single-file SQLite) or "server" (Postgres).
	Backend string `yaml:"backend" mapstructure:"backend"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// HTTPConfig configures the bulletin fetcher.
type HTTPConfig struct {
	MaxWorkers  int    `yaml:"max_workers" mapstructure:"max_workers"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// Timeout returns the per-request timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SourceConfig points at the State Department bulletin pages.
type SourceConfig struct {
	// BaseURL is the root under which per-fiscal-year bulletin pages live.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// IndexURL is the landing page listing the current bulletin.
	IndexURL string `yaml:"index_url" mapstructure:"index_url"`
}

// ParserConfig configures quality gates applied after parsing.
type ParserConfig struct {
	// MinDateParseRate is the floor below which a bulletin is quarantined.
	MinDateParseRate float64 `yaml:"min_date_parse_rate" mapstructure:"min_date_parse_rate"`
}

// CollectorConfig configures run-level behavior.
type CollectorConfig struct {
	// BulletinTimeoutSecs bounds one bulletin end-to-end, retries included.
	BulletinTimeoutSecs int `yaml:"bulletin_timeout_secs" mapstructure:"bulletin_timeout_secs"`
}

// BulletinTimeout returns the per-bulletin budget as a duration.
func (c CollectorConfig) BulletinTimeout() time.Duration {
	return time.Duration(c.BulletinTimeoutSecs) * time.Second
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
	v.SetEnvPrefix("BULLETIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.backend", "embedded")
	v.SetDefault("store.dsn", "data/bulletins.db")
	v.SetDefault("http.max_workers", 4)
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.user_agent", "bulletin-cli/1.0 (+https://github.com/visawatch/bulletin-cli)")
	v.SetDefault("source.base_url", "https://travel.state.gov/content/travel/en/legal/visa-law0/visa-bulletin")
	v.SetDefault("source.index_url", "https://travel.state.gov/content/travel/en/legal/visa-law0/visa-bulletin.html")
	v.SetDefault("parser.min_date_parse_rate", 0.5)
	v.SetDefault("collector.bulletin_timeout_secs", 120)
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "embedded", "server":
	default:
		return &model.ConfigError{Msg: "store.backend must be \"embedded\" or \"server\", got " + c.Store.Backend}
	}
	if c.Store.DSN == "" {
		return &model.ConfigError{Msg: "store.dsn must not be empty"}
	}
	if c.HTTP.MaxWorkers < 1 {
		return &model.ConfigError{Msg: "http.max_workers must be >= 1"}
	}
	if c.Parser.MinDateParseRate < 0 || c.Parser.MinDateParseRate > 1 {
		return &model.ConfigError{Msg: "parser.min_date_parse_rate must be in [0,1]"}
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
