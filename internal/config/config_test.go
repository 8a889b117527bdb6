package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visawatch/bulletin-cli/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config.yaml

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "embedded", cfg.Store.Backend)
	assert.Equal(t, "data/bulletins.db", cfg.Store.DSN)
	assert.Equal(t, 4, cfg.HTTP.MaxWorkers)
	assert.Equal(t, 3, cfg.HTTP.Retries)
	assert.Equal(t, 0.5, cfg.Parser.MinDateParseRate)
	assert.Equal(t, 120, cfg.Collector.BulletinTimeoutSecs)
	assert.Contains(t, cfg.Source.BaseURL, "travel.state.gov")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BULLETIN_STORE_BACKEND", "server")
	t.Setenv("BULLETIN_STORE_DSN", "postgres://localhost/bulletins")
	t.Setenv("BULLETIN_HTTP_MAX_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/bulletins", cfg.Store.DSN)
	assert.Equal(t, 8, cfg.HTTP.MaxWorkers)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:  StoreConfig{Backend: "embedded", DSN: "x.db"},
			HTTP:   HTTPConfig{MaxWorkers: 4},
			Parser: ParserConfig{MinDateParseRate: 0.5},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Store.Backend = "mysql"
	err := c.Validate()
	require.Error(t, err)
	var ce *model.ConfigError
	assert.ErrorAs(t, err, &ce)

	c = base()
	c.Store.DSN = ""
	assert.Error(t, c.Validate())

	c = base()
	c.HTTP.MaxWorkers = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Parser.MinDateParseRate = 1.5
	assert.Error(t, c.Validate())
}

func TestHTTPConfigTimeout(t *testing.T) {
	c := HTTPConfig{TimeoutSecs: 30}
	assert.Equal(t, "30s", c.Timeout().String())
}
