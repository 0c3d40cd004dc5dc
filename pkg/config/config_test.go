package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

type testConfig struct {
	Name     string        `env:"NOTIFYKIT_TEST_NAME" envDefault:"fallback"`
	Workers  int           `env:"NOTIFYKIT_TEST_WORKERS" envDefault:"4"`
	Interval time.Duration `env:"NOTIFYKIT_TEST_INTERVAL" envDefault:"30s"`
}

type requiredConfig struct {
	Token string `env:"NOTIFYKIT_TEST_REQUIRED_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "fallback", cfg.Name)
		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, 30*time.Second, cfg.Interval)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("NOTIFYKIT_TEST_NAME", "from-env")
		t.Setenv("NOTIFYKIT_TEST_WORKERS", "16")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-env", cfg.Name)
		assert.Equal(t, 16, cfg.Workers)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil destination fails", func(t *testing.T) {
		var cfg *testConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on missing required variable", func(t *testing.T) {
		var cfg requiredConfig
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})

	t.Run("does not panic with defaults", func(t *testing.T) {
		var cfg testConfig
		assert.NotPanics(t, func() { config.MustLoad(&cfg) })
	})
}
