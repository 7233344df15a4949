package main

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadPerfConfig(t *testing.T, env map[string]string) PerfConfig {
	t.Helper()

	var cfg PerfConfig
	require.NoError(t, envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("PERF_", envconfig.MapLookuper(env)),
	}))
	return cfg
}

func TestPerfConfig_Defaults(t *testing.T) {
	cfg := loadPerfConfig(t, nil)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Workers)
	assert.Equal(t, 500, cfg.RPS)
	assert.Equal(t, 3, cfg.AttemptsPerCode)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestPerfConfig_RejectsNonPositive(t *testing.T) {
	for _, env := range []map[string]string{
		{"PERF_WORKERS": "0"},
		{"PERF_RPS": "0"},
		{"PERF_ATTEMPTS_PER_CODE": "0"},
		{"PERF_COUPONS": "-1"},
		{"PERF_TIMEOUT": "0s"},
	} {
		cfg := loadPerfConfig(t, env)
		assert.Error(t, cfg.Validate(), "%v", env)
	}
}
