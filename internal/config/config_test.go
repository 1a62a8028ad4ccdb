package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Empty path returns the defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Defaults(), cfg)
		assert.True(t, cfg.Tracing.Features.Database)
		assert.Equal(t, 0.10, cfg.Tracing.Sampling.BaselineProbability)
	})

	t.Run("File values override defaults, absent keys keep them", func(t *testing.T) {
		path := writeConfigFile(t, `
service:
  name: payments-service
tracing:
  features:
    database: false
  sampling:
    baselineProbability: 0.25
    bufferWindowSeconds: 10
  resilience:
    failureThreshold: 8
    waitDurationSeconds: 30
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "payments-service", cfg.Service.Name)
		assert.False(t, cfg.Tracing.Features.Database)
		assert.True(t, cfg.Tracing.Features.Messaging, "untouched flag keeps its default")
		assert.Equal(t, 0.25, cfg.Tracing.Sampling.BaselineProbability)
		assert.Equal(t, 10, cfg.Tracing.Sampling.BufferWindowSeconds)
		assert.Equal(t, 8, cfg.Tracing.Resilience.FailureThreshold)
		assert.Equal(t, 30, cfg.Tracing.Resilience.WaitDurationSeconds)
		assert.Equal(t, 100, cfg.Tracing.Resilience.SlidingWindowSize)
	})

	t.Run("Environment references are expanded before parsing", func(t *testing.T) {
		t.Setenv("KAFKA_BROKER", "broker-1:9092")
		path := writeConfigFile(t, `
kafka:
  brokers:
    - ${KAFKA_BROKER}
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"broker-1:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("Invalid probability is rejected", func(t *testing.T) {
		path := writeConfigFile(t, `
tracing:
  sampling:
    baselineProbability: 1.5
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "baselineProbability")
	})

	t.Run("Zero failure threshold is rejected", func(t *testing.T) {
		path := writeConfigFile(t, `
tracing:
  resilience:
    failureThreshold: -1
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "failureThreshold")
	})

	t.Run("Missing file returns an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		assert.Error(t, err)
	})
}

func TestConfigConversions(t *testing.T) {
	t.Run("Sampler config mirrors the sampling section", func(t *testing.T) {
		cfg := Defaults()
		sc := cfg.SamplerConfig()
		assert.Equal(t, 5*time.Second, sc.Window)
		assert.Equal(t, 500*time.Millisecond, sc.SlowTraceThreshold)
		assert.Equal(t, 0.10, sc.Probability)
	})

	t.Run("Breaker config mirrors the resilience section", func(t *testing.T) {
		cfg := Defaults()
		bc := cfg.BreakerConfig()
		assert.Equal(t, 0.5, bc.FailureRateThreshold)
		assert.Equal(t, 5*time.Second, bc.SlowCallDuration)
		assert.Equal(t, 100, bc.SlidingWindowSize)
		assert.Equal(t, 5, bc.MinimumCalls)
		assert.Equal(t, 60*time.Second, bc.OpenDuration)
		assert.Equal(t, 10, bc.HalfOpenMaxCalls)
	})

	t.Run("Timeout accessors convert to durations", func(t *testing.T) {
		cfg := Defaults()
		assert.Equal(t, 10*time.Second, cfg.ExportTimeout())
		assert.Equal(t, 5*time.Minute, cfg.SpanIdleTimeout())
	})

	t.Run("Default feature set enables every component", func(t *testing.T) {
		assert.Equal(t, flags.Defaults(), Defaults().Tracing.Features)
	})
}
