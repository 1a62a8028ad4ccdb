package config

import (
	"fmt"
	"os"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/export"
	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/sampling"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service ServiceConfig `yaml:"service"`
	Tracing TracingConfig `yaml:"tracing"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Health  HealthConfig  `yaml:"health"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
}

type TracingConfig struct {
	Features               flags.Flags      `yaml:"features"`
	SpanIdleTimeoutSeconds int              `yaml:"spanIdleTimeoutSeconds"`
	Sampling               SamplingConfig   `yaml:"sampling"`
	Resilience             ResilienceConfig `yaml:"resilience"`
	Backends               BackendsConfig   `yaml:"backends"`
}

type SamplingConfig struct {
	BaselineProbability float64 `yaml:"baselineProbability"`
	SlowThresholdMs     int     `yaml:"slowThresholdMs"`
	BufferWindowSeconds int     `yaml:"bufferWindowSeconds"`
	MaxBufferedSpans    int64   `yaml:"maxBufferedSpans"`
}

type ResilienceConfig struct {
	FailureThreshold        int     `yaml:"failureThreshold"`
	WaitDurationSeconds     int     `yaml:"waitDurationSeconds"`
	SlidingWindowSize       int     `yaml:"slidingWindowSize"`
	SlowCallDurationSeconds float64 `yaml:"slowCallDurationSeconds"`
	FailureRateThreshold    float64 `yaml:"failureRateThreshold"`
	SlowCallRateThreshold   float64 `yaml:"slowCallRateThreshold"`
	HalfOpenMaxCalls        int     `yaml:"halfOpenMaxCalls"`
	ExportTimeoutSeconds    int     `yaml:"exportTimeoutSeconds"`
}

type BackendsConfig struct {
	OTLP          OTLPConfig          `yaml:"otlp"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
}

type OTLPConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupId"`
}

type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the configuration used when no file overrides it: every
// instrumentation flag enabled, 10% baseline sampling, 5s tail window and the
// stock circuit breaker thresholds.
func Defaults() Config {
	return Config{
		Service: ServiceConfig{Name: "wallet-service"},
		Tracing: TracingConfig{
			Features:               flags.Defaults(),
			SpanIdleTimeoutSeconds: 300,
			Sampling: SamplingConfig{
				BaselineProbability: 0.10,
				SlowThresholdMs:     500,
				BufferWindowSeconds: 5,
				MaxBufferedSpans:    100_000,
			},
			Resilience: ResilienceConfig{
				FailureThreshold:        5,
				WaitDurationSeconds:     60,
				SlidingWindowSize:       100,
				SlowCallDurationSeconds: 5,
				FailureRateThreshold:    0.5,
				SlowCallRateThreshold:   0.5,
				HalfOpenMaxCalls:        10,
				ExportTimeoutSeconds:    10,
			},
			Backends: BackendsConfig{
				OTLP:          OTLPConfig{Endpoint: "localhost:4317"},
				Elasticsearch: ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}, Index: "wallet_spans"},
			},
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "wallet.transactions",
			GroupID: "wallet-tracing-pipeline",
		},
		Health: HealthConfig{Addr: ":8090"},
	}
}

// Load reads a YAML file over the defaults. Environment variable references
// ("${VAR}") inside the file are expanded before parsing. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name must not be empty")
	}
	if p := c.Tracing.Sampling.BaselineProbability; p <= 0 || p > 1 {
		return fmt.Errorf("tracing.sampling.baselineProbability must be in (0, 1], got %v", p)
	}
	if w := c.Tracing.Sampling.BufferWindowSeconds; w < 1 {
		return fmt.Errorf("tracing.sampling.bufferWindowSeconds must be at least 1, got %d", w)
	}
	if f := c.Tracing.Resilience.FailureThreshold; f < 1 {
		return fmt.Errorf("tracing.resilience.failureThreshold must be at least 1, got %d", f)
	}
	if r := c.Tracing.Resilience.FailureRateThreshold; r <= 0 || r > 1 {
		return fmt.Errorf("tracing.resilience.failureRateThreshold must be in (0, 1], got %v", r)
	}
	if r := c.Tracing.Resilience.SlowCallRateThreshold; r <= 0 || r > 1 {
		return fmt.Errorf("tracing.resilience.slowCallRateThreshold must be in (0, 1], got %v", r)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic must not be empty")
	}
	if len(c.Tracing.Backends.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("tracing.backends.elasticsearch.addresses must not be empty")
	}
	if c.Tracing.Backends.OTLP.Endpoint == "" {
		return fmt.Errorf("tracing.backends.otlp.endpoint must not be empty")
	}
	return nil
}

// SamplerConfig converts the sampling section into the sampler's own config.
func (c Config) SamplerConfig() sampling.SamplerConfig {
	return sampling.SamplerConfig{
		Window:             time.Duration(c.Tracing.Sampling.BufferWindowSeconds) * time.Second,
		SlowTraceThreshold: time.Duration(c.Tracing.Sampling.SlowThresholdMs) * time.Millisecond,
		Probability:        c.Tracing.Sampling.BaselineProbability,
		MaxBufferedSpans:   c.Tracing.Sampling.MaxBufferedSpans,
	}
}

// BreakerConfig converts the resilience section into the circuit breaker's
// own config.
func (c Config) BreakerConfig() export.BreakerConfig {
	r := c.Tracing.Resilience
	return export.BreakerConfig{
		FailureRateThreshold:  r.FailureRateThreshold,
		SlowCallRateThreshold: r.SlowCallRateThreshold,
		SlowCallDuration:      time.Duration(r.SlowCallDurationSeconds * float64(time.Second)),
		SlidingWindowSize:     r.SlidingWindowSize,
		MinimumCalls:          r.FailureThreshold,
		OpenDuration:          time.Duration(r.WaitDurationSeconds) * time.Second,
		HalfOpenMaxCalls:      r.HalfOpenMaxCalls,
	}
}

// ExportTimeout bounds a single backend export attempt.
func (c Config) ExportTimeout() time.Duration {
	return time.Duration(c.Tracing.Resilience.ExportTimeoutSeconds) * time.Second
}

// SpanIdleTimeout is the abandoned-span reaper threshold.
func (c Config) SpanIdleTimeout() time.Duration {
	return time.Duration(c.Tracing.SpanIdleTimeoutSeconds) * time.Second
}
