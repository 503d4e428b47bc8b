package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Retrain.DriftSnapshots != 3 || c.Retrain.LockTTL != 15*time.Minute || c.Server.Port != 8080 {
		t.Fatalf("defaults not applied: %+v", c.Retrain)
	}
	if c.Kafka.RequiredAcks != -1 || c.Kafka.MaxAttempts != 3 || c.Kafka.WriteTimeout != 10*time.Second {
		t.Fatalf("kafka = %+v", c.Kafka)
	}
	if !c.Server.CORS || c.Server.Host != "0.0.0.0" {
		t.Fatalf("server = %+v", c.Server)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
environment: test
server:
  cors: false
store:
  backend: memory
retrain:
  hit_rate_floor: 0.35
  cadence: 24h
marketdata:
  stream:
    enabled: true
    symbols: ["BINANCE:BTCUSDT"]
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" || c.Store.Backend != "memory" || c.Server.CORS {
		t.Fatalf("overrides lost: %+v", c)
	}
	if c.Retrain.HitRateFloor != 0.35 || c.Retrain.Cadence != 24*time.Hour {
		t.Fatalf("retrain = %+v", c.Retrain)
	}
	if c.Retrain.HoldoutFraction != 0.2 || c.Tracker.MaxConcurrency != 8 {
		t.Fatalf("untouched defaults lost: %+v %+v", c.Retrain, c.Tracker)
	}
	if c.MarketData.Stream.PingInterval != 30*time.Second {
		t.Fatalf("nested default lost: %v", c.MarketData.Stream.PingInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"bolt path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"floor", func(c *Config) { c.Retrain.HitRateFloor = 1.5 }, "hit_rate_floor"},
		{"drift", func(c *Config) { c.Retrain.DriftSnapshots = 0 }, "drift_snapshots"},
		{"margin", func(c *Config) { c.Retrain.ValidationMargin = -0.1 }, "validation_margin"},
		{"holdout", func(c *Config) { c.Retrain.HoldoutFraction = 1 }, "holdout_fraction"},
		{"samples", func(c *Config) { c.Retrain.MinTrainingSamples = 1 }, "min_training_samples"},
		{"trainer", func(c *Config) { c.Trainer.Type = "torch" }, "trainer.type"},
		{"trainer url", func(c *Config) { c.Trainer.Type = "http" }, "service_url"},
		{"kafka", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"clickhouse", func(c *Config) { c.ClickHouse.Enabled = true }, "clickhouse.host"},
		{"stream", func(c *Config) { c.MarketData.Stream.Enabled = true }, "symbols"},
		{"concurrency", func(c *Config) { c.Tracker.MaxConcurrency = 0 }, "max_concurrency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := Default()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
