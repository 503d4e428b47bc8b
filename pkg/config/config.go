package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SignalTrack/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Logger      struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
	} `yaml:"logger"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Store struct {
		Backend string        `yaml:"backend" default:"bolt"` // memory | bolt
		Path    string        `yaml:"path" default:"data/signals.db"`
		Timeout time.Duration `yaml:"timeout" default:"2s"`
	} `yaml:"store"`
	Tracker struct {
		PerformanceWindow time.Duration `yaml:"performance_window" default:"720h"`
		DefaultSignalTTL  time.Duration `yaml:"default_signal_ttl" default:"72h"`
		FetchTimeout      time.Duration `yaml:"fetch_timeout" default:"5s"`
		MaxConcurrency    int           `yaml:"max_concurrency" default:"8"`
	} `yaml:"tracker"`
	Retrain struct {
		Cadence             time.Duration `yaml:"cadence" default:"168h"`
		HitRateFloor        float64       `yaml:"hit_rate_floor" default:"0.4"`
		DriftSnapshots      int           `yaml:"drift_snapshots" default:"3"`
		ValidationMargin    float64       `yaml:"validation_margin" default:"0.02"`
		MinValidationMetric float64       `yaml:"min_validation_metric" default:"0.5"`
		MinTrainingSamples  int           `yaml:"min_training_samples" default:"20"`
		MinNewOutcomes      int           `yaml:"min_new_outcomes" default:"15"`
		HoldoutFraction     float64       `yaml:"holdout_fraction" default:"0.2"`
		LockTTL             time.Duration `yaml:"lock_ttl" default:"15m"`
	} `yaml:"retrain"`
	Trainer struct {
		Type         string        `yaml:"type" default:"local"` // local | http
		ServiceURL   string        `yaml:"service_url"`
		Timeout      time.Duration `yaml:"timeout" default:"60s"`
		Epochs       int           `yaml:"epochs" default:"300"`
		LearningRate float64       `yaml:"learning_rate" default:"0.1"`
	} `yaml:"trainer"`
	MarketData struct {
		BinanceURL     string        `yaml:"binance_url" default:"https://api.binance.com"`
		FinnhubURL     string        `yaml:"finnhub_url" default:"https://finnhub.io/api/v1"`
		FinnhubAPIKey  string        `yaml:"finnhub_api_key"`
		CacheTTL       time.Duration `yaml:"cache_ttl" default:"30s"`
		RatePerSec     float64       `yaml:"rate_per_sec" default:"10"`
		Burst          int           `yaml:"burst" default:"5"`
		Stream         struct {
			Enabled        bool          `yaml:"enabled"`
			WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
			Symbols        []string      `yaml:"symbols"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		} `yaml:"stream"`
	} `yaml:"marketdata"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"sigtrack"`
	} `yaml:"redis"`
	Queue struct {
		Workers int `yaml:"workers" default:"1"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled         bool          `yaml:"enabled"`
		Brokers         []string      `yaml:"brokers"`
		CandidatesTopic string        `yaml:"candidates_topic" default:"signals.candidates"`
		EventsTopic     string        `yaml:"events_topic" default:"signals.events"`
		RequiredAcks    int           `yaml:"required_acks" default:"-1"`
		Compression     string        `yaml:"compression" default:"snappy"`
		MaxAttempts     int           `yaml:"max_attempts" default:"3"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		BatchSize       int           `yaml:"batch_size" default:"50"`
		BatchTimeout    time.Duration `yaml:"batch_timeout" default:"50ms"`
		Consumer        struct {
			GroupID    string        `yaml:"group_id" default:"sigtrack"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"sigtrack"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// Default returns a configuration with every default applied and nothing loaded.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, and environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SIGTRACK_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.MarketData.FinnhubAPIKey = v
	}
	if brokers := util.SplitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		c.Kafka.Brokers = brokers
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Store.Backend {
	case "memory":
	case "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for bolt backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'memory' or 'bolt', got '%s'", c.Store.Backend)
	}

	r := c.Retrain
	if r.HitRateFloor < 0 || r.HitRateFloor > 1 {
		return fmt.Errorf("retrain.hit_rate_floor must be within [0,1], got %v", r.HitRateFloor)
	}
	if r.DriftSnapshots < 1 {
		return fmt.Errorf("retrain.drift_snapshots must be >= 1")
	}
	if r.ValidationMargin < 0 {
		return fmt.Errorf("retrain.validation_margin must be >= 0")
	}
	if r.HoldoutFraction <= 0 || r.HoldoutFraction >= 1 {
		return fmt.Errorf("retrain.holdout_fraction must be within (0,1), got %v", r.HoldoutFraction)
	}
	if r.MinTrainingSamples < 2 {
		return fmt.Errorf("retrain.min_training_samples must be >= 2")
	}

	switch c.Trainer.Type {
	case "local":
	case "http":
		if c.Trainer.ServiceURL == "" {
			return fmt.Errorf("trainer.service_url is required for http trainer")
		}
	default:
		return fmt.Errorf("trainer.type must be 'local' or 'http', got '%s'", c.Trainer.Type)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.MarketData.Stream.Enabled && len(c.MarketData.Stream.Symbols) == 0 {
		return fmt.Errorf("marketdata.stream.symbols cannot be empty when stream is enabled")
	}
	if c.Tracker.MaxConcurrency < 1 {
		return fmt.Errorf("tracker.max_concurrency must be >= 1")
	}
	return nil
}
