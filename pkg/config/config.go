package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"botai-predictor"`
	Workers    int           `yaml:"workers" default:"4"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

type KafkaConfig struct {
	Enabled      bool                `yaml:"enabled"`
	Brokers      []string            `yaml:"brokers" validate:"required_if=Enabled true"`
	VerdictTopic string              `yaml:"verdict_topic" default:"botai.signals.verdicts"`
	CandleTopic  string              `yaml:"candle_topic" default:"botai.candles.closed"`
	RequiredAcks int                 `yaml:"required_acks" default:"1"`
	Compression  string              `yaml:"compression" default:"snappy"`
	Producer     KafkaProducerConfig `yaml:"producer"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" validate:"required"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"botai"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	CandleTable      string        `yaml:"candle_table" default:"botai.candles"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BybitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.bybit.com/v5/public/linear"`
	Interval       string        `yaml:"interval" default:"15"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
}

type ModelConfig struct {
	CheckpointPath string `yaml:"checkpoint_path" validate:"required"`
}

type PipelineConfig struct {
	Exchange         string        `yaml:"exchange" default:"bybit"`
	Symbols          []string      `yaml:"symbols" validate:"min=1"`
	IntervalMinutes  int           `yaml:"interval_minutes" default:"15" validate:"gt=0"`
	CacheTTL         time.Duration `yaml:"cache_ttl" default:"5m"`
	CacheBucket      time.Duration `yaml:"cache_bucket" default:"1m"`
	CacheSweepEvery  time.Duration `yaml:"cache_sweep_every" default:"1m"`
	DiversityWindow  int           `yaml:"diversity_window" default:"10" validate:"gt=0"`
	RiskRewardRatio  float64       `yaml:"risk_reward_ratio" default:"2.0" validate:"gt=0"`
	BaseStopLossPct  float64       `yaml:"base_stop_loss_pct" default:"1.0" validate:"gt=0"`
	PredictTimeout   time.Duration `yaml:"predict_timeout" default:"30s"`
	ReferenceSymbol  string        `yaml:"reference_symbol" default:"BTCUSDT"`
	RequestRateLimit int           `yaml:"request_rate_limit" default:"10"`
}

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Bybit       BybitConfig      `yaml:"bybit"`
	Model       ModelConfig      `yaml:"model"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

// Load reads a YAML config, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Pipeline.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MODEL_CHECKPOINT"); v != "" {
		c.Model.CheckpointPath = v
	}
	return c, nil
}

// Validate checks structural constraints via struct tags.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// CandleInterval returns the pipeline candle interval as a duration.
func (c *Config) CandleInterval() time.Duration {
	return time.Duration(c.Pipeline.IntervalMinutes) * time.Minute
}
