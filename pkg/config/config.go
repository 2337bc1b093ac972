package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Feed      FeedConfig      `mapstructure:"feed"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // "json" or "console"
}

type SchedulerConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
}

type ProviderConfig struct {
	Kind              string             `mapstructure:"kind"` // "yahoo" or "simulated"
	RequestsPerSecond int                `mapstructure:"requests_per_second"`
	BasePrices        map[string]float64 `mapstructure:"base_prices"`
}

type GatewayConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ConnectLimit   int           `mapstructure:"connect_limit"` // per IP per window, 0 disables
	ConnectWindow  time.Duration `mapstructure:"connect_window"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Partitions   int           `mapstructure:"partitions"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Async        bool          `mapstructure:"async"`
}

type FeedConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	// Values already present in the environment win over the .env file.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// "scheduler.interval" -> "SCHEDULER_INTERVAL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "scheduler.interval", "scheduler.max_concurrency", "scheduler.fetch_timeout")
	bindEnv(v, "provider.kind", "provider.requests_per_second")
	bindEnv(v, "gateway.write_wait", "gateway.pong_wait", "gateway.ping_period",
		"gateway.send_buffer", "gateway.max_message_size", "gateway.allowed_origins",
		"gateway.connect_limit", "gateway.connect_window")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.snapshot_ttl")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic",
		"kafka.partitions", "kafka.batch_size", "kafka.batch_timeout", "kafka.async")
	bindEnv(v, "feed.num_workers", "feed.queue_size")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Env vars arrive as a single comma separated string.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Gateway.AllowedOrigins = splitList(cfg.Gateway.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8000")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("scheduler.interval", 10*time.Second)
	v.SetDefault("scheduler.max_concurrency", 8)
	v.SetDefault("scheduler.fetch_timeout", 15*time.Second)

	v.SetDefault("provider.kind", "yahoo")
	v.SetDefault("provider.requests_per_second", 5)
	v.SetDefault("provider.base_prices", map[string]float64{
		"AAPL": 150.0, "GOOG": 2800.0, "MSFT": 300.0, "TSLA": 700.0, "AMZN": 3400.0,
	})

	v.SetDefault("gateway.write_wait", 5*time.Second)
	v.SetDefault("gateway.pong_wait", 60*time.Second)
	v.SetDefault("gateway.ping_period", 50*time.Second)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.max_message_size", 512*1024)
	v.SetDefault("gateway.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("gateway.connect_limit", 30)
	v.SetDefault("gateway.connect_window", time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_ttl", time.Hour)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quote_ticks")
	v.SetDefault("kafka.partitions", 4)
	// Send after 100 messages or 10ms, whichever comes first
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", 10*time.Millisecond)
	v.SetDefault("kafka.async", true)

	v.SetDefault("feed.num_workers", 4)
	v.SetDefault("feed.queue_size", 100)
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.MaxConcurrency <= 0 {
		return fmt.Errorf("scheduler max_concurrency must be positive, got %d", c.Scheduler.MaxConcurrency)
	}
	if c.Gateway.PingPeriod >= c.Gateway.PongWait {
		return fmt.Errorf("gateway ping_period (%s) must be shorter than pong_wait (%s)",
			c.Gateway.PingPeriod, c.Gateway.PongWait)
	}
	switch c.Provider.Kind {
	case "yahoo", "simulated":
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	if c.Gateway.ConnectLimit > 0 && c.Gateway.ConnectWindow <= 0 {
		return fmt.Errorf("gateway connect_window must be positive when connect_limit is set")
	}
	if c.Feed.NumWorkers <= 0 {
		return fmt.Errorf("feed num_workers must be positive, got %d", c.Feed.NumWorkers)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Kafka.Enabled && (c.Kafka.Partitions <= 0 || c.Kafka.BatchSize <= 0 || c.Kafka.BatchTimeout <= 0) {
		return fmt.Errorf("kafka partitions, batch_size and batch_timeout must be positive")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
