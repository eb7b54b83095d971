package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string `env:"ENGINE_ENV" env-default:"dev"`
	LogLevel  string `env:"ENGINE_LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"ENGINE_LOG_FORMAT" env-default:"console"`

	DBURI         string `env:"ENGINE_DB_URI"`
	MigrationsDir string `env:"ENGINE_MIGRATION_DIR" env-default:"./migrations"`

	RedisAddr string `env:"ENGINE_REDIS_ADDR"`

	KafkaBrokers []string `env:"ENGINE_KAFKA_BROKERS"`
	FillTopic    string   `env:"ENGINE_KAFKA_FILL_TOPIC" env-default:"engine.fills"`
	AlertTopic   string   `env:"ENGINE_KAFKA_ALERT_TOPIC" env-default:"engine.alerts"`

	MetricsAddress string `env:"ENGINE_METRICS_ADDR" env-default:":9100"`

	Feed           FeedConfig
	Scheduler      SchedulerConfig
	Trading        TradingConfig
	Notify         NotifyConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
}

type FeedConfig struct {
	BaseURL    string        `env:"FEED_BASE_URL" env-default:"https://query2.finance.yahoo.com"`
	BatchSize  int           `env:"FEED_BATCH_SIZE" env-default:"10"`
	BatchDelay time.Duration `env:"FEED_BATCH_DELAY" env-default:"100ms"`
	Timeout    time.Duration `env:"FEED_TIMEOUT" env-default:"8s"`
	Staleness  time.Duration `env:"FEED_STALENESS" env-default:"60s"`
	Synthetic  bool          `env:"FEED_SYNTHETIC" env-default:"false"`
}

type SchedulerConfig struct {
	Interval time.Duration `env:"SCHEDULER_INTERVAL" env-default:"30s"`
}

type TradingConfig struct {
	Commission string `env:"TRADING_COMMISSION" env-default:"1.00"`
}

type NotifyConfig struct {
	WebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT" env-default:"10s"`
	MaxTries   uint          `env:"NOTIFY_MAX_TRIES" env-default:"3"`
}

type RateLimitConfig struct {
	Limit  int64         `env:"RATE_LIMIT_COUNT" env-default:"30"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"1m"`
}

type CircuitBreakerConfig struct {
	MaxRequests uint32        `env:"CB_MAX_REQUESTS" env-default:"3"`
	Interval    time.Duration `env:"CB_INTERVAL" env-default:"10s"`
	Timeout     time.Duration `env:"CB_TIMEOUT" env-default:"5s"`
	MaxFailures uint32        `env:"CB_MAX_FAILURES" env-default:"5"`
}

func Load(path string) (*Config, error) {
	config := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, err
		}
		return config, nil
	}
	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, err
	}
	return config, nil
}
