package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	ClassifierURL        string `env:"CLASSIFIER_URL,required=true"`
	BackendURL           string `env:"BACKEND_URL"`
	StorageDriver        string `env:"STORAGE_DRIVER,default=redis"`
	DatabaseDSN          string `env:"DATABASE_DSN"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
	ClassifyTimeoutSec   int    `env:"CLASSIFY_TIMEOUT_SEC,default=10"`
	ClassifyRatePerSec   int    `env:"CLASSIFY_RATE_PER_SEC,default=20"`
	StoreCapacity        int    `env:"STORE_CAP,default=100"`
	DedupWindowSec       int    `env:"DEDUP_WINDOW_SEC,default=60"`
	ConsumerPrefetch     int    `env:"CONSUMER_PREFETCH,default=8"`
	ReconcileIntervalSec int    `env:"RECONCILE_INTERVAL_SEC,default=300"`
}

const (
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.StorageDriver {
	case StorageDriverRedis:
	case StorageDriverPostgres:
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required when STORAGE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return &cfg, nil
}
