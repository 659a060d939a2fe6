// Package config содержит логику чтения конфигурации сервиса присуждения тендеров.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	NotifierURL     string        `env:"NOTIFIER_URL"`
	NATSURL         string        `env:"NATS_URL"`
	AuthSecret      string        `env:"AUTH_SECRET"`
	LogLevel        string        `env:"LOG_LEVEL"`
	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"5m"`
	OTLPEndpoint    string        `env:"OTLP_ENDPOINT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifierURL, "n", "", "notification service address")
	flag.StringVar(&cfg.NATSURL, "q", "", "NATS server URL")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for actor cookie signatures")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.DurationVar(&cfg.OutboxInterval, "i", 2*time.Second, "outbox polling interval")
	flag.StringVar(&cfg.OTLPEndpoint, "o", "", "OTLP gRPC collector address, telemetry export is off when empty")

	flag.Parse()

	override(&cfg.RunAddress, envCfg.RunAddress)
	override(&cfg.DatabaseURI, envCfg.DatabaseURI)
	override(&cfg.NotifierURL, envCfg.NotifierURL)
	override(&cfg.NATSURL, envCfg.NATSURL)
	override(&cfg.AuthSecret, envCfg.AuthSecret)
	override(&cfg.LogLevel, envCfg.LogLevel)
	override(&cfg.OTLPEndpoint, envCfg.OTLPEndpoint)
	if envCfg.OutboxInterval > 0 {
		cfg.OutboxInterval = envCfg.OutboxInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.OutboxBatchSize <= 0 {
		return nil, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxInterval <= 0 {
		return nil, fmt.Errorf("outbox interval must be positive, got %s", cfg.OutboxInterval)
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
