// Package config loads the service configuration from the environment, with
// an optional YAML file pointed at by CONFIG_PATH.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root service configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Relay    RelayConfig    `yaml:"relay"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"       env:"DATABASE_DSN"       env-required:"true"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10"`
}

// KafkaConfig holds broker connection settings.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers" env:"KAFKA_BOOTSTRAP_SERVERS" env-default:"localhost:9092"`
	ConsumerGroup    string `yaml:"consumer_group"    env:"KAFKA_CONSUMER_GROUP"    env-default:"delivery-calendar"`
}

// RelayConfig holds the outbox relay settings.
type RelayConfig struct {
	PollingInterval time.Duration `yaml:"polling_interval" env:"RELAY_POLLING_INTERVAL" env-default:"5s"`
	BatchSize       int           `yaml:"batch_size"       env:"RELAY_BATCH_SIZE"       env-default:"20"`
}

// RetryConfig parameterizes the persistence retry wrapper.
type RetryConfig struct {
	MaxAttempts     uint64        `yaml:"max_attempts"     env:"RETRY_MAX_ATTEMPTS"     env-default:"3"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"RETRY_INITIAL_INTERVAL" env-default:"100ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads the configuration from CONFIG_PATH when set, falling back to
// environment variables only.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading config from environment: %w", err)
	}
	return &cfg, nil
}
