/**
 * @description
 * This package handles the configuration management for the account-service.
 * It uses the Viper library to read configuration from environment variables
 * (and an optional .env file), providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the account-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	SagaCommandQueue        string `mapstructure:"SAGA_COMMAND_QUEUE"`
	MigrationsPath          string `mapstructure:"MIGRATIONS_PATH"`
	IdempotencyTTLMinutes   int    `mapstructure:"IDEMPOTENCY_TTL_MINUTES"`
	IdempotencyRedisPrefix  string `mapstructure:"IDEMPOTENCY_REDIS_PREFIX"`
	OutboxDispatcherEnabled bool   `mapstructure:"OUTBOX_DISPATCHER_ENABLED"`
}

// LoadConfig reads configuration from environment variables from the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8081")
	viper.SetDefault("SAGA_COMMAND_QUEUE", "account_service.saga_commands")
	viper.SetDefault("MIGRATIONS_PATH", "migrations/account")
	viper.SetDefault("IDEMPOTENCY_TTL_MINUTES", 1440)
	viper.SetDefault("IDEMPOTENCY_REDIS_PREFIX", "account_service:idempotency")
	viper.SetDefault("OUTBOX_DISPATCHER_ENABLED", true)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("SAGA_COMMAND_QUEUE")
	_ = viper.BindEnv("MIGRATIONS_PATH")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_MINUTES")
	_ = viper.BindEnv("IDEMPOTENCY_REDIS_PREFIX")
	_ = viper.BindEnv("OUTBOX_DISPATCHER_ENABLED")

	// The .env file is optional; environment variables alone are fine.
	if readErr := viper.ReadInConfig(); readErr != nil {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
			return config, readErr
		}
	}

	err = viper.Unmarshal(&config)
	return config, err
}
