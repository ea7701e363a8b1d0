package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config file and from environment
// variables. Environment variables use the TASKMAN_ prefix with underscores
// for nesting (e.g. TASKMAN_DATABASE_URL, TASKMAN_WORKER_MAX_RETRIES) and
// take precedence over file values. Returns a validated Config or an error.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from the
		// environment. Any other read error is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every known key. Defaults double as
// key declarations: AutomaticEnv only resolves keys viper has seen.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 5672)
	v.SetDefault("broker.user", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.task_queue", "task_queue")

	v.SetDefault("worker.min_process_time", "5s")
	v.SetDefault("worker.max_process_time", "10s")
	v.SetDefault("worker.error_probability", 0.2)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_delay", "1s")
	v.SetDefault("worker.max_concurrent_tasks", 10)
	v.SetDefault("worker.prefetch_count", 5)
	v.SetDefault("worker.drain_timeout", "30s")
}
