package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Broker   BrokerConfig   `mapstructure:"broker"   validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database related settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// BrokerConfig contains the message broker connection settings and the name
// of the task queue. Producer and Consumer both declare the queue from these
// values, so they always agree on its arguments.
type BrokerConfig struct {
	Host      string `mapstructure:"host"       validate:"required"`
	Port      int    `mapstructure:"port"       validate:"required,gt=0,lt=65536"`
	User      string `mapstructure:"user"       validate:"required"`
	Password  string `mapstructure:"password"   validate:"required"`
	TaskQueue string `mapstructure:"task_queue" validate:"required"`
}

// URL assembles the AMQP connection URL from the broker settings.
func (c BrokerConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port)
}

// WorkerConfig contains the task processing settings.
//
// PrefetchCount bounds how many unacknowledged messages the broker delivers
// at once; MaxConcurrentTasks bounds how many of those are processed
// concurrently. Prefetch should be at least the concurrency limit to keep
// the pipeline full.
type WorkerConfig struct {
	MinProcessTime     time.Duration `mapstructure:"min_process_time"     validate:"required,gt=0"`
	MaxProcessTime     time.Duration `mapstructure:"max_process_time"     validate:"required,gtefield=MinProcessTime"`
	ErrorProbability   float64       `mapstructure:"error_probability"    validate:"gte=0,lte=1"`
	MaxRetries         int           `mapstructure:"max_retries"          validate:"required,gte=1"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"          validate:"required,gt=0"`
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" validate:"required,gte=1"`
	PrefetchCount      int           `mapstructure:"prefetch_count"       validate:"required,gte=1"`
	DrainTimeout       time.Duration `mapstructure:"drain_timeout"        validate:"required,gt=0"`
}
