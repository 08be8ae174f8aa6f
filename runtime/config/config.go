// Package config holds the recognized runtime configuration keys and their
// defaults, loaded either programmatically or from YAML.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable the runtime consults. Field names mirror
// the keys enumerated in the specification.
type Config struct {
	MaxConcurrentWorkers          int  `yaml:"max_concurrent_workers"`
	TaskQueueCapacity             int  `yaml:"task_queue_capacity"`
	MessageResponseTimeoutSeconds int  `yaml:"message_response_timeout_seconds"`
	WorkerConcurrentCap           int  `yaml:"worker_concurrent_cap"`
	DependencyBackoffSeconds      int  `yaml:"dependency_backoff_seconds"`
	UnassignableBackoffSeconds    int  `yaml:"unassignable_backoff_seconds"`
	ContextDefaultTTLHours        int  `yaml:"context_default_ttl_hours"`
	MemoryRetentionDays           int  `yaml:"memory_retention_days"`
	ProactiveMode                 bool `yaml:"proactive_mode"`
	FailureRecovery               bool `yaml:"failure_recovery"`
	EventCacheTTLSeconds          int  `yaml:"event_cache_ttl_seconds"`
	EventRetryLimit               int  `yaml:"event_retry_limit"`
	MaxTaskRetries                int  `yaml:"max_task_retries"`
	ProactiveHour                 int  `yaml:"proactive_hour"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		MaxConcurrentWorkers:          5,
		TaskQueueCapacity:             1000,
		MessageResponseTimeoutSeconds: 30,
		WorkerConcurrentCap:           3,
		DependencyBackoffSeconds:      5,
		UnassignableBackoffSeconds:    10,
		ContextDefaultTTLHours:        24,
		MemoryRetentionDays:           30,
		ProactiveMode:                 false,
		FailureRecovery:               true,
		EventCacheTTLSeconds:          3600,
		EventRetryLimit:               3,
		MaxTaskRetries:                3,
		ProactiveHour:                 7,
	}
}

// Load reads a YAML file, applying Default() first so omitted keys keep
// their documented default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResponseTimeout is MessageResponseTimeoutSeconds as a time.Duration.
func (c Config) ResponseTimeout() time.Duration {
	return time.Duration(c.MessageResponseTimeoutSeconds) * time.Second
}

// DependencyBackoff is DependencyBackoffSeconds as a time.Duration.
func (c Config) DependencyBackoff() time.Duration {
	return time.Duration(c.DependencyBackoffSeconds) * time.Second
}

// UnassignableBackoff is UnassignableBackoffSeconds as a time.Duration.
func (c Config) UnassignableBackoff() time.Duration {
	return time.Duration(c.UnassignableBackoffSeconds) * time.Second
}

// ContextDefaultTTL is ContextDefaultTTLHours as a time.Duration.
func (c Config) ContextDefaultTTL() time.Duration {
	return time.Duration(c.ContextDefaultTTLHours) * time.Hour
}

// MemoryRetention is MemoryRetentionDays as a time.Duration.
func (c Config) MemoryRetention() time.Duration {
	return time.Duration(c.MemoryRetentionDays) * 24 * time.Hour
}

// EventCacheTTL is EventCacheTTLSeconds as a time.Duration.
func (c Config) EventCacheTTL() time.Duration {
	return time.Duration(c.EventCacheTTLSeconds) * time.Second
}
