package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml in the working
// directory and from environment variables with the REELGEN_ prefix.
// Environment variables take precedence over values from the config file.
// Returns a populated Config struct or an error if loading or validation
// fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// A missing config file is fine; env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("REELGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind the
	// keys that have no default explicitly.
	for _, key := range []string{
		"database.url",
		"auth.operator_token_secret",
		"providers.seedance.api_key",
		"providers.seedance.base_url",
		"providers.kling.api_key",
		"providers.kling.base_url",
		"providers.veo.api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for all settings that have sensible
// defaults. Required secrets (database URL, operator token secret, provider
// API keys) deliberately have none.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("execution.max_concurrent_jobs", 5)
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_base_delay_seconds", 2)
	v.SetDefault("execution.retry_max_delay_seconds", 60)
	v.SetDefault("execution.poll_initial_interval_seconds", 5)
	v.SetDefault("execution.poll_max_interval_seconds", 60)
	v.SetDefault("execution.poll_max_wait_seconds", 300)
	v.SetDefault("execution.throttle_cooldown_seconds", 60)
	v.SetDefault("execution.unavailable_threshold", 5)
	v.SetDefault("execution.unavailable_pause_seconds", 300)

	v.SetDefault("providers.default", "seedance")
	v.SetDefault("providers.seedance.request_timeout_seconds", 30)
	v.SetDefault("providers.kling.request_timeout_seconds", 30)
	v.SetDefault("providers.veo.model", "veo-2.0-generate-001")

	v.SetDefault("storage.output_dir", "./output")
	v.SetDefault("storage.payload_dir", "./payloads")
	v.SetDefault("storage.max_clips_per_unit", 999)
}
