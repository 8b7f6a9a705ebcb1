package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Execution ExecutionConfig `mapstructure:"execution" validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"   validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains settings for the operator API token check.
type AuthConfig struct {
	OperatorTokenSecret string `mapstructure:"operator_token_secret" validate:"required,min=32"`

	// TokenLifetimeMinutes bounds how long an issued operator token stays
	// valid.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// ExecutionConfig tunes the batch executor, retry policy, and poller.
// All durations are expressed in seconds to keep the environment-variable
// surface simple.
type ExecutionConfig struct {
	// MaxConcurrentJobs bounds in-flight jobs per batch execution.
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs" validate:"required,gt=0,lte=64"`

	// MaxRetries is the number of retries after the initial attempt for
	// operations that fail with a retryable error.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// RetryBaseDelaySeconds is the base for exponential backoff (base * 2^attempt).
	RetryBaseDelaySeconds int `mapstructure:"retry_base_delay_seconds" validate:"required,gte=1"`

	// RetryMaxDelaySeconds caps the computed backoff delay.
	RetryMaxDelaySeconds int `mapstructure:"retry_max_delay_seconds" validate:"required,gte=1"`

	// PollInitialIntervalSeconds is the starting status-poll interval.
	PollInitialIntervalSeconds int `mapstructure:"poll_initial_interval_seconds" validate:"required,gte=1"`

	// PollMaxIntervalSeconds is the hard cap on the widened poll interval.
	PollMaxIntervalSeconds int `mapstructure:"poll_max_interval_seconds" validate:"required,gte=1"`

	// PollMaxWaitSeconds is the per-job polling deadline; beyond it the job
	// is recorded as timed out.
	PollMaxWaitSeconds int `mapstructure:"poll_max_wait_seconds" validate:"required,gte=1"`

	// ThrottleCooldownSeconds is the forced pause after a provider reports
	// an explicit rate-limit error.
	ThrottleCooldownSeconds int `mapstructure:"throttle_cooldown_seconds" validate:"required,gte=1"`

	// UnavailableThreshold pauses a provider after this many consecutive
	// unavailable (5xx) submission failures. Zero disables the pause.
	UnavailableThreshold int `mapstructure:"unavailable_threshold" validate:"gte=0,lte=100"`

	// UnavailablePauseSeconds is how long a provider stays paused once the
	// unavailable threshold is crossed.
	UnavailablePauseSeconds int `mapstructure:"unavailable_pause_seconds" validate:"required,gte=1"`
}

// ProvidersConfig selects and configures the video generation providers.
type ProvidersConfig struct {
	// Default is the provider used for jobs that do not specify one.
	Default string `mapstructure:"default" validate:"required,oneof=seedance kling veo"`

	Seedance HTTPProviderConfig `mapstructure:"seedance"`
	Kling    HTTPProviderConfig `mapstructure:"kling"`
	Veo      VeoProviderConfig  `mapstructure:"veo"`
}

// HTTPProviderConfig configures a JSON-over-HTTP provider adapter.
type HTTPProviderConfig struct {
	APIKey                string `mapstructure:"api_key"`
	BaseURL               string `mapstructure:"base_url"                validate:"omitempty,url"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" validate:"gte=0"`
}

// VeoProviderConfig configures the Google Veo adapter.
type VeoProviderConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// StorageConfig configures where downloaded artifacts are written.
type StorageConfig struct {
	// OutputDir is the root under which clips/<unit>/<scene>/clip_NNN.mp4
	// paths are created.
	OutputDir string `mapstructure:"output_dir" validate:"required"`

	// PayloadDir is where prompt payload JSON files are read from, one
	// <prompt_ref>.json per payload.
	PayloadDir string `mapstructure:"payload_dir" validate:"required"`

	// MaxClipsPerUnit bounds the zero-padded clip index width. Exceeding it
	// is a configuration error, not a silent overflow.
	MaxClipsPerUnit int `mapstructure:"max_clips_per_unit" validate:"required,gt=0,lte=999"`
}
