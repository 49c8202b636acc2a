package models

import "time"

// Config holds the application configuration
type Config struct {
	Backend  BackendConfig `json:"backend"`
	Feed     FeedConfig    `json:"feed"`
	Storage  StorageConfig `json:"storage"`
	Queue    QueueConfig   `json:"queue"`
	Retry    RetryConfig   `json:"retry"`
	Tracing  TracingConfig `json:"tracing"`
	Status   StatusConfig  `json:"status"`
	LogLevel string        `json:"log_level"`
}

// BackendConfig holds the persist-RPC backend configuration.
type BackendConfig struct {
	BaseURL      string        `json:"base_url"`
	Timeout      time.Duration `json:"timeout_ms"`
	HistoryLimit int           `json:"historyLimit"`
	SessionToken string        `json:"session_token"`
}

// FeedConfig holds the room event feed configuration.
type FeedConfig struct {
	BaseURL             string `json:"base_url"`
	HandshakeTimeoutSec int    `json:"handshakeTimeoutSec"`
	PingIntervalSec     int    `json:"pingIntervalSec"`
}

// StorageConfig holds the local durable slot configuration.
type StorageConfig struct {
	Path string `json:"path"`
}

// QueueConfig holds pending-queue policy knobs.
type QueueConfig struct {
	ResendOnReconnect  bool `json:"resendOnReconnect"`
	DropRoomOnLeave    bool `json:"dropRoomOnLeave"`
	StaleThresholdSec  int  `json:"staleThresholdSec"`
	StaleCheckSec      int  `json:"staleCheckSec"`
	RetentionMinutes   int  `json:"retentionMinutes"`
	JanitorIntervalSec int  `json:"janitorIntervalSec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// StatusConfig holds the local status server configuration.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
