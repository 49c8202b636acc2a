package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/models"
	"chatsync/internal/security"
)

var (
	ErrMissingBackendURL  = models.ConfigError{Message: "missing backend base URL"}
	ErrMissingFeedURL     = models.ConfigError{Message: "missing feed base URL"}
	ErrMissingStoragePath = models.ConfigError{Message: "missing storage path"}
)

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Backend.BaseURL == "" {
		return ErrMissingBackendURL
	}
	if c.Feed.BaseURL == "" {
		return ErrMissingFeedURL
	}
	if c.Storage.Path == "" {
		return ErrMissingStoragePath
	}
	if err := security.ValidateFilePath(c.Storage.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid storage path: %v", err)}
	}

	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second
	} else {
		// The JSON value is expressed in milliseconds.
		c.Backend.Timeout *= time.Millisecond
	}
	if c.Backend.HistoryLimit <= 0 {
		c.Backend.HistoryLimit = constants.DefaultHistoryLimit
	}

	if c.Feed.HandshakeTimeoutSec <= 0 {
		c.Feed.HandshakeTimeoutSec = constants.DefaultFeedHandshakeSec
	}
	if c.Feed.PingIntervalSec <= 0 {
		c.Feed.PingIntervalSec = constants.DefaultFeedPingIntervalSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Queue.StaleThresholdSec <= 0 {
		c.Queue.StaleThresholdSec = constants.DefaultStaleThresholdSec
	}
	if c.Queue.StaleCheckSec <= 0 {
		c.Queue.StaleCheckSec = constants.DefaultStaleCheckSec
	}
	if c.Queue.RetentionMinutes <= 0 {
		c.Queue.RetentionMinutes = constants.DefaultRetentionMinutes
	}
	if c.Queue.JanitorIntervalSec <= 0 {
		c.Queue.JanitorIntervalSec = constants.DefaultJanitorIntervalSec
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		c.Status.Addr = constants.DefaultStatusAddr
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CHATSYNC_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if url := os.Getenv("CHATSYNC_FEED_URL"); url != "" {
		c.Feed.BaseURL = url
	}
	if path := os.Getenv("CHATSYNC_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}

	// The session token is a credential and belongs in the environment,
	// not the config file.
	if token := os.Getenv("CHATSYNC_SESSION_TOKEN"); token != "" {
		c.Backend.SessionToken = token
	}
}
