package constants

// Default retry configuration values
const (
	DefaultRetryBackoffMs = 1000
	DefaultMaxBackoffMs   = 60000
	DefaultMaxAttempts    = 5
)

// Default queue policy values
const (
	DefaultStaleThresholdSec  = 120
	DefaultStaleCheckSec      = 30
	DefaultRetentionMinutes   = 60
	DefaultJanitorIntervalSec = 300
	DefaultHistoryLimit       = 50
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec         = 30
	DefaultFeedHandshakeSec       = 10
	DefaultFeedPingIntervalSec    = 30
	DefaultStorageRetryAttempts   = 3
	DefaultGracefulShutdownSec    = 30
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	DefaultReconnectMaxBackoffSec = 30
)

// Default status server address
const (
	DefaultStatusAddr = "127.0.0.1:8093"
)

// ServerErrorChannelSize bounds the status-server error channel.
const ServerErrorChannelSize = 1
