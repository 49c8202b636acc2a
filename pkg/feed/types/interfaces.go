package types

import (
	"context"
)

// EventFunc receives newly persisted rows pushed by the feed.
type EventFunc func(event MessageEvent)

// StatusFunc receives channel lifecycle transitions. err is non-nil only
// for ChannelError.
type StatusFunc func(state ChannelState, err error)

// Subscription is one live room feed connection.
type Subscription interface {
	// Close tears the connection down; the read loop emits ChannelClosed.
	Close() error
}

type Client interface {
	Subscribe(ctx context.Context, chatRoomID string, onEvent EventFunc, onStatus StatusFunc) (Subscription, error)
}
