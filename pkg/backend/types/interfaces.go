package types

import (
	"context"
)

type Client interface {
	PersistMessage(ctx context.Context, req PersistMessageRequest) (*MessageRecord, error)
	ListMessages(ctx context.Context, chatRoomID string, limit int) ([]MessageRecord, error)
	HealthCheck(ctx context.Context) error
}
