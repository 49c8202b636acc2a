package types

import (
	"encoding/json"
	"time"
)

// ChannelState is a lifecycle event of a room feed channel.
type ChannelState string

const (
	ChannelSubscribed ChannelState = "SUBSCRIBED"
	ChannelError      ChannelState = "CHANNEL_ERROR"
	ChannelClosed     ChannelState = "CLOSED"
)

// EventTypeMessageInsert is the only event type the feed currently pushes:
// a newly persisted message row.
const EventTypeMessageInsert = "message.insert"

// Frame is the wire envelope of a feed push.
type Frame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

// MessageEvent is a newly persisted message row delivered over the feed.
// CorrelationID is present only for rows originated with one.
type MessageEvent struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId,omitempty"`
	ChatRoomID    string    `json:"chatRoomId"`
	SenderID      string    `json:"senderId"`
	Content       string    `json:"content,omitempty"`
	PostID        string    `json:"postId,omitempty"`
	MessageType   string    `json:"messageType"`
	CreatedAt     time.Time `json:"createdAt"`
}
