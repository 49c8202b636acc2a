package models

import (
	"time"
)

// MessageType identifies the payload shape of a chat message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypePost  MessageType = "POST"
	MessageTypeImage MessageType = "IMAGE"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypePost, MessageTypeImage:
		return true
	}
	return false
}

// MessageStatus is the client-side lifecycle of a sent message. It is never
// persisted on the server row; the authoritative row only proves STORED.
type MessageStatus string

const (
	StatusSending   MessageStatus = "SENDING"
	StatusSent      MessageStatus = "SENT"
	StatusStored    MessageStatus = "STORED"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

// rank orders statuses along the forward lifecycle. FAILED sits outside the
// chain; a retry re-enters at SENDING explicitly.
func (s MessageStatus) rank() int {
	switch s {
	case StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusStored:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	case StatusFailed:
		return 1
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a valid forward
// transition. Backward transitions are rejected; FAILED is terminal except
// for an explicit retry back to SENDING.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if s == StatusFailed {
		return next == StatusSending
	}
	if next == StatusFailed {
		return s == StatusSending || s == StatusSent
	}
	return next.rank() > s.rank()
}

// Message is the chat domain entity. ID and the server CreatedAt are absent
// until the backend has persisted the row; CorrelationID is the
// client-generated token the backend echoes back for reconciliation.
type Message struct {
	ID            string      `json:"id,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	ChatRoomID    string      `json:"chatRoomId"`
	SenderID      string      `json:"senderId"`
	Content       string      `json:"content,omitempty"`
	PostID        string      `json:"postId,omitempty"`
	Type          MessageType `json:"messageType"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// SendInput is what the composer hands to the send pipeline.
type SendInput struct {
	ChatRoomID string
	Content    string
	PostID     string
	Type       MessageType
}

// SendResult is returned synchronously from SendMessage. On success the
// message is the local pending entry, not a server-confirmed row.
type SendResult struct {
	Success bool
	Message *PendingMessage
	Err     error
}
