package types

import "time"

// PersistMessageRequest is the body of the persist-message RPC. Exactly one
// of Content/PostID is set depending on MessageType; the backend echoes
// CorrelationID onto the stored row.
type PersistMessageRequest struct {
	CorrelationID string `json:"correlationId,omitempty"`
	ChatRoomID    string `json:"chatRoomId"`
	Content       string `json:"content,omitempty"`
	PostID        string `json:"postId,omitempty"`
	MessageType   string `json:"messageType"`
}

// MessageRecord is an authoritative, server-persisted message row.
type MessageRecord struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId,omitempty"`
	ChatRoomID    string    `json:"chatRoomId"`
	SenderID      string    `json:"senderId"`
	Content       string    `json:"content,omitempty"`
	PostID        string    `json:"postId,omitempty"`
	MessageType   string    `json:"messageType"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ErrorResponse is the backend's structured failure body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListMessagesResponse wraps a room history page.
type ListMessagesResponse struct {
	Messages []MessageRecord `json:"messages"`
}
