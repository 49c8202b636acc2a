package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeContent replaces non-empty message content with a placeholder
// for non-verbose log output.
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// SanitizeID shortens identifiers for log output.
func SanitizeID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// LogMessageSend logs a send attempt with privacy controls: content is only
// logged under verbose mode.
func LogMessageSend(ctx context.Context, logger *logrus.Logger, roomID, correlationID, content string) {
	if IsVerboseLogging(ctx) {
		logger.WithFields(logrus.Fields{
			"chat_room_id":   roomID,
			"correlation_id": correlationID,
			"content":        content,
		}).Info("Sending message")
		return
	}
	logger.WithFields(logrus.Fields{
		"chat_room_id":   SanitizeID(roomID),
		"correlation_id": SanitizeID(correlationID),
		"content":        SanitizeContent(content),
	}).Info("Sending message")
}
