package service

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/queue"
	"chatsync/internal/tracing"
	backendtypes "chatsync/pkg/backend/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Backend is the persist-RPC surface the send pipeline consumes.
type Backend interface {
	PersistMessage(ctx context.Context, req backendtypes.PersistMessageRequest) (*backendtypes.MessageRecord, error)
	ListMessages(ctx context.Context, chatRoomID string, limit int) ([]backendtypes.MessageRecord, error)
}

// ChatService is the send pipeline: it turns a compose action into an
// optimistic queue entry plus a background persist call. The optimistic
// append happens synchronously, before any network I/O, so the caller sees
// the message immediately; the authoritative status transition only happens
// later, through feed reconciliation.
type ChatService struct {
	logger  *logrus.Logger
	backend Backend
	queue   *queue.PendingQueue
	userID  string

	// newCorrelationID is injectable for tests.
	newCorrelationID func() string

	wg sync.WaitGroup
}

func NewChatService(userID string, backend Backend, pq *queue.PendingQueue, logger *logrus.Logger) *ChatService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChatService{
		logger:           logger,
		backend:          backend,
		queue:            pq,
		userID:           userID,
		newCorrelationID: uuid.NewString,
	}
}

// SendMessage validates the input, appends a SENDING entry to the pending
// queue and issues the persist call in the background. It returns after the
// optimistic append; the persist call's outcome is reflected on the queue
// entry, never as a late error to the caller.
//
// A successful persist response deliberately does not advance the entry's
// status: "request accepted" and "durably visible to all participants" are
// different facts, and only the room feed proves the latter.
func (s *ChatService) SendMessage(ctx context.Context, input models.SendInput) models.SendResult {
	if s.userID == "" {
		return models.SendResult{Success: false, Err: errors.NewAuthError("no user id")}
	}

	if err := validateSendInput(input); err != nil {
		return models.SendResult{Success: false, Err: err}
	}

	entry := &models.PendingMessage{
		Message: models.Message{
			CorrelationID: s.newCorrelationID(),
			ChatRoomID:    input.ChatRoomID,
			SenderID:      s.userID,
			Content:       input.Content,
			PostID:        input.PostID,
			Type:          input.Type,
			// Provisional; the server timestamp replaces it at reconciliation.
			CreatedAt: time.Now(),
		},
		Status:        models.StatusSending,
		EnqueuedAt:    time.Now(),
		LastAttemptAt: time.Now(),
	}

	if err := s.queue.Append(entry); err != nil {
		return models.SendResult{Success: false, Err: errors.Wrap(err, errors.ErrCodeInternalError, "failed to enqueue message")}
	}

	LogMessageSend(ctx, s.logger, input.ChatRoomID, entry.CorrelationID, input.Content)
	metrics.IncrementCounter("chat_send_total", nil, "Send attempts")
	metrics.SetGauge("pending_queue_depth", float64(s.queue.Len()), nil, "Pending queue entries")

	s.wg.Add(1)
	go s.persist(ctx, entry.CorrelationID, backendtypes.PersistMessageRequest{
		CorrelationID: entry.CorrelationID,
		ChatRoomID:    input.ChatRoomID,
		Content:       input.Content,
		PostID:        input.PostID,
		MessageType:   string(input.Type),
	})

	result := *entry
	return models.SendResult{Success: true, Message: &result}
}

// RetryMessage re-enters the matching entry at SENDING and reissues the
// persist call with the same correlation id, so the backend can deduplicate
// and a later feed event still reconciles to the one local entry.
func (s *ChatService) RetryMessage(ctx context.Context, correlationID string) bool {
	entry, ok := s.queue.MarkRetry(correlationID)
	if !ok {
		return false
	}

	s.logger.WithFields(logrus.Fields{
		"correlation_id": SanitizeID(correlationID),
		"retry_count":    entry.RetryCount,
	}).Info("Retrying message send")
	metrics.IncrementCounter("chat_retry_total", nil, "Manual send retries")

	s.wg.Add(1)
	go s.persist(ctx, correlationID, backendtypes.PersistMessageRequest{
		CorrelationID: entry.CorrelationID,
		ChatRoomID:    entry.ChatRoomID,
		Content:       entry.Content,
		PostID:        entry.PostID,
		MessageType:   string(entry.Type),
	})

	return true
}

// PendingMessages returns the pending entries for a room in send order.
func (s *ChatService) PendingMessages(chatRoomID string) []*models.PendingMessage {
	return s.queue.ListForRoom(chatRoomID)
}

// MergedMessages returns the authoritative history for a room merged with
// the still-pending entries, de-duplicated by correlation id.
func (s *ChatService) MergedMessages(ctx context.Context, chatRoomID string, limit int) ([]models.Message, error) {
	records, err := s.backend.ListMessages(ctx, chatRoomID, limit)
	if err != nil {
		return nil, err
	}
	return MergeMessages(records, s.queue.ListForRoom(chatRoomID)), nil
}

// Wait blocks until in-flight persist calls have completed. Used by tests
// and during session teardown.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

// persist runs in the background. All errors are converted into queue-entry
// state; nothing is thrown back at the composer.
func (s *ChatService) persist(ctx context.Context, correlationID string, req backendtypes.PersistMessageRequest) {
	defer s.wg.Done()

	spanCtx, span := tracing.StartSpan(ctx, "chat.persist",
		attribute.String("chat_room_id", req.ChatRoomID),
		attribute.String("message_type", req.MessageType),
	)
	defer span.End()

	start := time.Now()
	_, err := s.backend.PersistMessage(spanCtx, req)
	metrics.RecordTimer("persist_call", time.Since(start), nil)

	if err != nil {
		tracing.RecordError(spanCtx, err)
		s.markFailed(correlationID, err)
		return
	}

	s.logger.WithField("correlation_id", SanitizeID(correlationID)).
		Debug("Persist accepted, awaiting feed reconciliation")
}

func (s *ChatService) markFailed(correlationID string, cause error) {
	failed := models.StatusFailed
	errMsg := cause.Error()
	errCode := string(errors.GetCode(cause))

	if !s.queue.UpdateByCorrelationID(correlationID, models.PendingPatch{
		Status:        &failed,
		LastError:     &errMsg,
		LastErrorCode: &errCode,
	}) {
		// The entry was removed while the call was in flight (room cleared
		// or logout); nothing to mark.
		s.logger.WithField("correlation_id", SanitizeID(correlationID)).
			Debug("Persist failed for an entry no longer in the queue")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"correlation_id": SanitizeID(correlationID),
		"error":          cause,
		"error_code":     errors.GetCode(cause),
	}).Warn("Message persist failed")
	metrics.IncrementCounter("chat_send_failed_total", nil, "Failed send attempts")
}

// validateSendInput enforces the type/payload pairing before any queue
// mutation or network call: TEXT requires content, POST requires a post
// reference, IMAGE carries the already-uploaded image URL as content.
func validateSendInput(input models.SendInput) error {
	if input.ChatRoomID == "" {
		return errors.NewValidationError("chatRoomId", "chat room id is required")
	}
	if !input.Type.Valid() {
		return errors.NewValidationError("messageType", "unknown message type")
	}

	switch input.Type {
	case models.MessageTypeText:
		if input.Content == "" {
			return errors.NewValidationError("content", "content is required for TEXT messages")
		}
		if input.PostID != "" {
			return errors.NewValidationError("postId", "postId is not allowed for TEXT messages")
		}
	case models.MessageTypePost:
		if input.PostID == "" {
			return errors.NewValidationError("postId", "postId is required for POST messages")
		}
		if input.Content != "" {
			return errors.NewValidationError("content", "content is not allowed for POST messages")
		}
	case models.MessageTypeImage:
		if input.Content == "" {
			return errors.NewValidationError("content", "image URL is required for IMAGE messages")
		}
	}

	return nil
}
