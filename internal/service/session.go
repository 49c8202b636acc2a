package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/queue"
	"chatsync/internal/retry"
	feedtypes "chatsync/pkg/feed/types"

	"github.com/sirupsen/logrus"
)

// ChatSession is the top-level surface a client embeds: one authenticated
// user, one pending queue, one feed connection per joined room. All the
// moving parts behind it share the one queue, so a send made in one place
// and a feed echo received in another still meet on the same entry.
type ChatSession struct {
	logger  *logrus.Logger
	userID  string
	queue   *queue.PendingQueue
	service *ChatService
	feed    feedtypes.Client
	tracker *ConnectionTracker
	config  models.QueueConfig
	backoff retry.BackoffConfig

	monitor *StaleMonitor
	janitor *Janitor

	mu    sync.Mutex
	ctx   context.Context
	rooms map[string]*SubscriptionManager
}

func NewChatSession(ctx context.Context, userID string, backend Backend, feed feedtypes.Client, pq *queue.PendingQueue, cfg models.Config, logger *logrus.Logger) *ChatSession {
	if logger == nil {
		logger = logrus.New()
	}

	backoff := retry.DefaultBackoffConfig()
	if cfg.Retry.InitialBackoffMs > 0 {
		backoff.InitialDelay = time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond
	}
	if cfg.Retry.MaxBackoffMs > 0 {
		backoff.MaxDelay = time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond
	}

	session := &ChatSession{
		logger:  logger,
		userID:  userID,
		queue:   pq,
		service: NewChatService(userID, backend, pq, logger),
		feed:    feed,
		tracker: NewConnectionTracker(logger),
		config:  cfg.Queue,
		backoff: backoff,
		ctx:     ctx,
		rooms:   make(map[string]*SubscriptionManager),
	}

	session.monitor = NewStaleMonitor(pq,
		time.Duration(cfg.Queue.StaleThresholdSec)*time.Second,
		time.Duration(cfg.Queue.StaleCheckSec)*time.Second,
		logger)
	session.janitor = NewJanitor(pq,
		time.Duration(cfg.Queue.RetentionMinutes)*time.Minute,
		time.Duration(cfg.Queue.JanitorIntervalSec)*time.Second,
		logger)

	if cfg.Queue.ResendOnReconnect {
		session.tracker.OnReconnect(session.resendFailed)
	}

	session.monitor.Start(ctx)
	session.janitor.Start(ctx)

	return session
}

// JoinRoom subscribes to a room's feed. Joining an already-joined room is
// an error; the caller owns the join/leave pairing.
func (s *ChatSession) JoinRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; ok {
		return fmt.Errorf("already joined room %s", roomID)
	}

	reconciler := NewReconciler(s.queue, s.logger)
	manager := NewSubscriptionManager(s.feed, roomID, reconciler.HandleEvent, s.tracker, s.backoff, s.logger)
	if err := manager.Start(s.ctx); err != nil {
		return err
	}
	s.rooms[roomID] = manager
	return nil
}

// LeaveRoom tears the room's subscription down. The pending entries for the
// room survive by default; dropping them on leave is a configured policy.
func (s *ChatSession) LeaveRoom(roomID string) {
	s.mu.Lock()
	manager, ok := s.rooms[roomID]
	if ok {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	manager.Stop()

	if s.config.DropRoomOnLeave {
		s.queue.ClearRoom(roomID)
	}
}

func (s *ChatSession) SendMessage(ctx context.Context, input models.SendInput) models.SendResult {
	return s.service.SendMessage(ctx, input)
}

func (s *ChatSession) RetryMessage(ctx context.Context, correlationID string) bool {
	return s.service.RetryMessage(ctx, correlationID)
}

func (s *ChatSession) PendingMessages(roomID string) []*models.PendingMessage {
	return s.service.PendingMessages(roomID)
}

func (s *ChatSession) MergedMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	return s.service.MergedMessages(ctx, roomID, limit)
}

func (s *ChatSession) IsConnected() bool    { return s.tracker.IsConnected() }
func (s *ChatSession) IsReconnecting() bool { return s.tracker.IsReconnecting() }
func (s *ChatSession) ConnectionErr() error { return s.tracker.Err() }

// NotifyOffline forwards a host network-loss signal.
func (s *ChatSession) NotifyOffline() {
	s.tracker.MarkOffline()
}

// NotifyOnline forwards a host network-recovery signal and nudges every
// room loop to skip its backoff wait.
func (s *ChatSession) NotifyOnline() {
	s.tracker.MarkOnline()

	s.mu.Lock()
	managers := make([]*SubscriptionManager, 0, len(s.rooms))
	for _, m := range s.rooms {
		managers = append(managers, m)
	}
	s.mu.Unlock()

	for _, m := range managers {
		m.Nudge()
	}
}

// Close leaves every room, stops the background loops and waits for
// in-flight persist calls. The queue snapshot stays on disk for the next
// session of the same user.
func (s *ChatSession) Close() {
	s.mu.Lock()
	managers := make([]*SubscriptionManager, 0, len(s.rooms))
	for id, m := range s.rooms {
		managers = append(managers, m)
		delete(s.rooms, id)
	}
	s.mu.Unlock()

	for _, m := range managers {
		m.Stop()
	}

	s.monitor.Stop()
	s.janitor.Stop()
	s.service.Wait()
}

// resendFailed reissues FAILED entries after a reconnect, plus SENDING
// entries old enough that their original persist call is clearly lost.
// Reusing the correlation id keeps a double delivery reconcilable to the
// one local entry.
func (s *ChatSession) resendFailed() {
	staleCutoff := time.Now().Add(-time.Duration(s.config.StaleThresholdSec) * time.Second)
	resent := 0
	for _, entry := range s.queue.ListAll() {
		eligible := (entry.Status == models.StatusFailed && !permanentFailure(entry.LastErrorCode)) ||
			(entry.Status == models.StatusSending && entry.LastAttempt().Before(staleCutoff))
		if !eligible {
			continue
		}
		if s.service.RetryMessage(s.ctx, entry.CorrelationID) {
			resent++
		}
	}
	if resent > 0 {
		s.logger.WithField("count", resent).Info("Resent failed messages after reconnect")
	}
}

// permanentFailure reports whether an entry failed for a reason a retry
// cannot fix. Authorization and validation rejections stay failed until the
// user acts; only transient backend and transport failures auto-resend.
func permanentFailure(code string) bool {
	switch errors.ErrorCode(code) {
	case errors.ErrCodeForbidden, errors.ErrCodeNotFound,
		errors.ErrCodeValidationFailed, errors.ErrCodeAuthentication:
		return true
	}
	return false
}
