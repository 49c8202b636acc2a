package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/metrics"
	"chatsync/internal/retry"
	feedtypes "chatsync/pkg/feed/types"

	"github.com/sirupsen/logrus"
)

// ChannelLifecycle is the observable state of a room subscription.
type ChannelLifecycle string

const (
	LifecycleIdle       ChannelLifecycle = "idle"
	LifecycleConnecting ChannelLifecycle = "connecting"
	LifecycleSubscribed ChannelLifecycle = "subscribed"
	LifecycleReceiving  ChannelLifecycle = "receiving"
	LifecycleErrored    ChannelLifecycle = "errored"
	LifecycleClosed     ChannelLifecycle = "closed"
)

type statusSignal struct {
	state feedtypes.ChannelState
	err   error
}

// SubscriptionManager owns one room's feed subscription for its whole
// lifetime: subscribe, receive, and reconnect with exponential backoff when
// the channel drops. Events are handed to the reconciler; channel state is
// mirrored into the connection tracker.
type SubscriptionManager struct {
	feed    feedtypes.Client
	roomID  string
	handler func(feedtypes.MessageEvent)
	tracker *ConnectionTracker
	backoff retry.BackoffConfig
	logger  *logrus.Logger

	mu      sync.RWMutex
	state   ChannelLifecycle
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	nudge   chan struct{}
}

func NewSubscriptionManager(feed feedtypes.Client, roomID string, handler func(feedtypes.MessageEvent), tracker *ConnectionTracker, backoff retry.BackoffConfig, logger *logrus.Logger) *SubscriptionManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &SubscriptionManager{
		feed:    feed,
		roomID:  roomID,
		handler: handler,
		tracker: tracker,
		backoff: backoff,
		logger:  logger,
		state:   LifecycleIdle,
		nudge:   make(chan struct{}, 1),
	}
}

func (sm *SubscriptionManager) State() ChannelLifecycle {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Start launches the subscribe loop. It returns an error only if the
// manager is already running; subscribe failures are retried internally.
func (sm *SubscriptionManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.running {
		return fmt.Errorf("subscription for room %s already started", sm.roomID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sm.running = true
	sm.cancel = cancel
	sm.done = make(chan struct{})
	sm.state = LifecycleConnecting

	go sm.run(runCtx)

	sm.logger.WithField("chat_room_id", sm.roomID).Info("Feed subscription started")
	return nil
}

// Stop tears the subscription down and waits for the loop to exit.
func (sm *SubscriptionManager) Stop() {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return
	}
	sm.running = false
	cancel := sm.cancel
	done := sm.done
	sm.mu.Unlock()

	cancel()
	<-done

	sm.logger.WithField("chat_room_id", sm.roomID).Info("Feed subscription stopped")
}

// Nudge asks the loop to skip any backoff wait and retry immediately. Used
// when the host signals that the network came back.
func (sm *SubscriptionManager) Nudge() {
	select {
	case sm.nudge <- struct{}{}:
	default:
	}
}

func (sm *SubscriptionManager) run(ctx context.Context) {
	sm.tracker.Attach()
	defer close(sm.done)
	defer sm.setState(LifecycleClosed)
	defer sm.tracker.Detach()

	delay := sm.backoff.InitialDelay

	for {
		if ctx.Err() != nil {
			return
		}

		sm.setState(LifecycleConnecting)

		status := make(chan statusSignal, 4)
		sub, err := sm.feed.Subscribe(ctx, sm.roomID, sm.handleEvent, func(state feedtypes.ChannelState, err error) {
			select {
			case status <- statusSignal{state: state, err: err}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			sm.setState(LifecycleErrored)
			sm.tracker.MarkError(err)
			if !sm.wait(ctx, delay) {
				return
			}
			delay = sm.nextDelay(delay)
			continue
		}

		delay = sm.observe(ctx, status)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		if !sm.wait(ctx, delay) {
			return
		}
		delay = sm.nextDelay(delay)
	}
}

// observe consumes status signals until the channel fails or closes, then
// returns the backoff delay the reconnect should start from.
func (sm *SubscriptionManager) observe(ctx context.Context, status <-chan statusSignal) time.Duration {
	for {
		select {
		case <-ctx.Done():
			return sm.backoff.InitialDelay
		case sig := <-status:
			switch sig.state {
			case feedtypes.ChannelSubscribed:
				sm.setState(LifecycleSubscribed)
				sm.tracker.MarkSubscribed()
			case feedtypes.ChannelError:
				sm.setState(LifecycleErrored)
				sm.tracker.MarkError(sig.err)
				metrics.IncrementCounter("feed_reconnects_total", nil, "Feed channel reconnect attempts")
				return sm.backoff.InitialDelay
			case feedtypes.ChannelClosed:
				// A server-side close during normal operation is treated
				// like an error and reconnected; an orderly Stop is
				// distinguished by the context being done.
				if ctx.Err() != nil {
					return sm.backoff.InitialDelay
				}
				sm.setState(LifecycleErrored)
				sm.tracker.MarkOffline()
				metrics.IncrementCounter("feed_reconnects_total", nil, "Feed channel reconnect attempts")
				return sm.backoff.InitialDelay
			}
		}
	}
}

// wait sleeps for the backoff delay, returning early on a nudge. It reports
// false when the context ended.
func (sm *SubscriptionManager) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-sm.nudge:
		return true
	case <-timer.C:
		return true
	}
}

func (sm *SubscriptionManager) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * sm.backoff.Multiplier)
	if next > sm.backoff.MaxDelay {
		next = sm.backoff.MaxDelay
	}
	return next
}

// handleEvent runs on the feed's read goroutine, so event processing is
// serialized per room. The receiving state is visible only for the handler's
// duration.
func (sm *SubscriptionManager) handleEvent(event feedtypes.MessageEvent) {
	if event.ChatRoomID != "" && event.ChatRoomID != sm.roomID {
		sm.logger.WithFields(logrus.Fields{
			"chat_room_id": event.ChatRoomID,
			"subscribed":   sm.roomID,
		}).Warn("Dropping feed event for a different room")
		return
	}

	sm.setState(LifecycleReceiving)
	sm.handler(event)
	sm.setState(LifecycleSubscribed)
}

func (sm *SubscriptionManager) setState(state ChannelLifecycle) {
	sm.mu.Lock()
	sm.state = state
	sm.mu.Unlock()
}
