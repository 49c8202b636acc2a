package service

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ConnectionTracker holds the coarse connection state the UI reads:
// connected, reconnecting, and the last channel error. Channel errors stick
// until the next successful subscribe rather than being cleared on a timer,
// so the banner reflects what actually happened.
type ConnectionTracker struct {
	mu     sync.RWMutex
	logger *logrus.Logger

	connected    bool
	reconnecting bool
	lastErr      error
	active       int

	onReconnect []func()
}

func NewConnectionTracker(logger *logrus.Logger) *ConnectionTracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConnectionTracker{logger: logger}
}

// OnReconnect registers a hook invoked whenever the tracker transitions
// from disconnected to connected. Hooks run on the caller of MarkSubscribed.
func (t *ConnectionTracker) OnReconnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnect = append(t.onReconnect, fn)
}

func (t *ConnectionTracker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *ConnectionTracker) IsReconnecting() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reconnecting
}

func (t *ConnectionTracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// MarkSubscribed records a successful subscribe: connected, not
// reconnecting, error cleared. Reconnect hooks fire only on an actual
// disconnected-to-connected transition, not on redundant subscribe echoes.
func (t *ConnectionTracker) MarkSubscribed() {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = true
	t.reconnecting = false
	t.lastErr = nil
	hooks := t.onReconnect
	t.mu.Unlock()

	if !wasConnected {
		t.logger.Debug("Feed channel subscribed")
		for _, fn := range hooks {
			fn()
		}
	}
}

// MarkError records a channel failure. The error stays visible while
// reconnect attempts run in the background.
func (t *ConnectionTracker) MarkError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.reconnecting = true
	t.lastErr = err
	t.logger.WithError(err).Warn("Feed channel error")
}

// MarkOffline records a network loss signal from the host environment.
func (t *ConnectionTracker) MarkOffline() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.reconnecting = false
	t.logger.Info("Network offline")
}

// MarkOnline records a network recovery signal; the state is reconnecting
// until a subscribe actually succeeds.
func (t *ConnectionTracker) MarkOnline() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return
	}
	t.reconnecting = true
	t.logger.Info("Network online, reconnecting")
}

// Attach registers a subscription loop feeding this tracker. The tracker
// is shared by every joined room, so orderly teardown of one room must not
// flip the whole session to disconnected while another room's feed is
// still up.
func (t *ConnectionTracker) Attach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
}

// Detach unregisters a subscription loop. Only the last detach records the
// closed state; it is an orderly shutdown, not an error.
func (t *ConnectionTracker) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}
	if t.active == 0 {
		t.connected = false
		t.reconnecting = false
	}
}
