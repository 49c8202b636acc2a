package service

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/metrics"
	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

// pendingLister is the queue surface the background loops consume.
type pendingLister interface {
	ListAll() []*models.PendingMessage
}

// StaleMonitor periodically scans the pending queue for entries stuck at
// SENDING past a threshold. A stuck SENDING entry means the persist call
// neither returned nor failed, which usually points at a hung connection or
// a backend that accepted the write but whose feed echo never arrived.
type StaleMonitor struct {
	logger    *logrus.Logger
	queue     pendingLister
	threshold time.Duration
	interval  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewStaleMonitor(q pendingLister, threshold, interval time.Duration, logger *logrus.Logger) *StaleMonitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &StaleMonitor{
		logger:    logger,
		queue:     q,
		threshold: threshold,
		interval:  interval,
	}
}

func (m *StaleMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx)
}

func (m *StaleMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *StaleMonitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *StaleMonitor) sweep() int {
	now := time.Now()
	stale := 0
	for _, entry := range m.queue.ListAll() {
		if entry.Status != models.StatusSending {
			continue
		}
		age := now.Sub(entry.LastAttempt())
		if age < m.threshold {
			continue
		}
		stale++
		m.logger.WithFields(logrus.Fields{
			"correlation_id": SanitizeID(entry.CorrelationID),
			"chat_room_id":   entry.ChatRoomID,
			"age_seconds":    int(age.Seconds()),
		}).Warn("Pending message stuck at SENDING")
	}

	metrics.SetGauge("pending_stale_sending", float64(stale), nil, "Entries stuck at SENDING past the threshold")
	return stale
}
