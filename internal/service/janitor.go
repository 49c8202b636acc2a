package service

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/metrics"
	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

// prunableQueue is the queue surface the janitor consumes.
type prunableQueue interface {
	ListAll() []*models.PendingMessage
	RemoveByCorrelationID(correlationID string) bool
	Len() int
}

// Janitor prunes reconciled entries from the pending queue once they are
// older than the retention window. Reconciled entries are kept around for a
// while rather than removed on the spot so that a crash between the feed
// event and the snapshot write cannot resurrect an already-stored message
// as unsent. FAILED entries are never pruned; they carry the retry
// affordance and only leave the queue through retry or an explicit clear.
type Janitor struct {
	logger    *logrus.Logger
	queue     prunableQueue
	retention time.Duration
	interval  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewJanitor(q prunableQueue, retention, interval time.Duration, logger *logrus.Logger) *Janitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Janitor{
		logger:    logger,
		queue:     q,
		retention: retention,
		interval:  interval,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	j.running = true
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.run(runCtx)
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	cancel := j.cancel
	done := j.done
	j.mu.Unlock()

	cancel()
	<-done
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Prune()
		}
	}
}

// Prune removes reconciled entries past retention. Exposed for tests and
// for an explicit shutdown sweep.
func (j *Janitor) Prune() int {
	cutoff := time.Now().Add(-j.retention)
	removed := 0

	for _, entry := range j.queue.ListAll() {
		if !entry.Reconciled() {
			continue
		}
		if entry.EnqueuedAt.After(cutoff) {
			continue
		}
		if j.queue.RemoveByCorrelationID(entry.CorrelationID) {
			removed++
		}
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Debug("Pruned reconciled entries from the pending queue")
		metrics.AddToCounter("pending_pruned_total", float64(removed), nil, "Reconciled entries pruned after retention")
	}
	metrics.SetGauge("pending_queue_depth", float64(j.queue.Len()), nil, "Pending queue entries")

	return removed
}
