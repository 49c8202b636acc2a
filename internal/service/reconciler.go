package service

import (
	"sort"

	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/queue"
	backendtypes "chatsync/pkg/backend/types"
	feedtypes "chatsync/pkg/feed/types"

	"github.com/sirupsen/logrus"
)

// Reconciler matches inbound feed inserts against the pending queue. A feed
// event that echoes the correlation id of one of our in-flight sends is the
// proof that the send is durably stored; everything else is a message from
// another participant and leaves the queue untouched.
type Reconciler struct {
	logger *logrus.Logger
	queue  *queue.PendingQueue
}

func NewReconciler(pq *queue.PendingQueue, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{logger: logger, queue: pq}
}

// HandleEvent applies a feed insert to the queue. Safe to call any number of
// times with the same event; the queue update is idempotent and will not
// move a reconciled entry backwards.
func (r *Reconciler) HandleEvent(event feedtypes.MessageEvent) {
	if event.CorrelationID == "" {
		// A message from another participant, or a server without the
		// correlation echo. Either way it is not ours to reconcile.
		return
	}

	stored := models.StatusStored
	patch := models.PendingPatch{
		ServerID: event.ID,
		Status:   &stored,
	}
	if !event.CreatedAt.IsZero() {
		createdAt := event.CreatedAt
		patch.ServerCreatedAt = &createdAt
	}

	if !r.queue.UpdateByCorrelationID(event.CorrelationID, patch) {
		// An id we never issued, or an entry already pruned. Both are
		// normal; count them so a systematic mismatch is visible.
		r.logger.WithFields(logrus.Fields{
			"correlation_id": SanitizeID(event.CorrelationID),
			"chat_room_id":   event.ChatRoomID,
		}).Debug("Feed insert did not match a pending entry")
		metrics.IncrementCounter("chat_reconcile_unmatched_total", nil, "Feed inserts without a matching pending entry")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"correlation_id": SanitizeID(event.CorrelationID),
		"server_id":      event.ID,
	}).Debug("Pending message reconciled")
	metrics.IncrementCounter("chat_reconcile_total", nil, "Pending entries confirmed via the feed")
	metrics.SetGauge("pending_queue_depth", float64(r.queue.Len()), nil, "Pending queue entries")
}

// MergeMessages combines the authoritative history with the pending queue
// for display. Authoritative rows always win: a pending entry whose
// correlation id already appears in the history is dropped from the overlay,
// so a message never shows twice. The remaining pending entries are appended
// after the history in send order.
func MergeMessages(records []backendtypes.MessageRecord, pending []*models.PendingMessage) []models.Message {
	confirmed := make(map[string]struct{}, len(records))
	merged := make([]models.Message, 0, len(records)+len(pending))

	for _, rec := range records {
		if rec.CorrelationID != "" {
			confirmed[rec.CorrelationID] = struct{}{}
		}
		merged = append(merged, models.Message{
			ID:            rec.ID,
			CorrelationID: rec.CorrelationID,
			ChatRoomID:    rec.ChatRoomID,
			SenderID:      rec.SenderID,
			Content:       rec.Content,
			PostID:        rec.PostID,
			Type:          models.MessageType(rec.MessageType),
			CreatedAt:     rec.CreatedAt,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	for _, p := range pending {
		if _, ok := confirmed[p.CorrelationID]; ok {
			continue
		}
		merged = append(merged, p.Message)
	}

	return merged
}
