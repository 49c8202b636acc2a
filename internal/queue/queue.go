// Package queue implements the durable pending-message queue: the staging
// area for messages this client has attempted to send but not yet
// reconciled against an authoritative server row.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the durable local slot the queue snapshots into. A nil Store is
// valid and keeps the queue memory-only.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// PendingQueue is an ordered, correlation-id-unique list of outbound
// message attempts, scoped to one authenticated user. Every mutation
// synchronously snapshots the full queue to the backing store so a process
// restart does not lose in-flight sends; snapshot failures degrade to
// memory-only operation with a logged warning, never an error to the
// caller.
type PendingQueue struct {
	mu      sync.RWMutex
	entries []*models.PendingMessage
	byCorr  map[string]*models.PendingMessage
	store   Store
	key     string
	logger  *logrus.Logger
}

// storageKey scopes the persisted snapshot to a user.
func storageKey(userID string) string {
	return "pending:" + userID
}

// New creates the queue for userID, restoring any persisted snapshot.
func New(userID string, store Store, logger *logrus.Logger) *PendingQueue {
	if logger == nil {
		logger = logrus.New()
	}

	q := &PendingQueue{
		byCorr: make(map[string]*models.PendingMessage),
		store:  store,
		key:    storageKey(userID),
		logger: logger,
	}
	q.restore()
	return q
}

// Append adds a new entry. No two entries may share a correlation id.
func (q *PendingQueue) Append(entry *models.PendingMessage) error {
	if entry.CorrelationID == "" {
		return fmt.Errorf("pending entry requires a correlation id")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byCorr[entry.CorrelationID]; exists {
		return fmt.Errorf("duplicate correlation id: %s", entry.CorrelationID)
	}

	q.entries = append(q.entries, entry)
	q.byCorr[entry.CorrelationID] = entry
	q.persistLocked()
	return nil
}

// UpdateByCorrelationID applies a partial update to the matching entry and
// reports whether a match was found. An unmatched id is a no-op: the row
// may belong to a foreign-origin message and must not be appended.
// Status changes that would move backwards are dropped while the rest of
// the patch still applies.
func (q *PendingQueue) UpdateByCorrelationID(correlationID string, patch models.PendingPatch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.byCorr[correlationID]
	if !ok {
		return false
	}

	if patch.ServerID != "" {
		entry.ID = patch.ServerID
	}
	if patch.ServerCreatedAt != nil {
		entry.CreatedAt = *patch.ServerCreatedAt
	}
	if patch.LastError != nil {
		entry.LastError = *patch.LastError
	}
	if patch.LastErrorCode != nil {
		entry.LastErrorCode = *patch.LastErrorCode
	}
	if patch.Status != nil {
		if entry.Status.CanTransitionTo(*patch.Status) {
			entry.Status = *patch.Status
		} else if entry.Status != *patch.Status {
			q.logger.WithFields(logrus.Fields{
				"correlation_id": correlationID,
				"from":           entry.Status,
				"to":             *patch.Status,
			}).Debug("Dropping backward status transition")
		}
	}

	q.persistLocked()
	return true
}

// MarkRetry re-enters a FAILED (or stuck SENDING) entry at SENDING with an
// incremented retry counter, keeping its correlation id. Returns the entry
// copy to re-issue, or false when no entry matches. Entries already
// reconciled past SENDING are left alone; a retry must never regress a
// stored message.
func (q *PendingQueue) MarkRetry(correlationID string) (*models.PendingMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.byCorr[correlationID]
	if !ok {
		return nil, false
	}
	if entry.Status != models.StatusFailed && entry.Status != models.StatusSending {
		return nil, false
	}

	entry.Status = models.StatusSending
	entry.RetryCount++
	entry.LastError = ""
	entry.LastErrorCode = ""
	entry.LastAttemptAt = time.Now()
	q.persistLocked()

	copied := *entry
	return &copied, true
}

// RemoveByCorrelationID deletes the matching entry, if any.
func (q *PendingQueue) RemoveByCorrelationID(correlationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byCorr[correlationID]; !ok {
		return false
	}

	delete(q.byCorr, correlationID)
	for i, e := range q.entries {
		if e.CorrelationID == correlationID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	q.persistLocked()
	return true
}

// ListForRoom returns copies of the entries for a room in insertion order.
// Insertion order approximates send order for display; it is not a
// substitute for server-authoritative ordering.
func (q *PendingQueue) ListForRoom(chatRoomID string) []*models.PendingMessage {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []*models.PendingMessage
	for _, e := range q.entries {
		if e.ChatRoomID == chatRoomID {
			copied := *e
			result = append(result, &copied)
		}
	}
	return result
}

// ListAll returns copies of every entry in insertion order.
func (q *PendingQueue) ListAll() []*models.PendingMessage {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*models.PendingMessage, 0, len(q.entries))
	for _, e := range q.entries {
		copied := *e
		result = append(result, &copied)
	}
	return result
}

// ClearRoom drops all entries belonging to one room.
func (q *PendingQueue) ClearRoom(chatRoomID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.ChatRoomID == chatRoomID {
			delete(q.byCorr, e.CorrelationID)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	q.persistLocked()
}

// Clear empties the queue; used on explicit leave or logout.
func (q *PendingQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = nil
	q.byCorr = make(map[string]*models.PendingMessage)
	q.persistLocked()
}

// Len returns the number of entries across all rooms.
func (q *PendingQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// persistLocked snapshots the queue to the backing store. Callers hold the
// write lock. Failures only log; the queue keeps operating in memory.
func (q *PendingQueue) persistLocked() {
	if q.store == nil {
		return
	}

	data, err := json.Marshal(q.entries)
	if err != nil {
		q.logger.WithError(err).Warn("Failed to encode pending queue snapshot")
		return
	}

	if err := q.store.Set(context.Background(), q.key, data); err != nil {
		q.logger.WithError(err).Warn("Failed to persist pending queue, continuing in memory only")
	}
}

// restore loads the persisted snapshot, if any. A corrupt snapshot is
// discarded rather than blocking startup.
func (q *PendingQueue) restore() {
	if q.store == nil {
		return
	}

	data, ok, err := q.store.Get(context.Background(), q.key)
	if err != nil {
		q.logger.WithError(err).Warn("Failed to load pending queue snapshot")
		return
	}
	if !ok {
		return
	}

	var entries []*models.PendingMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		q.logger.WithError(err).Warn("Discarding corrupt pending queue snapshot")
		return
	}

	q.entries = entries
	for _, e := range entries {
		q.byCorr[e.CorrelationID] = e
	}
}
