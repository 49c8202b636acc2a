package service

import (
	"testing"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorPrunesOldReconciledEntries(t *testing.T) {
	pq := queue.New("user-1", newMemStore(), testLogger())

	oldStored := pendingEntry("corr-old", "room-1")
	oldStored.ID = "srv-1"
	oldStored.Status = models.StatusStored
	oldStored.EnqueuedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, pq.Append(oldStored))

	recentStored := pendingEntry("corr-recent", "room-1")
	recentStored.ID = "srv-2"
	recentStored.Status = models.StatusStored
	require.NoError(t, pq.Append(recentStored))

	oldFailed := pendingEntry("corr-failed", "room-1")
	oldFailed.Status = models.StatusFailed
	oldFailed.EnqueuedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, pq.Append(oldFailed))

	oldSending := pendingEntry("corr-sending", "room-1")
	oldSending.EnqueuedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, pq.Append(oldSending))

	janitor := NewJanitor(pq, time.Hour, time.Minute, testLogger())
	assert.Equal(t, 1, janitor.Prune())

	remaining := pq.ListForRoom("room-1")
	require.Len(t, remaining, 3)
	ids := make(map[string]bool)
	for _, entry := range remaining {
		ids[entry.CorrelationID] = true
	}
	assert.False(t, ids["corr-old"], "old reconciled entry is pruned")
	assert.True(t, ids["corr-recent"], "reconciled entry inside retention survives")
	assert.True(t, ids["corr-failed"], "failed entries are never pruned")
	assert.True(t, ids["corr-sending"], "unreconciled entries are never pruned")
}

func TestJanitorPruneEmptyQueue(t *testing.T) {
	pq := queue.New("user-1", newMemStore(), testLogger())
	janitor := NewJanitor(pq, time.Hour, time.Minute, testLogger())
	assert.Equal(t, 0, janitor.Prune())
}
