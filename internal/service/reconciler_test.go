package service

import (
	"testing"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/queue"
	backendtypes "chatsync/pkg/backend/types"
	feedtypes "chatsync/pkg/feed/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingEntry(correlationID, roomID string) *models.PendingMessage {
	return &models.PendingMessage{
		Message: models.Message{
			CorrelationID: correlationID,
			ChatRoomID:    roomID,
			SenderID:      "user-1",
			Content:       "hello",
			Type:          models.MessageTypeText,
			CreatedAt:     time.Now(),
		},
		Status:     models.StatusSending,
		EnqueuedAt: time.Now(),
	}
}

func TestReconcilerMarksEntryStored(t *testing.T) {
	pq := queue.New("user-1", newMemStore(), testLogger())
	require.NoError(t, pq.Append(pendingEntry("corr-1", "room-1")))
	r := NewReconciler(pq, testLogger())

	serverTime := time.Now().Add(-time.Second).Truncate(time.Millisecond)
	r.HandleEvent(feedtypes.MessageEvent{
		ID:            "srv-1",
		CorrelationID: "corr-1",
		ChatRoomID:    "room-1",
		SenderID:      "user-1",
		Content:       "hello",
		MessageType:   "TEXT",
		CreatedAt:     serverTime,
	})

	pending := pq.ListForRoom("room-1")
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusStored, pending[0].Status)
	assert.Equal(t, "srv-1", pending[0].ID)
	assert.True(t, pending[0].CreatedAt.Equal(serverTime), "the server timestamp replaces the provisional one")
	assert.True(t, pending[0].Reconciled())
}

func TestReconcilerIgnoresForeignEvents(t *testing.T) {
	pq := queue.New("user-1", newMemStore(), testLogger())
	require.NoError(t, pq.Append(pendingEntry("corr-1", "room-1")))
	r := NewReconciler(pq, testLogger())

	// Another participant's message carries no correlation id.
	r.HandleEvent(feedtypes.MessageEvent{ID: "srv-2", ChatRoomID: "room-1", SenderID: "user-2", Content: "hey", MessageType: "TEXT", CreatedAt: time.Now()})
	// An id we never issued.
	r.HandleEvent(feedtypes.MessageEvent{ID: "srv-3", CorrelationID: "corr-other", ChatRoomID: "room-1", SenderID: "user-2", MessageType: "TEXT", CreatedAt: time.Now()})

	pending := pq.ListForRoom("room-1")
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusSending, pending[0].Status)
	assert.Empty(t, pending[0].ID)
}

func TestReconcilerIsIdempotent(t *testing.T) {
	pq := queue.New("user-1", newMemStore(), testLogger())
	require.NoError(t, pq.Append(pendingEntry("corr-1", "room-1")))
	r := NewReconciler(pq, testLogger())

	event := feedtypes.MessageEvent{
		ID:            "srv-1",
		CorrelationID: "corr-1",
		ChatRoomID:    "room-1",
		MessageType:   "TEXT",
		CreatedAt:     time.Now(),
	}
	for i := 0; i < 5; i++ {
		r.HandleEvent(event)
	}

	pending := pq.ListForRoom("room-1")
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusStored, pending[0].Status)
	assert.Equal(t, "srv-1", pending[0].ID)
}

func TestMergeMessagesOrdersByServerTime(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	records := []backendtypes.MessageRecord{
		{ID: "srv-2", ChatRoomID: "room-1", SenderID: "user-2", Content: "second", MessageType: "TEXT", CreatedAt: now},
		{ID: "srv-1", ChatRoomID: "room-1", SenderID: "user-2", Content: "first", MessageType: "TEXT", CreatedAt: now.Add(-time.Minute)},
	}
	pending := []*models.PendingMessage{pendingEntry("corr-1", "room-1")}

	merged := MergeMessages(records, pending)
	require.Len(t, merged, 3)
	assert.Equal(t, "srv-1", merged[0].ID)
	assert.Equal(t, "srv-2", merged[1].ID)
	assert.Equal(t, "corr-1", merged[2].CorrelationID)
}

func TestMergeMessagesEmptyInputs(t *testing.T) {
	assert.Empty(t, MergeMessages(nil, nil))

	merged := MergeMessages(nil, []*models.PendingMessage{pendingEntry("corr-1", "room-1")})
	require.Len(t, merged, 1)
	assert.Equal(t, "corr-1", merged[0].CorrelationID)
}
