package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatsync/internal/errors"
	"chatsync/pkg/backend/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistMessage(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody types.PersistMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(types.MessageRecord{
			ID:            "srv-1",
			CorrelationID: gotBody.CorrelationID,
			ChatRoomID:    gotBody.ChatRoomID,
			SenderID:      "user-1",
			Content:       gotBody.Content,
			MessageType:   gotBody.MessageType,
			CreatedAt:     time.Now(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-123", nil)
	record, err := client.PersistMessage(context.Background(), types.PersistMessageRequest{
		CorrelationID: "corr-1",
		ChatRoomID:    "room-1",
		Content:       "hello",
		MessageType:   "TEXT",
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "/v1/rooms/room-1/messages", gotPath)
	assert.Equal(t, "corr-1", gotBody.CorrelationID)
	assert.Equal(t, "srv-1", record.ID)
	assert.Equal(t, "corr-1", record.CorrelationID)
}

func TestPersistMessageErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      errors.ErrorCode
		retryable bool
	}{
		{"forbidden", http.StatusForbidden, `{"code":"FORBIDDEN","message":"not a participant"}`, errors.ErrCodeForbidden, false},
		{"not found", http.StatusNotFound, `{"code":"NOT_FOUND","message":"no such room"}`, errors.ErrCodeNotFound, false},
		{"validation", http.StatusBadRequest, `{"code":"VALIDATION_FAILED","message":"content required"}`, errors.ErrCodeValidationFailed, false},
		{"server error", http.StatusInternalServerError, `{"code":"INTERNAL","message":"boom"}`, errors.ErrCodeBackendAPI, true},
		{"rate limited", http.StatusTooManyRequests, `{"code":"RATE_LIMITED","message":"slow down"}`, errors.ErrCodeBackendAPI, true},
		{"unparseable body", http.StatusBadGateway, `upstream timeout`, errors.ErrCodeBackendAPI, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "token-123", nil)
			_, err := client.PersistMessage(context.Background(), types.PersistMessageRequest{
				CorrelationID: "corr-1",
				ChatRoomID:    "room-1",
				Content:       "hello",
				MessageType:   "TEXT",
			})

			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestPersistMessageConnectionFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "token-123", &http.Client{Timeout: 200 * time.Millisecond})
	_, err := client.PersistMessage(context.Background(), types.PersistMessageRequest{
		CorrelationID: "corr-1",
		ChatRoomID:    "room-1",
		Content:       "hello",
		MessageType:   "TEXT",
	})

	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err), "transport failures are retryable")
}

func TestListMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rooms/room-1/messages", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(types.ListMessagesResponse{
			Messages: []types.MessageRecord{
				{ID: "srv-1", ChatRoomID: "room-1", SenderID: "user-2", Content: "hey", MessageType: "TEXT"},
				{ID: "srv-2", CorrelationID: "corr-1", ChatRoomID: "room-1", SenderID: "user-1", Content: "hello", MessageType: "TEXT"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-123", nil)
	records, err := client.ListMessages(context.Background(), "room-1", 25)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "srv-1", records[0].ID)
	assert.Equal(t, "corr-1", records[1].CorrelationID)
}

func TestListMessagesNoLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(types.ListMessagesResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	records, err := client.ListMessages(context.Background(), "room-1", 0)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-123", nil)
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-123", nil)
	assert.Error(t, client.HealthCheck(context.Background()))
}
