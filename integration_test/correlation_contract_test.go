package integration_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"chatsync/pkg/backend"
	backendtypes "chatsync/pkg/backend/types"
	"chatsync/pkg/feed"
	feedtypes "chatsync/pkg/feed/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The whole reconciliation scheme rests on one backend contract: the
// correlation id sent with a persist call comes back verbatim, both in the
// RPC response and on the feed row. These tests pin that contract against
// the fake so a drift in either place fails loudly.

func TestPersistEchoesCorrelationID(t *testing.T) {
	fb := NewFakeBackend()
	t.Cleanup(fb.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	client := backend.NewClientWithLogger(fb.URL(), "", &http.Client{Timeout: 5 * time.Second}, logger)

	record, err := client.PersistMessage(context.Background(), backendtypes.PersistMessageRequest{
		CorrelationID: "corr-contract-1",
		ChatRoomID:    "room-1",
		Content:       "hello",
		MessageType:   "TEXT",
	})

	require.NoError(t, err)
	assert.Equal(t, "corr-contract-1", record.CorrelationID)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestFeedRowCarriesCorrelationID(t *testing.T) {
	fb := NewFakeBackend()
	t.Cleanup(fb.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	events := make(chan feedtypes.MessageEvent, 1)
	statuses := make(chan feedtypes.ChannelState, 4)

	feedClient := feed.NewClient(fb.URL(), "", feed.Options{
		HandshakeTimeout: 2 * time.Second,
		PingInterval:     time.Minute,
		Logger:           logger,
	})
	sub, err := feedClient.Subscribe(context.Background(), "room-1",
		func(e feedtypes.MessageEvent) { events <- e },
		func(s feedtypes.ChannelState, _ error) { statuses <- s },
	)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	select {
	case state := <-statuses:
		require.Equal(t, feedtypes.ChannelSubscribed, state)
	case <-time.After(2 * time.Second):
		t.Fatal("feed never subscribed")
	}

	client := backend.NewClientWithLogger(fb.URL(), "", &http.Client{Timeout: 5 * time.Second}, logger)
	record, err := client.PersistMessage(context.Background(), backendtypes.PersistMessageRequest{
		CorrelationID: "corr-contract-2",
		ChatRoomID:    "room-1",
		Content:       "hello",
		MessageType:   "TEXT",
	})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, "corr-contract-2", event.CorrelationID)
		assert.Equal(t, record.ID, event.ID)
		assert.Equal(t, "room-1", event.ChatRoomID)
	case <-time.After(2 * time.Second):
		t.Fatal("feed never delivered the inserted row")
	}
}

func TestPersistRejectsUnauthorized(t *testing.T) {
	fb := NewFakeBackend()
	fb.RequireToken("secret-token")
	t.Cleanup(fb.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	client := backend.NewClientWithLogger(fb.URL(), "wrong-token", &http.Client{Timeout: 5 * time.Second}, logger)
	_, err := client.PersistMessage(context.Background(), backendtypes.PersistMessageRequest{
		CorrelationID: "corr-contract-3",
		ChatRoomID:    "room-1",
		Content:       "hello",
		MessageType:   "TEXT",
	})
	require.Error(t, err)

	authorized := backend.NewClientWithLogger(fb.URL(), "secret-token", &http.Client{Timeout: 5 * time.Second}, logger)
	_, err = authorized.PersistMessage(context.Background(), backendtypes.PersistMessageRequest{
		CorrelationID: "corr-contract-3",
		ChatRoomID:    "room-1",
		Content:       "hello",
		MessageType:   "TEXT",
	})
	assert.NoError(t, err)
}
