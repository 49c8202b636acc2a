package integration_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/queue"
	"chatsync/internal/service"
	"chatsync/internal/storage"
	"chatsync/pkg/backend"
	"chatsync/pkg/feed"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment wires a real client stack (sqlite-backed queue, HTTP
// backend client, websocket feed client, session) against a FakeBackend.
type TestEnvironment struct {
	Backend *FakeBackend
	Store   *storage.Store
	Queue   *queue.PendingQueue
	Session *service.ChatSession

	userID  string
	dbPath  string
	logger  *logrus.Logger
	config  models.Config
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup []func()
}

func testConfig() models.Config {
	return models.Config{
		Backend: models.BackendConfig{HistoryLimit: 50},
		Queue: models.QueueConfig{
			StaleThresholdSec:  120,
			StaleCheckSec:      60,
			RetentionMinutes:   60,
			JanitorIntervalSec: 300,
		},
		Retry: models.RetryConfig{InitialBackoffMs: 5, MaxBackoffMs: 50},
	}
}

func NewTestEnvironment(t *testing.T, userID string, cfg models.Config) *TestEnvironment {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	env := &TestEnvironment{
		Backend: NewFakeBackend(),
		userID:  userID,
		dbPath:  filepath.Join(t.TempDir(), "chatsync.db"),
		logger:  logger,
		config:  cfg,
	}
	env.cleanup = append(env.cleanup, env.Backend.Close)

	env.startSession(t)
	t.Cleanup(env.Close)
	return env
}

// startSession builds the client stack. Called again by RestartSession to
// simulate a process restart over the same database file.
func (env *TestEnvironment) startSession(t *testing.T) {
	t.Helper()

	store, err := storage.New(env.dbPath)
	require.NoError(t, err)
	env.Store = store

	env.Queue = queue.New(env.userID, store, env.logger)

	backendClient := backend.NewClientWithLogger(env.Backend.URL(), "", &http.Client{Timeout: 5 * time.Second}, env.logger)
	feedClient := feed.NewClient(env.Backend.URL(), "", feed.Options{
		HandshakeTimeout: 2 * time.Second,
		PingInterval:     time.Minute,
		Logger:           env.logger,
	})

	env.ctx, env.cancel = context.WithCancel(context.Background())
	env.Session = service.NewChatSession(env.ctx, env.userID, backendClient, feedClient, env.Queue, env.config, env.logger)
}

// RestartSession tears the session and store down and rebuilds them on the
// same database file, as a process restart would.
func (env *TestEnvironment) RestartSession(t *testing.T) {
	t.Helper()
	env.Session.Close()
	env.cancel()
	require.NoError(t, env.Store.Close())
	env.startSession(t)
}

func (env *TestEnvironment) Close() {
	if env.Session != nil {
		env.Session.Close()
		env.Session = nil
	}
	if env.cancel != nil {
		env.cancel()
	}
	if env.Store != nil {
		env.Store.Close()
		env.Store = nil
	}
	for i := len(env.cleanup) - 1; i >= 0; i-- {
		env.cleanup[i]()
	}
	env.cleanup = nil
}

// NewPeerSession builds a second, memory-only client stack for another
// user against the same fake backend, so tests can exercise two
// participants of one room.
func (env *TestEnvironment) NewPeerSession(t *testing.T, userID string) (*service.ChatSession, *queue.PendingQueue) {
	t.Helper()

	pq := queue.New(userID, nil, env.logger)
	backendClient := backend.NewClientWithLogger(env.Backend.URL(), "", &http.Client{Timeout: 5 * time.Second}, env.logger)
	feedClient := feed.NewClient(env.Backend.URL(), "", feed.Options{
		HandshakeTimeout: 2 * time.Second,
		PingInterval:     time.Minute,
		Logger:           env.logger,
	})

	session := service.NewChatSession(context.Background(), userID, backendClient, feedClient, pq, env.config, env.logger)
	t.Cleanup(session.Close)
	return session, pq
}

// awaitConnected waits until the session's feed channel reports subscribed.
func (env *TestEnvironment) awaitConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, env.Session.IsConnected, 5*time.Second, 10*time.Millisecond,
		"feed channel never reached subscribed")
}
