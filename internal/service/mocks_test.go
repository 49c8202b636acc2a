package service

import (
	"context"
	"sync"

	backendtypes "chatsync/pkg/backend/types"
	feedtypes "chatsync/pkg/feed/types"
)

// mockBackend implements Backend with injectable behavior and call
// recording.
type mockBackend struct {
	mu           sync.Mutex
	persistFn    func(req backendtypes.PersistMessageRequest) (*backendtypes.MessageRecord, error)
	listFn       func(chatRoomID string, limit int) ([]backendtypes.MessageRecord, error)
	persistCalls []backendtypes.PersistMessageRequest
}

func (m *mockBackend) PersistMessage(_ context.Context, req backendtypes.PersistMessageRequest) (*backendtypes.MessageRecord, error) {
	m.mu.Lock()
	m.persistCalls = append(m.persistCalls, req)
	fn := m.persistFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &backendtypes.MessageRecord{ID: "srv-" + req.CorrelationID, CorrelationID: req.CorrelationID}, nil
}

func (m *mockBackend) ListMessages(_ context.Context, chatRoomID string, limit int) ([]backendtypes.MessageRecord, error) {
	m.mu.Lock()
	fn := m.listFn
	m.mu.Unlock()

	if fn != nil {
		return fn(chatRoomID, limit)
	}
	return nil, nil
}

func (m *mockBackend) calls() []backendtypes.PersistMessageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]backendtypes.PersistMessageRequest, len(m.persistCalls))
	copy(out, m.persistCalls)
	return out
}

// mockFeed implements feedtypes.Client. Each Subscribe hands back a
// controllable subscription the test drives by pushing events and status
// transitions.
type mockFeed struct {
	mu           sync.Mutex
	subscribeErr error
	subs         []*mockSubscription
}

type mockSubscription struct {
	roomID   string
	onEvent  feedtypes.EventFunc
	onStatus feedtypes.StatusFunc

	mu     sync.Mutex
	closed bool
}

func (f *mockFeed) Subscribe(_ context.Context, chatRoomID string, onEvent feedtypes.EventFunc, onStatus feedtypes.StatusFunc) (feedtypes.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &mockSubscription{roomID: chatRoomID, onEvent: onEvent, onStatus: onStatus}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *mockFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *mockFeed) forRoom(roomID string) *mockSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].roomID == roomID {
			return f.subs[i]
		}
	}
	return nil
}

func (f *mockFeed) latest() *mockSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (s *mockSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSubscription) pushEvent(event feedtypes.MessageEvent) {
	s.onEvent(event)
}

func (s *mockSubscription) pushStatus(state feedtypes.ChannelState, err error) {
	s.onStatus(state, err)
}

// memStore implements queue.Store in memory.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}
