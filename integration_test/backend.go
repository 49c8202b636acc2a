package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	backendtypes "chatsync/pkg/backend/types"
	feedtypes "chatsync/pkg/feed/types"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// FakeBackend is an in-process stand-in for the marketplace chat backend:
// the persist/list HTTP API plus the per-room websocket feed. Persisted
// rows are fanned out to every feed subscriber of the room, echoing the
// correlation id verbatim the way the real backend does.
type FakeBackend struct {
	Server *httptest.Server

	mu    sync.Mutex
	rooms map[string][]backendtypes.MessageRecord
	subs  map[string][]*feedConn

	// failPersists makes that many subsequent persist calls return 500.
	failPersists atomic.Int32
	// feedConnects counts accepted feed connections across all rooms.
	feedConnects atomic.Int32
	// requireToken rejects requests without this bearer token when set.
	requireToken string
}

type feedConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func NewFakeBackend() *FakeBackend {
	fb := &FakeBackend{
		rooms: make(map[string][]backendtypes.MessageRecord),
		subs:  make(map[string][]*feedConn),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	router.HandleFunc("/v1/rooms/{roomID}/messages", fb.handlePersist).Methods(http.MethodPost)
	router.HandleFunc("/v1/rooms/{roomID}/messages", fb.handleList).Methods(http.MethodGet)
	router.HandleFunc("/v1/rooms/{roomID}/feed", fb.handleFeed).Methods(http.MethodGet)

	fb.Server = httptest.NewServer(router)
	return fb
}

func (fb *FakeBackend) Close() {
	fb.mu.Lock()
	for _, conns := range fb.subs {
		for _, fc := range conns {
			fc.cancel()
			fc.conn.Close(websocket.StatusGoingAway, "shutting down")
		}
	}
	fb.subs = make(map[string][]*feedConn)
	fb.mu.Unlock()

	fb.Server.Close()
}

// URL returns the base URL for both the HTTP API and the feed.
func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

// FailNextPersists makes the next n persist calls fail with a 500.
func (fb *FakeBackend) FailNextPersists(n int) {
	fb.failPersists.Store(int32(n))
}

// RequireToken turns on bearer-token checking.
func (fb *FakeBackend) RequireToken(token string) {
	fb.requireToken = token
}

// DropFeeds severs every live feed connection without closing the server,
// simulating a network blip between client and feed.
func (fb *FakeBackend) DropFeeds() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for room, conns := range fb.subs {
		for _, fc := range conns {
			fc.cancel()
			fc.conn.CloseNow()
		}
		fb.subs[room] = nil
	}
}

// FeedConnects returns how many feed connections were accepted in total.
// It keeps counting across DropFeeds, so a growing value proves a client
// actually resubscribed.
func (fb *FakeBackend) FeedConnects() int {
	return int(fb.feedConnects.Load())
}

// MessageCount returns the number of stored rows for a room.
func (fb *FakeBackend) MessageCount(roomID string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.rooms[roomID])
}

func (fb *FakeBackend) authorized(r *http.Request) bool {
	if fb.requireToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+fb.requireToken
}

func (fb *FakeBackend) handlePersist(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "invalid session token")
		return
	}

	if fb.failPersists.Load() > 0 {
		fb.failPersists.Add(-1)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "injected failure")
		return
	}

	roomID := mux.Vars(r)["roomID"]

	var req backendtypes.PersistMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "malformed body")
		return
	}
	if req.MessageType == "TEXT" && strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "content is required")
		return
	}

	record := backendtypes.MessageRecord{
		ID:            uuid.NewString(),
		CorrelationID: req.CorrelationID,
		ChatRoomID:    roomID,
		SenderID:      "user-1",
		Content:       req.Content,
		PostID:        req.PostID,
		MessageType:   req.MessageType,
		CreatedAt:     time.Now().UTC(),
	}

	fb.mu.Lock()
	fb.rooms[roomID] = append(fb.rooms[roomID], record)
	conns := append([]*feedConn(nil), fb.subs[roomID]...)
	fb.mu.Unlock()

	fb.broadcast(conns, record)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

func (fb *FakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "invalid session token")
		return
	}

	roomID := mux.Vars(r)["roomID"]

	fb.mu.Lock()
	records := append([]backendtypes.MessageRecord(nil), fb.rooms[roomID]...)
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(backendtypes.ListMessagesResponse{Messages: records})
}

func (fb *FakeBackend) handleFeed(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	fb.feedConnects.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	fc := &feedConn{conn: conn, ctx: ctx, cancel: cancel}

	fb.mu.Lock()
	fb.subs[roomID] = append(fb.subs[roomID], fc)
	fb.mu.Unlock()

	// Hold the connection open; writes happen from handlePersist.
	<-ctx.Done()
}

func (fb *FakeBackend) broadcast(conns []*feedConn, record backendtypes.MessageRecord) {
	row, err := json.Marshal(record)
	if err != nil {
		return
	}
	frame, err := json.Marshal(feedtypes.Frame{Type: feedtypes.EventTypeMessageInsert, Message: row})
	if err != nil {
		return
	}

	for _, fc := range conns {
		writeCtx, cancel := context.WithTimeout(fc.ctx, 2*time.Second)
		if err := fc.conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
			fc.cancel()
		}
		cancel()
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(backendtypes.ErrorResponse{Code: code, Message: message})
}
