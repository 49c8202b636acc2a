// Package feed implements the websocket client for the per-room event feed.
// The feed delivers rows inserted after subscription establishment only;
// earlier history comes from the backend list query.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatsync/pkg/feed/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

type FeedClient struct {
	baseURL          string
	sessionToken     string
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	logger           *logrus.Logger
}

type Options struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	Logger           *logrus.Logger
}

func NewClient(baseURL, sessionToken string, opts Options) types.Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}

	return &FeedClient{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		sessionToken:     sessionToken,
		handshakeTimeout: opts.HandshakeTimeout,
		pingInterval:     opts.PingInterval,
		logger:           opts.Logger,
	}
}

// Subscribe dials the room feed and starts a read loop. onStatus receives
// ChannelSubscribed once the connection is established, ChannelError if the
// read loop breaks, and ChannelClosed on teardown. Events and statuses are
// delivered from a single goroutine, so handlers are serialized.
func (c *FeedClient) Subscribe(ctx context.Context, chatRoomID string, onEvent types.EventFunc, onStatus types.StatusFunc) (types.Subscription, error) {
	endpoint := fmt.Sprintf("%s/v1/rooms/%s/feed", c.baseURL, url.PathEscape(chatRoomID))

	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	header := http.Header{}
	if c.sessionToken != "" {
		header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial room feed: %w", err)
	}

	subCtx, stop := context.WithCancel(ctx)
	sub := &subscription{
		conn:   conn,
		stop:   stop,
		done:   make(chan struct{}),
		logger: c.logger.WithField("chat_room_id", chatRoomID),
	}

	go sub.readLoop(subCtx, onEvent, onStatus)
	go sub.pingLoop(subCtx, c.pingInterval)

	return sub, nil
}

type subscription struct {
	conn   *websocket.Conn
	stop   context.CancelFunc
	done   chan struct{}
	logger *logrus.Entry
}

func (s *subscription) Close() error {
	s.stop()
	err := s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	<-s.done
	return err
}

func (s *subscription) readLoop(ctx context.Context, onEvent types.EventFunc, onStatus types.StatusFunc) {
	defer close(s.done)

	onStatus(types.ChannelSubscribed, nil)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				onStatus(types.ChannelClosed, nil)
				return
			}
			s.logger.WithError(err).Warn("Room feed read failed")
			onStatus(types.ChannelError, err)
			return
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.WithError(err).Warn("Dropping malformed feed frame")
			continue
		}

		if frame.Type != types.EventTypeMessageInsert {
			s.logger.WithField("type", frame.Type).Debug("Ignoring unknown feed event type")
			continue
		}

		var event types.MessageEvent
		if err := json.Unmarshal(frame.Message, &event); err != nil {
			s.logger.WithError(err).Warn("Dropping feed frame with malformed message row")
			continue
		}

		onEvent(event)
	}
}

func (s *subscription) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.conn.Ping(pingCtx); err != nil {
				cancel()
				// Read loop observes the broken connection and reports it.
				return
			}
			cancel()
		}
	}
}
