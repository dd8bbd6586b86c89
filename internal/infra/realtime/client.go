package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"freightdesk/internal/domain/chat"
)

// Header names of the trusted principal; shared with the HTTP API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

var ErrNotJoined = errors.New("realtime: room not joined")

// Handlers receive frames of a subscription. Nil handlers are skipped.
type Handlers struct {
	OnBroadcast func(chat.BroadcastMessage)
	OnChange    func(chat.ChangeEvent)
	OnError     func(error)
}

// Client dials the chatd realtime endpoint.
type Client struct {
	baseURL string
	header  http.Header
	http    *http.Client
	logger  *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, self chat.Participant, opts ...ClientOption) *Client {
	h := http.Header{}
	h.Set(HeaderUserID, self.ID)
	h.Set(HeaderUserRole, string(self.Role))
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  h,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(room string) string {
	u := c.baseURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/api/realtime?room=" + url.QueryEscape(room)
}

// Subscribe joins room and dispatches incoming frames to h until the
// subscription is closed or the connection drops.
func (c *Client) Subscribe(ctx context.Context, room string, h Handlers) (*Subscription, error) {
	conn, _, err := websocket.Dial(ctx, c.endpoint(room), &websocket.DialOptions{
		HTTPHeader: c.header,
		HTTPClient: c.http,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)

	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("read join ack: %w", err)
	}
	var ack Frame
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != FrameJoined {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("expected %q frame, got %q", FrameJoined, ack.Type)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		Room:   room,
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go s.readLoop(readCtx, h)
	return s, nil
}

// Subscription is one joined room.
type Subscription struct {
	Room string

	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Publish sends a broadcast frame to the other members of the room.
func (s *Subscription) Publish(ctx context.Context, msg chat.BroadcastMessage) error {
	payload, err := broadcastFrame(s.Room, msg)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// Done is closed when the read loop has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close closes the socket and waits for the read loop.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "client disconnect")
		s.cancel()
	})
	<-s.done
	return err
}

func (s *Subscription) readLoop(ctx context.Context, h Handlers) {
	defer close(s.done)
	defer s.cancel()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil && h.OnError != nil {
				h.OnError(err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug("realtime frame ignored", "error", err)
			continue
		}
		switch f.Type {
		case FrameBroadcast:
			var msg chat.BroadcastMessage
			if json.Unmarshal(f.Payload, &msg) == nil && h.OnBroadcast != nil {
				h.OnBroadcast(msg)
			}
		case FrameChange:
			var m chat.Message
			if json.Unmarshal(f.Payload, &m) == nil && h.OnChange != nil {
				h.OnChange(chat.ChangeEvent{Op: f.Event, Message: m})
			}
		case FrameError:
			if h.OnError != nil {
				h.OnError(errors.New(f.Error))
			}
		}
	}
}

// Channel keeps one subscription per room and implements the widget's
// broadcaster. Publishing to a room joins it first.
type Channel struct {
	client *Client
	logger *slog.Logger

	mu       sync.Mutex
	handlers Handlers
	subs     map[string]*Subscription
}

func NewChannel(client *Client, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Channel{client: client, logger: logger, subs: make(map[string]*Subscription)}
}

// Bind sets the handlers used by rooms joined afterwards.
func (c *Channel) Bind(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Join subscribes to room unless already joined.
func (c *Channel) Join(ctx context.Context, room string) (*Subscription, error) {
	c.mu.Lock()
	if s, ok := c.subs[room]; ok {
		select {
		case <-s.Done():
			delete(c.subs, room)
		default:
			c.mu.Unlock()
			return s, nil
		}
	}
	h := c.handlers
	c.mu.Unlock()

	s, err := c.client.Subscribe(ctx, room, h)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.subs[room]; ok {
		c.mu.Unlock()
		_ = s.Close()
		return existing, nil
	}
	c.subs[room] = s
	c.mu.Unlock()
	c.logger.Debug("realtime room joined", "room", room)
	return s, nil
}

// Leave closes the subscription for room.
func (c *Channel) Leave(room string) error {
	c.mu.Lock()
	s, ok := c.subs[room]
	delete(c.subs, room)
	c.mu.Unlock()
	if !ok {
		return ErrNotJoined
	}
	return s.Close()
}

func (c *Channel) Publish(ctx context.Context, msg chat.BroadcastMessage) error {
	s, err := c.Join(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	return s.Publish(ctx, msg)
}

// Close leaves every room.
func (c *Channel) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()
	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil && websocket.CloseStatus(err) == -1 {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
