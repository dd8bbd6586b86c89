package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"freightdesk/internal/domain/chat"
)

// Hub tracks sockets by conversation room. Broadcast frames are relayed to
// the other sockets of the room; change-feed events go to every socket.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.RWMutex
	rooms  map[string]map[string]*Connection
	closed bool
	wg     sync.WaitGroup
}

// NewHub builds a hub. checkOrigin may be nil to accept any origin.
func NewHub(logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: checkOrigin},
		logger:   logger,
		rooms:    make(map[string]map[string]*Connection),
	}
}

// Serve upgrades the request and blocks until the socket closes. The caller
// has already checked that user may join room.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user chat.Participant, room string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := newConnection(user.ID, room, ws)
	if !h.attach(conn) {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
		return nil
	}
	defer h.detach(conn)

	go func() {
		defer h.wg.Done()
		conn.writeLoop()
	}()

	joined, _ := encodeFrame(FrameJoined, room, "", nil)
	_ = conn.Send(joined)
	h.logger.Debug("realtime joined", "conn_id", conn.ID, "user_id", user.ID, "room", room)

	h.readLoop(conn, user)
	return nil
}

func (h *Hub) readLoop(conn *Connection, user chat.Participant) {
	defer conn.Close(websocket.CloseNormalClosure, "")
	conn.ws.SetReadLimit(maxFrameBytes)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("realtime read ended", "conn_id", conn.ID, "error", err)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(conn, user, data)
	}
}

func (h *Hub) handleFrame(conn *Connection, user chat.Participant, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		_ = conn.Send(errorFrame(conn.Room, "malformed frame"))
		return
	}
	if f.Type != FrameBroadcast {
		_ = conn.Send(errorFrame(conn.Room, "unsupported frame type"))
		return
	}
	var msg chat.BroadcastMessage
	if err := json.Unmarshal(f.Payload, &msg); err != nil {
		_ = conn.Send(errorFrame(conn.Room, "malformed broadcast payload"))
		return
	}
	// the socket identity is authoritative, whatever the client claims
	msg.User.ID = user.ID
	msg.ConversationID = conn.Room
	if msg.SenderRole == "" {
		msg.SenderRole = user.Role
	}
	payload, err := broadcastFrame(conn.Room, msg)
	if err != nil {
		return
	}
	h.Broadcast(conn.Room, payload, conn.ID)
}

// Broadcast sends payload to every socket in room except excludeConnID.
func (h *Hub) Broadcast(room string, payload []byte, excludeConnID string) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Deliver pushes a durable change to every socket in room.
func (h *Hub) Deliver(room string, ev chat.ChangeEvent) int {
	payload, err := changeFrame(room, ev)
	if err != nil {
		h.logger.Error("encode change frame", "room", room, "error", err)
		return 0
	}
	return h.Broadcast(room, payload, "")
}

// Size reports how many sockets are joined to room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every socket and waits for their writers to stop.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var conns []*Connection
	for _, room := range h.rooms {
		for _, c := range room {
			conns = append(conns, c)
		}
	}
	h.rooms = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()
}

func (h *Hub) attach(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	room := h.rooms[conn.Room]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[conn.Room] = room
	}
	room[conn.ID] = conn
	h.wg.Add(1)
	return true
}

func (h *Hub) detach(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conn.Room]
	if room == nil {
		return
	}
	delete(room, conn.ID)
	if len(room) == 0 {
		delete(h.rooms, conn.Room)
	}
}
