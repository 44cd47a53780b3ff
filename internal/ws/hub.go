package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

const (
	writeWait = 10 * time.Second
	// Pending events per connection before it counts as stalled.
	sendBuffer = 32
)

var errSlowClient = errors.New("send buffer full")

// ConnInfo identifies one websocket connection in lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// client owns one connection. Only its writeLoop writes to conn.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo) *client {
	return &client{
		conn: conn,
		info: info,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// stop ends the writer. It reports whether this call was the one that did.
func (cl *client) stop() bool {
	stopped := false
	cl.once.Do(func() {
		close(cl.done)
		stopped = true
	})
	return stopped
}

// enqueue never blocks. A stopped client swallows the payload.
func (cl *client) enqueue(payload []byte) error {
	select {
	case <-cl.done:
		return nil
	default:
	}
	select {
	case cl.send <- payload:
		return nil
	default:
		return errSlowClient
	}
}

// Hub keeps every open connection grouped by the user it belongs to.
type Hub struct {
	rooms map[int]map[*websocket.Conn]*client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[*websocket.Conn]*client)}
}

// AddClient registers a connection for userID.
func (h *Hub) AddClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[userID]; !ok {
		h.rooms[userID] = make(map[*websocket.Conn]*client)
	}
	cl := newClient(conn, info)
	h.rooms[userID][conn] = cl
	go h.writeLoop(userID, cl)
}

// RemoveClient drops a connection. Empty rooms are removed.
func (h *Hub) RemoveClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[userID]; ok {
		if cl, ok := conns[conn]; ok {
			cl.stop()
		}
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// Connections reports how many connections userID has open.
func (h *Hub) Connections(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// NotifyMessage pushes a new message to its receiver.
func (h *Hub) NotifyMessage(msg models.Message) {
	h.push(msg.ReceiverID, models.MessageEvent{Type: "message", Message: &msg})
}

// NotifyRead tells senderID that readerID has read count of their messages.
func (h *Hub) NotifyRead(senderID, readerID int, count int64) {
	if count <= 0 {
		return
	}
	h.push(senderID, models.MessageEvent{Type: "read", ReaderID: readerID, Count: count})
}

// push queues event for every connection of userID. Writes happen on each
// client's writeLoop, so callers never wait on a slow socket.
func (h *Hub) push(userID int, event models.MessageEvent) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[userID]))
	for _, cl := range h.rooms[userID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", event.Type).Msg("websocket encode failed")
		return
	}
	for _, cl := range clients {
		if err := cl.enqueue(payload); err != nil {
			h.drop(userID, cl, err)
			continue
		}
		observability.IncWSEvent(wsKind, event.Type)
	}
}

func (h *Hub) writeLoop(userID int, cl *client) {
	for {
		select {
		case <-cl.done:
			return
		case payload := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(userID, cl, err)
				return
			}
		}
	}
}

// drop disconnects a client that failed a write or fell behind.
func (h *Hub) drop(userID int, cl *client, err error) {
	if !cl.stop() {
		return
	}
	log.Warn().Err(err).Int("user_id", userID).Str("conn_id", cl.info.ConnID).Msg("websocket client dropped")
	h.RemoveClient(userID, cl.conn)
	if cl.conn != nil {
		cl.conn.Close()
	}
	h.publishWSError(cl.info, err)
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	publishLifecycle(context.Background(), info, "ws_error", err.Error())
	observability.IncWSEvent(wsKind, "ws_error")
}
