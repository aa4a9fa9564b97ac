// Package wsx is the realtime telemetry push layer: it projects room state
// changes onto subscribed WebSocket clients, in two views (a room view for
// players/spectators, an admin view that sees every room at once).
//
// The transport shape — gorilla/websocket upgrade behind an Echo route, one
// JSON-message-typed protocol, a buffered per-connection send channel drained
// by its own goroutine — is the teacher's internal/ws/handler.go pattern;
// the subscribe/unsubscribe/admin surface and the room/admin snapshot
// projections are this domain's own.
package wsx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
)

const (
	heartbeatInterval = 30 * time.Second
	writeTimeout      = 5 * time.Second
	sendBuffer        = 32
)

// Subscriber is one live WebSocket connection.
type Subscriber struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu           sync.Mutex
	roomID       string // "" when not subscribed to a room
	admin        bool
	lastActivity time.Time
	send         chan outboundMessage
	closeOnce    sync.Once
	done         chan struct{}
}

// Hub is the process-wide subscriber registry.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	byRoom map[string]map[*Subscriber]struct{}
	admins map[*Subscriber]struct{}
}

// NewHub builds an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:    log,
		byRoom: make(map[string]map[*Subscriber]struct{}),
		admins: make(map[*Subscriber]struct{}),
	}
}

// newSubscriber wraps conn and starts its writer goroutine.
func (h *Hub) newSubscriber(conn *websocket.Conn) *Subscriber {
	s := &Subscriber{
		conn: conn, log: h.log,
		lastActivity: time.Now(),
		send:         make(chan outboundMessage, sendBuffer),
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *Subscriber) writeLoop() {
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug("wsx write error", "err", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// enqueue is a non-blocking send; a full buffer drops the message rather
// than stalling the hub under a slow subscriber.
func (s *Subscriber) enqueue(msg outboundMessage) {
	select {
	case s.send <- msg:
	default:
		s.log.Debug("wsx subscriber send buffer full, dropping message", "type", msg.Type)
	}
}

// Close terminates the subscriber's writer goroutine and underlying socket.
// Idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.send)
		s.conn.Close()
	})
}

func (s *Subscriber) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Subscriber) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// subscribeRoom moves s into roomID's subscriber set, leaving any prior
// room subscription.
func (h *Hub) subscribeRoom(s *Subscriber, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(s)
	set, ok := h.byRoom[roomID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.byRoom[roomID] = set
	}
	set[s] = struct{}{}
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

func (h *Hub) unsubscribeRoom(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(s)
	s.mu.Lock()
	s.roomID = ""
	s.mu.Unlock()
}

func (h *Hub) removeFromRoomLocked(s *Subscriber) {
	s.mu.Lock()
	room := s.roomID
	s.mu.Unlock()
	if room == "" {
		return
	}
	if set, ok := h.byRoom[room]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byRoom, room)
		}
	}
}

func (h *Hub) subscribeAdmin(s *Subscriber) {
	h.mu.Lock()
	h.admins[s] = struct{}{}
	h.mu.Unlock()
	s.mu.Lock()
	s.admin = true
	s.mu.Unlock()
}

func (h *Hub) unsubscribeAdmin(s *Subscriber) {
	h.mu.Lock()
	delete(h.admins, s)
	h.mu.Unlock()
	s.mu.Lock()
	s.admin = false
	s.mu.Unlock()
}

// Forget removes s from every registry. Called on disconnect.
func (h *Hub) Forget(s *Subscriber) {
	h.mu.Lock()
	h.removeFromRoomLocked(s)
	delete(h.admins, s)
	h.mu.Unlock()
}

// RoomSnapshotFunc resolves a room id to its current snapshot, or ok=false
// if the room no longer exists.
type RoomSnapshotFunc func(roomID string) (roomsvc.Snapshot, bool)

// AllRoomsFunc returns a snapshot of every currently live room.
type AllRoomsFunc func() []roomsvc.Snapshot

// SendRoomUpdate fans the room's current snapshot out to its subscribers.
// Invoked after any room state/membership change.
func (h *Hub) SendRoomUpdate(roomID string, resolve RoomSnapshotFunc) {
	h.mu.Lock()
	set := h.byRoom[roomID]
	subs := make([]*Subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	snap, ok := resolve(roomID)
	if !ok {
		return
	}
	msg := outboundMessage{Type: "room_update", Room: &snap}
	for _, s := range subs {
		s.enqueue(msg)
	}
}

// SendRoomLog broadcasts a timestamped log line to roomID's subscribers.
func (h *Hub) SendRoomLog(roomID, message string) {
	h.mu.Lock()
	set := h.byRoom[roomID]
	subs := make([]*Subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	msg := outboundMessage{Type: "room_log", RoomID: roomID, Message: message, TS: time.Now().UnixMilli()}
	for _, s := range subs {
		s.enqueue(msg)
	}
}

// SendAdminUpdate snapshots every room and fans it out to admin subscribers.
// Triggered on room creation, disband, and on admin subscribe.
func (h *Hub) SendAdminUpdate(all AllRoomsFunc) {
	h.mu.Lock()
	admins := make([]*Subscriber, 0, len(h.admins))
	for s := range h.admins {
		admins = append(admins, s)
	}
	h.mu.Unlock()
	if len(admins) == 0 {
		return
	}

	rooms := all()
	msg := outboundMessage{Type: "admin_update", Rooms: rooms}
	for _, s := range admins {
		s.enqueue(msg)
	}
}
