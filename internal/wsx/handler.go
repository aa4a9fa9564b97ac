package wsx

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// AdminAuthFunc validates an admin_subscribe token: the configured
// permanent admin token, the configured read-only view token, or any
// currently valid OTP-issued temp token.
type AdminAuthFunc func(token string) bool

// Handler upgrades HTTP requests on /ws into push subscribers.
type Handler struct {
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader

	resolveRoom RoomSnapshotFunc
	allRooms    AllRoomsFunc
	authAdmin   AdminAuthFunc
}

// NewHandler builds a Handler backed by hub. resolveRoom and allRooms are
// how the handler reaches into server state to build projections without
// importing it directly; authAdmin validates admin_subscribe tokens (nil
// rejects every admin subscription).
func NewHandler(hub *Hub, log *slog.Logger, resolveRoom RoomSnapshotFunc, allRooms AllRoomsFunc, authAdmin AdminAuthFunc) *Handler {
	return &Handler{
		hub: hub, log: log,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		resolveRoom: resolveRoom, allRooms: allRooms, authAdmin: authAdmin,
	}
}

// Register binds the /ws route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.handle)
}

func (h *Handler) handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("wsx: upgrade: %w", err)
	}
	h.serve(conn)
	return nil
}

func (h *Handler) serve(conn *websocket.Conn) {
	defer conn.Close()
	sub := h.hub.newSubscriber(conn)
	defer h.hub.Forget(sub)

	go h.heartbeatLoop(sub)

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("wsx unexpected close", "err", err)
			}
			return
		}
		sub.touch()
		h.handleInbound(sub, in)
	}
}

func (h *Handler) handleInbound(sub *Subscriber, in inboundMessage) {
	switch in.Type {
	case inPing:
		sub.enqueue(outboundMessage{Type: outPong})

	case inSubscribe:
		if in.RoomID == "" {
			sub.enqueue(outboundMessage{Type: outError, Message: "room_id is required"})
			return
		}
		h.hub.subscribeRoom(sub, in.RoomID)
		sub.enqueue(outboundMessage{Type: outSubscribed, RoomID: in.RoomID})
		h.hub.SendRoomUpdate(in.RoomID, h.resolveRoom)

	case inUnsubscribe:
		h.hub.unsubscribeRoom(sub)
		sub.enqueue(outboundMessage{Type: outUnsubscribed, RoomID: in.RoomID})

	case inAdminSubscribe:
		if h.authAdmin == nil || !h.authAdmin(in.Token) {
			sub.enqueue(outboundMessage{Type: outError, Message: "invalid admin token"})
			return
		}
		h.hub.subscribeAdmin(sub)
		sub.enqueue(outboundMessage{Type: outAdminSubscribed})
		h.hub.SendAdminUpdate(h.allRooms)

	case inAdminUnsubscribe:
		h.hub.unsubscribeAdmin(sub)
		sub.enqueue(outboundMessage{Type: outAdminUnsubscribed})

	default:
		sub.enqueue(outboundMessage{Type: outError, Message: "unsupported message type"})
	}
}

// heartbeatLoop pings sub every 30s and closes it if nothing has been heard
// from the client in that window.
func (h *Handler) heartbeatLoop(sub *Subscriber) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-t.C:
			if sub.idleFor() > heartbeatInterval {
				sub.Close()
				return
			}
			sub.enqueue(outboundMessage{Type: inPing})
		}
	}
}
