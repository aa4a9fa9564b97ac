package wsx

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startTestServer(t *testing.T, resolve RoomSnapshotFunc, all AllRoomsFunc, authAdmin AdminAuthFunc) string {
	t.Helper()
	hub := NewHub(testLogger())
	e := echo.New()
	NewHandler(hub, testLogger(), resolve, all, authAdmin).Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg inboundMessage) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write json: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(outboundMessage) bool) outboundMessage {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var msg outboundMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			t.Fatalf("read json: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatal("timed out waiting for matching message")
	return outboundMessage{}
}

func TestSubscribeReceivesRoomUpdate(t *testing.T) {
	resolve := func(roomID string) (roomsvc.Snapshot, bool) {
		return roomsvc.Snapshot{ID: roomID, HostName: "alice"}, true
	}
	baseURL := startTestServer(t, resolve, nil, nil)

	conn := dial(t, baseURL)
	defer conn.Close()

	writeMsg(t, conn, inboundMessage{Type: inSubscribe, RoomID: "000001"})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outSubscribed && m.RoomID == "000001" })
	readUntil(t, conn, func(m outboundMessage) bool {
		return m.Type == "room_update" && m.Room != nil && m.Room.HostName == "alice"
	})
}

func TestUnknownRoomNeverUpdates(t *testing.T) {
	resolve := func(string) (roomsvc.Snapshot, bool) { return roomsvc.Snapshot{}, false }
	baseURL := startTestServer(t, resolve, nil, nil)

	conn := dial(t, baseURL)
	defer conn.Close()

	writeMsg(t, conn, inboundMessage{Type: inSubscribe, RoomID: "ghost"})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outSubscribed })

	writeMsg(t, conn, inboundMessage{Type: inPing})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outPong })
}

func TestAdminSubscribeReceivesSnapshot(t *testing.T) {
	all := func() []roomsvc.Snapshot {
		return []roomsvc.Snapshot{{ID: "000002"}}
	}
	baseURL := startTestServer(t, nil, all, func(token string) bool { return token == "secret" })

	conn := dial(t, baseURL)
	defer conn.Close()

	writeMsg(t, conn, inboundMessage{Type: inAdminSubscribe, Token: "secret"})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outAdminSubscribed })
	readUntil(t, conn, func(m outboundMessage) bool {
		return m.Type == "admin_update" && len(m.Rooms) == 1 && m.Rooms[0].ID == "000002"
	})
}

func TestAdminSubscribeRejectsBadToken(t *testing.T) {
	baseURL := startTestServer(t, nil, nil, func(token string) bool { return token == "secret" })

	conn := dial(t, baseURL)
	defer conn.Close()

	writeMsg(t, conn, inboundMessage{Type: inAdminSubscribe, Token: "wrong"})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outError })
}

func TestUnsubscribeStopsFurtherUpdates(t *testing.T) {
	hub := NewHub(testLogger())
	resolve := func(roomID string) (roomsvc.Snapshot, bool) { return roomsvc.Snapshot{ID: roomID}, true }
	e := echo.New()
	NewHandler(hub, testLogger(), resolve, nil, nil).Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	baseURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dial(t, baseURL)
	defer conn.Close()

	writeMsg(t, conn, inboundMessage{Type: inSubscribe, RoomID: "r1"})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outSubscribed })
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == "room_update" })

	writeMsg(t, conn, inboundMessage{Type: inUnsubscribe})
	readUntil(t, conn, func(m outboundMessage) bool { return m.Type == outUnsubscribed })

	hub.SendRoomUpdate("r1", resolve)
	writeMsg(t, conn, inboundMessage{Type: inPing})
	// the next message must be pong, not a stray room_update — proves the
	// unsubscribe actually removed this connection from r1's fan-out set.
	got := readUntil(t, conn, func(m outboundMessage) bool { return true })
	if got.Type != outPong {
		t.Fatalf("got %q, want pong (unsubscribed connection should not receive room_update)", got.Type)
	}
}
