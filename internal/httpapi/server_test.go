package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BennettNotFound/dotphira-mp/internal/admindata"
	"github.com/BennettNotFound/dotphira-mp/internal/replay"
	"github.com/BennettNotFound/dotphira-mp/internal/serverstate"
	"github.com/BennettNotFound/dotphira-mp/internal/trust"
)

func newTestServer(t *testing.T, adminToken, viewToken string) (*Server, *serverstate.State) {
	t.Helper()
	bans, err := admindata.Open(t.TempDir() + "/admin_data.json")
	if err != nil {
		t.Fatalf("open admindata: %v", err)
	}
	tokens := trust.NewTokenStore()
	state := serverstate.New(serverstate.Config{
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Bans:       bans,
		Tokens:     tokens,
		AdminToken: adminToken,
		ViewToken:  viewToken,
	})
	srv := New(Config{
		State:          state,
		Bans:           bans,
		Otp:            trust.NewOtpStore(tokens),
		Tokens:         tokens,
		Blacklist:      trust.NewBlacklist(),
		ReplaySessions: replay.NewSessionStore(),
		ReplayBasePath: t.TempDir(),
		ServerName:     "test-server",
		AdminToken:     adminToken,
		ViewToken:      viewToken,
		Log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return srv, state
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func TestStatusReportsCounts(t *testing.T) {
	srv, state := newTestServer(t, "", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	if _, err := state.CreateRoom("r1"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.ServerName != "test-server" || status.RoomCount != 1 {
		t.Fatalf("unexpected status payload: %#v", status)
	}
}

func TestRoomsListsCreatedRoom(t *testing.T) {
	srv, state := newTestServer(t, "", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	if _, err := state.CreateRoom("abc123"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, err := http.Get(ts.URL + "/rooms")
	if err != nil {
		t.Fatalf("GET /rooms: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if decoded["count"].(float64) != 1 {
		t.Fatalf("expected 1 room, got %#v", decoded["count"])
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret-admin", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, body := doJSON(t, ts, http.MethodGet, "/admin/rooms", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d (%v)", resp.StatusCode, body)
	}
	if body["error"] != "missing-token" {
		t.Fatalf("unexpected error slug: %#v", body)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/admin/rooms", "wrong-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d (%v)", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/admin/rooms", "secret-admin", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d (%v)", resp.StatusCode, body)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %#v", body)
	}
}

func TestViewTokenIsReadOnly(t *testing.T) {
	srv, _ := newTestServer(t, "secret-admin", "secret-view")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, _ := doJSON(t, ts, http.MethodGet, "/admin/rooms", "secret-view", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected view token to read, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, ts, http.MethodPost, "/admin/broadcast", "secret-view", map[string]any{"message": "hi"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for view token write, got %d (%v)", resp.StatusCode, body)
	}
	if body["error"] != "view-token-readonly" {
		t.Fatalf("unexpected error slug: %#v", body)
	}
}

func TestAdminDisbandRoomAndMissingRoom(t *testing.T) {
	srv, state := newTestServer(t, "secret-admin", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	if _, err := state.CreateRoom("target-room"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, body := doJSON(t, ts, http.MethodPost, "/admin/rooms/target-room/disband", "secret-admin", nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("expected disband to succeed, got %d (%v)", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, http.MethodPost, "/admin/rooms/target-room/disband", "secret-admin", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 disbanding an already-gone room, got %d (%v)", resp.StatusCode, body)
	}
	if body["error"] != "room-not-found" {
		t.Fatalf("unexpected error slug: %#v", body)
	}
}

func TestAdminBanUserPersists(t *testing.T) {
	srv, _ := newTestServer(t, "secret-admin", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, body := doJSON(t, ts, http.MethodPost, "/admin/ban/user", "secret-admin",
		map[string]any{"userId": 42, "banned": true})
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("expected ban to succeed, got %d (%v)", resp.StatusCode, body)
	}
	if !srv.cfg.Bans.IsUserBanned(42) {
		t.Fatalf("expected user 42 to be banned in the store")
	}
}
