package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/BennettNotFound/dotphira-mp/internal/replay"
)

func TestReplayDownloadRequiresValidSession(t *testing.T) {
	srv, _ := newTestServer(t, "", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/replay/download?sessionToken=bogus&chartId=1&timestamp=1")
	if err != nil {
		t.Fatalf("GET /replay/download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an invalid session token, got %d", resp.StatusCode)
	}
}

func TestReplayDownloadStreamsFile(t *testing.T) {
	srv, _ := newTestServer(t, "", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	const userID, chartID int32 = 7, 9
	const timestamp int64 = 12345
	path := replay.Path(srv.cfg.ReplayBasePath, userID, chartID, timestamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("replay-bytes"), 0o644); err != nil {
		t.Fatalf("write replay file: %v", err)
	}

	token := srv.cfg.ReplaySessions.Issue(userID)
	resp, err := http.Get(ts.URL + "/replay/download?sessionToken=" + token + "&chartId=9&timestamp=12345")
	if err != nil {
		t.Fatalf("GET /replay/download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "replay-bytes" {
		t.Fatalf("unexpected body: %q", data)
	}
	if got := resp.Header.Get("Content-Disposition"); got != "attachment; filename=12345.phirarec" {
		t.Fatalf("unexpected content-disposition: %q", got)
	}
}

func TestReplayDeleteRemovesFile(t *testing.T) {
	srv, _ := newTestServer(t, "", "")
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	const userID, chartID int32 = 3, 4
	const timestamp int64 = 999
	path := replay.Path(srv.cfg.ReplayBasePath, userID, chartID, timestamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write replay file: %v", err)
	}

	token := srv.cfg.ReplaySessions.Issue(userID)
	body, _ := json.Marshal(map[string]any{"sessionToken": token, "chartId": chartID, "timestamp": timestamp})
	resp, err := http.Post(ts.URL+"/replay/delete", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /replay/delete: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected replay file to be gone, stat err: %v", err)
	}
}
