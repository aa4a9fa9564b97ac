package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchUserSendsBearerAndDecodes(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/me" {
			t.Errorf("path = %q, want /me", r.URL.Path)
		}
		json.NewEncoder(w).Encode(User{ID: 7, Name: "alice", Language: "en"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	u, err := c.FetchUser(context.Background(), "tok123")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != 7 || u.Name != "alice" {
		t.Fatalf("got %+v", u)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}

func TestFetchChartFallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	ch := c.FetchChart(context.Background(), 42)
	if ch.ID != 42 || !strings.Contains(ch.Name, "42") {
		t.Fatalf("got %+v, want synthetic fallback name", ch)
	}
}

func TestFetchChartSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart/42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Chart{ID: 42, Name: "Song Name"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ch := c.FetchChart(context.Background(), 42)
	if ch.Name != "Song Name" {
		t.Fatalf("got %+v", ch)
	}
}

func TestFetchRecordRejectsOwnerMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Record{ID: 5, Player: 99, Score: 900000, Accuracy: 0.95})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.FetchRecord(context.Background(), 5, 1); err != ErrRecordOwnerMismatch {
		t.Fatalf("got %v, want ErrRecordOwnerMismatch", err)
	}
}

func TestFetchRecordSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Record{ID: 5, Player: 1, Score: 900000, Accuracy: 0.95, FullCombo: true})
	}))
	defer srv.Close()

	c := New(srv.URL)
	rec, err := c.FetchRecord(context.Background(), 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.FullCombo || rec.Accuracy != 0.95 {
		t.Fatalf("got %+v", rec)
	}
}
