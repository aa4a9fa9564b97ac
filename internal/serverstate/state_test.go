package serverstate

import (
	"io"
	"log/slog"
	"testing"

	"github.com/BennettNotFound/dotphira-mp/internal/identity"
	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeHandle struct{ closed bool }

func (f *fakeHandle) Close() { f.closed = true }

type discardSender struct{}

func (discardSender) Send(protocol.ServerCommand) {}

func testMember(id int32, name string) roomsvc.Member {
	return roomsvc.Member{ID: id, Name: name, Sender: discardSender{}}
}

func newTestState() *State {
	return New(Config{Log: testLogger()})
}

func TestSystemUserPreInserted(t *testing.T) {
	s := newTestState()
	u, ok := s.User(0)
	if !ok || u.Name != "system" {
		t.Fatalf("expected system user pre-inserted, got %#v ok=%v", u, ok)
	}
}

func TestBindUserEvictsPriorSession(t *testing.T) {
	s := newTestState()

	first := &fakeHandle{}
	s.RegisterSession("s1", first)
	if _, err := s.BindUser("s1", identity.User{ID: 7, Name: "alice"}); err != nil {
		t.Fatalf("bind s1: %v", err)
	}

	s.RegisterSession("s2", &fakeHandle{})
	if _, err := s.BindUser("s2", identity.User{ID: 7, Name: "alice"}); err != nil {
		t.Fatalf("bind s2: %v", err)
	}

	if !first.closed {
		t.Fatal("expected prior session's handle to be closed on reauthentication elsewhere")
	}
	if _, ok := s.sessions["s1"]; ok {
		t.Fatal("expected prior session to be removed from the registry")
	}
}

func TestBindUserUnknownSession(t *testing.T) {
	s := newTestState()
	if _, err := s.BindUser("ghost", identity.User{ID: 1}); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCreateRoomExplicitAndRandomIDs(t *testing.T) {
	s := newTestState()

	room, err := s.CreateRoom("000001")
	if err != nil {
		t.Fatalf("create explicit room: %v", err)
	}
	if room.ID() != "000001" {
		t.Fatalf("expected room id 000001, got %s", room.ID())
	}

	if _, err := s.CreateRoom("000001"); err != ErrRoomExists {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}

	random, err := s.CreateRoom("")
	if err != nil {
		t.Fatalf("create random room: %v", err)
	}
	if len(random.ID()) != 6 {
		t.Fatalf("expected a 6-digit random room id, got %q", random.ID())
	}
}

func TestCreateRoomDisabledByFeatureFlag(t *testing.T) {
	s := newTestState()
	s.SetRoomCreationEnabled(false)
	if _, err := s.CreateRoom(""); err != ErrRoomCreationDisabled {
		t.Fatalf("expected ErrRoomCreationDisabled, got %v", err)
	}
}

func TestJoinRandomRoomOnlyPicksEligibleRooms(t *testing.T) {
	s := newTestState()
	open, err := s.CreateRoom("000001")
	if err != nil {
		t.Fatal(err)
	}
	locked, err := s.CreateRoom("000002")
	if err != nil {
		t.Fatal(err)
	}
	if err := locked.AddUser(testMember(1, "host")); err != nil {
		t.Fatal(err)
	}
	if err := locked.LockRoom(1, true); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		picked, ok := s.JoinRandomRoom()
		if !ok {
			t.Fatal("expected an eligible room")
		}
		if picked.ID() != open.ID() {
			t.Fatalf("expected only the open room to be eligible, got %s", picked.ID())
		}
	}
}

func TestRemoveRoomDropsFromRegistry(t *testing.T) {
	s := newTestState()
	room, err := s.CreateRoom("000003")
	if err != nil {
		t.Fatal(err)
	}
	s.removeRoom(room.ID())
	if _, ok := s.Room(room.ID()); ok {
		t.Fatal("expected room to be removed from the registry")
	}
}

func TestHandleDisconnectUnbindsUserAndLeavesRoom(t *testing.T) {
	s := newTestState()
	room, err := s.CreateRoom("000004")
	if err != nil {
		t.Fatal(err)
	}

	s.RegisterSession("s1", &fakeHandle{})
	if _, err := s.BindUser("s1", identity.User{ID: 42, Name: "bob"}); err != nil {
		t.Fatal(err)
	}
	s.SetUserRoom(42, room.ID())

	if err := room.AddUser(testMember(42, "bob")); err != nil {
		t.Fatal(err)
	}

	s.HandleDisconnect("s1")

	if _, ok := s.sessions["s1"]; ok {
		t.Fatal("expected session removed")
	}
	if room.HasMember(42) {
		t.Fatal("expected disconnected user to have left the room")
	}
}

func TestAuthenticateAdminAcceptsConfiguredTokens(t *testing.T) {
	s := New(Config{Log: testLogger(), AdminToken: "perm", ViewToken: "view"})
	if !s.AuthenticateAdmin("perm") {
		t.Fatal("expected permanent admin token to authenticate")
	}
	if !s.AuthenticateAdmin("view") {
		t.Fatal("expected view token to authenticate")
	}
	if s.AuthenticateAdmin("nope") {
		t.Fatal("expected unknown token to be rejected")
	}
	if s.AuthenticateAdmin("") {
		t.Fatal("expected empty token to be rejected")
	}
}
