// Package serverstate is the process-wide registry a connected session
// reaches into: the user table, the room table, the admin feature flags,
// and ban-list lookups. It is the one place that knows how to turn a bare
// room id or user id into the live object behind it, and it owns the
// connection-lost cleanup that every session must trigger exactly once.
//
// The shape — one mutex guarding several maps, a snapshot taken under lock
// and used after it is released, an `slog` call at every mutation — is the
// teacher's internal/core.ChannelState (Add/Remove/Broadcast over a
// mutex-guarded `users map[string]*userState`), generalized from "connected
// websocket users" to "users, sessions, and rooms" and from a single global
// presence table to one that also owns room lifecycle (CreateRoom,
// JoinRandomRoom, Disband) via internal/roomsvc.
package serverstate

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/BennettNotFound/dotphira-mp/internal/admindata"
	"github.com/BennettNotFound/dotphira-mp/internal/identity"
	"github.com/BennettNotFound/dotphira-mp/internal/replay"
	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
	"github.com/BennettNotFound/dotphira-mp/internal/trust"
	"github.com/BennettNotFound/dotphira-mp/internal/wsx"
)

// systemUserID is the distinguished user id the room state machine uses as
// the sender of server-originated chat lines (contest disband notices, and
// similarly for other server announcements).
const systemUserID int32 = 0

// User is a server-known identity: the subset of the external account
// resolved on Authenticate, plus which room (if any) it currently occupies.
type User struct {
	ID       int32
	Name     string
	Language string
	RoomID   string // "" when not in a room
}

// SessionHandle is what a connected session registers with the server
// state: enough to disconnect it from the outside (single-session-per-user
// enforcement, admin kick).
type SessionHandle interface {
	Close()
}

type sessionEntry struct {
	handle  SessionHandle
	userID  int32
	hasUser bool
}

// State is the process-wide registry. Zero value is not usable; build one
// with New.
type State struct {
	log *slog.Logger

	hub      *wsx.Hub
	identity *identity.Client
	bans     *admindata.Store
	tokens   *trust.TokenStore

	replayBase string
	adminToken string
	viewToken  string

	mu          sync.Mutex
	sessions    map[string]*sessionEntry
	userSession map[int32]string
	users       map[int32]User
	rooms       map[string]*roomsvc.Room

	replayRecordingEnabled bool
	roomCreationEnabled    bool
}

// Config bundles New's dependencies so call sites don't drift every time a
// new one is wired in.
type Config struct {
	Log            *slog.Logger
	Hub            *wsx.Hub
	Identity       *identity.Client
	Bans           *admindata.Store
	Tokens         *trust.TokenStore
	ReplayBasePath string
	AdminToken     string
	ViewToken      string
}

// New builds an empty registry with the distinguished system user
// pre-inserted and roomCreationEnabled on / replayRecordingEnabled off, per
// the documented defaults.
func New(cfg Config) *State {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	s := &State{
		log:                 cfg.Log,
		hub:                 cfg.Hub,
		identity:            cfg.Identity,
		bans:                cfg.Bans,
		tokens:              cfg.Tokens,
		replayBase:          cfg.ReplayBasePath,
		adminToken:          cfg.AdminToken,
		viewToken:           cfg.ViewToken,
		sessions:            make(map[string]*sessionEntry),
		userSession:         make(map[int32]string),
		users:               make(map[int32]User),
		rooms:               make(map[string]*roomsvc.Room),
		roomCreationEnabled: true,
	}
	s.users[systemUserID] = User{ID: systemUserID, Name: "system"}
	return s
}

// RegisterSession adds a freshly accepted, not-yet-authenticated connection
// to the registry.
func (s *State) RegisterSession(id string, handle SessionHandle) {
	s.mu.Lock()
	s.sessions[id] = &sessionEntry{handle: handle}
	count := len(s.sessions)
	s.mu.Unlock()
	s.log.Debug("session registered", "session_id", id, "total_sessions", count)
}

// BindUser interns u into the user table (preserving its current room, if
// any, across a reconnect) and binds sessionID to it. Any other session
// already bound to this user is closed first, enforcing one live connection
// per user.
func (s *State) BindUser(sessionID string, u identity.User) (User, error) {
	s.mu.Lock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return User{}, ErrSessionNotFound
	}

	var evicted SessionHandle
	if prevID, bound := s.userSession[u.ID]; bound && prevID != sessionID {
		if prev, ok := s.sessions[prevID]; ok {
			evicted = prev.handle
			delete(s.sessions, prevID)
		}
	}

	roomID := ""
	if existing, hadUser := s.users[u.ID]; hadUser {
		roomID = existing.RoomID
	}
	rec := User{ID: u.ID, Name: u.Name, Language: u.Language, RoomID: roomID}
	s.users[u.ID] = rec
	entry.userID = u.ID
	entry.hasUser = true
	s.userSession[u.ID] = sessionID

	s.mu.Unlock()

	if evicted != nil {
		s.log.Info("user reauthenticated elsewhere, closing prior session", "user_id", u.ID)
		evicted.Close()
	}
	s.log.Info("user bound to session", "user_id", u.ID, "name", u.Name, "session_id", sessionID)
	return rec, nil
}

// User looks up a server-known user by id.
func (s *State) User(id int32) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// SetUserRoom records that userID now occupies roomID (or "" to clear it).
func (s *State) SetUserRoom(userID int32, roomID string) {
	s.mu.Lock()
	if u, ok := s.users[userID]; ok {
		u.RoomID = roomID
		s.users[userID] = u
	}
	s.mu.Unlock()
}

// ClearUserRoom is SetUserRoom(userID, "").
func (s *State) ClearUserRoom(userID int32) { s.SetUserRoom(userID, "") }

// HandleDisconnect runs the connection-lost protocol: remove the session,
// and if it held a user, unbind the user and, if that user was in a room,
// perform the room leave.
func (s *State) HandleDisconnect(sessionID string) {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	if !ok {
		s.mu.Unlock()
		return
	}

	var room *roomsvc.Room
	var userID int32
	if entry.hasUser {
		userID = entry.userID
		delete(s.userSession, userID)
		if u, ok := s.users[userID]; ok {
			if u.RoomID != "" {
				room = s.rooms[u.RoomID]
			}
			u.RoomID = ""
			s.users[userID] = u
		}
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	s.log.Debug("session disconnected", "session_id", sessionID, "had_user", entry.hasUser, "total_sessions", remaining)
	if room != nil {
		room.OnUserLeave(userID)
	}
}

// ReplayRecordingEnabled reports the current feature flag value.
func (s *State) ReplayRecordingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayRecordingEnabled
}

// SetReplayRecordingEnabled toggles the feature flag (admin op).
func (s *State) SetReplayRecordingEnabled(v bool) {
	s.mu.Lock()
	s.replayRecordingEnabled = v
	s.mu.Unlock()
	s.log.Info("replay recording flag changed", "enabled", v)
}

// RoomCreationEnabled reports the current feature flag value.
func (s *State) RoomCreationEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCreationEnabled
}

// SetRoomCreationEnabled toggles the feature flag (admin op).
func (s *State) SetRoomCreationEnabled(v bool) {
	s.mu.Lock()
	s.roomCreationEnabled = v
	s.mu.Unlock()
	s.log.Info("room creation flag changed", "enabled", v)
}

// IsUserBanned reports a global admin ban.
func (s *State) IsUserBanned(userID int32) bool {
	if s.bans == nil {
		return false
	}
	return s.bans.IsUserBanned(int64(userID))
}

// IsRoomBanned reports a per-room admin ban.
func (s *State) IsRoomBanned(roomID string, userID int32) bool {
	if s.bans == nil {
		return false
	}
	return s.bans.IsRoomBanned(roomID, int64(userID))
}

// Room looks up a live room by id.
func (s *State) Room(id string) (*roomsvc.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// CreateRoom creates and registers a new room, with an explicit id or a
// random one when id == "". Refuses to create one while room creation is
// administratively disabled.
func (s *State) CreateRoom(id string) (*roomsvc.Room, error) {
	s.mu.Lock()
	if !s.roomCreationEnabled {
		s.mu.Unlock()
		return nil, ErrRoomCreationDisabled
	}
	if id == "" {
		id = s.randomRoomIDLocked()
	} else if _, exists := s.rooms[id]; exists {
		s.mu.Unlock()
		return nil, ErrRoomExists
	}
	room := roomsvc.New(id, s.hooks(), s.log)
	s.rooms[id] = room
	total := len(s.rooms)
	s.mu.Unlock()

	s.log.Info("room created", "room_id", id, "total_rooms", total)
	if s.hub != nil {
		s.hub.SendAdminUpdate(s.AllRoomSnapshots)
	}
	return room, nil
}

func (s *State) randomRoomIDLocked() string {
	for {
		id := randomRoomID()
		if _, exists := s.rooms[id]; !exists {
			return id
		}
	}
}

func randomRoomID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand failing is effectively unreachable on a supported
		// platform; degrade to a still-plausible id rather than block room
		// creation entirely.
		return fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// removeRoom is the Disband hook: it drops the room from the registry.
func (s *State) removeRoom(id string) {
	s.mu.Lock()
	delete(s.rooms, id)
	remaining := len(s.rooms)
	s.mu.Unlock()

	s.log.Info("room disbanded", "room_id", id, "remaining_rooms", remaining)
	if s.hub != nil {
		s.hub.SendAdminUpdate(s.AllRoomSnapshots)
	}
}

// JoinRandomRoom picks uniformly among rooms currently recruiting (not
// locked, below capacity), or reports false if none qualify.
func (s *State) JoinRandomRoom() (*roomsvc.Room, bool) {
	s.mu.Lock()
	candidates := make([]*roomsvc.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		candidates = append(candidates, r)
	}
	s.mu.Unlock()

	var eligible []*roomsvc.Room
	for _, r := range candidates {
		if r.IsRecruiting() {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(eligible))))
	if err != nil {
		return eligible[0], true
	}
	return eligible[n.Int64()], true
}

// RoomSnapshot implements wsx.RoomSnapshotFunc.
func (s *State) RoomSnapshot(id string) (roomsvc.Snapshot, bool) {
	room, ok := s.Room(id)
	if !ok {
		return roomsvc.Snapshot{}, false
	}
	return room.Snapshot(), true
}

// AllRoomSnapshots implements wsx.AllRoomsFunc.
func (s *State) AllRoomSnapshots() []roomsvc.Snapshot {
	s.mu.Lock()
	rooms := make([]*roomsvc.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	snaps := make([]roomsvc.Snapshot, 0, len(rooms))
	for _, r := range rooms {
		snaps = append(snaps, r.Snapshot())
	}
	return snaps
}

// AuthenticateAdmin implements wsx.AdminAuthFunc: it accepts the configured
// permanent admin token, the configured read-only view token, or any
// currently valid OTP-issued temp token.
func (s *State) AuthenticateAdmin(token string) bool {
	if token == "" {
		return false
	}
	if s.adminToken != "" && token == s.adminToken {
		return true
	}
	if s.viewToken != "" && token == s.viewToken {
		return true
	}
	return s.tokens != nil && s.tokens.Peek(token)
}

// hooks builds the Hooks every room created by this State is wired with.
func (s *State) hooks() roomsvc.Hooks {
	return roomsvc.Hooks{
		Disband: s.removeRoom,
		RoomUpdated: func(id string) {
			if s.hub == nil {
				return
			}
			// Admin subscribers get a full-room-list push only on creation,
			// disband, and admin subscribe (CreateRoom/removeRoom call
			// SendAdminUpdate directly); per-room mutations only need to
			// reach that room's own subscribers.
			s.hub.SendRoomUpdate(id, s.RoomSnapshot)
		},
		RoomLog: func(id, message string) {
			if s.hub != nil {
				s.hub.SendRoomLog(id, message)
			}
		},
		ResolveChartName: func(chartID int32) string {
			if s.identity == nil {
				return fmt.Sprintf("Chart%d", chartID)
			}
			return s.identity.FetchChart(context.Background(), chartID).Name
		},
		ReplayEnabled: s.ReplayRecordingEnabled,
		StartReplay: func(userID, chartID int32) (roomsvc.ReplayWriter, error) {
			return replay.Open(s.replayBase, userID, chartID, time.Now().UnixMilli())
		},
		ValidateRecord: func(userID, recordID int32) (float32, bool, error) {
			if s.identity == nil {
				return 0, false, fmt.Errorf("serverstate: no identity client configured")
			}
			rec, err := s.identity.FetchRecord(context.Background(), recordID, userID)
			if err != nil {
				return 0, false, err
			}
			return rec.Accuracy, rec.FullCombo, nil
		},
	}
}
