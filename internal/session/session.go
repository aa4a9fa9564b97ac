// Package session implements the per-connection game protocol handler: the
// unauthenticated/authenticated state gate, the five-step Authenticate flow,
// the 10s/10s heartbeat, connection-lost cleanup, and the dispatch table
// routing every decoded command to internal/roomsvc and internal/serverstate.
//
// The shape — one big dispatch switch over a decoded message, a deferred
// cleanup that unwinds room/owner state exactly once, a heartbeat loop
// watched alongside the read loop — is the teacher's handleClient/
// processControl pair (client.go): join-then-loop, a single cancel-triggering
// defer, one dispatch function per connection. Command bodies are new
// (chart-room lifecycle instead of voice channels) but follow the same
// decode-then-call-then-reply-with-result shape throughout.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BennettNotFound/dotphira-mp/internal/identity"
	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
	"github.com/BennettNotFound/dotphira-mp/internal/serverstate"
	"github.com/BennettNotFound/dotphira-mp/internal/transport"
	"github.com/BennettNotFound/dotphira-mp/internal/wire"
)

// heartbeatInterval is both the tick and the liveness deadline: a session is
// considered lost if no frame has arrived in this long. The threshold
// equalling the tick is a known tight setting, preserved deliberately.
const heartbeatInterval = 10 * time.Second

// welcomeDelay is how long Authenticate's optional welcome chat waits before
// being enqueued, so it lands after the client has processed the auth
// response.
const welcomeDelay = 300 * time.Millisecond

// controlRateLimit caps inbound commands per session, matching the
// teacher's own default "maximum control messages per second per client".
// Unlike the teacher's hand-rolled per-second counter, this is enforced
// with golang.org/x/time/rate's token bucket.
const controlRateLimit = 50

// errRateLimited closes a connection that sustained more than
// controlRateLimit commands per second.
var errRateLimited = errors.New("session: control message rate exceeded")

// Config bundles a Session's dependencies.
type Config struct {
	State            *serverstate.State
	Identity         *identity.Client
	Log              *slog.Logger
	WelcomeMessage   string
	PrivilegedUserID int32
}

// Session wraps one accepted game connection with protocol-level dispatch.
// It starts unauthenticated; Authenticate binds it to a user id.
type Session struct {
	id      string
	conn    *transport.Connection
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter

	mu            sync.Mutex
	authenticated bool
	userID        int32

	cleanupOnce sync.Once
}

// New wraps conn as session id, not yet registered with cfg.State. Call
// Serve to register it and begin processing.
func New(id string, conn *transport.Connection, cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id: id, conn: conn, cfg: cfg, log: log,
		limiter: rate.NewLimiter(rate.Limit(controlRateLimit), controlRateLimit),
	}
}

// Close implements serverstate.SessionHandle: it is called by BindUser to
// evict a user's prior connection on reauthentication elsewhere.
func (s *Session) Close() { s.conn.Close() }

// Serve registers the session, runs the connection pipeline until it ends,
// and performs connection-lost cleanup exactly once. It blocks until the
// connection closes or ctx is cancelled.
func (s *Session) Serve(ctx context.Context) error {
	s.cfg.State.RegisterSession(s.id, s)

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.heartbeatLoop(hbCtx)

	err := s.conn.Run(ctx, s.dispatch)
	s.cleanup()
	return err
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(s.conn.LastActivity()) > heartbeatInterval {
				s.log.Debug("session heartbeat timeout", "session_id", s.id)
				s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		s.cfg.State.HandleDisconnect(s.id)
	})
}

func (s *Session) currentUser() (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.authenticated
}

// dispatch is the transport.Dispatch callback: decode, then route.
func (s *Session) dispatch(tag byte, r *wire.Reader) error {
	cmd, err := protocol.DecodeClientCommand(tag, r)
	if err != nil {
		return err
	}

	if !s.limiter.Allow() {
		s.log.Warn("session exceeded control message rate, closing", "session_id", s.id)
		return errRateLimited
	}

	userID, authed := s.currentUser()
	if !authed {
		switch c := cmd.(type) {
		case protocol.CmdPing:
			s.conn.Send(protocol.SPong{})
		case protocol.CmdAuthenticate:
			s.authenticate(c.Token)
		}
		return nil
	}

	switch c := cmd.(type) {
	case protocol.CmdPing:
		s.conn.Send(protocol.SPong{})
	case protocol.CmdAuthenticate:
		s.authenticate(c.Token)
	case protocol.CmdChat:
		s.handleChat(userID, c)
	case protocol.CmdTouches:
		s.handleTouches(userID, c)
	case protocol.CmdJudges:
		s.handleJudges(userID, c)
	case protocol.CmdCreateRoom:
		s.handleCreateRoom(userID, c)
	case protocol.CmdJoinRoom:
		s.handleJoinRoom(userID, c)
	case protocol.CmdLeaveRoom:
		s.handleLeaveRoom(userID)
	case protocol.CmdLockRoom:
		s.handleLockRoom(userID, c)
	case protocol.CmdCycleRoom:
		s.handleCycleRoom(userID, c)
	case protocol.CmdSelectChart:
		s.handleSelectChart(userID, c)
	case protocol.CmdRequestStart:
		s.handleRequestStart(userID)
	case protocol.CmdReady:
		s.handleReady(userID)
	case protocol.CmdCancelReady:
		s.handleCancelReady(userID)
	case protocol.CmdPlayed:
		s.handlePlayed(userID, c)
	case protocol.CmdAbort:
		s.handleAbort(userID)
	}
	return nil
}

// authenticate runs the five-step Authenticate flow described in the
// session's specification: resolve identity, check the ban list, bind the
// user to this session, reply, and optionally schedule a welcome chat.
func (s *Session) authenticate(token string) {
	u, err := s.cfg.Identity.FetchUser(context.Background(), token)
	if err != nil {
		s.conn.Send(protocol.SAuthenticate{Result: protocol.Fail[protocol.AuthPayload]("identity-lookup-failed")})
		return
	}

	if s.cfg.State.IsUserBanned(u.ID) {
		s.conn.Send(protocol.SAuthenticate{Result: protocol.Fail[protocol.AuthPayload]("user-banned")})
		return
	}

	rec, err := s.cfg.State.BindUser(s.id, u)
	if err != nil {
		s.conn.Send(protocol.SAuthenticate{Result: protocol.Fail[protocol.AuthPayload]("session-not-registered")})
		return
	}

	s.mu.Lock()
	s.authenticated = true
	s.userID = rec.ID
	s.mu.Unlock()

	var room *protocol.ClientRoomState
	if rec.RoomID != "" {
		if rm, ok := s.cfg.State.Room(rec.RoomID); ok {
			cs := rm.ClientRoomState(rec.ID)
			room = &cs
		}
	}

	s.conn.Send(protocol.SAuthenticate{Result: protocol.Ok(protocol.AuthPayload{
		User: protocol.UserInfo{ID: rec.ID, Name: rec.Name},
		Room: room,
	})})

	if s.cfg.WelcomeMessage != "" && rec.ID != s.cfg.PrivilegedUserID {
		conn := s.conn
		msg := s.cfg.WelcomeMessage
		go func() {
			time.Sleep(welcomeDelay)
			conn.Send(protocol.SMessage{Msg: protocol.MsgChat(0, msg)})
		}()
	}
}

func (s *Session) userRoom(userID int32) (*roomsvc.Room, bool) {
	u, ok := s.cfg.State.User(userID)
	if !ok || u.RoomID == "" {
		return nil, false
	}
	return s.cfg.State.Room(u.RoomID)
}

func (s *Session) handleChat(userID int32, c protocol.CmdChat) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SChat{Result: protocol.AckFail("not-in-room")})
		return
	}
	room.Chat(userID, c.Text)
	s.conn.Send(protocol.SChat{Result: protocol.Ack()})
}

func (s *Session) handleTouches(userID int32, c protocol.CmdTouches) {
	room, ok := s.userRoom(userID)
	if !ok {
		return
	}
	body := protocol.EncodeClientCommand(c)[1:]
	_ = room.Touches(userID, c.Frames, body)
}

func (s *Session) handleJudges(userID int32, c protocol.CmdJudges) {
	room, ok := s.userRoom(userID)
	if !ok {
		return
	}
	body := protocol.EncodeClientCommand(c)[1:]
	_ = room.Judges(userID, c.Events, body)
}

func (s *Session) handleCreateRoom(userID int32, c protocol.CmdCreateRoom) {
	if _, inRoom := s.userRoom(userID); inRoom {
		s.conn.Send(protocol.SCreateRoom{Result: protocol.AckFail("already-in-room")})
		return
	}

	id := c.RoomID
	if id == "0" {
		id = ""
	}
	room, err := s.cfg.State.CreateRoom(id)
	if err != nil {
		s.conn.Send(protocol.SCreateRoom{Result: protocol.AckFail(createRoomErrSlug(err))})
		return
	}

	name := s.userName(userID)
	if err := room.AddUser(roomsvc.Member{ID: userID, Name: name, Sender: s.conn}); err != nil {
		s.conn.Send(protocol.SCreateRoom{Result: protocol.AckFail(err.Error())})
		return
	}
	s.cfg.State.SetUserRoom(userID, room.ID())
	s.conn.Send(protocol.SCreateRoom{Result: protocol.Ack()})
}

func (s *Session) handleJoinRoom(userID int32, c protocol.CmdJoinRoom) {
	if _, inRoom := s.userRoom(userID); inRoom {
		s.conn.Send(protocol.SJoinRoom{Result: protocol.Fail[protocol.JoinRoomResponse]("already-in-room")})
		return
	}

	var room *roomsvc.Room
	if c.RoomID == "0" {
		r, ok := s.cfg.State.JoinRandomRoom()
		if !ok {
			s.conn.Send(protocol.SJoinRoom{Result: protocol.Fail[protocol.JoinRoomResponse]("no-room-available")})
			return
		}
		room = r
	} else {
		r, ok := s.cfg.State.Room(c.RoomID)
		if !ok {
			s.conn.Send(protocol.SJoinRoom{Result: protocol.Fail[protocol.JoinRoomResponse]("room-not-found")})
			return
		}
		room = r
	}

	if s.cfg.State.IsRoomBanned(room.ID(), userID) {
		s.conn.Send(protocol.SJoinRoom{Result: protocol.Fail[protocol.JoinRoomResponse]("room-banned")})
		return
	}

	name := s.userName(userID)
	if err := room.AddUser(roomsvc.Member{ID: userID, Name: name, Monitor: c.Monitor, Sender: s.conn}); err != nil {
		s.conn.Send(protocol.SJoinRoom{Result: protocol.Fail[protocol.JoinRoomResponse](err.Error())})
		return
	}
	s.cfg.State.SetUserRoom(userID, room.ID())

	crs := room.ClientRoomState(userID)
	users := make([]protocol.UserInfo, 0, len(crs.Users))
	for _, u := range crs.Users {
		users = append(users, u)
	}
	s.conn.Send(protocol.SJoinRoom{Result: protocol.Ok(protocol.JoinRoomResponse{
		State: crs.State, Users: users, Live: crs.Live,
	})})
}

func (s *Session) handleLeaveRoom(userID int32) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SLeaveRoom{Result: protocol.AckFail("not-in-room")})
		return
	}
	room.OnUserLeave(userID)
	s.cfg.State.ClearUserRoom(userID)
	s.conn.Send(protocol.SLeaveRoom{Result: protocol.Ack()})
}

func (s *Session) handleLockRoom(userID int32, c protocol.CmdLockRoom) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SLockRoom{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.LockRoom(userID, c.Lock); err != nil {
		s.conn.Send(protocol.SLockRoom{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SLockRoom{Result: protocol.Ack()})
}

func (s *Session) handleCycleRoom(userID int32, c protocol.CmdCycleRoom) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SCycleRoom{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.CycleRoom(userID, c.Cycle); err != nil {
		s.conn.Send(protocol.SCycleRoom{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SCycleRoom{Result: protocol.Ack()})
}

func (s *Session) handleSelectChart(userID int32, c protocol.CmdSelectChart) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SSelectChart{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.SelectChart(userID, c.ChartID); err != nil {
		s.conn.Send(protocol.SSelectChart{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SSelectChart{Result: protocol.Ack()})
}

func (s *Session) handleRequestStart(userID int32) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SRequestStart{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.RequestStart(userID); err != nil {
		s.conn.Send(protocol.SRequestStart{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SRequestStart{Result: protocol.Ack()})
}

func (s *Session) handleReady(userID int32) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SReady{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.Ready(userID); err != nil {
		s.conn.Send(protocol.SReady{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SReady{Result: protocol.Ack()})
}

func (s *Session) handleCancelReady(userID int32) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SCancelReady{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.CancelReady(userID); err != nil {
		s.conn.Send(protocol.SCancelReady{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SCancelReady{Result: protocol.Ack()})
}

func (s *Session) handlePlayed(userID int32, c protocol.CmdPlayed) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SPlayed{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.ValidateAndRecordPlay(userID, c.RecordID); err != nil {
		s.conn.Send(protocol.SPlayed{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SPlayed{Result: protocol.Ack()})
}

func (s *Session) handleAbort(userID int32) {
	room, ok := s.userRoom(userID)
	if !ok {
		s.conn.Send(protocol.SAbort{Result: protocol.AckFail("not-in-room")})
		return
	}
	if err := room.Abort(userID); err != nil {
		s.conn.Send(protocol.SAbort{Result: protocol.AckFail(err.Error())})
		return
	}
	s.conn.Send(protocol.SAbort{Result: protocol.Ack()})
}

func (s *Session) userName(userID int32) string {
	if u, ok := s.cfg.State.User(userID); ok {
		return u.Name
	}
	return ""
}

// createRoomErrSlug narrows serverstate's package-qualified error messages
// to the short slugs every other result failure already uses.
func createRoomErrSlug(err error) string {
	switch err {
	case serverstate.ErrRoomExists:
		return "room-exists"
	case serverstate.ErrRoomCreationDisabled:
		return "room-creation-disabled"
	default:
		return err.Error()
	}
}
