// Admin-surface operations: counters and mutations reachable only through
// internal/httpapi's authenticated /admin/* routes. Kept separate from
// state.go's session/room bookkeeping to keep that file's story (what every
// session touches) free of operations only an operator ever calls.
package serverstate

import (
	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
)

// SessionCount reports the number of currently registered connections
// (authenticated or not).
func (s *State) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RoomCount reports the number of live rooms.
func (s *State) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// UserCount reports the number of users ever bound in this process's
// lifetime (including the distinguished system user), not just those with a
// live session.
func (s *State) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// DisconnectUser closes userID's live session, if any, which triggers the
// usual connection-lost cleanup (HandleDisconnect) on that session's own
// goroutine. Reports whether a live session was found.
func (s *State) DisconnectUser(userID int32) bool {
	s.mu.Lock()
	var handle SessionHandle
	if sessID, ok := s.userSession[userID]; ok {
		if entry, ok := s.sessions[sessID]; ok {
			handle = entry.handle
		}
	}
	s.mu.Unlock()

	if handle == nil {
		return false
	}
	handle.Close()
	return true
}

// MoveUser repairs a disconnected user's room assignment directly, without
// going through AddUser/OnUserLeave (there is no live Sender to add to the
// target room's membership map until the user reconnects and authenticates
// again, at which point Session.authenticate resolves the room it finds
// here). Refuses to touch a user with a live session, and refuses a target
// room that is not accepting new players.
func (s *State) MoveUser(userID int32, roomID string, monitor bool) error {
	s.mu.Lock()
	if _, connected := s.userSession[userID]; connected {
		s.mu.Unlock()
		return ErrUserStillConnected
	}
	if _, ok := s.users[userID]; !ok {
		s.mu.Unlock()
		return ErrUserNotFound
	}
	room, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return ErrRoomNotFound
	}

	if !monitor {
		snap := room.Snapshot()
		if snap.State != protocol.StateSelectChart || room.PlayerCount() >= room.MaxPlayerCount() {
			return ErrTargetRoomUnavailable
		}
	}

	s.mu.Lock()
	if u, ok := s.users[userID]; ok {
		u.RoomID = roomID
		s.users[userID] = u
	}
	s.mu.Unlock()
	s.log.Info("admin moved disconnected user", "user_id", userID, "room_id", roomID, "monitor", monitor)
	return nil
}

// DisbandRoom tears a room down administratively: every current member is
// told why (if message is non-empty) and dropped from the registry, and
// their room assignment is cleared so a future reconnect doesn't resolve a
// room that no longer exists.
func (s *State) DisbandRoom(roomID, message string) error {
	room, ok := s.Room(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	memberIDs := room.Disband(message)

	s.mu.Lock()
	for _, id := range memberIDs {
		if u, ok := s.users[id]; ok {
			u.RoomID = ""
			s.users[id] = u
		}
	}
	s.mu.Unlock()
	return nil
}

// BroadcastChat announces message as a system chat line in every live room.
// There is no lobby for a connection that hasn't joined a room yet, so a
// server-wide broadcast's natural reach in this domain is every room
// currently in play.
func (s *State) BroadcastChat(message string) {
	s.mu.Lock()
	rooms := make([]*roomsvc.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	for _, r := range rooms {
		r.Chat(systemUserID, message)
	}
}
