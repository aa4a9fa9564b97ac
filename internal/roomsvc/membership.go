package roomsvc

import "github.com/BennettNotFound/dotphira-mp/internal/protocol"

// AddUser admits a user to the room. Monitors are always accepted (and mark
// the room live forever after); players are rejected when contest mode
// gates them out of the whitelist or the room is already full.
func (r *Room) AddUser(m Member) error {
	r.mu.Lock()

	if _, already := r.members[m.ID]; already {
		r.mu.Unlock()
		return ErrAlreadyInRoom
	}

	if m.Monitor {
		r.monitors[m.ID] = struct{}{}
		r.members[m.ID] = &m
		r.live = true
	} else {
		if r.locked {
			r.mu.Unlock()
			return ErrRoomLocked
		}
		if r.contestMode {
			if _, ok := r.whitelist[int64(m.ID)]; !ok {
				r.mu.Unlock()
				return ErrContestWhitelist
			}
		}
		if len(r.playerOrder) >= r.maxPlayerCount {
			r.mu.Unlock()
			return ErrRoomFull
		}
		if len(r.playerOrder) == 0 {
			r.hostID = m.ID
		}
		r.playerOrder = append(r.playerOrder, m.ID)
		r.members[m.ID] = &m
	}

	r.broadcast(protocol.MsgJoinRoom(m.ID, m.Name))
	for id := range r.members {
		if id != m.ID {
			r.send(id, protocol.SOnJoinRoom{User: protocol.UserInfo{ID: m.ID, Name: m.Name, Monitor: m.Monitor}})
		}
	}
	disband := r.evaluateReadinessLocked()
	r.mu.Unlock()

	r.notify()
	if disband {
		r.disbandAfterUnlock()
	}
	return nil
}

// OnUserLeave removes a user from the room, handling host succession and
// room destruction when the last player leaves. It must be called exactly
// once per departure (socket close, explicit LeaveRoom, or admin
// disconnect).
func (r *Room) OnUserLeave(userID int32) {
	r.mu.Lock()

	m, ok := r.members[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	wasHost := userID == r.hostID
	delete(r.members, userID)
	delete(r.monitors, userID)
	delete(r.ready, userID)
	delete(r.aborted, userID)
	if w, ok := r.replays[userID]; ok {
		_ = w.Close()
		delete(r.replays, userID)
	}

	if !m.Monitor {
		for i, id := range r.playerOrder {
			if id == userID {
				r.playerOrder = append(r.playerOrder[:i], r.playerOrder[i+1:]...)
				break
			}
		}
	}

	r.broadcast(protocol.MsgLeaveRoom(userID, m.Name))

	empty := len(r.playerOrder) == 0
	if wasHost && !empty {
		newHost := r.playerOrder[0]
		r.hostID = newHost
		r.send(newHost, protocol.SChangeHost{IsHost: true})
		r.broadcast(protocol.MsgNewHost(newHost))
	}
	disband := false
	if !empty {
		disband = r.evaluateReadinessLocked()
	}
	r.mu.Unlock()

	r.notify()
	if empty || disband {
		r.disbandAfterUnlock()
	}
}

// IsEmpty reports whether the room currently has no players (monitors
// alone do not keep a room alive against disbanding).
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.playerOrder) == 0
}

// PlayerCount reports the number of current players (not monitors).
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.playerOrder)
}

// IsRecruiting reports whether the room currently accepts random
// matchmaking joins.
func (r *Room) IsRecruiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recruiting && !r.locked && len(r.playerOrder) < r.maxPlayerCount
}
