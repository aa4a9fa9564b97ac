package roomsvc

import (
	"fmt"

	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
)

const contestDisbandMessage = "房间已被管理员解散:比赛已结束"

// Chat relays a chat line from userID to every room member. Any member may
// chat regardless of host status.
func (r *Room) Chat(userID int32, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast(protocol.MsgChat(userID, text))
}

// Touches relays a batch of touch frames from userID to every other room
// member (players and monitors alike watch each other play) and, if a
// replay writer is active for userID, appends the raw payload to it.
func (r *Room) Touches(userID int32, frames []protocol.TouchFrame, rawBody []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[userID]; !ok {
		return ErrNotInRoom
	}
	cmd := protocol.STouches{PlayerID: userID, Frames: frames}
	for id, m := range r.members {
		if id != userID {
			m.Sender.Send(cmd)
		}
	}
	if w, ok := r.replays[userID]; ok {
		if err := w.Append(protocol.CTagTouches, rawBody); err != nil && r.log != nil {
			r.log.Warn("append touches to replay failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

// Judges relays a batch of judgement events from userID to every other room
// member and appends the raw payload to userID's active replay writer, if
// any.
func (r *Room) Judges(userID int32, events []protocol.JudgeEvent, rawBody []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[userID]; !ok {
		return ErrNotInRoom
	}
	cmd := protocol.SJudges{PlayerID: userID, Events: events}
	for id, m := range r.members {
		if id != userID {
			m.Sender.Send(cmd)
		}
	}
	if w, ok := r.replays[userID]; ok {
		if err := w.Append(protocol.CTagJudges, rawBody); err != nil && r.log != nil {
			r.log.Warn("append judges to replay failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

func (r *Room) requireHost(userID int32) error {
	if userID != r.hostID {
		return ErrNotHost
	}
	return nil
}

// LockRoom toggles the lock flag; only the host may call it. Locking always
// clears recruiting (invariant: locked ⇒ ¬recruiting); unlocking restores
// recruiting outside contest mode.
func (r *Room) LockRoom(userID int32, lock bool) error {
	r.mu.Lock()
	if err := r.requireHost(userID); err != nil {
		r.mu.Unlock()
		return err
	}
	r.locked = lock
	r.recruiting = !lock && !r.contestMode
	r.broadcast(protocol.MsgLockRoom(lock))
	r.mu.Unlock()

	r.notify()
	return nil
}

// CycleRoom toggles host-rotation-on-game-end; only the host may call it.
func (r *Room) CycleRoom(userID int32, cycle bool) error {
	r.mu.Lock()
	if err := r.requireHost(userID); err != nil {
		r.mu.Unlock()
		return err
	}
	r.cycle = cycle
	r.broadcast(protocol.MsgCycleRoom(cycle))
	r.mu.Unlock()

	r.notify()
	return nil
}

// SelectChart sets the room's chart; only the host may call it, and only in
// SelectChart state. The chart-name lookup is an outbound HTTP call, so it
// runs with the room lock released per the external-HTTP design note, then
// the lock is reacquired to apply and broadcast the selection.
func (r *Room) SelectChart(userID, chartID int32) error {
	r.mu.Lock()
	if err := r.requireHost(userID); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.state != protocol.StateSelectChart {
		r.mu.Unlock()
		return ErrWrongState
	}
	resolve := r.hooks.ResolveChartName
	r.mu.Unlock()

	name := ""
	if resolve != nil {
		name = resolve(chartID)
	}

	r.mu.Lock()
	// Re-check: the room may have left SelectChart or lost its host while
	// the lock was released for the chart lookup.
	if r.state != protocol.StateSelectChart || userID != r.hostID {
		r.mu.Unlock()
		return ErrWrongState
	}
	id := chartID
	r.selectedChartID = &id
	r.broadcast(protocol.MsgSelectChart(userID, name, chartID))
	r.mu.Unlock()

	r.notify()
	return nil
}

func (r *Room) broadcastChangeState() {
	cmd := protocol.SChangeState{State: r.state}
	if r.state == protocol.StateSelectChart {
		cmd.ChartID = r.selectedChartID
	}
	for _, m := range r.members {
		m.Sender.Send(cmd)
	}
}

// RequestStart moves the room from SelectChart to WaitingForReady; only the
// host may call it, and a chart must already be selected.
func (r *Room) RequestStart(userID int32) error {
	r.mu.Lock()
	if err := r.requireHost(userID); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.state != protocol.StateSelectChart {
		r.mu.Unlock()
		return ErrWrongState
	}
	if r.selectedChartID == nil {
		r.mu.Unlock()
		return ErrNoChartSelected
	}
	r.ready[userID] = struct{}{}
	r.broadcast(protocol.MsgGameStart(userID))
	r.state = protocol.StateWaitingForReady
	r.broadcastChangeState()
	disband := r.evaluateReadinessLocked()
	r.mu.Unlock()

	r.notify()
	if disband {
		r.disbandAfterUnlock()
	}
	return nil
}

// Ready marks userID ready while WaitingForReady.
func (r *Room) Ready(userID int32) error {
	r.mu.Lock()
	if r.state != protocol.StateWaitingForReady {
		r.mu.Unlock()
		return ErrWrongState
	}
	if _, ok := r.members[userID]; !ok {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	r.ready[userID] = struct{}{}
	r.broadcast(protocol.MsgReady(userID))
	disband := r.evaluateReadinessLocked()
	r.mu.Unlock()

	r.notify()
	if disband {
		r.disbandAfterUnlock()
	}
	return nil
}

// CancelReady either cancels the whole ready-up (host) or withdraws one
// player's readiness (non-host).
func (r *Room) CancelReady(userID int32) error {
	r.mu.Lock()
	if r.state != protocol.StateWaitingForReady {
		r.mu.Unlock()
		return ErrWrongState
	}
	if userID == r.hostID {
		r.ready = make(map[int32]struct{})
		r.broadcast(protocol.MsgCancelGame(userID))
		r.state = protocol.StateSelectChart
		r.broadcastChangeState()
	} else {
		delete(r.ready, userID)
		r.broadcast(protocol.MsgCancelReady(userID))
	}
	r.mu.Unlock()

	r.notify()
	return nil
}

// evaluateReadinessLocked auto-starts the game when every current member is
// ready and contest mode is off. Must be called with the lock held. It
// returns true if beginning play immediately finished and disbanded a
// contest room (possible only with zero-length plays, kept for symmetry
// with evaluateCompletionLocked's contract).
func (r *Room) evaluateReadinessLocked() bool {
	if r.state != protocol.StateWaitingForReady || r.contestMode {
		return false
	}
	if len(r.members) == 0 {
		return false
	}
	for id := range r.members {
		if _, ok := r.ready[id]; !ok {
			return false
		}
	}
	r.beginPlayingLocked()
	return r.evaluateCompletionLocked()
}

// StartGameManually is the admin-forced transition into Playing. When force
// is false it still requires every member ready.
func (r *Room) StartGameManually(force bool) error {
	r.mu.Lock()
	if r.state != protocol.StateWaitingForReady {
		r.mu.Unlock()
		return ErrWrongState
	}
	if !force {
		for id := range r.members {
			if _, ok := r.ready[id]; !ok {
				r.mu.Unlock()
				return ErrWrongState
			}
		}
	}
	r.beginPlayingLocked()
	disband := r.evaluateCompletionLocked()
	r.mu.Unlock()

	r.notify()
	if disband {
		r.disbandAfterUnlock()
	}
	return nil
}

// beginPlayingLocked performs the WaitingForReady -> Playing transition.
// Must be called with the lock held.
func (r *Room) beginPlayingLocked() {
	r.playResults = make(map[int32]PlayResult)
	r.aborted = make(map[int32]struct{})

	replayOn := r.hooks.ReplayEnabled != nil && r.hooks.ReplayEnabled()
	if replayOn && r.selectedChartID != nil {
		for _, pid := range r.playerOrder {
			if r.hooks.StartReplay == nil {
				continue
			}
			w, err := r.hooks.StartReplay(pid, *r.selectedChartID)
			if err != nil {
				if r.log != nil {
					r.log.Warn("start replay failed", "user_id", pid, "err", err)
				}
				continue
			}
			r.replays[pid] = w
		}
	}

	r.broadcast(protocol.MsgStartPlaying())
	r.state = protocol.StatePlaying
	r.broadcastChangeState()
}

// Played records a player's completed result, validated by the caller
// before the lock is (re)acquired per the external-HTTP design note.
func (r *Room) Played(userID, recordID int32, accuracy float32, fullCombo bool) error {
	r.mu.Lock()
	if r.state != protocol.StatePlaying {
		r.mu.Unlock()
		return ErrWrongState
	}
	if _, isPlayer := r.members[userID]; !isPlayer {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	r.playResults[userID] = PlayResult{RecordID: recordID, Accuracy: accuracy, FullCombo: fullCombo}
	if w, ok := r.replays[userID]; ok {
		if err := w.UpdateRecordID(recordID); err != nil && r.log != nil {
			r.log.Warn("update replay record id failed", "user_id", userID, "err", err)
		}
	}
	r.broadcast(protocol.MsgPlayed(userID, recordID, accuracy, fullCombo))
	disband := r.evaluateCompletionLocked()
	r.mu.Unlock()

	r.notify()
	if disband {
		r.disbandAfterUnlock()
	}
	return nil
}

// ValidateAndRecordPlay resolves recordID through the ValidateRecord hook
// (the external record lookup, which also confirms the record belongs to
// userID) and, on success, records it exactly as Played. Session uses this
// instead of calling Played directly so the external-HTTP round trip runs
// with no room lock held.
func (r *Room) ValidateAndRecordPlay(userID, recordID int32) error {
	r.mu.Lock()
	validate := r.hooks.ValidateRecord
	r.mu.Unlock()
	if validate == nil {
		return fmt.Errorf("roomsvc: no record validator configured")
	}
	accuracy, fullCombo, err := validate(userID, recordID)
	if err != nil {
		return err
	}
	return r.Played(userID, recordID, accuracy, fullCombo)
}

// Abort marks userID as having aborted the current play.
func (r *Room) Abort(userID int32) error {
	r.mu.Lock()
	if r.state != protocol.StatePlaying {
		r.mu.Unlock()
		return ErrWrongState
	}
	if _, isPlayer := r.members[userID]; !isPlayer {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	r.aborted[userID] = struct{}{}
	r.broadcast(protocol.MsgAbort(userID))
	disband := r.evaluateCompletionLocked()
	r.mu.Unlock()

	r.notify()
	if disband {
		r.disbandAfterUnlock()
	}
	return nil
}

// evaluateCompletionLocked moves Playing -> SelectChart once every player
// has either a result or an abort recorded, returning true if that
// transition disbanded the room (contest mode). Must be called with the
// lock held.
func (r *Room) evaluateCompletionLocked() bool {
	if r.state != protocol.StatePlaying {
		return false
	}
	for _, pid := range r.playerOrder {
		_, played := r.playResults[pid]
		_, aborted := r.aborted[pid]
		if !played && !aborted {
			return false
		}
	}
	return r.endPlayingLocked()
}

// endPlayingLocked performs the Playing -> SelectChart transition,
// including contest disbanding and cycle-mode host rotation. Must be called
// with the lock held; returns true iff the room should be disbanded by the
// caller once the lock is released (disbandAfterUnlock).
func (r *Room) endPlayingLocked() bool {
	for id, w := range r.replays {
		_ = w.Close()
		delete(r.replays, id)
	}
	r.broadcast(protocol.MsgGameEnd())

	if r.contestMode {
		if r.log != nil {
			r.log.Info("contest room finished, disbanding", "room_id", r.id)
		}
		r.broadcast(protocol.MsgChat(0, contestDisbandMessage))
		return true
	}

	r.ready = make(map[int32]struct{})
	r.playResults = make(map[int32]PlayResult)
	r.aborted = make(map[int32]struct{})
	if r.cycle && len(r.playerOrder) >= 2 {
		oldHost := r.hostID
		idx := 0
		for i, id := range r.playerOrder {
			if id == oldHost {
				idx = i
				break
			}
		}
		newHost := r.playerOrder[(idx+1)%len(r.playerOrder)]
		r.hostID = newHost
		r.send(oldHost, protocol.SChangeHost{IsHost: false})
		r.send(newHost, protocol.SChangeHost{IsHost: true})
		r.broadcast(protocol.MsgNewHost(newHost))
	}
	r.state = protocol.StateSelectChart
	r.broadcastChangeState()
	return false
}

// Disband is the admin-forced teardown: it announces message to every
// current member (if non-empty), then invokes the Disband hook exactly as
// a contest room's natural end-of-play disband does. Returns the ids of
// every member that was in the room so the caller can clear their room
// assignment in the user table.
func (r *Room) Disband(message string) []int32 {
	r.mu.Lock()
	if message != "" {
		r.broadcast(protocol.MsgChat(0, message))
	}
	ids := make([]int32, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.disbandAfterUnlock()
	return ids
}

// disbandAfterUnlock invokes the Disband hook; callers must not hold r.mu.
func (r *Room) disbandAfterUnlock() {
	if r.hooks.Disband != nil {
		r.hooks.Disband(r.id)
	}
}
