// Package roomsvc implements the room state machine: membership, the
// SelectChart/WaitingForReady/Playing lifecycle, host succession, and
// cycle/contest modes. Every exported method that mutates a Room acquires
// its mutex for the full operation, matching the per-room mutual exclusion
// discipline the rest of the server depends on.
//
// This is the direct descendant of the teacher's Room (room.go): the
// connected-clients map guarded by one mutex survives, with broadcasts sent
// while that mutex is held so every recipient sees messages in transition
// order; membership and
// broadcast payloads are rebuilt around the chart-room lifecycle instead of
// a voice channel.
package roomsvc

import (
	"log/slog"
	"sync"

	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
)

// defaultMaxPlayerCount mirrors the value named in the room's specification
// verbatim.
const defaultMaxPlayerCount = 32678

// Sender is the minimal interface a room needs to deliver a command to one
// member; Session implements it over its Connection's send queue.
type Sender interface {
	Send(cmd protocol.ServerCommand)
}

// Member is one room occupant as seen by the room: identity plus a way to
// reach it.
type Member struct {
	ID      int32
	Name    string
	Monitor bool
	Sender  Sender
}

// PlayResult is one player's outcome for the current Playing cycle.
type PlayResult struct {
	RecordID  int32
	Accuracy  float32
	FullCombo bool
}

// ReplayWriter is the subset of the replay writer a room needs: appending
// raw command payloads as they arrive, patching in the server-assigned
// record id once Played arrives, and closing the file when the play ends.
type ReplayWriter interface {
	Append(tag byte, body []byte) error
	UpdateRecordID(id int32) error
	Close() error
}

// Hooks lets a Room reach back into the rest of the server without
// importing it, avoiding the cyclic reference between room state and the
// WebSocket push / replay / server-state layers (see DESIGN.md).
type Hooks struct {
	// Disband is invoked once, with the room lock released, when the room
	// should be removed from the registry (host left an empty room, or a
	// contest finalized). It must not call back into the room.
	Disband func(roomID string)
	// RoomUpdated is invoked after any membership/state change, for the WS
	// push layer's SendRoomUpdate.
	RoomUpdated func(roomID string)
	// RoomLog is invoked for a timestamped log line fanned out to WS
	// room-subscribers (SendRoomLog).
	RoomLog func(roomID, message string)
	// ResolveChartName resolves a chart id to a display name, degrading to
	// a fallback internally; never returns an error.
	ResolveChartName func(chartID int32) string
	// ReplayEnabled reports the current value of the replayRecordingEnabled
	// feature flag.
	ReplayEnabled func() bool
	// StartReplay opens a replay writer for userID/chartID; errors are
	// logged by the caller and do not block the transition.
	StartReplay func(userID, chartID int32) (ReplayWriter, error)
	// ValidateRecord fetches the external record and checks that it
	// belongs to userID, returning its accuracy/fullCombo.
	ValidateRecord func(userID, recordID int32) (accuracy float32, fullCombo bool, err error)
}

// Room is one coordination room: membership, lifecycle state, and the
// bookkeeping needed to move between SelectChart, WaitingForReady, and
// Playing.
type Room struct {
	mu  sync.Mutex
	log *slog.Logger

	id    string
	hooks Hooks

	playerOrder []int32
	monitors    map[int32]struct{}
	members     map[int32]*Member

	hostID          int32
	state           protocol.RoomState
	selectedChartID *int32

	locked      bool
	cycle       bool
	recruiting  bool
	live        bool
	contestMode bool
	whitelist   map[int64]struct{}

	maxPlayerCount int

	ready        map[int32]struct{}
	playResults  map[int32]PlayResult
	aborted      map[int32]struct{}
	replays      map[int32]ReplayWriter
}

// New constructs an empty room in SelectChart, recruiting by default
// (unlocked rooms accept random matchmaking joins until explicitly locked).
func New(id string, hooks Hooks, log *slog.Logger) *Room {
	return &Room{
		log:            log,
		id:             id,
		hooks:          hooks,
		monitors:       make(map[int32]struct{}),
		members:        make(map[int32]*Member),
		state:          protocol.StateSelectChart,
		recruiting:     true,
		maxPlayerCount: defaultMaxPlayerCount,
		whitelist:      make(map[int64]struct{}),
		ready:          make(map[int32]struct{}),
		playResults:    make(map[int32]PlayResult),
		aborted:        make(map[int32]struct{}),
		replays:        make(map[int32]ReplayWriter),
	}
}

// ID returns the room's identity.
func (r *Room) ID() string { return r.id }

// notify invokes the RoomUpdated hook. Callers must NOT hold r.mu: the hook
// commonly turns around and calls Snapshot/ClientRoomState, which would
// deadlock against a held lock.
func (r *Room) notify() {
	if r.hooks.RoomUpdated != nil {
		r.hooks.RoomUpdated(r.id)
	}
}

// broadcast fans out msg to every current player and monitor. Called with
// the room lock held so recipients observe events in transition order.
func (r *Room) broadcast(msg protocol.Message) {
	cmd := protocol.SMessage{Msg: msg}
	for _, m := range r.members {
		m.Sender.Send(cmd)
	}
}

func (r *Room) send(userID int32, cmd protocol.ServerCommand) {
	if m, ok := r.members[userID]; ok {
		m.Sender.Send(cmd)
	}
}

// Snapshot is a read-only, lock-free-to-the-caller view of room state for
// HTTP/WS projections. It copies enough to be safe to hold after the lock
// is released.
type Snapshot struct {
	ID              string              `json:"id"`
	State           protocol.RoomState  `json:"state"`
	HostID          int32               `json:"hostId"`
	HostName        string              `json:"hostName"`
	Players         []protocol.UserInfo `json:"players"`
	Monitors        []protocol.UserInfo `json:"monitors"`
	Locked          bool                `json:"locked"`
	Cycle           bool                `json:"cycle"`
	Recruiting      bool                `json:"recruiting"`
	Live            bool                `json:"live"`
	ContestMode     bool                `json:"contestMode"`
	SelectedChartID *int32              `json:"selectedChartId,omitempty"`
}

// Snapshot copies the room's current state under lock.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{
		ID: r.id, State: r.state, HostID: r.hostID,
		Locked: r.locked, Cycle: r.cycle, Recruiting: r.recruiting,
		Live: r.live, ContestMode: r.contestMode, SelectedChartID: r.selectedChartID,
	}
	if host, ok := r.members[r.hostID]; ok {
		s.HostName = host.Name
	}
	for _, id := range r.playerOrder {
		if m, ok := r.members[id]; ok {
			s.Players = append(s.Players, protocol.UserInfo{ID: id, Name: m.Name, Monitor: false})
		}
	}
	for id := range r.monitors {
		if m, ok := r.members[id]; ok {
			s.Monitors = append(s.Monitors, protocol.UserInfo{ID: id, Name: m.Name, Monitor: true})
		}
	}
	return s
}

// ClientRoomState builds the snapshot sent to a specific member (used on
// Authenticate re-bind and JoinRoom).
func (r *Room) ClientRoomState(forUserID int32) protocol.ClientRoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientRoomStateLocked(forUserID)
}

func (r *Room) clientRoomStateLocked(forUserID int32) protocol.ClientRoomState {
	users := make(map[int32]protocol.UserInfo, len(r.members))
	for id, m := range r.members {
		users[id] = protocol.UserInfo{ID: id, Name: m.Name, Monitor: m.Monitor}
	}
	_, ready := r.ready[forUserID]
	return protocol.ClientRoomState{
		RoomID: r.id, State: r.state, Live: r.live, Locked: r.locked, Cycle: r.cycle,
		IsHost: forUserID == r.hostID, IsReady: ready, Users: users,
		SelectedChartID: r.selectedChartID,
	}
}
