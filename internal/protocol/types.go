// Package protocol implements the tagged binary command families exchanged
// on the game TCP connection: client-to-server commands, server-to-client
// commands, and the in-room broadcast Message union, plus their shared
// value types (UserInfo, RoomState, ClientRoomState, JoinRoomResponse).
//
// Every Encode/Decode pair round-trips: decode(encode(c)) == c for any value
// in the grammar, which is exercised directly by the table-driven tests
// beside each file.
package protocol

import "github.com/BennettNotFound/dotphira-mp/internal/wire"

// RoomState is the room lifecycle state as it appears on the wire.
type RoomState uint8

const (
	StateSelectChart RoomState = iota
	StateWaitingForReady
	StatePlaying
)

func (s RoomState) String() string {
	switch s {
	case StateSelectChart:
		return "SelectChart"
	case StateWaitingForReady:
		return "WaitingForReady"
	case StatePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// UserInfo is the public identity of a user as seen by other room members.
type UserInfo struct {
	ID      int32
	Name    string
	Monitor bool
}

func decodeUserInfo(r *wire.Reader) (UserInfo, error) {
	var u UserInfo
	id, err := r.I32()
	if err != nil {
		return u, err
	}
	name, err := r.String()
	if err != nil {
		return u, err
	}
	monitor, err := r.Bool()
	if err != nil {
		return u, err
	}
	return UserInfo{ID: id, Name: name, Monitor: monitor}, nil
}

func encodeUserInfo(w *wire.Writer, u UserInfo) {
	w.I32(u.ID)
	w.String(u.Name)
	w.Bool(u.Monitor)
}

// ClientRoomState is the room snapshot handed to a client on Authenticate
// or JoinRoom when it is already (or becomes) a room member.
type ClientRoomState struct {
	RoomID          string
	State           RoomState
	Live            bool
	Locked          bool
	Cycle           bool
	IsHost          bool
	IsReady         bool
	Users           map[int32]UserInfo
	SelectedChartID *int32
}

func decodeClientRoomState(r *wire.Reader) (ClientRoomState, error) {
	var c ClientRoomState
	roomID, err := r.String()
	if err != nil {
		return c, err
	}
	stateByte, err := r.Byte()
	if err != nil {
		return c, err
	}
	state := RoomState(stateByte)
	live, err := r.Bool()
	if err != nil {
		return c, err
	}
	locked, err := r.Bool()
	if err != nil {
		return c, err
	}
	cycle, err := r.Bool()
	if err != nil {
		return c, err
	}
	isHost, err := r.Bool()
	if err != nil {
		return c, err
	}
	isReady, err := r.Bool()
	if err != nil {
		return c, err
	}
	count, err := r.Uvarint()
	if err != nil {
		return c, err
	}
	users := make(map[int32]UserInfo, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.I32()
		if err != nil {
			return c, err
		}
		info, err := decodeUserInfo(r)
		if err != nil {
			return c, err
		}
		users[id] = info
	}
	chartID, err := r.OptionI32()
	if err != nil {
		return c, err
	}
	return ClientRoomState{
		RoomID: roomID, State: state, Live: live, Locked: locked, Cycle: cycle,
		IsHost: isHost, IsReady: isReady, Users: users, SelectedChartID: chartID,
	}, nil
}

func encodeClientRoomState(w *wire.Writer, c ClientRoomState) {
	w.String(c.RoomID)
	w.Byte(byte(c.State))
	w.Bool(c.Live)
	w.Bool(c.Locked)
	w.Bool(c.Cycle)
	w.Bool(c.IsHost)
	w.Bool(c.IsReady)
	w.Uvarint(uint32(len(c.Users)))
	for id, info := range c.Users {
		w.I32(id)
		encodeUserInfo(w, info)
	}
	w.OptionI32(c.SelectedChartID)
}

// JoinRoomResponse is returned to a client that successfully joins a room.
type JoinRoomResponse struct {
	State RoomState
	Users []UserInfo
	Live  bool
}

func decodeJoinRoomResponse(r *wire.Reader) (JoinRoomResponse, error) {
	var j JoinRoomResponse
	stateByte, err := r.Byte()
	if err != nil {
		return j, err
	}
	j.State = RoomState(stateByte)
	count, err := r.Uvarint()
	if err != nil {
		return j, err
	}
	j.Users = make([]UserInfo, count)
	for i := range j.Users {
		u, err := decodeUserInfo(r)
		if err != nil {
			return j, err
		}
		j.Users[i] = u
	}
	live, err := r.Bool()
	if err != nil {
		return j, err
	}
	j.Live = live
	return j, nil
}

func encodeJoinRoomResponse(w *wire.Writer, j JoinRoomResponse) {
	w.Byte(byte(j.State))
	w.Uvarint(uint32(len(j.Users)))
	for _, u := range j.Users {
		encodeUserInfo(w, u)
	}
	w.Bool(j.Live)
}

// Result is the wire result<T> envelope: a success flag, then either the
// success value or a UTF-8 error string.
type Result[T any] struct {
	OK    bool
	Value T
	Err   string
}

// Ok builds a successful Result.
func Ok[T any](v T) Result[T] { return Result[T]{OK: true, Value: v} }

// Fail builds a failed Result carrying reason.
func Fail[T any](reason string) Result[T] { return Result[T]{OK: false, Err: reason} }
