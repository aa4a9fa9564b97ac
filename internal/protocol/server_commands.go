package protocol

import (
	"fmt"

	"github.com/BennettNotFound/dotphira-mp/internal/wire"
)

// Server → client command tags, in their own tag space from the client
// commands.
const (
	STagPong byte = iota
	STagAuthenticate
	STagChat
	STagTouches
	STagJudges
	STagMessage
	STagChangeState
	STagChangeHost
	STagCreateRoom
	STagJoinRoom
	STagOnJoinRoom
	STagLeaveRoom
	STagLockRoom
	STagCycleRoom
	STagSelectChart
	STagRequestStart
	STagReady
	STagCancelReady
	STagPlayed
	STagAbort
)

// ServerCommand is any server → client command ready to be written to a
// connection's send queue.
type ServerCommand interface {
	ServerTag() byte
}

type SPong struct{}

// SAuthenticate carries the authenticated identity plus, if the user was
// already in a room, its current room snapshot.
type SAuthenticate struct {
	Result[AuthPayload]
}
type AuthPayload struct {
	User UserInfo
	Room *ClientRoomState
}

type SChat struct{ Result[struct{}] }
type STouches struct {
	PlayerID int32
	Frames   []TouchFrame
}
type SJudges struct {
	PlayerID int32
	Events   []JudgeEvent
}
type SMessage struct{ Msg Message }
type SChangeState struct {
	State   RoomState
	ChartID *int32 // only meaningful when State == StateSelectChart
}
type SChangeHost struct{ IsHost bool }
type SCreateRoom struct{ Result[struct{}] }
type SJoinRoom struct{ Result[JoinRoomResponse] }
type SOnJoinRoom struct{ User UserInfo }
type SLeaveRoom struct{ Result[struct{}] }
type SLockRoom struct{ Result[struct{}] }
type SCycleRoom struct{ Result[struct{}] }
type SSelectChart struct{ Result[struct{}] }
type SRequestStart struct{ Result[struct{}] }
type SReady struct{ Result[struct{}] }
type SCancelReady struct{ Result[struct{}] }
type SPlayed struct{ Result[struct{}] }
type SAbort struct{ Result[struct{}] }

func (SPong) ServerTag() byte         { return STagPong }
func (SAuthenticate) ServerTag() byte { return STagAuthenticate }
func (SChat) ServerTag() byte         { return STagChat }
func (STouches) ServerTag() byte      { return STagTouches }
func (SJudges) ServerTag() byte       { return STagJudges }
func (SMessage) ServerTag() byte      { return STagMessage }
func (SChangeState) ServerTag() byte  { return STagChangeState }
func (SChangeHost) ServerTag() byte   { return STagChangeHost }
func (SCreateRoom) ServerTag() byte   { return STagCreateRoom }
func (SJoinRoom) ServerTag() byte     { return STagJoinRoom }
func (SOnJoinRoom) ServerTag() byte   { return STagOnJoinRoom }
func (SLeaveRoom) ServerTag() byte    { return STagLeaveRoom }
func (SLockRoom) ServerTag() byte     { return STagLockRoom }
func (SCycleRoom) ServerTag() byte    { return STagCycleRoom }
func (SSelectChart) ServerTag() byte  { return STagSelectChart }
func (SRequestStart) ServerTag() byte { return STagRequestStart }
func (SReady) ServerTag() byte        { return STagReady }
func (SCancelReady) ServerTag() byte  { return STagCancelReady }
func (SPlayed) ServerTag() byte       { return STagPlayed }
func (SAbort) ServerTag() byte        { return STagAbort }

// Ack builds the common "no payload on success" result commands.
func Ack() Result[struct{}] { return Ok(struct{}{}) }

// AckFail builds the common "no payload on success" failed result.
func AckFail(reason string) Result[struct{}] { return Fail[struct{}](reason) }

func encodeEmptyResult(w *wire.Writer, r Result[struct{}]) {
	w.Bool(r.OK)
	if !r.OK {
		w.String(r.Err)
	}
}

// EncodeServerCommand writes tag + payload for c.
func EncodeServerCommand(c ServerCommand) []byte {
	w := wire.NewWriter()
	w.Byte(c.ServerTag())
	switch v := c.(type) {
	case SPong:
	case SAuthenticate:
		w.Bool(v.OK)
		if v.OK {
			encodeUserInfo(w, v.Value.User)
			w.Bool(v.Value.Room != nil)
			if v.Value.Room != nil {
				encodeClientRoomState(w, *v.Value.Room)
			}
		} else {
			w.String(v.Err)
		}
	case SChat:
		encodeEmptyResult(w, v.Result)
	case STouches:
		w.I32(v.PlayerID)
		w.Uvarint(uint32(len(v.Frames)))
		for _, f := range v.Frames {
			w.F32(f.Time)
			w.Uvarint(uint32(len(f.Points)))
			for _, p := range f.Points {
				w.I8(p.PointerID)
				w.F16(p.X)
				w.F16(p.Y)
			}
		}
	case SJudges:
		w.I32(v.PlayerID)
		w.Uvarint(uint32(len(v.Events)))
		for _, e := range v.Events {
			w.F32(e.Time)
			w.U32(e.LineID)
			w.U32(e.NoteID)
			w.U8(e.Judgement)
		}
	case SMessage:
		encodeMessage(w, v.Msg)
	case SChangeState:
		w.Byte(byte(v.State))
		if v.State == StateSelectChart {
			w.OptionI32(v.ChartID)
		}
	case SChangeHost:
		w.Bool(v.IsHost)
	case SCreateRoom:
		encodeEmptyResult(w, v.Result)
	case SJoinRoom:
		w.Bool(v.OK)
		if v.OK {
			w.Byte(byte(v.Value.State))
			w.Uvarint(uint32(len(v.Value.Users)))
			for _, u := range v.Value.Users {
				encodeUserInfo(w, u)
			}
			w.Bool(v.Value.Live)
		} else {
			w.String(v.Err)
		}
	case SOnJoinRoom:
		encodeUserInfo(w, v.User)
	case SLeaveRoom:
		encodeEmptyResult(w, v.Result)
	case SLockRoom:
		encodeEmptyResult(w, v.Result)
	case SCycleRoom:
		encodeEmptyResult(w, v.Result)
	case SSelectChart:
		encodeEmptyResult(w, v.Result)
	case SRequestStart:
		encodeEmptyResult(w, v.Result)
	case SReady:
		encodeEmptyResult(w, v.Result)
	case SCancelReady:
		encodeEmptyResult(w, v.Result)
	case SPlayed:
		encodeEmptyResult(w, v.Result)
	case SAbort:
		encodeEmptyResult(w, v.Result)
	default:
		panic(fmt.Sprintf("protocol: unhandled server command %T", c))
	}
	return w.Bytes()
}

// DecodeServerCommand decodes one server command, used by client-side test
// harnesses and the codec round-trip tests.
func DecodeServerCommand(tag byte, r *wire.Reader) (ServerCommand, error) {
	switch tag {
	case STagPong:
		return SPong{}, nil
	case STagAuthenticate:
		ok, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if !ok {
			s, err := r.String()
			return SAuthenticate{Fail[AuthPayload](s)}, err
		}
		u, err := decodeUserInfo(r)
		if err != nil {
			return nil, err
		}
		hasRoom, err := r.Bool()
		if err != nil {
			return nil, err
		}
		var room *ClientRoomState
		if hasRoom {
			c, err := decodeClientRoomState(r)
			if err != nil {
				return nil, err
			}
			room = &c
		}
		return SAuthenticate{Ok(AuthPayload{User: u, Room: room})}, nil
	case STagChat:
		res, err := decodeEmptyResult(r)
		return SChat{res}, err
	case STagTouches:
		pid, err := r.I32()
		if err != nil {
			return nil, err
		}
		n, err := r.Uvarint()
		if err != nil {
			return nil, err
		}
		frames := make([]TouchFrame, n)
		for i := range frames {
			t, err := r.F32()
			if err != nil {
				return nil, err
			}
			m, err := r.Uvarint()
			if err != nil {
				return nil, err
			}
			pts := make([]TouchPoint, m)
			for j := range pts {
				pointID, err := r.I8()
				if err != nil {
					return nil, err
				}
				x, err := r.F16()
				if err != nil {
					return nil, err
				}
				y, err := r.F16()
				if err != nil {
					return nil, err
				}
				pts[j] = TouchPoint{PointerID: pointID, X: x, Y: y}
			}
			frames[i] = TouchFrame{Time: t, Points: pts}
		}
		return STouches{PlayerID: pid, Frames: frames}, nil
	case STagJudges:
		pid, err := r.I32()
		if err != nil {
			return nil, err
		}
		n, err := r.Uvarint()
		if err != nil {
			return nil, err
		}
		events := make([]JudgeEvent, n)
		for i := range events {
			t, err := r.F32()
			if err != nil {
				return nil, err
			}
			lineID, err := r.U32()
			if err != nil {
				return nil, err
			}
			noteID, err := r.U32()
			if err != nil {
				return nil, err
			}
			j, err := r.U8()
			if err != nil {
				return nil, err
			}
			events[i] = JudgeEvent{Time: t, LineID: lineID, NoteID: noteID, Judgement: j}
		}
		return SJudges{PlayerID: pid, Events: events}, nil
	case STagMessage:
		m, err := decodeMessage(r)
		return SMessage{m}, err
	case STagChangeState:
		b, err := r.Byte()
		if err != nil {
			return nil, err
		}
		state := RoomState(b)
		var chartID *int32
		if state == StateSelectChart {
			chartID, err = r.OptionI32()
			if err != nil {
				return nil, err
			}
		}
		return SChangeState{State: state, ChartID: chartID}, nil
	case STagChangeHost:
		b, err := r.Bool()
		return SChangeHost{IsHost: b}, err
	case STagCreateRoom:
		res, err := decodeEmptyResult(r)
		return SCreateRoom{res}, err
	case STagJoinRoom:
		ok, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if !ok {
			s, err := r.String()
			return SJoinRoom{Fail[JoinRoomResponse](s)}, err
		}
		j, err := decodeJoinRoomResponse(r)
		return SJoinRoom{Ok(j)}, err
	case STagOnJoinRoom:
		u, err := decodeUserInfo(r)
		return SOnJoinRoom{User: u}, err
	case STagLeaveRoom:
		res, err := decodeEmptyResult(r)
		return SLeaveRoom{res}, err
	case STagLockRoom:
		res, err := decodeEmptyResult(r)
		return SLockRoom{res}, err
	case STagCycleRoom:
		res, err := decodeEmptyResult(r)
		return SCycleRoom{res}, err
	case STagSelectChart:
		res, err := decodeEmptyResult(r)
		return SSelectChart{res}, err
	case STagRequestStart:
		res, err := decodeEmptyResult(r)
		return SRequestStart{res}, err
	case STagReady:
		res, err := decodeEmptyResult(r)
		return SReady{res}, err
	case STagCancelReady:
		res, err := decodeEmptyResult(r)
		return SCancelReady{res}, err
	case STagPlayed:
		res, err := decodeEmptyResult(r)
		return SPlayed{res}, err
	case STagAbort:
		res, err := decodeEmptyResult(r)
		return SAbort{res}, err
	default:
		return nil, fmt.Errorf("protocol: unknown server command tag %d", tag)
	}
}

func decodeEmptyResult(r *wire.Reader) (Result[struct{}], error) {
	ok, err := r.Bool()
	if err != nil {
		return Result[struct{}]{}, err
	}
	if ok {
		return Ack(), nil
	}
	s, err := r.String()
	return AckFail(s), err
}
