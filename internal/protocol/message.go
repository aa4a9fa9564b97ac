package protocol

import (
	"fmt"

	"github.com/BennettNotFound/dotphira-mp/internal/wire"
)

// Message tags identify the in-room broadcast event family (wrapped by
// SMessage on the wire).
const (
	MsgTagChat byte = iota
	MsgTagCreateRoom
	MsgTagJoinRoom
	MsgTagLeaveRoom
	MsgTagNewHost
	MsgTagSelectChart
	MsgTagGameStart
	MsgTagReady
	MsgTagCancelReady
	MsgTagCancelGame
	MsgTagStartPlaying
	MsgTagPlayed
	MsgTagGameEnd
	MsgTagAbort
	MsgTagLockRoom
	MsgTagCycleRoom
)

// Message is a room broadcast event: a chat line, a membership change, or a
// game-lifecycle notification, relayed to every current room member.
type Message struct {
	Tag byte

	UserID   int32  // Chat, CreateRoom, JoinRoom, LeaveRoom, NewHost, SelectChart, GameStart, Ready, CancelReady, CancelGame, Abort
	Text     string // Chat, JoinRoom (name), SelectChart (chart name), LeaveRoom (name)
	ChartID  int32  // SelectChart
	RecordID int32  // Played
	Score    float32 // Played: accuracy
	FullCombo bool  // Played
	Flag     bool   // LockRoom, CycleRoom
}

// MsgChat builds a Chat(userID, text) message.
func MsgChat(userID int32, text string) Message { return Message{Tag: MsgTagChat, UserID: userID, Text: text} }

// MsgCreateRoom builds a CreateRoom(userID) message.
func MsgCreateRoom(userID int32) Message { return Message{Tag: MsgTagCreateRoom, UserID: userID} }

// MsgJoinRoom builds a JoinRoom(userID, name) message.
func MsgJoinRoom(userID int32, name string) Message {
	return Message{Tag: MsgTagJoinRoom, UserID: userID, Text: name}
}

// MsgLeaveRoom builds a LeaveRoom(userID, name) message.
func MsgLeaveRoom(userID int32, name string) Message {
	return Message{Tag: MsgTagLeaveRoom, UserID: userID, Text: name}
}

// MsgNewHost builds a NewHost(userID) message.
func MsgNewHost(userID int32) Message { return Message{Tag: MsgTagNewHost, UserID: userID} }

// MsgSelectChart builds a SelectChart(userID, chartName, chartID) message.
func MsgSelectChart(userID int32, chartName string, chartID int32) Message {
	return Message{Tag: MsgTagSelectChart, UserID: userID, Text: chartName, ChartID: chartID}
}

// MsgGameStart builds a GameStart(hostID) message.
func MsgGameStart(hostID int32) Message { return Message{Tag: MsgTagGameStart, UserID: hostID} }

// MsgReady builds a Ready(userID) message.
func MsgReady(userID int32) Message { return Message{Tag: MsgTagReady, UserID: userID} }

// MsgCancelReady builds a CancelReady(userID) message.
func MsgCancelReady(userID int32) Message { return Message{Tag: MsgTagCancelReady, UserID: userID} }

// MsgCancelGame builds a CancelGame(hostID) message.
func MsgCancelGame(hostID int32) Message { return Message{Tag: MsgTagCancelGame, UserID: hostID} }

// MsgStartPlaying builds the payload-less StartPlaying message.
func MsgStartPlaying() Message { return Message{Tag: MsgTagStartPlaying} }

// MsgPlayed builds a Played(userID, recordID, accuracy, fullCombo) message.
func MsgPlayed(userID, recordID int32, accuracy float32, fullCombo bool) Message {
	return Message{Tag: MsgTagPlayed, UserID: userID, RecordID: recordID, Score: accuracy, FullCombo: fullCombo}
}

// MsgGameEnd builds the payload-less GameEnd message.
func MsgGameEnd() Message { return Message{Tag: MsgTagGameEnd} }

// MsgAbort builds an Abort(userID) message.
func MsgAbort(userID int32) Message { return Message{Tag: MsgTagAbort, UserID: userID} }

// MsgLockRoom builds a LockRoom(locked) message.
func MsgLockRoom(locked bool) Message { return Message{Tag: MsgTagLockRoom, Flag: locked} }

// MsgCycleRoom builds a CycleRoom(cycle) message.
func MsgCycleRoom(cycle bool) Message { return Message{Tag: MsgTagCycleRoom, Flag: cycle} }

func encodeMessage(w *wire.Writer, m Message) {
	w.Byte(m.Tag)
	switch m.Tag {
	case MsgTagChat:
		w.I32(m.UserID)
		w.String(m.Text)
	case MsgTagCreateRoom:
		w.I32(m.UserID)
	case MsgTagJoinRoom:
		w.I32(m.UserID)
		w.String(m.Text)
	case MsgTagLeaveRoom:
		w.I32(m.UserID)
		w.String(m.Text)
	case MsgTagNewHost:
		w.I32(m.UserID)
	case MsgTagSelectChart:
		w.I32(m.UserID)
		w.String(m.Text)
		w.I32(m.ChartID)
	case MsgTagGameStart:
		w.I32(m.UserID)
	case MsgTagReady:
		w.I32(m.UserID)
	case MsgTagCancelReady:
		w.I32(m.UserID)
	case MsgTagCancelGame:
		w.I32(m.UserID)
	case MsgTagStartPlaying:
	case MsgTagPlayed:
		w.I32(m.UserID)
		w.I32(m.RecordID)
		w.F32(m.Score)
		w.Bool(m.FullCombo)
	case MsgTagGameEnd:
	case MsgTagAbort:
		w.I32(m.UserID)
	case MsgTagLockRoom:
		w.Bool(m.Flag)
	case MsgTagCycleRoom:
		w.Bool(m.Flag)
	default:
		panic(fmt.Sprintf("protocol: unhandled message tag %d", m.Tag))
	}
}

func decodeMessage(r *wire.Reader) (Message, error) {
	tag, err := r.Byte()
	if err != nil {
		return Message{}, err
	}
	m := Message{Tag: tag}
	switch tag {
	case MsgTagChat:
		if m.UserID, err = r.I32(); err != nil {
			return m, err
		}
		m.Text, err = r.String()
	case MsgTagCreateRoom:
		m.UserID, err = r.I32()
	case MsgTagJoinRoom:
		if m.UserID, err = r.I32(); err != nil {
			return m, err
		}
		m.Text, err = r.String()
	case MsgTagLeaveRoom:
		if m.UserID, err = r.I32(); err != nil {
			return m, err
		}
		m.Text, err = r.String()
	case MsgTagNewHost:
		m.UserID, err = r.I32()
	case MsgTagSelectChart:
		if m.UserID, err = r.I32(); err != nil {
			return m, err
		}
		if m.Text, err = r.String(); err != nil {
			return m, err
		}
		m.ChartID, err = r.I32()
	case MsgTagGameStart:
		m.UserID, err = r.I32()
	case MsgTagReady:
		m.UserID, err = r.I32()
	case MsgTagCancelReady:
		m.UserID, err = r.I32()
	case MsgTagCancelGame:
		m.UserID, err = r.I32()
	case MsgTagStartPlaying:
	case MsgTagPlayed:
		if m.UserID, err = r.I32(); err != nil {
			return m, err
		}
		if m.RecordID, err = r.I32(); err != nil {
			return m, err
		}
		if m.Score, err = r.F32(); err != nil {
			return m, err
		}
		m.FullCombo, err = r.Bool()
	case MsgTagGameEnd:
	case MsgTagAbort:
		m.UserID, err = r.I32()
	case MsgTagLockRoom:
		m.Flag, err = r.Bool()
	case MsgTagCycleRoom:
		m.Flag, err = r.Bool()
	default:
		return m, fmt.Errorf("protocol: unknown message tag %d", tag)
	}
	return m, err
}
