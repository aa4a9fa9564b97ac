package protocol

import (
	"reflect"
	"testing"

	"github.com/BennettNotFound/dotphira-mp/internal/wire"
)

func TestClientCommandRoundTrip(t *testing.T) {
	chart := int32(7)
	_ = chart
	cases := []ClientCommand{
		CmdPing{},
		CmdAuthenticate{Token: "abc123"},
		CmdChat{Text: "hello room"},
		CmdTouches{Frames: []TouchFrame{{Time: 1.5, Points: []TouchPoint{{PointerID: 2, X: 0.25, Y: -0.5}}}}},
		CmdJudges{Events: []JudgeEvent{{Time: 0.1, LineID: 3, NoteID: 9, Judgement: 2}}},
		CmdCreateRoom{RoomID: "0"},
		CmdJoinRoom{RoomID: "123456", Monitor: true},
		CmdLeaveRoom{},
		CmdLockRoom{Lock: true},
		CmdCycleRoom{Cycle: false},
		CmdSelectChart{ChartID: 100},
		CmdRequestStart{},
		CmdReady{},
		CmdCancelReady{},
		CmdPlayed{RecordID: 7},
		CmdAbort{},
	}
	for _, c := range cases {
		encoded := EncodeClientCommand(c)
		r := wire.NewReader(encoded)
		tag, err := r.Byte()
		if err != nil {
			t.Fatalf("%T: %v", c, err)
		}
		got, err := DecodeClientCommand(tag, r)
		if err != nil {
			t.Fatalf("%T: %v", c, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("%T: got %#v, want %#v", c, got, c)
		}
		if r.Len() != 0 {
			t.Fatalf("%T: %d leftover bytes", c, r.Len())
		}
	}
}

func TestServerCommandRoundTrip(t *testing.T) {
	chartID := int32(42)
	room := ClientRoomState{
		RoomID: "123456", State: StateSelectChart, Live: true, Locked: false, Cycle: true,
		IsHost: true, IsReady: false, Users: map[int32]UserInfo{1: {ID: 1, Name: "A", Monitor: false}},
		SelectedChartID: &chartID,
	}
	cases := []ServerCommand{
		SPong{},
		SAuthenticate{Ok(AuthPayload{User: UserInfo{ID: 1, Name: "A"}, Room: &room})},
		SAuthenticate{Fail[AuthPayload]("bad token")},
		SChat{Ack()},
		SChat{AckFail("not in room")},
		STouches{PlayerID: 1, Frames: []TouchFrame{{Time: 1, Points: []TouchPoint{{PointerID: 0, X: 1, Y: 1}}}}},
		SJudges{PlayerID: 1, Events: []JudgeEvent{{Time: 1, LineID: 2, NoteID: 3, Judgement: 4}}},
		SMessage{MsgChat(1, "hi")},
		SChangeState{State: StateSelectChart, ChartID: &chartID},
		SChangeState{State: StatePlaying},
		SChangeHost{IsHost: true},
		SCreateRoom{Ack()},
		SJoinRoom{Ok(JoinRoomResponse{State: StateSelectChart, Users: []UserInfo{{ID: 1, Name: "A"}}, Live: false})},
		SJoinRoom{Fail[JoinRoomResponse]("room locked")},
		SOnJoinRoom{User: UserInfo{ID: 2, Name: "B", Monitor: true}},
		SLeaveRoom{Ack()},
		SLockRoom{Ack()},
		SCycleRoom{Ack()},
		SSelectChart{AckFail("not host")},
		SRequestStart{Ack()},
		SReady{Ack()},
		SCancelReady{Ack()},
		SPlayed{Ack()},
		SAbort{Ack()},
	}
	for _, c := range cases {
		encoded := EncodeServerCommand(c)
		r := wire.NewReader(encoded)
		tag, err := r.Byte()
		if err != nil {
			t.Fatalf("%T: %v", c, err)
		}
		got, err := DecodeServerCommand(tag, r)
		if err != nil {
			t.Fatalf("%T: %v", c, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("%T: got %#v, want %#v", c, got, c)
		}
		if r.Len() != 0 {
			t.Fatalf("%T: %d leftover bytes", c, r.Len())
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	cases := []Message{
		MsgChat(1, "hi"),
		MsgCreateRoom(1),
		MsgJoinRoom(2, "B"),
		MsgLeaveRoom(2, "B"),
		MsgNewHost(2),
		MsgSelectChart(1, "Song", 100),
		MsgGameStart(1),
		MsgReady(2),
		MsgCancelReady(2),
		MsgCancelGame(1),
		MsgStartPlaying(),
		MsgPlayed(1, 7, 0.98, true),
		MsgGameEnd(),
		MsgAbort(2),
		MsgLockRoom(true),
		MsgCycleRoom(false),
	}
	for _, m := range cases {
		w := wire.NewWriter()
		encodeMessage(w, m)
		r := wire.NewReader(w.Bytes())
		got, err := decodeMessage(r)
		if err != nil {
			t.Fatalf("tag %d: %v", m.Tag, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("tag %d: got %#v, want %#v", m.Tag, got, m)
		}
	}
}

func TestUnknownTagIsFatal(t *testing.T) {
	r := wire.NewReader(nil)
	if _, err := DecodeClientCommand(255, r); err == nil {
		t.Fatal("expected error for unknown client tag")
	}
	if _, err := DecodeServerCommand(255, r); err == nil {
		t.Fatal("expected error for unknown server tag")
	}
}
