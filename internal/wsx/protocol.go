package wsx

import "github.com/BennettNotFound/dotphira-mp/internal/roomsvc"

// inboundMessage is a client->server WS control message. Only the fields
// relevant to Type are populated.
type inboundMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	Token  string `json:"token,omitempty"`
}

// outboundMessage is a server->client WS control message. Only the fields
// relevant to Type are populated.
type outboundMessage struct {
	Type    string             `json:"type"`
	RoomID  string             `json:"room_id,omitempty"`
	Message string             `json:"message,omitempty"`
	TS      int64              `json:"ts,omitempty"`
	Room    *roomsvc.Snapshot  `json:"room,omitempty"`
	Rooms   []roomsvc.Snapshot `json:"rooms,omitempty"`
}

const (
	inSubscribe        = "subscribe"
	inUnsubscribe      = "unsubscribe"
	inPing             = "ping"
	inAdminSubscribe   = "admin_subscribe"
	inAdminUnsubscribe = "admin_unsubscribe"
)

const (
	outSubscribed        = "subscribed"
	outUnsubscribed      = "unsubscribed"
	outPong              = "pong"
	outAdminSubscribed   = "admin_subscribed"
	outAdminUnsubscribed = "admin_unsubscribed"
	outError             = "error"
)
