package roomsvc

import "errors"

// Authorization/state errors returned as a result.failure on the
// originating command; none of them close the session.
var (
	ErrNotHost          = errors.New("not-host")
	ErrWrongState       = errors.New("wrong-state")
	ErrNotInRoom        = errors.New("not-in-room")
	ErrAlreadyInRoom    = errors.New("already-in-room")
	ErrRoomLocked       = errors.New("room-locked")
	ErrRoomFull         = errors.New("room-full")
	ErrContestWhitelist = errors.New("contest-whitelist")
	ErrNoChartSelected  = errors.New("no-chart-selected")
	ErrUserBanned       = errors.New("user-banned")
)
