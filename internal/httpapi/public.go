package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/BennettNotFound/dotphira-mp/internal/roomsvc"
)

type playerView struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	IsMonitor bool   `json:"isMonitor"`
}

type roomView struct {
	ID              string       `json:"id"`
	State           string       `json:"state"`
	HostID          int32        `json:"hostId"`
	HostName        string       `json:"hostName"`
	PlayerCount     int          `json:"playerCount"`
	MonitorCount    int          `json:"monitorCount"`
	IsLocked        bool         `json:"isLocked"`
	IsCycle         bool         `json:"isCycle"`
	IsLive          bool         `json:"isLive"`
	IsRecruiting    bool         `json:"isRecruiting"`
	SelectedChartID *int32       `json:"selectedChartId,omitempty"`
	Players         []playerView `json:"players"`
}

// roomViewFrom builds the public /rooms and /admin/rooms projection of a
// snapshot. isRecruiting here is the room's raw recruiting flag, the same
// flavor of field as isLocked/isCycle — the capacity/lock-adjusted
// "currently joinable" computation (roomsvc.Room.IsRecruiting) needs the
// live Room, not a detached Snapshot, so it is not reproduced here.
func roomViewFrom(snap roomsvc.Snapshot) roomView {
	players := make([]playerView, 0, len(snap.Players)+len(snap.Monitors))
	for _, p := range snap.Players {
		players = append(players, playerView{ID: p.ID, Name: p.Name, IsMonitor: false})
	}
	for _, m := range snap.Monitors {
		players = append(players, playerView{ID: m.ID, Name: m.Name, IsMonitor: true})
	}
	return roomView{
		ID: snap.ID, State: snap.State.String(), HostID: snap.HostID, HostName: snap.HostName,
		PlayerCount: len(snap.Players), MonitorCount: len(snap.Monitors),
		IsLocked: snap.Locked, IsCycle: snap.Cycle, IsLive: snap.Live, IsRecruiting: snap.Recruiting,
		SelectedChartID: snap.SelectedChartID, Players: players,
	}
}

func (s *Server) handleRooms(c echo.Context) error {
	snaps := s.cfg.State.AllRoomSnapshots()
	rooms := make([]roomView, 0, len(snaps))
	for _, snap := range snaps {
		rooms = append(rooms, roomViewFrom(snap))
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(rooms), "rooms": rooms})
}

type hostRef struct {
	Name string `json:"name"`
	ID   int32  `json:"id"`
}

type chartRef struct {
	Name string `json:"name"`
	ID   int32  `json:"id"`
}

type playerRef struct {
	Name string `json:"name"`
	ID   int32  `json:"id"`
}

type roomDetail struct {
	RoomID  string      `json:"roomid"`
	Cycle   bool        `json:"cycle"`
	Lock    bool        `json:"lock"`
	Host    hostRef     `json:"host"`
	State   string      `json:"state"`
	Chart   *chartRef   `json:"chart"`
	Players []playerRef `json:"players"`
}

func (s *Server) handleRoom(c echo.Context) error {
	snaps := s.cfg.State.AllRoomSnapshots()
	rooms := make([]roomDetail, 0, len(snaps))
	for _, snap := range snaps {
		var chart *chartRef
		if snap.SelectedChartID != nil {
			name := ""
			if s.cfg.Identity != nil {
				name = s.cfg.Identity.FetchChart(context.Background(), *snap.SelectedChartID).Name
			}
			chart = &chartRef{ID: *snap.SelectedChartID, Name: name}
		}
		players := make([]playerRef, 0, len(snap.Players))
		for _, p := range snap.Players {
			players = append(players, playerRef{Name: p.Name, ID: p.ID})
		}
		rooms = append(rooms, roomDetail{
			RoomID: snap.ID, Cycle: snap.Cycle, Lock: snap.Locked,
			Host: hostRef{Name: snap.HostName, ID: snap.HostID},
			State: snap.State.String(), Chart: chart, Players: players,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"total": len(rooms), "rooms": rooms})
}

type statusResponse struct {
	ServerName   string `json:"serverName"`
	Version      string `json:"version"`
	Uptime       int64  `json:"uptime"`
	RoomCount    int    `json:"roomCount"`
	SessionCount int    `json:"sessionCount"`
	UserCount    int    `json:"userCount"`
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		ServerName:   s.cfg.ServerName,
		Version:      Version,
		Uptime:       int64(time.Since(s.startedAt).Seconds()),
		RoomCount:    s.cfg.State.RoomCount(),
		SessionCount: s.cfg.State.SessionCount(),
		UserCount:    s.cfg.State.UserCount(),
	})
}
