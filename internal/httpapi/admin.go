package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/BennettNotFound/dotphira-mp/internal/serverstate"
	"github.com/BennettNotFound/dotphira-mp/internal/trust"
)

const adminReadonlyKey = "httpapi_admin_readonly"

// extractAdminToken reads the admin token from any of the three accepted
// carriers, in the order the spec lists them.
func extractAdminToken(c echo.Context) string {
	if t := c.QueryParam("token"); t != "" {
		return t
	}
	if t := c.Request().Header.Get("X-Admin-Token"); t != "" {
		return t
	}
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// requireAdmin gates every /admin/* route: it accepts the permanent admin
// token, the read-only view token (GET only), or a live OTP-issued temp
// token bound to the requesting IP.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := extractAdminToken(c)
		if token == "" {
			return fail(c, http.StatusUnauthorized, "missing-token")
		}

		if s.cfg.AdminToken != "" && token == s.cfg.AdminToken {
			c.Set(adminReadonlyKey, false)
			return next(c)
		}
		if s.cfg.ViewToken != "" && token == s.cfg.ViewToken {
			if c.Request().Method != http.MethodGet {
				return fail(c, http.StatusForbidden, "view-token-readonly")
			}
			c.Set(adminReadonlyKey, true)
			return next(c)
		}
		if s.cfg.Tokens != nil && s.cfg.Tokens.Validate(token, c.RealIP()) {
			c.Set(adminReadonlyKey, false)
			return next(c)
		}
		return fail(c, http.StatusUnauthorized, "invalid-token")
	}
}

func (s *Server) handleOtpRequest(c echo.Context) error {
	if s.cfg.AdminToken != "" {
		return fail(c, http.StatusForbidden, "otp-disabled")
	}
	ssid, otp, err := s.cfg.Otp.CreateOtpRequest()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "otp-issue-failed")
	}
	s.log.Info("admin otp issued, relay out of band", "ssid", ssid, "otp", otp)
	return ok(c, http.StatusOK, map[string]any{"ssid": ssid})
}

type otpVerifyRequest struct {
	Ssid string `json:"ssid"`
	Otp  string `json:"otp"`
}

func (s *Server) handleOtpVerify(c echo.Context) error {
	if s.cfg.AdminToken != "" {
		return fail(c, http.StatusForbidden, "otp-disabled")
	}
	var req otpVerifyRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	token, verified := s.cfg.Otp.VerifyOtp(req.Ssid, req.Otp, c.RealIP())
	if !verified {
		return fail(c, http.StatusUnauthorized, "invalid-otp")
	}
	return ok(c, http.StatusOK, map[string]any{"token": token, "expiresInMs": trust.TTLMillis()})
}

func (s *Server) handleAdminRooms(c echo.Context) error {
	snaps := s.cfg.State.AllRoomSnapshots()
	rooms := make([]roomView, 0, len(snaps))
	for _, snap := range snaps {
		rooms = append(rooms, roomViewFrom(snap))
	}
	return ok(c, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) roomOr404(c echo.Context) (*serverstate.State, string, bool) {
	id := c.Param("id")
	_, exists := s.cfg.State.Room(id)
	return s.cfg.State, id, exists
}

type maxUsersRequest struct {
	MaxUsers int `json:"maxUsers"`
}

func (s *Server) handleAdminRoomMaxUsers(c echo.Context) error {
	state, id, exists := s.roomOr404(c)
	if !exists {
		return fail(c, http.StatusNotFound, "room-not-found")
	}
	var req maxUsersRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	room, _ := state.Room(id)
	room.SetMaxPlayerCount(req.MaxUsers)
	return ok(c, http.StatusOK, nil)
}

func (s *Server) handleAdminRoomDisband(c echo.Context) error {
	id := c.Param("id")
	if err := s.cfg.State.DisbandRoom(id, "Room disbanded by administrator"); err != nil {
		return fail(c, http.StatusNotFound, "room-not-found")
	}
	return ok(c, http.StatusOK, nil)
}

type roomChatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleAdminRoomChat(c echo.Context) error {
	state, id, exists := s.roomOr404(c)
	if !exists {
		return fail(c, http.StatusNotFound, "room-not-found")
	}
	var req roomChatRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	if len(req.Message) > 200 {
		return fail(c, http.StatusBadRequest, "message-too-long")
	}
	room, _ := state.Room(id)
	room.Chat(0, req.Message)
	return ok(c, http.StatusOK, nil)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleAdminBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	s.cfg.State.BroadcastChat(req.Message)
	return ok(c, http.StatusOK, nil)
}

type featureToggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleReplayConfigGet(c echo.Context) error {
	return ok(c, http.StatusOK, map[string]any{"enabled": s.cfg.State.ReplayRecordingEnabled()})
}

func (s *Server) handleReplayConfigSet(c echo.Context) error {
	var req featureToggleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	s.cfg.State.SetReplayRecordingEnabled(req.Enabled)
	return ok(c, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (s *Server) handleRoomCreationConfigGet(c echo.Context) error {
	return ok(c, http.StatusOK, map[string]any{"enabled": s.cfg.State.RoomCreationEnabled()})
}

func (s *Server) handleRoomCreationConfigSet(c echo.Context) error {
	var req featureToggleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	s.cfg.State.SetRoomCreationEnabled(req.Enabled)
	return ok(c, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (s *Server) handleIPBlacklistList(c echo.Context) error {
	return ok(c, http.StatusOK, map[string]any{"ips": s.cfg.Blacklist.List()})
}

type ipRequest struct {
	IP string `json:"ip"`
}

func (s *Server) handleIPBlacklistRemove(c echo.Context) error {
	var req ipRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	s.cfg.Blacklist.Unban(req.IP)
	return ok(c, http.StatusOK, nil)
}

func (s *Server) handleIPBlacklistClear(c echo.Context) error {
	s.cfg.Blacklist.Clear()
	return ok(c, http.StatusOK, nil)
}

type adminUserView struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	RoomID   string `json:"roomId"`
}

func (s *Server) handleAdminUserGet(c echo.Context) error {
	id, err := parseUserID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid-user-id")
	}
	u, found := s.cfg.State.User(id)
	if !found {
		return fail(c, http.StatusNotFound, "user-not-found")
	}
	return ok(c, http.StatusOK, map[string]any{
		"user": adminUserView{ID: u.ID, Name: u.Name, Language: u.Language, RoomID: u.RoomID},
	})
}

type banUserRequest struct {
	UserID     int64 `json:"userId"`
	Banned     bool  `json:"banned"`
	Disconnect bool  `json:"disconnect"`
}

func (s *Server) handleAdminBanUser(c echo.Context) error {
	var req banUserRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	var err error
	if req.Banned {
		err = s.cfg.Bans.BanUser(req.UserID)
	} else {
		err = s.cfg.Bans.UnbanUser(req.UserID)
	}
	if err != nil {
		s.log.Error("admin ban-user persist failed", "user_id", req.UserID, "err", err)
	}
	if req.Banned && req.Disconnect {
		s.cfg.State.DisconnectUser(int32(req.UserID))
	}
	return ok(c, http.StatusOK, nil)
}

type banRoomRequest struct {
	UserID int64  `json:"userId"`
	RoomID string `json:"roomId"`
	Banned bool   `json:"banned"`
}

func (s *Server) handleAdminBanRoom(c echo.Context) error {
	var req banRoomRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	var err error
	if req.Banned {
		err = s.cfg.Bans.BanFromRoom(req.RoomID, req.UserID)
	} else {
		err = s.cfg.Bans.UnbanFromRoom(req.RoomID, req.UserID)
	}
	if err != nil {
		s.log.Error("admin ban-room persist failed", "user_id", req.UserID, "room_id", req.RoomID, "err", err)
	}
	return ok(c, http.StatusOK, nil)
}

func (s *Server) handleAdminUserDisconnect(c echo.Context) error {
	id, err := parseUserID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid-user-id")
	}
	disconnected := s.cfg.State.DisconnectUser(id)
	return ok(c, http.StatusOK, map[string]any{"disconnected": disconnected})
}

type moveUserRequest struct {
	RoomID  string `json:"roomId"`
	Monitor bool   `json:"monitor"`
}

func (s *Server) handleAdminUserMove(c echo.Context) error {
	id, err := parseUserID(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid-user-id")
	}
	var req moveUserRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	switch moveErr := s.cfg.State.MoveUser(id, req.RoomID, req.Monitor); moveErr {
	case nil:
		return ok(c, http.StatusOK, nil)
	case serverstate.ErrUserNotFound:
		return fail(c, http.StatusNotFound, "user-not-found")
	case serverstate.ErrRoomNotFound:
		return fail(c, http.StatusNotFound, "room-not-found")
	case serverstate.ErrUserStillConnected, serverstate.ErrTargetRoomUnavailable:
		return fail(c, http.StatusBadRequest, moveErr.Error())
	default:
		return fail(c, http.StatusBadRequest, "move-failed")
	}
}

type contestConfigRequest struct {
	Enabled   bool    `json:"enabled"`
	Whitelist []int64 `json:"whitelist"`
}

func (s *Server) handleContestConfig(c echo.Context) error {
	state, id, exists := s.roomOr404(c)
	if !exists {
		return fail(c, http.StatusNotFound, "room-not-found")
	}
	var req contestConfigRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	room, _ := state.Room(id)
	room.SetContestMode(req.Enabled, req.Whitelist)
	return ok(c, http.StatusOK, nil)
}

type contestWhitelistRequest struct {
	UserIDs []int64 `json:"userIds"`
}

func (s *Server) handleContestWhitelist(c echo.Context) error {
	state, id, exists := s.roomOr404(c)
	if !exists {
		return fail(c, http.StatusNotFound, "room-not-found")
	}
	var req contestWhitelistRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	room, _ := state.Room(id)
	room.SetWhitelist(req.UserIDs)
	return ok(c, http.StatusOK, nil)
}

type contestStartRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleContestStart(c echo.Context) error {
	state, id, exists := s.roomOr404(c)
	if !exists {
		return fail(c, http.StatusNotFound, "room-not-found")
	}
	var req contestStartRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	room, _ := state.Room(id)
	if err := room.StartGameManually(req.Force); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	return ok(c, http.StatusOK, nil)
}

func parseUserID(raw string) (int32, error) {
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}
