package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/BennettNotFound/dotphira-mp/internal/replay"
)

// replayThrottleBytesPerSec caps how fast a replay file streams to a caller,
// the same throttle the teacher applies to recording downloads in api.go.
const replayThrottleBytesPerSec = 50 * 1024

type replayAuthRequest struct {
	Token string `json:"token"`
}

type replayChartView struct {
	ChartID int32            `json:"chartId"`
	Plays   []replayPlayView `json:"plays"`
}

type replayPlayView struct {
	Timestamp int64 `json:"timestamp"`
	Size      int64 `json:"size"`
}

func (s *Server) handleReplayAuth(c echo.Context) error {
	var req replayAuthRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	user, err := s.cfg.Identity.FetchUser(context.Background(), req.Token)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "invalid-identity-token")
	}

	files, err := replay.List(s.cfg.ReplayBasePath, user.ID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "list-failed")
	}

	byChart := make(map[int32][]replayPlayView)
	for _, f := range files {
		byChart[f.ChartID] = append(byChart[f.ChartID], replayPlayView{Timestamp: f.Timestamp, Size: f.Size})
	}
	charts := make([]replayChartView, 0, len(byChart))
	for chartID, plays := range byChart {
		charts = append(charts, replayChartView{ChartID: chartID, Plays: plays})
	}

	sessionToken := s.cfg.ReplaySessions.Issue(user.ID)
	return ok(c, http.StatusOK, map[string]any{
		"sessionToken": sessionToken,
		"expiresInMs":  int64(replay.SessionTokenTTL / 1e6),
		"charts":       charts,
	})
}

func (s *Server) validateReplaySession(c echo.Context) (int32, bool) {
	token := c.QueryParam("sessionToken")
	if token == "" {
		token = c.FormValue("sessionToken")
	}
	return s.cfg.ReplaySessions.Validate(token)
}

func (s *Server) handleReplayDownload(c echo.Context) error {
	userID, valid := s.validateReplaySession(c)
	if !valid {
		return fail(c, http.StatusUnauthorized, "invalid-session-token")
	}
	chartID, err := strconv.ParseInt(c.QueryParam("chartId"), 10, 32)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid-chart-id")
	}
	timestamp, err := strconv.ParseInt(c.QueryParam("timestamp"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid-timestamp")
	}

	path := replay.Path(s.cfg.ReplayBasePath, userID, int32(chartID), timestamp)
	f, err := os.Open(path)
	if err != nil {
		return fail(c, http.StatusNotFound, "replay-not-found")
	}
	defer f.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/octet-stream")
	resp.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%d.phirarec", timestamp))
	resp.WriteHeader(http.StatusOK)

	limiter := rate.NewLimiter(rate.Limit(replayThrottleBytesPerSec), replayThrottleBytesPerSec)
	return throttledCopy(c.Request().Context(), resp, f, limiter)
}

type replayDeleteRequest struct {
	SessionToken string `json:"sessionToken"`
	ChartID      int32  `json:"chartId"`
	Timestamp    int64  `json:"timestamp"`
}

func (s *Server) handleReplayDelete(c echo.Context) error {
	var req replayDeleteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid-body")
	}
	userID, valid := s.cfg.ReplaySessions.Validate(req.SessionToken)
	if !valid {
		return fail(c, http.StatusUnauthorized, "invalid-session-token")
	}
	if err := replay.Delete(s.cfg.ReplayBasePath, userID, req.ChartID, req.Timestamp); err != nil {
		return fail(c, http.StatusNotFound, "replay-not-found")
	}
	return ok(c, http.StatusOK, nil)
}

// throttledCopy streams src to dst in chunks gated by limiter, the same
// token-bucket shape golang.org/x/time/rate applies to inbound session
// commands elsewhere in this service, here rationed in bytes instead of
// messages.
func throttledCopy(ctx context.Context, dst io.Writer, src io.Reader, limiter *rate.Limiter) error {
	buf := make([]byte, 8*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := limiter.WaitN(ctx, n); err != nil {
				return err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
