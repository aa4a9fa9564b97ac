// Package httpapi implements the public and admin HTTP JSON API, plus the
// replay download/delete surface, all as Echo routes on the same port as the
// game TCP listener's sibling HTTP service.
//
// The shape is the teacher's internal/httpapi/server.go almost directly:
// an Echo app with middleware.Recover() and an slog request logger,
// registerRoutes grouping endpoints, and a Run that blocks on ctx and
// Shutdowns with a bounded timeout. Route bodies are new (room/admin/replay
// JSON contracts instead of WS/blob ones).
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/BennettNotFound/dotphira-mp/internal/admindata"
	"github.com/BennettNotFound/dotphira-mp/internal/identity"
	"github.com/BennettNotFound/dotphira-mp/internal/replay"
	"github.com/BennettNotFound/dotphira-mp/internal/serverstate"
	"github.com/BennettNotFound/dotphira-mp/internal/trust"
)

// Version is the value reported by GET /status, overridable via -ldflags.
var Version = "1.0.0"

// Config bundles a Server's dependencies.
type Config struct {
	State          *serverstate.State
	Identity       *identity.Client
	Bans           *admindata.Store
	Otp            *trust.OtpStore
	Tokens         *trust.TokenStore
	Blacklist      *trust.Blacklist
	ReplaySessions *replay.SessionStore
	ReplayBasePath string
	ServerName     string
	AdminToken     string
	ViewToken      string
	Log            *slog.Logger
}

// Server is the Echo application serving the public, admin, and replay
// surfaces.
type Server struct {
	echo      *echo.Echo
	cfg       Config
	log       *slog.Logger
	startedAt time.Time
}

// New constructs a Server and registers every route.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(cfg.Log))

	s := &Server{echo: e, cfg: cfg, log: cfg.Log, startedAt: time.Now()}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/rooms", s.handleRooms)
	s.echo.GET("/room", s.handleRoom)
	s.echo.GET("/status", s.handleStatus)

	admin := s.echo.Group("/admin", s.requireAdmin)
	admin.POST("/otp/request", s.handleOtpRequest)
	admin.POST("/otp/verify", s.handleOtpVerify)
	admin.GET("/rooms", s.handleAdminRooms)
	admin.POST("/rooms/:id/max_users", s.handleAdminRoomMaxUsers)
	admin.POST("/rooms/:id/disband", s.handleAdminRoomDisband)
	admin.POST("/rooms/:id/chat", s.handleAdminRoomChat)
	admin.POST("/broadcast", s.handleAdminBroadcast)
	admin.GET("/replay/config", s.handleReplayConfigGet)
	admin.POST("/replay/config", s.handleReplayConfigSet)
	admin.GET("/room-creation/config", s.handleRoomCreationConfigGet)
	admin.POST("/room-creation/config", s.handleRoomCreationConfigSet)
	admin.GET("/ip-blacklist", s.handleIPBlacklistList)
	admin.POST("/ip-blacklist/remove", s.handleIPBlacklistRemove)
	admin.POST("/ip-blacklist/clear", s.handleIPBlacklistClear)
	admin.GET("/users/:id", s.handleAdminUserGet)
	admin.POST("/ban/user", s.handleAdminBanUser)
	admin.POST("/ban/room", s.handleAdminBanRoom)
	admin.POST("/users/:id/disconnect", s.handleAdminUserDisconnect)
	admin.POST("/users/:id/move", s.handleAdminUserMove)
	admin.POST("/contest/rooms/:id/config", s.handleContestConfig)
	admin.POST("/contest/rooms/:id/whitelist", s.handleContestWhitelist)
	admin.POST("/contest/rooms/:id/start", s.handleContestStart)

	s.echo.POST("/replay/auth", s.handleReplayAuth)
	s.echo.GET("/replay/download", s.handleReplayDownload)
	s.echo.POST("/replay/delete", s.handleReplayDelete)
}

// requestLogger mirrors the teacher's slog-based Echo middleware: Info for
// normal traffic, Debug for the noisy/frequent routes.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []any{
				"method", req.Method, "path", req.URL.Path,
				"status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds(),
			}
			if req.URL.Path == "/status" || req.URL.Path == "/rooms" {
				log.Debug("http request", fields...)
			} else {
				log.Info("http request", append(fields, "remote", c.RealIP())...)
			}
			return nil
		}
	}
}

// Run starts Echo on addr and blocks until ctx is cancelled or startup
// fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down http api")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		s.log.Info("http api stopped")
		return nil
	}
}

// RunTLS is Run over a self-signed tls.Config instead of plaintext HTTP,
// the self-signed-bootstrap idiom the teacher applies to its own HTTP/WS
// surface.
func (s *Server) RunTLS(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	tln := tls.NewListener(ln, tlsConfig)

	httpSrv := &http.Server{Handler: s.echo}

	errCh := make(chan error, 1)
	go func() {
		err := httpSrv.Serve(tln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down http api")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)
		s.log.Info("http api stopped")
		return nil
	}
}
