// Command dotphira-mp runs the rhythm-game coordination server: the TCP
// game listener, the room state machine, the replay recorder, and the
// HTTP/WebSocket telemetry+admin surface, all wired from one process.
//
// This is the teacher's main.go shape carried over almost directly: flag-
// style defaults (here, config-file-plus-env per §6 instead of CLI flags),
// a self-signed TLS bootstrap logged at startup, background sweep
// goroutines launched alongside the accept loop, and a signal-driven
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/BennettNotFound/dotphira-mp/internal/admindata"
	"github.com/BennettNotFound/dotphira-mp/internal/config"
	"github.com/BennettNotFound/dotphira-mp/internal/httpapi"
	"github.com/BennettNotFound/dotphira-mp/internal/identity"
	"github.com/BennettNotFound/dotphira-mp/internal/replay"
	"github.com/BennettNotFound/dotphira-mp/internal/serverstate"
	"github.com/BennettNotFound/dotphira-mp/internal/session"
	"github.com/BennettNotFound/dotphira-mp/internal/tlsutil"
	"github.com/BennettNotFound/dotphira-mp/internal/transport"
	"github.com/BennettNotFound/dotphira-mp/internal/trust"
	"github.com/BennettNotFound/dotphira-mp/internal/wsx"
)

// Version is the process build version, overridable via -ldflags.
var Version = "1.0.0"

func main() {
	if len(os.Args) > 1 && runCLI(os.Args[1:]) {
		return
	}

	configPath := flag.String("config", "config.json", "path to config.json")
	jsonLogs := flag.Bool("json-logs", false, "emit structured logs as JSON instead of text")
	flag.Parse()

	var handler slog.Handler
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	log := slog.New(handler)
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bans, err := admindata.Open(cfg.AdminDataPath)
	if err != nil {
		return fmt.Errorf("open admin data: %w", err)
	}

	identityClient := identity.New(cfg.IdentityBaseURL)
	tokens := trust.NewTokenStore()
	otp := trust.NewOtpStore(tokens)
	blacklist := trust.NewBlacklist()
	replaySessions := replay.NewSessionStore()
	hub := wsx.NewHub(log)

	state := serverstate.New(serverstate.Config{
		Log:            log,
		Hub:            hub,
		Identity:       identityClient,
		Bans:           bans,
		Tokens:         tokens,
		ReplayBasePath: ".",
		AdminToken:     cfg.AdminToken,
		ViewToken:      cfg.ViewToken,
	})

	wsHandler := wsx.NewHandler(hub, log, state.RoomSnapshot, state.AllRoomSnapshots, state.AuthenticateAdmin)

	httpServer := httpapi.New(httpapi.Config{
		State:          state,
		Identity:       identityClient,
		Bans:           bans,
		Otp:            otp,
		Tokens:         tokens,
		Blacklist:      blacklist,
		ReplaySessions: replaySessions,
		ReplayBasePath: ".",
		ServerName:     cfg.ServerName,
		AdminToken:     cfg.AdminToken,
		ViewToken:      cfg.ViewToken,
		Log:            log,
	})
	wsHandler.Register(httpServer.Echo())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		replay.RunRetentionSweep(ctx, ".", log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		blacklist.RunSweep(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		state.RunMetricsLog(ctx, time.Minute)
	}()

	if cfg.HttpService {
		tlsConfig, fingerprint, err := tlsutil.SelfSigned(24*time.Hour, "")
		if err != nil {
			return fmt.Errorf("generate tls config: %w", err)
		}
		log.Info("tls certificate bootstrapped", "fingerprint", fingerprint)

		addr := fmt.Sprintf(":%d", cfg.HttpPort)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.RunTLS(ctx, addr, tlsConfig); err != nil {
				log.Error("http api stopped with error", "err", err)
			}
		}()
	}

	gameAddr := fmt.Sprintf(":%d", cfg.GamePort)
	ln, err := net.Listen("tcp", gameAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", gameAddr, err)
	}
	log.Info("dotphira-mp starting",
		"version", Version, "game_addr", gameAddr, "http_port", cfg.HttpPort, "http_service", cfg.HttpService)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = ln.Close()
	}()

	acceptLoop(ctx, ln, state, identityClient, blacklist, cfg, log)
	wg.Wait()
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, state *serverstate.State, identityClient *identity.Client,
	blacklist *trust.Blacklist, cfg config.Config, log *slog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("accept failed", "err", err)
			continue
		}

		remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if blacklist.IsBlacklisted(remoteIP) {
			_ = conn.Close()
			continue
		}

		go serveConnection(ctx, conn, state, identityClient, cfg, log)
	}
}

func serveConnection(ctx context.Context, conn net.Conn, state *serverstate.State,
	identityClient *identity.Client, cfg config.Config, log *slog.Logger) {
	tc := transport.New(conn, log)

	version, err := tc.ReadVersion()
	if err != nil {
		log.Debug("connection closed before version byte", "remote", conn.RemoteAddr(), "err", err)
		_ = tc.Close()
		return
	}
	log.Debug("connection accepted", "remote", conn.RemoteAddr(), "protocol_version", version)

	sess := session.New(uuid.NewString(), tc, session.Config{
		State:            state,
		Identity:         identityClient,
		Log:              log,
		WelcomeMessage:   cfg.WelcomeMessage,
		PrivilegedUserID: cfg.PrivilegedUserID,
	})
	if err := sess.Serve(ctx); err != nil {
		log.Debug("session ended", "remote", conn.RemoteAddr(), "err", err)
	}
}

func runCLI(args []string) bool {
	switch args[0] {
	case "version":
		fmt.Printf("dotphira-mp %s\n", Version)
		return true
	case "status":
		return cliStatus(args[1:])
	case "config":
		return cliConfig(args[1:])
	default:
		return false
	}
}

func cliStatus(args []string) bool {
	path := "config.json"
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server: %s\n", cfg.ServerName)
	fmt.Printf("Game port: %d\n", cfg.GamePort)
	fmt.Printf("HTTP port: %d (enabled=%v)\n", cfg.HttpPort, cfg.HttpService)
	fmt.Printf("Admin data: %s\n", cfg.AdminDataPath)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliConfig(args []string) bool {
	if len(args) == 0 || args[0] != "show" {
		return false
	}
	path := "config.json"
	if len(args) > 1 {
		path = args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%+v\n", cfg)
	return true
}
