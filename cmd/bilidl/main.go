// Command bilidl is the CLI entrypoint: it wires configuration, the
// signed HTTP client, the session store and the orchestrator's
// classify/resolve/download/post-process sequence for a single run, per
// spec §1 ("a library/CLI tool, not a server").
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/logging"
	"bilidl/internal/login"
	"bilidl/internal/metrics"
	"bilidl/internal/orchestrator"
	"bilidl/internal/server"
	"bilidl/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	urlFlag := flag.String("url", "", "bilibili URL or bare id (BV.../av.../ep.../ss.../cp.../cs...) to download")
	loginFlag := flag.Bool("login", false, "run the QR login flow and print the resulting session id")
	sessionFlag := flag.String("session", "", "known session id to authenticate with")
	serveFlag := flag.Bool("serve", false, "also start the status HTTP surface for the duration of the run")
	flag.Parse()

	cfg := config.Load()
	cfg.URL = *urlFlag
	cfg.Login = *loginFlag

	log := logging.New(slog.LevelInfo)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend session.Backend
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err == nil {
			backend = session.NewRedisBackend(rdb)
		} else {
			log.Warn("redis unreachable, falling back to in-memory session store", "error", err)
		}
	}
	sessStore := session.NewStore(cfg.SessionDir, backend, log)
	reg := metrics.NewRegistry()

	var srv *server.Server
	if *serveFlag {
		srv = server.New(cfg, sessStore, reg, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("rpcstub server exited", "error", err)
			}
		}()
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	if cfg.Login {
		return runLogin(ctx, sessStore, log)
	}

	if cfg.URL == "" {
		fmt.Fprintln(os.Stderr, "bilidl: -url is required unless -login is set")
		return 2
	}

	client, err := buildClient(ctx, cfg, sessStore, *sessionFlag, log)
	if err != nil {
		log.Error("building http client", "error", err)
		return 1
	}

	outcome, err := orchestrator.Run(ctx, client, cfg, log)
	if err != nil {
		log.Error("run failed", "error", err)
		return 1
	}

	fmt.Printf("%s: %d/%d completed, %d skipped, %d failed\n",
		outcome.Title, outcome.CompletedCount, outcome.RequestedCount, outcome.SkippedCount, outcome.FailedCount)

	if outcome.Failed() {
		return 1
	}
	return 0
}

func runLogin(ctx context.Context, sessStore *session.Store, log *slog.Logger) int {
	client, err := httpclient.New(httpclient.WithLogger(log))
	if err != nil {
		log.Error("building login client", "error", err)
		return 1
	}
	qr, err := login.GenerateQR(ctx, client)
	if err != nil {
		log.Error("generating qr code", "error", err)
		return 1
	}
	fmt.Println("scan this URL with the Bilibili app:")
	fmt.Println(qr.URL)

	jar := sessionJarFromClient(client)
	id, err := login.PollQR(ctx, client, jar, sessStore, qr.QrcodeKey, 0, log)
	if err != nil {
		log.Error("qr login failed", "error", err)
		return 1
	}
	fmt.Println("logged in, session id:", id)
	return 0
}

// buildClient picks the client's cookie source: a known session id, an
// imported cookie file, or a fresh anonymous client, in that priority
// order (spec §4.6's layered auth lookup).
func buildClient(ctx context.Context, cfg *config.Config, sessStore *session.Store, sessionID string, log *slog.Logger) (*httpclient.Client, error) {
	opts := []httpclient.Option{
		httpclient.WithLogger(log),
		httpclient.WithRateLimit(cfg.RequestsPerSecond, cfg.BurstSize),
		httpclient.WithTimeout(cfg.ControlPlaneTimeout),
	}

	if sessionID != "" {
		if err := sessStore.LoadFromDir(sessionID); err != nil {
			log.Warn("could not load session from disk, falling back to anonymous client", "session_id", sessionID, "error", err)
		}
		return sessStore.GetAuthedClient(sessionID, opts...), nil
	}

	if cfg.CookiePath != "" {
		id, ok, err := login.ProbeCookieFile(ctx, cfg.CookiePath, sessStore)
		if err != nil {
			return nil, err
		}
		if ok {
			return sessStore.GetAuthedClient(id, opts...), nil
		}
		log.Warn("cookie file did not carry a logged-in session, continuing anonymously", "path", cfg.CookiePath)
	}

	return httpclient.New(opts...)
}

// sessionJarFromClient extracts a *session.Jar for PollQR to register once
// login succeeds. A freshly built httpclient.New client always carries a
// stdlib cookiejar.Jar, so the QR flow uses its own enumerable jar and
// rebuilds the client around it up front.
func sessionJarFromClient(client *httpclient.Client) *session.Jar {
	jar := session.NewJar()
	client.HTTP.Jar = jar
	return jar
}
