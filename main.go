package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/crypto/bcrypt"

	"scribe/auth"
	"scribe/config"
	"scribe/db"
	"scribe/handler"
	"scribe/service"
	"scribe/session"
	"scribe/store"
	"scribe/store/mongostore"
	"scribe/store/sqlstore"
	"scribe/templates"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Logger.Fatal(run(cfg, e))
}

// run wires the server and blocks until it stops. The store is closed on return.
func run(cfg *config.Config, e *echo.Echo) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Logger.Info("Running database schema migrations...")
	st, sqlDB, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := openSessions(ctx, cfg, sqlDB, e.Logger)
	if err != nil {
		return err
	}

	authService, err := service.NewAuthService(st, sessions, auth.NewBcryptHasher(bcrypt.DefaultCost), cfg.SessionTTL)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	renderer, err := templates.New()
	if err != nil {
		return err
	}

	h := &handler.Handler{
		Auth:               authService,
		Content:            service.NewContentService(st, cfg.PageSize),
		SessionAuth:        auth.NewSessionAuthenticator(sessions),
		TokenAuth:          auth.NewTokenAuthenticator(tokens, st),
		Tokens:             tokens,
		EnableSignup:       cfg.SignupAllowed(),
		SecureCookies:      !cfg.IsDev(),
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Renderer = renderer
	e.HTTPErrorHandler = h.HTTPErrorHandler
	h.Routes(e)

	if cfg.AddressListen != "" {
		return e.Start(cfg.AddressListen)
	}
	// Cache certificates to avoid issues with rate limits (https://letsencrypt.org/docs/rate-limits)
	e.AutoTLSManager.Cache = autocert.DirCache(cfg.CertCacheDir)
	if cfg.WhitelistHost != "" {
		e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(cfg.WhitelistHost)
	}
	e.Pre(middleware.HTTPSRedirect())
	return e.StartAutoTLS(":443")
}

// openStore returns the content store and, for sqlite, the underlying
// handle so sessions can share it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB, func(), error) {
	if cfg.DBDriver == "mongo" {
		ms, err := mongostore.Connect(ctx, cfg.DBURL, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return ms, nil, func() { _ = ms.Close(context.Background()) }, nil
	}
	conn, err := db.Open(cfg.DBURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	return sqlstore.New(conn), conn, func() { _ = conn.Close() }, nil
}

func openSessions(ctx context.Context, cfg *config.Config, conn *sql.DB, logger echo.Logger) (session.Store, error) {
	if cfg.SessionStore == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return session.NewRedisStore(rdb), nil
	}
	sessions := session.NewSQLStore(conn)
	go sweepSessions(ctx, sessions, logger)
	return sessions, nil
}

// sweepSessions removes expired SQL sessions; redis expires them on its own.
func sweepSessions(ctx context.Context, sessions *session.SQLStore, logger echo.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				logger.Errorf("sweep sessions: %v", err)
				continue
			}
			if n > 0 {
				logger.Debugf("swept %d expired sessions", n)
			}
		}
	}
}

func logLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
