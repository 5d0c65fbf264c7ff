// Package main our entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/johndosdos/paychat/internal"
	"github.com/johndosdos/paychat/internal/account"
	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/broker"
	"github.com/johndosdos/paychat/internal/chat"
	"github.com/johndosdos/paychat/internal/config"
	"github.com/johndosdos/paychat/internal/database"
	"github.com/johndosdos/paychat/internal/handler"
	"github.com/johndosdos/paychat/internal/model"
	"github.com/johndosdos/paychat/internal/ratelimiter"
	"github.com/johndosdos/paychat/internal/session"
	"github.com/johndosdos/paychat/internal/store/badgerdb"
	"github.com/johndosdos/paychat/internal/store/memory"
	"github.com/johndosdos/paychat/internal/store/redisdb"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// stores is the set of persistence backends chosen by configuration.
type stores struct {
	accounts account.Store
	sessions session.Store
	messages chat.MessageStore
	checks   map[string]handler.HealthCheck
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting application...")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	st, err := openStores(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer st.close()

	bus, err := openBroker(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("couldn't close broker", slog.Any("error", err))
		}
	}()

	hasher := auth.NewPasswordHasher(nil)
	registry := account.NewRegistry(st.accounts, hasher, log)
	verifier, err := account.NewVerifier(st.accounts, hasher, log)
	if err != nil {
		return err
	}
	hub := chat.NewHub(bus, log)
	sessions := session.NewIssuer(st.sessions, st.accounts, cfg.SessionTTL, log)
	sessions.NotifyRevocations(hub)
	tokens := auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTIssuer)
	broadcaster := chat.NewBroadcaster(sessions, st.messages, bus, cfg.MaxMessageLength, cfg.HistoryLimit, log)
	log.Info("instance ready", slog.String("origin", broadcaster.Origin))

	if err := bootstrapAdmin(ctx, cfg, registry, log); err != nil {
		return err
	}

	// hub.Run is our central hub that is always listening for client related events.
	hubErr := make(chan error, 1)
	go func() {
		hubErr <- hub.Run(ctx)
	}()

	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	ipLimiter := ratelimiter.NewIPRateLimiter(cfg.IPRateLimit, cfg.IPRateBurst, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer ipLimiter.Cancel()

	cookies := handler.Cookies{Secure: cfg.SecureCookies}
	router := internal.NewRouter(internal.Routes{
		Auth: handler.Auth{
			Registry:  registry,
			Verifier:  verifier,
			Sessions:  sessions,
			Tokens:    tokens,
			AccessTTL: cfg.AccessTokenTTL,
			Cookies:   cookies,
		},
		Admin:         handler.Admin{Accounts: registry, Sessions: sessions},
		Authenticator: internal.NewAuthenticator(tokens, sessions, cfg.AccessTokenTTL, cookies),
		Accounts:      st.accounts,
		Chat:          broadcaster,
		Hub:           hub,
		IPLimiter:     ipLimiter,
		Ws: handler.WsOptions{
			Buffer:           cfg.ClientBuffer,
			MessageRateLimit: cfg.MessageRateLimit,
			MessageRateBurst: cfg.MessageRateBurst,
			TypingRateLimit:  cfg.TypingRateLimit,
			TypingRateBurst:  cfg.TypingRateBurst,
			SessionCheck:     cfg.SessionCheckInterval,
		},
		SSE: handler.SSEOptions{
			Buffer:       cfg.ClientBuffer,
			Heartbeat:    10 * time.Second,
			SessionCheck: cfg.SessionCheckInterval,
		},
		HealthChecks: st.checks,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received; shutting down...")
	case err := <-serverErr:
		stop()
		return fmt.Errorf("server error: %w", err)
	case err := <-hubErr:
		stop()
		return fmt.Errorf("hub stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", slog.Any("error", err))
	}

	log.Info("Server stopped")
	return nil
}

func openStores(ctx context.Context, cfg config.Config, redisClient *redis.Client, log *slog.Logger) (*stores, error) {
	st := &stores{checks: map[string]handler.HealthCheck{}}

	switch cfg.StoreBackend {
	case config.StorePostgres:
		log.Info("Initializing Database connection...")
		pool, err := database.Connect(ctx, cfg.DBURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)

		if err := database.Migrate(ctx, pool); err != nil {
			st.close()
			return nil, err
		}

		q := database.New(pool)
		st.accounts, st.sessions, st.messages = q, q, q
		st.checks["postgres"] = pool.Ping

	case config.StoreBadger:
		log.Info("Opening BadgerDB...", slog.String("path", cfg.BadgerPath))
		db, err := badgerdb.Open(cfg.BadgerPath, log)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		})
		st.accounts, st.sessions, st.messages = db, db, db

	default:
		log.Warn("using in-memory storage; data is lost on restart")
		m := memory.New()
		st.accounts, st.sessions, st.messages = m, m, m
	}

	if cfg.SessionStore() == config.StoreRedis {
		st.sessions = redisdb.NewSessionStore(redisClient, redisdb.DefaultKeyPrefix)
	}
	if redisClient != nil {
		st.checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	return st, nil
}

func openBroker(ctx context.Context, cfg config.Config, redisClient *redis.Client, log *slog.Logger) (broker.Bus, error) {
	switch cfg.BrokerBackend {
	case config.BrokerNATS:
		log.Info("Initializing NATS connection...")

		var natsCredentials []nats.Option
		if cfg.NATSCred != "" {
			natsCredentials = append(natsCredentials, nats.UserCredentials(cfg.NATSCred))
		} else if cfg.NATSUser != "" && cfg.NATSPassword != "" {
			natsCredentials = append(natsCredentials, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
		}
		natsCredentials = append(natsCredentials, nats.Timeout(5*time.Second), nats.Name("paychat"))

		conn, err := nats.Connect(cfg.NATSURL, natsCredentials...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		bus, err := broker.NewJetStream(ctx, conn, log)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return bus, nil

	case config.BrokerRedis:
		return broker.NewRedis(redisClient, log), nil

	default:
		return broker.NewLocal(), nil
	}
}

// bootstrapAdmin creates the configured administrator unless the username
// is already taken.
func bootstrapAdmin(ctx context.Context, cfg config.Config, registry *account.Registry, log *slog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	_, err := registry.Register(ctx, account.RegisterInput{
		Username: cfg.AdminUsername,
		Secret:   cfg.AdminPassword,
		Roles:    []string{string(model.RoleAdmin), string(model.RoleUser)},
	})
	switch {
	case err == nil:
		log.Info("admin account created", slog.String("username", cfg.AdminUsername))
	case errors.Is(err, apperr.ErrConflict):
		log.Debug("admin account already exists", slog.String("username", cfg.AdminUsername))
	default:
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	return nil
}
