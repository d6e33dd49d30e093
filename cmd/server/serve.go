package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/social-media-api/internal/config"
	"github.com/iliyamo/social-media-api/internal/database"
	"github.com/iliyamo/social-media-api/internal/handler"
	"github.com/iliyamo/social-media-api/internal/logging"
	"github.com/iliyamo/social-media-api/internal/middleware"
	"github.com/iliyamo/social-media-api/internal/queue"
	"github.com/iliyamo/social-media-api/internal/repository"
	"github.com/iliyamo/social-media-api/internal/router"
	"github.com/iliyamo/social-media-api/internal/service"
	"github.com/iliyamo/social-media-api/internal/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rcfg := config.LoadRedisConfig()
	rdb, err := config.NewRedisClient(rcfg)
	if err != nil {
		if cfg.TokenStore == config.StoreRedis {
			return err
		}
		log.Warn().Err(err).Msg("redis unavailable; rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	store, err := newTokenStore(cfg.TokenStore, db, rdb, rcfg.KeyPrefix)
	if err != nil {
		return err
	}
	codec, err := token.NewCodec(cfg.TokenConfig())
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	opts := []service.Option{service.WithLogger(log)}
	if cfg.AuditEnabled {
		pub := queue.NewPublisher(queue.NewAMQPSender(cfg.RabbitURL), cfg.AuditQueue, 0, log)
		defer pub.Close()
		opts = append(opts, service.WithEvents(pub))
		auditLog := queue.NewAuditFile(cfg.AuditLogPath)
		consumerDone := make(chan struct{})
		go func() {
			defer close(consumerDone)
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, cfg.AuditQueue, auditLog, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("audit consumer stopped")
			}
		}()
		defer closeAuditLog(stop, consumerDone, auditLog)
	}
	svc := service.NewAuthService(users, store, codec, opts...)

	e := newEcho(log)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e,
		handler.NewAuthHandler(svc, users, cfg.BcryptCost),
		svc,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	)

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Str("token_store", cfg.TokenStore).Msg("listening")

	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// closeAuditLog cancels the consumer and waits for it to return before
// closing the file it writes to.
func closeAuditLog(stop context.CancelFunc, done <-chan struct{}, w io.Closer) error {
	stop()
	<-done
	return w.Close()
}

func newEcho(log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(logging.RequestLogger(log))
	return e
}

// newTokenStore picks the token store backend named by TOKEN_STORE.
func newTokenStore(kind string, db *sql.DB, rdb *redis.Client, prefix string) (service.TokenStore, error) {
	switch kind {
	case config.StoreMySQL:
		if db == nil {
			return nil, errors.New("mysql token store needs a database")
		}
		return repository.NewTokenRepo(db), nil
	case config.StoreRedis:
		if rdb == nil {
			return nil, errors.New("redis token store needs a redis client")
		}
		return repository.NewRedisTokenRepo(rdb, prefix), nil
	case config.StoreMemory:
		return repository.NewMemoryTokenRepo(), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", kind)
	}
}
