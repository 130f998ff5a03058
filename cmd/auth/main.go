package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/smartconnect/auth-service/internal/audit"
	"github.com/smartconnect/auth-service/internal/blacklist"
	"github.com/smartconnect/auth-service/internal/cleanup"
	"github.com/smartconnect/auth-service/internal/config"
	"github.com/smartconnect/auth-service/internal/httpserver"
	"github.com/smartconnect/auth-service/internal/middleware"
	"github.com/smartconnect/auth-service/internal/repo"
	"github.com/smartconnect/auth-service/internal/service"
	"github.com/smartconnect/auth-service/internal/tokens"
	"github.com/smartconnect/auth-service/pkg/logging"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.InitDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	var publisher service.AuditPublisher = audit.Nop{}
	var producer *audit.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = audit.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic)
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, audit events disabled")
	}

	codec := &tokens.Codec{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}

	gormRepo := repo.New(db)
	cache := &blacklist.Cache{RDB: rdb}

	svc := service.New(gormRepo, gormRepo, cache, publisher, codec)
	svc.LockThreshold = cfg.LockThreshold
	svc.LockDuration = cfg.LockDuration

	sweeper := cleanup.New(gormRepo, logger)
	sweeper.ExpiredInterval = cfg.CleanupExpiredInterval
	sweeper.RevokedInterval = cfg.CleanupRevokedInterval
	sweeper.Start()

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(logging.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc},
		AuthMw:      middleware.NewAuth(svc),
		DB:          db,
		RDB:         rdb,
	})

	go func() {
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
	sweeper.Stop()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close", "error", err)
		}
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close", "error", err)
	}
}
