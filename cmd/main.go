package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/planpal-realtime/internal/api"
	"github.com/fathima-sithara/planpal-realtime/internal/auth"
	cfgpkg "github.com/fathima-sithara/planpal-realtime/internal/config"
	"github.com/fathima-sithara/planpal-realtime/internal/events"
	"github.com/fathima-sithara/planpal-realtime/internal/fanout"
	"github.com/fathima-sithara/planpal-realtime/internal/logger"
	"github.com/fathima-sithara/planpal-realtime/internal/presence"
	"github.com/fathima-sithara/planpal-realtime/internal/repository"
	"github.com/fathima-sithara/planpal-realtime/internal/room"
	"github.com/fathima-sithara/planpal-realtime/internal/ws"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	mc, err := repository.NewMongo(cfg)
	if err != nil {
		zl.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()

	var mirror *presence.Mirror
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		mirror = presence.NewMirror(rdb, cfg.Redis.Prefix, 0)
	}

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageEvents, zl)
	defer func() { _ = publisher.Close() }()

	users := repository.NewUserRepository(mc)
	messages := repository.NewMessageRepository(mc, users)
	chats := repository.NewChatRepository(mc, users)
	eventRepo := repository.NewEventRepository(mc)

	registry := presence.NewRegistry()
	rooms := room.NewRouter()
	engine := fanout.NewEngine(zl, registry, rooms, mirror, users, messages, chats, eventRepo, publisher)

	validator := auth.NewValidator(cfg.App.JWTSecret)
	wsSrv := ws.NewServer(engine, validator, cfg, zl)
	handler := api.NewHandler(engine, mirror, chats, eventRepo, users, zl)
	app := api.NewServer(handler, wsSrv, validator, zl)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zl.Infow("starting realtime service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zl.Fatalw("server error", "err", e)
	case s := <-sig:
		zl.Infow("signal received", "signal", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		zl.Warnw("shutdown", "err", err)
	}
	zl.Info("realtime service stopped")
}
