package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sjlee-dev/tictacd/internal/config"
	"github.com/sjlee-dev/tictacd/internal/history"
	"github.com/sjlee-dev/tictacd/internal/obslog"
	"github.com/sjlee-dev/tictacd/internal/protocol"
	"github.com/sjlee-dev/tictacd/internal/registry"
	"github.com/sjlee-dev/tictacd/internal/server"
	"github.com/sjlee-dev/tictacd/internal/userstore"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	// Optional config file path as the only positional argument.
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var users userstore.Store
	if cfg.RedisURL != "" {
		rs, err := userstore.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("user store init error: %v", err)
		}
		defer func() { _ = rs.Close() }()
		users = rs
	} else {
		obslog.L().Warn("userstore_memory_fallback",
			zap.String("reason", "redis_url not configured; accounts will not survive restarts"),
		)
		users = userstore.NewMemoryStore()
	}

	var recorder *history.Recorder
	if cfg.DatabaseURL != "" {
		recorder, err = history.NewRecorder(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("history recorder init error: %v", err)
		}
		defer func() { _ = recorder.Close() }()
	}

	dispatcher := protocol.New(users, registry.New(cfg.MaxRooms), recorder)
	srv := server.New(cfg, dispatcher)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
