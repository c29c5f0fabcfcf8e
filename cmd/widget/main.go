// Headless widget runtime: owns the session table, keeps the AI assistant
// channel connected and serves as the embedding point for a host UI.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliconcon/chatwidget/internal/auth"
	"github.com/aliconcon/chatwidget/internal/config"
	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/logger"
	"github.com/aliconcon/chatwidget/internal/storage"
	"github.com/aliconcon/chatwidget/internal/storage/memory"
	"github.com/aliconcon/chatwidget/internal/storage/redis"
	"github.com/aliconcon/chatwidget/internal/widget"
)

func main() {
	logger.SetPrefix("widget")
	userID := flag.String("user", os.Getenv("USER_ID"), "current user id (empty for guest)")
	language := flag.String("lang", "en", "interface language reported to the assistant")
	flag.Parse()

	logger.Info("starting widget runtime")
	cfg := config.Load()

	tokens := openTokenStore(cfg)
	defer func() {
		if err := tokens.Close(); err != nil {
			logger.Errorf("token store close: %v", err)
		}
	}()

	mgr := widget.NewManager(cfg, widget.ManagerOptions{
		CurrentUserID: *userID,
		Tokens:        auth.NewChainSource(*userID, tokens),
		Context: func() event.Context {
			return event.Context{
				CurrentPage: "/",
				Language:    *language,
				Timestamp:   time.Now().UTC(),
			}
		},
	})
	mgr.Start()
	logger.Infof("assistant channel dialing %s", cfg.WSURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	mgr.Shutdown()
	logger.Info("widget stopped")
}

// openTokenStore picks Redis when configured, otherwise the in-memory store.
func openTokenStore(cfg *config.Config) storage.TokenStore {
	if cfg.Redis.URL == "" {
		logger.Info("token store: in-memory")
		return memory.New()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := redis.New(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Errorf("redis connect: %v (falling back to in-memory token store)", err)
		return memory.New()
	}
	logger.Info("token store: redis")
	return client
}
