// Stub chat backend for local development: AI assistant socket, shared shop
// socket and the REST collaborator endpoints, all in memory.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliconcon/chatwidget/internal/config"
	"github.com/aliconcon/chatwidget/internal/devserver"
	"github.com/aliconcon/chatwidget/internal/logger"
)

func main() {
	logger.SetPrefix("devserver")
	logger.Info("starting dev stub backend")
	cfg := config.Load()

	s := devserver.New(cfg.CORSAllowedOrigins)
	// No read/write timeouts: the server carries long-lived websocket
	// connections and a leftover deadline would cut them after the timeout.
	srv := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     s.Router(),
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("devserver stopped")
}
