package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buddywalk/internal/config"
	"buddywalk/internal/conversation"
	"buddywalk/internal/database"
	"buddywalk/internal/engine"
	"buddywalk/internal/handlers"
	"buddywalk/internal/middleware"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

func main() {
	// Initialize components
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := database.Open(ctx, cfg.Database)
	cancel()
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Type, err)
	}
	log.Printf("Using %s store", cfg.Database.Type)

	system := actor.NewActorSystem()
	httpServer := newHTTPServer(cfg, system, store)

	// Halt the server gracefully on SIGINT/SIGTERM.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-haltCh
		log.Printf("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}

	system.Shutdown()
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		log.Printf("Error closing store: %v", err)
	}
	log.Printf("Server stopped")
}

// newHTTPServer wires the actors, auth and router over store.
func newHTTPServer(cfg *config.Config, system *actor.ActorSystem, store database.DBAdapter) *http.Server {
	metrics := utils.NewMetricsCollector()
	buddyEngine := engine.NewEngine(system, store, conversation.SystemClock{}, metrics, cfg.Server.RequestTimeout)

	server := handlers.NewServer(
		system,
		buddyEngine,
		metrics,
		middleware.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		cfg.Server.RequestTimeout,
	)
	router := handlers.NewRouter(server, middleware.DefaultCORSConfig(cfg.AllowedOrigins), cfg.Server.MetricsEnabled)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
