package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/duelward/dueling-companion/api"
	"github.com/duelward/dueling-companion/broadcast"
	"github.com/duelward/dueling-companion/config"
	"github.com/duelward/dueling-companion/db"
	"github.com/duelward/dueling-companion/duel"
	"github.com/duelward/dueling-companion/media"
	"github.com/duelward/dueling-companion/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var (
		store    duel.Store
		registry duel.Registry
		feed     duel.Feed
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer conn.Close()
		store = db.NewStore(conn, cfg.StartingLifePoints, cfg.DuelTTL)
		registry = db.NewRegistry(conn)
		feed = db.NewFeed(conn, cfg.DatabaseURL, cfg.FeedConsumer, cfg.FeedPollInterval)
	} else {
		log.Printf("DATABASE_URL not set, using the in-memory backend")
		mem := duel.NewMemory(cfg.StartingLifePoints, cfg.DuelTTL)
		store, registry, feed = mem, mem, mem
	}

	mediaStore, err := media.NewDiskStore(cfg.MediaRoot, cfg.MediaBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize media store: %v", err)
	}

	svc := duel.NewService(store, registry, mediaStore)
	hub := ws.NewHub()

	resolver := broadcast.Participants()
	if cfg.BroadcastMode == "all" {
		resolver = broadcast.AllConnections(registry)
	}
	broadcaster := broadcast.New(feed, registry, hub, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting broadcaster (mode: %s)", cfg.BroadcastMode)
		if err := broadcaster.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Broadcaster stopped: %v", err)
		}
	}()

	router := api.NewRouter(svc, ws.NewHandler(hub, svc, registry))
	router.PathPrefix(cfg.MediaBaseURL + "/").Handler(
		http.StripPrefix(cfg.MediaBaseURL+"/", http.FileServer(http.Dir(cfg.MediaRoot))))

	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Starting API server on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start API server: %v", err)
	}
}
