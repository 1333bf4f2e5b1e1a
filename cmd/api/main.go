package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelEspejo/DreamDX-AI/internal/config"
	"github.com/ManuelEspejo/DreamDX-AI/internal/handler"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/ai"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/narrative"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/session"
	"github.com/ManuelEspejo/DreamDX-AI/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	sessionStore, err := newStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to initialize session store: %v", err)
	}
	defer sessionStore.Close()
	log.Printf("session store initialized, driver=%s", cfg.Store.Driver)

	sessions := session.NewManager(sessionStore)

	// Initialize the narrative pipeline when provider credentials
	// are configured; lifecycle endpoints work without it.
	var orch *narrative.Orchestrator
	if cfg.AI.Enabled() {
		provider, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize narrative provider: %v", err)
			log.Println("continuing without narrative generation - check the Ark model environment variables")
		} else {
			prompts := narrative.NewPromptBuilder(cfg.Narrative.HistoryLimit)
			orch = narrative.NewOrchestrator(sessions, provider, prompts)
			log.Println("narrative provider initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping narrative generation")
	}

	router := handler.NewRouter(sessions, orch)

	startServer(ctx, cfg.Server, router)
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return store.New(store.DriverRedis,
			store.WithRedisClient(client),
			store.WithRedisTTL(cfg.SessionTTL),
		)
	default:
		return store.New(store.DriverMemory)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("DreamDX backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
