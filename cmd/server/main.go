package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/zamc/boardhub/internal/audit"
	"github.com/zamc/boardhub/internal/auth"
	"github.com/zamc/boardhub/internal/autosave"
	"github.com/zamc/boardhub/internal/boardrepo"
	"github.com/zamc/boardhub/internal/cachestate"
	"github.com/zamc/boardhub/internal/chathistory"
	"github.com/zamc/boardhub/internal/config"
	"github.com/zamc/boardhub/internal/editlock"
	"github.com/zamc/boardhub/internal/hub"
	"github.com/zamc/boardhub/internal/metrics"
	"github.com/zamc/boardhub/internal/presence"
	"github.com/zamc/boardhub/internal/ratelimit"
	"github.com/zamc/boardhub/internal/relay"
	"github.com/zamc/boardhub/internal/snapshot"
	"github.com/zamc/boardhub/internal/validate"
	"github.com/zamc/boardhub/internal/wsconn"
)

var startTime = time.Now()

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.Load()
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	db, err := boardrepo.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	repo := boardrepo.NewPostgres(db)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	rel := relay.Connect(cfg.NatsURL, cfg.InstanceID)
	if rel != nil {
		defer rel.Close()
		log.Printf("Cross-instance relay enabled (instance %s)", cfg.InstanceID)
	} else {
		log.Println("Cross-instance relay disabled (NATS_URL unset or unreachable)")
	}

	var verifier auth.Verifier
	if cfg.E2ETestAuth != "" {
		verifier = auth.NewTestModeVerifier(cfg.E2ETestAuth)
		log.Println("Warning: E2E test-mode auth enabled")
	} else {
		verifier = auth.NewJWTVerifier(cfg.SupabaseJWTSecret)
	}

	store := cachestate.New(rdb, repo)
	presenceReg := presence.New(rdb, cfg.PresenceTTL)
	editlockReg := editlock.New(rdb, cfg.EditLockTTL)
	auditSink := audit.New(rdb)
	metricsSink := metrics.New()
	limiter := ratelimit.New(rdb)
	validator := validate.New()
	_ = chathistory.New(rdb) // wired for future chat-adjacent endpoints; interface-only per spec

	hubs := hub.NewManager(store, presenceReg, editlockReg, rel, auditSink, metricsSink, cfg.MaxObjectsPerBoard)
	snapSvc := snapshot.New(db.DB, cfg.MaxVersionsPerBoard)
	autosaveWorker := autosave.New(repo, store, hubs, snapSvc, metricsSink, cfg.AutoSaveInterval, cfg.VersionSnapshotEveryN)
	hubs.SetIdleFlushHook(autosaveWorker.FlushBoard)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	autosaveWorker.Start(ctx)

	allowedOrigins := strings.Split(cfg.CorsOrigins, ",")
	checkOrigin := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		for _, allowed := range allowedOrigins {
			if strings.TrimSpace(allowed) == origin {
				return true
			}
		}
		log.Printf("rejected websocket origin: %s", origin)
		return false
	}

	wsServer := wsconn.NewServer(verifier, hubs, presenceReg, limiter, validator, auditSink, metricsSink, cfg.WSReadLimitBytes, checkOrigin)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"instance":  cfg.InstanceID,
			"uptime":    time.Since(startTime).String(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metricsSink.Export())
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: corsHandler.Handler(mux),
	}

	go func() {
		log.Printf("Starting server on %s (environment=%s)", cfg.HTTPAddr, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	autosaveWorker.Stop(shutdownCtx)
	log.Println("Shutdown complete")
}
