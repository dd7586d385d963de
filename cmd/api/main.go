package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"drop-match-api/internal/cache"
	"drop-match-api/internal/config"
	"drop-match-api/internal/database"
	"drop-match-api/internal/events"
	"drop-match-api/internal/features"
	"drop-match-api/internal/handler"
	"drop-match-api/internal/middleware"
	"drop-match-api/internal/notify"
	"drop-match-api/internal/scheduler"
	"drop-match-api/internal/service"
	"drop-match-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracing: %v", err)
		}
	}()

	// Database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "Profile cache layer")
	flags.Register(features.FeatureSMSEnabled, cfg.SMS.Enabled, "SMS outbox writes")
	flags.Register(features.FeatureEventHooksEnabled, true, "Event-driven hooks")

	// Cache: Redis when configured, in-memory otherwise
	var profileCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisAddr != "" {
			redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
			if err != nil {
				log.Fatalf("Failed to connect to Redis: %v", err)
			}
			defer redisCache.Close()
			profileCache = redisCache
		} else {
			profileCache = cache.NewInMemoryCache()
		}
	}

	// Events
	eventManager := events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()
	eventManager.Subscribe(events.EventMatchingCompleted, func(ctx context.Context, e events.Event) error {
		if data, ok := e.Data.(events.MatchingCompletedData); ok && data.Summary.MatchesCreated > 0 {
			log.Printf("Matching pass created %d matches across %d drops",
				data.Summary.MatchesCreated, data.Summary.DropsMatched)
		}
		return nil
	})

	// Notifications
	dispatcher := notify.NewDispatcher(db, cfg.SMS.DefaultCountryCode, func() bool {
		return flags.IsEnabled(features.FeatureSMSEnabled)
	})

	// Service
	svc := service.NewService(db, service.Options{
		Cache:          profileCache,
		CacheTTL:       time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Notifier:       dispatcher,
		Events:         eventManager,
		Flags:          flags,
		DefaultCuisine: cfg.Matching.DefaultCuisine,
	})

	// Scheduler
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(svc, time.Duration(cfg.Scheduler.IntervalSeconds)*time.Second)
		sched.Start()
		defer sched.Stop()
	}

	// Handlers
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Rate limiter
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if rateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/matching", func(r chi.Router) {
		r.Post("/run", h.RunMatching)
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Put("/{user_id}", h.UpsertProfile)
	})

	r.Route("/drops", func(r chi.Router) {
		r.Put("/{drop_id}", h.UpsertDrop)
		r.Post("/{drop_id}/registrations", h.Register)
		r.Get("/{drop_id}/matches", h.ListDropMatches)
		r.Get("/{drop_id}/matches/user/{user_id}", h.GetUserMatch)
		r.Post("/{drop_id}/matches/{match_id}/response", h.SubmitResponse)
	})

	r.Route("/sms", func(r chi.Router) {
		r.Get("/pending", h.PendingSMS)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting HTTP server on %s", addr)
	log.Printf("Database: %s", cfg.Database.Path)
	if cfg.Scheduler.Enabled {
		log.Printf("Matching scheduler: every %d seconds", cfg.Scheduler.IntervalSeconds)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
