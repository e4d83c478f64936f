package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paramads/adops-engine/internal/ads"
	"github.com/paramads/adops-engine/internal/alerts"
	"github.com/paramads/adops-engine/internal/api"
	"github.com/paramads/adops-engine/internal/automation"
	"github.com/paramads/adops-engine/internal/config"
	"github.com/paramads/adops-engine/internal/metrics"
	"github.com/paramads/adops-engine/internal/pkg/distlock"
	"github.com/paramads/adops-engine/internal/pkg/httpretry"
	"github.com/paramads/adops-engine/internal/platform"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"
)

func main() {
	log.Println("Starting ParamAds API server...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	ruleStore := automation.NewStore(db)
	adsStore := ads.NewStore(db)
	evaluator := automation.NewEvaluator(metrics.NewSQLAggregator(db))

	handlers := api.NewAutomationHandlers(ruleStore, adsStore, evaluator)

	// The engine can run inside the API process for small deployments.
	// The cycle lock keeps this safe alongside a dedicated worker.
	if cfg.Automation.Enabled {
		var redisClient *redis.Client
		if cfg.Redis.Enabled && cfg.Redis.URL != "" {
			if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
				redisClient = redis.NewClient(opts)
				defer redisClient.Close()
			} else {
				log.Printf("Invalid REDIS_URL, cycle lock falls back to Postgres: %v", err)
			}
		}

		platforms := platform.Registry{
			"meta": platform.NewMetaClient(cfg.Meta.BaseURL,
				httpretry.New(&http.Client{Timeout: cfg.Meta.Timeout()}, 3)),
			"google": platform.NewGoogleClient(cfg.Google.BaseURL, cfg.Google.DeveloperToken,
				httpretry.New(&http.Client{Timeout: cfg.Google.Timeout()}, 3)),
		}
		adsService := ads.NewService(adsStore, platforms)

		var emailSender alerts.EmailSender
		if cfg.Alerts.EmailEnabled {
			emailSender = alerts.NewSESSender(cfg.Alerts.SESAccessKey, cfg.Alerts.SESSecretKey, cfg.Alerts.SESRegion, cfg.Alerts.FromEmail, db)
		}
		alertService := alerts.NewService(alerts.NewStore(db), emailSender)

		executor := automation.NewExecutor(adsService, alertService)
		lock := distlock.New(redisClient, db, "automation:run-cycle", cfg.Automation.CycleTimeout())

		engine := automation.NewEngine(ruleStore, adsStore, evaluator, executor, lock, automation.EngineConfig{
			TickInterval:  cfg.Automation.TickInterval(),
			RuleBatchSize: cfg.Automation.RuleBatchSize,
			MaxConcurrent: cfg.Automation.MaxConcurrentRules,
			CallTimeout:   cfg.Automation.CallTimeout(),
			CycleTimeout:  cfg.Automation.CycleTimeout(),
		})
		engine.Start()
		defer engine.Stop()
		handlers.SetEngine(engine)
	}

	server := api.NewServer(cfg.Server, db, handlers)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
