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
	"github.com/paramads/adops-engine/internal/automation"
	"github.com/paramads/adops-engine/internal/config"
	"github.com/paramads/adops-engine/internal/metrics"
	"github.com/paramads/adops-engine/internal/pkg/distlock"
	"github.com/paramads/adops-engine/internal/pkg/httpretry"
	"github.com/paramads/adops-engine/internal/platform"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"
)

const cycleLockKey = "automation:run-cycle"

func main() {
	log.Println("Starting ParamAds automation worker...")

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

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable, cycle lock falls back to Postgres: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	platforms := platform.Registry{
		"meta": platform.NewMetaClient(cfg.Meta.BaseURL,
			httpretry.New(&http.Client{Timeout: cfg.Meta.Timeout()}, 3)),
		"google": platform.NewGoogleClient(cfg.Google.BaseURL, cfg.Google.DeveloperToken,
			httpretry.New(&http.Client{Timeout: cfg.Google.Timeout()}, 3)),
	}

	adsStore := ads.NewStore(db)
	adsService := ads.NewService(adsStore, platforms)

	var emailSender alerts.EmailSender
	if cfg.Alerts.EmailEnabled {
		emailSender = alerts.NewSESSender(cfg.Alerts.SESAccessKey, cfg.Alerts.SESSecretKey, cfg.Alerts.SESRegion, cfg.Alerts.FromEmail, db)
	}
	alertService := alerts.NewService(alerts.NewStore(db), emailSender)

	ruleStore := automation.NewStore(db)
	evaluator := automation.NewEvaluator(metrics.NewSQLAggregator(db))
	executor := automation.NewExecutor(adsService, alertService)

	lock := distlock.New(redisClient, db, cycleLockKey, cfg.Automation.CycleTimeout())

	engine := automation.NewEngine(ruleStore, adsStore, evaluator, executor, lock, automation.EngineConfig{
		TickInterval:  cfg.Automation.TickInterval(),
		RuleBatchSize: cfg.Automation.RuleBatchSize,
		MaxConcurrent: cfg.Automation.MaxConcurrentRules,
		CallTimeout:   cfg.Automation.CallTimeout(),
		CycleTimeout:  cfg.Automation.CycleTimeout(),
	})

	if cfg.Automation.Enabled {
		engine.Start()
	} else {
		log.Println("Automation engine disabled by config")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)

	engine.Stop()
	log.Println("Worker stopped")
}
