package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/personalize"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/dispatch"
	"github.com/ignite/campaign-engine/internal/service/engagement"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/ignite/campaign-engine/internal/tracking"
	"github.com/ignite/campaign-engine/internal/transport"
	"github.com/redis/go-redis/v9"
)

// repositories is the storage backend the services run on.
type repositories struct {
	campaigns    campaign.Repository
	recipients   campaign.RecipientRepository
	contacts     contactStore
	suppressions suppression.Repository
	tokens       suppression.TokenRepository
	jobs         scheduler.Store
}

type contactStore interface {
	audience.Repository
	suppression.ContactReader
	dispatch.Contacts
}

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfgPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		cfgPath = p
	}
	if _, err := os.Stat(cfgPath); err != nil {
		cfgPath = ""
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCloser := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		RedactPII:  cfg.Logging.ShouldRedactPII(),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	metrics.Init()

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var db *sql.DB
	var repos repositories
	if cfg.Database.URL != "" {
		db, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		repos = repositories{
			campaigns:    postgres.NewCampaignRepo(db),
			recipients:   postgres.NewRecipientRepo(db),
			contacts:     postgres.NewContactRepo(db),
			suppressions: postgres.NewSuppressionRepo(db),
			tokens:       postgres.NewTokenRepo(db),
			jobs:         postgres.NewJobRepo(db),
		}
		logger.Info("PostgreSQL connected")
	} else {
		store := memory.New()
		repos = repositories{
			campaigns:    store.Campaigns(),
			recipients:   store.Recipients(),
			contacts:     store.Contacts(),
			suppressions: store.Suppressions(),
			tokens:       store.Tokens(),
			jobs:         store.Jobs(),
		}
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Redis is optional; without it locks fall back to PG advisory locks,
	// or to process-local locks when there is no database either.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis connection failed, falling back", "error", err)
			redisClient.Close()
			redisClient = nil
		} else {
			logger.Info("Redis connected (distributed locking enabled)")
		}
		pingCancel()
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	locks := distlock.NewFactory(redisClient, db, cfg.Dispatch.LockTTL())

	// Services
	aud := audience.NewService(repos.contacts)
	campaigns := campaign.NewService(repos.campaigns, repos.recipients, aud)
	suppressions := suppression.NewService(repos.suppressions, repos.tokens, repos.contacts)
	engagements := engagement.NewService(repos.recipients)

	var sender dispatch.Sender = transport.LogSender{}
	if cfg.SES.Enabled {
		ses, err := transport.NewSESSender(ctx, transport.SESConfig{
			Region:           cfg.SES.Region,
			AccessKey:        cfg.SES.AccessKey,
			SecretKey:        cfg.SES.SecretKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
			Timeout:          cfg.SES.Timeout(),
		})
		if err != nil {
			log.Fatalf("Failed to initialize SES: %v", err)
		}
		sender = ses
		logger.Info("SES transport enabled", "region", cfg.SES.Region)
	} else {
		logger.Warn("SES disabled, emails are logged instead of sent")
	}

	dispatcher := dispatch.NewDispatcher(campaigns, aud, suppressions, repos.contacts,
		personalize.NewRenderer(cfg.Tracking.BaseURL), sender, locks, dispatch.Options{
			Workers:   cfg.Dispatch.Workers,
			LockTTL:   cfg.Dispatch.LockTTL(),
			FromName:  cfg.Dispatch.FromName,
			FromEmail: cfg.Dispatch.FromEmail,
			ReplyTo:   cfg.Dispatch.ReplyTo,
		})

	// Tracking: events go straight to the database unless a queue is set.
	tracker := engagement.NewTracker(cfg.Tracking.Timeout(), cfg.Tracking.MaxInFlight)
	var recorder tracking.Recorder = engagements
	var publisher *tracking.Publisher
	var consumer *tracking.Consumer
	if cfg.Tracking.SQSQueueURL != "" {
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Tracking.SQSRegion)}
		if cfg.SES.AccessKey != "" && cfg.SES.SecretKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.SES.AccessKey, cfg.SES.SecretKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			logger.Warn("AWS config for SQS failed, recording events directly", "error", err)
		} else {
			sqsClient := sqs.NewFromConfig(awsCfg)
			publisher = tracking.NewPublisher(sqsClient, cfg.Tracking.SQSQueueURL)
			recorder = publisher
			consumer = tracking.NewConsumer(sqsClient, cfg.Tracking.SQSQueueURL, engagements, suppressions)
			consumer.Start(ctx)
		}
	}
	trackingHandler := tracking.NewHandler(recorder, suppressions, tracker, publisher)

	// Scheduler
	registry := scheduler.NewRegistry(repos.jobs)
	registry.SetTickInterval(cfg.Scheduler.TickInterval())
	err = registry.Init(ctx, []scheduler.Job{
		{
			Name:        "dispatch_due_campaigns",
			Description: "Send scheduled campaigns whose time has come",
			Schedule:    "* * * * *",
			Enabled:     true,
			Handler:     dispatcher.DispatchDue,
		},
		{
			Name:        "recover_interrupted_dispatches",
			Description: "Resume campaigns left in SENDING by a crashed pass",
			Schedule:    "*/15 * * * *",
			Enabled:     false,
			Handler:     dispatcher.RecoverInterrupted,
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	if !cfg.Scheduler.SkipStartupRecovery {
		summary, err := dispatcher.RecoverInterrupted(ctx)
		if err != nil {
			logger.Error("startup recovery failed", "error", err)
		} else {
			logger.Info("startup recovery finished", "summary", summary)
		}
	}

	if !cfg.Scheduler.Disabled {
		if err := registry.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	} else {
		logger.Warn("scheduler disabled by config")
	}

	h := api.NewHandlers(campaigns, aud, dispatcher, registry, suppressions)
	server := api.NewServer(h, api.RouteOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Tracking:       trackingHandler,
		Health:         api.NewHealthChecker(db, redisClient, registry),
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		logger.Info("Starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	registry.Stop()
	if consumer != nil {
		consumer.Stop()
	}
	tracker.Wait()
	cancel()

	logger.Info("Server stopped")
}
