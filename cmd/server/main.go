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
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/phishsim/internal/api"
	"github.com/ignite/phishsim/internal/config"
	"github.com/ignite/phishsim/internal/notify"
	"github.com/ignite/phishsim/internal/pkg/distlock"
	"github.com/ignite/phishsim/internal/pkg/logger"
	"github.com/ignite/phishsim/internal/repository/memory"
	"github.com/ignite/phishsim/internal/repository/postgres"
	"github.com/ignite/phishsim/internal/service/analytics"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/sending"
	"github.com/ignite/phishsim/internal/service/template"
	"github.com/ignite/phishsim/internal/storage"
	"github.com/ignite/phishsim/internal/tracking"
	"github.com/ignite/phishsim/internal/worker"
)

// campaignStore is the campaign table as every service sees it.
type campaignStore interface {
	campaign.Repository
	analytics.CampaignReader
	recipient.SnapshotIndex
	template.CampaignRefs
}

type eventStore interface {
	engagement.Repository
	analytics.EventReader
}

type repositories struct {
	recipients recipient.Repository
	templates  template.Repository
	campaigns  campaignStore
	events     eventStore
}

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newSender(ctx context.Context, cfg config.SenderConfig) (sending.Sender, error) {
	switch cfg.Type {
	case "ses":
		return worker.NewSESSender(ctx, cfg.AccessKey, cfg.SecretKey, cfg.Region, cfg.ConfigurationSet)
	case "", "log":
		return worker.LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown sender type %q", cfg.Type)
	}
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := api.NewHealthChecker()

	// Repositories: PostgreSQL when configured, in-memory otherwise.
	var repos repositories
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database at %s: %v", extractHost(cfg.Database.URL), err)
		}
		defer db.Close()
		log.Printf("Connected to PostgreSQL at %s", extractHost(cfg.Database.URL))
		repos = repositories{
			recipients: postgres.NewRecipientRepo(db),
			templates:  postgres.NewTemplateRepo(db),
			campaigns:  postgres.NewCampaignRepo(db),
			events:     postgres.NewEventRepo(db),
		}
		health.Register("database", true, 500*time.Millisecond, db.PingContext)
	} else {
		log.Println("DATABASE_URL not set, using in-memory repositories (data is lost on restart)")
		store := memory.NewStore()
		repos = repositories{
			recipients: store.Recipients(),
			templates:  store.Templates(),
			campaigns:  store.Campaigns(),
			events:     store.Events(),
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = openRedis(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, falling back to local locks and limiter: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("Connected to Redis")
			health.Register("redis", false, 200*time.Millisecond, func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}
	}

	// Services
	recipients := recipient.NewService(repos.recipients, repos.campaigns)
	templates := template.NewService(repos.templates, repos.campaigns)
	campaigns := campaign.NewService(repos.campaigns, recipients, templates)
	events := engagement.NewService(repos.events, repos.campaigns)
	stats := analytics.NewService(repos.campaigns, repos.events, recipients)

	campaigns.SetLocker(distlock.NewLocker(redisClient, db))
	campaigns.SetMaxRecipients(cfg.Campaign.MaxRecipients)

	// Delivery
	sender, err := newSender(ctx, cfg.Sender)
	if err != nil {
		log.Fatalf("Failed to initialize sender: %v", err)
	}
	log.Printf("Sender: %s", cfg.Sender.Type)

	signer := tracking.NewSigner(cfg.Tracking.Secret, cfg.Tracking.BaseURL)
	dispatcher := worker.NewDispatcher(templates, events, campaigns, signer, sender, worker.DispatchConfig{
		FromName:   cfg.Sender.FromName,
		FromEmail:  cfg.Sender.FromEmail,
		ReplyTo:    cfg.Sender.ReplyTo,
		Workers:    cfg.Dispatch.Workers,
		RetryDelay: cfg.Dispatch.RetryDelay(),
	})
	if redisClient != nil {
		dispatcher.SetLimiter(worker.NewRedisLimiter(redisClient, "phishsim:send-rate", cfg.Dispatch.RatePerInterval, cfg.Dispatch.Interval()))
	} else {
		dispatcher.SetLimiter(worker.NewLocalLimiter(cfg.Dispatch.RatePerInterval, cfg.Dispatch.Interval(), cfg.Dispatch.BatchSize))
	}
	campaigns.SetDispatcher(dispatcher)

	// Observers
	var notifier *notify.WebhookNotifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.MaxRetries, stats)
		campaigns.AddObserver(notifier)
		events.AddListener(notifier)
		log.Println("Webhook notifications enabled")
	}

	var archive *storage.Archiver
	backend, err := storage.New(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to initialize audit archive: %v", err)
	}
	if backend != nil {
		archive = storage.NewArchiver(backend, stats)
		campaigns.AddObserver(archive)
		log.Printf("Audit archive enabled (%s)", cfg.Archive.Type)
	}

	// Tracking: consume from the edge queue when one is configured, else
	// record directly from the embedded endpoints.
	var consumer *tracking.Consumer
	var sink tracking.Sink = tracking.NewDirectSink(events)
	if cfg.SQS.QueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQS.Region))
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		sqsClient := sqs.NewFromConfig(awsCfg)
		consumer = tracking.NewConsumer(sqsClient, cfg.SQS.QueueURL, events)
		consumer.Start(ctx)
		sink = tracking.NewPublisher(sqsClient, cfg.SQS.QueueURL)
	}
	tracker := tracking.NewHandler(signer, sink, repos.campaigns)
	if cfg.Tracking.FilterBot {
		tracker.SetBotFilter(tracking.NewBotDetector())
	}

	// Background workers
	scheduler := worker.NewScheduler(campaigns, cfg.Campaign.SchedulerPoll())
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	observation := worker.NewObservationWorker(campaigns, cfg.Campaign.ObservationWindow(), cfg.Campaign.ObservationPoll())
	if err := observation.Start(); err != nil {
		log.Fatalf("Failed to start observation worker: %v", err)
	}

	server := api.NewServer(cfg.Server, api.Services{
		Recipients: recipients,
		Templates:  templates,
		Campaigns:  campaigns,
		Events:     events,
		Analytics:  stats,
		Archive:    archive,
		Tracking:   tracker.Routes(),
		Health:     health,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	scheduler.Stop()
	observation.Stop()
	if consumer != nil {
		consumer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	dispatcher.Shutdown()
	if notifier != nil {
		notifier.Wait()
	}
	if archive != nil {
		archive.Wait()
	}
	cancel()
	log.Println("Server stopped")
}
