package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jellyjelly/campaign-engine/internal/activity"
	"github.com/jellyjelly/campaign-engine/internal/api"
	"github.com/jellyjelly/campaign-engine/internal/campaign"
	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/directory"
	"github.com/jellyjelly/campaign-engine/internal/events"
	"github.com/jellyjelly/campaign-engine/internal/mailgun"
	"github.com/jellyjelly/campaign-engine/internal/repository/postgres"
	"github.com/jellyjelly/campaign-engine/internal/sequence"
	"github.com/jellyjelly/campaign-engine/internal/ses"
	"github.com/jellyjelly/campaign-engine/internal/suppression"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("[Server] fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	transport, store, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		store = suppression.NewCache(store, rdb, cfg.Redis.CacheTTL())
		log.Printf("[Server] suppression cache enabled (redis %s)", cfg.Redis.Addr)
	}

	templates, err := delivery.LoadTemplates(cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	campaignRepo := postgres.NewCampaignRepository(db)
	sequenceRepo := postgres.NewSequenceRepository(db)
	eventRepo := postgres.NewEventRepository(db)
	outcomeRepo := postgres.NewOutcomeRepository(db)
	users := directory.NewClient(cfg.Directory)

	dispatcher := delivery.NewDispatcher(transport, cfg.Unsubscribe.Secret, cfg.Site.BaseURL)
	campaigns := campaign.NewService(campaignRepo, dispatcher, store, users, templates, cfg.Delivery)
	scheduler := sequence.NewScheduler(sequenceRepo, campaigns, templates)
	reconciler := sequence.NewReconciler(outcomeRepo, activity.NewClient(cfg.Activity))
	ingestor := events.NewIngestor(cfg.Mailgun.WebhookSigningKey, eventRepo, eventRepo, outcomeRepo, users)

	server := api.NewServer(cfg, campaigns, scheduler, reconciler, ingestor, store)
	log.Printf("[Server] provider=%s templates=%s", cfg.Provider, cfg.Templates.Dir)
	return server.Start(ctx)
}

// buildProvider selects the configured email provider. Both providers
// implement the transport and suppression store interfaces.
func buildProvider(ctx context.Context, cfg *config.Config) (delivery.Transport, delivery.SuppressionStore, error) {
	switch cfg.Provider {
	case "mailgun":
		client := mailgun.NewClient(cfg.Mailgun)
		return client, client, nil
	case "ses":
		transport, err := ses.NewTransport(ctx, cfg.SES)
		if err != nil {
			return nil, nil, fmt.Errorf("building SES transport: %w", err)
		}
		return transport, transport, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q (expected mailgun or ses)", cfg.Provider)
}
