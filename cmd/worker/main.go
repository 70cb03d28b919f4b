// The worker runs the sequence scheduler and outcome reconciler on a
// fixed interval, for deployments without an external cron hitting the
// HTTP trigger endpoints.
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
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jellyjelly/campaign-engine/internal/activity"
	"github.com/jellyjelly/campaign-engine/internal/campaign"
	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/directory"
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
		log.Printf("[Worker] fatal: %v", err)
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

	var transport delivery.Transport
	var store delivery.SuppressionStore
	switch cfg.Provider {
	case "mailgun":
		client := mailgun.NewClient(cfg.Mailgun)
		transport, store = client, client
	case "ses":
		t, err := ses.NewTransport(ctx, cfg.SES)
		if err != nil {
			return fmt.Errorf("building SES transport: %w", err)
		}
		transport, store = t, t
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		store = suppression.NewCache(store, rdb, cfg.Redis.CacheTTL())
	}

	templates, err := delivery.LoadTemplates(cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	dispatcher := delivery.NewDispatcher(transport, cfg.Unsubscribe.Secret, cfg.Site.BaseURL)
	campaigns := campaign.NewService(postgres.NewCampaignRepository(db), dispatcher, store,
		directory.NewClient(cfg.Directory), templates, cfg.Delivery)
	scheduler := sequence.NewScheduler(postgres.NewSequenceRepository(db), campaigns, templates)
	reconciler := sequence.NewReconciler(postgres.NewOutcomeRepository(db), activity.NewClient(cfg.Activity))

	interval := cfg.Scheduler.TickInterval()
	log.Printf("[Worker] ticking every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(ctx, scheduler, reconciler)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker] shutting down")
			return nil
		case <-ticker.C:
			tick(ctx, scheduler, reconciler)
		}
	}
}

func tick(ctx context.Context, scheduler *sequence.Scheduler, reconciler *sequence.Reconciler) {
	if report, err := scheduler.RunDue(ctx); err != nil {
		log.Printf("[Worker] scheduler run: %v", err)
	} else if report.Processed > 0 {
		log.Printf("[Worker] processed %d due campaigns", report.Processed)
	}

	if _, err := reconciler.Reconcile(ctx); err != nil {
		log.Printf("[Worker] outcome reconciliation: %v", err)
	}
}
