package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduler-api/internal/config"
	"github.com/jwalitptl/scheduler-api/internal/email"
	"github.com/jwalitptl/scheduler-api/internal/repository/postgres"
	availabilityService "github.com/jwalitptl/scheduler-api/internal/service/availability"
	notificationService "github.com/jwalitptl/scheduler-api/internal/service/notification"
	"github.com/jwalitptl/scheduler-api/internal/worker"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
	"github.com/jwalitptl/scheduler-api/pkg/messaging/redis"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

// The worker repairs full flags left stale by failed writes. Run it with
// -once from cron, or without flags as a long running process.
func main() {
	once := flag.Bool("once", false, "sweep once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	lg := logger.New(cfg.Log)

	if err := run(cfg, lg, *once); err != nil {
		lg.Fatal().Err(err).Msg("worker exited with error")
	}
}

func run(cfg *config.Config, lg zerolog.Logger, once bool) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return errors.New("the sweeper needs a shared postgres database")
	}
	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database.Config)
	if err != nil {
		return err
	}
	defer db.Close()
	store := postgres.NewStore(db)

	// Nothing scrapes the worker, so its metrics stay unregistered.
	m := metrics.New(cfg.Monitoring.Namespace, nil)

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		rb, err := redis.NewRedisBroker(ctx, cfg.Redis, lg)
		if err != nil {
			return err
		}
		defer rb.Close()
		broker = rb
	}

	var mailer email.Service
	if cfg.SMTP.Enabled() {
		mailer = email.NewService(cfg.SMTP, loc)
	}

	notifier := notificationService.NewService(broker, mailer, store.Therapists, m, lg)
	defer notifier.Wait()

	// The API never tells this process about service changes, so durations
	// are read fresh on every recompute.
	availabilitySvc := availabilityService.NewService(store, availabilityService.Config{
		Location:            loc,
		DisableServiceCache: true,
	}, notifier, m, lg)
	w := worker.NewSweepWorker(availabilitySvc, cfg.Scheduling.Sweep, lg)

	if once {
		_, err := w.RunOnce(ctx)
		return err
	}
	w.Start(ctx)
	return nil
}
