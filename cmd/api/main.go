package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/scheduler-api/internal/config"
	"github.com/jwalitptl/scheduler-api/internal/email"
	appointmentHandler "github.com/jwalitptl/scheduler-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/scheduler-api/internal/handler/auth"
	availabilityHandler "github.com/jwalitptl/scheduler-api/internal/handler/availability"
	"github.com/jwalitptl/scheduler-api/internal/handler/health"
	therapistHandler "github.com/jwalitptl/scheduler-api/internal/handler/therapist"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/internal/repository/memory"
	"github.com/jwalitptl/scheduler-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduler-api/internal/router"
	appointmentService "github.com/jwalitptl/scheduler-api/internal/service/appointment"
	authService "github.com/jwalitptl/scheduler-api/internal/service/auth"
	availabilityService "github.com/jwalitptl/scheduler-api/internal/service/availability"
	notificationService "github.com/jwalitptl/scheduler-api/internal/service/notification"
	therapistService "github.com/jwalitptl/scheduler-api/internal/service/therapist"
	"github.com/jwalitptl/scheduler-api/pkg/auth"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
	"github.com/jwalitptl/scheduler-api/pkg/messaging/redis"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
	"github.com/jwalitptl/scheduler-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.New(cfg.Log)
	if err := run(cfg, lg); err != nil {
		lg.Fatal().Err(err).Msg("server exited with error")
	}
	lg.Info().Msg("server exited properly")
}

func run(cfg *config.Config, lg zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return err
	}

	pingers := map[string]health.Pinger{}

	var store *repository.Store
	switch cfg.Database.Driver {
	case config.DriverMemory:
		lg.Warn().Msg("using in-memory storage, data is lost on restart")
		store = memory.NewStore(memory.New())
	default:
		db, err := postgres.NewDB(cfg.Database.Config)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		store = postgres.NewStore(db)
		pingers["database"] = dbPinger(db)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.Monitoring.Namespace, reg)

	// Leave broker a nil interface when redis is not configured.
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		rb, err := redis.NewRedisBroker(ctx, cfg.Redis, lg)
		if err != nil {
			return err
		}
		defer rb.Close()
		broker = rb
		pingers["redis"] = rb
	}

	var mailer email.Service
	if cfg.SMTP.Enabled() {
		mailer = email.NewService(cfg.SMTP, loc)
	}

	notifier := notificationService.NewService(broker, mailer, store.Therapists, m, lg)
	defer notifier.Wait()

	availabilitySvc := availabilityService.NewService(store, availabilityService.Config{
		Location:        loc,
		ServiceCacheTTL: cfg.Scheduling.ServiceCacheTTL,
	}, notifier, m, lg)
	hasher := security.NewBcryptHasher(bcrypt.DefaultCost)
	therapistSvc := therapistService.NewService(store, availabilitySvc, hasher, lg)
	authSvc := authService.NewService(store.Therapists, auth.NewJWTService(cfg.JWT), hasher, lg)
	appointmentSvc := appointmentService.NewService(store, availabilitySvc, notifier, m, lg)

	if err := middleware.RegisterValidators(); err != nil {
		return err
	}

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.Enabled {
		gatherer = reg
	}

	r := router.New(
		router.Config{
			Mode:           cfg.Server.Mode,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			HSTS:           cfg.Server.HSTS,
			CORS:           cfg.Server.CORS,
			RateLimit:      cfg.RateLimit,
		},
		middleware.NewAuthMiddleware(authSvc),
		health.NewHandler(pingers),
		m,
		gatherer,
		lg,
		authHandler.NewHandler(authSvc),
		therapistHandler.NewHandler(therapistSvc),
		availabilityHandler.NewHandler(availabilitySvc),
		appointmentHandler.NewHandler(appointmentSvc),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Int("port", cfg.Server.Port).Str("timezone", loc.String()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	lg.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func dbPinger(db *sqlx.DB) health.Pinger {
	return health.PingFunc(db.PingContext)
}
