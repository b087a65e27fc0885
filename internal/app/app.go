package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/studio-booking/internal/config"
	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/postgres"
	"github.com/kirinyoku/studio-booking/internal/redis"
	"github.com/kirinyoku/studio-booking/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/studio-booking/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service"
	"github.com/kirinyoku/studio-booking/internal/service/catalog"
	"github.com/kirinyoku/studio-booking/internal/service/contact"
	"github.com/kirinyoku/studio-booking/internal/service/lifecycle"
	"github.com/kirinyoku/studio-booking/internal/service/registration"
	httpgin "github.com/kirinyoku/studio-booking/internal/transport/http/gin"
)

// idemPendingTTL bounds how long a crashed request can block its Idempotency-Key.
const idemPendingTTL = time.Minute

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	dispatcher *notify.Dispatcher
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	repos, backend, err := a.dataBackend(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache   *redisrepo.Cache
		feed    *redisrepo.AvailabilityFeed
		limiter *redisrepo.Limiter
		idem    *redisrepo.IdempotencyStore
	)
	if rdb := a.redisClient(ctx); rdb != nil {
		cache = redisrepo.New(rdb, cfg.Cache.CatalogTTL)
		feed = redisrepo.NewAvailabilityFeed(rdb)
		limiter = redisrepo.NewLimiter(rdb,
			redisrepo.Policy{Limit: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window},
			map[string]redisrepo.Policy{
				"contact": {Limit: cfg.RateLimit.ContactRequests, Window: cfg.RateLimit.Window},
			},
		)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Cache.IdempotencyTTL, idemPendingTTL)
	}

	mailer, err := notify.NewMailer(ctx, notify.MailerConfig{
		Provider:    cfg.Mail.Provider,
		FromAddress: cfg.Mail.FromAddress,
		FromName:    cfg.Mail.FromName,
		SES: notify.SESConfig{
			Region:          cfg.Mail.AWSRegion,
			AccessKeyID:     cfg.Mail.AWSAccessKeyID,
			SecretAccessKey: cfg.Mail.AWSSecretAccessKey,
		},
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	a.dispatcher = notify.NewDispatcher(notify.NewTemplateRenderer(), mailer, logger, notify.Config{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
		Attempts:  cfg.Notify.Attempts,
	})

	services := service.NewServices(repos, service.Deps{
		Cache:      cache,
		Feed:       feed,
		Limiter:    limiter,
		Dispatcher: a.dispatcher,
		Logger:     logger,
	}, service.Config{
		Catalog: catalog.Config{
			HourlyRateCents: cfg.Pricing.CollectiveHourlyRateCents,
		},
		Registration: registration.Config{OwnerEmail: cfg.Notify.OwnerEmail},
		Lifecycle: lifecycle.Config{
			AccountHolder:   cfg.Payment.AccountHolder,
			IBAN:            cfg.Payment.IBAN,
			ReferencePrefix: cfg.Payment.ReferencePrefix,
		},
		Contact: contact.Config{OwnerEmail: cfg.Notify.OwnerEmail},
	})

	router := httpgin.NewRouter(services, httpgin.Options{
		Logger:       logger,
		Idem:         idem,
		Feed:         feed,
		AdminSecret:  cfg.Admin.Secret,
		CookieSecure: cfg.Admin.CookieSecure,
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		Backend:      backend,
	})

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	return a, nil
}

// dataBackend opens the configured data backend. Missing Postgres credentials
// leave the backend absent so data routes answer 503; configured but
// unreachable Postgres fails startup.
func (a *App) dataBackend(ctx context.Context) (*service.Repositories, string, error) {
	switch a.cfg.DataBackend {
	case config.BackendMemory:
		a.logger.Warn("using in-memory data backend, data is lost on restart")
		return service.MemoryRepositories(memory.New()), config.BackendMemory, nil
	case config.BackendNone:
		return nil, config.BackendNone, nil
	}

	dsn := a.cfg.Postgres.DSN()
	if dsn == "" {
		a.logger.Warn("postgres credentials missing, data routes will answer 503")
		return nil, config.BackendNone, nil
	}

	pool, err := postgres.New(ctx, postgres.Config{DSN: dsn, MaxConns: a.cfg.Postgres.MaxConns})
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if a.cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, "", fmt.Errorf("failed to migrate postgres: %w", err)
		}
		a.logger.Info("postgres schema applied")
	}

	return service.PostgresRepositories(postgresrepo.NewStore(pool)), config.BackendPostgres, nil
}

// redisClient returns nil when Redis is not configured or not reachable; the
// features built on it are then disabled.
func (a *App) redisClient(ctx context.Context) *goredis.Client {
	if a.cfg.Redis.Addr == "" && a.cfg.Redis.URL == "" {
		a.logger.Info("redis not configured, caching, rate limiting, idempotency and the availability stream are off")
		return nil
	}

	rdb, err := redis.New(ctx, redis.Config{
		URL:      a.cfg.Redis.URL,
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		a.logger.Warn("redis unavailable, running without it", "addr", a.cfg.Redis.Addr, "error", err)
		return nil
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	return rdb
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// The dispatcher outlives the HTTP server so late notifications still drain.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g.Go(func() error {
		return a.dispatcher.Run(dispatchCtx)
	})

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		defer stopDispatch()

		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
