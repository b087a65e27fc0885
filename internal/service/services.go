package service

import (
	"log/slog"

	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/studio-booking/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service/admin"
	"github.com/kirinyoku/studio-booking/internal/service/catalog"
	"github.com/kirinyoku/studio-booking/internal/service/contact"
	"github.com/kirinyoku/studio-booking/internal/service/lifecycle"
	"github.com/kirinyoku/studio-booking/internal/service/registration"
)

// Services groups the application services. The data-backed services are nil
// when no data backend is configured; Contact does not need one.
type Services struct {
	Catalog      *catalog.Service
	Registration *registration.Service
	Lifecycle    *lifecycle.Service
	Admin        *admin.Service
	Contact      *contact.Service
}

// HasBackend reports whether the data-backed services are available.
func (s *Services) HasBackend() bool {
	return s != nil && s.Catalog != nil
}

type Repositories struct {
	Catalog       catalog.Repository
	Registrations registration.Repository
	Lifecycle     lifecycle.Repository
	Admin         admin.Repository
}

func PostgresRepositories(store *postgresrepo.Store) *Repositories {
	regs := store.Registrations()
	return &Repositories{
		Catalog:       store.Catalog(),
		Registrations: regs,
		Lifecycle:     regs,
		Admin:         store.Admin(),
	}
}

func MemoryRepositories(store *memory.Store) *Repositories {
	return &Repositories{
		Catalog:       store,
		Registrations: store,
		Lifecycle:     store,
		Admin:         store,
	}
}

type Deps struct {
	Cache      *redisrepo.Cache
	Feed       *redisrepo.AvailabilityFeed
	Limiter    *redisrepo.Limiter
	Dispatcher *notify.Dispatcher
	Logger     *slog.Logger
}

type Config struct {
	Catalog      catalog.Config
	Registration registration.Config
	Lifecycle    lifecycle.Config
	Contact      contact.Config
}

// NewServices wires the services. repos may be nil.
func NewServices(repos *Repositories, deps Deps, cfg Config) *Services {
	s := &Services{
		Contact: contact.New(deps.Dispatcher, deps.Limiter, deps.Logger, cfg.Contact),
	}
	if repos == nil {
		return s
	}

	s.Catalog = catalog.New(repos.Catalog, deps.Cache, cfg.Catalog)
	s.Registration = registration.New(registration.Deps{
		Repo:     repos.Registrations,
		Catalog:  s.Catalog,
		Notifier: deps.Dispatcher,
		Feed:     deps.Feed,
		Limiter:  deps.Limiter,
		Logger:   deps.Logger,
	}, cfg.Registration)
	s.Lifecycle = lifecycle.New(repos.Lifecycle, s.Catalog, deps.Dispatcher, deps.Feed, deps.Logger, cfg.Lifecycle)
	s.Admin = admin.New(repos.Admin, deps.Cache, deps.Feed, deps.Logger)

	return s
}
