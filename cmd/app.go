package main

import (
	"context"
	"fmt"

	"cravebiz/internal/caching"
	"cravebiz/internal/config"
	"cravebiz/internal/dispatch"
	"cravebiz/internal/logger"
	"cravebiz/internal/repositories"
	"cravebiz/internal/services"
	"cravebiz/internal/storage"
	"cravebiz/internal/tenantsync"
	"cravebiz/internal/textgen"
	"cravebiz/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// app holds the wired dependencies shared by every command. Optional
// backends (cache, logos, dispatcher, generator) stay nil when unconfigured
// or unreachable.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	pool      *pgxpool.Pool
	invoices  repositories.InvoiceRepository
	clients   repositories.ClientRepository
	services  repositories.ServiceRepository
	companies repositories.CompanyRepository
	profiles  repositories.ProfileRepository

	cache      caching.CacheService
	logos      storage.LogoStore
	dispatcher *dispatch.KafkaDispatcher
	assistant  *textgen.Assistant
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, log: logger.WithComponent("app")}

	pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger.WithComponent("database"))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool

	a.invoices = repositories.NewInvoiceRepo(pool, logger.WithComponent("invoices"))
	a.clients = repositories.NewClientRepo(pool)
	a.services = repositories.NewServiceRepo(pool)
	a.companies = repositories.NewCompanyRepo(pool)
	a.profiles = repositories.NewProfileRepo(pool)

	if cfg.Redis.Addr != "" {
		cache := caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger.WithComponent("cache"))
		if err := cache.Ping(ctx); err != nil {
			a.log.Warn().Err(err).Msg("redis unreachable, running without distributed lock")
			_ = cache.Close()
		} else {
			a.cache = cache
		}
	}

	if cfg.Minio.Endpoint != "" {
		logos, err := storage.NewMinioLogoStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.Bucket, cfg.Minio.PublicBase)
		if err != nil {
			a.log.Warn().Err(err).Msg("logo storage disabled")
		} else if err := logos.EnsureBucketExists(ctx); err != nil {
			a.log.Warn().Err(err).Str("bucket", cfg.Minio.Bucket).Msg("logo bucket unavailable")
		} else {
			a.logos = logos
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.dispatcher = dispatch.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.DispatchTopic, cfg.Kafka.WriteTimeout, logger.WithComponent("dispatch"))
	}

	var gen textgen.Generator
	if cfg.OpenAI.APIKey != "" {
		breaker := textgen.NewCircuitBreaker(cfg.OpenAI.MaxFailures, cfg.OpenAI.ResetTimeout)
		gen = textgen.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, breaker, logger.WithComponent("textgen"))
	}
	a.assistant = textgen.NewAssistant(gen, logger.WithComponent("textgen"))

	return a, nil
}

func (a *app) workspace() services.Workspace {
	return services.NewWorkspaceService(services.WorkspaceDeps{
		Clients:   a.clients,
		Services:  a.services,
		Invoices:  a.invoices,
		Companies: a.companies,
		Profiles:  a.profiles,
		Logos:     a.logos,
		Assistant: a.assistant,
		Cache:     a.cache,
	}, logger.WithComponent("workspace"))
}

// snapshots returns a controller that reads through the workspace so every
// fetched record is re-checked against the tenant.
func (a *app) snapshots(ws services.Workspace) *tenantsync.Controller {
	return tenantsync.NewController(ws, logger.WithComponent("tenantsync"))
}

func (a *app) lifecycle(syncer services.SnapshotSyncer) (services.Lifecycle, error) {
	if a.dispatcher == nil {
		return nil, fmt.Errorf("KAFKA_BROKERS is required to deliver invoices")
	}
	return services.NewLifecycleService(a.invoices, a.clients, a.dispatcher, syncer, logger.WithComponent("lifecycle")), nil
}

func (a *app) recurrence() services.RecurrenceEngine {
	return services.NewRecurrenceService(a.invoices, a.cache, services.RecurrenceOptions{
		MaxCatchUp: a.cfg.Recurrence.MaxCatchUp,
		LockTTL:    a.cfg.Recurrence.LockTTL,
	}, logger.WithComponent("recurrence"))
}

func (a *app) Close() {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close dispatcher")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close cache")
		}
	}
	a.pool.Close()
}
