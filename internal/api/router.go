package api

import (
	"context"
	"net/http"

	"github.com/brainbox/retailplus/internal/api/handlers"
	mw "github.com/brainbox/retailplus/internal/api/middleware"
	"github.com/brainbox/retailplus/internal/config"
	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/gateway"
	"github.com/brainbox/retailplus/internal/metrics"
	"github.com/brainbox/retailplus/internal/service"
	"github.com/brainbox/retailplus/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and the background services for lifecycle management.
type App struct {
	Router   *chi.Mux
	Resolver *service.TenantResolver
	Monitor  *service.ConnectivityMonitor
	Sync     *service.SyncService
	Queue    *service.QueueService
	Records  *service.RecordService
	Sales    *service.SaleService
	Cleanup  *service.HousekeepingService
	Metrics  *metrics.Metrics
	DeviceID string
}

func NewApp(ctx context.Context, kv domain.KVStore, gw domain.Gateway, logger *zap.Logger) *App {
	m := metrics.New()

	deviceID, err := service.DeviceID(ctx, kv)
	if err != nil {
		logger.Warn("device id unavailable", zap.Error(err))
	}

	// Services
	scope := service.NewScope()
	cache := service.NewCacheService(kv, scope, logger)

	queue := service.NewQueueService(ctx, kv, gw, logger)
	queue.SetEntryTimeout(config.EntryTimeout())
	queue.SetMetrics(m)

	monitor := service.NewConnectivityMonitor(gw, logger)
	monitor.SetProbeTimeout(config.ProbeTimeout())
	monitor.SetWatch(config.BackendWatchAddr(), config.NetworkCheckInterval())
	monitor.SetMetrics(m)

	syncSvc := service.NewSyncService(queue, cache, monitor, gw, scope, kv, logger)
	syncSvc.SetInterval(config.SyncInterval())
	syncSvc.SetReadTimeout(config.PullTimeout())
	syncSvc.SetMetrics(m)

	resolver := service.NewTenantResolver(kv, gw, cache, queue, scope, logger)
	resolver.SetOwnerCredentials(config.OwnerKey(), config.OwnerSecret())
	resolver.SetLookupTimeout(config.ProbeTimeout())

	records := service.NewRecordService(cache, queue, scope, logger)
	sales := service.NewSaleService(records, resolver, logger)

	cleanup := service.NewHousekeepingService(kv, queue, logger)
	cleanup.SetInterval(config.HousekeepingInterval())
	cleanup.SetRetention(config.FailureRetention())

	// Handlers
	healthHandler := handlers.NewHealthHandler(monitor, resolver, deviceID)
	sessionHandler := handlers.NewSessionHandler(resolver)
	tenantHandler := handlers.NewTenantHandler(resolver)
	recordHandler := handlers.NewRecordHandler(records)
	saleHandler := handlers.NewSaleHandler(sales)
	syncHandler := handlers.NewSyncHandler(syncSvc, queue)
	connectivityHandler := handlers.NewConnectivityHandler(monitor)

	r := chi.NewRouter()

	app := &App{
		Router:   r,
		Resolver: resolver,
		Monitor:  monitor,
		Sync:     syncSvc,
		Queue:    queue,
		Records:  records,
		Sales:    sales,
		Cleanup:  cleanup,
		Metrics:  m,
		DeviceID: deviceID,
	}

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(m))
	r.Use(mw.Logging(logger, scope))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler.Get)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.BearerToken(config.APIToken()))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/resolve", sessionHandler.Resolve)
		})

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", tenantHandler.List)
			r.Post("/", tenantHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", tenantHandler.Update)
				r.Post("/switch", tenantHandler.Switch)
				r.With(mw.OwnerOnly(resolver)).Delete("/", tenantHandler.Purge)
			})
		})

		r.Route("/collections/{table}", func(r chi.Router) {
			r.Get("/", recordHandler.List)
			r.Post("/", recordHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", recordHandler.GetByID)
				r.Put("/", recordHandler.Update)
				r.Delete("/", recordHandler.Delete)
			})
		})

		r.Post("/sales", saleHandler.Create)

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", syncHandler.Now)
			r.Post("/push", syncHandler.Push)
			r.Post("/pull", syncHandler.Pull)
			r.Get("/status", syncHandler.Status)
			r.Get("/pending", syncHandler.Pending)
			r.Get("/failures", syncHandler.Failures)
			r.Delete("/failures/{id}", syncHandler.DismissFailure)
		})

		r.Route("/connectivity", func(r chi.Router) {
			r.Get("/", connectivityHandler.Get)
			r.Put("/", connectivityHandler.SetOnline)
			r.Post("/probe", connectivityHandler.Probe)
		})
	})

	return app
}

// Start launches the network watcher, the background sync loop and
// local housekeeping.
func (app *App) Start() {
	app.Monitor.Start()
	app.Sync.Start()
	app.Cleanup.Start()
}

// Stop halts background work. It is safe to call more than once.
func (app *App) Stop() {
	app.Cleanup.Stop()
	app.Sync.Stop()
	app.Monitor.Stop()
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.KVStore             = (*store.KVStore)(nil)
	_ domain.Gateway             = (*gateway.RESTClient)(nil)
	_ domain.Gateway             = (*gateway.PostgresClient)(nil)
	_ domain.Gateway             = (*gateway.MockClient)(nil)
	_ domain.Gateway             = (*gateway.UnconfiguredClient)(nil)
	_ mw.TenantSource            = (*service.Scope)(nil)
	_ mw.OwnerChecker            = (*service.TenantResolver)(nil)
	_ service.ActiveTenantReader = (*service.TenantResolver)(nil)
)
