package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/handler"
	adminHandler "github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/handler/admin"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/audit"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/database"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

type Dependencies struct {
	Store        *repository.Store
	Events       handler.EventService
	Scheduler    adminHandler.RetryService
	Breaker      adminHandler.CircuitService
	Monitor      adminHandler.MonitorService
	Orchestrator adminHandler.SyncService
	Routes       adminHandler.RouteTable
	// DB backs /ready; leave nil with the memory store driver.
	DB database.Pinger
	// Queue backs /ready together with DB; nil skips the check.
	Queue   handler.QueueChecker
	Systems []string
	// IntakeRateLimit is events per minute per producing system; 0 disables it.
	IntakeRateLimit int
	// Audit receives admin write actions. Defaults to the router logger.
	Audit audit.Logger
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Carinho Integracoes Hub",
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Idempotency-Key,X-Source-System",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var (
		db    database.Pinger
		queue handler.QueueChecker
	)
	if r.deps != nil {
		db = r.deps.DB
		queue = r.deps.Queue
	}
	healthHandler := handler.NewHealthHandler(db, queue)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")

	eventsHandler := handler.NewEventsHandler(r.deps.Events, r.deps.Store.Deliveries, r.logger)
	if r.deps.IntakeRateLimit > 0 {
		r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Max: r.deps.IntakeRateLimit,
		})
		v1.Post("/events", r.rateLimiter.Handler(), eventsHandler.Submit)
	} else {
		v1.Post("/events", eventsHandler.Submit)
	}
	v1.Get("/events/:id", eventsHandler.Get)
	v1.Get("/events/:id/deliveries", eventsHandler.Deliveries)

	r.setupAdminRoutes(v1.Group("/admin"))
}

func (r *Router) audit(action audit.Action, targetParam string) fiber.Handler {
	return middleware.Audit(r.deps.Audit, action, targetParam)
}

func (r *Router) setupAdminRoutes(adminGroup fiber.Router) {
	if r.deps.Audit == nil {
		r.deps.Audit = audit.NewSlogLogger(r.logger)
	}

	monitorHandler := adminHandler.NewMonitorHandler(r.deps.Monitor, r.logger)
	circuitsHandler := adminHandler.NewCircuitsHandler(r.deps.Breaker, r.deps.Systems, r.logger)
	retryHandler := adminHandler.NewRetryHandler(r.deps.Scheduler, r.deps.Store.RetryQueue, r.deps.Store.DeadLetters, r.logger)
	endpointsHandler := adminHandler.NewEndpointsHandler(r.deps.Store.Endpoints, r.logger)
	syncHandler := adminHandler.NewSyncHandler(r.deps.Orchestrator, r.logger)
	routesHandler := adminHandler.NewRoutesHandler(r.deps.Routes)

	// Monitoring
	adminGroup.Get("/dashboard", monitorHandler.Dashboard)
	adminGroup.Get("/alerts", monitorHandler.Alerts)
	adminGroup.Get("/health", monitorHandler.Health)

	// Circuits
	adminGroup.Get("/circuits", circuitsHandler.List)
	adminGroup.Post("/circuits/:service/reset", r.audit(audit.ActionCircuitReset, "service"), circuitsHandler.Reset)

	// Retries and dead letters
	adminGroup.Get("/retry-queue", retryHandler.ListQueue)
	adminGroup.Post("/retry-queue/process", r.audit(audit.ActionRetrySweep, ""), retryHandler.ProcessQueue)
	adminGroup.Post("/retry-queue/:event_id/requeue", r.audit(audit.ActionRetryRequeue, "event_id"), retryHandler.Requeue)
	adminGroup.Get("/dead-letters", retryHandler.ListDeadLetters)
	adminGroup.Post("/dead-letters/:id/replay", r.audit(audit.ActionDeadLetterReplay, "id"), retryHandler.Replay)

	// Endpoints
	adminGroup.Get("/endpoints", endpointsHandler.List)
	adminGroup.Post("/endpoints", r.audit(audit.ActionEndpointCreate, ""), endpointsHandler.Create)
	adminGroup.Patch("/endpoints/:id", r.audit(audit.ActionEndpointUpdate, "id"), endpointsHandler.Update)

	// Sync jobs
	adminGroup.Get("/sync-jobs", syncHandler.List)
	adminGroup.Post("/sync-jobs/:job_type/run", r.audit(audit.ActionSyncRun, "job_type"), syncHandler.Run)

	adminGroup.Get("/routes", routesHandler.List)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
	return r.app.Shutdown()
}
