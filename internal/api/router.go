// Package api wires together all HTTP routes for the task manager backend.
//
// Route grouping:
//   - /health, /ready and /version are public and exempt from the client version gate.
//   - /api/auth/register and /api/auth/login are public but rate limited.
//   - Everything else under /api requires a bearer JWT. Routes that are allowed for only
//     some roles are gated with RequireCapability; per-task rules are applied by the task
//     service itself.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/task-manager/task-manager/internal/api/accounts"
	"github.com/task-manager/task-manager/internal/api/auditlog"
	"github.com/task-manager/task-manager/internal/api/organizations"
	taskapi "github.com/task-manager/task-manager/internal/api/tasks"
	"github.com/task-manager/task-manager/internal/api/users"
	"github.com/task-manager/task-manager/internal/audit"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/db"
	"github.com/task-manager/task-manager/internal/db/repositories"
	"github.com/task-manager/task-manager/internal/middleware"
	"github.com/task-manager/task-manager/internal/tasks"
	"github.com/task-manager/task-manager/internal/validation"

	// Register archive storage backends
	_ "github.com/task-manager/task-manager/internal/storage/azure"
	_ "github.com/task-manager/task-manager/internal/storage/gcs"
	_ "github.com/task-manager/task-manager/internal/storage/local"
	_ "github.com/task-manager/task-manager/internal/storage/s3"
)

// Version is the build version, set with -ldflags "-X .../internal/api.Version=..."
var Version = "dev"

// APIVersion is the version of the HTTP contract
const APIVersion = "v1"

// BackgroundServices holds resources that must be released during graceful shutdown.
// The caller (cmd/server) calls Shutdown after the HTTP server has drained.
type BackgroundServices struct {
	limiter  middleware.Limiter
	shippers *audit.MultiShipper
}

// Shutdown stops background goroutines and flushes audit shippers
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.limiter != nil {
		if err := bg.limiter.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "error", err)
		}
	}
	if bg.shippers != nil {
		if err := bg.shippers.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, sqlDB *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	if err := validation.RegisterGinValidators(); err != nil {
		return nil, nil, fmt.Errorf("failed to register validators: %w", err)
	}

	policy, err := authz.NewPolicy()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load authorization policy: %w", err)
	}
	engine := authz.NewEngine(policy)

	bg := &BackgroundServices{}

	shippers, err := audit.NewMultiShipper(audit.ShipperConfigsFrom(cfg.Audit.Shippers))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	bg.shippers = shippers
	slog.Info("audit shippers initialized", "count", shippers.Len())

	store := repositories.NewStore(sqlDB)
	auditLog := audit.NewLog(store,
		audit.WithShipper(shippers),
		audit.WithOrganizationLimit(cfg.Audit.OrganizationLimit),
	)
	taskService := tasks.NewService(tasks.NewSQLStore(store), engine, auditLog)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(sqlDB))
	router.GET("/ready", readinessHandler(sqlDB))
	router.GET("/version", versionHandler())

	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.ClientVersionMiddleware(cfg.Server.MinClientVersion))

	if cfg.Security.RateLimiting.Enabled {
		limiter, backend, err := middleware.NewLimiter(cfg.Security.RateLimiting)
		if err != nil {
			bg.Shutdown()
			return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		bg.limiter = limiter
		apiGroup.Use(middleware.RateLimitMiddleware(limiter, backend))
		slog.Info("rate limiting enabled", "backend", backend, "requests_per_minute", limiter.Limit())
	}

	authed := apiGroup.Group("")
	authed.Use(middleware.AuthMiddleware(store.Users))

	accounts.NewHandlers(cfg.Auth, accounts.NewSQLStore(store, auditLog)).RegisterRoutes(apiGroup, authed)
	taskapi.NewHandlers(taskService).RegisterRoutes(authed)

	auditHandlers := auditlog.NewHandlers(auditLog, store)
	auditGroup := authed.Group("/audit-logs")
	auditGroup.Use(middleware.RequireCapability(policy, authz.CapAuditRead))
	{
		auditGroup.GET("", auditHandlers.ListAuditLogsHandler())
		auditGroup.GET("/:entityType/:entityId", auditHandlers.EntityHistoryHandler())
	}

	orgHandlers := organizations.NewHandlers(organizations.NewSQLStore(store, auditLog))
	authed.GET("/organizations/current",
		middleware.RequireCapability(policy, authz.CapOrganizationRead),
		orgHandlers.CurrentOrganizationHandler())
	authed.POST("/organizations",
		middleware.RequireCapability(policy, authz.CapOrganizationCreate),
		orgHandlers.CreateOrganizationHandler())

	userHandlers := users.NewHandlers(users.NewSQLStore(store, auditLog), cfg.Auth.BcryptCost)
	authed.GET("/users",
		middleware.RequireCapability(policy, authz.CapUserList),
		userHandlers.ListUsersHandler())
	authed.POST("/users",
		middleware.RequireCapability(policy, authz.CapUserCreate),
		userHandlers.CreateUserHandler())

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(sqlDB *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity and schema state.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also fails while a migration is half applied.
func readinessHandler(sqlDB *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		version, dirty, err := db.SchemaState(c.Request.Context(), sqlDB)
		if err != nil || dirty {
			checks["migrations"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "schema not ready",
			})
			return
		}
		checks["migrations"] = version

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the build version and the HTTP contract version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": APIVersion,
		})
	}
}
