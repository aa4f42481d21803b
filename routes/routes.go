package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"service-marketplace-server/metrics"
	"service-marketplace-server/middleware"
	"service-marketplace-server/services"
)

// Services bundles the domain services the handlers call into
type Services struct {
	JWT              *services.JWTService
	Identity         *services.IdentityService
	Verification     *services.VerificationService
	ProviderRequests *services.ProviderRequestService
	Catalog          *services.CatalogService
	Contracts        *services.ContractService
	Dashboard        *services.DashboardService
}

// Options tunes the router. A nil RateLimiter disables rate limiting.
type Options struct {
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// SetupRouter wires middleware and every API route
func SetupRouter(svc *Services, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}

	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.InputValidationMiddleware(opts.MaxBodyBytes))
	if opts.RateLimiter != nil {
		router.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}
	router.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	router.Use(middleware.AuditLogMiddleware(opts.Metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Service Marketplace Server is running",
			"time":    time.Now().UTC(),
		})
	})
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	requireAuth := middleware.AuthMiddleware(svc.JWT)
	optionalAuth := middleware.OptionalAuthMiddleware(svc.JWT)
	requireAdmin := middleware.AdminMiddleware()

	api := router.Group("/api/v1")
	{
		authRoutes := api.Group("/auth")
		if opts.RateLimiter != nil {
			authRoutes.Use(middleware.AuthRateLimitMiddleware(opts.RateLimiter))
		}
		RegisterAuthRoutes(authRoutes, svc, requireAuth)

		RegisterUserRoutes(api, svc, requireAuth, requireAdmin)
		RegisterProviderRoutes(api.Group("/provider"), svc, requireAuth, requireAdmin)
		RegisterCategoryRoutes(api.Group("/categories"), svc, requireAuth, requireAdmin)
		RegisterServiceRoutes(api.Group("/services"), svc, requireAuth, optionalAuth)
		RegisterContractRoutes(api.Group("/contracts", requireAuth), svc)
		RegisterAdminRoutes(api.Group("/admin", requireAuth, requireAdmin), svc)
	}

	return router
}
