package router

import (
	"net/http"
	"time"

	"github.com/cuotas/backend/internal/infrastructure/auth"
	"github.com/cuotas/backend/internal/infrastructure/config"
	"github.com/cuotas/backend/internal/infrastructure/logger"
	"github.com/cuotas/backend/internal/interfaces/http/handler"
	"github.com/cuotas/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers bundles the HTTP handlers registered by the router
type Handlers struct {
	Student *handler.StudentHandler
	Payment *handler.PaymentHandler
	Webhook *handler.WebhookHandler
}

// Config holds everything the router needs to assemble the engine
type Config struct {
	Logger     *zap.Logger
	JWTService *auth.JWTService
	HTTP       config.HTTPConfig
	Telemetry  config.TelemetryConfig
	Handlers   Handlers
	// HealthCheck reports readiness of downstream dependencies (database).
	// A nil check means always healthy.
	HealthCheck func() error
}

// New assembles the gin engine: middleware chain, health endpoints and the
// versioned API routes. The order of the middleware matters; request ID and
// recovery run before anything that might log or panic.
func New(cfg Config) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}

	engine.GET("/health", healthHandler(cfg.HealthCheck))
	engine.GET("/ready", healthHandler(cfg.HealthCheck))

	// Gateway notifications skip auth; the webhook service verifies the
	// payment against the gateway API before touching anything.
	webhooks := engine.Group("/api/v1/webhooks")
	webhooks.POST("/gateway", cfg.Handlers.Webhook.HandleGatewayNotification)

	api := engine.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTService))

	students := api.Group("/students")
	students.POST("", cfg.Handlers.Student.CreateStudent)
	students.GET("/:id/ledger", cfg.Handlers.Student.GetLedger)
	students.GET("/:id/payments", cfg.Handlers.Student.ListPayments)
	students.GET("/:id/coverage", cfg.Handlers.Student.EstimateCoverage)

	payments := api.Group("/payments")
	payments.POST("/cash", cfg.Handlers.Payment.SubmitCash)
	payments.POST("/transfer", cfg.Handlers.Payment.SubmitTransfer)
	payments.POST("/upload",
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		cfg.Handlers.Payment.SubmitUpload)
	payments.PATCH("/:id", cfg.Handlers.Payment.ReviewPayment)
	payments.PATCH("/groups/:transactionRef", cfg.Handlers.Payment.ReviewGroup)

	return engine
}

func healthHandler(check func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(); err != nil {
				reqLog := logger.GetGinLogger(c)
				reqLog.Warn("Health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"time":     time.Now().Format(time.RFC3339),
					"database": "error",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
