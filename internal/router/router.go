// internal/router/router.go
package router

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ndstrzz/taedal-v7-sub000/internal/config"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/handlers"
	"github.com/ndstrzz/taedal-v7-sub000/internal/metrics"
	"github.com/ndstrzz/taedal-v7-sub000/internal/middleware"
	"github.com/ndstrzz/taedal-v7-sub000/internal/services"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

const Version = "1.0.0"

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	DB       *gorm.DB
	Config   *config.Config
	Objects  services.ObjectStore
	Events   events.Sink
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// Initialize wires services and handlers into a gin engine. ctx bounds the
// background goroutines the middleware starts.
func Initialize(ctx context.Context, deps Dependencies) *gin.Engine {
	cfg := deps.Config
	st := store.NewGormStore(deps.DB)
	opts := []services.Option{services.WithMetrics(deps.Metrics)}

	// Initialize services
	negotiationService := services.NewNegotiationService(st, opts...)
	approvalService := services.NewApprovalService(st, opts...)
	executionService := services.NewExecutionService(st, deps.Objects, opts...)
	paymentService := services.NewPaymentService(st, cfg)

	// Initialize handlers
	negotiationHandler := handlers.NewNegotiationHandler(negotiationService, deps.Events)
	approvalHandler := handlers.NewApprovalHandler(negotiationService, approvalService, deps.Events)
	executionHandler := handlers.NewExecutionHandler(negotiationService, executionService, deps.Events,
		int64(cfg.Server.MaxUploadMB)<<20, cfg.AWS.PresignDuration())
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	healthHandler := handlers.NewHealthHandler(deps.DB, Version)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	go limiter.Run(ctx)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Metrics))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestTimeout(cfg.Server.RequestTimeoutDuration()))

	r.GET("/health", healthHandler.Health)
	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	if !cfg.AWS.S3Enabled() {
		// Executed documents on local disk, development only
		r.Static("/uploads", cfg.Storage.LocalDir)
	}

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired(), limiter.Middleware(), middleware.AuditLogMiddleware(deps.DB))
	{
		negotiations := v1.Group("/negotiations")
		{
			negotiations.POST("", negotiationHandler.CreateRequest)
			negotiations.GET("", negotiationHandler.ListRequests)
			negotiations.GET("/:id", negotiationHandler.GetRequest)
			negotiations.GET("/:id/terms", negotiationHandler.GetWorkingTerms)
			negotiations.GET("/:id/draft", negotiationHandler.GetDraft)

			negotiations.GET("/:id/messages", negotiationHandler.ListMessages)
			negotiations.POST("/:id/messages", negotiationHandler.PostMessage)
			negotiations.GET("/:id/messages/:messageId/diff", negotiationHandler.DiffMessage)

			negotiations.POST("/:id/accept-patch", negotiationHandler.AcceptPatch)
			negotiations.POST("/:id/accept", negotiationHandler.AcceptOffer)
			negotiations.POST("/:id/decline", negotiationHandler.Decline)
			negotiations.POST("/:id/withdraw", negotiationHandler.Withdraw)

			negotiations.POST("/:id/approvals", approvalHandler.RecordDecision)
			negotiations.GET("/:id/approvals", approvalHandler.GetApprovals)

			negotiations.POST("/:id/execution", executionHandler.RecordExecution)
			negotiations.POST("/:id/execution/verify", executionHandler.VerifyDocument)
			negotiations.GET("/:id/execution/url", executionHandler.DocumentURL)

			negotiations.POST("/:id/checkout", paymentHandler.CreateCheckout)
		}
	}

	return r
}
