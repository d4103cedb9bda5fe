// Package router assembles the gin engine: middleware chain, the webhook
// endpoint's public route, the authenticated user-facing routes, and the
// cron-triggered maintenance/reconciliation endpoints (spec.md §6).
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/api/cron"
	v1 "github.com/tokenmint/ledger/internal/api/v1"
	"github.com/tokenmint/ledger/internal/config"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/rest/middleware"
)

// Handlers bundles every handler the router wires up, assembled once at
// startup and injected here rather than constructed inline.
type Handlers struct {
	Health       *v1.HealthHandler
	Webhook      *v1.WebhookHandler
	Purchase     *v1.PurchaseHandler
	Subscription *v1.SubscriptionHandler
	Balance      *v1.BalanceHandler
	Maintenance  *cron.MaintenanceHandler
	Reconcile    *cron.ReconcileHandler
}

// NewRouter builds the gin engine. Middleware order matches the teacher's
// own chain: request id, then CORS, then Sentry, with the error translator
// scoped to the route groups that need it.
func NewRouter(h Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	r := gin.Default()
	r.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
	)

	r.GET("/health", h.Health.Health)
	r.POST("/health", h.Health.Health)

	// Public: the PG webhook carries its own signature-based authentication
	// (spec.md §6); no bearer auth middleware sits in front of it, since the
	// gateway doesn't have our shared secret.
	webhook := r.Group("/v1/webhooks")
	webhook.Use(middleware.ErrorHandler())
	{
		webhook.POST("/stripe", h.Webhook.HandleWebhook)
	}

	// Authenticated user-facing surface: purchase, cancel, balance.
	private := r.Group("/v1", middleware.BearerAuthMiddleware(cfg), middleware.UserClaimMiddleware())
	private.Use(middleware.ErrorHandler())
	{
		private.POST("/purchases/checkout", h.Purchase.CreateCheckoutSession)
		private.POST("/subscriptions/cancel", h.Subscription.Cancel)
		private.GET("/balance", h.Balance.GetBalance)
	}

	// Cron-triggered maintenance and reconciliation, driven by an external
	// scheduler rather than an in-process one (spec.md §2, §4.6, §4.7).
	cronGroup := r.Group("/v1/cron", middleware.BearerAuthMiddleware(cfg))
	cronGroup.Use(middleware.ErrorHandler())
	{
		cronGroup.POST("/maintenance/sweep", h.Maintenance.RunSweep)
		cronGroup.POST("/reconcile/subscriptions", h.Reconcile.RunSubscriptionDrift)
		cronGroup.POST("/reconcile/balances", h.Reconcile.RunBalanceDrift)
	}

	return r
}
