package main

import (
	"context"
	"time"

	"github.com/tokenmint/ledger/internal/api/cron"
	v1 "github.com/tokenmint/ledger/internal/api/v1"
	"github.com/tokenmint/ledger/internal/config"
	"github.com/tokenmint/ledger/internal/dispatcher"
	"github.com/tokenmint/ledger/internal/integration/stripe"
	"github.com/tokenmint/ledger/internal/ledger"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/maintenance"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/reconcile"
	pgrepo "github.com/tokenmint/ledger/internal/repository/postgres"
	"github.com/tokenmint/ledger/internal/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	opts = append(opts,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			postgres.NewDB,
			provideIClient,

			newStripeClient,

			// Repositories
			pgrepo.NewUserRepository,
			pgrepo.NewSubscriptionRepository,
			pgrepo.NewPurchaseRepository,
			pgrepo.NewBatchRepository,
			pgrepo.NewEventLogRepository,
			pgrepo.NewTokenEventRepository,
			pgrepo.NewReferralRepository,
			pgrepo.NewCatalogRepository,

			// Domain workers
			ledger.New,
			dispatcher.New,
			maintenance.New,
			reconcile.New,

			// HTTP handlers
			v1.NewHealthHandler,
			v1.NewWebhookHandler,
			v1.NewPurchaseHandler,
			v1.NewSubscriptionHandler,
			v1.NewBalanceHandler,
			cron.NewMaintenanceHandler,
			cron.NewReconcileHandler,

			provideHandlers,
			provideRouter,
		),
		fx.Invoke(startAPIServer),
	)

	app := fx.New(opts...)
	app.Run()
}

// provideIClient exposes *postgres.DB through the narrower transactional
// interface ledger/dispatcher/maintenance depend on, so those components
// stay substitutable with an in-memory fake in tests.
func provideIClient(db *postgres.DB) postgres.IClient {
	return db
}

func newStripeClient(cfg *config.Configuration, logger *logger.Logger) *stripe.Client {
	return stripe.NewClient(cfg.PG.SecretKey, cfg.PG.WebhookSecret, logger)
}

func provideHandlers(
	health *v1.HealthHandler,
	webhook *v1.WebhookHandler,
	purchase *v1.PurchaseHandler,
	subscription *v1.SubscriptionHandler,
	balance *v1.BalanceHandler,
	maint *cron.MaintenanceHandler,
	reconcileH *cron.ReconcileHandler,
) router.Handlers {
	return router.Handlers{
		Health:       health,
		Webhook:      webhook,
		Purchase:     purchase,
		Subscription: subscription,
		Balance:      balance,
		Maintenance:  maint,
		Reconcile:    reconcileH,
	}
}

func provideRouter(handlers router.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return router.NewRouter(handlers, cfg, logger)
}

func startAPIServer(lc fx.Lifecycle, r *gin.Engine, cfg *config.Configuration, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server...")
			return nil
		},
	})
}
