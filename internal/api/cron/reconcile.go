package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/reconcile"
)

// ReconcileHandler triggers one pass of C7's drift detector: subscription
// status/plan drift against the gateway, and journal/balance drift across
// all users (spec.md §4.7). It never auto-heals — the response is a
// structured anomaly list for operators to act on.
type ReconcileHandler struct {
	worker *reconcile.Worker
	logger *logger.Logger
}

func NewReconcileHandler(worker *reconcile.Worker, logger *logger.Logger) *ReconcileHandler {
	return &ReconcileHandler{worker: worker, logger: logger}
}

// RunSubscriptionDrift checks every active local subscription against the
// gateway for status drift, plan drift, and orphans.
func (h *ReconcileHandler) RunSubscriptionDrift(c *gin.Context) {
	anomalies, err := h.worker.RunSubscriptionDrift(c.Request.Context())
	if err != nil {
		h.logger.Errorw("subscription drift reconciliation failed", "error", err)
		_ = c.Error(err)
		return
	}

	h.logger.Infow("subscription drift reconciliation completed", "anomaly_count", len(anomalies))
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

// RunBalanceDrift walks every user's journal and flags balance drift.
func (h *ReconcileHandler) RunBalanceDrift(c *gin.Context) {
	anomalies, err := h.worker.RunAllBalanceReconciliation(c.Request.Context())
	if err != nil {
		h.logger.Errorw("balance drift reconciliation failed", "error", err)
		_ = c.Error(err)
		return
	}

	h.logger.Infow("balance drift reconciliation completed", "anomaly_count", len(anomalies))
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}
