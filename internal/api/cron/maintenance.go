// Package cron exposes C6's maintenance sweep and C7's reconciliation job as
// externally-triggered HTTP handlers (spec.md §2's "runs on cron triggers"),
// matching the teacher's own pattern of driving scheduled work from an
// external scheduler rather than an in-process one.
package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/maintenance"
)

// MaintenanceHandler triggers one pass of C6's daily sweep: batch expiry,
// lapsed-subscription deactivation, and yearly-plan monthly refills
// (spec.md §4.6).
type MaintenanceHandler struct {
	worker *maintenance.Worker
	logger *logger.Logger
}

func NewMaintenanceHandler(worker *maintenance.Worker, logger *logger.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{worker: worker, logger: logger}
}

// RunSweep runs one pass and reports a summary. Idempotent: re-running it
// with no elapsed time produces no additional batches or journal entries.
func (h *MaintenanceHandler) RunSweep(c *gin.Context) {
	now := time.Now().UTC()
	report := h.worker.Run(c.Request.Context(), now)

	h.logger.Infow("maintenance sweep completed",
		"batches_expired", report.BatchesExpired,
		"subscriptions_deactivated", report.SubscriptionsDeactivated,
		"monthly_refills_granted", report.MonthlyRefillsGranted,
		"failure_count", len(report.Failures),
	)

	status := http.StatusOK
	if len(report.Failures) > 0 {
		status = http.StatusMultiStatus
	}

	failures := make([]string, 0, len(report.Failures))
	for _, err := range report.Failures {
		failures = append(failures, err.Error())
	}

	c.JSON(status, gin.H{
		"batches_expired":           report.BatchesExpired,
		"subscriptions_deactivated": report.SubscriptionsDeactivated,
		"monthly_refills_granted":   report.MonthlyRefillsGranted,
		"failures":                  failures,
	})
}
