package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/dispatcher"
	"github.com/tokenmint/ledger/internal/logger"
)

const headerStripeSignature = "Stripe-Signature"

// WebhookHandler exposes C5's single externally-facing surface: the PG
// webhook endpoint (spec.md §6). The raw body is read once and preserved
// byte-for-byte before any parsing happens, since signature verification
// depends on the exact bytes the gateway signed.
type WebhookHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     *logger.Logger
}

func NewWebhookHandler(dispatcher *dispatcher.Dispatcher, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// HandleWebhook implements spec.md §6's bit-level contract: 200 on success
// or known-duplicate, 400 on bad signature, 500 on transient storage
// failure so the gateway retries.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader(headerStripeSignature)
	if err := h.dispatcher.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
