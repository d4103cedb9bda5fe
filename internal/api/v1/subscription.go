package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/domain/user"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/integration/stripe"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/types"
)

// SubscriptionHandler implements spec.md §6's cancel-subscription endpoint.
// Local state is left untouched until the gateway's subscription.deleted
// event eventually arrives; this call only asks the gateway to cancel at
// period end (the dunning-adjacent "user-initiated cancel" transition in
// spec.md §4.4's table).
type SubscriptionHandler struct {
	users  user.Repository
	subs   subscription.Repository
	pg     *stripe.Client
	logger *logger.Logger
}

func NewSubscriptionHandler(users user.Repository, subs subscription.Repository, pg *stripe.Client, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{users: users, subs: subs, pg: pg, logger: logger}
}

// Cancel looks up the authenticated user's active subscription and asks the
// gateway to cancel it at period end.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID := types.GetUserID(c.Request.Context())
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	u, err := h.users.GetByExternalID(c.Request.Context(), userID)
	if err != nil {
		abort(c, err)
		return
	}

	sub, err := h.subs.GetActiveByUserID(c.Request.Context(), u.ID)
	if err != nil {
		if ierr.Is(err, ierr.ErrNotFound) {
			respondError(c, http.StatusNotFound, "no active subscription found")
			return
		}
		abort(c, err)
		return
	}

	if err := h.pg.CancelAtPeriodEnd(c.Request.Context(), sub.PGSubscriptionID); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "subscription will cancel at the end of the current billing period"})
}
