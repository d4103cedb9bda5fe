package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/config"
	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/user"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/integration/stripe"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/types"
)

// PurchaseHandler implements spec.md §6's one-time purchase endpoint: it
// starts a checkout session for a catalog token bundle and hands the PG's
// redirect URL back to the UI collaborator. The actual credit is granted
// later, by the dispatcher, once checkout.session.completed arrives.
type PurchaseHandler struct {
	users   user.Repository
	catalog catalog.Repository
	pg      *stripe.Client
	cfg     *config.Configuration
	logger  *logger.Logger
}

func NewPurchaseHandler(users user.Repository, catalog catalog.Repository, pg *stripe.Client, cfg *config.Configuration, logger *logger.Logger) *PurchaseHandler {
	return &PurchaseHandler{users: users, catalog: catalog, pg: pg, cfg: cfg, logger: logger}
}

// purchaseRequest is spec.md §6's {plan_type, plan_option} body. plan_option
// is the literal catalog plan_key this handler looks up and the dispatcher's
// credit policy keys off of later; plan_type is accepted but not read.
type purchaseRequest struct {
	PlanType   string `json:"plan_type" validate:"required"`
	PlanOption string `json:"plan_option" validate:"required"`
}

// CreateCheckoutSession handles POST for the one-time purchase endpoint.
// user_id comes from the X-User-Id request header, which UserClaimMiddleware
// copies into the context upstream; the bearer token is a shared secret and
// carries no user claim.
func (h *PurchaseHandler) CreateCheckoutSession(c *gin.Context) {
	userID := types.GetUserID(c.Request.Context())
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := h.catalog.GetTokenPrice(c.Request.Context(), req.PlanOption)
	if err != nil {
		abort(c, ierr.Wrap(err, ierr.CodeCatalogMissing, "unknown plan_option").Mark(ierr.ErrCatalogMissing))
		return
	}

	// Users are provisioned on first authenticated interaction (spec.md §3),
	// so an upsert rather than a lookup-or-404 is used here.
	u, err := h.users.UpsertByExternalID(c.Request.Context(), userID, types.GetUserEmail(c.Request.Context()))
	if err != nil {
		abort(c, err)
		return
	}

	customerID := ""
	if u.PGCustomerID != nil {
		customerID = *u.PGCustomerID
	}

	successURL := h.cfg.PG.SiteDomain + "/billing/success"
	cancelURL := h.cfg.PG.SiteDomain + "/billing/cancel"
	session, err := h.pg.CreateCheckoutSession(c.Request.Context(), customerID, req.PlanOption, price.PriceCents, successURL, cancelURL, map[string]string{
		"user_id":     u.ID,
		"plan_option": req.PlanOption,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":                 session.URL,
		"unit_price_per_1000": price.UnitPricePerThousand().StringFixed(2),
	})
}
