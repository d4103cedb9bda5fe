package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/domain/user"
	"github.com/tokenmint/ledger/internal/ledger"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/types"
)

// BalanceHandler implements spec.md §6's balance query: the authenticated
// UI path reads Ledger.Balance(user_id) directly, with no analytics beyond
// the single running total (spec.md §1's Non-goals).
type BalanceHandler struct {
	users  user.Repository
	ledger *ledger.Ledger
	logger *logger.Logger
}

func NewBalanceHandler(users user.Repository, ledger *ledger.Ledger, logger *logger.Logger) *BalanceHandler {
	return &BalanceHandler{users: users, ledger: ledger, logger: logger}
}

func (h *BalanceHandler) GetBalance(c *gin.Context) {
	userID := types.GetUserID(c.Request.Context())
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	// Users are provisioned on first authenticated interaction (spec.md §3):
	// a brand-new user querying their balance before ever paying anything
	// still gets a user row and a balance of zero, not a 404.
	u, err := h.users.UpsertByExternalID(c.Request.Context(), userID, types.GetUserEmail(c.Request.Context()))
	if err != nil {
		abort(c, err)
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), u.ID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
