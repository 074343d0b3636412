package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neonchat/neonchat/internal/models"
)

// SubscriptionResponse carries an alias's plan.
type SubscriptionResponse struct {
	Alias string `json:"alias"`
	Plan  string `json:"plan"`
}

// Subscription returns the plan of an alias. Unknown aliases are on the free plan.
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	if h.accounts == nil {
		h.Error(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}

	alias := sanitizeAlias(chi.URLParam(r, "alias"))
	if alias == "" {
		h.Error(w, http.StatusBadRequest, "invalid alias")
		return
	}

	user, err := h.accounts.GetUserByAlias(r.Context(), alias)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	plan := models.PlanFree
	if user != nil && user.Plan != "" {
		plan = user.Plan
	}

	h.JSON(w, http.StatusOK, SubscriptionResponse{Alias: alias, Plan: plan})
}
