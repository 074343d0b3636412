package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neonchat/neonchat/internal/crypto"
	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/store"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Alias       string `json:"alias"`
	RecoveryKey string `json:"recoveryKey"`
}

// RegisterResponse is the registration result. Browser clients read Error
// verbatim into the form.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Alias   string `json:"alias,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckAliasResponse reports whether an alias is registered.
type CheckAliasResponse struct {
	Exists bool `json:"exists"`
}

// Register handles alias registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, message string) {
		h.JSON(w, status, RegisterResponse{Success: false, Error: message})
	}

	if h.accounts == nil {
		fail(http.StatusServiceUnavailable, "Registration is unavailable")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(http.StatusBadRequest, "Invalid request body")
		return
	}

	alias := sanitizeAlias(req.Alias)
	if alias == "" {
		fail(http.StatusBadRequest, "Alias must be 2-32 letters, digits, '.', '_' or '-'")
		return
	}
	if err := crypto.ValidateRecoveryKey(req.RecoveryKey); err != nil {
		fail(http.StatusBadRequest, "Invalid recovery key")
		return
	}

	hash, err := crypto.HashRecoveryKey(req.RecoveryKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("hash recovery key failed")
		fail(http.StatusInternalServerError, "Could not register user")
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), alias, hash)
	if errors.Is(err, store.ErrAliasTaken) {
		fail(http.StatusConflict, "Alias already taken")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("alias", alias).Msg("create user failed")
		fail(http.StatusInternalServerError, "Could not register user")
		return
	}

	metrics.UsersRegistered.Inc()
	h.logger.Info().Str("alias", user.Alias).Msg("user registered")

	h.JSON(w, http.StatusCreated, RegisterResponse{Success: true, Alias: user.Alias})
}

// CheckAlias reports whether an alias is already registered.
func (h *Handler) CheckAlias(w http.ResponseWriter, r *http.Request) {
	if h.accounts == nil {
		h.Error(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}

	alias := sanitizeAlias(chi.URLParam(r, "alias"))
	if alias == "" {
		h.JSON(w, http.StatusOK, CheckAliasResponse{Exists: false})
		return
	}

	user, err := h.accounts.GetUserByAlias(r.Context(), alias)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, CheckAliasResponse{Exists: user != nil})
}
