package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/neonchat/neonchat/internal/crypto"
	"github.com/neonchat/neonchat/internal/models"
	"github.com/neonchat/neonchat/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// Account credential headers.
const (
	AliasHeader       = "X-Neon-Alias"
	RecoveryKeyHeader = "X-Neon-Recovery-Key"
)

// AuthMiddleware authenticates account requests by alias and recovery key.
type AuthMiddleware struct {
	accounts store.DataStore
}

// NewAuthMiddleware creates a new auth middleware. A nil store rejects every
// request with 503.
func NewAuthMiddleware(accounts store.DataStore) *AuthMiddleware {
	return &AuthMiddleware{accounts: accounts}
}

// RequireAccount middleware verifies the alias and recovery key headers
// against the stored bcrypt hash.
func (m *AuthMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.accounts == nil {
			jsonError(w, http.StatusServiceUnavailable, "accounts not configured")
			return
		}

		alias := r.Header.Get(AliasHeader)
		key := r.Header.Get(RecoveryKeyHeader)
		if alias == "" || key == "" {
			jsonError(w, http.StatusUnauthorized, "missing auth headers")
			return
		}

		if err := crypto.ValidateRecoveryKey(key); err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid recovery key")
			return
		}

		user, err := m.accounts.GetUserByAlias(r.Context(), alias)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}
		// Unknown aliases and wrong keys look the same to the caller
		if user == nil || crypto.VerifyRecoveryKey(user.RecoveryKeyHash, key) != nil {
			jsonError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
