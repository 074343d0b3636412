package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/neonchat/neonchat/internal/config"
	"github.com/neonchat/neonchat/internal/models"
	"github.com/neonchat/neonchat/internal/store"
)

// aliasRegex is the accepted shape of an account alias after trimming.
var aliasRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{2,32}$`)

// RelayStats reports live relay state. *hub.Hub implements it.
type RelayStats interface {
	Stats(ctx context.Context) (models.RoomStats, error)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	accounts store.DataStore   // nil when no account store is configured
	redis    *store.RedisStore // nil when Redis is not configured
	relay    RelayStats
	cfg      *config.Config
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(accounts store.DataStore, redis *store.RedisStore, relay RelayStats, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		redis:    redis,
		relay:    relay,
		cfg:      cfg,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeAlias trims an alias and strips control characters. It returns ""
// when the result is not an acceptable alias.
func sanitizeAlias(alias string) string {
	alias = strings.TrimSpace(alias)

	alias = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, alias)

	if !aliasRegex.MatchString(alias) {
		return ""
	}
	return alias
}
