package handlers

import (
	"context"
	"net/http"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	ActiveRooms       int    `json:"active_rooms"`
	ResidentRooms     int    `json:"resident_rooms"`
	Connections       int    `json:"connections"`
	ReactionHistories int    `json:"reaction_histories"`
	TotalUsers        *int64 `json:"total_users,omitempty"`
}

// Stats returns relay statistics for the landing page. Only counts are
// exposed; room codes never leave the relay.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	relay, err := h.relay.Stats(ctx)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "relay unavailable")
		return
	}

	resp := StatsResponse{
		ActiveRooms:       relay.ActiveRooms,
		ResidentRooms:     relay.ResidentRooms,
		Connections:       relay.Connections,
		ReactionHistories: relay.ReactionHistories,
	}

	if h.accounts != nil {
		total, err := h.accounts.CountUsers(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to count users")
			return
		}
		resp.TotalUsers = &total
	}

	h.JSON(w, http.StatusOK, resp)
}
