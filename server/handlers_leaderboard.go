package server

import (
	"encoding/json"
	"net/http"

	"github.com/palcid/livepal/db"
)

// HandleLeaderboard returns the top viewers by XP.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	viewers, err := db.TopViewers(r.Context(), h.db, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if viewers == nil {
		viewers = []db.ViewerStats{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(viewers)
}
