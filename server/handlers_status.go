package server

import (
	"encoding/json"
	"net/http"
	"os"
)

// HandleStatus returns a lightweight status summary: feed connection state,
// per-plugin gate stats and queue depths, viewer presence, stream clients.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{}

	if h.feed != nil {
		resp["feed"] = h.feed.State()
		resp["active_viewers"] = h.feed.Presence().ActiveCount()
	}
	if h.registry != nil {
		resp["plugins"] = h.registry.Statuses()
	}
	if h.hub != nil {
		resp["stream_clients"] = h.hub.ClientCount()
	}

	// Reconnect/backoff configuration
	backoffConfig := map[string]any{
		"feed_backoff_base": os.Getenv("FEED_BACKOFF_BASE"),
		"feed_backoff_max":  os.Getenv("FEED_BACKOFF_MAX"),
	}
	if backoffConfig["feed_backoff_base"] == "" {
		backoffConfig["feed_backoff_base"] = "2s"
	}
	if backoffConfig["feed_backoff_max"] == "" {
		backoffConfig["feed_backoff_max"] = "2m"
	}
	resp["backoff_config"] = backoffConfig

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
