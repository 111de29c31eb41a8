package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/palcid/livepal/event"
)

// HandleAdminPlugins enables or disables a plugin at runtime.
// POST {"name": "fireworks", "enabled": false}
func (h *Handlers) HandleAdminPlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !h.registry.SetEnabled(body.Name, body.Enabled) {
		http.Error(w, "plugin not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAdminTrigger injects a synthetic event into the gate pipeline,
// bypassing the relay. Used to preview overlay effects while off-air.
func (h *Handlers) HandleAdminTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var evt event.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if evt.Type == "" {
		http.Error(w, "event type required", http.StatusBadRequest)
		return
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}
	h.registry.HandleEvent(r.Context(), &evt)
	w.WriteHeader(http.StatusAccepted)
}
