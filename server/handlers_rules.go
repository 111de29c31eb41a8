package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/palcid/livepal/db"
	"github.com/palcid/livepal/gate"
)

// ruleBody is the JSON shape for rule create/update requests and listings.
// Cooldowns travel as milliseconds; zero means disabled.
type ruleBody struct {
	Plugin     string                   `json:"plugin,omitempty"`
	ID         string                   `json:"id,omitempty"`
	EventType  string                   `json:"event_type"`
	Enabled    *bool                    `json:"enabled,omitempty"`
	Conditions map[string]conditionBody `json:"conditions,omitempty"`
	Cooldown   cooldownBody             `json:"cooldown"`
	Channel    string                   `json:"channel,omitempty"`
	Action     any                      `json:"action,omitempty"`
}

type conditionBody struct {
	Equals *string  `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

type cooldownBody struct {
	GlobalMs    int64 `json:"global_ms,omitempty"`
	PerDeviceMs int64 `json:"per_device_ms,omitempty"`
	PerUserMs   int64 `json:"per_user_ms,omitempty"`
}

func (b ruleBody) rule() gate.Rule {
	enabled := true
	if b.Enabled != nil {
		enabled = *b.Enabled
	}
	r := gate.Rule{
		ID:        b.ID,
		EventType: b.EventType,
		Enabled:   enabled,
		Channel:   b.Channel,
		Action:    b.Action,
		Cooldown: gate.Cooldown{
			Global:    time.Duration(b.Cooldown.GlobalMs) * time.Millisecond,
			PerDevice: time.Duration(b.Cooldown.PerDeviceMs) * time.Millisecond,
			PerUser:   time.Duration(b.Cooldown.PerUserMs) * time.Millisecond,
		},
	}
	if len(b.Conditions) > 0 {
		r.Conditions = make(map[string]gate.Condition, len(b.Conditions))
		for field, c := range b.Conditions {
			r.Conditions[field] = gate.Condition{Equals: c.Equals, Min: c.Min, Max: c.Max}
		}
	}
	return r
}

func ruleToBody(plugin string, r gate.Rule) ruleBody {
	enabled := r.Enabled
	b := ruleBody{
		Plugin:    plugin,
		ID:        r.ID,
		EventType: r.EventType,
		Enabled:   &enabled,
		Channel:   r.Channel,
		Action:    r.Action,
		Cooldown: cooldownBody{
			GlobalMs:    r.Cooldown.Global.Milliseconds(),
			PerDeviceMs: r.Cooldown.PerDevice.Milliseconds(),
			PerUserMs:   r.Cooldown.PerUser.Milliseconds(),
		},
	}
	if len(r.Conditions) > 0 {
		b.Conditions = make(map[string]conditionBody, len(r.Conditions))
		for field, c := range r.Conditions {
			b.Conditions[field] = conditionBody{Equals: c.Equals, Min: c.Min, Max: c.Max}
		}
	}
	return b
}

// HandleRulesList serves GET /rules (all rules grouped by plugin) and
// POST /rules (create a rule on a plugin's gate).
func (h *Handlers) HandleRulesList(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out := map[string][]ruleBody{}
		for _, st := range h.registry.Statuses() {
			p, ok := h.registry.Get(st.Name)
			if !ok {
				continue
			}
			rules := make([]ruleBody, 0)
			for _, rule := range p.Gate.Mappings() {
				rules = append(rules, ruleToBody(st.Name, rule))
			}
			out[st.Name] = rules
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var body ruleBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.Plugin == "" {
			http.Error(w, "plugin is required", http.StatusBadRequest)
			return
		}
		p := h.registry.Ensure(body.Plugin)
		rule := body.rule()
		id, err := p.Gate.AddMapping(rule)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rule.ID = id
		if err := db.UpsertRule(r.Context(), h.db, body.Plugin, rule); err != nil {
			slog.Error("failed to persist rule", slog.String("rule_id", id), slog.Any("err", err))
			p.Gate.RemoveMapping(id)
			http.Error(w, "failed to persist rule", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRulesDispatcher routes /rules/{id} and /rules/{id}/reset.
func (h *Handlers) HandleRulesDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rules/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "rule id required", http.StatusBadRequest)
		return
	}
	id := parts[0]

	if len(parts) == 2 && parts[1] == "reset" {
		h.handleRuleReset(w, r, id)
		return
	}
	if len(parts) != 1 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		plugin, rule, ok := h.findRule(id)
		if !ok {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ruleToBody(plugin, rule))
	case http.MethodPut:
		h.handleRuleUpdate(w, r, id)
	case http.MethodDelete:
		h.handleRuleDelete(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// findRule locates a rule by ID across all plugins.
func (h *Handlers) findRule(id string) (string, gate.Rule, bool) {
	for _, st := range h.registry.Statuses() {
		p, ok := h.registry.Get(st.Name)
		if !ok {
			continue
		}
		if rule, ok := p.Gate.Mapping(id); ok {
			return st.Name, rule, true
		}
	}
	return "", gate.Rule{}, false
}

func (h *Handlers) handleRuleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var body ruleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pluginName, _, ok := h.findRule(id)
	if !ok {
		http.Error(w, "rule not found", http.StatusNotFound)
		return
	}
	p, _ := h.registry.Get(pluginName)
	rule := body.rule()
	rule.ID = id
	if err := p.Gate.ReplaceMapping(rule); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := db.UpsertRule(r.Context(), h.db, pluginName, rule); err != nil {
		slog.Error("failed to persist rule update", slog.String("rule_id", id), slog.Any("err", err))
		http.Error(w, "failed to persist rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleRuleDelete(w http.ResponseWriter, r *http.Request, id string) {
	pluginName, _, ok := h.findRule(id)
	if !ok {
		http.Error(w, "rule not found", http.StatusNotFound)
		return
	}
	p, _ := h.registry.Get(pluginName)
	p.Gate.RemoveMapping(id)
	if err := db.DeleteRule(r.Context(), h.db, id); err != nil {
		slog.Error("failed to delete rule", slog.String("rule_id", id), slog.Any("err", err))
		http.Error(w, "failed to delete rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRuleReset clears a rule's cooldown history without touching its config.
func (h *Handlers) handleRuleReset(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pluginName, _, ok := h.findRule(id)
	if !ok {
		http.Error(w, "rule not found", http.StatusNotFound)
		return
	}
	p, _ := h.registry.Get(pluginName)
	p.Gate.ResetRule(id)
	w.WriteHeader(http.StatusNoContent)
}
