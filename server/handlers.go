// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/palcid/livepal/live"
	"github.com/palcid/livepal/plugin"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	ctx      context.Context
	registry *plugin.Registry
	feed     *live.Feed
	hub      *StreamHub
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, registry *plugin.Registry, feed *live.Feed, hub *StreamHub) *Handlers {
	return &Handlers{
		db:       db,
		ctx:      ctx,
		registry: registry,
		feed:     feed,
		hub:      hub,
	}
}

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
