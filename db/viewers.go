package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ViewerStats is one row of the per-viewer engagement ledger.
type ViewerStats struct {
	UniqueID     string    `json:"unique_id"`
	Nickname     string    `json:"nickname"`
	Messages     int       `json:"messages"`
	Gifts        int       `json:"gifts"`
	GiftDiamonds int       `json:"gift_diamonds"`
	Likes        int       `json:"likes"`
	Follows      int       `json:"follows"`
	Shares       int       `json:"shares"`
	XP           int       `json:"xp"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// XP weights per engagement kind. Diamonds count on top of the flat gift
// award so big gifts rank higher.
const (
	xpPerMessage = 1
	xpPerLike    = 1
	xpPerGift    = 10
	xpPerDiamond = 2
	xpPerFollow  = 25
	xpPerShare   = 15
)

// RecordViewerEvent bumps the counters for a viewer based on an event type.
// Unknown event types still refresh last_seen so presence-adjacent types
// (join) keep the row warm.
func RecordViewerEvent(ctx context.Context, db *sql.DB, uniqueID, nickname, eventType string, diamonds int) error {
	if uniqueID == "" {
		return nil
	}
	var msgs, gifts, likes, follows, shares, xp int
	switch eventType {
	case "chat":
		msgs, xp = 1, xpPerMessage
	case "gift":
		gifts, xp = 1, xpPerGift+diamonds*xpPerDiamond
	case "like":
		likes, xp = 1, xpPerLike
	case "follow":
		follows, xp = 1, xpPerFollow
	case "share":
		shares, xp = 1, xpPerShare
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO viewer_stats (unique_id, nickname, messages, gifts, gift_diamonds, likes, follows, shares, xp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (unique_id) DO UPDATE SET
			nickname = CASE WHEN EXCLUDED.nickname <> '' THEN EXCLUDED.nickname ELSE viewer_stats.nickname END,
			messages = viewer_stats.messages + EXCLUDED.messages,
			gifts = viewer_stats.gifts + EXCLUDED.gifts,
			gift_diamonds = viewer_stats.gift_diamonds + EXCLUDED.gift_diamonds,
			likes = viewer_stats.likes + EXCLUDED.likes,
			follows = viewer_stats.follows + EXCLUDED.follows,
			shares = viewer_stats.shares + EXCLUDED.shares,
			xp = viewer_stats.xp + EXCLUDED.xp,
			last_seen = NOW()
	`, uniqueID, nickname, msgs, gifts, diamonds, likes, follows, shares, xp)
	if err != nil {
		return fmt.Errorf("record viewer event: %w", err)
	}
	return nil
}

// TopViewers returns the leaderboard ordered by XP descending.
func TopViewers(ctx context.Context, db *sql.DB, limit int) ([]ViewerStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT unique_id, COALESCE(nickname, ''), messages, gifts, gift_diamonds, likes, follows, shares, xp, first_seen, last_seen
		FROM viewer_stats ORDER BY xp DESC, last_seen DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top viewers: %w", err)
	}
	defer rows.Close()

	var out []ViewerStats
	for rows.Next() {
		var v ViewerStats
		if err := rows.Scan(&v.UniqueID, &v.Nickname, &v.Messages, &v.Gifts, &v.GiftDiamonds,
			&v.Likes, &v.Follows, &v.Shares, &v.XP, &v.FirstSeen, &v.LastSeen); err != nil {
			return nil, fmt.Errorf("scan viewer row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetViewer fetches one viewer's stats. Returns sql.ErrNoRows when unknown.
func GetViewer(ctx context.Context, db *sql.DB, uniqueID string) (*ViewerStats, error) {
	var v ViewerStats
	err := db.QueryRowContext(ctx, `
		SELECT unique_id, COALESCE(nickname, ''), messages, gifts, gift_diamonds, likes, follows, shares, xp, first_seen, last_seen
		FROM viewer_stats WHERE unique_id = $1
	`, uniqueID).Scan(&v.UniqueID, &v.Nickname, &v.Messages, &v.Gifts, &v.GiftDiamonds,
		&v.Likes, &v.Follows, &v.Shares, &v.XP, &v.FirstSeen, &v.LastSeen)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
