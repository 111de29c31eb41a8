package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/palcid/livepal/gate"
)

// conditionJSON is the wire form of one condition inside the conditions
// column. Conditions, action and cooldown are stored as JSONB so the schema
// survives rule-shape changes.
type conditionJSON struct {
	Equals *string  `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// cooldownJSON stores cooldown durations as milliseconds.
type cooldownJSON struct {
	GlobalMs    int64 `json:"global_ms,omitempty"`
	PerDeviceMs int64 `json:"per_device_ms,omitempty"`
	PerUserMs   int64 `json:"per_user_ms,omitempty"`
}

func encodeConditions(conds map[string]gate.Condition) ([]byte, error) {
	if len(conds) == 0 {
		return []byte("{}"), nil
	}
	out := make(map[string]conditionJSON, len(conds))
	for field, c := range conds {
		out[field] = conditionJSON{Equals: c.Equals, Min: c.Min, Max: c.Max}
	}
	return json.Marshal(out)
}

func decodeConditions(raw []byte) (map[string]gate.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in map[string]conditionJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode rule conditions: %w", err)
	}
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]gate.Condition, len(in))
	for field, c := range in {
		out[field] = gate.Condition{Equals: c.Equals, Min: c.Min, Max: c.Max}
	}
	return out, nil
}

// UpsertRule persists a rule for a plugin, assigning it to the end of the
// plugin's ordering when new and preserving its position when updated.
func UpsertRule(ctx context.Context, db *sql.DB, plugin string, r gate.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("upsert rule: id required")
	}
	conds, err := encodeConditions(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode rule conditions: %w", err)
	}
	action, err := json.Marshal(r.Action)
	if err != nil {
		return fmt.Errorf("encode rule action: %w", err)
	}
	cd, err := json.Marshal(cooldownJSON{
		GlobalMs:    r.Cooldown.Global.Milliseconds(),
		PerDeviceMs: r.Cooldown.PerDevice.Milliseconds(),
		PerUserMs:   r.Cooldown.PerUser.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("encode rule cooldown: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO rules (id, plugin, event_type, enabled, conditions, action, cooldown, channel, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			plugin = EXCLUDED.plugin,
			event_type = EXCLUDED.event_type,
			enabled = EXCLUDED.enabled,
			conditions = EXCLUDED.conditions,
			action = EXCLUDED.action,
			cooldown = EXCLUDED.cooldown,
			channel = EXCLUDED.channel,
			updated_at = NOW()
	`, r.ID, plugin, r.EventType, r.Enabled, conds, action, cd, r.Channel)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by ID. Deleting an unknown ID is not an error.
func DeleteRule(ctx context.Context, db *sql.DB, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

// LoadRules returns all persisted rules grouped by plugin, each plugin's
// slice in stored position order so gates rebuild with stable registration
// order.
func LoadRules(ctx context.Context, db *sql.DB) (map[string][]gate.Rule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, plugin, event_type, enabled, conditions, action, cooldown, COALESCE(channel, '')
		FROM rules ORDER BY plugin, position
	`)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]gate.Rule)
	for rows.Next() {
		var (
			r        gate.Rule
			plugin   string
			conds    []byte
			action   []byte
			cooldown []byte
		)
		if err := rows.Scan(&r.ID, &plugin, &r.EventType, &r.Enabled, &conds, &action, &cooldown, &r.Channel); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		if r.Conditions, err = decodeConditions(conds); err != nil {
			return nil, err
		}
		if len(action) > 0 {
			var a any
			if err := json.Unmarshal(action, &a); err != nil {
				return nil, fmt.Errorf("decode rule action: %w", err)
			}
			r.Action = a
		}
		if len(cooldown) > 0 {
			var cd cooldownJSON
			if err := json.Unmarshal(cooldown, &cd); err != nil {
				return nil, fmt.Errorf("decode rule cooldown: %w", err)
			}
			r.Cooldown = gate.Cooldown{
				Global:    time.Duration(cd.GlobalMs) * time.Millisecond,
				PerDevice: time.Duration(cd.PerDeviceMs) * time.Millisecond,
				PerUser:   time.Duration(cd.PerUserMs) * time.Millisecond,
			}
		}
		out[plugin] = append(out[plugin], r)
	}
	return out, rows.Err()
}

// JournalAdmission records an admitted action for auditing and replay.
func JournalAdmission(ctx context.Context, db *sql.DB, plugin, ruleID, eventType, uniqueID string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode journal payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO event_journal (plugin, rule_id, event_type, unique_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, plugin, ruleID, eventType, uniqueID, raw)
	if err != nil {
		return fmt.Errorf("journal admission: %w", err)
	}
	return nil
}

// PruneJournal deletes journal rows older than the retention window and
// returns how many were removed.
func PruneJournal(ctx context.Context, db *sql.DB, olderThan time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM event_journal WHERE admitted_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}
