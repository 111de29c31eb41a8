package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/palcid/livepal/config"
	"github.com/palcid/livepal/db"
	"github.com/palcid/livepal/event"
	"github.com/palcid/livepal/gate"
	"github.com/palcid/livepal/live"
	"github.com/palcid/livepal/plugin"
)

// seedFromDoc installs bootstrap channels and rules on the registry.
func seedFromDoc(registry *plugin.Registry, doc *config.RulesDoc) {
	channels := make(map[string]config.ChannelDoc, len(doc.Channels))
	for _, ch := range doc.Channels {
		channels[ch.Name] = ch
	}
	for _, pd := range doc.Plugins {
		p := registry.Ensure(pd.Name)
		for _, ch := range channels {
			p.Gate.SetChannelLimit(ch.Name, ch.MaxPerWindow, time.Duration(ch.Window))
		}
		for _, rd := range pd.Rules {
			if _, err := p.Gate.AddMapping(rd.Rule()); err != nil {
				slog.Warn("skipping invalid bootstrap rule",
					slog.String("plugin", pd.Name),
					slog.String("rule_id", rd.ID),
					slog.Any("err", err))
			}
		}
	}
	slog.Info("bootstrap rules loaded",
		slog.Int("plugins", len(doc.Plugins)),
		slog.Int("channels", len(doc.Channels)))
}

// greetFilter suppresses repeat join greetings for viewers already greeted
// this visit, then forwards everything else untouched. Cooldowns bound how
// often greetings fire; presence bounds them to once per visit.
func greetFilter(presence *live.Presence, next plugin.Executor) plugin.Executor {
	return plugin.ExecutorFunc(func(ctx context.Context, pluginName string, a gate.AdmittedAction) {
		if a.Rule.EventType == event.TypeJoin {
			uid, _ := a.Payload["uniqueId"].(string)
			if uid != "" && !presence.MarkGreeted(uid) {
				return
			}
		}
		next.Execute(ctx, pluginName, a)
	})
}

// journalExecutor records every admitted action for auditing and replay.
func journalExecutor(database *sql.DB) plugin.Executor {
	return plugin.ExecutorFunc(func(ctx context.Context, pluginName string, a gate.AdmittedAction) {
		uid, _ := a.Payload["uniqueId"].(string)
		if err := db.JournalAdmission(ctx, database, pluginName, a.Rule.ID, a.Rule.EventType, uid, a.Payload); err != nil {
			slog.Warn("failed to journal admission", slog.String("rule_id", a.Rule.ID), slog.Any("err", err))
		}
	})
}

// statsSink feeds the viewer engagement ledger from the raw event stream,
// independent of any gate outcome.
func statsSink(database *sql.DB) live.Sink {
	return live.SinkFunc(func(ctx context.Context, evt *event.Event) {
		diamonds := 0
		if evt.Gift != nil {
			count := evt.Gift.RepeatCount
			if count < 1 {
				count = 1
			}
			diamonds = evt.Gift.DiamondCost * count
		}
		if err := db.RecordViewerEvent(ctx, database, evt.User.UniqueID, evt.User.Nickname, evt.Type, diamonds); err != nil {
			slog.Warn("failed to record viewer event", slog.Any("err", err))
		}
	})
}

// journalRetentionJob prunes old event journal rows once a day.
func journalRetentionJob(ctx context.Context, database *sql.DB) {
	keepDays := 14
	if v, err := db.GetKV(ctx, database, "cfg:JOURNAL_KEEP_DAYS"); err == nil && v != "" {
		if n := parseKeepDays(v); n > 0 {
			keepDays = n
		}
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := db.PruneJournal(ctx, database, time.Duration(keepDays)*24*time.Hour)
			if err != nil {
				slog.Warn("journal prune failed", slog.Any("err", err))
				continue
			}
			if removed > 0 {
				slog.Info("journal pruned", slog.Int64("removed", removed), slog.Int("keep_days", keepDays))
			}
		}
	}
}

func parseKeepDays(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
