// Command livepal is the main entrypoint for the LIVE companion service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Seeds plugins and rules from the bootstrap file and the database.
//   - Connects to the LIVE event relay and routes events through per-plugin
//     gates (cooldowns, rate limits) to overlay executors.
//   - Exposes an HTTP server with /healthz, /status, /rules, /metrics, and
//     the overlay SSE stream.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/palcid/livepal/config"
	"github.com/palcid/livepal/db"
	"github.com/palcid/livepal/live"
	"github.com/palcid/livepal/plugin"
	"github.com/palcid/livepal/server"
	"github.com/palcid/livepal/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livepal", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Plugin registry: bootstrap file first, then database rules override by ID.
	registry := plugin.NewRegistry(plugin.WithQueueMax(cfg.QueueMaxLen))
	if cfg.RulesFile != "" {
		doc, err := config.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			slog.Error("failed to load rules file", slog.String("path", cfg.RulesFile), slog.Any("err", err))
			os.Exit(1)
		}
		seedFromDoc(registry, doc)
	}
	persisted, err := db.LoadRules(ctx, database)
	if err != nil {
		slog.Error("failed to load rules from db", slog.Any("err", err))
		os.Exit(1)
	}
	for pluginName, rules := range persisted {
		p := registry.Ensure(pluginName)
		for _, r := range rules {
			if _, ok := p.Gate.Mapping(r.ID); ok {
				if err := p.Gate.ReplaceMapping(r); err != nil {
					slog.Warn("skipping invalid persisted rule", slog.String("rule_id", r.ID), slog.Any("err", err))
				}
				continue
			}
			if _, err := p.Gate.AddMapping(r); err != nil {
				slog.Warn("skipping invalid persisted rule", slog.String("rule_id", r.ID), slog.Any("err", err))
			}
		}
	}

	hub := server.NewStreamHub()

	// Session token: env wins, otherwise the stored (possibly encrypted) one.
	sessionToken := cfg.SessionToken
	if sessionToken == "" {
		if stored, err := db.GetSessionToken(ctx, database, "relay"); err != nil {
			slog.Warn("failed to load stored session token", slog.Any("err", err))
		} else {
			sessionToken = stored
		}
	} else if err := db.SaveSessionToken(ctx, database, "relay", sessionToken); err != nil {
		slog.Warn("failed to persist session token", slog.Any("err", err))
	}

	// LIVE feed connector
	feed := live.NewFeed(live.FeedOptions{
		URL:          cfg.FeedURL,
		SessionToken: sessionToken,
		DedupeTTL:    cfg.DedupeTTL,
		PresenceTTL:  cfg.PresenceTTL,
		BackoffBase:  cfg.BackoffBase,
		BackoffMax:   cfg.BackoffMax,
	})
	feed.RegisterSink(registry)
	feed.RegisterSink(statsSink(database))

	// Executors: overlay SSE stream (join greetings capped to once per
	// visit via the presence tracker) and the admission journal.
	registry.RegisterExecutor(greetFilter(feed.Presence(), hub))
	registry.RegisterExecutor(journalExecutor(database))

	if err := cfg.ValidateFeedReady(); err != nil {
		slog.Warn("live feed disabled", slog.Any("err", err))
	} else {
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("live feed stopped", slog.Any("err", err))
			}
		}()
	}

	// Overflow queue drain worker
	go registry.RunDrain(ctx, cfg.DrainInterval)

	// Journal retention
	go journalRetentionJob(ctx, database)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/rules/metrics/stream)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, registry, feed, hub, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	registry.Shutdown()
}
