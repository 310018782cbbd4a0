// Command citysim runs the city simulation and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/mini-city/internal/api"
	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "tuning file (.json); defaults when empty")
	dbPath := flag.String("db", "data/citysim.db", "statistics database; empty disables history")
	port := flag.Int("port", 8080, "HTTP API port; 0 disables the API")
	seed := flag.Int64("seed", 0, "master seed; overrides the tuning file when non-zero")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if err := setupLogging(*logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(*configPath, *dbPath, *port, *seed); err != nil {
		slog.Error("citysim failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func run(configPath, dbPath string, port int, seed int64) error {
	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		slog.Info("tuning loaded", "path", configPath)
	}
	if seed != 0 {
		cfg.Sim.Seed = seed
	}

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		db, err = persistence.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", dbPath)

		if err := db.SaveMeta("seed", strconv.FormatInt(cfg.Sim.Seed, 10)); err != nil {
			slog.Warn("run metadata not saved", "error", err)
		}
		if err := db.SaveMeta("started_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			slog.Warn("run metadata not saved", "error", err)
		}
	}

	// ── City ──────────────────────────────────────────────────────────
	sim := engine.Bootstrap(cfg, ids.NewUUID())
	snap := sim.Snapshot()

	eng := engine.NewEngine(sim, cfg.Sim.TimeStep, cfg.TickDuration())
	eng.SetSpeed(cfg.Sim.Speed)

	if db != nil {
		eng.OnTick = func(snap engine.Snapshot) {
			if err := db.SaveEvents(snap.Events); err != nil {
				slog.Error("event save failed", "tick", snap.Tick, "error", err)
			}
		}
		eng.OnDay = func(snap engine.Snapshot) {
			if err := db.SaveDay(snap); err != nil {
				slog.Error("daily save failed", "day", snap.Day, "error", err)
			}
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if port > 0 {
		adminKey := os.Getenv("CITYSIM_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("CITYSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv := (&api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Port:     port,
			AdminKey: adminKey,
		}).Start()
		defer func() {
			if err := api.Shutdown(srv, 5*time.Second); err != nil {
				slog.Error("API shutdown failed", "error", err)
			}
		}()
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nThe city is alive: %s residents, %d businesses, $%s in the treasury.\n",
		humanize.Comma(int64(snap.Citizens.Population)), snap.Economy.Businesses, humanize.Commaf(snap.Economy.Funds))
	if port > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	final := sim.Snapshot()
	slog.Info("simulation stopped",
		"ticks", eng.Tick(),
		"clock", final.Clock,
		"population", final.Citizens.Population,
		"funds", humanize.Commaf(final.Economy.Funds),
	)
	if db != nil {
		if err := db.SaveMeta("stopped_at", final.Clock); err != nil {
			slog.Warn("run metadata not saved", "error", err)
		}
	}
	return nil
}
