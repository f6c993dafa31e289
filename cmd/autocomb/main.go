package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/auto-comb/app/api"
	"github.com/lysyi3m/auto-comb/app/cfg"
	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/cycle"
	"github.com/lysyi3m/auto-comb/app/database"
	"github.com/lysyi3m/auto-comb/app/dedup"
	"github.com/lysyi3m/auto-comb/app/discord"
	"github.com/lysyi3m/auto-comb/app/extractor"
	"github.com/lysyi3m/auto-comb/app/notify"
	"github.com/lysyi3m/auto-comb/app/rules"
	"github.com/lysyi3m/auto-comb/app/scheduler"
	"github.com/lysyi3m/auto-comb/app/scoring"
	"github.com/lysyi3m/auto-comb/app/transport"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting auto-comb", "version", appCfg.Version, "dry_run", appCfg.DryRun, "once", appCfg.Once)

	configStore := config.NewStore(appCfg.ConfigDir)
	if err := configStore.Load(); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", appCfg.ConfigDir, err)
	}
	current := configStore.Current()
	slog.Info("Configuration loaded",
		"dir", appCfg.ConfigDir,
		"searches", len(current.Search.Searches),
		"exclusions", len(current.Rules.Exclusions),
		"signals", len(current.Rules.Signals))

	store, err := openStore(appCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pacing := cycle.PacingFor(current.Search)
	fetcher := transport.New(transport.Options{
		BaseURL:       appCfg.BaseURL,
		DelayMin:      pacing.DelayMin,
		DelayMax:      pacing.DelayMax,
		Timeout:       pacing.Timeout,
		RateLimit:     pacing.RateLimit,
		Network:       pacing.Network,
		ContentMarker: extractor.DataBlockID,
	})

	scorer := scoring.New(current.Rules.Signals, scoring.Thresholds{
		High:   current.Search.Thresholds.High,
		Medium: current.Search.Thresholds.Medium,
	})

	coordinator := cycle.NewCoordinator(cycle.Options{
		Fetcher:   fetcher,
		Parser:    extractor.New(appCfg.BaseURL),
		Dedup:     dedup.New(store.Seen),
		Evaluator: rules.NewEngine(),
		Scorer:    scorer,
		Config:    configStore,
		Listings:  store.Listings,
		Cycles:    store.Cycles,
	})

	if appCfg.Once {
		return runOnce(coordinator, store, appCfg.DryRun)
	}

	notifiers, bot, err := buildNotifiers(appCfg, os.Stdout)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Runner:       coordinator,
		Scorer:       scorer,
		Config:       configStore,
		Store:        store,
		Notifier:     notifiers,
		RunAtStartup: appCfg.RunAtStartup,
		Version:      appCfg.Version,
	})

	if bot != nil {
		bot.SetDispatcher(discord.NewDispatcher(discord.Commands(sched, time.Now)))
		if err := bot.Open(); err != nil {
			return err
		}
		defer bot.Close()
	}

	if err := sched.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	var httpServer *http.Server
	serverErrChan := make(chan error, 1)
	if appCfg.Port != "" {
		httpServer = &http.Server{
			Addr:         ":" + appCfg.Port,
			Handler:      api.NewServer(api.NewHandler(sched, appCfg.Version), appCfg.APIAccessKey),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			slog.Info("Starting HTTP server", "port", appCfg.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("auto-comb started, press Ctrl+C to shut down")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully, waiting for the current cycle")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}

	sched.Stop()

	slog.Info("auto-comb shutdown complete")
	return nil
}

// buildNotifiers picks the alert channels. A dry run never contacts Discord,
// even when a token is configured.
func buildNotifiers(appCfg *cfg.Cfg, out io.Writer) (notify.Multi, *discord.Bot, error) {
	switch {
	case appCfg.DryRun:
		slog.Info("Dry run: alerts are printed, Discord is not contacted")
		return notify.Multi{notify.NewLogNotifier(out)}, nil, nil
	case appCfg.DiscordToken != "":
		bot, err := discord.NewBot(appCfg.DiscordToken, appCfg.DiscordChannelID, appCfg.DiscordGuildID, nil)
		if err != nil {
			return nil, nil, err
		}
		return notify.Multi{discord.NewNotifier(bot.Session, appCfg.DiscordChannelID, appCfg.DiscordAlertRole)}, bot, nil
	default:
		slog.Warn("DISCORD_TOKEN not set, alerts are only logged")
		return notify.Multi{notify.NewLogNotifier(nil)}, nil, nil
	}
}

func openStore(appCfg *cfg.Cfg) (*database.Store, error) {
	if appCfg.DryRun {
		slog.Info("Dry run: using in-memory store")
		return database.NewMemoryBackedStore(), nil
	}

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	slog.Info("Database opened", "path", appCfg.DBPath)

	store, err := database.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// runOnce runs a single cycle and prints what would have been sent. Printed listings
// count as delivered, so a later service run does not alert them again.
func runOnce(coordinator *cycle.Coordinator, store *database.Store, dryRun bool) error {
	ctx := context.Background()
	res, runErr := coordinator.Run(ctx)

	notifier := notify.NewLogNotifier(os.Stdout)
	if err := notifier.Dispatch(ctx, res.Listings); err != nil {
		return err
	}
	if !dryRun && len(res.Listings) > 0 {
		ids := make([]string, 0, len(res.Listings))
		for _, s := range res.Listings {
			ids = append(ids, s.Record.ID)
		}
		if err := store.Listings.MarkNotified(ctx, ids, time.Now()); err != nil {
			slog.Warn("Failed to mark printed listings as notified", "error", err)
		}
	}

	fmt.Fprintf(os.Stdout, "\ncycle %s: %d searches, %d fetched, %d new, %d accepted, %d rejected in %s\n",
		res.CycleID, res.Searches, res.Fetched, res.Fresh, res.Accepted, res.Rejected, res.Duration().Round(time.Millisecond))
	for reason, count := range res.Rejections {
		fmt.Fprintf(os.Stdout, "  %s: %d\n", reason, count)
	}
	if dryRun {
		fmt.Fprintln(os.Stdout, "dry run: nothing was persisted or sent")
	}

	return runErr
}
