// ntabd serves the New Tab Page messaging bridge: every open NTP connects
// to /ntp/bridge and becomes one script instance sharing the same feature
// models. Blocked-tracker counts are fed in through the internal API and
// fan out to every connected page.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ntab/actions"
	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/dbopen"
	"github.com/hazyhaar/ntab/events"
	"github.com/hazyhaar/ntab/favorites"
	"github.com/hazyhaar/ntab/omnibar"
	"github.com/hazyhaar/ntab/privacystats"
	"github.com/hazyhaar/ntab/protections"
	"github.com/hazyhaar/ntab/settings"
	"github.com/hazyhaar/ntab/widgets"
)

func main() {
	configPath := flag.String("config", env("NTAB_CONFIG", ""), "path to YAML config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(settings.Schema),
		dbopen.WithSchema(privacystats.Schema),
		dbopen.WithSchema(favorites.Schema),
		dbopen.WithSchema(events.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reporter := events.NewReporter(db)
	if err := events.Cleanup(ctx, db, cfg.EventRetentionDays); err != nil {
		slog.Warn("event cleanup failed", "error", err)
	}

	settingsStore := settings.NewSQLiteStore(db)
	statsStore := privacystats.NewStore(db)
	favStore := favorites.NewStore(db)

	// Feature models. One instance each, shared by every window.
	widgetModel := widgets.NewModel(settingsStore,
		widgets.WithAvailability(func(id widgets.ID) bool {
			if id == widgets.IDFreemiumPIR {
				return cfg.FreemiumPIR
			}
			return true
		}))
	protModel := protections.NewModel(settingsStore)
	omniModel := omnibar.NewModel(settingsStore, omnibar.StaticAIChat{
		Shortcut: cfg.AIChat.ShortcutEnabled,
		Setting:  cfg.AIChat.SettingVisible,
	})

	loadModels := func() {
		for name, load := range map[string]func(context.Context) error{
			"widgets":     widgetModel.Load,
			"protections": protModel.Load,
			"omnibar":     omniModel.Load,
		} {
			if err := load(ctx); err != nil {
				slog.Warn("model load failed", "model", name, "error", err)
			}
		}
	}
	loadModels()

	internalPages := omnibar.StaticSource{
		Entries: []omnibar.Scored{
			{Suggestion: omnibar.InternalPage{Title: "Settings", URL: "about:settings"}, Score: 10},
			{Suggestion: omnibar.InternalPage{Title: "Bookmarks", URL: "about:bookmarks"}, Score: 10},
		},
		Match: func(s omnibar.Suggestion) string {
			if p, ok := s.(omnibar.InternalPage); ok {
				return p.Title
			}
			return ""
		},
	}

	// The store's change signal is coalesced for one consumer; both the
	// stats and protections clients want it, so split it.
	statsChanges := make(chan struct{}, 1)
	protChanges := make(chan struct{}, 1)

	// Feature clients.
	widgetClient := widgets.NewClient(widgetModel,
		widgets.WithExceptionReporter(reporter),
		widgets.WithEnv(cfg.Env))
	protClient := protections.NewClient(protModel, statsStore,
		protections.WithVisibility(func() bool {
			return widgetModel.IsVisible(widgets.IDProtections)
		}),
		protections.WithChanges(protChanges))
	statsClient := privacystats.NewClient(statsStore, settingsStore,
		privacystats.WithVisibility(func() bool {
			return widgetModel.IsVisible(widgets.IDProtections)
		}),
		privacystats.WithChanges(statsChanges))
	if err := statsClient.Load(ctx); err != nil {
		slog.Warn("stats load failed", "error", err)
	}
	favClient := favorites.NewClient(favStore)
	omniClient := omnibar.NewClient(omniModel,
		omnibar.WithSources(
			favorites.SuggestionSource{Store: favStore, Score: 50},
			internalPages,
		))

	manager := actions.NewManager(actions.WithEventReporter(reporter))
	for _, c := range []bridge.Client{
		widgetClient, protClient, statsClient, favClient, omniClient,
	} {
		if err := manager.AddClient(c); err != nil {
			slog.Error("register client", "error", err)
			os.Exit(1)
		}
	}
	if err := manager.Verify(); err != nil {
		slog.Error("verify handlers", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Handle("/ntp/bridge", bridge.NewWebSocketHandler(manager))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"instances": manager.InstanceCount(),
		})
	})
	// Internal feed for the content blocker: records blocked trackers,
	// which fans out to every connected NTP via the stats pipeline.
	r.Post("/internal/trackers", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Company string `json:"company"`
			Count   int64  `json:"count"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := statsStore.Record(req.Context(), body.Company, body.Count); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.Run(gctx)
		return nil
	})
	g.Go(func() error {
		protClient.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		statsClient.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-statsStore.Changes():
				for _, ch := range []chan struct{}{statsChanges, protChanges} {
					select {
					case ch <- struct{}{}:
					default:
					}
				}
			}
		}
	})
	g.Go(func() error {
		settingsStore.Watch(gctx, 200*time.Millisecond, loadModels)
		return nil
	})
	g.Go(func() error {
		slog.Info("ntabd listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("ntabd exited", "error", err)
		os.Exit(1)
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
