// Command soundmind is the main entry point for the SoundMind stress
// analysis server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/soundmind-app/soundmind/internal/alert"
	"github.com/soundmind-app/soundmind/internal/baseline"
	"github.com/soundmind-app/soundmind/internal/config"
	"github.com/soundmind-app/soundmind/internal/health"
	"github.com/soundmind-app/soundmind/internal/observe"
	"github.com/soundmind-app/soundmind/internal/sensitivity"
	"github.com/soundmind-app/soundmind/internal/server"
	"github.com/soundmind-app/soundmind/internal/session"
	"github.com/soundmind-app/soundmind/internal/suggest"
	"github.com/soundmind-app/soundmind/pkg/extract"
	"github.com/soundmind-app/soundmind/pkg/provider/llm"
	"github.com/soundmind-app/soundmind/pkg/provider/llm/anyllm"
	"github.com/soundmind-app/soundmind/pkg/provider/llm/openai"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger (level is swappable for hot reload) ─────────────────────────────
	logLevel := &slog.LevelVar{}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// ── Alerting (constructed early so config reload can retune it) ────────────
	hub := alert.NewHub()
	dispatcher := alert.NewDispatcher([]alert.Notifier{hub})

	// ── Load configuration and start the file watcher ──────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), logLevel, dispatcher)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "soundmind: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "soundmind: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	if cfg.Alerts.CooldownSeconds > 0 {
		dispatcher.SetCooldown(time.Duration(cfg.Alerts.CooldownSeconds) * time.Second)
	}

	slog.Info("soundmind starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ──────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "soundmind",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Feed the subscriber gauge from hub membership changes.
	hub.OnSubscriberChange = func(delta int) {
		metrics.AlertSubscribers.Add(context.Background(), int64(delta))
	}

	// ── Storage ────────────────────────────────────────────────────────────────
	senseFiles, err := sensitivity.NewFileStore(filepath.Join(cfg.Storage.StateDir, "sensitivity"))
	if err != nil {
		slog.Error("failed to open sensitivity state dir", "err", err)
		return 1
	}
	baseFiles, err := baseline.NewFileStore(filepath.Join(cfg.Storage.StateDir, "baselines"))
	if err != nil {
		slog.Error("failed to open baseline state dir", "err", err)
		return 1
	}

	var (
		senseStore sensitivity.Store = senseFiles
		baseStore  baseline.Store    = baseFiles
		sessions   session.Store     = session.NewMemStore()
		pool       *pgxpool.Pool
	)
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to create postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		sensePG := sensitivity.NewPostgresStore(pool)
		basePG := baseline.NewPostgresStore(pool)
		sessionPG := session.NewPostgresStore(pool)
		for name, migrate := range map[string]func(context.Context) error{
			"sensitivity": sensePG.Migrate,
			"baselines":   basePG.Migrate,
			"sessions":    sessionPG.Migrate,
		} {
			if err := migrate(ctx); err != nil {
				slog.Error("schema migration failed", "store", name, "err", err)
				return 1
			}
		}

		senseStore = sensitivity.NewMirrorStore(senseFiles, sensePG)
		baseStore = baseline.NewMirrorStore(baseFiles, basePG)
		sessions = sessionPG
		slog.Info("postgres connected, state mirroring enabled")
	}

	engine := sensitivity.NewEngine(senseStore)

	// ── LLM provider ───────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerLLMProviders(reg)

	var provider llm.Provider
	if name := cfg.Providers.LLM.Name; name != "" {
		provider, err = reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown LLM provider, using built-in suggestions", "name", name)
			provider = nil
		} else if err != nil {
			slog.Error("failed to create LLM provider", "name", name, "err", err)
			return 1
		} else {
			slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
		}
	}
	suggester := suggest.New(provider)

	// ── Server options ─────────────────────────────────────────────────────────
	opts := []server.Option{
		server.WithAlerting(dispatcher, hub),
	}
	checkers := []health.Checker{}

	if url := cfg.Providers.Extractor.URL; url != "" {
		var exOpts []extract.Option
		if secs := cfg.Providers.Extractor.TimeoutSeconds; secs > 0 {
			exOpts = append(exOpts, extract.WithTimeout(time.Duration(secs)*time.Second))
		}
		extractor, err := extract.New(url, exOpts...)
		if err != nil {
			slog.Error("failed to create extraction client", "err", err)
			return 1
		}
		opts = append(opts, server.WithExtractor(extractor))
		checkers = append(checkers, health.Checker{Name: "extractor", Check: extractor.Health})
	}
	if pool != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pool.Ping})
	}
	opts = append(opts, server.WithHealthCheckers(checkers...))

	if secret := cfg.Auth.ChatTokenSecret; secret != "" {
		ttl := time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second
		opts = append(opts, server.WithChatTokens(secret, ttl))
	}

	printStartupSummary(cfg, pool != nil)

	api := server.New(engine, suggester, sessions, baseStore, metrics, opts...)

	// ── HTTP server ────────────────────────────────────────────────────────────
	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)
		if tls := cfg.Server.TLS; tls != nil {
			serveErr <- httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			serveErr <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload applies hot-reloadable config changes.
func applyReload(d config.ConfigDiff, logLevel *slog.LevelVar, dispatcher *alert.Dispatcher) {
	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AlertCooldownChanged {
		dispatcher.SetCooldown(time.Duration(d.NewAlertCooldown) * time.Second)
		slog.Info("alert cooldown changed", "seconds", d.NewAlertCooldown)
	}
	if d.LLMChanged {
		slog.Warn("LLM provider configuration changed; restart to apply")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerLLMProviders wires the built-in LLM provider factories into reg.
// The OpenAI provider uses the official SDK directly; the rest go through the
// any-llm bridge.
func registerLLMProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, postgres bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        SoundMind — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", orDisabled(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	printEntry("Extractor", orDisabled(cfg.Providers.Extractor.URL, ""))
	if postgres {
		printEntry("Postgres", "connected")
	} else {
		printEntry("Postgres", "(local-only)")
	}
	printEntry("State dir", cfg.Storage.StateDir)
	if cfg.Auth.ChatTokenSecret != "" {
		printEntry("Chat tokens", "enabled")
	} else {
		printEntry("Chat tokens", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printEntry("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func orDisabled(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
