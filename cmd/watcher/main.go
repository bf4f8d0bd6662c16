package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"market_watch/internal/api"
	"market_watch/internal/config"
	"market_watch/internal/ledger"
	"market_watch/internal/marketplace"
	"market_watch/internal/metrics"
	"market_watch/internal/model"
	"market_watch/internal/notify"
	"market_watch/internal/runner"
	"market_watch/internal/scheduler"
)

const shutdownGrace = 10 * time.Second

type options struct {
	Config     string `short:"c" long:"config" env:"CONFIG_PATH" default:"config.yaml" description:"Path to the YAML config file"`
	EnvFile    string `long:"env-file" env:"ENV_FILE" default:".env" description:"Dotenv file with secrets, skipped when missing"`
	HTTPAddr   string `long:"http-addr" env:"HTTP_ADDR" description:"Status server address, overrides http_addr from the config file"`
	Once       bool   `long:"once" description:"Run every enabled query once and exit"`
	RunOnStart bool   `long:"run-on-start" env:"RUN_ON_START" description:"Run every query immediately instead of after its first interval"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load env file", "path", opts.EnvFile, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		slog.Error("load config", "path", opts.Config, "error", err)
		os.Exit(1)
	}
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("watcher failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *slog.Logger) error {
	store, err := ledger.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open ledger (%s): %w", cfg.Storage.Backend, err)
	}
	defer func() { _ = store.Close() }()
	log.Info("ledger ready", "backend", cfg.Storage.Backend)

	m := metrics.New()
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	httpClient := &http.Client{Timeout: timeout}

	market := marketplace.NewRouter()
	market.Register(model.SourceEbay, marketplace.NewEbay(httpClient, marketplace.EbayConfig{
		BaseURL:       cfg.Ebay.BaseURL,
		MarketplaceID: cfg.Ebay.MarketplaceID,
		ClientID:      cfg.Ebay.ClientID,
		ClientSecret:  cfg.Ebay.ClientSecret,
		Scope:         cfg.Ebay.Scope,
		Timeout:       timeout,
	}))
	market.Register(model.SourceFeed, marketplace.NewFeed(httpClient, timeout))

	var telegram *notify.Telegram
	if cfg.TelegramBotToken != "" {
		telegram, err = notify.NewTelegram(cfg.TelegramBotToken, httpClient)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
	}
	notifiers := notify.NewResolver(httpClient, cfg.Discord.RatePerSecond, timeout, telegram)

	queries := cfg.EnabledQueries()
	for _, q := range queries {
		if _, err := notifiers.Targets(q); err != nil {
			return fmt.Errorf("query %q: %w", q.Name, err)
		}
	}

	r := runner.New(market, store, notifiers, log, runner.Config{
		Policy:      runner.Policy(cfg.OnDispatchError),
		CallTimeout: timeout,
		Metrics:     m,
	})
	if opts.Once {
		return runOnce(ctx, r, queries, log)
	}

	tracker := runner.NewTracker()
	sched := scheduler.New(log, scheduler.Options{Metrics: m, RunOnStart: opts.RunOnStart})
	for _, q := range cfg.Queries {
		log.Info("config query", "name", q.Name, "enabled", q.IsEnabled(),
			"interval", q.Interval(), "source", q.Source)
		if !q.IsEnabled() {
			continue
		}
		sched.Add(q.JobID(), q.Interval(), func(ctx context.Context) {
			tracker.Record(r.Run(ctx, q))
		})
	}

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: api.NewServer(log, api.Deps{
				Queries:  cfg.Queries,
				Jobs:     sched,
				Results:  tracker,
				Store:    store,
				Registry: m.Registry,
			}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("status server listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server", "error", err)
			}
		}()
	}

	sched.Start(ctx)
	log.Info("watcher started", "queries", len(queries))

	<-ctx.Done()
	log.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown", "error", err)
		}
	}
	if err := sched.Wait(shutdownCtx); err != nil {
		log.Warn("abandoning in-flight runs", "error", err)
	}

	log.Info("watcher stopped")
	return nil
}

// runOnce runs the queries one after another and reports whether all of them
// succeeded.
func runOnce(ctx context.Context, r *runner.Runner, queries []model.Query, log *slog.Logger) error {
	failed := 0
	for _, q := range queries {
		if res := r.Run(ctx, q); res.State == runner.StateFailed {
			failed++
		}
	}
	log.Info("single pass done", "queries", len(queries), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(queries))
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
