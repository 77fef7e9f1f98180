package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ojclient/internal/cli/command"
	"ojclient/internal/cli/config"
	"ojclient/internal/cli/repl"
	"ojclient/internal/cli/state"
	"ojclient/internal/common/cache"
	"ojclient/internal/common/metrics"
	"ojclient/internal/draft"
	"ojclient/internal/gateway"
	"ojclient/internal/judge"
	"ojclient/internal/session"
	"ojclient/internal/settlement"
	"ojclient/internal/submission"
	"ojclient/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/cli.yaml"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	sessionID := flag.String("session", "", "Override session id")
	statePath := flag.String("state", "", "Override token state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}
	if *statePath != "" {
		cfg.Session.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	var m metrics.Metrics = metrics.Noop{}
	if cfg.MetricsAddr != "" {
		m = metrics.NewProm("ojclient", nil)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		threading.GoSafe(func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "metrics server stopped", zap.Error(err))
			}
		})
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	store, localBackend, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	local, err := draft.NewLocalCache(localBackend, cfg.Autosave.LocalTTL)
	if err != nil {
		return err
	}
	defer local.Close()

	gw := gateway.New(
		gateway.NewTransport(cfg.BaseURL, cfg.Timeout),
		store,
		gateway.WithMetrics(m),
		gateway.WithOnExpired(func(_ context.Context, id string) {
			fmt.Fprintf(os.Stderr, "session %q expired, please log in again\n", id)
		}),
	)
	client := gw.Bind(cfg.Session.ID)

	drafts := draft.NewClient(client)
	recorder := draft.NewRecorder(drafts, local, m)
	poller := judge.NewPoller(client, cfg.PollConfig(), m)
	dispatcher := submission.NewDispatcher(client,
		submission.WithPoller(poller),
		submission.WithRecorder(recorder),
		submission.WithMetrics(m),
	)
	reconciler := settlement.NewReconciler(client, settlement.WithMetrics(m))

	env := &command.Env{
		Gateway:    gw,
		Client:     client,
		Dispatcher: dispatcher,
		Runs:       submission.NewSlot(dispatcher, m),
		Submits:    submission.NewSlot(dispatcher, m, reconciler),
		Poller:     poller,
		Recorder:   recorder,
		Drafts:     drafts,
		Debounce:   cfg.Autosave.Debounce,
		Info: map[string]any{
			"baseURL":         cfg.BaseURL,
			"judgeURL":        cfg.JudgeURL,
			"timeout":         cfg.Timeout.String(),
			"session":         cfg.Session.ID,
			"sessionBackend":  cfg.Session.Backend,
			"statePath":       cfg.Session.StatePath,
			"autosave":        cfg.Autosave.Debounce.String(),
			"pollTimeout":     cfg.Poll.Timeout.String(),
			"metricsAddr":     cfg.MetricsAddr,
			"prettyJSON":      cfg.Pretty(),
			"localDraftCache": fmt.Sprintf("%T", localBackend),
		},
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := env.Close(cctx); err != nil {
			logger.Warn(cctx, "flush draft on exit failed", zap.Error(err))
		}
	}()

	commands := command.Registry()
	reader, err := repl.NewReadline(cfg.HistoryFile, commands)
	if err != nil {
		return fmt.Errorf("open terminal failed: %w", err)
	}
	defer func() { _ = reader.Close() }()

	return repl.New(env, commands, reader, os.Stdout, cfg.Pretty()).Run(ctx)
}

// buildStores returns the credential store and the backend of the local draft
// cache for the configured session backend.
func buildStores(ctx context.Context, cfg config.Config) (session.Store, cache.BasicOps, func(), error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		rc, err := cache.NewRedisCacheWithConfig(ctx, &cfg.Session.Redis)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init redis failed: %w", err)
		}
		return session.NewRedisStore(rc, cfg.Session.KeyPrefix), rc, func() { _ = rc.Close() }, nil
	case config.BackendMemory:
		mc := cache.NewMemoryCache(cfg.Autosave.LocalMaxItems, cfg.Autosave.LocalTTL)
		return session.NewMemoryStore(), mc, func() {}, nil
	default:
		mc := cache.NewMemoryCache(cfg.Autosave.LocalMaxItems, cfg.Autosave.LocalTTL)
		return state.NewFileStore(cfg.Session.StatePath), mc, func() {}, nil
	}
}
