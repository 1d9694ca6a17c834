package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gregtusar/termarb/api"
	"github.com/gregtusar/termarb/pkg/cooldown"
	"github.com/gregtusar/termarb/pkg/metrics"
	"github.com/gregtusar/termarb/pkg/notify"
	"github.com/gregtusar/termarb/pkg/oms"
	"github.com/gregtusar/termarb/pkg/scanner"
	"github.com/gregtusar/termarb/pkg/store"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the market data feed and scan continuously",
		RunE:  runScanner,
	}
}

func runScanner(cmd *cobra.Command, args []string) error {
	if cfg.OMS.Host == "" || cfg.OMS.User == "" || cfg.OMS.Password == "" {
		return fmt.Errorf("oms host, user and password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := buildRegistry(cfg, logger)
	if registry.Len() == 0 {
		return fmt.Errorf("no tickers loaded from %s", cfg.Trading.TickersFile)
	}

	client := oms.NewClient(cfg.OMS.Host, cfg.OMS.User, cfg.OMS.Password,
		oms.NewTokenCache(cfg.OMS.TokenCache, logger), oms.NewRateLimiter(nil), logger)
	feed := oms.NewConnector(client.WebSocketURL(), "", nil, logger)
	if cfg.OMS.HeartbeatSeconds > 0 {
		feed.SetHeartbeat(time.Duration(cfg.OMS.HeartbeatSeconds) * time.Second)
	}

	var notifiers notify.Multi
	if cfg.Telegram.Enabled() {
		notifiers = append(notifiers, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	} else {
		logger.Warn("Telegram credentials missing, alerts go to the console only")
	}
	if cfg.Alerts.Console {
		notifiers = append(notifiers, notify.NewConsole())
	}

	var cool cooldown.Store = cooldown.NewMemory()
	if cfg.Redis.Enabled {
		rc, err := cooldown.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		cool = rc
	}

	m := metrics.New()
	deps := scanner.Deps{
		Registry:  registry,
		Evaluator: newEvaluator(),
		Feed:      feed,
		Tokens:    client,
		Notifier:  notifiers,
		Cooldown:  cool,
		Metrics:   m,
		Logger:    logger,
	}

	var history api.HistoryReader
	if cfg.Storage.Path != "" {
		db, err := openStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.History = db
		history = db
	}

	svc := scanner.New(serviceOptions(cfg), deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if cfg.Server.Enabled {
		srv := api.NewServer(svc, history, m.Handler(), logger, strconv.Itoa(cfg.Server.Port))
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	logger.Info("Scanner is running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Scanner stopped")
	return nil
}

func openStore(path string) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return db, nil
}
