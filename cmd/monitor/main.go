// Arbitrage monitor: watches a live odds feed for two-book surebets and
// alerts when a balanced pair between the rebate books clears the minimum
// profit.
//
// Architecture:
//
//	main.go               entry point: loads config, wires engine and dashboard, waits for SIGINT/SIGTERM
//	engine/engine.go      state controller: feed frames in, board and arbitrage table out
//	feed/manager.go       connection state machine with heartbeat watchdog and capped backoff
//	feed/ws.go, sse.go    WebSocket and Server-Sent Events transports
//	normalize/            turns loosely shaped feed JSON into canonical opportunities
//	market/board.go       per-event odds board, rendered as (event, book, period) rows
//	arbitrage/            stake balancing, rebate income, alert eligibility
//	alert/                dedup memory (in-process or Redis), dispatcher, Telegram channel
//	store/store.go        JSON file persistence for the editable settings
//	api/                  dashboard REST + WebSocket server and the mock feed
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"arb-monitor/internal/alert"
	"arb-monitor/internal/api"
	"arb-monitor/internal/config"
	"arb-monitor/internal/engine"
	"arb-monitor/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err, "dir", cfg.Store.DataDir)
		os.Exit(1)
	}

	deps := engine.Deps{Store: st}

	var rdb *redis.Client
	if cfg.Alerts.Memory == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Warn("redis unreachable, alert dedup falls back to process memory", "addr", cfg.Redis.Addr, "error", err)
			rdb.Close()
			rdb = nil
		} else {
			deps.Memory = alert.NewRedisMemory(rdb, cfg.Alerts.DedupWindow)
			logger.Info("alert dedup backed by redis", "addr", cfg.Redis.Addr)
		}
	}

	// Without Telegram the engine falls back to a log-only notifier.
	if cfg.Telegram.Enabled {
		tg, err := alert.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Error("failed to create telegram notifier", "error", err)
			os.Exit(1)
		}
		go tg.Run(ctx)
		deps.Notifier = tg
	}

	// Create and start engine
	eng, err := engine.New(*cfg, deps, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(cfg.Dashboard, eng, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("dashboard server failed", "error", err)
		}
	}()
	logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	s := eng.Settings()
	logger.Info("arbitrage monitor started",
		"mock", s.Datasource.UseMock,
		"mode", s.Datasource.Mode,
		"transport", s.Datasource.Transport,
		"a_book", s.Stake.ABook,
		"amount_a", s.Stake.AmountA,
		"min_profit", s.Stake.MinProfit,
	)

	<-ctx.Done()
	stop()
	logger.Info("shutdown requested")

	// Stop dashboard first
	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop dashboard", "error", err)
	}

	eng.Stop()
	if rdb != nil {
		rdb.Close()
	}
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(c config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
}
