// Command cryptohunter polls exchange prices, detects cross-exchange spreads
// and records simulated trades. The polling loop is started and stopped over
// the HTTP control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"cryptohunter/internal/arbitrage"
	"cryptohunter/internal/bot"
	"cryptohunter/internal/config"
	"cryptohunter/internal/database"
	"cryptohunter/internal/exchange"
	"cryptohunter/internal/logging"
	"cryptohunter/internal/notify"
	"cryptohunter/internal/pricefeed"
	"cryptohunter/internal/server"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	autostart := flag.Bool("autostart", false, "start the polling loop at boot")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if *autostart {
		cfg.Bot.AutoStart = true
	}

	logs, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()
	logger := logs.Logger
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logs); err != nil {
		logger.Error("cryptohunter exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("cryptohunter stopped")
}

func run(ctx context.Context, cfg config.Config, logs *logging.Logging) error {
	logger := logs.Logger

	primary, err := exchange.NewPriceSource(logger, cfg.Upstream, cfg.Fallback)
	if err != nil {
		return err
	}
	fetcher := pricefeed.New(logger, primary, exchange.NewFallbackSource(cfg.Fallback), pricefeed.Options{
		MaxAttempts:     cfg.Upstream.MaxAttempts,
		BackoffBase:     cfg.Upstream.BackoffBase,
		MinCallInterval: cfg.Upstream.MinCallInterval,
		QuoteTargets:    cfg.Upstream.QuoteTargets,
		Aliases:         cfg.Upstream.ExchangeAliases,
	})

	fees := arbitrage.NewFeeModel(cfg.Fees.DefaultTakerFeePercent, cfg.TakerFees())
	ledger := arbitrage.NewLedger()

	g, gctx := errgroup.WithContext(ctx)

	senders := []notify.Sender{notify.NewLogSender(logger.With("component", "alerts"))}
	if cfg.Notify.Telegram.Token != "" && cfg.Notify.Telegram.ChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID))
	}
	if cfg.Notify.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Notify.Redis.Addr,
			Password: cfg.Notify.Redis.Password,
			DB:       cfg.Notify.Redis.DB,
		})
		defer rdb.Close()
		senders = append(senders, notify.NewRedisSender(rdb, cfg.Notify.Redis.Channel))
	}
	dispatcher := notify.NewDispatcher(logger, cfg.Notify.QueueSize, senders...)
	g.Go(func() error { return dispatcher.Run(gctx) })

	deps := bot.Deps{
		Fetcher:   fetcher,
		Fees:      fees,
		Simulator: arbitrage.NewSimulator(logger, fees, cfg.Bot.TradeSize),
		Ledger:    ledger,
		Notifier:  dispatcher,
		Logs:      logs.Lines,
	}

	if cfg.Database.Enabled {
		repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		recorder := database.NewRecorder(logger, repo, cfg.Database.QueueSize)
		g.Go(func() error { return recorder.Run(gctx) })
		deps.Recorder = recorder
	}

	ctrl := bot.New(logger, deps, bot.Options{
		Assets:       cfg.Bot.Assets,
		Exchanges:    cfg.Bot.Exchanges,
		ThresholdPct: cfg.Bot.ThresholdPercent,
		PollInterval: cfg.Bot.PollInterval,
		RecentTrades: cfg.Bot.RecentTrades,
		SummaryEvery: cfg.Bot.SummaryEvery,
	})
	defer ctrl.Close()

	srv := server.New(cfg.Server, ctrl, logger)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		ctrl.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Bot.AutoStart {
		if err := ctrl.Start(); err != nil {
			return err
		}
	}

	logger.Info("cryptohunter started",
		"addr", cfg.Server.Addr,
		"source", primary.Name(),
		"auto_start", cfg.Bot.AutoStart,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
