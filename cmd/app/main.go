package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trade_stream/internal/app"
	"trade_stream/internal/domain"
	"trade_stream/internal/execution"
	"trade_stream/internal/infra"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := bootstrap.Session

	trader, err := execution.NewTrader(cfg, session)
	if err != nil {
		slog.Error("execution setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	if pt, ok := trader.(*execution.PaperTrader); ok {
		b := pt.Balance()
		slog.Info("paper trading", "balance", b.Amount.String(), "currency", b.Currency)
	}

	session.OnConnect(func() {
		slog.Info("session authorized", "endpoint", cfg.API.Endpoint)
	})
	session.OnDisconnect(func() {
		slog.Warn("session disconnected, reconnecting")
	})
	session.OnBalance(func(b domain.Balance) {
		slog.Info("balance", "amount", b.Amount.String(), "currency", b.Currency)
	})
	session.OnContractUpdate(func(c domain.Contract) {
		slog.Info("contract",
			slog.Int64("id", c.ID),
			slog.String("status", c.Status),
			slog.String("profit", c.Profit.String()))
	})
	session.OnError(func(err error) {
		slog.Warn("session error", slog.Any("error", err))
	})

	session.Start(ctx)

	// Tick subscriptions survive reconnects; subscribing before the
	// handshake completes is fine, the session replays them.
	for _, symbol := range cfg.API.Symbols {
		if err := session.SubscribeTicks(symbol); err != nil {
			slog.Error("subscribe failed", "symbol", symbol, slog.Any("error", err))
		}
	}
	slog.Info("streaming started", slog.Int("symbols", len(cfg.API.Symbols)))

	<-ctx.Done()
	slog.Info("shutting down gracefully")
}
