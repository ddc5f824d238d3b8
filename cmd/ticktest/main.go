package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade_stream/internal/domain"
	"trade_stream/internal/stream"
)

// ticktest streams live ticks for one symbol to stdout. Useful for checking
// endpoint, token, and symbol names before configuring the full app.
func main() {
	endpoint := flag.String("endpoint", "wss://ws.derivws.com/websockets/v3?app_id=1089", "streaming endpoint")
	token := flag.String("token", os.Getenv("TRADE_API_TOKEN"), "API token")
	symbol := flag.String("symbol", "R_100", "symbol to stream")
	count := flag.Int("count", 10, "ticks to print before exiting (0 = forever)")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "no token: pass -token or set TRADE_API_TOKEN")
		os.Exit(1)
	}

	fmt.Println("=== Tick Stream Check ===")
	fmt.Printf("endpoint: %s\n", *endpoint)
	fmt.Printf("symbol:   %s\n\n", *symbol)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := stream.NewSession(stream.Config{
		Endpoint: *endpoint,
		Token:    *token,
	})
	defer session.Stop()

	done := make(chan struct{})
	seen := 0
	session.OnTick(func(t domain.Tick) {
		seen++
		fmt.Printf("%s  %s  %s\n",
			time.UnixMicro(int64(t.Ts)).UTC().Format("15:04:05.000"),
			t.Symbol,
			t.Price.String())
		if *count > 0 && seen == *count {
			close(done)
		}
	})
	session.OnBalance(func(b domain.Balance) {
		fmt.Printf("balance: %s %s\n\n", b.Amount.String(), b.Currency)
	})
	session.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	})

	session.Start(ctx)
	if err := session.SubscribeTicks(*symbol); err != nil {
		fmt.Fprintf(os.Stderr, "subscribe failed: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	fmt.Printf("\n%d ticks received\n", seen)
}
