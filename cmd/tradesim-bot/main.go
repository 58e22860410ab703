// Command tradesim-bot runs a market maker or a random trader against a server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x5487/tradesim/internal/bot"
	"github.com/0x5487/tradesim/internal/client"
	"github.com/0x5487/tradesim/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("tradesim-bot", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: tradesim-bot [flags] mm|random\n")
		fs.PrintDefaults()
	}
	addr := fs.StringP("addr", "a", "127.0.0.1:9001", "server address")
	name := fs.String("client", "", "client name sent with orders (default: bot kind)")
	loops := fs.Int("loops", 0, "number of loops (default 80 for mm, 50 for random)")
	delay := fs.Duration("delay", -1, "pause between loops (default 400ms for mm, 300ms for random)")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random bot seed")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	logger, sync, err := logging.Setup(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = sync() }()

	cfg := bot.Config{Client: *name, Loops: *loops, Delay: *delay, Logger: logger}

	var b bot.Bot
	switch kind := fs.Arg(0); kind {
	case "mm":
		if cfg.Delay < 0 {
			cfg.Delay = bot.DefaultMarketMakerDelay
		}
		b = bot.NewMarketMaker(cfg)
	case "random":
		if cfg.Delay < 0 {
			cfg.Delay = bot.DefaultRandomDelay
		}
		b = bot.NewRandom(cfg, *seed)
	default:
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, b, logger); err != nil {
		logger.Error("bot failed", "error", err)
		_ = sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, b bot.Bot, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := client.Dial(dialCtx, addr)
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Debug("connected", "addr", addr, "greeting", c.Greeting)

	stats, err := b.Run(ctx, c)
	if err != nil {
		return err
	}
	logger.Info("done", "loops", stats.Loops, "orders", stats.Orders, "rejects", stats.Rejects)
	return nil
}
