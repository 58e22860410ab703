// Package bot drives a server with simple scripted traders.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/0x5487/tradesim/internal/client"
)

// Config is shared by every bot.
type Config struct {
	// Client is the name sent with every order.
	Client string
	Loops  int
	// Delay is the pause between loops; zero means none.
	Delay  time.Duration
	Logger *slog.Logger
}

// Stats summarizes one run.
type Stats struct {
	Loops   int `json:"loops"`
	Orders  int `json:"orders"`
	Rejects int `json:"rejects"`
}

// Bot trades over an established session.
type Bot interface {
	Run(ctx context.Context, c *client.Client) (Stats, error)
}

func (cfg Config) withDefaults(loops int, name string) Config {
	if cfg.Loops <= 0 {
		cfg.Loops = loops
	}
	if cfg.Client == "" {
		cfg.Client = name
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("bot", name, "client", cfg.Client)
	return cfg
}

// run calls step cfg.Loops times, sleeping cfg.Delay in between, and ends the
// session with QUIT. A cancelled ctx ends the loop early without an error.
func run(ctx context.Context, cfg Config, c *client.Client, stats *Stats, step func() error) error {
	var timer *time.Timer
	if cfg.Delay > 0 {
		timer = time.NewTimer(cfg.Delay)
		defer timer.Stop()
	}

loop:
	for i := 0; i < cfg.Loops; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := step(); err != nil {
			return fmt.Errorf("loop %d: %w", i, err)
		}
		stats.Loops++

		if timer == nil || i == cfg.Loops-1 {
			continue
		}
		timer.Reset(cfg.Delay)
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
		}
	}

	cfg.Logger.Info("bot finished", "loops", stats.Loops, "orders", stats.Orders, "rejects", stats.Rejects)
	return c.Quit()
}

// send submits one order line and counts the outcome.
func send(cfg Config, c *client.Client, stats *Stats, line string) error {
	resp, err := c.Roundtrip(line)
	if err != nil {
		return err
	}
	stats.Orders++
	if strings.HasPrefix(resp, "ERROR") {
		stats.Rejects++
		cfg.Logger.Warn("order rejected", "order", line, "response", resp)
		return nil
	}
	cfg.Logger.Debug("order sent", "order", line, "response", resp)
	return nil
}
