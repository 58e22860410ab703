// Command tradesim-server runs the matching engine behind the line protocol
// and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/audit"
	"github.com/0x5487/tradesim/internal/config"
	"github.com/0x5487/tradesim/internal/httpapi"
	"github.com/0x5487/tradesim/internal/kafka"
	"github.com/0x5487/tradesim/internal/logging"
	"github.com/0x5487/tradesim/internal/metrics"
	"github.com/0x5487/tradesim/internal/server"
	"github.com/0x5487/tradesim/internal/tradelog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("tradesim-server", pflag.ExitOnError)
	configFile := fs.StringP("config", "c", "", "config file (default ./tradesim.yaml when present)")
	envFiles := fs.StringSlice("env-file", nil, "dotenv files to load (default .env)")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(config.Options{File: *configFile, EnvFiles: *envFiles, Flags: fs})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, sync, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		_ = sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting tradesim", "engine_version", match.EngineVersion)

	m := metrics.New()
	levels := match.NewAggregatedBook()
	publishLog := match.MultiPublishLog{levels}

	var sink *kafka.Sink
	if cfg.KafkaEnabled() {
		sink = kafka.NewSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.WithLogger(logger))
		publishLog = append(publishLog, sink)
		logger.Info("publishing book events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	engine := match.NewMatchingEngine(match.WithPublishLog(publishLog))

	dispatcherOpts := []server.DispatcherOption{
		server.WithMetrics(m),
		server.WithDispatcherLogger(logger),
	}

	var trail *audit.Trail
	if cfg.Audit.Dir != "" {
		var err error
		trail, err = audit.Open(cfg.Audit.Dir, cfg.Audit.Buffer, logger)
		if err != nil {
			return err
		}
		dispatcherOpts = append(dispatcherOpts, server.WithRecorder(trail))
		logger.Info("audit trail opened", "trades", trail.TradesPath(), "book", trail.BookPath())
	}

	dispatcher := server.NewDispatcher(engine, tradelog.New(cfg.History.Size), dispatcherOpts...)
	tcp := server.New(cfg.TCPAddr, dispatcher, server.WithLogger(logger), server.WithServerMetrics(m))

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		api := httpapi.New(dispatcher,
			httpapi.WithMetrics(m),
			httpapi.WithLevels(levels),
			httpapi.WithLogger(logger))
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := tcp.Serve(gctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})
	if httpSrv != nil {
		g.Go(func() error {
			logger.Info("http listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if httpSrv != nil {
			errs = append(errs, httpSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, tcp.Shutdown(shutdownCtx))
		if trail != nil {
			errs = append(errs, trail.Close(shutdownCtx))
		}
		if sink != nil {
			errs = append(errs, sink.Close(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()

	stats := engine.Stats()
	logger.Info("final book",
		"bid_orders", stats.BidOrderCount,
		"ask_orders", stats.AskOrderCount,
		"trades", dispatcher.History().Total(),
		"seq_id", levels.SequenceID())
	if engine.Top() != levels.Top() {
		logger.Warn("aggregated book diverged from engine", "engine", engine.Top(), "levels", levels.Top())
	}
	return err
}
