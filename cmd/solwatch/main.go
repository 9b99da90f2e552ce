// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// solwatch scans confirmed Solana blocks for transfers touching watched
// addresses and fans matches out to MongoDB, Kafka, and WebSocket
// subscribers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/solwatch/api"
	"github.com/ava-labs/solwatch/bus"
	"github.com/ava-labs/solwatch/chain"
	"github.com/ava-labs/solwatch/config"
	"github.com/ava-labs/solwatch/log"
	"github.com/ava-labs/solwatch/scanner"
	"github.com/ava-labs/solwatch/store"
	"github.com/ava-labs/solwatch/ws"
)

const (
	storeDialTimeout = 10 * time.Second
	shutdownGrace    = 5 * time.Second
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "config file merged underneath the environment",
		EnvVars: []string{"CONFIG_FILE"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "minimum log level (debug, info, warn, error)",
		Value:   "info",
		EnvVars: []string{"LOG_LEVEL"},
	}
	logFileFlag = &cli.StringFlag{
		Name:    "log-file",
		Usage:   "optional rotated JSON log file",
		EnvVars: []string{"LOG_FILE"},
	}
)

func main() {
	app := &cli.App{
		Name:   "solwatch",
		Usage:  "scan Solana blocks for transfers touching watched addresses",
		Flags:  []cli.Flag{configFlag, logLevelFlag, logFileFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return err
	}
	logger, err := log.New(log.Config{
		Level: c.String(logLevelFlag.Name),
		File:  c.String(logFileFlag.Name),
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, logger)
}

// serve wires the pipeline and blocks until the context is cancelled
// or a component fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, storeDialTimeout)
	st, err := store.Open(dialCtx, cfg.MongoDBURI, logger.Named("store"))
	dialCancel()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), storeDialTimeout)
		defer closeCancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("store close", zap.Error(err))
		}
	}()

	pub, err := bus.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTransactionTopic, cfg.KafkaClientID, logger.Named("bus"))
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}()

	client := chain.NewClient(cfg.SolanaRPCURL, cfg.SolanaRPCRateLimit)
	registry := ws.NewRegistry(logger.Named("registry"))
	dispatcher := scanner.NewDispatcher(st, pub, registry, logger.Named("dispatch"))
	engine := scanner.NewEngine(scanner.Config{
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		MaxAddresses:          cfg.MaxAddresses,
	}, client, st, dispatcher, logger.Named("scanner"))

	apiSrv := api.NewServer(engine, cfg.RPCPort, logger.Named("api"))
	wsSrv := ws.NewServer(registry, cfg.WebsocketPort, logger.Named("ws"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Start(gctx) })
	g.Go(func() error { return ignoreClosed(apiSrv.ListenAndServe()) })
	g.Go(func() error { return ignoreClosed(wsSrv.ListenAndServe()) })
	g.Go(func() error {
		<-gctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shCancel()
		if err := apiSrv.Shutdown(shCtx); err != nil {
			logger.Warn("api shutdown", zap.Error(err))
		}
		if err := wsSrv.Shutdown(shCtx); err != nil {
			logger.Warn("websocket shutdown", zap.Error(err))
		}
		return nil
	})

	logger.Info("solwatch started",
		zap.Int("rpc_port", cfg.RPCPort),
		zap.Int("websocket_port", cfg.WebsocketPort),
		zap.String("solana_rpc_url", cfg.SolanaRPCURL),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("solwatch stopped")
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
