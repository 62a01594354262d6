// Command opsd runs the order process system: the matching engine behind the gRPC
// OrderService, with optional Kafka and websocket drop copies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	match "github.com/0x5487/order-process-system"
	"github.com/0x5487/order-process-system/api/grpcserver"
	"github.com/0x5487/order-process-system/config"
	"github.com/0x5487/order-process-system/feed"
	"github.com/0x5487/order-process-system/kafka"
	"go.uber.org/zap"
)

func main() {
	envPath := flag.String("env", "", "path of the .env file")
	flag.Parse()

	if err := run(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, "opsd:", err)
		os.Exit(1)
	}
}

func run(envPath string) error {
	cfg, err := config.Load(envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	match.SetLogger(logger)

	// drop copy chain
	var sinks match.MultiPublishLog

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		sp, err := kafka.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		producer = kafka.NewProducer(sp, cfg.KafkaTopic, logger)
		sinks = append(sinks, producer)
		logger.Info("kafka drop copy enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	var hub *feed.Hub
	if cfg.FeedAddr != "" {
		hub = feed.NewHub(logger)
		sinks = append(sinks, hub)
	}

	var publishLog match.PublishLog = match.NewDiscardPublishLog()
	var async *match.AsyncPublishLog
	if len(sinks) > 0 {
		async = match.NewAsyncPublishLog(cfg.PublishRingSize, sinks)
		publishLog = async
	}

	engine := match.NewMatchingEngine(publishLog, match.WithMarketPrice(cfg.MarketPrice))
	dispatcher := match.NewDispatcher(engine,
		match.WithWorkerCount(cfg.WorkerCount),
		match.WithCompletionQueueSize(cfg.CompletionQueueSize),
	)
	dispatcher.Start()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	var feedLis net.Listener
	if hub != nil {
		feedLis, err = net.Listen("tcp", cfg.FeedAddr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("listen %s: %w", cfg.FeedAddr, err)
		}
	}

	server := grpcserver.New(dispatcher, logger)
	errCh := make(chan error, 2)
	go func() {
		errCh <- server.Serve(lis)
	}()

	var feedServer *feed.Server
	if feedLis != nil {
		feedServer = feed.NewServer(hub, dispatcher, logger)
		go func() {
			errCh <- feedServer.Serve(feedLis)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// stop intake first, then drain the drop copies
	var errs []error
	errs = append(errs, err)
	if e := server.Shutdown(shutdownCtx); e != nil {
		errs = append(errs, fmt.Errorf("grpc shutdown: %w", e))
	}
	if feedServer != nil {
		if e := feedServer.Shutdown(shutdownCtx); e != nil {
			errs = append(errs, fmt.Errorf("feed shutdown: %w", e))
		}
	}
	if e := dispatcher.Shutdown(shutdownCtx); e != nil {
		errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", e))
	}
	if async != nil {
		if e := async.Shutdown(shutdownCtx); e != nil {
			errs = append(errs, fmt.Errorf("drop copy shutdown: %w", e))
		}
	}
	if producer != nil {
		if e := producer.Close(); e != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", e))
		}
	}

	logger.Info("stopped", zap.Any("stats", engine.Stats()))
	return errors.Join(errs...)
}
