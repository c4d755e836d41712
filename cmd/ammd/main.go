package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/defistate/defistate-amm-go/api"
	"github.com/defistate/defistate-amm-go/cache"
	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/events/kafka"
	"github.com/defistate/defistate-amm-go/exchange"
	"github.com/defistate/defistate-amm-go/logging"
	"github.com/defistate/defistate-amm-go/storage"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultEventBufferSize = 1024
	shutdownTimeout        = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.DefaultRegisterer

	// event sinks
	var sinks []events.Sink
	if cfg.Kafka.Enabled() {
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout.Duration,
			Logger:       logger.With("component", "kafka"),
		})
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("kafka sink enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	if cfg.Redis.Enabled() {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		sinks = append(sinks, cache.NewReserveCache(rdb, cfg.Redis.TTL.Duration))
		logger.Info("redis reserves cache enabled", "addr", cfg.Redis.Addr)
	}
	dispatcher, err := events.NewDispatcher(events.DispatcherConfig{
		Sinks:      sinks,
		BufferSize: DefaultEventBufferSize,
		Logger:     logger.With("component", "dispatcher"),
	})
	if err != nil {
		return fmt.Errorf("failed to create event dispatcher: %w", err)
	}
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	// state stream
	ops, err := stateops.NewStateOps(logger.With("component", "stateops"), registry)
	if err != nil {
		return fmt.Errorf("failed to create state ops: %w", err)
	}
	streamer, err := server.NewStreamer(server.StreamerConfig{
		Differ:     ops,
		BufferSize: cfg.StreamBufferSize,
		Logger:     logger.With("component", "streamer"),
	})
	if err != nil {
		return fmt.Errorf("failed to create streamer: %w", err)
	}
	go streamer.Run(ctx)

	// exchange
	g := cfg.Genesis
	ex, err := exchange.New(exchange.Config{
		ChainID:        g.ChainID,
		FactoryAddress: g.FactoryAddress,
		FeeToSetter:    g.FeeToSetter,
		FeeBps:         g.FeeBps,
		WETHAddress:    g.WETHAddress,
		RouterAddress:  g.RouterAddress,
		Dispatcher:     dispatcher,
		Observers:      []exchange.Observer{streamer.Publish},
		Registerer:     registry,
		Logger:         logger.With("component", "exchange"),
	})
	if err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "checkpoints"))
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer db.Close()

	restored, err := ex.LoadCheckpoint(db)
	if err != nil {
		return fmt.Errorf("failed to restore checkpoint: %w", err)
	}
	if !restored {
		if err := applyGenesis(ctx, ex, g); err != nil {
			return fmt.Errorf("failed to apply genesis: %w", err)
		}
		logger.Info("genesis applied", "chain_id", g.ChainID, "tokens", len(g.Tokens), "balances", len(g.Balances))
	}
	streamer.Publish(ex.State())

	// servers
	app := fiber.New()
	api.NewHandler(ex, logger.With("component", "api")).Register(app)

	rpcServer := rpc.NewServer()
	defer rpcServer.Stop()
	if err := server.Register(rpcServer, server.NewAPI(ex, streamer, logger.With("component", "rpc"))); err != nil {
		return err
	}
	if cfg.RPCWrites {
		if err := server.RegisterTrading(rpcServer, server.NewTradeAPI(ex, logger.With("component", "rpc"))); err != nil {
			return err
		}
	}
	rpcMux := http.NewServeMux()
	rpcMux.Handle("/ws", rpcServer.WebsocketHandler([]string{"*"}))
	rpcMux.Handle("/", rpcServer)
	rpcHTTP := &http.Server{Addr: cfg.RPCAddr, Handler: rpcMux, ReadHeaderTimeout: 10 * time.Second}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsHTTP := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 3)
	go func() { errCh <- app.Listen(cfg.HTTPAddr) }()
	go func() { errCh <- listen(rpcHTTP) }()
	go func() { errCh <- listen(metricsHTTP) }()
	logger.Info("ammd started", "height", ex.Height(), "http", cfg.HTTPAddr, "rpc", cfg.RPCAddr, "metrics", cfg.MetricsAddr, "rpc_writes", cfg.RPCWrites)

	go checkpointLoop(ctx, ex, db, cfg.CheckpointInterval.Duration, logger)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
			logger.Error("server failed", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = metricsHTTP.Shutdown(shutdownCtx)

	if err := ex.SaveCheckpoint(db); err != nil {
		logger.Error("failed to save final checkpoint", "error", err)
	} else {
		logger.Info("checkpoint saved", "height", ex.Height())
	}

	dispatcher.Close()
	<-dispatchDone
	return runErr
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// checkpointLoop saves a checkpoint every interval while the height moves.
func checkpointLoop(ctx context.Context, ex *exchange.Exchange, db storage.Database, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	saved := ex.Height()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h := ex.Height(); h != saved {
				if err := ex.SaveCheckpoint(db); err != nil {
					logger.Error("failed to save checkpoint", "error", err)
					continue
				}
				saved = h
			}
		}
	}
}
