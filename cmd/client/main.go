package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/defistate-amm-go/logging"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultClientStateBufferSize = 100
)

func main() {
	url := flag.String("url", "ws://localhost:8545/ws", "State stream websocket URL.")
	level := flag.String("log-level", "info", "Log level.")
	flag.Parse()

	rootLogger, closer, err := logging.New(logging.Config{Level: *level, Service: "amm-client"})
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()
	fail := func(msg string, args ...any) {
		rootLogger.Error(msg, args...)
		os.Exit(1)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops, err := stateops.NewStateOps(rootLogger.With("component", "stateops"), prometheus.DefaultRegisterer)
	if err != nil {
		fail("Failed to initialize state ops", "error", err)
	}

	c, err := client.NewClient(
		ctx,
		client.Config{
			URL:              *url,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       DefaultClientStateBufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		fail("Failed to initialize client", "url", *url, "error", err)
	}

	for {
		select {
		case state := <-c.State():
			view, err := stateops.Extract(state)
			if err != nil {
				rootLogger.Warn("Received state without exchange protocols", "height", state.Block.Number, "error", err)
				continue
			}
			rootLogger.Info("State received",
				"chain_id", state.ChainID,
				"height", view.Block.Number,
				"tokens", len(view.Tokens),
				"pairs", len(view.Pools),
				"events", view.Block.Events,
			)
		case err := <-c.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}
