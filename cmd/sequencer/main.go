// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// sequencer is the standalone entrypoint wiring C1-C8 together: a gateway
// component server in front of the mempool, an L1-handler manager, a
// block builder driven on a fixed cadence by the proposal driver, and a
// commit adapter feeding results back into the mempool and L1-handler
// manager. External collaborators (execution, class resolution,
// persistence, propagation) default to the in-memory stand-ins in
// internal/stub so the binary runs standalone; production deployments
// wire real implementations in their place.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/starkware-libs/sequencer-sub007/internal/builder"
	"github.com/starkware-libs/sequencer-sub007/internal/clock"
	"github.com/starkware-libs/sequencer-sub007/internal/commit"
	"github.com/starkware-libs/sequencer-sub007/internal/config"
	"github.com/starkware-libs/sequencer-sub007/internal/convert"
	"github.com/starkware-libs/sequencer-sub007/internal/external"
	"github.com/starkware-libs/sequencer-sub007/internal/l1handler"
	"github.com/starkware-libs/sequencer-sub007/internal/mempool"
	"github.com/starkware-libs/sequencer-sub007/internal/metrics"
	"github.com/starkware-libs/sequencer-sub007/internal/proposal"
	"github.com/starkware-libs/sequencer-sub007/internal/runtime"
	"github.com/starkware-libs/sequencer-sub007/internal/stub"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// addTxRequest is the gateway's single request shape, carried over the C1
// component server in front of the mempool engine (§4.1, §6).
type addTxRequest struct {
	tx types.RpcTransaction
}

func (addTxRequest) Priority() runtime.Priority { return runtime.PriorityNormal }

type gatewayHandler struct {
	converter *convert.Converter
	engine    *mempool.Engine
}

func (g *gatewayHandler) HandleRequest(ctx context.Context, req addTxRequest) (external.GatewayResult, error) {
	internal, err := g.converter.Conv1(ctx, req.tx)
	if err != nil {
		return external.GatewayResult{}, fmt.Errorf("gateway: conv1 rejected tx: %w", err)
	}
	if err := g.engine.AddTx(internal); err != nil {
		return external.GatewayResult{}, fmt.Errorf("gateway: mempool rejected tx: %w", err)
	}

	result := external.GatewayResult{TxHash: internal.TxHash}
	switch internal.Tx.Kind {
	case types.TxKindDeployAccount:
		addr := internal.ContractAddress
		result.ContractAddress = &addr
	case types.TxKindDeclare:
		classHash := internal.ResolvedClassHash
		result.ClassHash = &classHash
	}
	return result, nil
}

func main() {
	fs := pflag.NewFlagSet("sequencer", pflag.ExitOnError)
	config.BindFlags(fs, viper.GetViper())
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Error("flag parse failed", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Build(viper.GetViper())
	if err != nil {
		log.Error("config build failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("sequencer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	gethmetrics.Enabled = true
	realClock := clock.Real{}

	classManager := stub.NewClassManager()
	executor := stub.Executor{}
	committerImpl := &stub.Committer{}
	propagator := stub.Propagator{}

	converter := convert.New([8]byte{'s', 'n', '-', 'd', 'e', 'm', 'o', '0'}, convert.DefaultLimits(), classManager)

	engine := mempool.NewEngine(cfg.MempoolConfig(), realClock, stub.ZeroNonceReader{})
	engine.Start()
	defer engine.Stop()

	l1Manager := l1handler.New()

	b := builder.New(cfg.BuilderConfig(), engine, l1Manager, converter, executor)

	committer := commit.New(committerImpl, engine, l1Manager, types.NewRoots{})
	driver := proposal.New(b, committer)

	gateway := runtime.NewServer[addTxRequest, external.GatewayResult](
		"gateway",
		&gatewayHandler{converter: converter, engine: engine},
		cfg.RuntimeConfig(),
	)
	gateway.Start()
	defer gateway.Stop()
	gatewayClient := runtime.NewLocalClient[addTxRequest, external.GatewayResult](gateway)
	_ = propagator // propagation path is driven from mempool.Engine.SubscribeNewBatch by the p2p layer, not this loop.

	mux := http.NewServeMux()
	mux.HandleFunc("/add_tx", addTxHandler(gatewayClient))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.NewGatherer(), promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway http server failed", "err", err)
		}
	}()
	defer httpServer.Shutdown(ctx)

	log.Info("sequencer started",
		"mempoolMaxBytes", cfg.Static.MempoolMaxPoolSizeBytes,
		"builderNConcurrentTxs", cfg.Static.BuilderNConcurrentTxs,
		"gatewayAddr", httpServer.Addr,
	)

	return proposeLoop(ctx, driver)
}

// addTxHandler exposes the gateway's C1 component server over HTTP: a
// POST of a JSON-encoded RpcTransaction is converted and admitted to the
// mempool through the same path an in-process caller would use.
func addTxHandler(client *runtime.LocalClient[addTxRequest, external.GatewayResult]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var tx types.RpcTransaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		result, err := client.Send(r.Context(), addTxRequest{tx: tx})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			TxHash          types.TxHash     `json:"tx_hash"`
			ContractAddress *types.Address   `json:"contract_address,omitempty"`
			ClassHash       *types.ClassHash `json:"class_hash,omitempty"`
		}{TxHash: result.TxHash, ContractAddress: result.ContractAddress, ClassHash: result.ClassHash})
	}
}

// proposeLoop drives one propose/commit cycle per blockInterval, standing
// in for a real consensus engine's StartPropose/Finalize cadence (§4.7).
func proposeLoop(ctx context.Context, driver *proposal.Driver) error {
	const blockInterval = 2 * time.Second
	ticker := time.NewTicker(blockInterval)
	defer ticker.Stop()

	var blockNumber uint64
	for {
		select {
		case <-ctx.Done():
			log.Info("sequencer shutting down")
			return nil
		case <-ticker.C:
			blockNumber++
			blockCtx := types.BlockContext{BlockNumber: blockNumber, Timestamp: uint64(time.Now().Unix())}
			artifact, err := driver.StartPropose(ctx, blockNumber, blockCtx)
			if err != nil {
				log.Error("propose failed", "blockNumber", blockNumber, "err", err)
				continue
			}
			log.Info("block proposed", "blockNumber", blockNumber, "executed", len(artifact.ExecutedTxs), "aborted", artifact.Aborted)
		}
	}
}
