// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package builder implements the block builder (C6, spec.md §4.6): the
// single-block assembly loop that fetches transactions (by pull in
// propose mode, by stream in validate mode), drives the executor, tracks
// bouncer weights and decides when a block is done.
//
// The propose-mode pull loop is grounded on the teacher's
// plugin/evm/block_builder.go: a poll/sleep cycle gated on a minimum
// retry delay, generalized here from "wait for the mempool to have any
// work" to "pull up to n_concurrent_txs, sleep tx_polling_interval on an
// empty pull".
package builder

import (
	"context"
	"time"

	"github.com/luxfi/log"

	"github.com/starkware-libs/sequencer-sub007/internal/external"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// MempoolSource is the subset of the mempool engine the builder pulls
// regular transactions from in propose mode.
type MempoolSource interface {
	GetTxs(ctx context.Context, n int) []types.TxHash
	Get(hash types.TxHash) (types.InternalRpcTransaction, bool)
}

// L1Source is the subset of the L1-handler manager the builder pulls from.
type L1Source interface {
	GetTxs(n int) []types.L1HandlerPayload
}

// Converter reduces pool/manager transactions to their executable form.
type Converter interface {
	Conv2(ctx context.Context, internal types.InternalRpcTransaction) (types.AccountTransaction, error)
	ConvL1Handler(payload types.L1HandlerPayload) types.AccountTransaction
}

// Config bounds the builder's pull cadence, idle detection and L1-handler
// budget (§6 recognized options table).
type Config struct {
	NConcurrentTxs               int
	TxPollingInterval            time.Duration
	ProposerIdleDetectionDelay   time.Duration
	MaxL1HandlerTxsPerBlockProposal int
	ProposeL1TxsEvery            uint64
	BouncerLimits                types.BouncerWeights

	// PreConfirmedBufferSize bounds the per-tx pre-confirmed stream
	// (§4.6 invariant 6). Zero falls back to a small default.
	PreConfirmedBufferSize int
}

// Outcome is what a single block build produces (§4.6, §8 S6).
type Outcome struct {
	Executed []types.ExecutedTransaction
	Aborted  bool
}

// Builder drives one block's assembly loop.
type Builder struct {
	cfg       Config
	mempool   MempoolSource
	l1        L1Source
	converter Converter
	executor  external.Executor

	// preConfirmed is the bounded output channel for §4.6 invariant 6: a
	// structured record per finished transaction, fed to whatever writer
	// persists the pre-confirmed view of the in-progress block.
	preConfirmed chan types.PreConfirmedTx
}

// New constructs a Builder.
func New(cfg Config, mempool MempoolSource, l1 L1Source, converter Converter, executor external.Executor) *Builder {
	bufSize := cfg.PreConfirmedBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Builder{
		cfg:          cfg,
		mempool:      mempool,
		l1:           l1,
		converter:    converter,
		executor:     executor,
		preConfirmed: make(chan types.PreConfirmedTx, bufSize),
	}
}

// PreConfirmedStream returns the channel carrying one PreConfirmedTx per
// finished transaction across every build this Builder drives (§4.6
// invariant 6). Sends never block the builder: if the channel is full,
// the record is dropped and logged rather than stalling execution.
func (b *Builder) PreConfirmedStream() <-chan types.PreConfirmedTx {
	return b.preConfirmed
}

// BuildPropose runs the propose-mode pull loop for one block (§4.6). abort
// is a dedicated channel the proposal driver may close or signal on at
// any time to request immediate termination (§4.6 invariant 4, §9 "Async
// control flow").
func (b *Builder) BuildPropose(ctx context.Context, blockNumber uint64, blockCtx types.BlockContext, abort <-chan struct{}) (Outcome, error) {
	bouncer := NewBouncer(b.cfg.BouncerLimits)
	var out Outcome

	start := time.Now()
	skippedForBouncer := false
	l1Included := 0

	includeL1 := b.cfg.ProposeL1TxsEvery == 0 || blockNumber%b.cfg.ProposeL1TxsEvery == 0

	for {
		select {
		case <-abort:
			out.Aborted = true
			return out, nil
		case <-ctx.Done():
			out.Aborted = true
			return out, ctx.Err()
		default:
		}

		progressed := false

		if includeL1 && !skippedForBouncer && l1Included < b.cfg.MaxL1HandlerTxsPerBlockProposal {
			for _, payload := range b.l1.GetTxs(b.cfg.MaxL1HandlerTxsPerBlockProposal - l1Included) {
				tx := b.converter.ConvL1Handler(payload)
				executed, skip, err := b.executeOne(ctx, tx, bouncer, true)
				if err != nil {
					return out, err
				}
				if skip {
					skippedForBouncer = true
					break
				}
				out.Executed = append(out.Executed, executed)
				l1Included++
				progressed = true
			}
		}

		if !skippedForBouncer {
			hashes := b.mempool.GetTxs(ctx, b.cfg.NConcurrentTxs)
			for _, hash := range hashes {
				internal, ok := b.mempool.Get(hash)
				if !ok {
					continue // concurrently committed/evicted between selection and fetch.
				}
				tx, err := b.converter.Conv2(ctx, internal)
				if err != nil {
					return out, err
				}
				executed, skip, err := b.executeOne(ctx, tx, bouncer, false)
				if err != nil {
					return out, err
				}
				if skip {
					skippedForBouncer = true
					break
				}
				out.Executed = append(out.Executed, executed)
				progressed = true
			}
		}

		if progressed {
			continue
		}

		if skippedForBouncer {
			log.Info("block builder terminating: bouncer limit reached", "blockNumber", blockNumber, "executed", len(out.Executed))
			return out, nil
		}

		// Idle termination is measured from when this block's build
		// started, not from the last bit of progress: a steady trickle of
		// transactions arriving just under the idle-detection delay apart
		// must not keep the block open forever (§4.6 invariant 3).
		if time.Since(start) >= b.cfg.ProposerIdleDetectionDelay {
			log.Info("block builder terminating: idle", "blockNumber", blockNumber, "executed", len(out.Executed))
			return out, nil
		}

		select {
		case <-abort:
			out.Aborted = true
			return out, nil
		case <-ctx.Done():
			out.Aborted = true
			return out, ctx.Err()
		case <-time.After(b.cfg.TxPollingInterval):
		}
	}
}

// BuildValidate consumes a bounded stream of transactions supplied by the
// proposal driver until it closes in, or abort fires (§4.6 validate mode).
func (b *Builder) BuildValidate(ctx context.Context, in <-chan types.AccountTransaction, abort <-chan struct{}) (Outcome, error) {
	bouncer := NewBouncer(b.cfg.BouncerLimits)
	var out Outcome

	for {
		select {
		case <-abort:
			out.Aborted = true
			return out, nil
		case <-ctx.Done():
			out.Aborted = true
			return out, ctx.Err()
		case tx, ok := <-in:
			if !ok {
				return out, nil
			}
			isL1 := tx.Internal.Tx.Kind == types.TxKindL1Handler
			executed, skip, err := b.executeOne(ctx, tx, bouncer, isL1)
			if err != nil {
				return out, err
			}
			if skip {
				// A validating builder must not silently drop a
				// transaction the proposer claims fits: bouncer-overflow
				// in validate mode is not recoverable by the local
				// builder and is surfaced to the caller.
				return out, ErrBouncerOverflowInValidate
			}
			out.Executed = append(out.Executed, executed)
		}
	}
}

func (b *Builder) executeOne(ctx context.Context, tx types.AccountTransaction, bouncer *Bouncer, isL1Handler bool) (types.ExecutedTransaction, bool, error) {
	outcome, err := b.executor.Execute(ctx, tx, types.BlockContext{})
	if err != nil {
		return types.ExecutedTransaction{}, false, err
	}
	if !bouncer.TryAdd(outcome.BouncerDelta) {
		return types.ExecutedTransaction{}, true, nil
	}
	executed := types.ExecutedTransaction{
		TxHash:      tx.Internal.TxHash,
		Outcome:     outcome,
		IsL1Handler: isL1Handler,
	}
	b.publishPreConfirmed(executed)
	return executed, false, nil
}

// publishPreConfirmed pushes one record to the bounded pre-confirmed
// stream without ever blocking the caller: a full channel means no
// writer is keeping up, so the record is dropped and logged rather than
// stalling block construction (§4.6 invariant 6).
func (b *Builder) publishPreConfirmed(executed types.ExecutedTransaction) {
	record := types.PreConfirmedTx{
		TxHash:        executed.TxHash,
		StateDiff:     executed.Outcome.StateDiff,
		ReceiptDigest: executed.Outcome.ReceiptDigest,
	}
	select {
	case b.preConfirmed <- record:
	default:
		log.Warn("block builder: pre-confirmed stream full, dropping record", "txHash", executed.TxHash)
	}
}
