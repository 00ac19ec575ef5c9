// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/luxfi/log"

	"github.com/starkware-libs/sequencer-sub007/internal/clock"
	"github.com/starkware-libs/sequencer-sub007/internal/metrics"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// NewBatchEvent is broadcast whenever the engine accepts a batch of
// transactions for p2p propagation (§4.4). Subscribers (the gateway's
// propagator) drain it the way the teacher's miner drains txFeed.
type NewBatchEvent struct {
	Hashes []types.TxHash
}

// Config bounds the engine's admission and eviction behavior. Every field
// is a static, restart-required setting per SPEC_FULL.md §10.3.
type Config struct {
	// MaxPoolSizeBytes caps the aggregate size_in_bytes the pool will hold.
	MaxPoolSizeBytes uint64
	// TxTTL is the maximum time a transaction may sit unpropagated/uncommitted
	// before the eviction loop drops it (§4.4).
	TxTTL time.Duration
	// EvictionInterval is how often the periodic eviction task runs.
	EvictionInterval time.Duration
	// PropagationBatchSize is the max number of hashes per NewBatchEvent.
	PropagationBatchSize int
}

// DefaultConfig mirrors the teacher's txpool defaults in spirit: generous
// headroom, periodic housekeeping rather than per-tx sweeps.
func DefaultConfig() Config {
	return Config{
		MaxPoolSizeBytes:     256 << 20, // 256 MiB
		TxTTL:                3 * time.Hour,
		EvictionInterval:     time.Minute,
		PropagationBatchSize: 256,
	}
}

// AccountNonces is the external view of committed nonces the engine
// consults to decide eligibility (§4.2); normally backed by the state
// reader, injected here to keep the engine independent of storage.
type AccountNonces interface {
	CommittedNonce(account types.Address) types.Nonce
}

// Engine is the mempool engine (C3): it wraps Pool with admission control,
// the get_txs selection policy, commit-block bookkeeping and a periodic
// eviction task, the way the teacher's TxPool wraps its subpools with
// promotion/demotion and a journal-flush loop.
type Engine struct {
	cfg   Config
	pool  *Pool
	clock clock.Clock
	state AccountNonces

	batchFeed event.Feed
	scope     event.SubscriptionScope

	shutdownChan chan struct{}
	wg           sync.WaitGroup

	pending     chan types.TxHash // hashes accepted since the last flush, awaiting propagation.
	pendingLock sync.Mutex
}

// NewEngine constructs an engine over a fresh pool.
func NewEngine(cfg Config, c clock.Clock, state AccountNonces) *Engine {
	return &Engine{
		cfg:          cfg,
		pool:         New(c),
		clock:        c,
		state:        state,
		shutdownChan: make(chan struct{}),
		pending:      make(chan types.TxHash, 4096),
	}
}

// Start launches the periodic eviction task. Mirrors the teacher's
// TxPool.loop background goroutine pattern: one goroutine, select on a
// ticker and shutdownChan.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.evictionLoop()
}

// Stop terminates the eviction task and unsubscribes all feed listeners.
func (e *Engine) Stop() {
	close(e.shutdownChan)
	e.wg.Wait()
	e.scope.Close()
}

func (e *Engine) evictionLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.EvictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.shutdownChan:
			return
		case <-ticker.C:
			cutoff := e.clock.Now().Add(-e.cfg.TxTTL)
			evicted := e.pool.RemoveTxsOlderThan(cutoff)
			if len(evicted) > 0 {
				log.Info("mempool evicted stale transactions", "count", len(evicted))
			}
		}
	}
}

// SubscribeNewBatch registers ch to receive propagation batches.
func (e *Engine) SubscribeNewBatch(ch chan<- NewBatchEvent) event.Subscription {
	return e.scope.Track(e.batchFeed.Subscribe(ch))
}

// AddTx validates and inserts tx, the mempool's single ingress point
// (§4.2). Checks run in this order: committed nonce already at the maximum
// (ErrNonceTooLarge), stale nonce, duplicate hash, pool-size admission, and
// finally the duplicate-nonce check inside Pool.Insert.
func (e *Engine) AddTx(tx types.InternalRpcTransaction) error {
	start := e.clock.Now()
	labels := metrics.Labels{Kind: tx.Tx.Kind.String(), Source: "gateway"}
	metrics.TransactionsReceived(labels)

	committed := e.state.CommittedNonce(tx.Address())
	if committed == math.MaxUint64 {
		// The account's committed nonce is already at the representable
		// maximum: committed+1 would overflow, so no further transaction
		// from this account can ever be eligible again (§4.2/§4.3).
		metrics.TransactionsFailed(labels)
		return ErrNonceTooLarge
	}
	if tx.Nonce() < committed+1 {
		metrics.TransactionsFailed(labels)
		return ErrNonceTooOld
	}

	if e.pool.Contains(tx.TxHash) {
		metrics.TransactionsFailed(labels)
		return ErrDuplicateHash
	}

	if e.pool.SizeInBytes()+tx.TotalBytes() > e.cfg.MaxPoolSizeBytes {
		e.evictOldestLocked()
		if e.pool.SizeInBytes()+tx.TotalBytes() > e.cfg.MaxPoolSizeBytes {
			metrics.TransactionsFailed(labels)
			return ErrPoolFull
		}
	}

	if err := e.pool.Insert(tx); err != nil {
		metrics.TransactionsFailed(labels)
		return err
	}

	metrics.TransactionsSentToMempool(labels)
	metrics.AddTxLatency(labels, e.clock.Now().Sub(start).Nanoseconds())
	metrics.QueueDepth(labels, int64(e.pool.Len()))

	e.enqueuePropagation(tx.TxHash)
	return nil
}

// evictOldestLocked drops the single oldest staged transaction to make
// room for an incoming one. Called only from AddTx under size pressure.
func (e *Engine) evictOldestLocked() {
	hashes := e.pool.ChronologicalTxsHashes()
	if len(hashes) == 0 {
		return
	}
	e.pool.Remove(hashes[0])
}

func (e *Engine) enqueuePropagation(hash types.TxHash) {
	select {
	case e.pending <- hash:
	default:
		// Propagation channel saturated: the batch will simply be smaller
		// next flush; no transaction is dropped from the pool itself.
	}
}

// FlushPropagationBatch drains up to PropagationBatchSize pending hashes
// and broadcasts them as one NewBatchEvent. Callers (the gateway's
// propagation loop) invoke this on their own cadence (§4.4).
func (e *Engine) FlushPropagationBatch() {
	e.pendingLock.Lock()
	defer e.pendingLock.Unlock()

	var batch []types.TxHash
	for len(batch) < e.cfg.PropagationBatchSize {
		select {
		case h := <-e.pending:
			batch = append(batch, h)
		default:
			goto drained
		}
	}
drained:
	if len(batch) == 0 {
		return
	}
	e.batchFeed.Send(NewBatchEvent{Hashes: batch})
}

// eligibleCandidate is one account's next-eligible transaction, carried
// alongside its tip for the get_txs sort.
type eligibleCandidate struct {
	ref       types.TransactionReference
	submitted time.Time
}

// GetTxs selects up to n transactions for the block builder to execute
// (§4.6). Candidates are exactly the next-eligible transaction of every
// account that has one staged; ties are broken first by descending tip,
// then by ascending submission time, then by tx hash, matching the
// teacher's miner's descending-gas-price transaction heap with a FIFO
// tie-break. Selecting one candidate makes that account's following nonce
// immediately eligible, so the scan repeats until n is reached or no
// account has an eligible transaction left.
func (e *Engine) GetTxs(ctx context.Context, n int) []types.TxHash {
	var result []types.TxHash
	seen := make(map[types.Address]types.Nonce) // account -> highest nonce already selected this call.

	for len(result) < n {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		candidates := e.collectCandidates(seen)
		if len(candidates) == 0 {
			break
		}
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.ref.Tip != b.ref.Tip {
				return a.ref.Tip > b.ref.Tip
			}
			if !a.submitted.Equal(b.submitted) {
				return a.submitted.Before(b.submitted)
			}
			return a.ref.TxHash.Less(b.ref.TxHash)
		})

		best := candidates[0]
		result = append(result, best.ref.TxHash)
		seen[best.ref.Address] = best.ref.Nonce
	}
	return result
}

func (e *Engine) collectCandidates(seen map[types.Address]types.Nonce) []eligibleCandidate {
	e.pool.mu.Lock()
	accounts := make([]types.Address, 0, len(e.pool.byAccount))
	for a := range e.pool.byAccount {
		accounts = append(accounts, a)
	}
	e.pool.mu.Unlock()

	var out []eligibleCandidate
	for _, addr := range accounts {
		base := e.state.CommittedNonce(addr)
		if advanced, ok := seen[addr]; ok {
			base = advanced
		}
		ref, err := e.pool.GetNextEligibleTx(addr, base)
		if err != nil {
			// ErrNonceOverflow: this account's committed nonce is already
			// at the representable maximum, so it can never have an
			// eligible next transaction again; treat it the same as
			// ErrNotFound for selection purposes.
			continue
		}
		submitted, ok := e.pool.GetSubmissionTime(ref.TxHash)
		if !ok {
			continue // concurrently removed between collection and lookup; simply skip this round.
		}
		out = append(out, eligibleCandidate{ref: ref, submitted: submitted})
	}
	return out
}

// CommitBlock applies a just-committed block's nonce advances, evicting
// every transaction the chain has superseded (§4.3). It never fails: an
// unknown account is simply a no-op, since the pool may hold nothing for it.
func (e *Engine) CommitBlock(newNonces map[types.Address]types.Nonce) {
	for account, nonce := range newNonces {
		e.pool.RemoveUpToNonceWhenCommitted(account, nonce)
	}
}

// Pool exposes the underlying pool for read-only inspection (metrics,
// admin endpoints); mutation must go through AddTx/CommitBlock.
func (e *Engine) Pool() *Pool { return e.pool }

// Get looks up a pooled transaction by hash, satisfying builder.MempoolSource
// so C6 can pull a hash from GetTxs and then fetch its body.
func (e *Engine) Get(hash types.TxHash) (types.InternalRpcTransaction, bool) {
	return e.pool.Get(hash)
}
