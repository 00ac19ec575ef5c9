// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

type fakeMempool struct {
	mu    sync.Mutex
	queue []types.TxHash
	bodies map[types.TxHash]types.InternalRpcTransaction
}

func newFakeMempool(n int, stepsEach uint64) *fakeMempool {
	fm := &fakeMempool{bodies: make(map[types.TxHash]types.InternalRpcTransaction)}
	for i := 0; i < n; i++ {
		var h types.TxHash
		h[31] = byte(i + 1)
		fm.queue = append(fm.queue, h)
		fm.bodies[h] = types.InternalRpcTransaction{TxHash: h, Tx: types.RpcTransaction{Kind: types.TxKindInvoke}}
	}
	_ = stepsEach
	return fm
}

func (f *fakeMempool) GetTxs(ctx context.Context, n int) []types.TxHash {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.queue) {
		n = len(f.queue)
	}
	out := f.queue[:n]
	f.queue = f.queue[n:]
	return out
}

func (f *fakeMempool) Get(hash types.TxHash) (types.InternalRpcTransaction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.bodies[hash]
	return tx, ok
}

type noL1 struct{}

func (noL1) GetTxs(n int) []types.L1HandlerPayload { return nil }

type passthroughConverter struct{}

func (passthroughConverter) Conv2(ctx context.Context, internal types.InternalRpcTransaction) (types.AccountTransaction, error) {
	return types.AccountTransaction{Internal: internal}, nil
}

func (passthroughConverter) ConvL1Handler(payload types.L1HandlerPayload) types.AccountTransaction {
	return types.AccountTransaction{}
}

type fixedStepsExecutor struct {
	steps uint64
	delay time.Duration
}

func (e fixedStepsExecutor) Execute(ctx context.Context, tx types.AccountTransaction, blockCtx types.BlockContext) (types.ExecutionOutcome, error) {
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	var delta types.BouncerWeights
	delta[types.SlotCairoSteps] = e.steps
	return types.ExecutionOutcome{Kind: types.OutcomeSuccess, BouncerDelta: delta}, nil
}

func baseConfig() Config {
	return Config{
		NConcurrentTxs:             10,
		TxPollingInterval:          time.Millisecond,
		ProposerIdleDetectionDelay: 20 * time.Millisecond,
		MaxL1HandlerTxsPerBlockProposal: 0,
		ProposeL1TxsEvery:          1,
	}
}

// TestBuilder_BouncerCap exercises scenario S5: 10 txs at 150 steps each
// against a 1000-step limit commit exactly 6 before terminating.
func TestBuilder_BouncerCap(t *testing.T) {
	r := require.New(t)
	cfg := baseConfig()
	cfg.BouncerLimits[types.SlotCairoSteps] = 1000

	mp := newFakeMempool(10, 150)
	b := New(cfg, mp, noL1{}, passthroughConverter{}, fixedStepsExecutor{steps: 150})

	out, err := b.BuildPropose(context.Background(), 1, types.BlockContext{}, nil)
	r.NoError(err)
	r.Len(out.Executed, 6)
	r.False(out.Aborted)
}

// TestBuilder_Abort exercises scenario S6: aborting mid-build returns
// Aborted and stops executing further transactions.
func TestBuilder_Abort(t *testing.T) {
	r := require.New(t)
	cfg := baseConfig()
	cfg.BouncerLimits[types.SlotCairoSteps] = 1_000_000
	cfg.NConcurrentTxs = 1

	mp := newFakeMempool(10, 1)
	abort := make(chan struct{})
	b := New(cfg, mp, noL1{}, passthroughConverter{}, fixedStepsExecutor{steps: 1, delay: 5 * time.Millisecond})

	go func() {
		time.Sleep(8 * time.Millisecond)
		close(abort)
	}()

	out, err := b.BuildPropose(context.Background(), 1, types.BlockContext{}, abort)
	r.NoError(err)
	r.True(out.Aborted)
	r.Less(len(out.Executed), 10)
}

func TestBuilder_IdleTermination(t *testing.T) {
	r := require.New(t)
	cfg := baseConfig()
	cfg.BouncerLimits[types.SlotCairoSteps] = 1_000_000
	cfg.ProposerIdleDetectionDelay = 5 * time.Millisecond

	mp := newFakeMempool(0, 0)
	b := New(cfg, mp, noL1{}, passthroughConverter{}, fixedStepsExecutor{steps: 1})

	out, err := b.BuildPropose(context.Background(), 1, types.BlockContext{}, nil)
	r.NoError(err)
	r.Empty(out.Executed)
	r.False(out.Aborted)
}

// trickleMempool yields one new tx every interval, up to maxTxs, and
// nothing in between: it simulates a steady trickle of transactions each
// arriving just under the idle-detection delay apart.
type trickleMempool struct {
	mu       sync.Mutex
	interval time.Duration
	maxTxs   int
	last     time.Time
	served   int
}

func (m *trickleMempool) GetTxs(ctx context.Context, n int) []types.TxHash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.served >= m.maxTxs || time.Since(m.last) < m.interval {
		return nil
	}
	m.last = time.Now()
	m.served++
	var h types.TxHash
	h[31] = byte(m.served)
	return []types.TxHash{h}
}

func (m *trickleMempool) Get(hash types.TxHash) (types.InternalRpcTransaction, bool) {
	return types.InternalRpcTransaction{TxHash: hash, Tx: types.RpcTransaction{Kind: types.TxKindInvoke}}, true
}

// TestBuilder_IdleTerminationDespiteSteadyTrickle is the regression test
// for §4.6 invariant 3: idle termination is measured from when the block
// build started, so a steady trickle of transactions (each arriving just
// under proposer_idle_detection_delay apart) must not keep the block
// open forever.
func TestBuilder_IdleTerminationDespiteSteadyTrickle(t *testing.T) {
	r := require.New(t)
	cfg := baseConfig()
	cfg.BouncerLimits[types.SlotCairoSteps] = 1_000_000
	cfg.ProposerIdleDetectionDelay = 30 * time.Millisecond
	cfg.TxPollingInterval = 2 * time.Millisecond

	mp := &trickleMempool{interval: 25 * time.Millisecond, maxTxs: 20, last: time.Now().Add(-25 * time.Millisecond)}
	b := New(cfg, mp, noL1{}, passthroughConverter{}, fixedStepsExecutor{steps: 1})

	started := time.Now()
	out, err := b.BuildPropose(context.Background(), 1, types.BlockContext{}, nil)
	elapsed := time.Since(started)

	r.NoError(err)
	r.False(out.Aborted)
	r.Less(len(out.Executed), 20, "idle termination must fire even though transactions keep trickling in")
	r.Less(elapsed, 200*time.Millisecond, "idle timeout must be bounded by time since block-build start, not reset by each trickled tx")
}

func TestBuilder_PublishesPreConfirmedStream(t *testing.T) {
	r := require.New(t)
	cfg := baseConfig()
	cfg.BouncerLimits[types.SlotCairoSteps] = 1_000_000
	cfg.PreConfirmedBufferSize = 10

	mp := newFakeMempool(3, 1)
	b := New(cfg, mp, noL1{}, passthroughConverter{}, fixedStepsExecutor{steps: 1})

	out, err := b.BuildPropose(context.Background(), 1, types.BlockContext{}, nil)
	r.NoError(err)
	r.Len(out.Executed, 3)

	var got []types.TxHash
	for i := 0; i < 3; i++ {
		select {
		case rec := <-b.PreConfirmedStream():
			got = append(got, rec.TxHash)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for pre-confirmed record")
		}
	}

	want := make([]types.TxHash, len(out.Executed))
	for i, e := range out.Executed {
		want[i] = e.TxHash
	}
	r.ElementsMatch(want, got)
}

func TestBuilder_ValidateModeStream(t *testing.T) {
	r := require.New(t)
	cfg := baseConfig()
	cfg.BouncerLimits[types.SlotCairoSteps] = 1_000_000

	b := New(cfg, newFakeMempool(0, 0), noL1{}, passthroughConverter{}, fixedStepsExecutor{steps: 1})

	in := make(chan types.AccountTransaction, 2)
	in <- types.AccountTransaction{Internal: types.InternalRpcTransaction{TxHash: types.TxHash{1}}}
	in <- types.AccountTransaction{Internal: types.InternalRpcTransaction{TxHash: types.TxHash{2}}}
	close(in)

	out, err := b.BuildValidate(context.Background(), in, nil)
	r.NoError(err)
	r.Len(out.Executed, 2)
}
