// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/starkware-libs/sequencer-sub007/internal/clock"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// TestMain verifies that Stop() always leaves the eviction loop's
// goroutine cleaned up, the same hygiene the teacher expects of
// TxPool.Close().
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeState is a trivial AccountNonces backed by a plain map, enough to
// exercise eligibility without a real state reader.
type fakeState struct {
	nonces map[types.Address]types.Nonce
}

func newFakeState() *fakeState { return &fakeState{nonces: make(map[types.Address]types.Nonce)} }

func (s *fakeState) CommittedNonce(a types.Address) types.Nonce { return s.nonces[a] }

func TestEngine_AddTxRejectsStaleNonce(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	state.nonces[addr(1)] = 5

	e := NewEngine(DefaultConfig(), clock.NewVirtual(time.Unix(0, 0)), state)
	err := e.AddTx(mkTx(1, 5, 1, 0)) // committed nonce 5 means next eligible is 6.
	r.ErrorIs(err, ErrNonceTooOld)
}

// TestEngine_AddTxRejectsNonceTooLarge is the regression test for §4.3's
// fourth mandatory AddTx error outcome: an account whose committed nonce
// is already at the representable maximum can never have another
// eligible transaction, since committed+1 would overflow.
func TestEngine_AddTxRejectsNonceTooLarge(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	state.nonces[addr(1)] = math.MaxUint64

	e := NewEngine(DefaultConfig(), clock.NewVirtual(time.Unix(0, 0)), state)
	err := e.AddTx(mkTx(1, math.MaxUint64, 1, 0))
	r.ErrorIs(err, ErrNonceTooLarge)
	r.Equal(0, e.Pool().Len())
}

func TestEngine_AddTxAcceptsEligible(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	e := NewEngine(DefaultConfig(), clock.NewVirtual(time.Unix(0, 0)), state)

	r.NoError(e.AddTx(mkTx(1, 1, 1, 0))) // committed nonce 0 means next eligible is 1.
	r.Equal(1, e.Pool().Len())
}

func TestEngine_GetTxsPrefersHigherTip(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	c := clock.NewVirtual(time.Unix(0, 0))
	e := NewEngine(DefaultConfig(), c, state)

	r.NoError(e.AddTx(mkTx(1, 1, 1, 5)))  // low tip
	r.NoError(e.AddTx(mkTx(2, 1, 2, 50))) // high tip

	got := e.GetTxs(context.Background(), 1)
	r.Equal([]types.TxHash{hash(2)}, got)
}

func TestEngine_GetTxsAdvancesWithinAccount(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	c := clock.NewVirtual(time.Unix(0, 0))
	e := NewEngine(DefaultConfig(), c, state)

	r.NoError(e.AddTx(mkTx(1, 1, 1, 0)))
	r.NoError(e.AddTx(mkTx(1, 2, 2, 0)))

	got := e.GetTxs(context.Background(), 2)
	r.Equal([]types.TxHash{hash(1), hash(2)}, got)
}

func TestEngine_CommitBlockEvictsStale(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	c := clock.NewVirtual(time.Unix(0, 0))
	e := NewEngine(DefaultConfig(), c, state)

	r.NoError(e.AddTx(mkTx(1, 1, 1, 0)))
	r.NoError(e.AddTx(mkTx(1, 2, 2, 0)))

	e.CommitBlock(map[types.Address]types.Nonce{addr(1): 2})
	r.Equal(1, e.Pool().Len())
	_, ok := e.Pool().Get(hash(2))
	r.True(ok)
}

func TestEngine_StartStopEvictionLoop(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	cfg := DefaultConfig()
	cfg.EvictionInterval = time.Millisecond
	cfg.TxTTL = 0
	c := clock.NewVirtual(time.Unix(0, 0))
	e := NewEngine(cfg, c, state)

	r.NoError(e.AddTx(mkTx(1, 1, 1, 0)))
	c.Advance(time.Second) // the tx is now strictly older than now - TxTTL.
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return e.Pool().Len() == 0
	}, time.Second, time.Millisecond)
}

func TestEngine_FlushPropagationBatch(t *testing.T) {
	r := require.New(t)
	state := newFakeState()
	e := NewEngine(DefaultConfig(), clock.NewVirtual(time.Unix(0, 0)), state)

	ch := make(chan NewBatchEvent, 1)
	sub := e.SubscribeNewBatch(ch)
	defer sub.Unsubscribe()

	r.NoError(e.AddTx(mkTx(1, 1, 1, 0)))
	e.FlushPropagationBatch()

	select {
	case ev := <-ch:
		r.Equal([]types.TxHash{hash(1)}, ev.Hashes)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for propagation batch")
	}
}
