// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starkware-libs/sequencer-sub007/internal/clock"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[31] = b
	return a
}

func hash(b byte) types.TxHash {
	var h types.TxHash
	h[31] = b
	h[30] = b
	return h
}

func mkTx(sender byte, nonce types.Nonce, txHash byte, tip types.Tip) types.InternalRpcTransaction {
	return types.InternalRpcTransaction{
		Tx: types.RpcTransaction{
			Kind:   types.TxKindInvoke,
			Sender: addr(sender),
			Nonce:  nonce,
			Tip:    tip,
		},
		TxHash: hash(txHash),
	}
}

func TestPool_InsertAndGet(t *testing.T) {
	r := require.New(t)
	p := New(clock.NewVirtual(time.Unix(0, 0)))

	tx := mkTx(1, 0, 1, 0)
	r.NoError(p.Insert(tx))
	r.Equal(1, p.Len())

	got, ok := p.Get(tx.TxHash)
	r.True(ok)
	r.Equal(tx, got)
}

func TestPool_DuplicateHash(t *testing.T) {
	r := require.New(t)
	p := New(clock.NewVirtual(time.Unix(0, 0)))

	tx := mkTx(1, 0, 1, 0)
	r.NoError(p.Insert(tx))
	r.ErrorIs(p.Insert(tx), ErrDuplicateHash)
}

func TestPool_DuplicateNonce(t *testing.T) {
	r := require.New(t)
	p := New(clock.NewVirtual(time.Unix(0, 0)))

	r.NoError(p.Insert(mkTx(1, 0, 1, 0)))
	r.ErrorIs(p.Insert(mkTx(1, 0, 2, 0)), ErrDuplicateNonce)
}

func TestPool_RemoveUpToNonceWhenCommitted(t *testing.T) {
	r := require.New(t)
	p := New(clock.NewVirtual(time.Unix(0, 0)))

	r.NoError(p.Insert(mkTx(1, 0, 1, 0)))
	r.NoError(p.Insert(mkTx(1, 1, 2, 0)))
	r.NoError(p.Insert(mkTx(1, 2, 3, 0)))

	evicted := p.RemoveUpToNonceWhenCommitted(addr(1), 2)
	r.Len(evicted, 2)
	r.Equal(1, p.Len())

	refs := p.AccountTxsSortedByNonce(addr(1))
	r.Len(refs, 1)
	r.Equal(types.Nonce(2), refs[0].Nonce)
}

func TestPool_RemoveTxsOlderThan(t *testing.T) {
	r := require.New(t)
	c := clock.NewVirtual(time.Unix(0, 0))
	p := New(c)

	r.NoError(p.Insert(mkTx(1, 0, 1, 0)))
	c.Advance(time.Hour)
	r.NoError(p.Insert(mkTx(2, 0, 2, 0)))

	evicted := p.RemoveTxsOlderThan(time.Unix(0, 0).Add(time.Minute))
	r.Equal([]types.TxHash{hash(1)}, evicted)
	r.Equal(1, p.Len())
}

func TestPool_GetNextEligibleTx(t *testing.T) {
	r := require.New(t)
	p := New(clock.NewVirtual(time.Unix(0, 0)))

	r.NoError(p.Insert(mkTx(1, 5, 1, 0)))

	_, err := p.GetNextEligibleTx(addr(1), 3) // next eligible would be nonce 4, not staged.
	r.ErrorIs(err, ErrNotFound)

	ref, err := p.GetNextEligibleTx(addr(1), 4) // next eligible is nonce 5, staged.
	r.NoError(err)
	r.Equal(types.Nonce(5), ref.Nonce)

	_, err = p.GetNextEligibleTx(addr(1), math.MaxUint64)
	r.ErrorIs(err, ErrNonceOverflow)
}

func TestPool_ChronologicalOrderTieBreaksByHash(t *testing.T) {
	r := require.New(t)
	c := clock.NewVirtual(time.Unix(0, 0))
	p := New(c)

	// Same instant, inserted out of hash order: the index must still sort
	// by hash when submission times tie (§3 invariant 3).
	r.NoError(p.Insert(mkTx(1, 0, 9, 0)))
	r.NoError(p.Insert(mkTx(2, 0, 1, 0)))

	hashes := p.ChronologicalTxsHashes()
	r.Equal([]types.TxHash{hash(1), hash(9)}, hashes)
}

func TestPool_SizeAccounting(t *testing.T) {
	r := require.New(t)
	p := New(clock.NewVirtual(time.Unix(0, 0)))

	tx := mkTx(1, 0, 1, 0)
	r.NoError(p.Insert(tx))
	r.Equal(tx.TotalBytes(), p.SizeInBytes())

	r.True(p.Remove(tx.TxHash))
	r.Equal(uint64(0), p.SizeInBytes())
}
