// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package l1handler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

func th(b byte) types.TxHash {
	var h types.TxHash
	h[31] = b
	return h
}

func fullPayload(b byte) types.L1HandlerPayload {
	return types.NewFullL1HandlerPayload(th(b), types.Address{}, types.Nonce(b), []byte{b})
}

func TestManager_AddAndGetTxs(t *testing.T) {
	r := require.New(t)
	m := New()

	r.True(m.AddTx(fullPayload(1)))
	r.True(m.AddTx(fullPayload(2)))

	got := m.GetTxs(10)
	r.Len(got, 2)
	r.Equal(th(1), got[0].TxHash)
	r.Equal(th(2), got[1].TxHash)
}

func TestManager_GetTxsDoesNotDoubleStageWithinBlock(t *testing.T) {
	r := require.New(t)
	m := New()
	r.True(m.AddTx(fullPayload(1)))

	first := m.GetTxs(10)
	r.Len(first, 1)

	// Same block attempt: the transaction is already staged, so a second
	// get_txs call must not return it again.
	second := m.GetTxs(10)
	r.Len(second, 0)
}

func TestManager_StartBlockUnstages(t *testing.T) {
	r := require.New(t)
	m := New()
	r.True(m.AddTx(fullPayload(1)))

	r.Len(m.GetTxs(10), 1)
	m.StartBlock()
	r.Len(m.GetTxs(10), 1)
}

func TestManager_ValidateTxUnknownHash(t *testing.T) {
	r := require.New(t)
	m := New()
	r.Equal(ValidationInvalidConsumedOnL1OrUnknown, m.ValidateTx(th(1)))
}

func TestManager_ValidateTxStagesOnce(t *testing.T) {
	r := require.New(t)
	m := New()
	r.True(m.AddTx(fullPayload(1)))

	r.Equal(ValidationValidated, m.ValidateTx(th(1)))
	r.Equal(ValidationInvalidAlreadyIncludedInProposedBlock, m.ValidateTx(th(1)))
}

func TestManager_CommitBeforeAddFillsInBlank(t *testing.T) {
	r := require.New(t)
	m := New()

	m.CommitTxs([]types.TxHash{th(1)}, nil)
	r.True(m.IsCommitted(th(1)))

	// The full payload arrives after the commit notification: add_tx must
	// fill in the blank rather than create a duplicate record, and report
	// that this was not a fresh insertion.
	r.False(m.AddTx(fullPayload(1)))
	r.True(m.IsCommitted(th(1)))
}

func TestManager_CommitTwicePanics(t *testing.T) {
	r := require.New(t)
	m := New()
	m.CommitTxs([]types.TxHash{th(1)}, nil)
	r.Panics(func() {
		m.CommitTxs([]types.TxHash{th(1)}, nil)
	})
}

func TestManager_RejectUnknownPanics(t *testing.T) {
	r := require.New(t)
	m := New()
	r.Panics(func() {
		m.CommitTxs(nil, []types.TxHash{th(1)})
	})
}

func TestManager_RejectTwicePanics(t *testing.T) {
	r := require.New(t)
	m := New()
	m.AddTx(fullPayload(1))
	m.CommitTxs(nil, []types.TxHash{th(1)})
	r.Panics(func() {
		m.CommitTxs(nil, []types.TxHash{th(1)})
	})
}

func TestManager_ValidateAfterCommitIsInvalid(t *testing.T) {
	r := require.New(t)
	m := New()
	m.CommitTxs([]types.TxHash{th(1)}, nil)
	r.Equal(ValidationInvalidAlreadyIncludedOnL2, m.ValidateTx(th(1)))
}

func TestManager_CommittedTxsExcludedFromGetTxs(t *testing.T) {
	r := require.New(t)
	m := New()
	r.True(m.AddTx(fullPayload(1)))
	m.CommitTxs([]types.TxHash{th(1)}, nil)

	r.Len(m.GetTxs(10), 0)
}

func TestManager_Snapshot(t *testing.T) {
	r := require.New(t)
	m := New()
	r.True(m.AddTx(fullPayload(1)))
	r.True(m.AddTx(fullPayload(2)))
	m.CommitTxs([]types.TxHash{th(1)}, nil)

	snap := m.Snapshot()
	r.ElementsMatch([]types.TxHash{th(1)}, snap.Committed)
	r.ElementsMatch([]types.TxHash{th(2)}, snap.Uncommitted)
}
