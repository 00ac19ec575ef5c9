// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package commit implements the state/commit interface (C8, spec.md
// §4.8): the thin adapter that turns a finished block artifact into a
// committer call plus the mempool and L1-handler manager notifications
// that follow from it, all-or-nothing.
package commit

import (
	"context"
	"fmt"
	"sync"

	"github.com/starkware-libs/sequencer-sub007/internal/external"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// MempoolNotifier is the subset of the mempool engine C8 drives after a
// commit (§4.8 step 3).
type MempoolNotifier interface {
	CommitBlock(newNonces map[types.Address]types.Nonce)
}

// L1Notifier is the subset of the L1-handler manager C8 drives after a
// commit (§4.8 step 4).
type L1Notifier interface {
	CommitTxs(committedTxs, rejectedTxs []types.TxHash)
}

// Adapter is the C8 state/commit interface.
type Adapter struct {
	committer external.Committer
	mempool   MempoolNotifier
	l1        L1Notifier

	mu        sync.Mutex
	prevRoots types.NewRoots
}

// New constructs an Adapter starting from genesisRoots.
func New(committer external.Committer, mempool MempoolNotifier, l1 L1Notifier, genesisRoots types.NewRoots) *Adapter {
	return &Adapter{committer: committer, mempool: mempool, l1: l1, prevRoots: genesisRoots}
}

// Roots returns the last successfully committed root pair.
func (a *Adapter) Roots() types.NewRoots {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prevRoots
}

// CommitBlock drives the four-step commit sequence (§4.8). If the
// committer call fails, none of the downstream notifications run and the
// sequencer's view of the roots is left unchanged — the block is
// discarded and the previous root pair stands.
func (a *Adapter) CommitBlock(ctx context.Context, artifact external.BlockArtifact) (types.NewRoots, error) {
	if artifact.Aborted {
		return types.NewRoots{}, fmt.Errorf("commit: refusing to commit an aborted block artifact")
	}

	a.mu.Lock()
	prevRoots := a.prevRoots
	a.mu.Unlock()

	diff := mergeStateDiffs(artifact.ExecutedTxs)

	newRoots, err := a.committer.Commit(ctx, diff, prevRoots)
	if err != nil {
		return types.NewRoots{}, fmt.Errorf("commit: committer rejected state diff: %w", err)
	}

	a.mempool.CommitBlock(diff.NoncesUpdated)

	committedL1, rejectedL1 := classifyL1Handlers(artifact.ExecutedTxs)
	a.l1.CommitTxs(committedL1, rejectedL1)

	a.mu.Lock()
	a.prevRoots = newRoots
	a.mu.Unlock()

	return newRoots, nil
}

// mergeStateDiffs flattens every executed transaction's per-tx state diff
// increment into one block-level diff, in feeding order (§4.6 "ordering
// guarantees"): later writes to the same key win, matching how a single
// sequential execution would have produced the same result.
func mergeStateDiffs(executed []types.ExecutedTransaction) types.StateDiffIncrement {
	diff := types.StateDiffIncrement{
		StorageWrites:     make(map[types.Address]map[types.Felt]types.Felt),
		NoncesUpdated:     make(map[types.Address]types.Nonce),
		ClassesDeclared:   make(map[types.ClassHash]types.CompiledClassHash),
		DeployedContracts: make(map[types.Address]types.ClassHash),
	}
	for _, tx := range executed {
		inc := tx.Outcome.StateDiff
		for addr, writes := range inc.StorageWrites {
			dst, ok := diff.StorageWrites[addr]
			if !ok {
				dst = make(map[types.Felt]types.Felt)
				diff.StorageWrites[addr] = dst
			}
			for k, v := range writes {
				dst[k] = v
			}
		}
		for addr, nonce := range inc.NoncesUpdated {
			diff.NoncesUpdated[addr] = nonce
		}
		for classHash, executableHash := range inc.ClassesDeclared {
			diff.ClassesDeclared[classHash] = executableHash
		}
		for addr, classHash := range inc.DeployedContracts {
			diff.DeployedContracts[addr] = classHash
		}
	}
	return diff
}

// classifyL1Handlers splits the executed L1-handler transactions into
// committed and rejected hash lists for C4 (§4.8 step 4). A reverted or
// successful L1 handler still consumed its slot and is committed (§4.6
// tie-breaks & edge cases); only a hard execution failure counts as
// rejected.
func classifyL1Handlers(executed []types.ExecutedTransaction) (committed, rejected []types.TxHash) {
	for _, tx := range executed {
		if !tx.IsL1Handler {
			continue
		}
		if tx.Outcome.Kind == types.OutcomeFailed {
			rejected = append(rejected, tx.TxHash)
		} else {
			committed = append(committed, tx.TxHash)
		}
	}
	return committed, rejected
}
