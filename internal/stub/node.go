// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stub provides minimal in-memory stand-ins for the external
// collaborators (§6) — ClassManager, Executor, Committer, Propagator —
// so cmd/sequencer can start and serve traffic without a real execution
// layer, gateway or p2p stack wired in. Not for production use: every
// transaction here is accepted with a zero-cost, always-successful
// outcome.
package stub

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/luxfi/log"

	"github.com/starkware-libs/sequencer-sub007/internal/external"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// ClassManager is an in-memory stand-in for external.ClassManager: classes
// are content-addressed by sha256 of the Sierra program and never evicted.
type ClassManager struct {
	mu      sync.Mutex
	sierra  map[types.ClassHash][]byte
	compiled map[types.ClassHash][]byte
}

// NewClassManager constructs an empty stand-in class manager.
func NewClassManager() *ClassManager {
	return &ClassManager{sierra: make(map[types.ClassHash][]byte), compiled: make(map[types.ClassHash][]byte)}
}

func (c *ClassManager) AddClass(_ context.Context, sierra []byte) (types.ClassHash, types.ClassHash, error) {
	classHash := sha256.Sum256(sierra)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sierra[classHash] = sierra
	c.compiled[classHash] = sierra // stand-in: "compiled" form equals the input, no real Sierra->Casm pass.
	return classHash, classHash, nil
}

func (c *ClassManager) GetSierra(_ context.Context, classHash types.ClassHash) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sierra[classHash], nil
}

func (c *ClassManager) GetExecutable(_ context.Context, classHash types.ClassHash) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compiled[classHash], nil
}

var _ external.ClassManager = (*ClassManager)(nil)

// Executor always reports success with zero bouncer cost and a state diff
// whose only entry advances the sender's nonce to tx nonce + 1, letting
// the block builder's pull loop and bouncer accounting be exercised end to
// end without a real Cairo VM.
type Executor struct{}

func (Executor) Execute(_ context.Context, tx types.AccountTransaction, _ types.BlockContext) (types.ExecutionOutcome, error) {
	return types.ExecutionOutcome{
		Kind: types.OutcomeSuccess,
		StateDiff: types.StateDiffIncrement{
			NoncesUpdated: map[types.Address]types.Nonce{
				tx.Internal.Tx.Sender: tx.Internal.Tx.Nonce + 1,
			},
		},
	}, nil
}

var _ external.Executor = Executor{}

// Committer accepts every diff unconditionally and folds nonce updates
// into a running digest so successive calls produce distinct root pairs.
type Committer struct {
	mu   sync.Mutex
	seed uint64
}

func (c *Committer) Commit(_ context.Context, diff types.StateDiffIncrement, prevRoots types.NewRoots) (types.NewRoots, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seed += uint64(len(diff.NoncesUpdated)) + uint64(len(diff.StorageWrites)) + 1
	h := sha256.New()
	h.Write(prevRoots.ContractsTrieRoot[:])
	var seedBytes [8]byte
	for i := range seedBytes {
		seedBytes[i] = byte(c.seed >> (8 * i))
	}
	h.Write(seedBytes[:])
	sum := h.Sum(nil)
	var roots types.NewRoots
	copy(roots.ContractsTrieRoot[:], sum)
	copy(roots.ClassesTrieRoot[:], sum)
	return roots, nil
}

var _ external.Committer = (*Committer)(nil)

// Propagator logs what it would have broadcast instead of touching a
// real p2p network.
type Propagator struct{}

func (Propagator) PropagateBatch(_ context.Context, hashes []types.TxHash) error {
	log.Info("stub propagator: would broadcast batch", "count", len(hashes))
	return nil
}

func (Propagator) ReportPeer(_ context.Context, peerID string, reason error) error {
	log.Warn("stub propagator: would report peer", "peer", peerID, "reason", reason)
	return nil
}

var _ external.Propagator = Propagator{}

// ZeroNonceReader reports every account as never having transacted,
// satisfying the mempool engine's narrower AccountNonces view so a
// standalone run can accept traffic from fresh accounts without a real
// state backend.
type ZeroNonceReader struct{}

func (ZeroNonceReader) CommittedNonce(types.Address) types.Nonce { return 0 }

// ZeroStateReader is the external.StateReader counterpart of
// ZeroNonceReader, for collaborators that go through the ctx/error-aware
// interface instead of the mempool engine's narrower one.
type ZeroStateReader struct{}

func (ZeroStateReader) CommittedNonce(_ context.Context, _ types.Address) (types.Nonce, error) {
	return 0, nil
}

var _ external.StateReader = ZeroStateReader{}
