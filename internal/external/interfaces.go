// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package external declares the contracts the core depends on but does not
// own (spec.md §6): the gateway, the p2p propagator, the class manager,
// the executor, the committer and the consensus bridge. Every core
// component references a collaborator only through one of these typed
// interfaces, never a concrete struct, the way the teacher's consensus
// engine talks to the VM, mempool and network only through its `Engine`/
// `VM`/`AppSender` interfaces.
package external

import (
	"context"

	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// ClassManager resolves Sierra and compiled (casm) contract classes. All
// three methods are idempotent (§6): calling add_class twice with the same
// program returns the same class_hash both times.
type ClassManager interface {
	AddClass(ctx context.Context, sierra []byte) (classHash, executableClassHash types.ClassHash, err error)
	GetSierra(ctx context.Context, classHash types.ClassHash) ([]byte, error)
	GetExecutable(ctx context.Context, classHash types.ClassHash) ([]byte, error)
}

// Executor runs one transaction against a pre-state and must be
// deterministic given (tx, preState, blockContext, versionedConstants)
// (§6).
type Executor interface {
	Execute(ctx context.Context, tx types.AccountTransaction, blockContext types.BlockContext) (types.ExecutionOutcome, error)
}

// Committer applies a state diff to the persisted state and returns the
// resulting trie roots; a pure function of its inputs and the storage
// layer it mutates (§6).
type Committer interface {
	Commit(ctx context.Context, diff types.StateDiffIncrement, prevRoots types.NewRoots) (types.NewRoots, error)
}

// StateReader exposes read-only account state to the components that need
// it (mempool eligibility, builder pre-state), kept separate from
// Committer so that C8's read and write paths can be backed by
// independent implementations (e.g. a cached reader in front of a
// write-through committer).
type StateReader interface {
	CommittedNonce(ctx context.Context, account types.Address) (types.Nonce, error)
}

// GatewayResult is returned by the gateway on successful admission (§6).
type GatewayResult struct {
	TxHash          types.TxHash
	ContractAddress *types.Address   // set only for deploy-account.
	ClassHash       *types.ClassHash // set only for declare.
}

// Propagator sends already-admitted transactions onward over the p2p
// network and reports misbehaving peers (§6).
type Propagator interface {
	PropagateBatch(ctx context.Context, hashes []types.TxHash) error
	ReportPeer(ctx context.Context, peerID string, reason error) error
}

// ConsensusSignal is one message consensus may send to the proposal
// driver (§6, §4.7).
type ConsensusSignal uint8

const (
	SignalStartPropose ConsensusSignal = iota
	SignalStartValidate
	SignalAbort
	SignalFinalize
)

// BlockArtifact is what the proposal driver returns to consensus once a
// build concludes, successfully or otherwise.
type BlockArtifact struct {
	ExecutedTxs []types.ExecutedTransaction
	NewRoots    types.NewRoots
	Aborted     bool
}
