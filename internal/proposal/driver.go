// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package proposal implements the proposal driver (C7, spec.md §4.7): the
// bridge between consensus and the block builder. It holds the driver's
// Idle/Proposing/Validating state machine, dispatches consensus commands
// to the builder, and forwards Abort over a dedicated high-priority path.
package proposal

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/starkware-libs/sequencer-sub007/internal/builder"
	"github.com/starkware-libs/sequencer-sub007/internal/external"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// State is the driver's current phase (§4.7).
type State uint8

const (
	StateIdle State = iota
	StateProposing
	StateValidating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProposing:
		return "proposing"
	case StateValidating:
		return "validating"
	default:
		return "unknown"
	}
}

// Committer hands a finished build off to C8, receiving back the trie
// roots produced by the commit for inclusion in the returned artifact.
type Committer interface {
	CommitBlock(ctx context.Context, artifact external.BlockArtifact) (types.NewRoots, error)
}

// Driver bridges consensus and the block builder (§4.7).
type Driver struct {
	builder   *builder.Builder
	committer Committer

	mu    sync.Mutex
	state State

	abort chan struct{} // recreated per build; closing it signals Abort (§4.7 "Cancellation").
}

// New constructs an idle Driver.
func New(b *builder.Builder, committer Committer) *Driver {
	return &Driver{builder: b, committer: committer, state: StateIdle}
}

// State reports the driver's current phase.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// StartPropose transitions Idle -> Proposing and drives a propose-mode
// build to completion, handing a successful result to the committer
// (§4.7, §4.8).
func (d *Driver) StartPropose(ctx context.Context, blockNumber uint64, blockCtx types.BlockContext) (external.BlockArtifact, error) {
	abort, err := d.beginBuild(StateProposing)
	if err != nil {
		return external.BlockArtifact{}, err
	}
	defer d.endBuild()

	out, err := d.builder.BuildPropose(ctx, blockNumber, blockCtx, abort)
	if err != nil {
		return external.BlockArtifact{}, err
	}
	return d.finalize(ctx, out)
}

// StartValidate transitions Idle -> Validating and drives a validate-mode
// build, consuming txs from the consensus-provided stream (§4.7).
func (d *Driver) StartValidate(ctx context.Context, in <-chan types.AccountTransaction) (external.BlockArtifact, error) {
	abort, err := d.beginBuild(StateValidating)
	if err != nil {
		return external.BlockArtifact{}, err
	}
	defer d.endBuild()

	out, err := d.builder.BuildValidate(ctx, in, abort)
	if err != nil {
		return external.BlockArtifact{}, err
	}
	return d.finalize(ctx, out)
}

func (d *Driver) beginBuild(next State) (chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateIdle {
		return nil, fmt.Errorf("proposal: cannot start %s from state %s", next, d.state)
	}
	d.state = next
	d.abort = make(chan struct{})
	return d.abort, nil
}

func (d *Driver) endBuild() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateIdle
	d.abort = nil
}

// Abort signals the in-progress build, if any, to terminate immediately
// over the dedicated high-priority control channel (§4.7). It is a no-op
// if the driver is Idle.
func (d *Driver) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateIdle || d.abort == nil {
		return
	}
	select {
	case <-d.abort:
		// Already closed by a previous Abort call.
	default:
		close(d.abort)
	}
}

func (d *Driver) finalize(ctx context.Context, out builder.Outcome) (external.BlockArtifact, error) {
	artifact := external.BlockArtifact{ExecutedTxs: out.Executed, Aborted: out.Aborted}
	if out.Aborted {
		log.Info("proposal driver: build aborted", "executed", len(out.Executed))
		return artifact, nil
	}
	newRoots, err := d.committer.CommitBlock(ctx, artifact)
	if err != nil {
		return artifact, fmt.Errorf("proposal: commit failed: %w", err)
	}
	artifact.NewRoots = newRoots
	return artifact, nil
}
