// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package l1handler implements the L1-handler transaction manager (C4,
// spec.md §4): a Pending/Committed/Rejected lifecycle over L1-to-L2
// messages, with per-block staging so a transaction can never be proposed
// or validated twice within the same block attempt.
//
// The state machine and its invariants are grounded directly on
// _examples/original_source/crates/apollo_l1_provider/src/transaction_manager.rs;
// the ordered-set/ordered-map structures that crate gets from Rust's
// indexmap are reimplemented here as a plain slice-backed index guarded by
// the manager's single mutex, matching the teacher's (core/txpool) style
// of one coarse lock over a handful of plain Go maps and slices rather
// than a lock-free or sharded structure.
package l1handler

import (
	"fmt"
	"sync"

	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// State is a transaction's position in the Pending/Committed/Rejected
// lifecycle (§4.1).
type State uint8

const (
	StatePending State = iota
	StateCommitted
	StateRejected
)

// StagingEpoch is a monotonically increasing generation counter. A record
// is staged iff its staged_epoch equals the manager's current epoch;
// start_block (rollback) increments the epoch, implicitly unstaging every
// record touched during the previous block attempt.
type StagingEpoch uint64

// ValidationStatus is the outcome of ValidateTx (§4.1).
type ValidationStatus uint8

const (
	ValidationValidated ValidationStatus = iota
	ValidationInvalidConsumedOnL1OrUnknown
	ValidationInvalidAlreadyIncludedOnL2
	ValidationInvalidAlreadyIncludedInProposedBlock
)

// record is the manager's domain entity for one L1-handler transaction:
// the payload plus lifecycle and staging metadata (§4.1).
type record struct {
	payload     types.L1HandlerPayload
	state       State
	committed   bool
	rejected    bool
	stagedEpoch StagingEpoch
}

// isProposable reports whether the record may still be offered by GetTxs.
func (r *record) isProposable() bool { return r.state == StatePending }

// isStaged reports whether the record was already touched (by GetTxs or
// ValidateTx) during the manager's current epoch.
func (r *record) isStaged(epoch StagingEpoch) bool { return r.stagedEpoch == epoch }

// tryMarkStaged stages the record at epoch, returning true iff it was
// previously unstaged (i.e. this call is the one that claims it).
func (r *record) tryMarkStaged(epoch StagingEpoch) bool {
	if r.stagedEpoch > epoch {
		panic(fmt.Sprintf("l1handler: epoch counters must not decrease (have %d, got %d)", r.stagedEpoch, epoch))
	}
	wasUnstaged := !r.isStaged(epoch)
	r.stagedEpoch = epoch
	return wasUnstaged
}

func (r *record) isValidatable() bool { return r.state != StateCommitted }
func (r *record) isCommitted() bool   { return r.state == StateCommitted }

func (r *record) markCommitted(hash types.TxHash) {
	if r.committed {
		panic(fmt.Sprintf("l1handler: transaction %s committed twice, this may lead to L2 reorgs", hash))
	}
	r.state = StateCommitted
	r.committed = true
}

func (r *record) markRejected(hash types.TxHash) {
	if r.committed {
		panic(fmt.Sprintf("l1handler: attempted to reject already-committed transaction %s", hash))
	}
	if r.rejected {
		panic(fmt.Sprintf("l1handler: transaction %s rejected twice", hash))
	}
	r.state = StateRejected
	r.rejected = true
}

// Manager is the C4 L1-handler transaction manager.
type Manager struct {
	mu sync.Mutex

	records map[types.TxHash]*record

	// proposableIndex holds every hash whose record isProposable(), in
	// insertion order. GetTxs stages strictly left-to-right, so the hashes
	// it staged form a prefix that it skips in one scan; ValidateTx may
	// also stage a hash further along, and GetTxs passes over such a hash
	// instead of returning it a second time.
	proposableIndex []types.TxHash

	currentEpoch StagingEpoch
}

// New constructs an empty manager. The epoch starts at 1 (not 0) so that
// brand-new records, whose staged_epoch defaults to 0, are stageable from
// the very first block.
func New() *Manager {
	return &Manager{
		records:      make(map[types.TxHash]*record),
		currentEpoch: 1,
	}
}

// StartBlock begins a new block attempt, unstaging everything touched by
// the previous one (§4.1: start_block/rollback_staging).
func (m *Manager) StartBlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentEpoch++
}

// GetTxs returns up to n not-yet-staged proposable transactions, staging
// each as it is returned so a later call within the same block attempt
// will not offer it again (§4.1: get_txs).
func (m *Manager) GetTxs(n int) []types.L1HandlerPayload {
	m.mu.Lock()
	defer m.mu.Unlock()

	firstUnstaged := 0
	for firstUnstaged < len(m.proposableIndex) && m.isStagedLocked(m.proposableIndex[firstUnstaged]) {
		firstUnstaged++
	}

	var out []types.L1HandlerPayload
	for i := firstUnstaged; i < len(m.proposableIndex) && len(out) < n; i++ {
		hash := m.proposableIndex[i]
		rec, ok := m.records[hash]
		if !ok {
			panic(fmt.Sprintf("l1handler: inconsistent storage: indexed transaction %s is not in storage", hash))
		}
		if newlyStaged := rec.tryMarkStaged(m.currentEpoch); !newlyStaged {
			continue // already staged in this epoch by ValidateTx.
		}
		if !rec.payload.IsFullyKnown() {
			panic(fmt.Sprintf("l1handler: attempted to propose hash-only transaction %s", hash))
		}
		out = append(out, rec.payload)
	}
	return out
}

func (m *Manager) isStagedLocked(hash types.TxHash) bool {
	rec, ok := m.records[hash]
	return ok && rec.isStaged(m.currentEpoch)
}

// ValidateTx checks whether hash may be included in the block currently
// being validated, staging it on success (§4.1: validate_tx).
func (m *Manager) ValidateTx(hash types.TxHash) ValidationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[hash]
	if !ok {
		return ValidationInvalidConsumedOnL1OrUnknown
	}
	if !rec.isValidatable() {
		if rec.state == StateCommitted {
			return ValidationInvalidAlreadyIncludedOnL2
		}
		panic(fmt.Sprintf("l1handler: record %s is non-validatable in an unexpected state", hash))
	}
	if rec.tryMarkStaged(m.currentEpoch) {
		return ValidationValidated
	}
	return ValidationInvalidAlreadyIncludedInProposedBlock
}

// CommitTxs finalizes a block: committedTxs move to Committed, rejectedTxs
// to Rejected, and the epoch is rolled back first (§4.1: commit_txs). A
// hash present in committedTxs that the manager has never seen is
// admitted hash-only ("fill in the blank" for the commit-before-add race);
// a hash in rejectedTxs that the manager has never seen is a storage
// inconsistency and panics, since the batcher cannot reject what it was
// never handed.
func (m *Manager) CommitTxs(committedTxs, rejectedTxs []types.TxHash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentEpoch++

	for _, hash := range committedTxs {
		m.createRecordIfNotExistLocked(hash)
		rec := m.records[hash]
		rec.markCommitted(hash)
		m.maintainIndexLocked(hash)
	}
	for _, hash := range rejectedTxs {
		rec, ok := m.records[hash]
		if !ok {
			panic(fmt.Sprintf("l1handler: storage inconsistency: rejected transaction %s was never recorded", hash))
		}
		rec.markRejected(hash)
		m.maintainIndexLocked(hash)
	}
}

// AddTx registers a fully-known L1-handler transaction, returning true iff
// this call created a brand-new record. If a hash-only record already
// existed (observed via an earlier commit notification), this call fills
// in its payload in place and returns false (§4.1: add_tx).
func (m *Manager) AddTx(payload types.L1HandlerPayload) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[payload.TxHash]; ok {
		rec.payload = payload
		return false
	}

	m.records[payload.TxHash] = &record{
		payload:     payload,
		stagedEpoch: m.currentEpoch - 1,
	}

	for _, h := range m.proposableIndex {
		if h == payload.TxHash {
			panic(fmt.Sprintf("l1handler: inconsistent state: new transaction %s was already indexed", payload.TxHash))
		}
	}
	m.proposableIndex = append(m.proposableIndex, payload.TxHash)
	return true
}

// IsCommitted reports whether hash's record has reached the Committed
// state.
func (m *Manager) IsCommitted(hash types.TxHash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[hash]
	return ok && rec.isCommitted()
}

func (m *Manager) createRecordIfNotExistLocked(hash types.TxHash) {
	if _, ok := m.records[hash]; ok {
		return
	}
	m.records[hash] = &record{
		payload:     types.NewHashOnlyL1HandlerPayload(hash),
		stagedEpoch: m.currentEpoch - 1,
	}
	m.proposableIndex = append(m.proposableIndex, hash)
}

// maintainIndexLocked keeps proposableIndex consistent with the record's
// proposability after a state transition (§4.1: maintain_index).
func (m *Manager) maintainIndexLocked(hash types.TxHash) {
	rec, ok := m.records[hash]
	if !ok {
		return
	}
	if rec.isProposable() {
		for _, h := range m.proposableIndex {
			if h == hash {
				return
			}
		}
		m.proposableIndex = append(m.proposableIndex, hash)
		return
	}
	for i, h := range m.proposableIndex {
		if h == hash {
			m.proposableIndex = append(m.proposableIndex[:i], m.proposableIndex[i+1:]...)
			return
		}
	}
}

// Snapshot reports a point-in-time view of every record's lifecycle
// state, used by admin/debug tooling and tests.
type Snapshot struct {
	Uncommitted       []types.TxHash
	UncommittedStaged []types.TxHash
	Rejected          []types.TxHash
	RejectedStaged    []types.TxHash
	Committed         []types.TxHash
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap Snapshot
	for hash, rec := range m.records {
		switch rec.state {
		case StateRejected:
			snap.Rejected = append(snap.Rejected, hash)
			if rec.isStaged(m.currentEpoch) {
				snap.RejectedStaged = append(snap.RejectedStaged, hash)
			}
		case StateCommitted:
			snap.Committed = append(snap.Committed, hash)
		case StatePending:
			snap.Uncommitted = append(snap.Uncommitted, hash)
			if rec.isStaged(m.currentEpoch) {
				snap.UncommittedStaged = append(snap.UncommittedStaged, hash)
			}
		}
	}
	return snap
}
