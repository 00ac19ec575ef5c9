// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool implements the nonce-ordered, multi-index transaction
// pool (C2) and the mempool engine (C3) described in spec.md §3-§4.
//
// The pool keeps three indexes over the same set of transactions, the way
// the teacher's core/txpool/txpool.go keeps "all", "pending" and "queue"
// views over one underlying transaction set:
//
//   - byHash:    TxHash -> transaction, the sole owner of the tx body.
//   - byAccount: Address -> Nonce -> TransactionReference, an unordered map
//     per account (AccountTxsSortedByNonce sorts by nonce on read).
//   - byTime:    chronological index of TransactionReference, sorted by
//     (submission time, tx hash) for deterministic tie-breaks (§3 invariant 3).
package mempool

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/starkware-libs/sequencer-sub007/internal/clock"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// timeEntry is one row of the chronological index.
type timeEntry struct {
	submitted time.Time
	ref       types.TransactionReference
}

// less orders two timeEntry values by submission time, tx hash as tie-break.
func (e timeEntry) less(other timeEntry) bool {
	if !e.submitted.Equal(other.submitted) {
		return e.submitted.Before(other.submitted)
	}
	return e.ref.TxHash.Less(other.ref.TxHash)
}

// Pool is the in-memory, multi-index transaction pool (§3 C2). All methods
// are safe for concurrent use. It never blocks on I/O: every operation is a
// pure map/slice manipulation under a single mutex, mirroring the teacher's
// txpool's reliance on one coarse lock for index consistency rather than
// fine-grained per-account locks.
type Pool struct {
	mu sync.Mutex

	clock clock.Clock

	byHash   map[types.TxHash]types.InternalRpcTransaction
	byAccount map[types.Address]map[types.Nonce]types.TransactionReference
	byTime   []timeEntry // kept sorted by (submitted, hash); O(n) insert, acceptable at mempool scale.

	sizeInBytes uint64
}

// New constructs an empty pool using c as its time source.
func New(c clock.Clock) *Pool {
	return &Pool{
		clock:     c,
		byHash:    make(map[types.TxHash]types.InternalRpcTransaction),
		byAccount: make(map[types.Address]map[types.Nonce]types.TransactionReference),
	}
}

// Len reports the number of transactions currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// SizeInBytes reports the checked running total of transaction sizes
// (§3 invariant 4). It never goes negative: Remove is the only decrement
// path and always subtracts a size that Insert previously added.
func (p *Pool) SizeInBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizeInBytes
}

// Insert adds tx to all three indexes. It returns ErrDuplicateHash if the
// hash is already present, and ErrDuplicateNonce if the account already has
// a (different) transaction staged at that nonce (§4.2: one transaction per
// account per nonce).
func (p *Pool) Insert(tx types.InternalRpcTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHash[tx.TxHash]; ok {
		return ErrDuplicateHash
	}

	ref := tx.Reference()
	acct := p.byAccount[ref.Address]
	if acct == nil {
		acct = make(map[types.Nonce]types.TransactionReference)
		p.byAccount[ref.Address] = acct
	} else if _, ok := acct[ref.Nonce]; ok {
		return ErrDuplicateNonce
	}

	size := tx.TotalBytes()
	if p.sizeInBytes+size < p.sizeInBytes {
		panicOnConsistencyError("size_in_bytes overflow on insert", tx.TxHash)
	}

	now := p.clock.Now()
	p.byHash[tx.TxHash] = tx
	acct[ref.Nonce] = ref
	p.insertTimeEntry(timeEntry{submitted: now, ref: ref})
	p.sizeInBytes += size
	return nil
}

func (p *Pool) insertTimeEntry(e timeEntry) {
	i := sort.Search(len(p.byTime), func(i int) bool { return e.less(p.byTime[i]) })
	p.byTime = append(p.byTime, timeEntry{})
	copy(p.byTime[i+1:], p.byTime[i:])
	p.byTime[i] = e
}

// Remove deletes the transaction with the given hash from all three
// indexes. It is a no-op if the hash is not present; callers that expect
// presence should check the returned bool.
func (p *Pool) Remove(hash types.TxHash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(hash)
}

func (p *Pool) removeLocked(hash types.TxHash) bool {
	tx, ok := p.byHash[hash]
	if !ok {
		return false
	}
	ref := tx.Reference()

	delete(p.byHash, hash)
	if acct := p.byAccount[ref.Address]; acct != nil {
		delete(acct, ref.Nonce)
		if len(acct) == 0 {
			delete(p.byAccount, ref.Address)
		}
	}
	for i, e := range p.byTime {
		if e.ref.TxHash == hash {
			p.byTime = append(p.byTime[:i], p.byTime[i+1:]...)
			break
		}
	}

	size := tx.TotalBytes()
	if size > p.sizeInBytes {
		panicOnConsistencyError("size_in_bytes underflow on remove", hash)
	}
	p.sizeInBytes -= size
	return true
}

// RemoveUpToNonceWhenCommitted evicts every transaction of account whose
// nonce is strictly less than newCommittedNonce, i.e. the ones a just
// committed block has rendered stale (§4.3 commit_block semantics: the
// mempool drops everything the chain has moved past, keeps everything it
// hasn't).
func (p *Pool) RemoveUpToNonceWhenCommitted(account types.Address, newCommittedNonce types.Nonce) []types.TxHash {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct := p.byAccount[account]
	if acct == nil {
		return nil
	}
	var stale []types.TxHash
	for nonce, ref := range acct {
		if nonce < newCommittedNonce {
			stale = append(stale, ref.TxHash)
		}
	}
	for _, h := range stale {
		p.removeLocked(h)
	}
	return stale
}

// RemoveTxsOlderThan evicts every transaction whose submission time is
// strictly before cutoff, returning the evicted hashes. This backs the
// engine's periodic staleness eviction (§4.4).
func (p *Pool) RemoveTxsOlderThan(cutoff time.Time) []types.TxHash {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := sort.Search(len(p.byTime), func(i int) bool { return !p.byTime[i].submitted.Before(cutoff) })
	if i == 0 {
		return nil
	}
	stale := make([]types.TxHash, i)
	for j := 0; j < i; j++ {
		stale[j] = p.byTime[j].ref.TxHash
	}
	for _, h := range stale {
		p.removeLocked(h)
	}
	return stale
}

// AccountTxsSortedByNonce returns every staged transaction of account, in
// ascending nonce order.
func (p *Pool) AccountTxsSortedByNonce(account types.Address) []types.TransactionReference {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct := p.byAccount[account]
	if len(acct) == 0 {
		return nil
	}
	refs := make([]types.TransactionReference, 0, len(acct))
	for _, ref := range acct {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Nonce < refs[j].Nonce })
	return refs
}

// GetNextEligibleTx returns the transaction of account at exactly
// committedNonce+1, if staged. A mempool entry is "eligible" only at that
// nonce (§4.2): anything further ahead is held until the gap closes. The
// returned error is ErrNotFound if nothing is staged at that nonce, or
// ErrNonceOverflow if committedNonce is already the maximum representable
// nonce and the increment itself would overflow — a plain (ref, bool)
// cannot distinguish those two cases, and silently computing
// committedNonce+1 unguarded would wrap to 0 rather than report the
// second one (§4.2's operation table requires both reported distinctly).
func (p *Pool) GetNextEligibleTx(account types.Address, committedNonce types.Nonce) (types.TransactionReference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if committedNonce == math.MaxUint64 {
		return types.TransactionReference{}, ErrNonceOverflow
	}

	acct := p.byAccount[account]
	if acct == nil {
		return types.TransactionReference{}, ErrNotFound
	}
	next := committedNonce + 1
	ref, ok := acct[next]
	if !ok {
		return types.TransactionReference{}, ErrNotFound
	}
	return ref, nil
}

// GetSubmissionTime returns the recorded submission time of hash.
func (p *Pool) GetSubmissionTime(hash types.TxHash) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.byTime {
		if e.ref.TxHash == hash {
			return e.submitted, true
		}
	}
	return time.Time{}, false
}

// ChronologicalTxsHashes returns every staged transaction hash ordered by
// submission time (ties broken by hash), oldest first. Used by propagation
// batching (§4.4) and by tests asserting FIFO-within-tip ordering.
func (p *Pool) ChronologicalTxsHashes() []types.TxHash {
	p.mu.Lock()
	defer p.mu.Unlock()
	hashes := make([]types.TxHash, len(p.byTime))
	for i, e := range p.byTime {
		hashes[i] = e.ref.TxHash
	}
	return hashes
}

// Get returns the full transaction body for hash.
func (p *Pool) Get(hash types.TxHash) (types.InternalRpcTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.byHash[hash]
	return tx, ok
}

// Contains reports whether hash is currently staged.
func (p *Pool) Contains(hash types.TxHash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHash[hash]
	return ok
}
