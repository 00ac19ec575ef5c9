// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"errors"
	"fmt"

	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// Sentinel errors returned by the pool and engine. Validation and
// nonce/duplication errors are part of the closed, versioned error-code
// surface described in spec.md §7: clients may switch on the sentinel but
// must not parse Error().
var (
	ErrNotFound       = errors.New("mempool: transaction not found")
	ErrDuplicateHash  = errors.New("mempool: duplicate transaction hash")
	ErrDuplicateNonce = errors.New("mempool: duplicate nonce for account")
	ErrNonceTooOld    = errors.New("mempool: nonce older than committed account nonce")
	ErrNonceTooLarge  = errors.New("mempool: nonce exceeds representable range")
	ErrNonceOverflow  = errors.New("mempool: next eligible nonce would overflow")
	ErrPoolFull       = errors.New("mempool: pool is at capacity")
)

// ConsistencyError marks an internal-index disagreement. Per spec.md §4.3,
// this is never recovered from: the caller is expected to panic, not retry.
type ConsistencyError struct {
	Reason string
	Hash   types.TxHash
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("mempool: consistency error for tx %s: %s", e.Hash, e.Reason)
}

func panicOnConsistencyError(reason string, hash types.TxHash) {
	panic(&ConsistencyError{Reason: reason, Hash: hash})
}
