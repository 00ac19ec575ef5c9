// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import "github.com/starkware-libs/sequencer-sub007/internal/types"

// Bouncer tracks the 10-slot running sum of bouncer weights for a single
// block build (spec.md §3, §4.6 invariant 2).
type Bouncer struct {
	limits types.BouncerWeights
	used   types.BouncerWeights
}

// NewBouncer constructs a Bouncer starting at zero usage against limits.
func NewBouncer(limits types.BouncerWeights) *Bouncer {
	return &Bouncer{limits: limits}
}

// TryAdd attempts to add delta to the running total. If any slot would
// exceed its configured limit, the bouncer is left unchanged and false is
// returned; the caller must treat the transaction as SkippedForBouncer and
// stop pulling new transactions for this block (§4.6 invariant 2).
func (b *Bouncer) TryAdd(delta types.BouncerWeights) bool {
	candidate := b.used.Add(delta)
	if candidate.ExceedsAny(b.limits) {
		return false
	}
	b.used = candidate
	return true
}

// Used reports the bouncer's current running total.
func (b *Bouncer) Used() types.BouncerWeights { return b.used }
