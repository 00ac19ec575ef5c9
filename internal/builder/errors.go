// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import "errors"

// ErrBouncerOverflowInValidate is returned by BuildValidate when the
// proposer streamed a transaction whose bouncer delta does not fit
// locally. Unlike propose mode (where overflow simply ends the block),
// a validator cannot silently truncate a block it was handed to judge.
var ErrBouncerOverflowInValidate = errors.New("builder: bouncer limit exceeded while validating proposed block")
