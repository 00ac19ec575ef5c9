// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy is the remote client's exponential backoff schedule (§4.1:
// "Exponential delay delay_k = initial * factor^k, capped by max_delay,
// for up to retries attempts").
type RetryPolicy struct {
	Initial    time.Duration
	Factor     float64
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetryPolicy is a conservative starting point: a handful of
// quickly-escalating attempts before giving up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    50 * time.Millisecond,
		Factor:     2.0,
		MaxDelay:   2 * time.Second,
		MaxRetries: 5,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
	}
	if maxDelay := float64(p.MaxDelay); d > maxDelay {
		d = maxDelay
	}
	return time.Duration(d)
}

// retriable reports whether err warrants another attempt (§4.1: transport
// errors and HTTP-level non-2xx below the application-error range are
// retried; deserialization failures and 4xx application errors are not).
// Mapped onto gRPC status codes: Unavailable/DeadlineExceeded/Aborted and
// ResourceExhausted are treated as transport-layer and retried;
// InvalidArgument/NotFound/PermissionDenied and every other code are
// treated as application errors and are not retried.
func retriable(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return true // not a gRPC status at all: treat as a raw transport error.
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// withRetry runs op, retrying per policy while retriable(err) holds.
func withRetry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.delay(attempt - 1)):
			}
		}
		lastErr = op(ctx)
		if lastErr == nil || !retriable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
