// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package testutils holds small shared test helpers used across the
// sequencer core's package tests.
package testutils

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/metrics"
)

var metricsLock sync.Mutex

// WithMetrics enables go-ethereum-style metrics globally for the
// duration of the test, so internal/metrics' Enabled-gated recorders
// actually register samples. There is no way to disable metrics again in
// this go-ethereum version, so concurrent tests that need this serialize
// on metricsLock rather than racing to re-disable it.
func WithMetrics(t *testing.T) {
	t.Helper()
	metricsLock.Lock()
	t.Cleanup(func() {
		metricsLock.Unlock()
	})
	metrics.Enabled = true
}
