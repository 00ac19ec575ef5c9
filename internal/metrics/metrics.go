// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics declares the counters, histograms and gauges named in
// spec.md §6, registered through the same go-ethereum-style metrics
// registry the teacher's txpool.go uses (metrics.GetOrRegisterCounter /
// GetOrRegisterGauge / GetOrRegisterHistogram, guarded by metrics.Enabled).
package metrics

import (
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"
)

// Labels distinguish a metric sample by transaction kind and ingress
// source, per spec.md §6 ("All are labeled by transaction kind and
// ingress source").
type Labels struct {
	Kind   string
	Source string
}

func (l Labels) suffix() string {
	return fmt.Sprintf("/%s/%s", l.Kind, l.Source)
}

// Counters.
func TransactionsReceived(l Labels) {
	if !metrics.Enabled {
		return
	}
	metrics.GetOrRegisterCounter("sequencer/transactions_received"+l.suffix(), nil).Inc(1)
}

func TransactionsSentToMempool(l Labels) {
	if !metrics.Enabled {
		return
	}
	metrics.GetOrRegisterCounter("sequencer/transactions_sent_to_mempool"+l.suffix(), nil).Inc(1)
}

func TransactionsFailed(l Labels) {
	if !metrics.Enabled {
		return
	}
	metrics.GetOrRegisterCounter("sequencer/transactions_failed"+l.suffix(), nil).Inc(1)
}

// Histograms, values recorded in nanoseconds via the standard sampled
// histogram the teacher's txpool.go uses (reorgDurationTimer-style).
func AddTxLatency(l Labels, nanos int64) {
	if !metrics.Enabled {
		return
	}
	h := metrics.GetOrRegisterHistogram("sequencer/add_tx_latency"+l.suffix(), nil, metrics.NewExpDecaySample(1028, 0.015))
	h.Update(nanos)
}

func TimeInMempool(l Labels, nanos int64) {
	if !metrics.Enabled {
		return
	}
	h := metrics.GetOrRegisterHistogram("sequencer/time_in_mempool"+l.suffix(), nil, metrics.NewExpDecaySample(1028, 0.015))
	h.Update(nanos)
}

func TimeUntilCommitted(l Labels, nanos int64) {
	if !metrics.Enabled {
		return
	}
	h := metrics.GetOrRegisterHistogram("sequencer/time_until_committed"+l.suffix(), nil, metrics.NewExpDecaySample(1028, 0.015))
	h.Update(nanos)
}

// Gauges.
func QueueDepth(l Labels, depth int64) {
	if !metrics.Enabled {
		return
	}
	metrics.GetOrRegisterGauge("sequencer/queue_depth"+l.suffix(), nil).Update(depth)
}
