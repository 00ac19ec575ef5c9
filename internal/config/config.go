// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config builds the frozen, process-wide configuration tree for
// the sequencer core (§6, §9, SPEC_FULL.md §10.3): a single read at
// process start via pflag/viper into a per-component config struct,
// split into a Static half (requires a restart to change: channel
// capacities, pool byte caps, bouncer limits) and a Dynamic half (hot
// swappable at runtime through an atomic pointer, the same pattern the
// teacher uses for TxPool.gasTip).
package config

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/starkware-libs/sequencer-sub007/internal/builder"
	"github.com/starkware-libs/sequencer-sub007/internal/mempool"
	"github.com/starkware-libs/sequencer-sub007/internal/runtime"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// StaticConfig holds the fields every component treats as immutable for
// its lifetime; changing one requires restarting the owning component
// (SPEC_FULL.md §10.3).
type StaticConfig struct {
	MempoolMaxPoolSizeBytes     uint64
	MempoolPropagationBatchSize int
	MempoolEvictionInterval    time.Duration

	BuilderNConcurrentTxs             int
	BuilderMaxL1HandlerTxsPerProposal int
	BuilderProposeL1TxsEvery          uint64
	BuilderBouncerLimits              types.BouncerWeights
	BuilderPreConfirmedBufferSize     int

	RuntimeChannelCapacity int
	RuntimeRetryPolicy     runtime.RetryPolicy
}

// DynamicFields holds the knobs that may change while the sequencer is
// running, the same way the teacher's TxPool exposes SetGasTip without a
// restart. SetDynamic changes what later MempoolConfig/BuilderConfig
// projections return; a component already built from an earlier
// projection keeps the values it was given.
type DynamicFields struct {
	MempoolTxTTL               time.Duration
	BuilderTxPollingInterval   time.Duration
	BuilderIdleDetectionDelay  time.Duration
}

// Config is the frozen config tree: Static is fixed at Build() time,
// Dynamic is swappable through SetDynamic/Dynamic.
type Config struct {
	Static StaticConfig

	dynamic atomic.Pointer[DynamicFields]
}

// Dynamic returns the current dynamic field snapshot.
func (c *Config) Dynamic() DynamicFields {
	return *c.dynamic.Load()
}

// SetDynamic hot-swaps the dynamic fields; safe for concurrent use with
// Dynamic from any goroutine, mirroring the teacher's
// atomic.Pointer[big.Int]-backed SetGasTip.
func (c *Config) SetDynamic(d DynamicFields) {
	c.dynamic.Store(&d)
}

// MempoolConfig projects the frozen config into the shape internal/mempool
// expects.
func (c *Config) MempoolConfig() mempool.Config {
	d := c.Dynamic()
	return mempool.Config{
		MaxPoolSizeBytes:     c.Static.MempoolMaxPoolSizeBytes,
		TxTTL:                d.MempoolTxTTL,
		EvictionInterval:     c.Static.MempoolEvictionInterval,
		PropagationBatchSize: c.Static.MempoolPropagationBatchSize,
	}
}

// BuilderConfig projects the frozen config into the shape internal/builder
// expects.
func (c *Config) BuilderConfig() builder.Config {
	d := c.Dynamic()
	return builder.Config{
		NConcurrentTxs:                  c.Static.BuilderNConcurrentTxs,
		TxPollingInterval:               d.BuilderTxPollingInterval,
		ProposerIdleDetectionDelay:      d.BuilderIdleDetectionDelay,
		MaxL1HandlerTxsPerBlockProposal: c.Static.BuilderMaxL1HandlerTxsPerProposal,
		ProposeL1TxsEvery:               c.Static.BuilderProposeL1TxsEvery,
		BouncerLimits:                   c.Static.BuilderBouncerLimits,
		PreConfirmedBufferSize:          c.Static.BuilderPreConfirmedBufferSize,
	}
}

// RuntimeConfig projects the frozen config into the shape internal/runtime
// expects.
func (c *Config) RuntimeConfig() runtime.Config {
	return runtime.Config{ChannelCapacity: c.Static.RuntimeChannelCapacity}
}

// defaults mirrors every component's own DefaultConfig/DefaultRetryPolicy
// so a zero-flag run behaves exactly like calling those constructors
// directly.
func defaults() Config {
	mp := mempool.DefaultConfig()
	bouncer := types.BouncerWeights{}
	bouncer[types.SlotCairoSteps] = 2_500_000

	cfg := Config{Static: StaticConfig{
		MempoolMaxPoolSizeBytes:           mp.MaxPoolSizeBytes,
		MempoolPropagationBatchSize:       mp.PropagationBatchSize,
		MempoolEvictionInterval:           mp.EvictionInterval,
		BuilderNConcurrentTxs:             50,
		BuilderMaxL1HandlerTxsPerProposal: 10,
		BuilderProposeL1TxsEvery:          1,
		BuilderBouncerLimits:              bouncer,
		BuilderPreConfirmedBufferSize:     256,
		RuntimeChannelCapacity:            runtime.DefaultConfig().ChannelCapacity,
		RuntimeRetryPolicy:                runtime.DefaultRetryPolicy(),
	}}
	cfg.SetDynamic(DynamicFields{
		MempoolTxTTL:              mp.TxTTL,
		BuilderTxPollingInterval:  10 * time.Millisecond,
		BuilderIdleDetectionDelay: 500 * time.Millisecond,
	})
	return cfg
}

// BindFlags registers the sequencer's command-line options onto fs and
// binds them into v under the same dotted names (e.g.
// "builder.n-concurrent-txs", with no namespace prefix). A value comes from
// the parsed flag, or else the flag's default; environment variables are
// not read. Bouncer limits and the retry policy have no flag and always
// take their defaults.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := defaults()

	fs.Uint64("mempool.max-pool-size-bytes", d.Static.MempoolMaxPoolSizeBytes, "maximum aggregate mempool size in bytes")
	fs.Int("mempool.propagation-batch-size", d.Static.MempoolPropagationBatchSize, "max tx hashes per propagation batch")
	fs.Duration("mempool.eviction-interval", d.Static.MempoolEvictionInterval, "how often the mempool eviction sweep runs")
	fs.Duration("mempool.tx-ttl", d.Dynamic().MempoolTxTTL, "max time an unpropagated/uncommitted tx may sit in the mempool")

	fs.Int("builder.n-concurrent-txs", d.Static.BuilderNConcurrentTxs, "max txs pulled per propose-loop iteration")
	fs.Int("builder.max-l1-handler-txs-per-block-proposal", d.Static.BuilderMaxL1HandlerTxsPerProposal, "per-block L1-handler tx budget")
	fs.Uint64("builder.propose-l1-txs-every", d.Static.BuilderProposeL1TxsEvery, "propose L1-handler txs every N blocks")
	fs.Int("builder.pre-confirmed-buffer-size", d.Static.BuilderPreConfirmedBufferSize, "capacity of the pre-confirmed-tx stream channel")
	fs.Duration("builder.tx-polling-interval", d.Dynamic().BuilderTxPollingInterval, "sleep between empty mempool pulls")
	fs.Duration("builder.idle-detection-delay", d.Dynamic().BuilderIdleDetectionDelay, "idle time before a propose build terminates")

	fs.Int("runtime.channel-capacity", d.Static.RuntimeChannelCapacity, "component server inbox/priority channel capacity")

	_ = v.BindPFlags(fs)
}

// Build reads bound flags/env/defaults from v into a frozen Config.
// Static fields are read once here and never revisited; Dynamic fields
// are stored behind the atomic pointer so a later SetDynamic call (e.g.
// from a config-reload signal handler) can still update them in place.
func Build(v *viper.Viper) (*Config, error) {
	d := defaults()

	static := StaticConfig{
		MempoolMaxPoolSizeBytes:           v.GetUint64("mempool.max-pool-size-bytes"),
		MempoolPropagationBatchSize:       v.GetInt("mempool.propagation-batch-size"),
		MempoolEvictionInterval:           v.GetDuration("mempool.eviction-interval"),
		BuilderNConcurrentTxs:             v.GetInt("builder.n-concurrent-txs"),
		BuilderMaxL1HandlerTxsPerProposal: v.GetInt("builder.max-l1-handler-txs-per-block-proposal"),
		BuilderProposeL1TxsEvery:          v.GetUint64("builder.propose-l1-txs-every"),
		BuilderBouncerLimits:              d.Static.BuilderBouncerLimits,
		BuilderPreConfirmedBufferSize:     v.GetInt("builder.pre-confirmed-buffer-size"),
		RuntimeChannelCapacity:            v.GetInt("runtime.channel-capacity"),
		RuntimeRetryPolicy:                d.Static.RuntimeRetryPolicy,
	}
	if static.RuntimeChannelCapacity <= 0 {
		return nil, fmt.Errorf("config: runtime.channel-capacity must be positive, got %d", static.RuntimeChannelCapacity)
	}

	cfg := &Config{Static: static}
	cfg.SetDynamic(DynamicFields{
		MempoolTxTTL:              v.GetDuration("mempool.tx-ttl"),
		BuilderTxPollingInterval:  v.GetDuration("builder.tx-polling-interval"),
		BuilderIdleDetectionDelay: v.GetDuration("builder.idle-detection-delay"),
	})
	return cfg, nil
}
