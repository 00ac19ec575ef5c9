// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Gatherer adapts the go-ethereum-style registry backing this package's
// counters, gauges and histograms to the [prometheus.Gatherer] interface,
// so a standalone binary can expose them on a scrape endpoint without
// running a second, parallel metrics system.
type Gatherer struct {
	registry gethmetrics.Registry
}

var _ prometheus.Gatherer = (*Gatherer)(nil)

// NewGatherer returns a Gatherer over the global default registry that
// TransactionsReceived and friends register into.
func NewGatherer() *Gatherer {
	return &Gatherer{registry: gethmetrics.DefaultRegistry}
}

func (g *Gatherer) Gather() ([]*dto.MetricFamily, error) {
	var names []string
	g.registry.Each(func(name string, _ any) {
		names = append(names, name)
	})
	sort.Strings(names)

	mfs := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		mf, err := metricFamily(g.registry, name)
		switch {
		case errors.Is(err, errMetricSkip):
			continue
		case err != nil:
			return nil, err
		}
		mfs = append(mfs, mf)
	}
	return mfs, nil
}

var (
	errMetricSkip             = errors.New("metric skipped")
	errMetricTypeNotSupported = errors.New("metric type not supported")
)

func ptrTo[T any](x T) *T { return &x }

func metricFamily(registry gethmetrics.Registry, name string) (*dto.MetricFamily, error) {
	metric := registry.Get(name)
	label := strings.ReplaceAll(name, "/", "_")
	if metric == nil {
		return nil, fmt.Errorf("%w: %q is nil", errMetricSkip, name)
	}

	switch m := metric.(type) {
	case gethmetrics.Counter:
		return &dto.MetricFamily{
			Name: &label,
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{{
				Counter: &dto.Counter{Value: ptrTo(float64(m.Snapshot().Count()))},
			}},
		}, nil

	case gethmetrics.Gauge:
		return &dto.MetricFamily{
			Name: &label,
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{Value: ptrTo(float64(m.Snapshot().Value()))},
			}},
		}, nil

	case gethmetrics.Histogram:
		snapshot := m.Snapshot()
		if snapshot.Count() == 0 {
			return nil, fmt.Errorf("%w: %q histogram has no data", errMetricSkip, name)
		}
		quantiles := []float64{.5, .75, .95, .99, .999}
		thresholds := snapshot.Percentiles(quantiles)
		dtoQuantiles := make([]*dto.Quantile, len(quantiles))
		for i, q := range quantiles {
			dtoQuantiles[i] = &dto.Quantile{Quantile: ptrTo(q), Value: ptrTo(thresholds[i] / float64(time.Millisecond))}
		}
		return &dto.MetricFamily{
			Name: &label,
			Type: dto.MetricType_SUMMARY.Enum(),
			Metric: []*dto.Metric{{
				Summary: &dto.Summary{
					SampleCount: ptrTo(uint64(snapshot.Count())),
					SampleSum:   ptrTo(float64(snapshot.Sum()) / float64(time.Millisecond)),
					Quantile:    dtoQuantiles,
				},
			}},
		}, nil

	default:
		return nil, fmt.Errorf("%w: metric %q type %T", errMetricTypeNotSupported, name, metric)
	}
}
