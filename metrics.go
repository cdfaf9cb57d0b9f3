package spritenav

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordDiscovery is called after each location insert attempt.
	RecordDiscovery(duration time.Duration, err error)

	// RecordHints is called after each hint query. cached reports whether
	// the result was served from the cache.
	RecordHints(strategyName string, count int, duration time.Duration, cached bool, err error)

	// RecordOutcome is called for each hint outcome report.
	RecordOutcome(success bool)

	// RecordStrategyFailure is called when a strategy errors or panics.
	RecordStrategyFailure(strategyName string)

	// RecordSnapshot is called after snapshot save/load. op is "save" or
	// "load".
	RecordSnapshot(op string, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDiscovery(time.Duration, error)                {}
func (NoopMetricsCollector) RecordHints(string, int, time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordOutcome(bool)                                  {}
func (NoopMetricsCollector) RecordStrategyFailure(string)                        {}
func (NoopMetricsCollector) RecordSnapshot(string, time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	DiscoveryCount      atomic.Int64
	DiscoveryErrors     atomic.Int64
	DiscoveryTotalNanos atomic.Int64

	HintQueries      atomic.Int64
	HintErrors       atomic.Int64
	HintsCached      atomic.Int64
	HintsReturned    atomic.Int64
	HintTotalNanos   atomic.Int64
	StrategyFailures atomic.Int64

	OutcomeSuccess atomic.Int64
	OutcomeFailure atomic.Int64

	SnapshotSaves  atomic.Int64
	SnapshotLoads  atomic.Int64
	SnapshotErrors atomic.Int64
}

// RecordDiscovery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDiscovery(duration time.Duration, err error) {
	b.DiscoveryCount.Add(1)
	b.DiscoveryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DiscoveryErrors.Add(1)
	}
}

// RecordHints implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHints(_ string, count int, duration time.Duration, cached bool, err error) {
	b.HintQueries.Add(1)
	b.HintTotalNanos.Add(duration.Nanoseconds())
	b.HintsReturned.Add(int64(count))
	if cached {
		b.HintsCached.Add(1)
	}
	if err != nil {
		b.HintErrors.Add(1)
	}
}

// RecordOutcome implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOutcome(success bool) {
	if success {
		b.OutcomeSuccess.Add(1)
	} else {
		b.OutcomeFailure.Add(1)
	}
}

// RecordStrategyFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStrategyFailure(string) {
	b.StrategyFailures.Add(1)
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(op string, _ time.Duration, err error) {
	switch op {
	case "save":
		b.SnapshotSaves.Add(1)
	case "load":
		b.SnapshotLoads.Add(1)
	}
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		DiscoveryCount:    b.DiscoveryCount.Load(),
		DiscoveryErrors:   b.DiscoveryErrors.Load(),
		DiscoveryAvgNanos: avg(b.DiscoveryTotalNanos.Load(), b.DiscoveryCount.Load()),
		HintQueries:       b.HintQueries.Load(),
		HintErrors:        b.HintErrors.Load(),
		HintsCached:       b.HintsCached.Load(),
		HintsReturned:     b.HintsReturned.Load(),
		HintAvgNanos:      avg(b.HintTotalNanos.Load(), b.HintQueries.Load()),
		StrategyFailures:  b.StrategyFailures.Load(),
		OutcomeSuccess:    b.OutcomeSuccess.Load(),
		OutcomeFailure:    b.OutcomeFailure.Load(),
		SnapshotSaves:     b.SnapshotSaves.Load(),
		SnapshotLoads:     b.SnapshotLoads.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	DiscoveryCount    int64
	DiscoveryErrors   int64
	DiscoveryAvgNanos int64
	HintQueries       int64
	HintErrors        int64
	HintsCached       int64
	HintsReturned     int64
	HintAvgNanos      int64
	StrategyFailures  int64
	OutcomeSuccess    int64
	OutcomeFailure    int64
	SnapshotSaves     int64
	SnapshotLoads     int64
	SnapshotErrors    int64
}
