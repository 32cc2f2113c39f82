package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

const (
	metricPackagesAffected = "monorel.packages.affected"
	metricActionsTotal     = "monorel.actions.total"
	metricRunDuration      = "monorel.run.duration.seconds"

	attrStrategy = "strategy"
	attrStatus   = "status"
)

// durationBucketBoundaries covers 10ms to 10min: local tagging is fast,
// hosted API fan-out over many packages is not.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// RunMetrics records per-run measurements. It implements [release.Metrics].
type RunMetrics struct {
	packagesAffected metric.Int64Counter
	actionsTotal     metric.Int64Counter
	runDuration      metric.Float64Histogram
}

var _ release.Metrics = (*RunMetrics)(nil)

// NewRunMetrics creates the run instruments from mt.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &RunMetrics{
		packagesAffected: b.counter(metricPackagesAffected, "Packages in the affected set", "{package}"),
		actionsTotal:     b.counter(metricActionsTotal, "Downstream actions by outcome", "{action}"),
		runDuration:      b.histogram(metricRunDuration, "Run duration in seconds", "s", durationBucketBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordAffected adds the size of the affected set.
func (rm *RunMetrics) RecordAffected(ctx context.Context, strategy string, count int) {
	rm.packagesAffected.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrStrategy, strategy)))
}

// RecordAction counts one downstream action.
func (rm *RunMetrics) RecordAction(ctx context.Context, strategy string, status release.Status) {
	rm.actionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStrategy, strategy),
		attribute.String(attrStatus, string(status)),
	))
}

// RecordRun records the wall time of one run.
func (rm *RunMetrics) RecordRun(ctx context.Context, strategy string, duration time.Duration) {
	rm.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrStrategy, strategy)))
}

// metricBuilder accumulates instrument creation errors so a batch of
// instruments needs a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	}

	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}

	h, err := b.meter.Float64Histogram(name, opts...)
	b.setErr(name, err)

	return h
}

func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}
