// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package metric provides in-process metric primitives (counters, gauges,
// histograms) that carry their own metadata and can be converted to the
// Prometheus exposition data model.
package metric

import (
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
)

// A Unit describes how the metric's numeric values should be interpreted.
type Unit int32

const (
	// Unit_UNSET expresses that the metric's values are unitless.
	Unit_UNSET Unit = iota
	// Unit_BYTES expresses that the metric's values are in bytes.
	Unit_BYTES
	// Unit_COUNT expresses that the metric's values are a count.
	Unit_COUNT
	// Unit_NANOSECONDS expresses that the metric's values are in nanoseconds.
	Unit_NANOSECONDS
	// Unit_SECONDS expresses that the metric's values are in seconds.
	Unit_SECONDS
	// Unit_TIMESTAMP_NS expresses that the metric's values are nanoseconds
	// since the Unix epoch.
	Unit_TIMESTAMP_NS
)

// Metadata holds metadata about a metric. It must be embedded in all metric
// objects.
type Metadata struct {
	Name        string
	Help        string
	Measurement string
	Unit        Unit
}

// GetName returns the metric's name.
func (m Metadata) GetName() string { return m.Name }

// GetHelp returns the metric's help string.
func (m Metadata) GetHelp() string { return m.Help }

// GetMeasurement returns the metric's measurement.
func (m Metadata) GetMeasurement() string { return m.Measurement }

// GetUnit returns the metric's unit.
func (m Metadata) GetUnit() Unit { return m.Unit }

// Iterable provides a method for synchronized access to interior objects.
type Iterable interface {
	// GetName returns the fully-qualified name of the metric.
	GetName() string
	// GetHelp returns the help text for the metric.
	GetHelp() string
	// Inspect calls the given closure with each contained item.
	Inspect(func(interface{}))
}

// PrometheusExportable is the standard interface for an individual metric
// that can be exported to prometheus.
type PrometheusExportable interface {
	GetName() string
	GetHelp() string
	// GetType returns the prometheus type enum for this metric.
	GetType() *prometheusgo.MetricType
	// ToPrometheusMetric returns a filled-in prometheus metric of the right
	// type for the given metric. It does not fill in labels.
	ToPrometheusMetric() *prometheusgo.Metric
}

// Struct can be implemented by the types of members of a metric container so
// that the members get automatically registered.
type Struct interface {
	MetricStruct()
}

// A Counter holds a single mutable atomic value.
type Counter struct {
	Metadata
	count atomic.Int64
}

var _ Iterable = (*Counter)(nil)
var _ PrometheusExportable = (*Counter)(nil)

// NewCounter creates a counter.
func NewCounter(metadata Metadata) *Counter {
	return &Counter{Metadata: metadata}
}

// Clear sets the counter to zero.
func (c *Counter) Clear() {
	c.count.Store(0)
}

// Inc atomically increments the counter by i. A negative i has no effect.
func (c *Counter) Inc(i int64) {
	if i < 0 {
		return
	}
	c.count.Add(i)
}

// Count returns the current value of the counter.
func (c *Counter) Count() int64 {
	return c.count.Load()
}

// GetType returns the prometheus type enum for this metric.
func (c *Counter) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_COUNTER.Enum()
}

// Inspect calls the given closure with itself.
func (c *Counter) Inspect(f func(interface{})) { f(c) }

// ToPrometheusMetric returns a filled-in prometheus metric of the right type.
func (c *Counter) ToPrometheusMetric() *prometheusgo.Metric {
	return &prometheusgo.Metric{
		Counter: &prometheusgo.Counter{Value: proto.Float64(float64(c.Count()))},
	}
}

// A Gauge atomically stores a single integer value.
type Gauge struct {
	Metadata
	value atomic.Int64
}

var _ Iterable = (*Gauge)(nil)
var _ PrometheusExportable = (*Gauge)(nil)

// NewGauge creates a Gauge.
func NewGauge(metadata Metadata) *Gauge {
	return &Gauge{Metadata: metadata}
}

// Update updates the gauge's value.
func (g *Gauge) Update(v int64) {
	g.value.Store(v)
}

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}

// Inc increments the gauge's value.
func (g *Gauge) Inc(i int64) {
	g.value.Add(i)
}

// Dec decrements the gauge's value.
func (g *Gauge) Dec(i int64) {
	g.value.Add(-i)
}

// GetType returns the prometheus type enum for this metric.
func (g *Gauge) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_GAUGE.Enum()
}

// Inspect calls the given closure with itself.
func (g *Gauge) Inspect(f func(interface{})) { f(g) }

// ToPrometheusMetric returns a filled-in prometheus metric of the right type.
func (g *Gauge) ToPrometheusMetric() *prometheusgo.Metric {
	return &prometheusgo.Metric{
		Gauge: &prometheusgo.Gauge{Value: proto.Float64(float64(g.Value()))},
	}
}

// HistogramMode controls the exported representation of a histogram.
type HistogramMode byte

const (
	// HistogramModePrometheus exports the histogram as cumulative prometheus
	// buckets.
	HistogramModePrometheus HistogramMode = iota + 1
)

// HistogramOptions are the options passed to NewHistogram.
type HistogramOptions struct {
	// Metadata is the metric Metadata associated with the histogram.
	Metadata Metadata
	// Duration is the total duration of all windows in the histogram; it is
	// advisory and retained for operator documentation.
	Duration time.Duration
	// BucketConfig defines the histogram's bucket boundaries.
	BucketConfig BucketConfig
	// Mode defines the exported representation.
	Mode HistogramMode
}

// IHistogram is an interface that is implemented by Histogram.
type IHistogram interface {
	Iterable
	PrometheusExportable

	RecordValue(n int64)
	TotalCount() int64
	TotalSum() float64
	Mean() float64
}

// A Histogram records observed values into exponential buckets backed by a
// prometheus histogram.
type Histogram struct {
	Metadata
	windowDuration time.Duration
	cum            prometheus.Histogram
}

var _ IHistogram = (*Histogram)(nil)

// NewHistogram initializes a given Histogram.
func NewHistogram(opt HistogramOptions) *Histogram {
	if opt.Mode != HistogramModePrometheus {
		panic("unsupported histogram mode")
	}
	return &Histogram{
		Metadata:       opt.Metadata,
		windowDuration: opt.Duration,
		cum: prometheus.NewHistogram(prometheus.HistogramOpts{
			Buckets: opt.BucketConfig.GetBucketsFromBucketConfig(),
		}),
	}
}

// RecordValue adds the given value to the histogram.
func (h *Histogram) RecordValue(n int64) {
	h.cum.Observe(float64(n))
}

// GetType returns the prometheus type enum for this metric.
func (h *Histogram) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_HISTOGRAM.Enum()
}

// Inspect calls the given closure with itself.
func (h *Histogram) Inspect(f func(interface{})) { f(h) }

// ToPrometheusMetric returns a filled-in prometheus metric of the right type.
func (h *Histogram) ToPrometheusMetric() *prometheusgo.Metric {
	m := &prometheusgo.Metric{}
	if err := h.cum.Write(m); err != nil {
		panic(err)
	}
	return m
}

// TotalCount returns the number of recorded observations.
func (h *Histogram) TotalCount() int64 {
	return int64(h.ToPrometheusMetric().Histogram.GetSampleCount())
}

// TotalSum returns the sum of all recorded observations.
func (h *Histogram) TotalSum() float64 {
	return h.ToPrometheusMetric().Histogram.GetSampleSum()
}

// Mean returns the arithmetic mean of recorded observations, or zero when
// nothing has been recorded.
func (h *Histogram) Mean() float64 {
	pm := h.ToPrometheusMetric().Histogram
	if pm.GetSampleCount() == 0 {
		return 0
	}
	return pm.GetSampleSum() / float64(pm.GetSampleCount())
}
