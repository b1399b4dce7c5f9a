// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogapply

import (
	"time"

	"github.com/cockroachdb/oplogrepl/pkg/util/metric"
)

var (
	metaApplyBatches = metric.Metadata{
		Name:        "repl.apply.batches",
		Help:        "Oplog batches applied",
		Measurement: "Batches",
		Unit:        metric.Unit_COUNT,
	}
	metaApplyOps = metric.Metadata{
		Name:        "repl.apply.ops",
		Help:        "Oplog entries applied",
		Measurement: "Entries",
		Unit:        metric.Unit_COUNT,
	}
	metaApplyRetries = metric.Metadata{
		Name:        "repl.apply.retries",
		Help:        "Batch applications retried after a failure",
		Measurement: "Retries",
		Unit:        metric.Unit_COUNT,
	}
	metaApplyBatchBytes = metric.Metadata{
		Name:        "repl.apply.batch_bytes",
		Help:        "Size of applied batches",
		Measurement: "Bytes",
		Unit:        metric.Unit_BYTES,
	}
	metaApplyBatchEntries = metric.Metadata{
		Name:        "repl.apply.batch_entries",
		Help:        "Number of entries in applied batches",
		Measurement: "Entries",
		Unit:        metric.Unit_COUNT,
	}
	metaApplyNanos = metric.Metadata{
		Name:        "repl.apply.apply_nanos",
		Help:        "Time spent applying a batch to storage",
		Measurement: "Nanoseconds",
		Unit:        metric.Unit_NANOSECONDS,
	}
	metaLastAppliedWallNanos = metric.Metadata{
		Name:        "repl.apply.last_applied_wall_nanos",
		Help:        "Wall time of the last applied position",
		Measurement: "Nanoseconds",
		Unit:        metric.Unit_TIMESTAMP_NS,
	}
	metaBufferSizeBytes = metric.Metadata{
		Name:        "repl.buffer.size_bytes",
		Help:        "Bytes buffered awaiting application",
		Measurement: "Bytes",
		Unit:        metric.Unit_BYTES,
	}
	metaBufferEntries = metric.Metadata{
		Name:        "repl.buffer.entries",
		Help:        "Entries buffered awaiting application",
		Measurement: "Entries",
		Unit:        metric.Unit_COUNT,
	}
	metaBufferMaxSizeBytes = metric.Metadata{
		Name:        "repl.buffer.max_size_bytes",
		Help:        "Configured buffer capacity, zero if unbounded",
		Measurement: "Bytes",
		Unit:        metric.Unit_BYTES,
	}
)

// Metrics instruments the apply loop and its buffer. The buffer gauges
// are sampled after each applied batch.
type Metrics struct {
	Batches              *metric.Counter
	Ops                  *metric.Counter
	Retries              *metric.Counter
	BatchBytes           metric.IHistogram
	BatchEntries         metric.IHistogram
	ApplyNanos           metric.IHistogram
	LastAppliedWallNanos *metric.Gauge
	BufferSizeBytes      *metric.Gauge
	BufferEntries        *metric.Gauge
	BufferMaxSizeBytes   *metric.Gauge
}

// MetricStruct implements the metric.Struct interface.
func (Metrics) MetricStruct() {}

var _ metric.Struct = Metrics{}

// MakeMetrics builds the applier metrics. histogramWindow is the window
// over which histogram quantiles are advertised.
func MakeMetrics(histogramWindow time.Duration) Metrics {
	return Metrics{
		Batches: metric.NewCounter(metaApplyBatches),
		Ops:     metric.NewCounter(metaApplyOps),
		Retries: metric.NewCounter(metaApplyRetries),
		BatchBytes: metric.NewHistogram(metric.HistogramOptions{
			Metadata:     metaApplyBatchBytes,
			Duration:     histogramWindow,
			BucketConfig: metric.DataSize16MBBuckets,
			Mode:         metric.HistogramModePrometheus,
		}),
		BatchEntries: metric.NewHistogram(metric.HistogramOptions{
			Metadata:     metaApplyBatchEntries,
			Duration:     histogramWindow,
			BucketConfig: metric.DataCount16MBuckets,
			Mode:         metric.HistogramModePrometheus,
		}),
		ApplyNanos: metric.NewHistogram(metric.HistogramOptions{
			Metadata:     metaApplyNanos,
			Duration:     histogramWindow,
			BucketConfig: metric.IOLatencyBuckets,
			Mode:         metric.HistogramModePrometheus,
		}),
		LastAppliedWallNanos: metric.NewGauge(metaLastAppliedWallNanos),
		BufferSizeBytes:      metric.NewGauge(metaBufferSizeBytes),
		BufferEntries:        metric.NewGauge(metaBufferEntries),
		BufferMaxSizeBytes:   metric.NewGauge(metaBufferMaxSizeBytes),
	}
}
