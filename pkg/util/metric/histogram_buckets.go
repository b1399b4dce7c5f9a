// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import "github.com/prometheus/client_golang/prometheus"

// BucketConfig describes the buckets of a histogram, deterministically
// generated from a [min, max] range and a bucket count.
type BucketConfig struct {
	min   float64
	max   float64
	count int
}

// GetBucketsFromBucketConfig generates the exponential bucket boundaries for
// the config.
func (b BucketConfig) GetBucketsFromBucketConfig() []float64 {
	return prometheus.ExponentialBucketsRange(b.min, b.max, b.count)
}

var (
	// IOLatencyBuckets are prometheus histogram buckets suitable for a
	// histogram that records a quantity (nanosecond-denominated) in which
	// most measurements resemble those of typical disk latencies, i.e. which
	// are in the micro- and millisecond range during normal operation.
	IOLatencyBuckets = BucketConfig{
		min:   10e3, // 10µs
		max:   10e9, // 10s
		count: 60,
	}

	// DataSize16MBBuckets are prometheus histogram buckets suitable for a
	// histogram that records a quantity that is a size (byte-denominated)
	// in which most measurements are in the kB to MB range during normal
	// operation.
	DataSize16MBBuckets = BucketConfig{
		min:   1e3,     // 1kB
		max:   16384e3, // 16MB
		count: 15,
	}

	// DataCount16MBuckets are prometheus histogram buckets suitable for a
	// histogram that records a quantity that is a count (unit-denominated)
	// in which most measurements are in the 1 to 16M range during normal
	// operation.
	DataCount16MBuckets = BucketConfig{
		min:   1,
		max:   16e6,
		count: 15,
	}
)
