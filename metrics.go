package npunvme

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// directionMetrics holds the counters for one transfer direction (write or
// read), split across the copy stage and the storage stage so a caller can
// see which side of the pipeline a slowdown lives in.
type directionMetrics struct {
	copyOps        atomic.Uint64
	copyBytes      atomic.Uint64
	copyErrors     atomic.Uint64
	copyLatencyNs  atomic.Uint64

	storageOps       atomic.Uint64
	storageBytes     atomic.Uint64
	storageErrors    atomic.Uint64
	storageLatencyNs atomic.Uint64

	batches      atomic.Uint64
	batchChunks  atomic.Uint64
	batchErrors  atomic.Uint64
	latencyHist  [numLatencyBuckets]atomic.Uint64
}

// Metrics tracks performance and operational statistics for an Engine.
type Metrics struct {
	write directionMetrics
	read  directionMetrics

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) dir(d Direction) *directionMetrics {
	if d == DirectionRead {
		return &m.read
	}
	return &m.write
}

// RecordCopy records one stage-A (or stage-A') copy.
func (m *Metrics) RecordCopy(d Direction, bytes uint64, latencyNs uint64, success bool) {
	dm := m.dir(d)
	dm.copyOps.Add(1)
	if success {
		dm.copyBytes.Add(bytes)
	} else {
		dm.copyErrors.Add(1)
	}
	dm.copyLatencyNs.Add(latencyNs)
}

// RecordStorage records one stage-B NVMe submission/completion.
func (m *Metrics) RecordStorage(d Direction, bytes uint64, latencyNs uint64, success bool) {
	dm := m.dir(d)
	dm.storageOps.Add(1)
	if success {
		dm.storageBytes.Add(bytes)
	} else {
		dm.storageErrors.Add(1)
	}
	dm.storageLatencyNs.Add(latencyNs)
	m.recordHistogram(dm, latencyNs)
}

// RecordBatch records the outcome of one WriteBatch/ReadBatch call.
func (m *Metrics) RecordBatch(d Direction, chunks int, errs int, latencyNs uint64) {
	dm := m.dir(d)
	dm.batches.Add(1)
	dm.batchChunks.Add(uint64(chunks))
	dm.batchErrors.Add(uint64(errs))
}

func (m *Metrics) recordHistogram(dm *directionMetrics, latencyNs uint64) {
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			dm.latencyHist[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// DirectionSnapshot is a point-in-time view of one direction's counters.
type DirectionSnapshot struct {
	CopyOps       uint64
	CopyBytes     uint64
	CopyErrors    uint64
	AvgCopyNs     uint64

	StorageOps    uint64
	StorageBytes  uint64
	StorageErrors uint64
	AvgStorageNs  uint64

	Batches     uint64
	BatchChunks uint64
	BatchErrors uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

func snapshotDirection(dm *directionMetrics) DirectionSnapshot {
	snap := DirectionSnapshot{
		CopyOps:       dm.copyOps.Load(),
		CopyBytes:     dm.copyBytes.Load(),
		CopyErrors:    dm.copyErrors.Load(),
		StorageOps:    dm.storageOps.Load(),
		StorageBytes:  dm.storageBytes.Load(),
		StorageErrors: dm.storageErrors.Load(),
		Batches:       dm.batches.Load(),
		BatchChunks:   dm.batchChunks.Load(),
		BatchErrors:   dm.batchErrors.Load(),
	}
	if snap.CopyOps > 0 {
		snap.AvgCopyNs = dm.copyLatencyNs.Load() / snap.CopyOps
	}
	if snap.StorageOps > 0 {
		snap.AvgStorageNs = dm.storageLatencyNs.Load() / snap.StorageOps
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = dm.latencyHist[i].Load()
	}
	return snap
}

// MetricsSnapshot is a point-in-time view of the whole engine's metrics.
type MetricsSnapshot struct {
	Write    DirectionSnapshot
	Read     DirectionSnapshot
	UptimeNs uint64
}

// Snapshot returns a point-in-time snapshot of the engine's metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Write: snapshotDirection(&m.write),
		Read:  snapshotDirection(&m.read),
	}
	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCopy(d Direction, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordCopy(d, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveStorage(d Direction, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordStorage(d, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveBatch(d Direction, chunks int, errs int, latencyNs uint64) {
	o.metrics.RecordBatch(d, chunks, errs, latencyNs)
}

var _ Observer = (*MetricsObserver)(nil)
