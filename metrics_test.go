package npunvme

import (
	"testing"
)

func TestMetricsInitialSnapshotIsZero(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	if snap.Write.CopyOps != 0 || snap.Read.CopyOps != 0 {
		t.Errorf("expected zero copy ops initially, got write=%d read=%d", snap.Write.CopyOps, snap.Read.CopyOps)
	}
}

func TestMetricsRecordCopyAndStorage(t *testing.T) {
	m := NewMetrics()

	m.RecordCopy(DirectionWrite, 4096, 10_000, true)
	m.RecordCopy(DirectionWrite, 4096, 20_000, false)
	m.RecordStorage(DirectionWrite, 4096, 30_000, true)

	snap := m.Snapshot()
	if snap.Write.CopyOps != 2 {
		t.Errorf("expected 2 copy ops, got %d", snap.Write.CopyOps)
	}
	if snap.Write.CopyBytes != 4096 {
		t.Errorf("expected 4096 copy bytes (only the successful one), got %d", snap.Write.CopyBytes)
	}
	if snap.Write.CopyErrors != 1 {
		t.Errorf("expected 1 copy error, got %d", snap.Write.CopyErrors)
	}
	if snap.Write.StorageOps != 1 {
		t.Errorf("expected 1 storage op, got %d", snap.Write.StorageOps)
	}
}

func TestMetricsDirectionsAreIndependent(t *testing.T) {
	m := NewMetrics()
	m.RecordCopy(DirectionWrite, 1024, 1_000, true)
	m.RecordCopy(DirectionRead, 2048, 1_000, true)

	snap := m.Snapshot()
	if snap.Write.CopyBytes != 1024 {
		t.Errorf("expected write copy bytes 1024, got %d", snap.Write.CopyBytes)
	}
	if snap.Read.CopyBytes != 2048 {
		t.Errorf("expected read copy bytes 2048, got %d", snap.Read.CopyBytes)
	}
}

func TestMetricsRecordBatch(t *testing.T) {
	m := NewMetrics()
	m.RecordBatch(DirectionRead, 3, 1, 5_000)

	snap := m.Snapshot()
	if snap.Read.Batches != 1 {
		t.Errorf("expected 1 batch, got %d", snap.Read.Batches)
	}
	if snap.Read.BatchChunks != 3 {
		t.Errorf("expected 3 batch chunks, got %d", snap.Read.BatchChunks)
	}
	if snap.Read.BatchErrors != 1 {
		t.Errorf("expected 1 batch error, got %d", snap.Read.BatchErrors)
	}
}

func TestMetricsObserverDelegates(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveCopy(DirectionWrite, 100, 1_000, true)
	obs.ObserveStorage(DirectionWrite, 100, 2_000, true)
	obs.ObserveBatch(DirectionWrite, 1, 0, 3_000)

	snap := m.Snapshot()
	if snap.Write.CopyOps != 1 || snap.Write.StorageOps != 1 || snap.Write.Batches != 1 {
		t.Errorf("expected observer calls to reach the underlying metrics, got %+v", snap.Write)
	}
}

func TestMetricsLatencyHistogramBucketing(t *testing.T) {
	m := NewMetrics()
	m.RecordStorage(DirectionWrite, 4096, 500, true)    // < 1us bucket boundary
	m.RecordStorage(DirectionWrite, 4096, 50_000, true) // falls in the 100us bucket

	snap := m.Snapshot()
	if snap.Write.LatencyHistogram[0] != 1 {
		t.Errorf("expected 1 sample in the 1us bucket, got %d", snap.Write.LatencyHistogram[0])
	}
	if snap.Write.LatencyHistogram[2] != 2 {
		t.Errorf("expected both samples counted cumulatively by the 100us bucket, got %d", snap.Write.LatencyHistogram[2])
	}
}
