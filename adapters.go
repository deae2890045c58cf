package npunvme

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/wangYzh0912/npu-nvme/internal/scheduler"
)

// bufferAddr returns the virtual address of a staging buffer's backing
// array, for the one-time DMA-usability check at pool creation.
func bufferAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// accelAdapter narrows the public, async-capable Accelerator interface down
// to the synchronous two-method shape internal/scheduler drives. The
// engine starts with the synchronous copy mode for correctness, per the
// dual stage-A design note; wiring the async Stream path through the
// scheduler is left for a follow-up once an event-driven completion test
// scenario exists.
type accelAdapter struct {
	a        Accelerator
	observer Observer
}

// CopyFromDevice is only ever invoked as stage A of a write batch
// (device-to-host), so its observations are always tagged DirectionWrite.
func (s *accelAdapter) CopyFromDevice(ctx context.Context, npuPtr uintptr, staging []byte, size int64) error {
	start := time.Now()
	err := s.a.CopyToHost(ctx, npuPtr, staging, size)
	s.observer.ObserveCopy(DirectionWrite, uint64(size), uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// CopyToDevice is only ever invoked as the closing stage of a read batch
// (host-to-device), so its observations are always tagged DirectionRead.
func (s *accelAdapter) CopyToDevice(ctx context.Context, staging []byte, npuPtr uintptr, size int64) error {
	start := time.Now()
	err := s.a.CopyFromHost(ctx, staging, npuPtr, size)
	s.observer.ObserveCopy(DirectionRead, uint64(size), uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// storageAdapter narrows the public NVMeController down to the shape
// internal/scheduler drives, translating CompletionStatus into
// scheduler.StorageResult.
type storageAdapter struct {
	c           NVMeController
	maxTransfer int64
	observer    Observer

	mu       sync.Mutex
	lastDir  Direction
	dispatch map[int]time.Time
}

func newStorageAdapter(c NVMeController, maxTransfer int64, observer Observer) *storageAdapter {
	return &storageAdapter{c: c, maxTransfer: maxTransfer, observer: observer, dispatch: make(map[int]time.Time)}
}

func (s *storageAdapter) SubmitWrite(ctx context.Context, slot int, offset int64, buf []byte) error {
	s.mu.Lock()
	s.lastDir = DirectionWrite
	s.dispatch[slot] = time.Now()
	s.mu.Unlock()
	return s.c.SubmitWrite(ctx, slot, offset, buf)
}

func (s *storageAdapter) SubmitRead(ctx context.Context, slot int, offset int64, buf []byte) error {
	s.mu.Lock()
	s.lastDir = DirectionRead
	s.dispatch[slot] = time.Now()
	s.mu.Unlock()
	return s.c.SubmitRead(ctx, slot, offset, buf)
}

func (s *storageAdapter) Flush() error {
	_, err := s.c.Flush()
	return err
}

func (s *storageAdapter) Poll(max int) ([]scheduler.StorageResult, error) {
	statuses, err := s.c.PollCompletions(max)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	dir := s.lastDir
	s.mu.Unlock()

	out := make([]scheduler.StorageResult, len(statuses))
	for i, st := range statuses {
		out[i] = scheduler.StorageResult{Slot: st.Slot, Success: st.Success, Err: st.Err}

		s.mu.Lock()
		submitted, ok := s.dispatch[st.Slot]
		if ok {
			delete(s.dispatch, st.Slot)
		}
		s.mu.Unlock()
		var latencyNs uint64
		if ok {
			latencyNs = uint64(time.Since(submitted).Nanoseconds())
		}
		s.observer.ObserveStorage(dir, uint64(s.maxTransfer), latencyNs, st.Success)
	}
	return out, nil
}

func (s *storageAdapter) MaxTransferBytes() int64 {
	return s.maxTransfer
}
