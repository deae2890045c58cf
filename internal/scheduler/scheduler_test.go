package scheduler

import (
	"context"
	"fmt"
	"testing"
)

type fakeAccelerator struct {
	npuMem map[uintptr][]byte
}

func newFakeAccelerator() *fakeAccelerator {
	return &fakeAccelerator{npuMem: map[uintptr][]byte{}}
}

func (f *fakeAccelerator) CopyFromDevice(ctx context.Context, npuPtr uintptr, staging []byte, size int64) error {
	src, ok := f.npuMem[npuPtr]
	if !ok {
		return fmt.Errorf("no such accelerator pointer: %v", npuPtr)
	}
	copy(staging[:size], src[:size])
	return nil
}

func (f *fakeAccelerator) CopyToDevice(ctx context.Context, staging []byte, npuPtr uintptr, size int64) error {
	dst := make([]byte, size)
	copy(dst, staging[:size])
	f.npuMem[npuPtr] = dst
	return nil
}

type fakeStorage struct {
	data     []byte
	maxBytes int64
	pending  []StorageResult
	bufs     map[int][]byte
}

func newFakeStorage(size int64) *fakeStorage {
	return &fakeStorage{data: make([]byte, size), maxBytes: 1 << 20, bufs: map[int][]byte{}}
}

func (f *fakeStorage) SubmitWrite(ctx context.Context, slot int, offset int64, buf []byte) error {
	copy(f.data[offset:offset+int64(len(buf))], buf)
	f.pending = append(f.pending, StorageResult{Slot: slot, Success: true})
	return nil
}

func (f *fakeStorage) SubmitRead(ctx context.Context, slot int, offset int64, buf []byte) error {
	copy(buf, f.data[offset:offset+int64(len(buf))])
	f.pending = append(f.pending, StorageResult{Slot: slot, Success: true})
	return nil
}

func (f *fakeStorage) Flush() error { return nil }

func (f *fakeStorage) Poll(max int) ([]StorageResult, error) {
	n := len(f.pending)
	if n > max {
		n = max
	}
	out := f.pending[:n]
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeStorage) MaxTransferBytes() int64 { return f.maxBytes }

func newTestScheduler(depth int, chunkSize int64, accel *fakeAccelerator, storage *fakeStorage) *Scheduler {
	bufs := make([][]byte, depth)
	for i := range bufs {
		bufs[i] = make([]byte, chunkSize)
	}
	return New(Config{
		Depth:       depth,
		ChunkSize:   chunkSize,
		Accelerator: accel,
		Storage:     storage,
		StagingBuffer: func(slotIdx int, n int) []byte {
			return bufs[slotIdx][:n]
		},
	})
}

func TestWriteBatchRoundTrip(t *testing.T) {
	accel := newFakeAccelerator()
	accel.npuMem[0x1000] = []byte("hello world, this is npu data!!!")
	storage := newFakeStorage(4096)
	sched := newTestScheduler(2, 64, accel, storage)

	chunks := []Chunk{{AcceleratorPtr: 0x1000, Offset: 0, Size: 32}}
	results, err := sched.Run(context.Background(), DirectionWrite, chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("chunk 0: %v", results[0].Err)
	}
	if string(storage.data[:32]) != "hello world, this is npu data!!!" {
		t.Fatalf("storage data mismatch: %q", storage.data[:32])
	}
}

func TestReadBatchRoundTrip(t *testing.T) {
	accel := newFakeAccelerator()
	storage := newFakeStorage(4096)
	copy(storage.data, []byte("round trip read data from nvme!!"))
	sched := newTestScheduler(2, 64, accel, storage)

	chunks := []Chunk{{AcceleratorPtr: 0x2000, Offset: 0, Size: 32}}
	results, err := sched.Run(context.Background(), DirectionRead, chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("chunk 0: %v", results[0].Err)
	}
	if string(accel.npuMem[0x2000]) != "round trip read data from nvme!!" {
		t.Fatalf("accelerator data mismatch: %q", accel.npuMem[0x2000])
	}
}

func TestHeterogeneousChunksPipeline(t *testing.T) {
	accel := newFakeAccelerator()
	accel.npuMem[0x100] = make([]byte, 4096)
	accel.npuMem[0x200] = make([]byte, 4096)
	accel.npuMem[0x300] = make([]byte, 4096)
	storage := newFakeStorage(16384)
	sched := newTestScheduler(2, 4096, accel, storage)

	chunks := []Chunk{
		{AcceleratorPtr: 0x100, Offset: 0, Size: 512},
		{AcceleratorPtr: 0x200, Offset: 4096, Size: 4096},
		{AcceleratorPtr: 0x300, Offset: 8192, Size: 2048},
	}
	results, err := sched.Run(context.Background(), DirectionWrite, chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("chunk %d: %v", i, r.Err)
		}
	}
}

func TestOversizeChunkRejectedWithoutClaimingSlot(t *testing.T) {
	accel := newFakeAccelerator()
	storage := newFakeStorage(4096)
	sched := newTestScheduler(1, 64, accel, storage)

	chunks := []Chunk{{AcceleratorPtr: 0x1, Offset: 0, Size: 128}}
	results, err := sched.Run(context.Background(), DirectionWrite, chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err == nil {
		t.Fatalf("expected oversize chunk to be rejected")
	}
	if !sched.freeSlots.Full() {
		t.Fatalf("expected no slot to be claimed for a rejected chunk")
	}
}

func TestDepthOnePipelineManyChunks(t *testing.T) {
	accel := newFakeAccelerator()
	storage := newFakeStorage(64 * 4096)
	const n = 64
	chunks := make([]Chunk, n)
	for i := 0; i < n; i++ {
		ptr := uintptr(0x10000 + i*0x100)
		accel.npuMem[ptr] = make([]byte, 4096)
		chunks[i] = Chunk{AcceleratorPtr: ptr, Offset: int64(i * 4096), Size: 4096}
	}
	sched := newTestScheduler(1, 4096, accel, storage)

	results, err := sched.Run(context.Background(), DirectionWrite, chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("chunk %d: %v", i, r.Err)
		}
	}
}
