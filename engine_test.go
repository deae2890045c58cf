package npunvme

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, depth int, chunkSize int64, mediaBytes int64) (*Engine, *FakeAccelerator, *FakeNVMeController) {
	t.Helper()
	accel := NewFakeAccelerator()
	storage := NewFakeNVMeController(mediaBytes, 512, chunkSize)
	cfg := DefaultEngineConfig("0000:01:00.0", 0)
	cfg.PipelineDepth = depth
	cfg.ChunkSize = chunkSize

	e, err := Init(context.Background(), cfg, accel, storage, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Cleanup(context.Background()) })
	return e, accel, storage
}

func fill(size int, b byte) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = b
	}
	return out
}

// TestThreeHeterogeneousChunksSmokeTest mirrors the canonical smoke test: a
// write then a read of differently-sized chunks, each with its own fill
// pattern, verifying every byte round-trips.
func TestThreeHeterogeneousChunksSmokeTest(t *testing.T) {
	e, accel, _ := newTestEngine(t, 2, 4096, 64*1024)

	items := []Item{
		{AcceleratorPtr: 0x1000, Offset: 0, Size: 4096},
		{AcceleratorPtr: 0x2000, Offset: 4096, Size: 2048},
		{AcceleratorPtr: 0x3000, Offset: 6144, Size: 1024},
	}
	patterns := []byte{0x11, 0x22, 0x33}
	for i, item := range items {
		accel.Seed(item.AcceleratorPtr, fill(int(item.Size), patterns[i]))
	}

	_, err := e.WriteBatch(context.Background(), items)
	require.NoError(t, err)

	for i, item := range items {
		accel.Seed(item.AcceleratorPtr, make([]byte, item.Size)) // zero the "device memory"
		_ = i
	}

	_, err = e.ReadBatch(context.Background(), items)
	require.NoError(t, err)

	for i, item := range items {
		got := accel.Read(item.AcceleratorPtr)
		require.Equal(t, fill(int(item.Size), patterns[i]), got, "chunk %d", i)
	}
}

// TestSingleFourKiBChunkAtLBAZero mirrors scenario 2: a single 4KiB write
// and read-back of a linearly increasing word pattern.
func TestSingleFourKiBChunkAtLBAZero(t *testing.T) {
	e, accel, _ := newTestEngine(t, 1, 4096, 64*1024)

	data := make([]byte, 4096)
	v := uint32(0x12345678)
	for i := 0; i < len(data); i += 4 {
		data[i] = byte(v)
		data[i+1] = byte(v >> 8)
		data[i+2] = byte(v >> 16)
		data[i+3] = byte(v >> 24)
		v++
	}
	accel.Seed(0x5000, data)

	item := Item{AcceleratorPtr: 0x5000, Offset: 0, Size: 4096}
	_, err := e.WriteBatch(context.Background(), []Item{item})
	require.NoError(t, err)

	accel.Seed(0x5000, make([]byte, 4096))
	_, err = e.ReadBatch(context.Background(), []Item{item})
	require.NoError(t, err)
	require.Equal(t, data, accel.Read(0x5000))
}

// TestDepthOnePipelineManyChunks mirrors scenario 3, scaled down: a
// depth-1 engine still satisfies the round-trip property across many
// chunks.
func TestDepthOnePipelineManyChunks(t *testing.T) {
	const n = 32
	e, accel, _ := newTestEngine(t, 1, 4096, n*4096)

	items := make([]Item, n)
	for i := 0; i < n; i++ {
		ptr := uintptr(0x10000 + i*0x1000)
		items[i] = Item{AcceleratorPtr: ptr, Offset: int64(i * 4096), Size: 4096}
		accel.Seed(ptr, fill(4096, byte(i)))
	}

	_, err := e.WriteBatch(context.Background(), items)
	require.NoError(t, err)

	for i := range items {
		accel.Seed(items[i].AcceleratorPtr, make([]byte, 4096))
	}
	_, err = e.ReadBatch(context.Background(), items)
	require.NoError(t, err)

	for i, item := range items {
		require.Equal(t, fill(4096, byte(i)), accel.Read(item.AcceleratorPtr), "chunk %d", i)
	}
}

// TestErrorInjectionSizeZero mirrors scenario 4: a zero-size item fails but
// its siblings still complete.
func TestErrorInjectionSizeZero(t *testing.T) {
	e, accel, storage := newTestEngine(t, 2, 4096, 64*1024)

	accel.Seed(0x100, fill(4096, 0xAA))
	accel.Seed(0x300, fill(4096, 0xBB))

	items := []Item{
		{AcceleratorPtr: 0x100, Offset: 0, Size: 4096},
		{AcceleratorPtr: 0x200, Offset: 4096, Size: 0},
		{AcceleratorPtr: 0x300, Offset: 8192, Size: 4096},
	}
	results, err := e.WriteBatch(context.Background(), items)
	require.Error(t, err, "expected aggregate batch failure")

	var sawSizeZeroFailure, sawItem0Success, sawItem2Success bool
	for _, r := range results {
		switch r.ItemIndex {
		case 0:
			sawItem0Success = r.Err == nil
		case 1:
			sawSizeZeroFailure = r.Err != nil
		case 2:
			sawItem2Success = r.Err == nil
		}
	}
	require.True(t, sawSizeZeroFailure)
	require.True(t, sawItem0Success)
	require.True(t, sawItem2Success)
	_ = storage
}

// TestErrorInjectionOffsetPastEndOfDevice mirrors scenario 5: a chunk whose
// range exceeds device capacity fails with ErrCapacity; siblings succeed.
func TestErrorInjectionOffsetPastEndOfDevice(t *testing.T) {
	e, accel, _ := newTestEngine(t, 2, 4096, 8192) // only 8KiB of media

	accel.Seed(0x100, fill(4096, 0x01))
	accel.Seed(0x200, fill(4096, 0x02))

	items := []Item{
		{AcceleratorPtr: 0x100, Offset: 0, Size: 4096},
		{AcceleratorPtr: 0x200, Offset: 8192, Size: 4096}, // starting LBA already at device capacity
	}
	results, err := e.WriteBatch(context.Background(), items)
	require.Error(t, err)

	require.Nil(t, results[0].Err)
	require.NotNil(t, results[1].Err)
	require.True(t, IsKind(results[1].Err, ErrCapacity))
}

// TestWriteBatchEmptyIsNoOp covers writeBatch(n=0) being a no-op success.
func TestWriteBatchEmptyIsNoOp(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, 4096, 8192)
	results, err := e.WriteBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, results)
}

// TestItemLargerThanMaxTransferIsSliced covers an item larger than the
// engine's effective max transfer being split into multiple chunks rather
// than rejected.
func TestItemLargerThanMaxTransferIsSliced(t *testing.T) {
	e, accel, _ := newTestEngine(t, 2, 4096, 64*1024)
	accel.Seed(0x9000, fill(4096*3, 0x7E))

	item := Item{AcceleratorPtr: 0x9000, Offset: 0, Size: 4096 * 3}
	results, err := e.WriteBatch(context.Background(), []Item{item})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}

func TestHugepageInitIsIdempotentAcrossEngines(t *testing.T) {
	hp := &FakeHugepageEnvironment{}
	accel1 := NewFakeAccelerator()
	storage1 := NewFakeNVMeController(8192, 512, 4096)
	cfg := DefaultEngineConfig("0000:01:00.0", 0)

	e1, err := Init(context.Background(), cfg, accel1, storage1, hp)
	require.NoError(t, err)
	defer e1.Cleanup(context.Background())

	accel2 := NewFakeAccelerator()
	storage2 := NewFakeNVMeController(8192, 512, 4096)
	e2, err := Init(context.Background(), cfg, accel2, storage2, hp)
	require.NoError(t, err)
	defer e2.Cleanup(context.Background())

	require.Equal(t, 1, hp.Calls, "hugepage Init must run once per process regardless of engine count")
}
