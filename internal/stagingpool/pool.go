// Package stagingpool allocates the pinned host staging buffers the engine
// copies accelerator data into (or out of) before/after the NVMe DMA stage.
// Buffers are anonymous, page-aligned mmap regions rather than GC-managed
// slices: the engine must hand stable addresses to NVMe passthrough commands
// across an entire tick, and a Go slice backed by the regular heap offers no
// such guarantee (the runtime is free to move nothing today, but giving the
// DMA path a heap pointer at all invites future breakage if that ever
// changes).
package stagingpool

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wangYzh0912/npu-nvme/internal/constants"
)

// Pool owns a contiguous, anonymously-mapped region split into depth equal
// buffers, each chunkSize bytes and StagingBufferAlignment-aligned.
type Pool struct {
	mem       []byte
	base      unsafe.Pointer
	totalSize int
	depth     int
	chunkSize int
}

// New allocates depth staging buffers of chunkSize bytes each via a single
// anonymous mmap call. chunkSize is rounded up to constants.StagingBufferAlignment.
func New(depth, chunkSize int) (*Pool, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("stagingpool: depth must be positive, got %d", depth)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("stagingpool: chunkSize must be positive, got %d", chunkSize)
	}

	aligned := alignUp(chunkSize, constants.StagingBufferAlignment)
	totalSize := aligned * depth

	mem, err := unix.Mmap(-1, 0, totalSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("stagingpool: mmap %d bytes failed: %w", totalSize, err)
	}

	return &Pool{
		mem:       mem,
		base:      unsafe.Pointer(&mem[0]),
		totalSize: totalSize,
		depth:     depth,
		chunkSize: aligned,
	}, nil
}

func alignUp(n, align int) int {
	if rem := n % align; rem != 0 {
		return n + (align - rem)
	}
	return n
}

// Depth returns the number of buffers in the pool.
func (p *Pool) Depth() int { return p.depth }

// ChunkSize returns the per-buffer capacity, after alignment rounding.
func (p *Pool) ChunkSize() int { return p.chunkSize }

// Buffer returns a byte slice view over staging buffer index slot, sized to
// n bytes (n must not exceed ChunkSize()). The returned slice aliases pinned
// memory: callers must not retain it past Close.
func (p *Pool) Buffer(slot, n int) []byte {
	if slot < 0 || slot >= p.depth {
		panic(fmt.Sprintf("stagingpool: slot %d out of range [0,%d)", slot, p.depth))
	}
	if n < 0 || n > p.chunkSize {
		panic(fmt.Sprintf("stagingpool: requested length %d exceeds chunk size %d", n, p.chunkSize))
	}
	offset := uintptr(slot) * uintptr(p.chunkSize)
	ptr := unsafe.Add(p.base, offset)
	return unsafe.Slice((*byte)(ptr), n)
}

// Close unmaps the pool's backing memory. It must be called only after all
// in-flight transfers referencing its buffers have completed; calls after
// the first are no-ops.
func (p *Pool) Close() error {
	if p.base == nil {
		return nil
	}
	err := unix.Munmap(p.mem)
	p.base = nil
	p.mem = nil
	if err != nil {
		return fmt.Errorf("stagingpool: munmap failed: %w", err)
	}
	return nil
}
