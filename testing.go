package npunvme

import (
	"context"
	"fmt"
	"sync"
)

// FakeAccelerator is an in-memory Accelerator for tests and examples: a map
// from device pointer to backing byte slice, standing in for NPU memory.
type FakeAccelerator struct {
	mu  sync.Mutex
	mem map[uintptr][]byte
}

// NewFakeAccelerator creates an empty FakeAccelerator.
func NewFakeAccelerator() *FakeAccelerator {
	return &FakeAccelerator{mem: make(map[uintptr][]byte)}
}

// Seed installs data at ptr so a subsequent read-then-copy sees it.
func (f *FakeAccelerator) Seed(ptr uintptr, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	f.mem[ptr] = buf
}

// Read returns a copy of whatever was last written to ptr.
func (f *FakeAccelerator) Read(ptr uintptr) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.mem[ptr]
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func (f *FakeAccelerator) CopyToHost(ctx context.Context, devicePtr uintptr, staging []byte, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.mem[devicePtr]
	if !ok {
		return fmt.Errorf("fake accelerator: no memory at %#x", devicePtr)
	}
	if int64(len(src)) < size {
		return fmt.Errorf("fake accelerator: region at %#x shorter than %d bytes", devicePtr, size)
	}
	copy(staging[:size], src[:size])
	return nil
}

func (f *FakeAccelerator) CopyFromHost(ctx context.Context, staging []byte, devicePtr uintptr, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dst := make([]byte, size)
	copy(dst, staging[:size])
	f.mem[devicePtr] = dst
	return nil
}

func (f *FakeAccelerator) CopyToHostAsync(ctx context.Context, devicePtr uintptr, staging []byte, size int64) (Stream, error) {
	err := f.CopyToHost(ctx, devicePtr, staging, size)
	return doneStream{err: err}, err
}

func (f *FakeAccelerator) CopyFromHostAsync(ctx context.Context, staging []byte, devicePtr uintptr, size int64) (Stream, error) {
	err := f.CopyFromHost(ctx, staging, devicePtr, size)
	return doneStream{err: err}, err
}

// doneStream is a Stream that is already complete, used by FakeAccelerator
// and by any Accelerator whose async path is actually synchronous.
type doneStream struct{ err error }

func (d doneStream) Wait(ctx context.Context) error  { return d.err }
func (d doneStream) Poll() (bool, error)              { return true, d.err }

var _ Accelerator = (*FakeAccelerator)(nil)
var _ Stream = doneStream{}

// FakeNVMeController is an in-memory NVMeController for tests and examples,
// backed by a single flat byte slice standing in for namespace media.
type FakeNVMeController struct {
	mu          sync.Mutex
	media       []byte
	blockSize   int64
	maxTransfer int64
	pending     []CompletionStatus
	detached    bool
}

// NewFakeNVMeController creates a FakeNVMeController over a namespace of
// totalBytes bytes with the given logical block size and transfer limit.
func NewFakeNVMeController(totalBytes int64, blockSize int64, maxTransfer int64) *FakeNVMeController {
	return &FakeNVMeController{
		media:       make([]byte, totalBytes),
		blockSize:   blockSize,
		maxTransfer: maxTransfer,
	}
}

func (c *FakeNVMeController) Geometry() Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Geometry{
		LogicalBlockSize: c.blockSize,
		TotalBlocks:      int64(len(c.media)) / c.blockSize,
		MaxTransferBytes: c.maxTransfer,
	}
}

func (c *FakeNVMeController) AllocQueuePair(ctx context.Context, depth int) error {
	return nil
}

func (c *FakeNVMeController) SubmitWrite(ctx context.Context, slot int, offset int64, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 || offset+int64(len(buf)) > int64(len(c.media)) {
		c.pending = append(c.pending, CompletionStatus{Slot: slot, Success: false, Err: NewError("SubmitWrite", ErrCapacity, "offset range exceeds media")})
		return nil
	}
	copy(c.media[offset:], buf)
	c.pending = append(c.pending, CompletionStatus{Slot: slot, Success: true})
	return nil
}

func (c *FakeNVMeController) SubmitRead(ctx context.Context, slot int, offset int64, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 || offset+int64(len(buf)) > int64(len(c.media)) {
		c.pending = append(c.pending, CompletionStatus{Slot: slot, Success: false, Err: NewError("SubmitRead", ErrCapacity, "offset range exceeds media")})
		return nil
	}
	copy(buf, c.media[offset:offset+int64(len(buf))])
	c.pending = append(c.pending, CompletionStatus{Slot: slot, Success: true})
	return nil
}

func (c *FakeNVMeController) Flush() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending), nil
}

func (c *FakeNVMeController) PollCompletions(max int) ([]CompletionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	if n > max {
		n = max
	}
	out := c.pending[:n]
	c.pending = c.pending[n:]
	return out, nil
}

func (c *FakeNVMeController) TranslateToHostPhysical(virt uintptr) (uintptr, error) {
	return virt, nil
}

func (c *FakeNVMeController) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	return nil
}

var _ NVMeController = (*FakeNVMeController)(nil)

// FakeHugepageEnvironment records how many times Init was called, for
// asserting the process-wide once-guard behavior in tests.
type FakeHugepageEnvironment struct {
	mu    sync.Mutex
	Calls int
}

func (h *FakeHugepageEnvironment) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Calls++
	return nil
}

var _ HugepageEnvironment = (*FakeHugepageEnvironment)(nil)
