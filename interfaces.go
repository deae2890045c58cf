package npunvme

import "context"

// Stream represents an accelerator-side asynchronous copy handle that can be
// polled for completion instead of blocking on the copy call. The engine's
// scheduler drives only the synchronous CopyToHost/CopyFromHost; it does not
// call the Async methods or poll a Stream.
type Stream interface {
	// Wait blocks until the outstanding copy on this stream completes.
	Wait(ctx context.Context) error

	// Poll reports whether the outstanding copy has completed without
	// blocking. A false done with a nil error means "still in flight".
	Poll() (done bool, err error)
}

// Accelerator is the external collaborator that owns NPU device memory and
// the copy primitives that move bytes between it and pinned host buffers.
// Device selection and runtime bring-up are out of scope; an Accelerator
// value arrives already bound to one device.
type Accelerator interface {
	// CopyFromHost copies size bytes from staging into device memory at
	// devicePtr, blocking until the copy completes. Used for stage A' of a
	// read batch (host-to-device).
	CopyFromHost(ctx context.Context, staging []byte, devicePtr uintptr, size int64) error

	// CopyToHost copies size bytes from device memory at devicePtr into
	// staging, blocking until the copy completes. Used for stage A of a
	// write batch (device-to-host).
	CopyToHost(ctx context.Context, devicePtr uintptr, staging []byte, size int64) error

	// CopyToHostAsync starts a non-blocking device-to-host copy and returns
	// a Stream that can be polled. Implementations that only support
	// synchronous copies may perform the copy inline and return a Stream
	// that is already done.
	CopyToHostAsync(ctx context.Context, devicePtr uintptr, staging []byte, size int64) (Stream, error)

	// CopyFromHostAsync is the async counterpart of CopyFromHost.
	CopyFromHostAsync(ctx context.Context, staging []byte, devicePtr uintptr, size int64) (Stream, error)
}

// Geometry describes the addressable shape of an attached NVMe namespace,
// as discovered by the device-geometry probe.
type Geometry struct {
	LogicalBlockSize int64
	TotalBlocks      int64
	MaxTransferBytes int64
}

// NVMeController is the external collaborator that owns a probed, attached
// NVMe namespace and its I/O queue pair. Controller enumeration/attach
// itself is out of scope; an NVMeController value arrives already attached.
type NVMeController interface {
	// Geometry returns the namespace geometry discovered at attach time.
	Geometry() Geometry

	// AllocQueuePair allocates the single I/O queue pair this engine
	// instance will use for the lifetime of the controller handle.
	AllocQueuePair(ctx context.Context, depth int) error

	// SubmitWrite submits an NVMe write of buf to the LBA range starting at
	// byte offset, tagging the completion with slot so the scheduler can
	// correlate it. Must not block past enqueueing the command.
	SubmitWrite(ctx context.Context, slot int, offset int64, buf []byte) error

	// SubmitRead is the read counterpart of SubmitWrite; buf is filled by
	// the completion once status is known.
	SubmitRead(ctx context.Context, slot int, offset int64, buf []byte) error

	// Flush forces any queued submissions out to the device in a single
	// syscall, returning the number of commands submitted.
	Flush() (int, error)

	// PollCompletions drains up to max ready completions from the queue
	// pair's completion queue without blocking.
	PollCompletions(max int) ([]CompletionStatus, error)

	// TranslateToHostPhysical confirms that a staging buffer's virtual
	// address is DMA-usable, returning the physical address NVMe commands
	// should reference. Called once per buffer during pool creation.
	TranslateToHostPhysical(virt uintptr) (phys uintptr, err error)

	// Detach releases the queue pair and detaches from the namespace.
	// Safe to call on a controller that never finished attaching.
	Detach() error
}

// CompletionStatus reports the outcome of one NVMe command submitted by the
// scheduler, correlated back to the slot that issued it.
type CompletionStatus struct {
	Slot    int
	Success bool
	Err     error
}

// HugepageEnvironment is the external collaborator responsible for
// process-wide hugepage bring-up. Init must be idempotent: a second engine
// instance in the same process calling Init again is a no-op, not an error.
type HugepageEnvironment interface {
	Init() error
}

// Logger is the minimal logging surface the engine calls into. A nil Logger
// in EngineConfig silences the engine's own messages; see
// EngineConfig.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives per-batch metrics callbacks. Implementations must be
// safe to call from the engine's single scheduler thread only; no
// concurrent calls are made.
type Observer interface {
	ObserveCopy(direction Direction, bytes uint64, latencyNs uint64, success bool)
	ObserveStorage(direction Direction, bytes uint64, latencyNs uint64, success bool)
	ObserveBatch(direction Direction, chunks int, errors int, latencyNs uint64)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCopy(Direction, uint64, uint64, bool)    {}
func (NoOpObserver) ObserveStorage(Direction, uint64, uint64, bool) {}
func (NoOpObserver) ObserveBatch(Direction, int, int, uint64)       {}

var _ Observer = (*NoOpObserver)(nil)
