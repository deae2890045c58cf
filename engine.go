// Package npunvme implements a pipelined batch transfer engine that moves
// bulk data between an accelerator device's on-device memory and an NVMe
// namespace over a fixed pool of pinned, DMA-capable staging buffers.
//
// Neither device can DMA directly into the other, so every chunk makes two
// hops: an accelerator copy into (or out of) a staging buffer, and an NVMe
// command that DMAs the same buffer to (or from) device media. Engine
// overlaps these two stages across a configurable number of in-flight
// chunks; see internal/scheduler for the tick loop that drives it.
package npunvme

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wangYzh0912/npu-nvme/internal/constants"
	"github.com/wangYzh0912/npu-nvme/internal/logging"
	"github.com/wangYzh0912/npu-nvme/internal/scheduler"
	"github.com/wangYzh0912/npu-nvme/internal/stagingpool"
)

// classifySchedulerErr maps a scheduler-originated failure to the ErrorKind
// it actually represents, using the scheduler's own sentinel stage errors
// rather than assuming every pipeline failure is a media error.
func classifySchedulerErr(err error) ErrorKind {
	switch {
	case errors.Is(err, scheduler.ErrWatchdogTimeout):
		return ErrTimeout
	case errors.Is(err, scheduler.ErrAcceleratorCopy):
		return ErrCopy
	case errors.Is(err, scheduler.ErrSubmission):
		return ErrSubmission
	case errors.Is(err, scheduler.ErrInvalidChunk):
		return ErrConfiguration
	default:
		return ErrMedia
	}
}

var hugepageOnce sync.Once
var hugepageErr error

// initHugepages runs env.Init() exactly once per process, regardless of how
// many Engine instances are created; a second call is a no-op success.
func initHugepages(env HugepageEnvironment) error {
	if env == nil {
		return nil
	}
	hugepageOnce.Do(func() {
		hugepageErr = env.Init()
	})
	return hugepageErr
}

// Item is a caller request: an accelerator-memory base address, a storage
// byte offset, and a byte count. An item larger than the engine's effective
// max transfer is split into multiple chunks by WriteBatch/ReadBatch.
type Item struct {
	AcceleratorPtr uintptr
	Offset         int64
	Size           int64
}

// Engine is one (accelerator device, NVMe namespace) pairing: one I/O queue
// pair, one staging pool, one free-slot ring, one scheduler.
type Engine struct {
	cfg        EngineConfig
	accel      Accelerator
	controller NVMeController
	geometry   Geometry
	maxTransfer int64

	pool  *stagingpool.Pool
	sched *scheduler.Scheduler

	metrics  *Metrics
	observer Observer
	logger   Logger

	mu     sync.Mutex
	closed bool
}

// Init probes geometry, allocates the queue pair and staging pool, and
// returns a ready-to-use Engine. Failure at any step tears down whatever was
// already acquired; Init is atomic from the caller's perspective.
func Init(ctx context.Context, cfg EngineConfig, accel Accelerator, controller NVMeController, hugepages HugepageEnvironment) (*Engine, error) {
	if accel == nil || controller == nil {
		return nil, NewError("Init", ErrConfiguration, "accelerator and controller must both be non-nil")
	}
	cfg.PipelineDepth = clampPipelineDepth(cfg.PipelineDepth)
	if cfg.ChunkSize <= 0 || cfg.ChunkSize%constants.StagingBufferAlignment != 0 {
		return nil, NewError("Init", ErrConfiguration, fmt.Sprintf("chunk size %d must be a positive multiple of %d", cfg.ChunkSize, constants.StagingBufferAlignment))
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = constants.DefaultWatchdogTimeout
	}

	if err := initHugepages(hugepages); err != nil {
		return nil, WrapError("Init", ErrEnvironment, err)
	}

	if err := controller.AllocQueuePair(ctx, cfg.PipelineDepth); err != nil {
		return nil, WrapError("Init", ErrEnvironment, err)
	}

	geometry := controller.Geometry()
	maxTransfer := cfg.ChunkSize
	if geometry.MaxTransferBytes > 0 && geometry.MaxTransferBytes < maxTransfer {
		maxTransfer = geometry.MaxTransferBytes
	}

	pool, err := stagingpool.New(cfg.PipelineDepth, int(maxTransfer))
	if err != nil {
		controller.Detach()
		return nil, WrapError("Init", ErrEnvironment, err)
	}

	for i := 0; i < cfg.PipelineDepth; i++ {
		buf := pool.Buffer(i, int(maxTransfer))
		if _, err := controller.TranslateToHostPhysical(bufferAddr(buf)); err != nil {
			pool.Close()
			controller.Detach()
			return nil, WrapError("Init", ErrEnvironment, err)
		}
	}

	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}
	logger := cfg.Logger

	e := &Engine{
		cfg:         cfg,
		accel:       accel,
		controller:  controller,
		geometry:    geometry,
		maxTransfer: maxTransfer,
		pool:        pool,
		metrics:     metrics,
		observer:    observer,
		logger:      logger,
	}

	e.sched = scheduler.New(scheduler.Config{
		Depth:           cfg.PipelineDepth,
		ChunkSize:       maxTransfer,
		Accelerator:     &accelAdapter{a: accel, observer: observer},
		Storage:         newStorageAdapter(controller, maxTransfer, observer),
		Logger:          logging.Default(),
		StagingBuffer:   pool.Buffer,
		WatchdogTimeout: cfg.WatchdogTimeout,
	})

	return e, nil
}

// Cleanup frees the staging buffers, releases the queue pair, and detaches
// the controller. Safe to call on a partially initialized or already-closed
// Engine.
func (e *Engine) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.metrics.Stop()

	var firstErr error
	if e.pool != nil {
		if err := e.pool.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.controller != nil {
		if err := e.controller.Detach(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return WrapError("Cleanup", ErrEnvironment, firstErr)
	}
	return nil
}

// GetMaxTransfer returns the effective per-chunk transfer limit in bytes.
func (e *Engine) GetMaxTransfer() int64 {
	return e.maxTransfer
}

// Metrics returns the engine's metrics instance.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// WriteBatch writes each item's accelerator-memory contents to the
// corresponding storage offset. Chunks that fail validation or the pipeline
// are recorded in the returned BatchError; chunks that succeed still land
// on media even when sibling chunks fail.
func (e *Engine) WriteBatch(ctx context.Context, items []Item) ([]ChunkResult, error) {
	return e.runBatch(ctx, DirectionWrite, items)
}

// ReadBatch reads each item's storage range into the corresponding
// accelerator-memory address.
func (e *Engine) ReadBatch(ctx context.Context, items []Item) ([]ChunkResult, error) {
	return e.runBatch(ctx, DirectionRead, items)
}

// ChunkResult reports the outcome of one chunk sliced from an Item.
type ChunkResult struct {
	ItemIndex   int
	BufferIndex int
	Err         error
	CopyMicros  int64
	StorageMicros int64
}

type preparedChunk struct {
	scheduler.Chunk
	itemIndex   int
	bufferIndex int
}

// sliceItems peels each item into chunks of at most maxTransfer bytes,
// validating alignment and capacity against the probed geometry. op names
// the batch operation in the errors of rejected chunks.
func (e *Engine) sliceItems(op string, items []Item) ([]preparedChunk, []ChunkResult) {
	var prepared []preparedChunk
	var rejected []ChunkResult
	blockSize := e.geometry.LogicalBlockSize
	if blockSize <= 0 {
		blockSize = constants.DefaultLogicalBlockSize
	}

	for itemIdx, item := range items {
		if item.Size <= 0 {
			rejected = append(rejected, ChunkResult{ItemIndex: itemIdx, Err: NewSlotError(op, -1, ErrConfiguration, "item size must be > 0")})
			continue
		}
		if item.Offset%blockSize != 0 {
			rejected = append(rejected, ChunkResult{ItemIndex: itemIdx, Err: NewSlotError(op, -1, ErrConfiguration, "item offset must be block-aligned")})
			continue
		}
		remaining := item.Size
		consumed := int64(0)
		bufferIdx := 0
		for remaining > 0 {
			chunkSize := remaining
			if chunkSize > e.maxTransfer {
				chunkSize = e.maxTransfer
			}
			offset := item.Offset + consumed
			if e.geometry.TotalBlocks > 0 {
				lba := offset / blockSize
				nblocks := (chunkSize + blockSize - 1) / blockSize
				if lba+nblocks > e.geometry.TotalBlocks {
					rejected = append(rejected, ChunkResult{ItemIndex: itemIdx, BufferIndex: bufferIdx, Err: NewSlotError(op, -1, ErrCapacity, "chunk range exceeds device capacity")})
					break
				}
			}
			prepared = append(prepared, preparedChunk{
				Chunk:       scheduler.Chunk{AcceleratorPtr: item.AcceleratorPtr + uintptr(consumed), Offset: offset, Size: chunkSize},
				itemIndex:   itemIdx,
				bufferIndex: bufferIdx,
			})
			consumed += chunkSize
			remaining -= chunkSize
			bufferIdx++
		}
	}
	return prepared, rejected
}

func (e *Engine) runBatch(ctx context.Context, dir Direction, items []Item) ([]ChunkResult, error) {
	start := time.Now()
	if len(items) == 0 {
		return nil, nil
	}

	prepared, rejected := e.sliceItems(dir.String()+"Batch", items)
	chunks := make([]scheduler.Chunk, len(prepared))
	for i, p := range prepared {
		chunks[i] = p.Chunk
	}

	schedDir := scheduler.DirectionWrite
	if dir == DirectionRead {
		schedDir = scheduler.DirectionRead
	}

	schedResults, err := e.sched.Run(ctx, schedDir, chunks)
	if err != nil {
		return nil, WrapError(dir.String()+"Batch", ErrSubmission, err)
	}

	results := make([]ChunkResult, 0, len(prepared)+len(rejected))
	var failures []*Error
	for i, r := range schedResults {
		p := prepared[i]
		cr := ChunkResult{ItemIndex: p.itemIndex, BufferIndex: p.bufferIndex, Err: r.Err}
		if r.Err != nil {
			failures = append(failures, WrapError(dir.String()+"Batch", classifySchedulerErr(r.Err), r.Err))
		}
		results = append(results, cr)
	}
	for _, rej := range rejected {
		results = append(results, rej)
		if ferr, ok := rej.Err.(*Error); ok {
			failures = append(failures, ferr)
		}
	}

	e.observer.ObserveBatch(dir, len(results), len(failures), uint64(time.Since(start).Nanoseconds()))
	if e.cfg.EnableProfiling {
		if werr := writeProfile(dir, results); werr != nil && e.logger != nil {
			e.logger.Printf("npunvme: profiling write failed: %v", werr)
		}
	}

	return results, NewBatchError(dir.String()+"Batch", failures).asError()
}

// asError adapts a possibly-nil *BatchError to the error interface so
// callers can compare the return value against nil directly.
func (b *BatchError) asError() error {
	if b == nil {
		return nil
	}
	return b
}
