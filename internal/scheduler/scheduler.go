// Package scheduler drives the two-stage pipeline that moves a batch of
// chunks between an accelerator-resident buffer and an NVMe namespace
// through a fixed set of pinned staging buffers. It owns the per-slot state
// machine (C4) and the tick loop that advances it (C5), generalized from the
// teacher's per-tag ublk state machine and its single-syscall completion
// batching discipline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wangYzh0912/npu-nvme/internal/constants"
	"github.com/wangYzh0912/npu-nvme/internal/logging"
	"github.com/wangYzh0912/npu-nvme/internal/ring"
)

// Direction distinguishes a write batch (accelerator -> NVMe) from a read
// batch (NVMe -> accelerator); it determines which stage runs first for
// each slot.
type Direction int

const (
	DirectionWrite Direction = iota
	DirectionRead
)

// SlotState is the per-slot lifecycle state. The two stages are always
// "accelerator copy" and "storage DMA"; Direction decides which one runs
// first for a given batch.
type SlotState int

const (
	SlotFree SlotState = iota
	SlotAcceleratorPending
	SlotAcceleratorDone
	SlotStoragePending
	SlotStorageDone
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotAcceleratorPending:
		return "accelerator_pending"
	case SlotAcceleratorDone:
		return "accelerator_done"
	case SlotStoragePending:
		return "storage_pending"
	case SlotStorageDone:
		return "storage_done"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Sentinel stage errors, wrapped around the underlying failure at the call
// site that produced it so a caller can classify a ChunkResult.Err via
// errors.Is without the scheduler needing to know about the engine's
// public ErrorKind taxonomy.
var (
	ErrInvalidChunk    = errors.New("scheduler: invalid chunk")
	ErrAcceleratorCopy = errors.New("scheduler: accelerator copy failed")
	ErrSubmission      = errors.New("scheduler: storage submission failed")
	ErrMedia           = errors.New("scheduler: storage completion reported failure")
	ErrWatchdogTimeout = errors.New("scheduler: watchdog timeout exceeded")
)

// wrapStage annotates err (or, if err is nil, just msg) with kind so callers
// can recover it with errors.Is.
func wrapStage(kind error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}

// Chunk describes one piece of a batch transfer: an accelerator-resident
// pointer and the NVMe-namespace byte range it pairs with.
type Chunk struct {
	AcceleratorPtr uintptr
	Offset         int64
	Size           int64
}

// Accelerator copies bytes between an accelerator-resident buffer and a
// pinned host staging buffer. Implementations must be safe to call from the
// scheduler's single driving goroutine; no concurrent calls are made.
type Accelerator interface {
	// CopyFromDevice copies size bytes starting at npuPtr into staging.
	CopyFromDevice(ctx context.Context, npuPtr uintptr, staging []byte, size int64) error
	// CopyToDevice copies size bytes from staging into npuPtr.
	CopyToDevice(ctx context.Context, staging []byte, npuPtr uintptr, size int64) error
}

// StorageResult is one storage-stage completion, keyed by the slot index
// that was passed to the matching SubmitRead/SubmitWrite.
type StorageResult struct {
	Slot    int
	Success bool
	Err     error
}

// NVMeController issues chunk-sized reads/writes against pinned staging
// buffers and reports their completions via Poll. The slot parameter passed
// to SubmitRead/SubmitWrite is how the scheduler recovers the originating
// slot; implementations must echo it back unmodified in the matching
// StorageResult.Slot.
type NVMeController interface {
	SubmitWrite(ctx context.Context, slot int, offset int64, buf []byte) error
	SubmitRead(ctx context.Context, slot int, offset int64, buf []byte) error
	Flush() error
	Poll(max int) ([]StorageResult, error)
	MaxTransferBytes() int64
}

// slot is the scheduler's bookkeeping record for one staging buffer. It is
// allocated once per Scheduler and reused across batches and across slots'
// worth of chunks within a batch; its address never changes, matching the
// teacher's discipline of keeping per-tag state in a pre-allocated,
// heap-stable array rather than a fresh struct per request.
type slot struct {
	state SlotState
	chunk Chunk
	index int // index into the current batch's chunk slice, -1 if idle
}

// Scheduler runs the dispatch/promote/submit/drain/recycle tick loop for one
// batch at a time.
type Scheduler struct {
	depth       int
	chunkSize   int64
	accel       Accelerator
	storage     NVMeController
	logger      *logging.Logger
	freeSlots   *ring.Ring
	slots       []slot
	stagingFn   func(slotIdx int, n int) []byte
	watchdog    time.Duration
}

// Config configures a Scheduler.
type Config struct {
	Depth       int
	ChunkSize   int64
	Accelerator Accelerator
	Storage     NVMeController
	Logger      *logging.Logger
	// StagingBuffer returns a byte slice view over staging buffer slotIdx,
	// sized to n bytes (n <= the pool's chunk size).
	StagingBuffer func(slotIdx int, n int) []byte
	// WatchdogTimeout bounds how long a single batch call may run before it
	// is aborted and drained. Zero uses constants.DefaultWatchdogTimeout.
	WatchdogTimeout time.Duration
}

// New creates a Scheduler with depth slots, each able to stage up to
// chunkSize bytes.
func New(cfg Config) *Scheduler {
	watchdog := cfg.WatchdogTimeout
	if watchdog <= 0 {
		watchdog = constants.DefaultWatchdogTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		depth:     cfg.Depth,
		chunkSize: cfg.ChunkSize,
		accel:     cfg.Accelerator,
		storage:   cfg.Storage,
		logger:    logger,
		freeSlots: ring.New(cfg.Depth),
		slots:     make([]slot, cfg.Depth),
		stagingFn: cfg.StagingBuffer,
		watchdog:  watchdog,
	}
}

// ChunkResult reports the per-chunk outcome of a batch transfer.
type ChunkResult struct {
	Index int
	Err   error
}

// Run drives chunks through the pipeline in direction dir until every chunk
// has either completed or failed, or the watchdog timeout elapses. It
// returns one ChunkResult per input chunk, in input order.
//
// Per-chunk validation failures (e.g. a chunk larger than the scheduler's
// chunk size) are recorded immediately without ever claiming a slot; such a
// chunk is left out of the pending set, so the loop never counts it among
// the chunks it still has to finish.
func (s *Scheduler) Run(ctx context.Context, dir Direction, chunks []Chunk) ([]ChunkResult, error) {
	for i := range s.slots {
		s.slots[i] = slot{index: -1}
	}
	s.freeSlots = ring.New(s.depth) // every slot free at the start of a batch

	results := make([]ChunkResult, len(chunks))
	pending := make([]int, 0, len(chunks)) // indices not yet dispatched
	for i, c := range chunks {
		if c.Size <= 0 || c.Size > s.chunkSize {
			msg := fmt.Sprintf("scheduler: chunk %d size %d exceeds limit %d", i, c.Size, s.chunkSize)
			results[i] = ChunkResult{Index: i, Err: wrapStage(ErrInvalidChunk, msg, nil)}
			continue
		}
		pending = append(pending, i)
	}

	remaining := len(pending)
	nextPending := 0
	deadline := time.Now().Add(s.watchdog)
	activeSlotChunk := make(map[int]int, s.depth) // slot -> chunk index

	for remaining > 0 {
		if time.Now().After(deadline) {
			for _, idx := range pending[nextPending:] {
				results[idx] = ChunkResult{Index: idx, Err: wrapStage(ErrWatchdogTimeout, "scheduler: watchdog timeout exceeded", nil)}
			}
			s.drainTimedOutSlots(ctx, activeSlotChunk, results)
			remaining = 0
			break
		}

		progressed := false

		// Step 1: dispatch stage A for every free slot with pending work.
		for !s.freeSlots.Empty() && nextPending < len(pending) {
			slotIdx, _ := s.freeSlots.Pop()
			chunkIdx := pending[nextPending]
			nextPending++
			c := chunks[chunkIdx]

			s.slots[slotIdx] = slot{chunk: c, index: chunkIdx}
			activeSlotChunk[slotIdx] = chunkIdx
			if err := s.dispatchStageA(ctx, dir, slotIdx); err != nil {
				results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: err}
				delete(activeSlotChunk, slotIdx)
				s.slots[slotIdx] = slot{index: -1}
				s.freeSlots.Push(slotIdx)
				remaining--
				continue
			}
			progressed = true
		}

		// Step 2: promote slots whose stage A finished synchronously
		// (accelerator copies in this design are synchronous calls) and
		// submit stage B for them.
		for slotIdx := range s.slots {
			st := &s.slots[slotIdx]
			if st.index < 0 {
				continue
			}
			if st.state == SlotAcceleratorDoneStateFor(dir) {
				if err := s.submitStageB(ctx, dir, slotIdx); err != nil {
					chunkIdx := st.index
					results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: err}
					delete(activeSlotChunk, slotIdx)
					*st = slot{index: -1}
					s.freeSlots.Push(slotIdx)
					remaining--
					continue
				}
				st.state = SlotStoragePending
				progressed = true
			}
		}

		if err := s.storage.Flush(); err != nil {
			return results, fmt.Errorf("scheduler: flush submissions: %w", err)
		}

		// Step 3: drain storage completions.
		completions, err := s.storage.Poll(s.depth)
		if err != nil {
			return results, fmt.Errorf("scheduler: poll completions: %w", err)
		}
		for _, comp := range completions {
			st := &s.slots[comp.Slot]
			if st.index < 0 || st.state != SlotStoragePending {
				continue // stale/duplicate completion; ignore
			}
			progressed = true
			if !comp.Success {
				chunkIdx := st.index
				results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: wrapStage(ErrMedia, "storage completion", comp.Err)}
				delete(activeSlotChunk, comp.Slot)
				*st = slot{index: -1}
				s.freeSlots.Push(comp.Slot)
				remaining--
				continue
			}
			st.state = SlotStorageDone

			if dir == DirectionWrite {
				// Storage was the second stage for a write: chunk is done.
				chunkIdx := st.index
				results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: nil}
				delete(activeSlotChunk, comp.Slot)
				*st = slot{index: -1}
				s.freeSlots.Push(comp.Slot)
				remaining--
				continue
			}

			// Read: storage was the first stage; now copy to the accelerator.
			if err := s.copyStageAForRead(ctx, comp.Slot); err != nil {
				chunkIdx := st.index
				results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: err}
				delete(activeSlotChunk, comp.Slot)
				*st = slot{index: -1}
				s.freeSlots.Push(comp.Slot)
				remaining--
				continue
			}
			chunkIdx := st.index
			results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: nil}
			delete(activeSlotChunk, comp.Slot)
			*st = slot{index: -1}
			s.freeSlots.Push(comp.Slot)
			remaining--
		}

		if !progressed {
			time.Sleep(constants.IdleGuardSleep)
		}
	}

	return results, nil
}

// drainTimedOutSlots abandons a batch after the watchdog fires while
// honoring the buffer-safety contract: a slot with no outstanding storage
// command is released immediately, but a slot with a real in-flight NVMe
// submission keeps its buffer until that submission's completion is
// observed, so the next batch can never recycle a buffer the device is
// still DMA'ing into or out of.
func (s *Scheduler) drainTimedOutSlots(ctx context.Context, activeSlotChunk map[int]int, results []ChunkResult) {
	for slotIdx, chunkIdx := range activeSlotChunk {
		st := &s.slots[slotIdx]
		results[chunkIdx] = ChunkResult{Index: chunkIdx, Err: wrapStage(ErrWatchdogTimeout, "scheduler: watchdog timeout exceeded", nil)}
		if st.state != SlotStoragePending {
			delete(activeSlotChunk, slotIdx)
			*st = slot{index: -1}
			s.freeSlots.Push(slotIdx)
		}
	}

	for len(activeSlotChunk) > 0 {
		if err := ctx.Err(); err != nil {
			s.logger.Printf("scheduler: watchdog drain abandoned, context canceled: %v", err)
			return
		}
		completions, err := s.storage.Poll(s.depth)
		if err != nil {
			s.logger.Printf("scheduler: poll during watchdog drain failed: %v", err)
			time.Sleep(constants.IdleGuardSleep)
			continue
		}
		drained := false
		for _, comp := range completions {
			if _, ok := activeSlotChunk[comp.Slot]; !ok {
				continue
			}
			delete(activeSlotChunk, comp.Slot)
			s.slots[comp.Slot] = slot{index: -1}
			s.freeSlots.Push(comp.Slot)
			drained = true
		}
		if !drained && len(activeSlotChunk) > 0 {
			time.Sleep(constants.IdleGuardSleep)
		}
	}
}

// SlotAcceleratorDoneStateFor returns the state that signals stage A has
// finished for the given direction and stage B should be submitted: for
// writes that's the accelerator copy completing (SlotAcceleratorDone); for
// reads, stage A is folded into the storage submission inside
// dispatchStageA, so this never matches a freshly-dispatched read slot and
// reads are instead advanced by the completion poll in Run.
func SlotAcceleratorDoneStateFor(dir Direction) SlotState {
	if dir == DirectionWrite {
		return SlotAcceleratorDone
	}
	return SlotStorageDone
}

// dispatchStageA performs the first stage of the pipeline for slotIdx: an
// accelerator copy for writes (synchronous), or, for reads, the storage read
// submission via submitStageB, leaving the slot in SlotStoragePending.
func (s *Scheduler) dispatchStageA(ctx context.Context, dir Direction, slotIdx int) error {
	st := &s.slots[slotIdx]
	if dir == DirectionRead {
		if err := s.submitStageB(ctx, dir, slotIdx); err != nil {
			return err
		}
		st.state = SlotStoragePending
		return nil
	}
	buf := s.stagingFn(slotIdx, int(st.chunk.Size))
	if err := s.accel.CopyFromDevice(ctx, st.chunk.AcceleratorPtr, buf, st.chunk.Size); err != nil {
		return wrapStage(ErrAcceleratorCopy, "accelerator copy-from-device", err)
	}
	st.state = SlotAcceleratorDone
	return nil
}

// submitStageB submits the storage DMA for slotIdx: a write for writes, a
// read for reads.
func (s *Scheduler) submitStageB(ctx context.Context, dir Direction, slotIdx int) error {
	st := &s.slots[slotIdx]
	buf := s.stagingFn(slotIdx, int(st.chunk.Size))
	var err error
	if dir == DirectionWrite {
		err = s.storage.SubmitWrite(ctx, slotIdx, st.chunk.Offset, buf)
	} else {
		err = s.storage.SubmitRead(ctx, slotIdx, st.chunk.Offset, buf)
	}
	if err != nil {
		return wrapStage(ErrSubmission, "storage submission", err)
	}
	return nil
}

// copyStageAForRead performs the accelerator copy that completes a read
// batch's chunk once its storage DMA has landed in the staging buffer.
func (s *Scheduler) copyStageAForRead(ctx context.Context, slotIdx int) error {
	st := &s.slots[slotIdx]
	buf := s.stagingFn(slotIdx, int(st.chunk.Size))
	if err := s.accel.CopyToDevice(ctx, buf, st.chunk.AcceleratorPtr, st.chunk.Size); err != nil {
		return wrapStage(ErrAcceleratorCopy, "accelerator copy-to-device", err)
	}
	return nil
}
