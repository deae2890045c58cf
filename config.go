package npunvme

import (
	"time"

	"github.com/wangYzh0912/npu-nvme/internal/constants"
)

// Direction distinguishes a write batch (device-to-host-to-storage) from a
// read batch (storage-to-host-to-device).
type Direction int

const (
	DirectionWrite Direction = iota
	DirectionRead
)

func (d Direction) String() string {
	if d == DirectionRead {
		return "read"
	}
	return "write"
}

// EngineConfig parameterizes a single (accelerator, NVMe namespace) engine
// instance. One EngineConfig produces one Engine bound to one queue pair and
// one staging pool.
type EngineConfig struct {
	// PCIAddress identifies the NVMe controller to attach, in textual
	// domain:bus:device.function form.
	PCIAddress string

	// DeviceID selects which accelerator device to bind.
	DeviceID int

	// PipelineDepth is the number of staging buffers and therefore the
	// maximum number of chunks in flight. Clamped to [1, 16].
	PipelineDepth int

	// ChunkSize is the requested per-chunk staging buffer capacity in
	// bytes; must be a positive multiple of 4 KiB. The effective transfer
	// limit is min(ChunkSize, controller mdts limit).
	ChunkSize int64

	// EnableProfiling turns on per-chunk CSV timing output.
	EnableProfiling bool

	// WatchdogTimeout bounds the wall-clock time a single batch call may
	// run, measured from its start, before it aborts. Unified across both
	// batch directions; defaults to 30s if zero.
	WatchdogTimeout time.Duration

	// Logger receives the engine's own messages; nil disables them. The
	// scheduler logs through internal/logging's process-wide default
	// logger regardless of this setting.
	Logger Logger

	// Observer receives metrics callbacks; nil records them into the
	// engine's built-in Metrics (see Engine.Metrics). A non-nil Observer
	// replaces that recording.
	Observer Observer
}

// DefaultEngineConfig returns an EngineConfig for the given pci address and
// accelerator device id with sensible defaults applied.
func DefaultEngineConfig(pciAddress string, deviceID int) EngineConfig {
	return EngineConfig{
		PCIAddress:      pciAddress,
		DeviceID:        deviceID,
		PipelineDepth:   constants.DefaultPipelineDepth,
		ChunkSize:       constants.DefaultChunkSize,
		EnableProfiling: false,
		WatchdogTimeout: constants.DefaultWatchdogTimeout,
	}
}

// clampPipelineDepth enforces the [1, 16] invariant.
func clampPipelineDepth(depth int) int {
	if depth < constants.MinPipelineDepth {
		return constants.MinPipelineDepth
	}
	if depth > constants.MaxPipelineDepth {
		return constants.MaxPipelineDepth
	}
	return depth
}
