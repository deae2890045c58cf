package npunvme

import "github.com/wangYzh0912/npu-nvme/internal/constants"

// Re-exported defaults for callers building an EngineConfig by hand.
const (
	MinPipelineDepth        = constants.MinPipelineDepth
	MaxPipelineDepth        = constants.MaxPipelineDepth
	DefaultPipelineDepth    = constants.DefaultPipelineDepth
	StagingBufferAlignment  = constants.StagingBufferAlignment
	DefaultChunkSize        = constants.DefaultChunkSize
	DefaultMDTSLimit        = constants.DefaultMDTSLimit
	FallbackMDTSLimit       = constants.FallbackMDTSLimit
	DefaultLogicalBlockSize = constants.DefaultLogicalBlockSize
)

// DefaultWatchdogTimeout is the wall-clock limit on a single batch call,
// absent an explicit EngineConfig override.
const DefaultWatchdogTimeout = constants.DefaultWatchdogTimeout
