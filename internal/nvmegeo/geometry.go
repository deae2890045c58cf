// Package nvmegeo probes an NVMe controller's geometry: its maximum data
// transfer size (MDTS) and a target namespace's logical block size and
// capacity, the values used to clamp chunk size and to reject out-of-range
// offsets. The engine itself does not call Probe; it reads geometry from its
// NVMeController collaborator.
package nvmegeo

import (
	"context"
	"fmt"

	"github.com/wangYzh0912/npu-nvme/internal/constants"
	"github.com/wangYzh0912/npu-nvme/internal/nvmeabi"
)

// Identifier issues NVMe Identify admin commands and returns the raw 4096
// byte response. Implementations wrap either a real io_uring/ioctl path or,
// in tests, a fake controller.
type Identifier interface {
	Identify(ctx context.Context, nsid uint32, cns uint8) ([]byte, error)
}

// Geometry is the derived shape of a namespace, used to bound transfers.
type Geometry struct {
	// MaxTransferBytes is the controller's MDTS converted to bytes and
	// clamped to constants.DefaultMDTSLimit (or constants.FallbackMDTSLimit
	// if the controller advertises no limit).
	MaxTransferBytes int64

	// LogicalBlockSize is the namespace's formatted LBA size, in bytes.
	LogicalBlockSize int64

	// NamespaceSizeBytes is the namespace's total addressable capacity.
	NamespaceSizeBytes int64
}

// Probe issues Identify Controller and Identify Namespace and derives a
// Geometry. pageSize is the controller's minimum page size unit (typically
// 4096); MDTS is expressed in that unit as 2^MDTS pages.
func Probe(ctx context.Context, id Identifier, nsid uint32, pageSize int64) (Geometry, error) {
	if pageSize <= 0 {
		pageSize = constants.StagingBufferAlignment
	}

	ctrlBuf, err := id.Identify(ctx, 0, nvmeabi.IdentifyCNSController)
	if err != nil {
		return Geometry{}, fmt.Errorf("nvmegeo: identify controller: %w", err)
	}
	var ctrl nvmeabi.IdentController
	if err := decodeController(ctrlBuf, &ctrl); err != nil {
		return Geometry{}, fmt.Errorf("nvmegeo: decode controller: %w", err)
	}

	maxTransfer := mdtsToBytes(ctrl.Mdts, pageSize)

	nsBuf, err := id.Identify(ctx, nsid, nvmeabi.IdentifyCNSNamespace)
	if err != nil {
		return Geometry{}, fmt.Errorf("nvmegeo: identify namespace %d: %w", nsid, err)
	}
	var ns nvmeabi.IdentNamespace
	if err := decodeNamespace(nsBuf, &ns); err != nil {
		return Geometry{}, fmt.Errorf("nvmegeo: decode namespace %d: %w", nsid, err)
	}

	lbaSize := lbaSizeFromFormat(ns)
	if lbaSize <= 0 {
		lbaSize = constants.DefaultLogicalBlockSize
	}

	return Geometry{
		MaxTransferBytes:   maxTransfer,
		LogicalBlockSize:   lbaSize,
		NamespaceSizeBytes: int64(ns.Nsze) * lbaSize,
	}, nil
}

// mdtsToBytes converts the controller's Mdts field (a power-of-two multiple
// of pageSize, or 0 meaning "no limit advertised") into a byte count, safety
// clamped to the engine's configured ceiling.
func mdtsToBytes(mdts uint8, pageSize int64) int64 {
	if mdts == 0 {
		return constants.FallbackMDTSLimit
	}
	bytes := (int64(1) << mdts) * pageSize
	if bytes > constants.DefaultMDTSLimit {
		return constants.DefaultMDTSLimit
	}
	return bytes
}

// lbaSizeFromFormat returns the logical block size, in bytes, of the
// namespace's currently formatted LBA format (ns.Flbas indexes ns.Lbaf).
func lbaSizeFromFormat(ns nvmeabi.IdentNamespace) int64 {
	idx := ns.Flbas & 0x0F
	if int(idx) >= len(ns.Lbaf) {
		return 0
	}
	ds := ns.Lbaf[idx].Ds
	if ds == 0 {
		return 0
	}
	return int64(1) << ds
}
