package nvmegeo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wangYzh0912/npu-nvme/internal/nvmeabi"
)

func decodeController(buf []byte, out *nvmeabi.IdentController) error {
	if len(buf) < nvmeabi.IdentifyBufferSize {
		return fmt.Errorf("nvmegeo: controller identify buffer too short: %d bytes", len(buf))
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, out)
}

func decodeNamespace(buf []byte, out *nvmeabi.IdentNamespace) error {
	if len(buf) < nvmeabi.IdentifyBufferSize {
		return fmt.Errorf("nvmegeo: namespace identify buffer too short: %d bytes", len(buf))
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, out)
}
