package nvmegeo

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/wangYzh0912/npu-nvme/internal/nvmeabi"
)

type fakeIdentifier struct {
	mdts      uint8
	nsze      uint64
	lbaShift  uint8
	flbas     uint8
	returnErr error
}

func (f *fakeIdentifier) Identify(ctx context.Context, nsid uint32, cns uint8) ([]byte, error) {
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	buf := make([]byte, nvmeabi.IdentifyBufferSize)
	switch cns {
	case nvmeabi.IdentifyCNSController:
		var ctrl nvmeabi.IdentController
		ctrl.Mdts = f.mdts
		var b bytes.Buffer
		_ = binary.Write(&b, binary.LittleEndian, &ctrl)
		copy(buf, b.Bytes())
	case nvmeabi.IdentifyCNSNamespace:
		var ns nvmeabi.IdentNamespace
		ns.Nsze = f.nsze
		ns.Flbas = f.flbas
		ns.Lbaf[f.flbas].Ds = f.lbaShift
		var b bytes.Buffer
		_ = binary.Write(&b, binary.LittleEndian, &ns)
		copy(buf, b.Bytes())
	}
	return buf, nil
}

func TestProbeDerivesGeometry(t *testing.T) {
	fi := &fakeIdentifier{mdts: 5, nsze: 1000000, lbaShift: 9, flbas: 0}
	geo, err := Probe(context.Background(), fi, 1, 4096)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if geo.LogicalBlockSize != 512 {
		t.Errorf("expected LBA size 512, got %d", geo.LogicalBlockSize)
	}
	if geo.NamespaceSizeBytes != 1000000*512 {
		t.Errorf("expected namespace size %d, got %d", 1000000*512, geo.NamespaceSizeBytes)
	}
	wantMax := int64(1<<5) * 4096
	if geo.MaxTransferBytes != wantMax {
		t.Errorf("expected max transfer %d, got %d", wantMax, geo.MaxTransferBytes)
	}
}

func TestProbeZeroMDTSUsesFallback(t *testing.T) {
	fi := &fakeIdentifier{mdts: 0, nsze: 100, lbaShift: 9, flbas: 0}
	geo, err := Probe(context.Background(), fi, 1, 4096)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if geo.MaxTransferBytes != 1<<20 {
		t.Errorf("expected fallback 1MiB, got %d", geo.MaxTransferBytes)
	}
}

func TestProbeClampsToDefaultLimit(t *testing.T) {
	fi := &fakeIdentifier{mdts: 20, nsze: 100, lbaShift: 9, flbas: 0}
	geo, err := Probe(context.Background(), fi, 1, 4096)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if geo.MaxTransferBytes != 4<<20 {
		t.Errorf("expected clamp to 4MiB, got %d", geo.MaxTransferBytes)
	}
}

func TestProbePropagatesIdentifyError(t *testing.T) {
	fi := &fakeIdentifier{returnErr: errFakeIdentify}
	_, err := Probe(context.Background(), fi, 1, 4096)
	if err == nil {
		t.Fatalf("expected error from Identify failure")
	}
}

var errFakeIdentify = testErr("identify failed")

type testErr string

func (e testErr) Error() string { return string(e) }
