package nvmeuring

import "testing"

func TestEncodePassthruCmd(t *testing.T) {
	var sqe sqe128
	cmd := &PassthruSQE{
		Nsid:      1,
		Cdw10:     2,
		Cdw11:     3,
		Cdw12:     4,
		Cdw13:     5,
		TimeoutMs: 6,
	}
	encodePassthruCmd(&sqe, cmd)

	if got := le32(sqe.cmd[4:8]); got != 1 {
		t.Errorf("nsid: got %d, want 1", got)
	}
	if got := le32(sqe.cmd[40:44]); got != 2 {
		t.Errorf("cdw10: got %d, want 2", got)
	}
	if got := le32(sqe.cmd[60:64]); got != 6 {
		t.Errorf("timeout_ms: got %d, want 6", got)
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
