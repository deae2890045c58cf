// Package nvmeuring provides io_uring submission/completion plumbing for
// issuing NVMe passthrough commands (admin Identify or IO read/write)
// without blocking a goroutine per command. The batch scheduler does not
// import it; it reaches storage through its NVMeController interface.
package nvmeuring

import "errors"

// ErrRingFull is returned when the submission queue has no free slot. The
// scheduler's pipeline depth bounds in-flight commands to the ring's entry
// count, so this should never surface in normal operation.
var ErrRingFull = errors.New("nvmeuring: submission queue full")

// Ring submits NVMe passthrough commands over IORING_OP_URING_CMD and
// delivers their completions.
type Ring interface {
	// Close releases the ring's kernel and mmap resources.
	Close() error

	// PrepareCmd writes a command's SQE into ring memory without making it
	// visible to the kernel. userData is echoed back on the matching
	// completion so the scheduler can map it to a slot. Returns ErrRingFull
	// if no submission slot is free.
	PrepareCmd(nsFd int32, cmd *PassthruSQE, userData uint64) error

	// FlushSubmissions makes all prepared SQEs visible to the kernel with a
	// single io_uring_enter syscall, returning how many were submitted.
	FlushSubmissions() (uint32, error)

	// ReapCompletions drains up to max available completion entries without
	// blocking. It returns fewer than max (possibly zero) if fewer are ready.
	ReapCompletions(max int) ([]Result, error)
}

// PassthruSQE is the payload a caller asks the ring to submit: an NVMe
// passthrough command plus the host buffer it addresses.
type PassthruSQE struct {
	Opcode    uint32 // admin or io opcode, see nvmeabi
	Nsid      uint32
	Cdw10     uint32
	Cdw11     uint32
	Cdw12     uint32 // low 32 bits of the starting LBA, for read/write
	Cdw13     uint32 // high 32 bits of the starting LBA
	BufAddr   uintptr
	BufLen    uint32
	TimeoutMs uint32
}

// Result is one completion queue entry, decoded.
type Result interface {
	UserData() uint64
	Value() int32
	Error() error
}

// Config configures a new ring.
type Config struct {
	Entries uint32
}

// New creates a Ring using the pure-syscall minimal implementation. Call
// NewGiouringRing instead when built with the "giouring" tag for the
// giouring-backed implementation.
func New(config Config) (Ring, error) {
	return newMinimalRing(config.Entries)
}
