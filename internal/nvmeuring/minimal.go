package nvmeuring

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wangYzh0912/npu-nvme/internal/logging"
)

// io_uring entry sizes, the URING_CMD opcode, and setup/enter flags (the
// teacher's own minimal ring hardcodes the same values rather than resolving
// them via a build-tagged constants file, and this package follows suit).
const (
	sqEntries128 = 128 // SQE size in bytes when SETUP_SQE128 is set
	cqEntries32  = 32  // CQE size in bytes when SETUP_CQE32 is set

	ioringOpUringCmd = 46 // IORING_OP_URING_CMD, per include/uapi/linux/io_uring.h

	ioringSetupSQE128 = 1 << 10
	ioringSetupCQE32  = 1 << 11

	ioringEnterGetEvents = 1 << 0
)

// sqe128 is the 128-byte submission queue entry layout used for URING_CMD:
// the first 64 bytes match the standard SQE, the remaining 64 bytes (cmd)
// hold the opcode-specific command payload as packed by encodePassthruCmd.
type sqe128 struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceOff   int32
	addr3       uint64
	_           uint64
	cmd         [64]byte
}

// cqe32 is the 32-byte completion queue entry layout paired with sqe128.
type cqe32 struct {
	userData uint64
	res      int32
	flags    uint32
	bigCQE   [16]uint8
}

type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCpu  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        struct {
		head        uint32
		tail        uint32
		ringMask    uint32
		ringEntries uint32
		flags       uint32
		dropped     uint32
		array       uint32
		resv1       uint32
		userAddr    uint64
	}
	cqOff struct {
		head        uint32
		tail        uint32
		ringMask    uint32
		ringEntries uint32
		overflow    uint32
		cqes        uint32
		flags       uint32
		resv1       uint32
		userAddr    uint64
	}
}

// minimalRing is a direct syscall implementation of Ring: no cgo, no
// third-party io_uring binding, just io_uring_setup/io_uring_enter and
// manual SQ/CQ ring-memory manipulation. It exists for builds that cannot
// or do not want to pull in giouring.
type minimalRing struct {
	fd      int
	params  ioUringParams
	sqAddr  unsafe.Pointer
	cqAddr  unsafe.Pointer
	pending uint32 // SQEs prepared but not yet flushed
}

func newMinimalRing(entries uint32) (Ring, error) {
	logger := logging.Default()
	logger.Debug("creating minimal io_uring", "entries", entries)

	params := ioUringParams{
		sqEntries: entries,
		cqEntries: entries * 2,
		flags:     ioringSetupSQE128 | ioringSetupCQE32,
	}

	ringFd, _, errno := syscall.Syscall(unix.SYS_IO_URING_SETUP,
		uintptr(entries),
		uintptr(unsafe.Pointer(&params)),
		0)
	if errno != 0 {
		return nil, fmt.Errorf("nvmeuring: io_uring_setup failed: %v", errno)
	}

	sqSize := params.sqOff.array + params.sqEntries*4
	cqSize := params.cqOff.cqes + params.cqEntries*uint32(unsafe.Sizeof(cqe32{}))

	sqAddr, err := unix.Mmap(int(ringFd), 0, int(sqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("nvmeuring: mmap SQ ring: %w", err)
	}

	cqAddr, err := unix.Mmap(int(ringFd), 0x8000000, int(cqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Munmap(sqAddr)
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("nvmeuring: mmap CQ ring: %w", err)
	}

	return &minimalRing{
		fd:     int(ringFd),
		params: params,
		sqAddr: unsafe.Pointer(&sqAddr[0]),
		cqAddr: unsafe.Pointer(&cqAddr[0]),
	}, nil
}

func (r *minimalRing) Close() error {
	sqSize := r.params.sqOff.array + r.params.sqEntries*4
	cqSize := r.params.cqOff.cqes + r.params.cqEntries*uint32(unsafe.Sizeof(cqe32{}))
	unix.Munmap(unsafe.Slice((*byte)(r.sqAddr), sqSize))
	unix.Munmap(unsafe.Slice((*byte)(r.cqAddr), cqSize))
	return syscall.Close(r.fd)
}

func (r *minimalRing) PrepareCmd(nsFd int32, cmd *PassthruSQE, userData uint64) error {
	sqHead := (*uint32)(unsafe.Add(r.sqAddr, r.params.sqOff.head))
	sqTail := (*uint32)(unsafe.Add(r.sqAddr, r.params.sqOff.tail))
	sqMask := r.params.sqEntries - 1

	if (*sqTail - *sqHead) >= r.params.sqEntries {
		return ErrRingFull
	}

	sqe := sqe128{
		opcode:      ioringOpUringCmd,
		fd:          nsFd,
		addr:        uint64(cmd.BufAddr),
		len:         cmd.BufLen,
		userData:    userData,
		opcodeFlags: cmd.Opcode,
	}
	encodePassthruCmd(&sqe, cmd)

	sqArray := unsafe.Add(r.sqAddr, r.params.sqOff.array)
	sqIndex := *sqTail & sqMask
	sqeSlot := unsafe.Add(r.sqAddr, uintptr(sqEntries128*sqIndex))
	*(*sqe128)(sqeSlot) = sqe
	*(*uint32)(unsafe.Add(sqArray, uintptr(4*sqIndex))) = sqIndex

	*sqTail = *sqTail + 1
	r.pending++
	return nil
}

// encodePassthruCmd packs a PassthruSQE's nsid/cdw10-13 fields into the
// SQE's 64-byte command area, little-endian, at their nvmeabi.PassthruCommand
// offsets. TimeoutMs, whose PassthruCommand offset (64) lies past the end of
// the area, goes in the area's last word instead.
func encodePassthruCmd(sqe *sqe128, cmd *PassthruSQE) {
	putLE32(sqe.cmd[4:8], cmd.Nsid)
	putLE32(sqe.cmd[40:44], cmd.Cdw10)
	putLE32(sqe.cmd[44:48], cmd.Cdw11)
	putLE32(sqe.cmd[48:52], cmd.Cdw12)
	putLE32(sqe.cmd[52:56], cmd.Cdw13)
	putLE32(sqe.cmd[64-4:64], cmd.TimeoutMs) // last word of the 64-byte area
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (r *minimalRing) FlushSubmissions() (uint32, error) {
	if r.pending == 0 {
		return 0, nil
	}
	toSubmit := r.pending
	r.pending = 0

	r1, _, errno := syscall.Syscall6(
		unix.SYS_IO_URING_ENTER,
		uintptr(r.fd),
		uintptr(toSubmit),
		0,
		uintptr(ioringEnterGetEvents),
		0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("nvmeuring: io_uring_enter failed: %v", errno)
	}
	return uint32(r1), nil
}

func (r *minimalRing) ReapCompletions(max int) ([]Result, error) {
	cqHead := (*uint32)(unsafe.Add(r.cqAddr, r.params.cqOff.head))
	cqTail := (*uint32)(unsafe.Add(r.cqAddr, r.params.cqOff.tail))
	cqMask := r.params.cqEntries - 1

	var results []Result
	for len(results) < max && *cqHead != *cqTail {
		cqIndex := *cqHead & cqMask
		cqeSlot := unsafe.Add(r.cqAddr, uintptr(r.params.cqOff.cqes)+uintptr(cqEntries32*cqIndex))
		cqe := (*cqe32)(cqeSlot)

		res := &minimalResult{userData: cqe.userData, value: cqe.res}
		if cqe.res < 0 {
			res.err = syscall.Errno(-cqe.res)
		}
		results = append(results, res)

		*cqHead = *cqHead + 1
	}
	return results, nil
}

type minimalResult struct {
	userData uint64
	value    int32
	err      error
}

func (r *minimalResult) UserData() uint64 { return r.userData }
func (r *minimalResult) Value() int32     { return r.value }
func (r *minimalResult) Error() error     { return r.err }
