// Package nvmeabi defines the wire-layout structures exchanged with an NVMe
// controller over passthrough commands: the 72-byte admin/IO passthrough
// command, and the Identify Controller / Identify Namespace response buffers
// the device-geometry probe parses.
package nvmeabi

import "unsafe"

// Admin opcodes used by the geometry probe.
const (
	AdminOpIdentify = 0x06
)

// I/O opcodes used by the batch scheduler's read/write stage.
const (
	IOOpRead  = 0x02
	IOOpWrite = 0x01
)

// Identify CNS (Controller or Namespace Structure) values, passed in cdw10.
const (
	IdentifyCNSNamespace  = 0x00
	IdentifyCNSController = 0x01
)

// PassthruCommand mirrors the kernel's struct nvme_passthru_cmd64 layout: a
// single fixed-size command submitted either via ioctl(NVME_IOCTL_ADMIN_CMD)
// or, on the io_uring path, packed into a URING_CMD SQE's command area.
type PassthruCommand struct {
	Opcode      uint8
	Flags       uint8
	Rsvd1       uint16
	Nsid        uint32
	Cdw2        uint32
	Cdw3        uint32
	Metadata    uint64
	Addr        uint64
	MetadataLen uint32
	DataLen     uint32
	Cdw10       uint32
	Cdw11       uint32
	Cdw12       uint32
	Cdw13       uint32
	Cdw14       uint32
	Cdw15       uint32
	TimeoutMs   uint32
	Result      uint32
}

// Size is the on-the-wire size of PassthruCommand (72 bytes).
const Size = unsafe.Sizeof(PassthruCommand{})

// PowerStateDescriptor is one entry of IdentController.Psd.
type PowerStateDescriptor struct {
	MaxPower        uint16
	Rsvd2           uint8
	Flags           uint8
	EntryLat        uint32
	ExitLat         uint32
	ReadTput        uint8
	ReadLat         uint8
	WriteTput       uint8
	WriteLat        uint8
	IdlePower       uint16
	IdleScale       uint8
	Rsvd19          uint8
	ActivePower     uint16
	ActiveWorkScale uint8
	Rsvd23          [9]byte
}

// IdentController is the 4096-byte Identify Controller data structure
// (relevant fields only; reserved ranges pad the layout to the real offsets
// the controller writes into, so later fields land correctly).
type IdentController struct {
	VendorID     uint16
	Ssvid        uint16
	SerialNumber [20]byte
	ModelNumber  [40]byte
	Firmware     [8]byte
	Rab          uint8
	IEEE         [3]byte
	Cmic         uint8
	Mdts         uint8 // Maximum Data Transfer Size, as 2^Mdts * page size
	Cntlid       uint16
	Ver          uint32
	Rtd3r        uint32
	Rtd3e        uint32
	Oaes         uint32
	Rsvd96       [160]byte
	Oacs         uint16
	Acl          uint8
	Aerl         uint8
	Frmw         uint8
	Lpa          uint8
	Elpe         uint8
	Npss         uint8
	Avscc        uint8
	Apsta        uint8
	Wctemp       uint16
	Cctemp       uint16
	Mtfa         uint16
	Hmpre        uint32
	Hmmin        uint32
	Tnvmcap      [16]byte
	Unvmcap      [16]byte
	Rpmbs        uint32
	Rsvd316      [196]byte
	Sqes         uint8
	Cqes         uint8
	Rsvd514      [2]byte
	Nn           uint32
	Oncs         uint16
	Fuses        uint16
	Fna          uint8
	Vwc          uint8
	Awun         uint16
	Awupf        uint16
	Nvscc        uint8
	Rsvd531      uint8
	Acwu         uint16
	Rsvd534      [2]byte
	Sgls         uint32
	Rsvd540      [1508]byte
	Psd          [32]PowerStateDescriptor
	Vs           [1024]byte
}

// LBAFormat describes one of a namespace's candidate LBA formats.
type LBAFormat struct {
	Ms uint16 // metadata size
	Ds uint8  // LBA data size, as log2(bytes)
	Rp uint8  // relative performance
}

// IdentNamespace is the 4096-byte Identify Namespace data structure
// (relevant fields only).
type IdentNamespace struct {
	Nsze    uint64 // namespace size, in logical blocks
	Ncap    uint64
	Nuse    uint64
	Nsfeat  uint8
	Nlbaf   uint8
	Flbas   uint8 // index into Lbaf of the formatted LBA format
	Mc      uint8
	Dpc     uint8
	Dps     uint8
	Nmic    uint8
	Rescap  uint8
	Fpi     uint8
	Rsvd33  uint8
	Nawun   uint16
	Nawupf  uint16
	Nacwu   uint16
	Nabsn   uint16
	Nabo    uint16
	Nabspf  uint16
	Rsvd46  [2]byte
	Nvmcap  [16]byte
	Rsvd64  [40]byte
	Nguid   [16]byte
	EUI64   [8]byte
	Lbaf    [16]LBAFormat
	Rsvd192 [192]byte
	Vs      [3712]byte
}

// IdentifyBufferSize is the fixed response size for both Identify Controller
// and Identify Namespace (4096 bytes, one page).
const IdentifyBufferSize = 4096
