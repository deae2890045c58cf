package nvmeabi

import "encoding/binary"

// MarshalPassthru renders cmd into its 72-byte wire layout, little-endian,
// matching the layout the kernel (and a real NVMe controller) expects for
// both ioctl(NVME_IOCTL_ADMIN_CMD) and the io_uring URING_CMD command area.
func MarshalPassthru(cmd *PassthruCommand) []byte {
	buf := make([]byte, 72)
	buf[0] = cmd.Opcode
	buf[1] = cmd.Flags
	binary.LittleEndian.PutUint16(buf[2:4], cmd.Rsvd1)
	binary.LittleEndian.PutUint32(buf[4:8], cmd.Nsid)
	binary.LittleEndian.PutUint32(buf[8:12], cmd.Cdw2)
	binary.LittleEndian.PutUint32(buf[12:16], cmd.Cdw3)
	binary.LittleEndian.PutUint64(buf[16:24], cmd.Metadata)
	binary.LittleEndian.PutUint64(buf[24:32], cmd.Addr)
	binary.LittleEndian.PutUint32(buf[32:36], cmd.MetadataLen)
	binary.LittleEndian.PutUint32(buf[36:40], cmd.DataLen)
	binary.LittleEndian.PutUint32(buf[40:44], cmd.Cdw10)
	binary.LittleEndian.PutUint32(buf[44:48], cmd.Cdw11)
	binary.LittleEndian.PutUint32(buf[48:52], cmd.Cdw12)
	binary.LittleEndian.PutUint32(buf[52:56], cmd.Cdw13)
	binary.LittleEndian.PutUint32(buf[56:60], cmd.Cdw14)
	binary.LittleEndian.PutUint32(buf[60:64], cmd.Cdw15)
	binary.LittleEndian.PutUint32(buf[64:68], cmd.TimeoutMs)
	binary.LittleEndian.PutUint32(buf[68:72], cmd.Result)
	return buf
}

// UnmarshalPassthru parses a 72-byte wire buffer back into a PassthruCommand,
// used to read back the Result field a controller wrote on completion.
func UnmarshalPassthru(data []byte, cmd *PassthruCommand) error {
	if len(data) < 72 {
		return ErrInsufficientData
	}
	cmd.Opcode = data[0]
	cmd.Flags = data[1]
	cmd.Rsvd1 = binary.LittleEndian.Uint16(data[2:4])
	cmd.Nsid = binary.LittleEndian.Uint32(data[4:8])
	cmd.Cdw2 = binary.LittleEndian.Uint32(data[8:12])
	cmd.Cdw3 = binary.LittleEndian.Uint32(data[12:16])
	cmd.Metadata = binary.LittleEndian.Uint64(data[16:24])
	cmd.Addr = binary.LittleEndian.Uint64(data[24:32])
	cmd.MetadataLen = binary.LittleEndian.Uint32(data[32:36])
	cmd.DataLen = binary.LittleEndian.Uint32(data[36:40])
	cmd.Cdw10 = binary.LittleEndian.Uint32(data[40:44])
	cmd.Cdw11 = binary.LittleEndian.Uint32(data[44:48])
	cmd.Cdw12 = binary.LittleEndian.Uint32(data[48:52])
	cmd.Cdw13 = binary.LittleEndian.Uint32(data[52:56])
	cmd.Cdw14 = binary.LittleEndian.Uint32(data[56:60])
	cmd.Cdw15 = binary.LittleEndian.Uint32(data[60:64])
	cmd.TimeoutMs = binary.LittleEndian.Uint32(data[64:68])
	cmd.Result = binary.LittleEndian.Uint32(data[68:72])
	return nil
}

// MarshalError reports a wire-layout decode failure.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const ErrInsufficientData MarshalError = "nvmeabi: insufficient data for unmarshaling"
