package fpgadma

import (
	"encoding/binary"
	"errors"
)

// ioctl request numbers follow the _IOC macro of <linux/ioctl.h>.
// The driver uses a device type of 0x9000 and command numbers of 0x7xx,
// both wider than the 8 bit fields _IOC intends; the bits are OR'd together
// exactly as the C macro does, so the numbers match the driver header.
const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	ioctlDeviceType = 0x9000
)

// packed sizes of the driver structures
const (
	registerRequestSize = 1 + 8 + 4
	limitsSize          = 3 * 4
	bufferSize          = 2 * 8
	memoryMapSize       = MaxChannels * MaxDescriptors * bufferSize
	handleTableSize     = MaxChannels * MaxDescriptors * 4
	statusSize          = 4
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

var (
	ioctlSetRegister  = ioc(iocWrite, ioctlDeviceType, 0x701, registerRequestSize)
	ioctlGetRegister  = ioc(iocRead, ioctlDeviceType, 0x702, registerRequestSize)
	ioctlGetStatus    = ioc(iocRead, ioctlDeviceType, 0x703, statusSize)
	ioctlGetLimits    = ioc(iocRead, ioctlDeviceType, 0x704, limitsSize)
	ioctlGetMemoryMap = ioc(iocRead, ioctlDeviceType, 0x705, memoryMapSize)
	ioctlSetHandles   = ioc(iocWrite, ioctlDeviceType, 0x706, 4) // the header declares uint32_t
	ioctlGetHandles   = ioc(iocRead, ioctlDeviceType, 0x707, handleTableSize)
)

// the driver structures are packed and host endian; every supported host is little endian
var le = binary.LittleEndian

var errShortPayload = errors.New("short payload")

const handleUnregistered int32 = -1

// MarshalBinary packs r the way the driver expects
func (r RegisterRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, registerRequestSize)
	b[0] = r.Bar
	le.PutUint64(b[1:], r.Address)
	le.PutUint32(b[9:], r.Value)
	return b, nil
}

// UnmarshalBinary unpacks a driver register payload
func (r *RegisterRequest) UnmarshalBinary(b []byte) error {
	if len(b) < registerRequestSize {
		return errShortPayload
	}
	r.Bar = b[0]
	r.Address = le.Uint64(b[1:])
	r.Value = le.Uint32(b[9:])
	return nil
}

// UnmarshalBinary unpacks the driver DMA parameters
func (l *Limits) UnmarshalBinary(b []byte) error {
	if len(b) < limitsSize {
		return errShortPayload
	}
	l.MaxDescriptors = le.Uint32(b[0:])
	l.MaxDescriptorBufferSize = le.Uint32(b[4:])
	l.MaxChannels = le.Uint32(b[8:])
	return nil
}

// MarshalBinary packs l the way the driver reports it
func (l Limits) MarshalBinary() ([]byte, error) {
	b := make([]byte, limitsSize)
	le.PutUint32(b[0:], l.MaxDescriptors)
	le.PutUint32(b[4:], l.MaxDescriptorBufferSize)
	le.PutUint32(b[8:], l.MaxChannels)
	return b, nil
}

// UnmarshalBinary unpacks the driver memory map
func (m *MemoryMap) UnmarshalBinary(b []byte) error {
	if len(b) < memoryMapSize {
		return errShortPayload
	}
	off := 0
	for ch := range m {
		for d := range m[ch] {
			m[ch][d].Virtual = le.Uint64(b[off:])
			m[ch][d].Physical = le.Uint64(b[off+8:])
			off += bufferSize
		}
	}
	return nil
}

// MarshalBinary packs m the way the driver reports it
func (m *MemoryMap) MarshalBinary() ([]byte, error) {
	b := make([]byte, memoryMapSize)
	off := 0
	for ch := range m {
		for d := range m[ch] {
			le.PutUint64(b[off:], m[ch][d].Virtual)
			le.PutUint64(b[off+8:], m[ch][d].Physical)
			off += bufferSize
		}
	}
	return b, nil
}

// UnmarshalBinary unpacks the driver eventfd table
func (t *HandleTable) UnmarshalBinary(b []byte) error {
	if len(b) < handleTableSize {
		return errShortPayload
	}
	off := 0
	for ch := range t {
		for d := range t[ch] {
			t[ch][d] = int32(le.Uint32(b[off:]))
			off += 4
		}
	}
	return nil
}

// encodeHandles packs a flat eventfd array into a buffer of the full table
// capacity, so the driver may read up to MaxChannels*MaxDescriptors entries
// whatever the limits.  Unused entries are -1.
func encodeHandles(h []int32) []byte {
	b := make([]byte, handleTableSize)
	for i := 0; i < MaxChannels*MaxDescriptors; i++ {
		v := handleUnregistered
		if i < len(h) {
			v = h[i]
		}
		le.PutUint32(b[4*i:], uint32(v))
	}
	return b
}
