package fpgadma

const (
	// MaxChannels is the structural maximum number of DMA channels
	MaxChannels = 20

	// MaxDescriptors is the structural maximum number of descriptors per channel
	MaxDescriptors = 8

	// MaxDescriptorBufferSize is the largest buffer a descriptor may describe, 256 MiB
	MaxDescriptorBufferSize = 256 * 1024 * 1024

	// DriverVersion is the version of the kernel driver interface these
	// definitions were written against
	DriverVersion = 0x102

	// RegisterBar is the BAR every DMA register lives in
	RegisterBar uint8 = 0
)

// register indices, before translation with DeviceAddress
const (
	RegInterruptEnable uint64 = 0x0003
	RegInterruptAck    uint64 = 0x0004
	RegInterruptStatus uint64 = 0x0005
	RegInterruptData   uint64 = 0x0006
	RegRxEnable        uint64 = 0x0008
	RegTxEnable        uint64 = 0x0009
	RegFirmwareVersion uint64 = 0x000B
	RegPPSTrigger      uint64 = 0x0017

	RegControl         uint64 = 0x0100
	RegDescriptorCount uint64 = 0x0101
	RegDescriptorIndex uint64 = 0x0102
	RegDescriptorTable uint64 = 0x0800
)

const (
	channelStride      = 0x40
	tableChannelStride = 0x400
	descriptorStride   = 0x10

	// FieldAddressLow and friends are the byte offsets of the four words
	// of a descriptor table entry
	FieldAddressLow  uint64 = 0x0
	FieldAddressHigh uint64 = 0x4
	FieldSize        uint64 = 0x8
	FieldInterrupt   uint64 = 0xC

	controlStart  uint32 = 0x3
	controlCyclic uint32 = 0x8

	descriptorValid   uint32 = 1 << 31
	interruptClearAll uint32 = 0x00FF
)

// DeviceAddress converts a register index into a device byte address.
// Registers are 4 bytes wide.
func DeviceAddress(logical uint64) uint64 {
	return logical << 2
}

// ChannelRegister returns the byte address of the per-channel copy of the
// register at index base
func ChannelRegister(base uint64, channel int) uint64 {
	return DeviceAddress(base) + channelStride*uint64(channel)
}

// DescriptorField returns the byte address of one word of a descriptor
// table entry.  field is one of the Field* constants.
func DescriptorField(channel, descriptor int, field uint64) uint64 {
	return DeviceAddress(RegDescriptorTable) +
		tableChannelStride*uint64(channel) +
		descriptorStride*uint64(descriptor) +
		field
}

// ControlValue is the channel control register word for a start/stop request
func ControlValue(start, cyclic bool) uint32 {
	var v uint32
	if start {
		v = controlStart
	}
	if cyclic {
		v |= controlCyclic
	}
	return v
}
