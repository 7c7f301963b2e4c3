package fpgadma

import (
	"encoding/json"
	"fmt"
)

// RegisterRequest is the payload of a register read or write.
// For reads, Value is filled in by the driver.
type RegisterRequest struct {
	Bar     uint8
	Address uint64
	Value   uint32
}

// Limits are the DMA maxima reported by the board
type Limits struct {
	// MaxDescriptors is the number of descriptors per channel
	MaxDescriptors uint32 `json:"maxDescriptors" yaml:"MaxDescriptors"`

	// MaxDescriptorBufferSize is the largest buffer a descriptor may describe, bytes
	MaxDescriptorBufferSize uint32 `json:"maxDescriptorBufferSize" yaml:"MaxDescriptorBufferSize"`

	// MaxChannels is the number of DMA channels
	MaxChannels uint32 `json:"maxChannels" yaml:"MaxChannels"`
}

// DefaultLimits returns the structural maxima of the board, used until the
// limits have been queried
func DefaultLimits() Limits {
	return Limits{
		MaxDescriptors:          MaxDescriptors,
		MaxDescriptorBufferSize: MaxDescriptorBufferSize,
		MaxChannels:             MaxChannels,
	}
}

// capped bounds l by the structural maxima, which size every table
func (l Limits) capped() Limits {
	if l.MaxChannels > MaxChannels {
		l.MaxChannels = MaxChannels
	}
	if l.MaxDescriptors > MaxDescriptors {
		l.MaxDescriptors = MaxDescriptors
	}
	if l.MaxDescriptorBufferSize > MaxDescriptorBufferSize {
		l.MaxDescriptorBufferSize = MaxDescriptorBufferSize
	}
	return l
}

// Slots is the number of channel/descriptor pairs
func (l Limits) Slots() int {
	return int(l.MaxChannels) * int(l.MaxDescriptors)
}

// SlotIndex linearizes a channel/descriptor pair.  This is the layout of the
// eventfd array registered with the driver; every lookup of a notification
// goes through it.
func (l Limits) SlotIndex(channel, descriptor int) int {
	return channel*int(l.MaxDescriptors) + descriptor
}

// Slot is the inverse of SlotIndex
func (l Limits) Slot(index int) (channel, descriptor int) {
	if l.MaxDescriptors == 0 {
		return 0, 0
	}
	return index / int(l.MaxDescriptors), index % int(l.MaxDescriptors)
}

// Contains reports whether channel/descriptor is inside l
func (l Limits) Contains(channel, descriptor int) bool {
	return channel >= 0 && descriptor >= 0 &&
		channel < int(l.MaxChannels) && descriptor < int(l.MaxDescriptors)
}

// Buffer is the host memory behind one descriptor
type Buffer struct {
	// Virtual is the address of the buffer in the address space of this process
	Virtual uint64 `json:"virtual"`

	// Physical is the bus address programmed into the descriptor table
	Physical uint64 `json:"physical"`
}

// MemoryMap holds the buffer of every channel/descriptor pair
type MemoryMap [MaxChannels][MaxDescriptors]Buffer

// HandleTable holds the eventfd of every channel/descriptor pair as the
// driver reports it back
type HandleTable [MaxChannels][MaxDescriptors]int32

// DescriptorStartConfig is the requested setup of one descriptor
type DescriptorStartConfig struct {
	// BufferSize is the number of bytes to transfer, clamped to the maximum buffer size
	BufferSize uint32 `json:"bufferSize" yaml:"BufferSize"`

	// InterruptEnable asks for an interrupt on completion, anything non zero is 1
	InterruptEnable uint32 `json:"interruptEnable" yaml:"InterruptEnable"`
}

// ChannelStartConfig is the requested setup of one channel
type ChannelStartConfig struct {
	// DescriptorCount is the number of descriptors to program, 0 leaves the channel alone
	DescriptorCount uint32 `json:"descriptorCount" yaml:"DescriptorCount"`

	// Descriptors holds per-descriptor setup.  Entries past the end read as zero.
	Descriptors []DescriptorStartConfig `json:"descriptors" yaml:"Descriptors"`
}

// Descriptor returns the setup of descriptor i, or the zero value
func (c ChannelStartConfig) Descriptor(i int) DescriptorStartConfig {
	if i < 0 || i >= len(c.Descriptors) {
		return DescriptorStartConfig{}
	}
	return c.Descriptors[i]
}

// GlobalStartConfig is the requested topology for one activation
type GlobalStartConfig struct {
	// ChannelCount is the number of channels to consider, starting at 0
	ChannelCount uint32 `json:"channelCount" yaml:"ChannelCount"`

	// StartCycle runs the channels in cyclic mode when they are started
	StartCycle bool `json:"startCycle" yaml:"StartCycle"`

	// Channels holds per-channel setup.  Entries past the end read as zero.
	Channels []ChannelStartConfig `json:"channels" yaml:"Channels"`
}

// Channel returns the setup of channel i, or the zero value
func (c GlobalStartConfig) Channel(i int) ChannelStartConfig {
	if i < 0 || i >= len(c.Channels) {
		return ChannelStartConfig{}
	}
	return c.Channels[i]
}

// Normalize fills in counts left at zero from the length of the lists.
// It is meant for configs built in code; decoding from json or yaml fills
// only the counts whose key is absent, so an explicit 0 survives.
func (c *GlobalStartConfig) Normalize() {
	if c.ChannelCount == 0 {
		c.ChannelCount = uint32(len(c.Channels))
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.DescriptorCount == 0 {
			ch.DescriptorCount = uint32(len(ch.Descriptors))
		}
	}
}

// Topology is the result of Discover
type Topology struct {
	Limits        Limits
	Map           *MemoryMap
	Notifications *Notifications
}

func (r RegisterRequest) String() string {
	return fmt.Sprintf("bar %d addr %#x value %#08x", r.Bar, r.Address, r.Value)
}

// channelFields and globalFields have the fields but not the methods of the
// start configs, so decoding into them does not recurse
type channelFields ChannelStartConfig
type globalFields GlobalStartConfig

// descriptorCountKey and channelCountKey tell an absent count from a zero one
type descriptorCountKey struct {
	DescriptorCount *uint32 `json:"descriptorCount" yaml:"DescriptorCount"`
}

type channelCountKey struct {
	ChannelCount *uint32 `json:"channelCount" yaml:"ChannelCount"`
}

func (c *ChannelStartConfig) fill(f channelFields, key descriptorCountKey) {
	*c = ChannelStartConfig(f)
	if key.DescriptorCount == nil {
		c.DescriptorCount = uint32(len(c.Descriptors))
	}
}

func (c *GlobalStartConfig) fill(f globalFields, key channelCountKey) {
	*c = GlobalStartConfig(f)
	if key.ChannelCount == nil {
		c.ChannelCount = uint32(len(c.Channels))
	}
}

// UnmarshalJSON decodes a channel, taking DescriptorCount from the length of
// Descriptors only when the key is absent
func (c *ChannelStartConfig) UnmarshalJSON(b []byte) error {
	f, key := channelFields{}, descriptorCountKey{}
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &key); err != nil {
		return err
	}
	c.fill(f, key)
	return nil
}

// UnmarshalYAML is UnmarshalJSON for yaml
func (c *ChannelStartConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	f, key := channelFields{}, descriptorCountKey{}
	if err := unmarshal(&f); err != nil {
		return err
	}
	if err := unmarshal(&key); err != nil {
		return err
	}
	c.fill(f, key)
	return nil
}

// UnmarshalJSON decodes a config, taking ChannelCount from the length of
// Channels only when the key is absent
func (c *GlobalStartConfig) UnmarshalJSON(b []byte) error {
	f, key := globalFields{}, channelCountKey{}
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &key); err != nil {
		return err
	}
	c.fill(f, key)
	return nil
}

// UnmarshalYAML is UnmarshalJSON for yaml
func (c *GlobalStartConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	f, key := globalFields{}, channelCountKey{}
	if err := unmarshal(&f); err != nil {
		return err
	}
	if err := unmarshal(&key); err != nil {
		return err
	}
	c.fill(f, key)
	return nil
}
