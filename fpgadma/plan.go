package fpgadma

import (
	"fmt"

	"github.com/snksoft/crc"
)

// OpKind is the direction of a register operation
type OpKind uint8

const (
	// OpRead reads a register and discards the value
	OpRead OpKind = iota

	// OpWrite writes a register
	OpWrite
)

func (k OpKind) String() string {
	if k == OpRead {
		return "read"
	}
	return "write"
}

// MarshalText makes OpKind human readable in json and yaml
func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RegisterOp is one step of a Plan
type RegisterOp struct {
	Kind    OpKind `json:"kind"`
	Bar     uint8  `json:"bar"`
	Address uint64 `json:"address"`
	Value   uint32 `json:"value"`
}

func (op RegisterOp) String() string {
	if op.Kind == OpRead {
		return fmt.Sprintf("read  bar %d %#x", op.Bar, op.Address)
	}
	return fmt.Sprintf("write bar %d %#x = %#x", op.Bar, op.Address, op.Value)
}

// Clamp records a requested value that was reduced to fit the board.
// Channel and Descriptor are -1 when they do not apply.
type Clamp struct {
	Field      string `json:"field"`
	Channel    int    `json:"channel"`
	Descriptor int    `json:"descriptor"`
	Requested  uint32 `json:"requested"`
	Applied    uint32 `json:"applied"`
}

func (c Clamp) String() string {
	where := ""
	if c.Channel >= 0 {
		where = fmt.Sprintf(" channel %d", c.Channel)
	}
	if c.Descriptor >= 0 {
		where += fmt.Sprintf(" descriptor %d", c.Descriptor)
	}
	return fmt.Sprintf("%s%s clamped from %d to %d", c.Field, where, c.Requested, c.Applied)
}

// Plan is the ordered register traffic of one configuration pass
type Plan struct {
	// Ops are executed in order; the first failure aborts the pass
	Ops []RegisterOp `json:"ops"`

	// Channels lists the channels the plan programs, ascending
	Channels []int `json:"channels"`

	// Clamped lists every requested value that did not fit
	Clamped []Clamp `json:"clamped,omitempty"`
}

func (p *Plan) read(addr uint64) {
	p.Ops = append(p.Ops, RegisterOp{Kind: OpRead, Bar: RegisterBar, Address: addr})
}

func (p *Plan) write(addr uint64, value uint32) {
	p.Ops = append(p.Ops, RegisterOp{Kind: OpWrite, Bar: RegisterBar, Address: addr, Value: value})
}

func (p *Plan) clamp(field string, ch, d int, req, applied uint32) {
	p.Clamped = append(p.Clamped, Clamp{Field: field, Channel: ch, Descriptor: d, Requested: req, Applied: applied})
}

// BuildPlan lays out the register traffic that programs req into the
// descriptor table, using the buffers of m and bounded by l.
// It does not touch hardware.
func BuildPlan(req GlobalStartConfig, m *MemoryMap, l Limits) Plan {
	var p Plan
	l = l.capped()
	if m == nil {
		m = new(MemoryMap)
	}

	// clear anything pending before reprogramming
	p.read(DeviceAddress(RegInterruptStatus))
	p.write(DeviceAddress(RegInterruptData), interruptClearAll)

	nch := req.ChannelCount
	if nch > l.MaxChannels {
		p.clamp("channel count", -1, -1, nch, l.MaxChannels)
		nch = l.MaxChannels
	}
	for ch := 0; ch < int(nch); ch++ {
		cfg := req.Channel(ch)
		nd := cfg.DescriptorCount
		if nd > l.MaxDescriptors {
			p.clamp("descriptor count", ch, -1, nd, l.MaxDescriptors)
			nd = l.MaxDescriptors
		}
		if nd == 0 {
			continue
		}
		p.Channels = append(p.Channels, ch)
		p.write(ChannelRegister(RegControl, ch), 0)
		p.write(ChannelRegister(RegDescriptorCount, ch), nd)

		for d := 0; d < int(nd); d++ {
			dcfg := cfg.Descriptor(d)
			pa := m[ch][d].Physical
			p.write(DescriptorField(ch, d, FieldAddressLow), uint32(pa))
			p.write(DescriptorField(ch, d, FieldAddressHigh), uint32(pa>>32))

			size := dcfg.BufferSize
			if size > l.MaxDescriptorBufferSize {
				p.clamp("buffer size", ch, d, size, l.MaxDescriptorBufferSize)
				size = l.MaxDescriptorBufferSize
			}
			p.write(DescriptorField(ch, d, FieldSize), size|descriptorValid)

			irq := dcfg.InterruptEnable
			if irq > 1 {
				p.clamp("interrupt enable", ch, d, irq, 1)
				irq = 1
			}
			p.write(DescriptorField(ch, d, FieldInterrupt), irq)
		}
	}

	p.write(DeviceAddress(RegPPSTrigger), 0)
	return p
}

// Writes returns only the write operations of p
func (p Plan) Writes() []RegisterOp {
	out := make([]RegisterOp, 0, len(p.Ops))
	for _, op := range p.Ops {
		if op.Kind == OpWrite {
			out = append(out, op)
		}
	}
	return out
}

var planCRC = crc.NewTable(crc.CRC32)

// Checksum is a CRC-32 over the packed operations of p.  Two plans with the
// same checksum program the board identically.
func (p Plan) Checksum() uint32 {
	var b [14]byte
	c := planCRC.InitCrc()
	for _, op := range p.Ops {
		b[0] = byte(op.Kind)
		b[1] = op.Bar
		le.PutUint64(b[2:], op.Address)
		le.PutUint32(b[10:], op.Value)
		c = planCRC.UpdateCrc(c, b[:])
	}
	return planCRC.CRC32(c)
}
