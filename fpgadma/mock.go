package fpgadma

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrMockFault is returned by the mocks when a fault is injected
	ErrMockFault = errors.New("injected fault")

	errMockClosed = errors.New("mock device closed")
)

type regKey struct {
	bar  uint8
	addr uint64
}

// Signaller is something that can signal a notification primitive,
// MockPrimitives for example
type Signaller interface {
	Signal(fd int, n uint64)
}

// MockBackend is a register file in memory that behaves like the driver.
// Starting a channel completes every descriptor of it at once: the index
// register moves to the last descriptor and, if Events is set, the handle of
// every interrupt enabled descriptor is signalled.
type MockBackend struct {
	sync.Mutex

	// Lim is reported by Limits
	Lim Limits

	// Map is reported by MemoryMap
	Map MemoryMap

	// StatusWord is reported by Status
	StatusWord uint32

	// Events receives a signal for every completed descriptor
	Events Signaller

	// FailWriteAt makes the n-th register write (1 based) fail, 0 never
	FailWriteAt int

	// FailReads makes every register read fail
	FailReads bool

	// FailLimits and FailMemoryMap make the queries fail
	FailLimits    bool
	FailMemoryMap bool

	// RejectHandles makes handle registration fail
	RejectHandles bool

	regs    map[regKey]uint32
	ops     []RegisterOp
	writes  int
	handles []int32
	closed  bool
}

// NewMockBackend returns a mock with the structural maxima for limits and a
// buffer map where every descriptor owns a distinct 1 MiB window above 4 GiB
func NewMockBackend() *MockBackend {
	m := &MockBackend{Lim: DefaultLimits()}
	for ch := range m.Map {
		for d := range m.Map[ch] {
			off := uint64(ch*MaxDescriptors+d) << 20
			m.Map[ch][d] = Buffer{
				Virtual:  0x7f0000000000 + off,
				Physical: 0x100000000 + off,
			}
		}
	}
	m.Reset()
	return m
}

// Reset clears the register file, the operation log and the registered
// handles.  Fault switches are left alone.
func (m *MockBackend) Reset() {
	m.Lock()
	defer m.Unlock()
	m.regs = map[regKey]uint32{
		{RegisterBar, DeviceAddress(RegFirmwareVersion)}: DriverVersion,
	}
	m.ops = nil
	m.writes = 0
	m.handles = nil
	m.closed = false
}

func (m *MockBackend) SetRegister(r RegisterRequest) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return errMockClosed
	}
	m.writes++
	if m.FailWriteAt != 0 && m.writes == m.FailWriteAt {
		return errors.Wrapf(ErrMockFault, "write %d", m.writes)
	}
	m.ops = append(m.ops, RegisterOp{Kind: OpWrite, Bar: r.Bar, Address: r.Address, Value: r.Value})
	m.regs[regKey{r.Bar, r.Address}] = r.Value
	if r.Bar == RegisterBar {
		m.sideEffects(r.Address, r.Value)
	}
	return nil
}

// sideEffects emulates the engine for a write of v to addr, mu held
func (m *MockBackend) sideEffects(addr uint64, v uint32) {
	if addr == DeviceAddress(RegInterruptData) {
		m.regs[regKey{RegisterBar, DeviceAddress(RegInterruptStatus)}] &^= v
		return
	}
	base := DeviceAddress(RegControl)
	if addr < base || addr >= base+channelStride*MaxChannels || (addr-base)%channelStride != 0 {
		return
	}
	ch := int((addr - base) / channelStride)
	if v&controlStart == 0 {
		return
	}
	n := int(m.regs[regKey{RegisterBar, ChannelRegister(RegDescriptorCount, ch)}])
	if n == 0 {
		return
	}
	if n > MaxDescriptors {
		n = MaxDescriptors
	}
	m.regs[regKey{RegisterBar, ChannelRegister(RegDescriptorIndex, ch)}] = uint32(n - 1)
	for d := 0; d < n; d++ {
		if m.regs[regKey{RegisterBar, DescriptorField(ch, d, FieldInterrupt)}] == 0 {
			continue
		}
		m.regs[regKey{RegisterBar, DeviceAddress(RegInterruptStatus)}] |= 1 << uint(ch%32)
		i := m.Lim.SlotIndex(ch, d)
		if m.Events != nil && m.Lim.Contains(ch, d) && i < len(m.handles) && m.handles[i] >= 0 {
			m.Events.Signal(int(m.handles[i]), 1)
		}
	}
}

func (m *MockBackend) GetRegister(r *RegisterRequest) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return errMockClosed
	}
	if m.FailReads {
		return errors.Wrapf(ErrMockFault, "read %#x", r.Address)
	}
	r.Value = m.regs[regKey{r.Bar, r.Address}]
	m.ops = append(m.ops, RegisterOp{Kind: OpRead, Bar: r.Bar, Address: r.Address, Value: r.Value})
	return nil
}

func (m *MockBackend) Limits() (Limits, error) {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return Limits{}, errMockClosed
	}
	if m.FailLimits {
		return Limits{}, errors.Wrap(ErrMockFault, "limits")
	}
	return m.Lim, nil
}

func (m *MockBackend) MemoryMap() (*MemoryMap, error) {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return nil, errMockClosed
	}
	if m.FailMemoryMap {
		return nil, errors.Wrap(ErrMockFault, "memory map")
	}
	cp := m.Map
	return &cp, nil
}

func (m *MockBackend) SetNotificationHandles(h []int32) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return errMockClosed
	}
	if m.RejectHandles {
		return errors.Wrap(ErrMockFault, "register handles")
	}
	m.handles = append([]int32(nil), h...)
	return nil
}

// NotificationHandles lays the registered handles out with the slot index
// of the mock limits, like the driver does.  Unregistered entries are -1.
func (m *MockBackend) NotificationHandles() (*HandleTable, error) {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return nil, errMockClosed
	}
	t := new(HandleTable)
	for ch := range t {
		for d := range t[ch] {
			t[ch][d] = handleUnregistered
			i := m.Lim.SlotIndex(ch, d)
			if m.Lim.Contains(ch, d) && i < len(m.handles) {
				t[ch][d] = m.handles[i]
			}
		}
	}
	return t, nil
}

func (m *MockBackend) Status() (uint32, error) {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return 0, errMockClosed
	}
	return m.StatusWord, nil
}

func (m *MockBackend) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closed = true
	return nil
}

// Ops returns every register operation that reached the mock, in order
func (m *MockBackend) Ops() []RegisterOp {
	m.Lock()
	defer m.Unlock()
	return append([]RegisterOp(nil), m.ops...)
}

// Writes returns the register writes that reached the mock, in order
func (m *MockBackend) Writes() []RegisterOp {
	return Plan{Ops: m.Ops()}.Writes()
}

// Register returns the last value written at addr of bar
func (m *MockBackend) Register(bar uint8, addr uint64) uint32 {
	m.Lock()
	defer m.Unlock()
	return m.regs[regKey{bar, addr}]
}

// Handles returns the flat handle array last registered
func (m *MockBackend) Handles() []int32 {
	m.Lock()
	defer m.Unlock()
	return append([]int32(nil), m.handles...)
}

// MockPrimitives hands out fake descriptors that only Signal can wake
type MockPrimitives struct {
	sync.Mutex

	// FailAt makes the n-th call to New (1 based) fail, 0 never
	FailAt int

	next    int
	created int
	counts  map[int]uint64
	open    map[int]bool
	wake    chan struct{}
}

// NewMockPrimitives returns mock primitives numbered from 1000
func NewMockPrimitives() *MockPrimitives {
	return &MockPrimitives{
		next:   1000,
		counts: make(map[int]uint64),
		open:   make(map[int]bool),
		wake:   make(chan struct{}),
	}
}

func (p *MockPrimitives) New() (int, error) {
	p.Lock()
	defer p.Unlock()
	p.created++
	if p.FailAt != 0 && p.created == p.FailAt {
		return -1, errors.Wrapf(ErrMockFault, "event %d", p.created)
	}
	fd := p.next
	p.next++
	p.open[fd] = true
	return fd, nil
}

// Signal adds n to the count of fd and wakes its waiters
func (p *MockPrimitives) Signal(fd int, n uint64) {
	p.Lock()
	defer p.Unlock()
	if !p.open[fd] {
		return
	}
	p.counts[fd] += n
	close(p.wake)
	p.wake = make(chan struct{})
}

func (p *MockPrimitives) Pending(fd int) (uint64, error) {
	p.Lock()
	defer p.Unlock()
	if !p.open[fd] {
		return 0, errors.Errorf("mock event %d is not open", fd)
	}
	v := p.counts[fd]
	p.counts[fd] = 0
	return v, nil
}

func (p *MockPrimitives) Wait(ctx context.Context, fd int) (uint64, error) {
	for {
		p.Lock()
		if !p.open[fd] {
			p.Unlock()
			return 0, errors.Errorf("mock event %d is not open", fd)
		}
		if v := p.counts[fd]; v != 0 {
			p.counts[fd] = 0
			p.Unlock()
			return v, nil
		}
		wake := p.wake
		p.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Close releases fd and wakes its waiters, which then fail
func (p *MockPrimitives) Close(fd int) error {
	p.Lock()
	defer p.Unlock()
	if !p.open[fd] {
		return errors.Errorf("mock event %d is not open", fd)
	}
	delete(p.open, fd)
	delete(p.counts, fd)
	close(p.wake)
	p.wake = make(chan struct{})
	return nil
}

// Open returns the number of primitives created and not yet closed
func (p *MockPrimitives) Open() int {
	p.Lock()
	defer p.Unlock()
	return len(p.open)
}
