package fpgadma

import (
	"fmt"
	"sync"
)

// Session is an open DMA device.  It is concurrent safe; every exported
// method holds the session mutex from start to finish, so no two register
// operations, simple or compound, are ever in flight at once.
type Session struct {
	mu sync.Mutex

	be    Backend
	prims Primitives

	// limits is valid once known is true
	limits Limits
	known  bool

	// poisoned is set when a notification pass fails half way;
	// the session must be reopened
	poisoned bool
}

// Option configures a Session
type Option func(*Session)

// WithPrimitives replaces the eventfd based notification primitives
func WithPrimitives(p Primitives) Option {
	return func(s *Session) { s.prims = p }
}

// WithLimits seeds the session with known limits, skipping the query that
// would otherwise bound channel indices.  Mostly useful with a mock backend.
func WithLimits(l Limits) Option {
	return func(s *Session) {
		s.limits = l.capped()
		s.known = true
	}
}

// New creates a session on an already open backend
func New(be Backend, opts ...Option) *Session {
	s := &Session{be: be, prims: defaultPrimitives()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the device node at path and returns a session on it
func Open(path string, opts ...Option) (*Session, error) {
	be, err := openBackend(path)
	if err != nil {
		return nil, fail(ErrInvalidSession, "open", err)
	}
	return New(be, opts...), nil
}

// Close releases the device.  Eventfds handed out by EstablishNotifications
// are owned by the caller and are not closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.be == nil {
		return nil
	}
	err := s.be.Close()
	s.be = nil
	if err != nil {
		return fail(ErrHardwareAccess, "close", err)
	}
	return nil
}

// valid must be called with mu held
func (s *Session) valid(op string) error {
	if s.be == nil || s.poisoned {
		return fail(ErrInvalidSession, op, nil)
	}
	return nil
}

// currentLimits must be called with mu held
func (s *Session) currentLimits() Limits {
	if s.known {
		return s.limits
	}
	return DefaultLimits()
}

// WriteRegister writes value at offset of bar.  The offset is a byte address;
// translate register indices with DeviceAddress first.
func (s *Session) WriteRegister(bar uint8, offset uint64, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("write register"); err != nil {
		return err
	}
	return s.writeRegister(bar, offset, value)
}

// ReadRegister reads the word at offset of bar
func (s *Session) ReadRegister(bar uint8, offset uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("read register"); err != nil {
		return 0, err
	}
	return s.readRegister(bar, offset)
}

// writeRegister is the single path of every register write; mu must be held
func (s *Session) writeRegister(bar uint8, offset uint64, value uint32) error {
	r := RegisterRequest{Bar: bar, Address: offset, Value: value}
	if err := s.be.SetRegister(r); err != nil {
		return fail(ErrHardwareAccess, fmt.Sprintf("write %#x", offset), err)
	}
	return nil
}

// readRegister is the single path of every register read; mu must be held
func (s *Session) readRegister(bar uint8, offset uint64) (uint32, error) {
	r := RegisterRequest{Bar: bar, Address: offset}
	if err := s.be.GetRegister(&r); err != nil {
		return 0, fail(ErrHardwareAccess, fmt.Sprintf("read %#x", offset), err)
	}
	return r.Value, nil
}

// Status returns the DMA status word reported by the driver
func (s *Session) Status() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("status"); err != nil {
		return 0, err
	}
	st, err := s.be.Status()
	if err != nil {
		return 0, fail(ErrHardwareAccess, "status", err)
	}
	return st, nil
}

// FirmwareVersion reads the version register of the FPGA design
func (s *Session) FirmwareVersion() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("firmware version"); err != nil {
		return 0, err
	}
	return s.readRegister(RegisterBar, DeviceAddress(RegFirmwareVersion))
}
