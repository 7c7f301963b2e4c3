package fpgadma

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var errNotificationsClosed = errors.New("notifications are closed")

// Primitives creates, waits on, and releases notification primitives:
// file descriptors the driver signals when a descriptor completes.
// On linux these are non-blocking eventfds.
type Primitives interface {
	// New creates a primitive.  It must not block.
	New() (int, error)

	// Pending returns and clears the count accumulated on fd, 0 if none
	Pending(fd int) (uint64, error)

	// Wait blocks until fd is signalled or ctx is done, then returns and
	// clears the accumulated count
	Wait(ctx context.Context, fd int) (uint64, error)

	// Close releases fd
	Close(fd int) error
}

// Notifications holds one primitive per channel/descriptor pair, created by
// this process and registered with the driver.  It is owned by the caller.
type Notifications struct {
	mu     sync.Mutex
	limits Limits
	prims  Primitives

	// users counts Pending and Wait calls in flight; Close waits for them
	// so no primitive is released while a caller still holds its number
	users  sync.WaitGroup
	closed bool
	done   chan struct{}

	// local is what this process created, indexed like the driver table
	local [MaxChannels][MaxDescriptors]int
	count int

	// table is what the driver reported back after registration
	table HandleTable
}

func newNotifications(l Limits, p Primitives) *Notifications {
	n := &Notifications{limits: l, prims: p, done: make(chan struct{})}
	for ch := range n.local {
		for d := range n.local[ch] {
			n.local[ch][d] = -1
		}
	}
	return n
}

// EstablishNotifications creates one primitive per channel/descriptor pair of
// l, registers them with the driver in a single call, then reads the table
// back.  A failed allocation is not rolled back and leaves the session
// unusable; the partially filled Notifications is still returned so the
// caller may Close it.
func (s *Session) EstablishNotifications(l Limits) (*Notifications, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("establish notifications"); err != nil {
		return nil, err
	}
	return s.establishNotifications(l)
}

func (s *Session) establishNotifications(l Limits) (*Notifications, error) {
	l = l.capped()
	n := newNotifications(l, s.prims)
	flat := make([]int32, l.Slots())
	for ch := 0; ch < int(l.MaxChannels); ch++ {
		for d := 0; d < int(l.MaxDescriptors); d++ {
			fd, err := s.prims.New()
			if err != nil {
				s.poisoned = true
				return n, fail(ErrNotificationAllocation,
					fmt.Sprintf("create event for channel %d descriptor %d", ch, d), err)
			}
			n.local[ch][d] = fd
			n.count++
			flat[l.SlotIndex(ch, d)] = int32(fd)
		}
	}

	if err := s.be.SetNotificationHandles(flat); err != nil {
		return n, fail(ErrRegistration, "register event handles", err)
	}

	t, err := s.be.NotificationHandles()
	if err != nil {
		return n, fail(ErrHardwareAccess, "read back event handles", err)
	}
	n.table = *t
	log.Printf("fpgadma: registered %d events, %d channels × %d descriptors\n",
		n.count, l.MaxChannels, l.MaxDescriptors)
	return n, nil
}

// Limits returns the limits the notifications were created for
func (n *Notifications) Limits() Limits { return n.limits }

// Len returns the number of primitives created
func (n *Notifications) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// Table returns the handle table as reported by the driver
func (n *Notifications) Table() HandleTable {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table
}

// Handle returns the driver's handle for a channel/descriptor pair
func (n *Notifications) Handle(channel, descriptor int) (int32, error) {
	if !n.limits.Contains(channel, descriptor) {
		return 0, n.badSlot(channel, descriptor)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table[channel][descriptor], nil
}

// Local returns the descriptors created by this process in the flat layout
// registered with the driver
func (n *Notifications) Local() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, n.limits.Slots())
	for i := range out {
		ch, d := n.limits.Slot(i)
		out[i] = n.local[ch][d]
	}
	return out
}

// acquire returns the primitive of a pair and registers the caller as a
// user; release with n.users.Done
func (n *Notifications) acquire(channel, descriptor int) (int, error) {
	if !n.limits.Contains(channel, descriptor) {
		return -1, n.badSlot(channel, descriptor)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return -1, fail(ErrInvalidSession, "notifications", errNotificationsClosed)
	}
	fd := n.local[channel][descriptor]
	if fd < 0 {
		return -1, fail(ErrInvalidSession, fmt.Sprintf("event for channel %d descriptor %d", channel, descriptor), nil)
	}
	n.users.Add(1)
	return fd, nil
}

func (n *Notifications) badSlot(channel, descriptor int) error {
	return fail(ErrInvalidChannel,
		fmt.Sprintf("channel %d descriptor %d outside %d × %d", channel, descriptor, n.limits.MaxChannels, n.limits.MaxDescriptors), nil)
}

// Pending returns the number of completions signalled on a channel/descriptor
// pair since the last call, without blocking
func (n *Notifications) Pending(channel, descriptor int) (uint64, error) {
	fd, err := n.acquire(channel, descriptor)
	if err != nil {
		return 0, err
	}
	defer n.users.Done()
	return n.prims.Pending(fd)
}

// Wait blocks until the driver signals a channel/descriptor pair, ctx is
// done, or the notifications are closed
func (n *Notifications) Wait(ctx context.Context, channel, descriptor int) (uint64, error) {
	fd, err := n.acquire(channel, descriptor)
	if err != nil {
		return 0, err
	}
	defer n.users.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	v, err := n.prims.Wait(ctx, fd)
	select {
	case <-n.done:
		if err != nil {
			return 0, fail(ErrInvalidSession, "wait", errNotificationsClosed)
		}
	default:
	}
	return v, err
}

// Close wakes any Wait in progress, waits for it to return, then releases
// every primitive this process created.  The driver must no longer signal
// them.  Closing twice is a no-op.
func (n *Notifications) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.done)
	n.mu.Unlock()
	n.users.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	var first error
	for ch := range n.local {
		for d := range n.local[ch] {
			fd := n.local[ch][d]
			if fd < 0 {
				continue
			}
			if err := n.prims.Close(fd); err != nil && first == nil {
				first = err
			}
			n.local[ch][d] = -1
		}
	}
	n.count = 0
	return first
}
