package fpgadma_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nasa-jpl/golab/fpgadma"
)

func TestNotificationsAreABijection(t *testing.T) {
	s, be, prims := newMock()
	n, err := s.EstablishNotifications(fpgadma.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if n.Len() != 160 {
		t.Errorf("expected 160 events, got %d", n.Len())
	}
	if prims.Open() != 160 {
		t.Errorf("expected 160 open primitives, got %d", prims.Open())
	}

	seen := map[int32]bool{}
	for ch := 0; ch < fpgadma.MaxChannels; ch++ {
		for d := 0; d < fpgadma.MaxDescriptors; d++ {
			h, err := n.Handle(ch, d)
			if err != nil {
				t.Fatal(err)
			}
			if seen[h] {
				t.Errorf("handle %d of channel %d descriptor %d is not unique", h, ch, d)
			}
			seen[h] = true
		}
	}
	if len(seen) != 160 {
		t.Errorf("expected 160 distinct handles, got %d", len(seen))
	}

	local := n.Local()
	reg := be.Handles()
	for i := range local {
		if int32(local[i]) != reg[i] {
			t.Errorf("slot %d: created %d but registered %d", i, local[i], reg[i])
		}
	}
}

func TestNotificationsSmallBoard(t *testing.T) {
	s, be, _ := newMock()
	l := fpgadma.Limits{MaxDescriptors: 2, MaxDescriptorBufferSize: 4096, MaxChannels: 3}
	be.Lim = l
	n, err := s.EstablishNotifications(l)
	if err != nil {
		t.Fatal(err)
	}
	if n.Len() != 6 {
		t.Errorf("expected 6 events, got %d", n.Len())
	}
	tbl := n.Table()
	if tbl[3][0] != -1 || tbl[0][2] != -1 {
		t.Error("expected slots outside the limits to read -1")
	}
	h, _ := n.Handle(2, 1)
	if h != be.Handles()[l.SlotIndex(2, 1)] {
		t.Errorf("handle of channel 2 descriptor 1 not at slot %d", l.SlotIndex(2, 1))
	}
	if _, err := n.Handle(3, 0); !errors.Is(err, fpgadma.ErrInvalidChannel) {
		t.Errorf("expected invalid channel, got %v", err)
	}
}

func TestAllocationFailurePoisonsSession(t *testing.T) {
	s, be, prims := newMock()
	prims.FailAt = 13
	n, err := s.EstablishNotifications(fpgadma.DefaultLimits())
	if !errors.Is(err, fpgadma.ErrNotificationAllocation) {
		t.Fatalf("expected allocation failure, got %v", err)
	}
	var e *fpgadma.Error
	if !errors.As(err, &e) || e.Op != "create event for channel 1 descriptor 4" {
		t.Errorf("expected the failing slot to be named, got %v", err)
	}
	if n == nil || n.Len() != 12 {
		t.Fatalf("expected 12 partial events to be handed back, got %v", n)
	}
	if len(be.Handles()) != 0 {
		t.Error("a partial table reached the driver")
	}
	if err := s.WriteRegister(0, 0, 0); !errors.Is(err, fpgadma.ErrInvalidSession) {
		t.Errorf("expected the session to be poisoned, got %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if prims.Open() != 0 {
		t.Errorf("expected every partial event closed, %d left", prims.Open())
	}
}

func TestRegistrationFailure(t *testing.T) {
	s, be, _ := newMock()
	be.RejectHandles = true
	n, err := s.EstablishNotifications(fpgadma.DefaultLimits())
	if !errors.Is(err, fpgadma.ErrRegistration) {
		t.Errorf("expected registration failure, got %v", err)
	}
	if n == nil || n.Len() != 160 {
		t.Error("expected the created events to be handed back")
	}
	if err := s.WriteRegister(0, 0, 0); err != nil {
		t.Errorf("a registration failure should leave the session usable, got %v", err)
	}
}

func TestWaitWakesOnSignal(t *testing.T) {
	s, _, prims := newMock()
	n, err := s.EstablishNotifications(fpgadma.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	h, _ := n.Handle(4, 2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		prims.Signal(int(h), 3)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := n.Wait(ctx, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Errorf("expected a count of 3, got %d", v)
	}
	if p, _ := n.Pending(4, 2); p != 0 {
		t.Errorf("expected the count to be cleared, got %d", p)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	s, _, _ := newMock()
	n, err := s.EstablishNotifications(fpgadma.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := n.Wait(ctx, 0, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	s, _, _ := newMock()
	topo, err := s.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if topo.Limits != fpgadma.DefaultLimits() {
		t.Errorf("expected default limits, got %+v", topo.Limits)
	}
	if topo.Notifications.Len() != 160 {
		t.Errorf("expected 160 events, got %d", topo.Notifications.Len())
	}
	if topo.Map[19][7].Physical == 0 {
		t.Error("expected the memory map to be filled")
	}
}

func TestQueryMemoryMapQueriesLimitsFirst(t *testing.T) {
	s, be, _ := newMock()
	be.FailLimits = true
	if _, err := s.QueryMemoryMap(); !errors.Is(err, fpgadma.ErrHardwareAccess) {
		t.Errorf("expected the limits query to fail first, got %v", err)
	}
	be.FailLimits = false
	m, err := s.QueryMemoryMap()
	if err != nil {
		t.Fatal(err)
	}
	if m[0][1].Physical != 0x100100000 {
		t.Errorf("expected %#x got %#x", 0x100100000, m[0][1].Physical)
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	s, _, prims := newMock()
	n, err := s.EstablishNotifications(fpgadma.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		_, err := n.Wait(ctx, 2, 1)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, fpgadma.ErrInvalidSession) {
			t.Errorf("expected the waiter to fail as closed, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Close did not wake the waiter")
	}
	if prims.Open() != 0 {
		t.Errorf("expected every event closed, %d left", prims.Open())
	}
	if _, err := n.Pending(2, 1); !errors.Is(err, fpgadma.ErrInvalidSession) {
		t.Errorf("expected Pending after Close to fail, got %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("expected a second Close to be a no-op, got %v", err)
	}
}

func TestMockCloseWakesWaiter(t *testing.T) {
	prims := fpgadma.NewMockPrimitives()
	fd, err := prims.New()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		_, err := prims.Wait(ctx, fd)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := prims.Close(fd); err != nil {
		t.Fatal(err)
	}
	if err := <-errs; err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the waiter to see the close, got %v", err)
	}
}
