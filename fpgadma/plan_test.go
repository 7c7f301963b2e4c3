package fpgadma_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/golab/fpgadma"
)

func write(addr uint64, v uint32) fpgadma.RegisterOp {
	return fpgadma.RegisterOp{Kind: fpgadma.OpWrite, Address: addr, Value: v}
}

func ExampleBuildPlan() {
	m := new(fpgadma.MemoryMap)
	m[0][0].Physical = 0x1_0000_0008
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 1,
		Channels: []fpgadma.ChannelStartConfig{{
			DescriptorCount: 1,
			Descriptors:     []fpgadma.DescriptorStartConfig{{BufferSize: 0x2000, InterruptEnable: 5}},
		}},
	}
	p := fpgadma.BuildPlan(req, m, fpgadma.DefaultLimits())
	for _, op := range p.Ops {
		fmt.Println(op)
	}
	for _, c := range p.Clamped {
		fmt.Println(c)
	}
	// Output:
	// read  bar 0 0x14
	// write bar 0 0x18 = 0xff
	// write bar 0 0x400 = 0x0
	// write bar 0 0x404 = 0x1
	// write bar 0 0x2000 = 0x8
	// write bar 0 0x2004 = 0x1
	// write bar 0 0x2008 = 0x80002000
	// write bar 0 0x200c = 0x1
	// write bar 0 0x5c = 0x0
	// interrupt enable channel 0 descriptor 0 clamped from 5 to 1
}

func TestPlanDescriptorWords(t *testing.T) {
	m := new(fpgadma.MemoryMap)
	m[0][0].Physical = 0x1_0000_0008
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 1,
		Channels: []fpgadma.ChannelStartConfig{{
			DescriptorCount: 1,
			Descriptors:     []fpgadma.DescriptorStartConfig{{BufferSize: 0x2000, InterruptEnable: 1}},
		}},
	}
	p := fpgadma.BuildPlan(req, m, fpgadma.DefaultLimits())
	expected := []fpgadma.RegisterOp{
		write(0x18, 0xFF),
		write(0x400, 0),
		write(0x404, 1),
		write(0x2000, 0x8),
		write(0x2004, 0x1),
		write(0x2008, 0x80002000),
		write(0x200C, 1),
		write(0x5C, 0),
	}
	if diff := cmp.Diff(expected, p.Writes()); diff != "" {
		t.Errorf("plan writes mismatch (-want +got):\n%s", diff)
	}
	if p.Ops[0].Kind != fpgadma.OpRead || p.Ops[0].Address != 0x14 {
		t.Errorf("expected the pass to open with a read of the interrupt status, got %v", p.Ops[0])
	}
	if len(p.Clamped) != 0 {
		t.Errorf("expected no clamps, got %v", p.Clamped)
	}
}

func TestPlanSkipsEmptyChannels(t *testing.T) {
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 3,
		Channels: []fpgadma.ChannelStartConfig{
			{DescriptorCount: 1, Descriptors: []fpgadma.DescriptorStartConfig{{BufferSize: 16}}},
			{DescriptorCount: 0},
			{DescriptorCount: 2},
		},
	}
	p := fpgadma.BuildPlan(req, new(fpgadma.MemoryMap), fpgadma.DefaultLimits())
	if diff := cmp.Diff([]int{0, 2}, p.Channels); diff != "" {
		t.Errorf("programmed channels mismatch (-want +got):\n%s", diff)
	}
	lo := fpgadma.ChannelRegister(fpgadma.RegControl, 1)
	for _, op := range p.Writes() {
		if op.Address == lo || op.Address == fpgadma.ChannelRegister(fpgadma.RegDescriptorCount, 1) {
			t.Errorf("channel 1 has no descriptors but got %v", op)
		}
		if op.Address >= fpgadma.DescriptorField(1, 0, 0) && op.Address < fpgadma.DescriptorField(2, 0, 0) {
			t.Errorf("channel 1 descriptor table touched by %v", op)
		}
	}
	// descriptors past the end of the list are programmed with zero size
	for _, op := range p.Writes() {
		if op.Address == fpgadma.DescriptorField(2, 1, fpgadma.FieldSize) && op.Value != 1<<31 {
			t.Errorf("expected an empty valid descriptor, got %v", op)
		}
	}
}

func TestPlanClamps(t *testing.T) {
	l := fpgadma.Limits{MaxDescriptors: 2, MaxDescriptorBufferSize: 1024, MaxChannels: 1}
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 4,
		Channels: []fpgadma.ChannelStartConfig{{
			DescriptorCount: 9,
			Descriptors:     []fpgadma.DescriptorStartConfig{{BufferSize: 4096}, {BufferSize: 10}},
		}},
	}
	p := fpgadma.BuildPlan(req, new(fpgadma.MemoryMap), l)
	expected := []fpgadma.Clamp{
		{Field: "channel count", Channel: -1, Descriptor: -1, Requested: 4, Applied: 1},
		{Field: "descriptor count", Channel: 0, Descriptor: -1, Requested: 9, Applied: 2},
		{Field: "buffer size", Channel: 0, Descriptor: 0, Requested: 4096, Applied: 1024},
	}
	if diff := cmp.Diff(expected, p.Clamped); diff != "" {
		t.Errorf("clamps mismatch (-want +got):\n%s", diff)
	}
	found := false
	for _, op := range p.Writes() {
		if op.Address == fpgadma.DescriptorField(0, 0, fpgadma.FieldSize) {
			found = true
			if op.Value != 1024|1<<31 {
				t.Errorf("expected clamped size, got %#x", op.Value)
			}
		}
	}
	if !found {
		t.Error("no size written for channel 0 descriptor 0")
	}
}

func TestPlanChecksum(t *testing.T) {
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 1,
		Channels:     []fpgadma.ChannelStartConfig{{DescriptorCount: 1}},
	}
	m := new(fpgadma.MemoryMap)
	a := fpgadma.BuildPlan(req, m, fpgadma.DefaultLimits())
	b := fpgadma.BuildPlan(req, m, fpgadma.DefaultLimits())
	if a.Checksum() != b.Checksum() {
		t.Error("expected identical plans to share a checksum")
	}
	m[0][0].Physical = 0x1000
	c := fpgadma.BuildPlan(req, m, fpgadma.DefaultLimits())
	if a.Checksum() == c.Checksum() {
		t.Error("expected a different buffer to change the checksum")
	}
}

func TestConfigureMatchesPlan(t *testing.T) {
	s, be, _ := newMock()
	m := new(fpgadma.MemoryMap)
	m[1][0].Physical = 0x4000
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 2,
		Channels: []fpgadma.ChannelStartConfig{
			{},
			{DescriptorCount: 1, Descriptors: []fpgadma.DescriptorStartConfig{{BufferSize: 64, InterruptEnable: 1}}},
		},
	}
	if err := s.Configure(req, m); err != nil {
		t.Fatal(err)
	}
	p := fpgadma.BuildPlan(req, m, fpgadma.DefaultLimits())
	if diff := cmp.Diff(p.Ops, be.Ops()); diff != "" {
		t.Errorf("hardware traffic differs from the plan (-want +got):\n%s", diff)
	}
}

func TestConfigureStopsAtFirstFailure(t *testing.T) {
	s, be, _ := newMock()
	be.FailWriteAt = 3
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 1,
		Channels:     []fpgadma.ChannelStartConfig{{DescriptorCount: 2}},
	}
	err := s.Configure(req, new(fpgadma.MemoryMap))
	if !errors.Is(err, fpgadma.ErrHardwareAccess) {
		t.Fatalf("expected hardware access failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "write 0x404") {
		t.Errorf("expected the failing write to be named, got %v", err)
	}
	if n := len(be.Writes()); n != 2 {
		t.Errorf("expected the pass to stop after 2 writes, got %d", n)
	}
}

func TestConfigureWithoutMap(t *testing.T) {
	s, be, _ := newMock()
	if err := s.Configure(fpgadma.GlobalStartConfig{}, nil); err == nil {
		t.Error("expected an error without a memory map")
	}
	if len(be.Ops()) != 0 {
		t.Error("expected no hardware traffic without a memory map")
	}
}

func TestRunStartsProgrammedChannels(t *testing.T) {
	s, be, _ := newMock()
	topo, err := s.Discover()
	if err != nil {
		t.Fatal(err)
	}
	req := fpgadma.GlobalStartConfig{
		ChannelCount: 3,
		StartCycle:   true,
		Channels: []fpgadma.ChannelStartConfig{
			{DescriptorCount: 1, Descriptors: []fpgadma.DescriptorStartConfig{{BufferSize: 64, InterruptEnable: 1}}},
			{},
			{DescriptorCount: 2, Descriptors: []fpgadma.DescriptorStartConfig{{BufferSize: 64}, {BufferSize: 64, InterruptEnable: 1}}},
		},
	}
	if err := s.Run(req, topo.Map, true); err != nil {
		t.Fatal(err)
	}
	w := be.Writes()
	if w[0].Address != 0x20 || w[0].Value != 1 {
		t.Errorf("expected rx enable first, got %v", w[0])
	}
	for ch, expected := range []uint32{0xB, 0, 0xB} {
		if got := be.Register(0, fpgadma.ChannelRegister(fpgadma.RegControl, ch)); got != expected {
			t.Errorf("channel %d: expected control %#x got %#x", ch, expected, got)
		}
	}
	if got := be.Register(0, fpgadma.ChannelRegister(fpgadma.RegDescriptorIndex, 2)); got != 1 {
		t.Errorf("expected channel 2 to finish on descriptor 1, got %d", got)
	}
	if p, _ := topo.Notifications.Pending(2, 1); p != 1 {
		t.Errorf("expected one completion on channel 2 descriptor 1, got %d", p)
	}
	if p, _ := topo.Notifications.Pending(2, 0); p != 0 {
		t.Errorf("expected no completion without interrupt enable, got %d", p)
	}
}
