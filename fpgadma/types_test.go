package fpgadma_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/nasa-jpl/golab/fpgadma"
)

func ExampleLimits_SlotIndex() {
	l := fpgadma.DefaultLimits()
	fmt.Println(l.SlotIndex(0, 0), l.SlotIndex(1, 0), l.SlotIndex(19, 7))
	// Output: 0 8 159
}

func TestSlotIndexIsABijection(t *testing.T) {
	for _, l := range []fpgadma.Limits{
		fpgadma.DefaultLimits(),
		{MaxChannels: 3, MaxDescriptors: 5},
		{MaxChannels: 1, MaxDescriptors: 1},
	} {
		seen := make([]bool, l.Slots())
		for ch := 0; ch < int(l.MaxChannels); ch++ {
			for d := 0; d < int(l.MaxDescriptors); d++ {
				i := l.SlotIndex(ch, d)
				if i < 0 || i >= len(seen) || seen[i] {
					t.Fatalf("%+v: slot %d of channel %d descriptor %d is out of range or taken", l, i, ch, d)
				}
				seen[i] = true
				if c2, d2 := l.Slot(i); c2 != ch || d2 != d {
					t.Errorf("%+v: Slot(%d) = %d, %d, expected %d, %d", l, i, c2, d2, ch, d)
				}
			}
		}
	}
}

func TestNormalizeKeepsExplicitCounts(t *testing.T) {
	cfg := fpgadma.GlobalStartConfig{
		ChannelCount: 5,
		Channels: []fpgadma.ChannelStartConfig{
			{DescriptorCount: 3},
			{Descriptors: make([]fpgadma.DescriptorStartConfig, 2)},
		},
	}
	cfg.Normalize()
	if cfg.ChannelCount != 5 {
		t.Errorf("expected the channel count to be kept, got %d", cfg.ChannelCount)
	}
	if cfg.Channels[0].DescriptorCount != 3 || cfg.Channels[1].DescriptorCount != 2 {
		t.Errorf("expected descriptor counts 3 and 2, got %d and %d",
			cfg.Channels[0].DescriptorCount, cfg.Channels[1].DescriptorCount)
	}
	if d := cfg.Channel(4).Descriptor(0); d.BufferSize != 0 {
		t.Error("expected missing entries to read as zero")
	}
}

func TestJSONCountsOnlyFillWhenAbsent(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		channels    uint32
		descriptors []uint32
	}{
		{"absent", `{"channels": [{"descriptors": [{}, {}]}]}`, 1, []uint32{2}},
		{"explicit zero descriptors", `{"channelCount": 1, "channels": [{"descriptorCount": 0, "descriptors": [{}]}]}`, 1, []uint32{0}},
		{"explicit zero channels", `{"channelCount": 0, "channels": [{"descriptors": [{}]}]}`, 0, []uint32{1}},
		{"explicit counts", `{"channelCount": 4, "channels": [{"descriptorCount": 3}]}`, 4, []uint32{3}},
	}
	for _, c := range cases {
		cfg := fpgadma.GlobalStartConfig{}
		if err := json.Unmarshal([]byte(c.body), &cfg); err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if cfg.ChannelCount != c.channels {
			t.Errorf("%s: expected channel count %d, got %d", c.name, c.channels, cfg.ChannelCount)
		}
		for i, n := range c.descriptors {
			if got := cfg.Channels[i].DescriptorCount; got != n {
				t.Errorf("%s: channel %d: expected descriptor count %d, got %d", c.name, i, n, got)
			}
		}
	}
}
