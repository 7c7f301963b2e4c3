package fpgadma

import "fmt"

// SetChannelState starts or stops one DMA channel.  cyclic makes a started
// channel loop over its descriptors; the control word is 0x3 to start,
// 0 to stop, with bit 3 set for cyclic.
func (s *Session) SetChannelState(channel int, start, cyclic bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("set channel state"); err != nil {
		return err
	}
	return s.setChannelState(channel, start, cyclic)
}

func (s *Session) setChannelState(channel int, start, cyclic bool) error {
	if err := s.checkChannel(channel); err != nil {
		return err
	}
	return s.writeRegister(RegisterBar, ChannelRegister(RegControl, channel), ControlValue(start, cyclic))
}

func (s *Session) checkChannel(channel int) error {
	max := int(s.currentLimits().MaxChannels)
	if channel < 0 || channel >= max {
		return fail(ErrInvalidChannel, fmt.Sprintf("channel %d of %d", channel, max), nil)
	}
	return nil
}

// SetGlobalState enables or disables DMA for a whole direction:
// receive when rx is true, transmit otherwise
func (s *Session) SetGlobalState(start, rx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("set global state"); err != nil {
		return err
	}
	return s.setGlobalState(start, rx)
}

func (s *Session) setGlobalState(start, rx bool) error {
	reg := RegTxEnable
	if rx {
		reg = RegRxEnable
	}
	return s.writeRegister(RegisterBar, DeviceAddress(reg), boolWord(start))
}

// SetInterrupts enables or disables the interrupt output of the FPGA
func (s *Session) SetInterrupts(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("set interrupts"); err != nil {
		return err
	}
	return s.writeRegister(RegisterBar, DeviceAddress(RegInterruptEnable), boolWord(enable))
}

// StopAll puts the engine in a known stopped state: both directions
// disabled, then every channel stopped.  Run it before reprogramming after
// any failure.
func (s *Session) StopAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("stop all"); err != nil {
		return err
	}
	return s.stopAll()
}

func (s *Session) stopAll() error {
	for _, rx := range []bool{true, false} {
		if err := s.setGlobalState(false, rx); err != nil {
			return err
		}
	}
	for ch := 0; ch < int(s.currentLimits().MaxChannels); ch++ {
		if err := s.setChannelState(ch, false, false); err != nil {
			return err
		}
	}
	return nil
}

// DescriptorIndex reads the index of the descriptor a channel is working on
func (s *Session) DescriptorIndex(channel int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("descriptor index"); err != nil {
		return 0, err
	}
	if err := s.checkChannel(channel); err != nil {
		return 0, err
	}
	return s.readRegister(RegisterBar, ChannelRegister(RegDescriptorIndex, channel))
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
