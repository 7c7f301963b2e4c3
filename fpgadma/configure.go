package fpgadma

import (
	"errors"
	"log"
)

var errNoMemoryMap = errors.New("no memory map, query it first")

// Configure programs the descriptor table of every requested channel with
// the buffers of m, then resets the PPS trigger.  See BuildPlan for the
// exact register traffic.  Values beyond the limits of the board are
// clamped and logged.  A failure part way leaves the board partially
// programmed; StopAll before trying again.
func (s *Session) Configure(req GlobalStartConfig, m *MemoryMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("configure"); err != nil {
		return err
	}
	_, err := s.configure(req, m)
	return err
}

func (s *Session) configure(req GlobalStartConfig, m *MemoryMap) (Plan, error) {
	if m == nil {
		return Plan{}, fail(ErrHardwareAccess, "configure", errNoMemoryMap)
	}
	p := BuildPlan(req, m, s.currentLimits())
	for _, c := range p.Clamped {
		log.Println("fpgadma: configure:", c)
	}
	for _, op := range p.Ops {
		var err error
		if op.Kind == OpRead {
			_, err = s.readRegister(op.Bar, op.Address)
		} else {
			err = s.writeRegister(op.Bar, op.Address, op.Value)
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// Run brings the engine up in one locked pass: the direction is enabled,
// the descriptor table is programmed with Configure, and every programmed
// channel is started, cyclic if req.StartCycle.
func (s *Session) Run(req GlobalStartConfig, m *MemoryMap, rx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("run"); err != nil {
		return err
	}
	if m == nil {
		return fail(ErrHardwareAccess, "run", errNoMemoryMap)
	}
	if err := s.setGlobalState(true, rx); err != nil {
		return err
	}
	p, err := s.configure(req, m)
	if err != nil {
		return err
	}
	for _, ch := range p.Channels {
		if err := s.setChannelState(ch, true, req.StartCycle); err != nil {
			return err
		}
	}
	return nil
}
