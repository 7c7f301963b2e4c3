package fpgadma

import "log"

// QueryLimits asks the driver for the DMA maxima of the board.
// The result is cached on the session and bounds all later indices.
func (s *Session) QueryLimits() (Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("query limits"); err != nil {
		return Limits{}, err
	}
	return s.queryLimits()
}

func (s *Session) queryLimits() (Limits, error) {
	l, err := s.be.Limits()
	if err != nil {
		return Limits{}, fail(ErrHardwareAccess, "query limits", err)
	}
	if c := l.capped(); c != l {
		log.Printf("fpgadma: driver reported limits %+v beyond the structural maxima, using %+v\n", l, c)
		l = c
	}
	s.limits = l
	s.known = true
	return l, nil
}

// QueryMemoryMap asks the driver for the buffer of every channel/descriptor
// pair.  The limits are queried first if they are not known yet.
func (s *Session) QueryMemoryMap() (*MemoryMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("query memory map"); err != nil {
		return nil, err
	}
	return s.queryMemoryMap()
}

func (s *Session) queryMemoryMap() (*MemoryMap, error) {
	if !s.known {
		if _, err := s.queryLimits(); err != nil {
			return nil, err
		}
	}
	m, err := s.be.MemoryMap()
	if err != nil {
		return nil, fail(ErrHardwareAccess, "query memory map", err)
	}
	return m, nil
}

// Discover performs the whole bring-up handshake in one go: query limits,
// create and register the eventfds, read them back, then read the buffer
// map.  The returned Notifications belong to the caller, and are returned
// even on error if any eventfd was created.
func (s *Session) Discover() (*Topology, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.valid("discover"); err != nil {
		return nil, err
	}
	l, err := s.queryLimits()
	if err != nil {
		return nil, err
	}
	topo := &Topology{Limits: l}
	topo.Notifications, err = s.establishNotifications(l)
	if err != nil {
		return topo, err
	}
	topo.Map, err = s.queryMemoryMap()
	return topo, err
}
