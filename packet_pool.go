package astieit

// sectionAccumulator reassembles the sections of a single PID
type sectionAccumulator struct {
	buf     []byte
	cc      uint8
	hasCC   bool
	pid     uint16
	started bool // Whether buf holds the beginning of a section
}

// newSectionAccumulator creates a new accumulator for a single PID
func newSectionAccumulator(pid uint16) *sectionAccumulator {
	return &sectionAccumulator{pid: pid}
}

// add adds a new packet for this PID and returns the sections it completes
// Returned sections are owned by the caller.
func (a *sectionAccumulator) add(p *Packet) (ss [][]byte) {
	// Check continuity
	discontinuity := p.AdaptationField != nil && p.AdaptationField.DiscontinuityIndicator
	if a.hasCC && !discontinuity {
		// Throw away packet if it's the same as the previous one
		if p.Header.ContinuityCounter == a.cc {
			return
		}

		// Partial section is lost
		if p.Header.ContinuityCounter != (a.cc+1)%16 {
			a.reset()
		}
	} else if discontinuity {
		a.reset()
	}
	a.cc, a.hasCC = p.Header.ContinuityCounter, true

	// No section starts in this packet
	if !p.Header.PayloadUnitStartIndicator {
		if !a.started {
			return
		}
		a.buf = append(a.buf, p.Payload...)
		return a.flush()
	}

	// Pointer field
	if len(p.Payload) == 0 {
		return
	}
	pointer, payload := int(p.Payload[0]), p.Payload[1:]
	if pointer > len(payload) {
		a.reset()
		return
	}

	// Bytes before the pointer end the previous section
	if a.started {
		a.buf = append(a.buf, payload[:pointer]...)
		ss = a.flush()
	}

	// Whatever is left of the previous section is incomplete
	a.buf = append(a.buf[:0], payload[pointer:]...)
	a.started = true
	ss = append(ss, a.flush()...)
	return
}

// flush extracts complete sections out of the buffer
func (a *sectionAccumulator) flush() (ss [][]byte) {
	for len(a.buf) > 0 {
		// Stuffing bytes end the sections of the packet
		if a.buf[0] == byte(TableIDNull) {
			a.reset()
			return
		}

		// Section is not complete yet
		l, err := parseSectionLength(a.buf)
		if err != nil || len(a.buf) < l {
			return
		}
		ss = append(ss, append([]byte(nil), a.buf[:l]...))
		a.buf = a.buf[l:]
	}

	// Next section can only start in a packet with a payload unit start indicator
	a.reset()
	return
}

func (a *sectionAccumulator) reset() {
	a.buf = a.buf[:0]
	a.started = false
}

// sectionPool represents a section accumulator for each PID in the stream
type sectionPool struct {
	// We use map[uint32] instead map[uint16] as go runtime provide optimized hash functions for (u)int32/64 keys
	b map[uint32]*sectionAccumulator // Indexed by PID
}

// newSectionPool creates a new section pool
func newSectionPool() *sectionPool {
	return &sectionPool{b: make(map[uint32]*sectionAccumulator)}
}

// add adds a new packet to the pool and returns the sections it completes
func (sp *sectionPool) add(p *Packet) (ss [][]byte) {
	// Throw away packet if error indicator
	if p.Header.TransportErrorIndicator {
		if a, ok := sp.b[uint32(p.Header.PID)]; ok {
			a.reset()
		}
		return
	}

	// Throw away packets that don't have a payload
	if !p.Header.HasPayload {
		return
	}

	// Make sure accumulator exists
	a, ok := sp.b[uint32(p.Header.PID)]
	if !ok {
		a = newSectionAccumulator(p.Header.PID)
		sp.b[uint32(p.Header.PID)] = a
	}

	// Add to the accumulator
	return a.add(p)
}
