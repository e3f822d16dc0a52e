package astieit

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astikit"
)

// RawSection is a reassembled section as handed over to the decoder
type RawSection struct {
	Bytes []byte // From the table id to the trailing CRC32 included
	CRC32 uint32 // CRC32 computed over Bytes or CRC32Skip
	PID   uint16
}

// Demuxer reassembles EIT sections out of a transport stream
// https://en.wikipedia.org/wiki/MPEG_transport_stream
// http://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.13.01_40/en_300468v011301o.pdf
type Demuxer struct {
	ctx           context.Context
	l             astikit.CompleteLogger
	optPacketSize int
	optPIDs       map[uint16]bool
	optSkipCRC32  bool
	packetBuffer  *packetBuffer
	r             io.Reader
	sectionBuffer []*RawSection
	sectionPool   *sectionPool
}

// NewDemuxer creates a new demuxer based on a reader
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) (d *Demuxer) {
	// Init
	d = &Demuxer{
		ctx:         ctx,
		optPIDs:     map[uint16]bool{PIDEIT: true},
		r:           r,
		sectionPool: newSectionPool(),
	}

	// Apply options
	for _, opt := range opts {
		opt(d)
	}
	return
}

// DemuxerOptLogger returns the option to set the logger
func DemuxerOptLogger(l astikit.StdLogger) func(*Demuxer) {
	return func(d *Demuxer) {
		d.l = astikit.AdaptStdLogger(l)
	}
}

// DemuxerOptPacketSize returns the option to set the packet size
func DemuxerOptPacketSize(packetSize int) func(*Demuxer) {
	return func(d *Demuxer) {
		d.optPacketSize = packetSize
	}
}

// DemuxerOptPIDs returns the option to set the PIDs sections are reassembled from. Default is 0x12.
func DemuxerOptPIDs(pids ...uint16) func(*Demuxer) {
	return func(d *Demuxer) {
		d.optPIDs = make(map[uint16]bool)
		for _, pid := range pids {
			d.optPIDs[pid] = true
		}
	}
}

// DemuxerOptSkipCRC32 returns the option to hand sections over with CRC32Skip instead of their computed
// CRC32
func DemuxerOptSkipCRC32() func(*Demuxer) {
	return func(d *Demuxer) {
		d.optSkipCRC32 = true
	}
}

func (dmx *Demuxer) log() astikit.CompleteLogger {
	if dmx.l != nil {
		return dmx.l
	}
	return logger
}

// NextSection retrieves the next EIT section. Sections with other table ids are dropped.
func (dmx *Demuxer) NextSection() (s *RawSection, err error) {
	for {
		// Check section buffer
		if len(dmx.sectionBuffer) > 0 {
			s = dmx.sectionBuffer[0]
			dmx.sectionBuffer = dmx.sectionBuffer[1:]
			return
		}

		// Check ctx error
		if err = dmx.ctx.Err(); err != nil {
			return
		}

		// Create packet buffer if not exists
		if dmx.packetBuffer == nil {
			if dmx.packetBuffer, err = newPacketBuffer(dmx.r, dmx.optPacketSize); err != nil {
				err = fmt.Errorf("astieit: creating packet buffer failed: %w", err)
				return
			}
		}

		// Fetch next packet from buffer
		var p *Packet
		var item *bytesPoolItem
		if p, item, err = dmx.packetBuffer.next(); err != nil {
			if !errors.Is(err, ErrNoMorePackets) {
				err = fmt.Errorf("astieit: fetching next packet from buffer failed: %w", err)
			}
			return
		}

		// Reassemble
		var ss [][]byte
		if dmx.optPIDs[p.Header.PID] {
			ss = dmx.sectionPool.add(p)
		}
		bytesPool.put(item)

		// Process sections
		for _, bs := range ss {
			if t := TableID(bs[0]); !t.IsEIT() {
				dmx.log().Debugf("astieit: dropping section with table id 0x%x on pid 0x%x", uint8(t), p.Header.PID)
				continue
			}
			rs := &RawSection{Bytes: bs, CRC32: CRC32Skip, PID: p.Header.PID}
			if !dmx.optSkipCRC32 {
				if rs.CRC32, err = SectionCRC32(bs); err != nil {
					dmx.log().Debugf("astieit: dropping section on pid 0x%x: %s", p.Header.PID, err)
					err = nil
					continue
				}
			}
			dmx.sectionBuffer = append(dmx.sectionBuffer, rs)
		}
	}
}

// Rewind rewinds the demuxer reader
func (dmx *Demuxer) Rewind() (n int64, err error) {
	dmx.sectionBuffer = nil
	dmx.packetBuffer = nil
	dmx.sectionPool = newSectionPool()
	if n, err = rewind(dmx.r); err != nil {
		err = fmt.Errorf("astieit: rewinding reader failed: %w", err)
		return
	}
	return
}

// rewind rewinds the reader if possible, otherwise n = -1
func rewind(r io.Reader) (n int64, err error) {
	if s, ok := r.(io.Seeker); ok {
		if n, err = s.Seek(0, io.SeekStart); err != nil {
			err = fmt.Errorf("astieit: seeking to 0 failed: %w", err)
			return
		}
		return
	}
	n = -1
	return
}
