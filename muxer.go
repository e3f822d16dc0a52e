package astieit

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/asticode/go-astikit"
)

// SectionMuxer packetizes sections onto a single PID
// Each section starts in a new packet with a pointer field set to 0 and its last packet is stuffed
// with 0xff.
type SectionMuxer struct {
	buf        bytes.Buffer
	cc         uint8
	ctx        context.Context
	packetSize int
	pid        uint16
	w          io.Writer
}

// NewSectionMuxer creates a new section muxer
func NewSectionMuxer(ctx context.Context, w io.Writer, opts ...func(*SectionMuxer)) *SectionMuxer {
	m := &SectionMuxer{
		ctx:        ctx,
		packetSize: MpegTsPacketSize,
		pid:        PIDEIT,
		w:          w,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SectionMuxerOptPID returns the option to set the PID
func SectionMuxerOptPID(pid uint16) func(*SectionMuxer) {
	return func(m *SectionMuxer) {
		m.pid = pid
	}
}

// SectionMuxerOptPacketSize returns the option to set the packet size, 188 or 192
func SectionMuxerOptPacketSize(packetSize int) func(*SectionMuxer) {
	return func(m *SectionMuxer) {
		m.packetSize = packetSize
	}
}

// WriteEITSection writes an EIT section, computing its CRC32
func (m *SectionMuxer) WriteEITSection(s *EITSection) (int, error) {
	m.buf.Reset()
	if _, err := WriteEITSection(&m.buf, s); err != nil {
		return 0, fmt.Errorf("astieit: writing EIT section failed: %w", err)
	}
	return m.WriteSection(m.buf.Bytes())
}

// WriteSection packetizes section bytes and returns the number of bytes written to the writer
func (m *SectionMuxer) WriteSection(bs []byte) (n int, err error) {
	w := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: m.w})
	for offset, first := 0, true; first || offset < len(bs); first = false {
		// Check ctx error
		if err = m.ctx.Err(); err != nil {
			return
		}

		// Build payload
		p := &Packet{Header: PacketHeader{
			ContinuityCounter:         m.cc,
			HasPayload:                true,
			PayloadUnitStartIndicator: first,
			PID:                       m.pid,
		}}
		available := MpegTsPacketSize - mpegTsHeaderSize
		if first {
			// Pointer field
			p.Payload = append(p.Payload, 0)
			available--
		}
		end := offset + available
		if end > len(bs) {
			end = len(bs)
		}
		p.Payload = append(p.Payload, bs[offset:end]...)
		offset = end

		// Write
		var written int
		if written, err = writePacket(w, p, m.packetSize); err != nil {
			err = fmt.Errorf("astieit: writing packet failed: %w", err)
			return
		}
		n += written
		m.cc = (m.cc + 1) % 16
	}
	return
}
