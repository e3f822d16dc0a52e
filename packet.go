package astieit

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
)

// Packet sizes
const (
	MpegTsPacketSize = 188
	mpegTsHeaderSize = 4
)

// Sync byte
const syncByte = '\x47'

// PIDs
const (
	PIDEIT  uint16 = 0x12   // Event Information Table
	PIDNull uint16 = 0x1fff // Null packets
)

// Errors
var (
	ErrNoMorePackets                = errors.New("astieit: no more packets")
	ErrPacketMustStartWithASyncByte = errors.New("astieit: packet must start with a sync byte")
)

// Packet represents a packet
// https://en.wikipedia.org/wiki/MPEG_transport_stream
type Packet struct {
	AdaptationField *PacketAdaptationField
	Header          PacketHeader
	Payload         []byte // This is only the payload content
}

// PacketHeader represents a packet header
type PacketHeader struct {
	ContinuityCounter          uint8 // Sequence number of payload packets (0x00 to 0x0F) within each stream (except PID 8191)
	HasAdaptationField         bool
	HasPayload                 bool
	PayloadUnitStartIndicator  bool   // Set when a PSI section begins in the payload, the first payload byte then being a pointer field
	PID                        uint16 // Packet Identifier, describing the payload data.
	TransportErrorIndicator    bool   // Set when a demodulator can't correct errors from FEC data; indicating the packet is corrupt.
	TransportPriority          bool
	TransportScramblingControl uint8
}

// PacketAdaptationField represents the part of the adaptation field sections demuxing relies on
// Clock references and splicing information are skipped.
type PacketAdaptationField struct {
	DiscontinuityIndicator bool // Set if current TS packet is in a discontinuity state with respect to the continuity counter
	Length                 int
	RandomAccessIndicator  bool
}

// parsePacket parses a packet. Packets bigger than 188 bytes are expected to carry their extra bytes first.
func parsePacket(i *astikit.BytesIterator) (p *Packet, err error) {
	// In case packet size is bigger than 188 bytes, we don't care for the first bytes
	i.Seek(i.Len() - MpegTsPacketSize)

	// Packet must start with a sync byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("astieit: getting next byte failed: %w", err)
		return
	}
	if b != syncByte {
		err = ErrPacketMustStartWithASyncByte
		return
	}

	// Create packet
	p = &Packet{}

	// Parse header
	if p.Header, err = parsePacketHeader(i); err != nil {
		err = fmt.Errorf("astieit: parsing packet header failed: %w", err)
		return
	}

	// Parse adaptation field
	if p.Header.HasAdaptationField {
		if p.AdaptationField, err = parsePacketAdaptationField(i); err != nil {
			err = fmt.Errorf("astieit: parsing packet adaptation field failed: %w", err)
			return
		}
	}

	// Build payload
	if p.Header.HasPayload {
		i.Seek(payloadOffset(i.Len()-MpegTsPacketSize, p.Header, p.AdaptationField))
		if p.Payload = i.Dump(); len(p.Payload) == 0 {
			p.Header.HasPayload = false
		}
	}
	return
}

// payloadOffset returns the payload offset
func payloadOffset(offsetStart int, h PacketHeader, a *PacketAdaptationField) (offset int) {
	offset = offsetStart + mpegTsHeaderSize
	if h.HasAdaptationField {
		offset += 1 + a.Length
	}
	return
}

// parsePacketHeader parses the 3 bytes following the sync byte
func parsePacketHeader(i *astikit.BytesIterator) (h PacketHeader, err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil {
		err = fmt.Errorf("astieit: fetching next bytes failed: %w", err)
		return
	}
	h = PacketHeader{
		ContinuityCounter:          bs[2] & 0xf,
		HasAdaptationField:         bs[2]&0x20 > 0,
		HasPayload:                 bs[2]&0x10 > 0,
		PayloadUnitStartIndicator:  bs[0]&0x40 > 0,
		PID:                        uint16(bs[0]&0x1f)<<8 | uint16(bs[1]),
		TransportErrorIndicator:    bs[0]&0x80 > 0,
		TransportPriority:          bs[0]&0x20 > 0,
		TransportScramblingControl: bs[2] >> 6 & 0x3,
	}
	return
}

// parsePacketAdaptationField parses the adaptation field length and flags
func parsePacketAdaptationField(i *astikit.BytesIterator) (a *PacketAdaptationField, err error) {
	// Length
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("astieit: fetching next byte failed: %w", err)
		return
	}
	a = &PacketAdaptationField{Length: int(b)}

	// Adaptation field can't go past the packet
	if a.Length > MpegTsPacketSize-mpegTsHeaderSize-1 {
		err = fmt.Errorf("astieit: adaptation field length %d is too big", a.Length)
		return
	}

	// Flags
	if a.Length > 0 {
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("astieit: fetching next byte failed: %w", err)
			return
		}
		a.DiscontinuityIndicator = b&0x80 > 0
		a.RandomAccessIndicator = b&0x40 > 0
	}
	return
}

// writePacket writes a packet carrying section data. Remaining bytes are stuffed with 0xff, which
// section demuxers read as the end of the sections.
func writePacket(w *astikit.BitsWriter, p *Packet, targetPacketSize int) (written int, err error) {
	if len(p.Payload) > MpegTsPacketSize-mpegTsHeaderSize {
		err = fmt.Errorf("astieit: payload length %d is too big", len(p.Payload))
		return
	}

	b := astikit.NewBitsWriterBatch(w)
	if targetPacketSize > MpegTsPacketSize {
		b.Write(make([]byte, targetPacketSize-MpegTsPacketSize))
	}
	b.Write(uint8(syncByte))
	b.Write(p.Header.TransportErrorIndicator)
	b.Write(p.Header.PayloadUnitStartIndicator)
	b.Write(p.Header.TransportPriority)
	b.WriteN(p.Header.PID, 13)
	b.WriteN(p.Header.TransportScramblingControl, 2)

	// No adaptation field, payload if any
	b.Write(false)
	b.Write(len(p.Payload) > 0)
	b.WriteN(p.Header.ContinuityCounter, 4)
	b.Write(p.Payload)
	b.Write(bytesOf(MpegTsPacketSize-mpegTsHeaderSize-len(p.Payload), 0xff))
	if err = b.Err(); err != nil {
		return
	}
	written = targetPacketSize
	return
}

func bytesOf(n int, v byte) (bs []byte) {
	bs = make([]byte, n)
	for idx := range bs {
		bs[idx] = v
	}
	return
}
