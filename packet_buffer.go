package astieit

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astikit"
)

// Packet sizes the buffer is able to detect: plain packets and packets prefixed by a 4 bytes timecode
var detectablePacketSizes = []int{MpegTsPacketSize, maxPacketSize}

// packetBuffer reads packets out of a reader
type packetBuffer struct {
	packetSize int
	r          *bufio.Reader
}

// newPacketBuffer creates a new packet buffer. The packet size is auto detected when 0.
func newPacketBuffer(r io.Reader, packetSize int) (pb *packetBuffer, err error) {
	// Init
	pb = &packetBuffer{
		packetSize: packetSize,
		r:          bufio.NewReaderSize(r, 32*MpegTsPacketSize),
	}

	// Packet size is not set
	if pb.packetSize == 0 {
		if pb.packetSize, err = autoDetectPacketSize(pb.r); err != nil {
			err = fmt.Errorf("astieit: auto detecting packet size failed: %w", err)
			return
		}
	} else if pb.packetSize < MpegTsPacketSize {
		err = fmt.Errorf("astieit: packet size %d is too small", pb.packetSize)
		return
	}
	return
}

// autoDetectPacketSize looks for sync bytes in the first bytes without consuming them
// Up to 3 consecutive sync bytes are expected at the same distance. A stream holding a single packet
// is accepted as long as its size is one of the detectable packet sizes.
func autoDetectPacketSize(r *bufio.Reader) (int, error) {
	const n = 3
	bs, err := r.Peek(n*maxPacketSize + 1)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("astieit: peeking failed: %w", err)
	}
	for _, s := range detectablePacketSizes {
		prefix := s - MpegTsPacketSize
		var count int
		for idx := prefix; idx < len(bs) && bs[idx] == syncByte && count < n; idx += s {
			count++
		}
		if count == n || (count > 0 && count*s == len(bs)) {
			return s, nil
		}
	}
	if len(bs) > 0 && bs[0] != syncByte {
		return 0, ErrPacketMustStartWithASyncByte
	}
	return 0, fmt.Errorf("astieit: no packet size detected in first %d bytes", len(bs))
}

// next reads the next packet into a pooled buffer. The caller must put the item back into bytesPool once
// done with the packet since its payload points to it.
func (pb *packetBuffer) next() (p *Packet, item *bytesPoolItem, err error) {
	// Read
	item = bytesPool.get(pb.packetSize)
	if _, err = io.ReadFull(pb.r, item.s); err != nil {
		bytesPool.put(item)
		item = nil
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrNoMorePackets
		} else {
			err = fmt.Errorf("astieit: reading %d bytes failed: %w", pb.packetSize, err)
		}
		return
	}

	// Parse packet
	if p, err = parsePacket(astikit.NewBytesIterator(item.s)); err != nil {
		bytesPool.put(item)
		item = nil
		err = fmt.Errorf("astieit: building packet failed: %w", err)
		return
	}
	return
}
