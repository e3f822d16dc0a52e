package astieit

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astikit"
	"golang.org/x/exp/slices"
)

const (
	eitHeaderSize      = 14
	eitEventHeaderSize = 12
)

// Running statuses
// Chapter: 5.2.3 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	RunningStatusNotRunning          = 1
	RunningStatusPausing             = 3
	RunningStatusRunning             = 4
	RunningStatusServiceOffAir       = 5
	RunningStatusStartsInAFewSeconds = 2
	RunningStatusUndefined           = 0
)

// RunningStatusString returns a human readable running status
func RunningStatusString(s uint8) string {
	switch s {
	case RunningStatusUndefined:
		return "undefined"
	case RunningStatusNotRunning:
		return "not running"
	case RunningStatusStartsInAFewSeconds:
		return "starts in a few seconds"
	case RunningStatusPausing:
		return "pausing"
	case RunningStatusRunning:
		return "running"
	case RunningStatusServiceOffAir:
		return "service off-air"
	}
	return "reserved"
}

// EITSectionHeader represents the fixed part of an EIT section
// Page: 36 | Chapter: 5.2.4 | Link:
// https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type EITSectionHeader struct {
	CRC32                    uint32 // Trailing checksum, as found in the section
	CurrentNextIndicator     bool
	LastSectionNumber        uint8
	LastTableID              uint8
	OriginalNetworkID        uint16
	SectionNumber            uint8
	SegmentLastSectionNumber uint8
	ServiceID                uint16
	TableID                  TableID
	TransportStreamID        uint16
	VersionNumber            uint8 // 5 bits, wraps around after 31
}

// Key returns the identity of the section. Two sections sharing the same key are the same logical
// section at different revisions.
func (h EITSectionHeader) Key() EITSectionKey {
	return EITSectionKey{
		SectionNumber:     h.SectionNumber,
		ServiceID:         h.ServiceID,
		TableID:           h.TableID,
		TransportStreamID: h.TransportStreamID,
	}
}

// EITSectionKey identifies a logical EIT section
type EITSectionKey struct {
	SectionNumber     uint8
	ServiceID         uint16
	TableID           TableID
	TransportStreamID uint16
}

// Less orders keys by table id, transport stream id, service id and section number
func (k EITSectionKey) Less(o EITSectionKey) bool {
	if k.TableID != o.TableID {
		return k.TableID < o.TableID
	}
	if k.TransportStreamID != o.TransportStreamID {
		return k.TransportStreamID < o.TransportStreamID
	}
	if k.ServiceID != o.ServiceID {
		return k.ServiceID < o.ServiceID
	}
	return k.SectionNumber < o.SectionNumber
}

// String implements the fmt.Stringer interface
func (k EITSectionKey) String() string {
	return fmt.Sprintf("table 0x%x | ts 0x%x | service 0x%x | section %d", uint8(k.TableID), k.TransportStreamID, k.ServiceID, k.SectionNumber)
}

// EITSection represents a decoded EIT section
// Once decoded, only VersionNumber and CRC32 may change, and only through an EITRegistry merge.
type EITSection struct {
	EITSectionHeader
	Anomalies []Anomaly   // Non fatal data quality issues found while decoding
	Events    []*EITEvent // Sorted by event id, unique by event id
}

// EITEvent represents an EIT event
type EITEvent struct {
	Descriptors           []Descriptor
	DescriptorsLoopLength uint16
	Duration              time.Duration
	DurationUndefined     bool
	EventID               uint16

	// When true indicates that access to one or
	// more streams may be controlled by a CA system.
	HasFreeCSAMode     bool
	RunningStatus      uint8
	StartTime          time.Time
	StartTimeUndefined bool
}

// Anomaly is a non fatal data quality issue. Decoding goes on with the field clamped.
type Anomaly struct {
	EventID uint16
	Field   string
	Raw     []byte
	Reason  string
}

// Error implements the error interface
func (a Anomaly) Error() string {
	return fmt.Sprintf("astieit: event %d: %s %x: %s", a.EventID, a.Field, a.Raw, a.Reason)
}

// EITDecoder decodes EIT sections. It holds no mutable state and can be used by several goroutines.
type EITDecoder struct {
	factory DescriptorFactory
	l       astikit.CompleteLogger
}

// NewEITDecoder creates a new EIT decoder
func NewEITDecoder(opts ...func(*EITDecoder)) *EITDecoder {
	d := &EITDecoder{factory: defaultDescriptorRegistry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EITDecoderOptDescriptorFactory returns the option to set the descriptor factory
func EITDecoderOptDescriptorFactory(f DescriptorFactory) func(*EITDecoder) {
	return func(d *EITDecoder) {
		d.factory = f
	}
}

// EITDecoderOptLogger returns the option to set the logger
func EITDecoderOptLogger(l astikit.StdLogger) func(*EITDecoder) {
	return func(d *EITDecoder) {
		d.l = astikit.AdaptStdLogger(l)
	}
}

func (d *EITDecoder) log() astikit.CompleteLogger {
	if d.l != nil {
		return d.l
	}
	return logger
}

var defaultEITDecoder = NewEITDecoder()

// ParseEITSection decodes an EIT section with the default descriptor registry
// bs starts at the table id and must hold the whole section, trailing CRC32 included. Unless crc is
// CRC32Skip, the CRC32 is computed over the section and must match both the trailing CRC32 and crc.
func ParseEITSection(bs []byte, crc uint32) (*EITSection, error) {
	return defaultEITDecoder.Decode(bs, crc)
}

// DecodeHeader validates the section length and CRC32 and decodes the fixed header only
func (d *EITDecoder) DecodeHeader(bs []byte, crc uint32) (*EITSectionHeader, error) {
	h, _, err := parseEITSectionHeader(bs, crc)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Decode decodes a whole section. Any error discards the section: no partial section is ever returned.
func (d *EITDecoder) Decode(bs []byte, crc uint32) (s *EITSection, err error) {
	// Header
	var h *EITSectionHeader
	var l int
	if h, l, err = parseEITSectionHeader(bs, crc); err != nil {
		err = fmt.Errorf("astieit: parsing EIT section header failed: %w", err)
		return
	}

	// Events
	var es []*EITEvent
	var as []Anomaly
	offset, offsetEventsEnd := eitHeaderSize, l-crc32Size
	for offset < offsetEventsEnd {
		var e *EITEvent
		var n int
		var eas []Anomaly
		if e, n, eas, err = parseEITEvent(bs[offset:offsetEventsEnd], d.factory); err != nil {
			err = fmt.Errorf("astieit: parsing EIT event at offset %d failed: %w", offset, err)
			return
		}
		es = append(es, e)
		as = append(as, eas...)
		offset += n
	}

	// Create section
	s = &EITSection{EITSectionHeader: *h}
	s.Events, as = sortEITEvents(es, as)
	s.Anomalies = as

	// Log anomalies
	for _, a := range s.Anomalies {
		d.log().Debugf("astieit: %s (%s)", a.Error(), s.Key())
	}
	return
}

// parseEITSectionHeader parses and validates the fixed header and returns the length of the section
func parseEITSectionHeader(bs []byte, crc uint32) (h *EITSectionHeader, l int, err error) {
	// Length
	if l, err = parseSectionLength(bs); err != nil {
		return
	}

	// Table id
	if t := TableID(bs[0]); !t.IsEIT() {
		err = fmt.Errorf("%w: table id is 0x%x", ErrNotEITSection, uint8(t))
		return
	}

	// Declared length must hold at least the fixed header and the CRC32
	if l < eitHeaderSize+crc32Size {
		err = fmt.Errorf("%w: section length is %d, EIT needs at least %d", ErrSectionTruncated, l, eitHeaderSize+crc32Size)
		return
	}
	if len(bs) < l {
		err = fmt.Errorf("%w: section length is %d, only %d bytes available", ErrSectionTruncated, l, len(bs))
		return
	}

	// Fixed header
	i := astikit.NewBytesIterator(bs[:l])
	var b []byte
	if b, err = i.NextBytesNoCopy(eitHeaderSize); err != nil {
		err = fmt.Errorf("%w: fetching next bytes failed: %s", ErrSectionTruncated, err)
		return
	}
	h = &EITSectionHeader{
		CRC32:                    parseCRC32(bs, l),
		CurrentNextIndicator:     b[5]&0x1 > 0,
		LastSectionNumber:        b[7],
		LastTableID:              b[13],
		OriginalNetworkID:        binary.BigEndian.Uint16(b[10:12]),
		SectionNumber:            b[6],
		SegmentLastSectionNumber: b[12],
		ServiceID:                binary.BigEndian.Uint16(b[3:5]),
		TableID:                  TableID(b[0]),
		TransportStreamID:        binary.BigEndian.Uint16(b[8:10]),
		VersionNumber:            (b[5] >> 1) & 0x1f,
	}

	// Check CRC32
	if crc != CRC32Skip {
		if computed := computeCRC32(bs[:l-crc32Size]); computed != h.CRC32 {
			err = fmt.Errorf("%w: table CRC32 %x != computed CRC32 %x", ErrCRC32Mismatch, h.CRC32, computed)
			h = nil
			return
		} else if crc != h.CRC32 {
			err = fmt.Errorf("%w: table CRC32 %x != expected CRC32 %x", ErrCRC32Mismatch, h.CRC32, crc)
			h = nil
			return
		}
	}
	return
}

// parseEITEvent parses one event out of the event region and returns the number of bytes it occupies
func parseEITEvent(bs []byte, f DescriptorFactory) (e *EITEvent, n int, as []Anomaly, err error) {
	// Fixed header
	i := astikit.NewBytesIterator(bs)
	var b []byte
	if b, err = i.NextBytesNoCopy(eitEventHeaderSize); err != nil {
		err = fmt.Errorf("%w: event header needs %d bytes, %d left", ErrSectionTruncated, eitEventHeaderSize, len(bs))
		return
	}

	e = &EITEvent{
		DescriptorsLoopLength: uint16(b[10]&0xf)<<8 | uint16(b[11]),
		EventID:               binary.BigEndian.Uint16(b[0:2]),
		HasFreeCSAMode:        b[10]&0x10 > 0,
		RunningStatus:         b[10] >> 5,
	}

	// Start time
	var q dvbFieldQuality
	e.StartTime, q = parseDVBTime(b[2:7])
	switch q {
	case dvbFieldQualityUndefined:
		e.StartTimeUndefined = true
	case dvbFieldQualityInvalidBCD, dvbFieldQualityOutOfRange:
		as = append(as, newBCDAnomaly(e.EventID, "start_time", b[2:7], q))
	}

	// Duration
	e.Duration, q = parseDVBDurationSeconds(b[7:10])
	switch q {
	case dvbFieldQualityUndefined:
		e.DurationUndefined = true
	case dvbFieldQualityInvalidBCD, dvbFieldQualityOutOfRange:
		as = append(as, newBCDAnomaly(e.EventID, "duration", b[7:10], q))
	}

	// Descriptors loop must fit in the event region
	n = eitEventHeaderSize + int(e.DescriptorsLoopLength)
	if n > len(bs) {
		err = fmt.Errorf("%w: event %d descriptors loop length is %d, only %d bytes left in the event region", ErrLoopLengthMismatch, e.EventID, e.DescriptorsLoopLength, len(bs)-eitEventHeaderSize)
		e, as = nil, nil
		return
	}

	// Descriptors
	if e.Descriptors, err = parseDescriptorLoop(bs[eitEventHeaderSize:n], int(e.DescriptorsLoopLength), f); err != nil {
		err = fmt.Errorf("astieit: parsing descriptors of event %d failed: %w", e.EventID, err)
		e, as = nil, nil
		return
	}
	return
}

func newBCDAnomaly(eventID uint16, field string, raw []byte, q dvbFieldQuality) Anomaly {
	a := Anomaly{
		EventID: eventID,
		Field:   field,
		Raw:     append([]byte(nil), raw...),
		Reason:  "invalid BCD digit clamped to 9",
	}
	if q == dvbFieldQualityOutOfRange {
		a.Reason = "out of range hours, minutes or seconds clamped"
	}
	return a
}

// sortEITEvents sorts events by id and only keeps the first occurrence of an id
func sortEITEvents(es []*EITEvent, as []Anomaly) ([]*EITEvent, []Anomaly) {
	slices.SortStableFunc(es, func(a, b *EITEvent) bool { return a.EventID < b.EventID })
	o := es[:0]
	for _, e := range es {
		if len(o) > 0 && o[len(o)-1].EventID == e.EventID {
			as = append(as, Anomaly{EventID: e.EventID, Field: "event_id", Reason: "duplicate event id ignored"})
			continue
		}
		o = append(o, e)
	}
	return o, as
}

func calcEITEventsLength(es []*EITEvent) (length int, err error) {
	for _, e := range es {
		var l int
		if l, err = calcDescriptorsLength(e.Descriptors); err != nil {
			return
		}
		if l > 0xfff {
			err = fmt.Errorf("astieit: event %d descriptors length %d is too big", e.EventID, l)
			return
		}
		length += eitEventHeaderSize + l
	}
	return
}

// WriteEITSection writes a section and computes its CRC32. The CRC32 field of the section is ignored.
func WriteEITSection(w io.Writer, s *EITSection) (int, error) {
	// Length
	el, err := calcEITEventsLength(s.Events)
	if err != nil {
		return 0, fmt.Errorf("astieit: computing events length failed: %w", err)
	}
	sectionLength := eitHeaderSize - psiHeaderSize + el + crc32Size
	if sectionLength > maxSectionLength {
		return 0, fmt.Errorf("astieit: section length %d is too big", sectionLength)
	}

	// Compute CRC32 while writing
	crc := crc32Initial
	bw := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: w})
	bw.SetWriteCallback(func(bs []byte) { crc = updateCRC32(crc, bs) })

	// Header
	b := astikit.NewBitsWriterBatch(bw)
	b.Write(uint8(s.TableID))
	b.Write("1")  // Section syntax indicator
	b.Write("1")  // Reserved future use
	b.Write("11") // Reserved
	b.WriteN(uint16(sectionLength), 12)
	b.Write(s.ServiceID)
	b.Write("11") // Reserved
	b.WriteN(s.VersionNumber, 5)
	b.Write(s.CurrentNextIndicator)
	b.Write(s.SectionNumber)
	b.Write(s.LastSectionNumber)
	b.Write(s.TransportStreamID)
	b.Write(s.OriginalNetworkID)
	b.Write(s.SegmentLastSectionNumber)
	b.Write(s.LastTableID)
	if err = b.Err(); err != nil {
		return 0, fmt.Errorf("astieit: writing EIT section header failed: %w", err)
	}

	// Events
	for _, e := range s.Events {
		if err = writeEITEvent(bw, e); err != nil {
			return 0, fmt.Errorf("astieit: writing EIT event %d failed: %w", e.EventID, err)
		}
	}

	// CRC32
	bw.SetWriteCallback(nil)
	b.Write(crc)
	if err = b.Err(); err != nil {
		return 0, fmt.Errorf("astieit: writing CRC32 failed: %w", err)
	}
	return psiHeaderSize + sectionLength, nil
}

func writeEITEvent(w *astikit.BitsWriter, e *EITEvent) (err error) {
	var l int
	if l, err = calcDescriptorsLength(e.Descriptors); err != nil {
		return
	}

	b := astikit.NewBitsWriterBatch(w)
	b.Write(e.EventID)
	if err = b.Err(); err != nil {
		return
	}
	if _, err = writeDVBTime(w, e.StartTime, e.StartTimeUndefined); err != nil {
		return
	}
	if _, err = writeDVBDurationSeconds(w, e.Duration, e.DurationUndefined); err != nil {
		return
	}
	b.WriteN(e.RunningStatus, 3)
	b.Write(e.HasFreeCSAMode)
	b.WriteN(uint16(l), 12)
	if err = b.Err(); err != nil {
		return
	}
	_, err = writeDescriptors(w, e.Descriptors)
	return
}
