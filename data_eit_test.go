package astieit

import (
	"bytes"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shortEventDescriptorBytes = []byte{
	0x4d, 13, // Tag and length
	'f', 'r', 'e', // Language
	4, 'n', 'a', 'm', 'e', // Event name
	4, 't', 'e', 'x', 't', // Text
}

func eitEventBytes(eventID uint16, startTime, duration []byte, runningStatus uint8, freeCA bool, loopLength int, descriptors []byte) []byte {
	buf := &bytes.Buffer{}
	w := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: buf})
	w.Write(eventID)
	w.Write(startTime)
	w.Write(duration)
	w.WriteN(runningStatus, 3)
	w.Write(freeCA)
	w.WriteN(uint16(loopLength), 12)
	w.Write(descriptors)
	return buf.Bytes()
}

type eitHeaderFixture struct {
	serviceID     uint16
	sectionNumber uint8
	tableID       uint8
	tsID          uint16
	version       uint8
}

var eitHeader = eitHeaderFixture{
	serviceID:     7,
	sectionNumber: 0,
	tableID:       0x50,
	tsID:          1,
	version:       2,
}

// eitSectionBytes builds a section followed by a valid CRC32
func eitSectionBytes(h eitHeaderFixture, events ...[]byte) []byte {
	var el int
	for _, e := range events {
		el += len(e)
	}

	buf := &bytes.Buffer{}
	w := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: buf})
	w.Write(h.tableID)
	w.Write("1")  // Syntax section indicator
	w.Write("1")  // Reserved future use
	w.Write("11") // Reserved
	w.WriteN(uint16(11+el+4), 12)
	w.Write(h.serviceID)
	w.Write("11") // Reserved
	w.WriteN(h.version, 5)
	w.Write("1") // Current/next indicator
	w.Write(h.sectionNumber)
	w.Write(uint8(3))     // Last section number
	w.Write(h.tsID)       // Transport stream id
	w.Write(uint16(0x20)) // Original network id
	w.Write(uint8(3))     // Segment last section number
	w.Write(uint8(0x51))  // Last table id
	for _, e := range events {
		w.Write(e)
	}
	w.Write(computeCRC32(buf.Bytes()))
	return buf.Bytes()
}

func scenarioEventBytes() []byte {
	return eitEventBytes(0x1234, dvbTimeBytes, dvbDurationBytes, RunningStatusRunning, false, 0, nil)
}

func mustSectionCRC32(t *testing.T, bs []byte) uint32 {
	crc, err := SectionCRC32(bs)
	require.NoError(t, err)
	return crc
}

func TestParseEITSectionScenario(t *testing.T) {
	bs := eitSectionBytes(eitHeader, scenarioEventBytes())
	s, err := ParseEITSection(bs, mustSectionCRC32(t, bs))
	require.NoError(t, err)
	assert.Equal(t, EITSectionHeader{
		CRC32:                    parseCRC32(bs, len(bs)),
		CurrentNextIndicator:     true,
		LastSectionNumber:        3,
		LastTableID:              0x51,
		OriginalNetworkID:        0x20,
		SectionNumber:            0,
		SegmentLastSectionNumber: 3,
		ServiceID:                7,
		TableID:                  TableIDEITActualScheduleStart,
		TransportStreamID:        1,
		VersionNumber:            2,
	}, s.EITSectionHeader)
	require.Len(t, s.Events, 1)
	assert.Equal(t, &EITEvent{
		Duration:      dvbDuration,
		EventID:       0x1234,
		RunningStatus: RunningStatusRunning,
		StartTime:     dvbTime,
	}, s.Events[0])
	assert.Empty(t, s.Events[0].Descriptors)
	assert.Empty(t, s.Anomalies)

	// Registry
	r := NewEITRegistry()
	res, updated := r.Admit(s)
	assert.Equal(t, AdmitResultAdmitted, res)
	assert.False(t, updated)
	assert.Equal(t, 1, r.Len())

	// Second copy
	s2, err := ParseEITSection(bs, mustSectionCRC32(t, bs))
	require.NoError(t, err)
	res, updated = r.Admit(s2)
	assert.Equal(t, AdmitResultMerged, res)
	assert.False(t, updated)
	assert.Equal(t, 1, r.Len())
	stored, ok := r.Get(s.Key())
	require.True(t, ok)
	assert.Equal(t, s, stored)
	assert.Same(t, s.Events[0], stored.Events[0])
}

func TestParseEITSectionRoundTripStability(t *testing.T) {
	bs := eitSectionBytes(eitHeader,
		eitEventBytes(2, dvbTimeBytes, dvbDurationBytes, RunningStatusNotRunning, true, len(shortEventDescriptorBytes), shortEventDescriptorBytes),
		scenarioEventBytes(),
	)
	s1, err := ParseEITSection(bs, CRC32Skip)
	require.NoError(t, err)
	s2, err := ParseEITSection(bs, CRC32Skip)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, s1.Events, s2.Events)
	require.Len(t, s1.Events, 2)
	assert.Equal(t, uint16(2), s1.Events[0].EventID)
	assert.True(t, s1.Events[0].HasFreeCSAMode)
	assert.Equal(t, uint16(len(shortEventDescriptorBytes)), s1.Events[0].DescriptorsLoopLength)
	require.Len(t, s1.Events[0].Descriptors, 1)
	assert.Equal(t, &DescriptorShortEvent{
		EventName: []byte("name"),
		Header:    DescriptorHeader{Length: 13, Tag: DescriptorTagShortEvent},
		Language:  [3]byte{'f', 'r', 'e'},
		Text:      []byte("text"),
	}, s1.Events[0].Descriptors[0])
}

func TestParseEITSectionEventsOrder(t *testing.T) {
	bs := eitSectionBytes(eitHeader,
		eitEventBytes(3, dvbTimeBytes, dvbDurationBytes, 0, false, 0, nil),
		eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, 0, nil),
		eitEventBytes(2, dvbTimeBytes, dvbDurationBytes, 0, false, 0, nil),
	)
	s, err := ParseEITSection(bs, CRC32Skip)
	require.NoError(t, err)
	var ids []uint16
	for _, e := range s.Events {
		ids = append(ids, e.EventID)
	}
	assert.Equal(t, []uint16{1, 2, 3}, ids)
}

func TestParseEITSectionDuplicateEventIDs(t *testing.T) {
	bs := eitSectionBytes(eitHeader,
		eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, RunningStatusRunning, false, 0, nil),
		eitEventBytes(2, dvbTimeBytes, dvbDurationBytes, 0, false, 0, nil),
		eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, RunningStatusPausing, false, 0, nil),
	)
	s, err := ParseEITSection(bs, CRC32Skip)
	require.NoError(t, err)
	require.Len(t, s.Events, 2)
	assert.Equal(t, uint8(RunningStatusRunning), s.Events[0].RunningStatus)
	require.Len(t, s.Anomalies, 1)
	assert.Equal(t, uint16(1), s.Anomalies[0].EventID)
	assert.Equal(t, "event_id", s.Anomalies[0].Field)
}

func TestParseEITSectionAnomalies(t *testing.T) {
	bs := eitSectionBytes(eitHeader,
		eitEventBytes(1, []byte{0xc0, 0x79, 0x1a, 0x45, 0x0}, []byte{0x0, 0x0c, 0x0}, 0, false, 0, nil),
		eitEventBytes(2, []byte{0xff, 0xff, 0xff, 0xff, 0xff}, []byte{0xff, 0xff, 0xff}, 0, false, 0, nil),
	)
	s, err := ParseEITSection(bs, CRC32Skip)
	require.NoError(t, err)
	require.Len(t, s.Events, 2)

	// Clamped
	assert.Equal(t, time.Date(1993, time.October, 13, 19, 45, 0, 0, time.UTC), s.Events[0].StartTime)
	assert.Equal(t, 9*time.Minute, s.Events[0].Duration)
	require.Len(t, s.Anomalies, 2)
	assert.Equal(t, "start_time", s.Anomalies[0].Field)
	assert.Equal(t, []byte{0xc0, 0x79, 0x1a, 0x45, 0x0}, s.Anomalies[0].Raw)
	assert.Equal(t, "duration", s.Anomalies[1].Field)
	assert.Contains(t, s.Anomalies[1].Error(), "event 1")

	// Undefined
	assert.True(t, s.Events[1].StartTimeUndefined)
	assert.True(t, s.Events[1].DurationUndefined)

	// Out of range
	bs = eitSectionBytes(eitHeader, eitEventBytes(3, []byte{0xe4, 0xd6, 0x25, 0x70, 0x0}, []byte{0x0, 0x99, 0x99}, 0, false, 0, nil))
	s, err = ParseEITSection(bs, CRC32Skip)
	require.NoError(t, err)
	require.Len(t, s.Events, 1)
	assert.Equal(t, time.Date(2019, time.April, 9, 23, 59, 0, 0, time.UTC), s.Events[0].StartTime)
	assert.Equal(t, 59*time.Minute+59*time.Second, s.Events[0].Duration)
	require.Len(t, s.Anomalies, 2)
	assert.Equal(t, "start_time", s.Anomalies[0].Field)
	assert.Equal(t, []byte{0xe4, 0xd6, 0x25, 0x70, 0x0}, s.Anomalies[0].Raw)
	assert.Equal(t, "duration", s.Anomalies[1].Field)
	assert.Contains(t, s.Anomalies[1].Reason, "out of range")
	assert.NotEqual(t, s.Anomalies[1].Reason, newBCDAnomaly(3, "duration", nil, dvbFieldQualityInvalidBCD).Reason)
}

func TestParseEITSectionChecksum(t *testing.T) {
	bs := eitSectionBytes(eitHeader, scenarioEventBytes())
	crc := mustSectionCRC32(t, bs)

	// Corrupted trailing bytes
	corrupted := append([]byte(nil), bs...)
	corrupted[len(corrupted)-1] ^= 0xff
	s, err := ParseEITSection(corrupted, crc)
	assert.ErrorIs(t, err, ErrCRC32Mismatch)
	assert.Nil(t, s)

	// Corrupted body
	corrupted = append([]byte(nil), bs...)
	corrupted[eitHeaderSize] ^= 0xff
	s, err = ParseEITSection(corrupted, crc)
	assert.ErrorIs(t, err, ErrCRC32Mismatch)
	assert.Nil(t, s)

	// Expected CRC32 differs from the section one
	s, err = ParseEITSection(bs, crc+1)
	assert.ErrorIs(t, err, ErrCRC32Mismatch)
	assert.Nil(t, s)

	// Skip
	s, err = ParseEITSection(corrupted, CRC32Skip)
	assert.NoError(t, err)
	assert.NotNil(t, s)
}

func TestParseEITSectionErrors(t *testing.T) {
	bs := eitSectionBytes(eitHeader, scenarioEventBytes())

	// Not an EIT
	h := eitHeader
	h.tableID = 0x42
	_, err := ParseEITSection(eitSectionBytes(h), CRC32Skip)
	assert.ErrorIs(t, err, ErrNotEITSection)

	// Less bytes than declared
	_, err = ParseEITSection(bs[:len(bs)-1], CRC32Skip)
	assert.ErrorIs(t, err, ErrSectionTruncated)
	_, err = ParseEITSection(bs[:2], CRC32Skip)
	assert.ErrorIs(t, err, ErrSectionTruncated)

	// Declared length is too small to hold the header and the CRC32
	small := append([]byte(nil), bs...)
	small[1], small[2] = 0xf0, 10
	_, err = ParseEITSection(small, CRC32Skip)
	assert.ErrorIs(t, err, ErrSectionTruncated)

	// Event header doesn't fit in the event region
	_, err = ParseEITSection(eitSectionBytes(eitHeader, scenarioEventBytes()[:8]), CRC32Skip)
	assert.ErrorIs(t, err, ErrSectionTruncated)

	// Descriptors loop overruns the event region
	_, err = ParseEITSection(eitSectionBytes(eitHeader, eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, 20, shortEventDescriptorBytes)), CRC32Skip)
	assert.ErrorIs(t, err, ErrLoopLengthMismatch)

	// Descriptor overruns the descriptors loop
	_, err = ParseEITSection(eitSectionBytes(eitHeader,
		eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, 10, shortEventDescriptorBytes[:10]),
		eitEventBytes(2, dvbTimeBytes, dvbDurationBytes, 0, false, 5, shortEventDescriptorBytes[10:]),
	), CRC32Skip)
	assert.ErrorIs(t, err, ErrLoopLengthMismatch)

	// Malformed descriptor
	_, err = ParseEITSection(eitSectionBytes(eitHeader, eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, 3, []byte{0x54, 1, 0x10})), CRC32Skip)
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
}

func TestEITDecoderDecodeHeader(t *testing.T) {
	bs := eitSectionBytes(eitHeader, eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, 20, nil))
	d := NewEITDecoder()

	// Header only ignores the event region
	h, err := d.DecodeHeader(bs, mustSectionCRC32(t, bs))
	require.NoError(t, err)
	assert.Equal(t, EITSectionKey{ServiceID: 7, TableID: 0x50, TransportStreamID: 1}, h.Key())
	assert.Equal(t, uint8(2), h.VersionNumber)

	_, err = d.Decode(bs, CRC32Skip)
	assert.ErrorIs(t, err, ErrLoopLengthMismatch)

	bs[len(bs)-1] ^= 0xff
	_, err = d.DecodeHeader(bs, mustSectionCRC32(t, bs))
	assert.ErrorIs(t, err, ErrCRC32Mismatch)
}

type testDescriptorFactory struct {
	tags []DescriptorTag
}

func (f *testDescriptorFactory) CreateDescriptor(t DescriptorTag, bs []byte) (Descriptor, int, error) {
	f.tags = append(f.tags, t)
	return defaultDescriptorRegistry.CreateDescriptor(t, bs)
}

func TestEITDecoderOptDescriptorFactory(t *testing.T) {
	f := &testDescriptorFactory{}
	d := NewEITDecoder(EITDecoderOptDescriptorFactory(f))
	bs := eitSectionBytes(eitHeader,
		eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, len(shortEventDescriptorBytes)+3, append(append([]byte(nil), shortEventDescriptorBytes...), 0x83, 1, 0x2a)),
	)
	s, err := d.Decode(bs, CRC32Skip)
	require.NoError(t, err)
	assert.Equal(t, []DescriptorTag{DescriptorTagShortEvent, 0x83}, f.tags)
	require.Len(t, s.Events[0].Descriptors, 2)
	assert.Equal(t, &DescriptorUserDefined{Data: []byte{0x2a}, Header: DescriptorHeader{Length: 1, Tag: 0x83}}, s.Events[0].Descriptors[1])
}

func TestWriteEITSection(t *testing.T) {
	bs := eitSectionBytes(eitHeader,
		eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, RunningStatusRunning, true, len(shortEventDescriptorBytes), shortEventDescriptorBytes),
		eitEventBytes(2, []byte{0xff, 0xff, 0xff, 0xff, 0xff}, []byte{0xff, 0xff, 0xff}, 0, false, 0, nil),
	)
	s, err := ParseEITSection(bs, mustSectionCRC32(t, bs))
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	n, err := WriteEITSection(buf, s)
	require.NoError(t, err)
	assert.Equal(t, len(bs), n)
	assert.Equal(t, bs, buf.Bytes())

	// CRC32 is computed
	s.CRC32 = 0
	s.VersionNumber = 3
	buf.Reset()
	_, err = WriteEITSection(buf, s)
	require.NoError(t, err)
	s2, err := ParseEITSection(buf.Bytes(), mustSectionCRC32(t, buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), s2.VersionNumber)
	assert.Equal(t, s.Events, s2.Events)
}

func TestWriteEITSectionErrors(t *testing.T) {
	// Descriptor that can't be written
	s := &EITSection{
		EITSectionHeader: EITSectionHeader{TableID: TableIDEITActualPresentFollowing},
		Events:           []*EITEvent{{Descriptors: []Descriptor{testDescriptor{}}}},
	}
	_, err := WriteEITSection(&bytes.Buffer{}, s)
	assert.Error(t, err)

	// Section too big
	s.Events = nil
	for idx := 0; idx < 400; idx++ {
		s.Events = append(s.Events, &EITEvent{EventID: uint16(idx)})
	}
	_, err = WriteEITSection(&bytes.Buffer{}, s)
	assert.Error(t, err)
}

type testDescriptor struct{}

func (testDescriptor) Tag() DescriptorTag   { return 0x42 }
func (testDescriptor) Report() *ReportNode { return NewReportNode("test") }

func TestTableID(t *testing.T) {
	assert.True(t, TableIDEITActualPresentFollowing.IsEIT())
	assert.True(t, TableIDEITActualPresentFollowing.IsPresentFollowing())
	assert.True(t, TableIDEITActualPresentFollowing.IsActual())
	assert.False(t, TableIDEITOtherPresentFollowing.IsActual())
	assert.True(t, TableID(0x55).IsSchedule())
	assert.True(t, TableID(0x55).IsActual())
	assert.True(t, TableID(0x65).IsSchedule())
	assert.False(t, TableID(0x65).IsActual())
	assert.False(t, TableID(0x42).IsEIT())
	assert.False(t, TableID(0x70).IsEIT())
	assert.Equal(t, "EIT other schedule", TableID(0x6f).String())
	assert.Equal(t, "Unknown", TableID(0x42).String())
}

func TestEITSectionKeyLess(t *testing.T) {
	k := EITSectionKey{SectionNumber: 1, ServiceID: 2, TableID: 0x50, TransportStreamID: 3}
	assert.False(t, k.Less(k))
	assert.True(t, k.Less(EITSectionKey{SectionNumber: 0, ServiceID: 1, TableID: 0x51, TransportStreamID: 0}))
	assert.True(t, k.Less(EITSectionKey{SectionNumber: 0, ServiceID: 1, TableID: 0x50, TransportStreamID: 4}))
	assert.True(t, k.Less(EITSectionKey{SectionNumber: 0, ServiceID: 3, TableID: 0x50, TransportStreamID: 3}))
	assert.True(t, k.Less(EITSectionKey{SectionNumber: 2, ServiceID: 2, TableID: 0x50, TransportStreamID: 3}))
	assert.False(t, k.Less(EITSectionKey{SectionNumber: 0, ServiceID: 2, TableID: 0x50, TransportStreamID: 3}))
}

func TestSectionCRC32(t *testing.T) {
	bs := eitSectionBytes(eitHeader, scenarioEventBytes())
	crc, err := SectionCRC32(bs)
	require.NoError(t, err)
	assert.Equal(t, parseCRC32(bs, len(bs)), crc)

	_, err = SectionCRC32(bs[:len(bs)-1])
	assert.ErrorIs(t, err, ErrSectionTruncated)
}
