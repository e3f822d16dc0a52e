package astieit

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDescriptorFactory struct {
	m sync.Mutex
	n int
}

func (f *countingDescriptorFactory) CreateDescriptor(t DescriptorTag, bs []byte) (Descriptor, int, error) {
	f.m.Lock()
	f.n++
	f.m.Unlock()
	return defaultDescriptorRegistry.CreateDescriptor(t, bs)
}

func newTestRawSection(t *testing.T, h eitHeaderFixture, events ...[]byte) RawSection {
	bs := eitSectionBytes(h, events...)
	return RawSection{Bytes: bs, CRC32: mustSectionCRC32(t, bs), PID: PIDEIT}
}

func TestCollectorProcess(t *testing.T) {
	f := &countingDescriptorFactory{}
	m := NewMetrics("test")
	r := NewEITRegistry(EITRegistryOptMetrics(m))
	var errs []error
	c := NewCollector(r,
		CollectorOptDecoder(NewEITDecoder(EITDecoderOptDescriptorFactory(f))),
		CollectorOptMetrics(m),
		CollectorOptOnError(func(s RawSection, err error) { errs = append(errs, err) }),
	)
	event := eitEventBytes(1, dvbTimeBytes, dvbDurationBytes, 0, false, len(shortEventDescriptorBytes), shortEventDescriptorBytes)

	// First sighting is decoded
	rs := newTestRawSection(t, eitHeader, event)
	assert.True(t, c.Process(rs))
	assert.Equal(t, 1, f.n)
	assert.Equal(t, 1, r.Len())

	// Repeats are not
	assert.True(t, c.Process(rs))
	assert.Equal(t, 1, f.n)

	// Version bump only updates the header
	h := eitHeader
	h.version++
	assert.True(t, c.Process(newTestRawSection(t, h, event, scenarioEventBytes())))
	assert.Equal(t, 1, f.n)
	s, ok := r.Get(testEITSectionKey)
	require.True(t, ok)
	assert.Equal(t, h.version, s.VersionNumber)
	assert.Len(t, s.Events, 1)

	// Corrupted
	rs.Bytes = append([]byte(nil), rs.Bytes...)
	rs.Bytes[len(rs.Bytes)-1] ^= 0xff
	assert.False(t, c.Process(rs))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCRC32Mismatch)

	// Malformed body of an unknown section
	h.sectionNumber = 1
	assert.False(t, c.Process(newTestRawSection(t, h, event[:15])))
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[1], ErrLoopLengthMismatch)
	assert.Equal(t, 1, r.Len())

	// Metrics
	assert.Equal(t, float64(5), testutil.ToFloat64(m.sections.WithLabelValues("EIT actual schedule")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeErrors.WithLabelValues("crc32_mismatch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeErrors.WithLabelValues("loop_length_mismatch")))
}

func TestCollectorRun(t *testing.T) {
	r := NewEITRegistry()
	c := NewCollector(r, CollectorOptWorkers(4))
	in := make(chan RawSection)
	done := make(chan error)
	go func() { done <- c.Run(context.Background(), in) }()

	h := eitHeader
	for idx := 0; idx < 3; idx++ {
		for sn := uint8(0); sn < 10; sn++ {
			h.sectionNumber = sn
			in <- newTestRawSection(t, h, scenarioEventBytes())
		}
	}
	close(in)
	assert.NoError(t, <-done)
	assert.Equal(t, 10, r.Len())

	// Cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Run(ctx, make(chan RawSection)), context.Canceled)
}

func TestCollectorRunDemuxer(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewSectionMuxer(context.Background(), buf)
	h := eitHeader
	for idx := 0; idx < 2; idx++ {
		for sn := uint8(0); sn < 4; sn++ {
			h.sectionNumber = sn
			_, err := m.WriteSection(eitSectionBytes(h, scenarioEventBytes()))
			require.NoError(t, err)
		}
	}

	r := NewEITRegistry()
	require.NoError(t, NewCollector(r, CollectorOptWorkers(2)).RunDemuxer(context.Background(), NewDemuxer(context.Background(), bytes.NewReader(buf.Bytes()))))
	assert.Equal(t, 4, r.Len())
	for _, s := range r.Sections() {
		require.Len(t, s.Events, 1)
		assert.Equal(t, uint16(0x1234), s.Events[0].EventID)
	}
}
