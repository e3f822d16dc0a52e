package astieit

import (
	"bytes"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dvbDuration      = time.Hour + 45*time.Minute + 30*time.Second
	dvbDurationBytes = []byte{0x1, 0x45, 0x30} // 014530
	dvbTime, _       = time.Parse("2006-01-02 15:04:05", "1993-10-13 12:45:00")
	dvbTimeBytes     = []byte{0xc0, 0x79, 0x12, 0x45, 0x0} // C079124500
)

func TestParseDVBTime(t *testing.T) {
	d, q := parseDVBTime(dvbTimeBytes)
	assert.Equal(t, dvbTime, d)
	assert.Equal(t, dvbFieldQualityOK, q)

	d, q = parseDVBTime([]byte{0xff, 0xff, 0xff, 0xff, 0xff})
	assert.True(t, d.IsZero())
	assert.Equal(t, dvbFieldQualityUndefined, q)

	// Day 0 is the MJD epoch
	d, q = parseDVBTime([]byte{0x0, 0x0, 0x0, 0x0, 0x1})
	assert.Equal(t, time.Date(1858, time.November, 17, 0, 0, 1, 0, time.UTC), d)
	assert.Equal(t, dvbFieldQualityOK, q)
}

func TestParseDVBTimeInvalidBCD(t *testing.T) {
	d, q := parseDVBTime([]byte{0xc0, 0x79, 0x1a, 0xf5, 0x0})
	assert.Equal(t, dvbFieldQualityInvalidBCD, q)
	// 1a is clamped to 19, f5 to 95 and then to 59
	assert.Equal(t, time.Date(1993, time.October, 13, 19, 59, 0, 0, time.UTC), d)
}

func TestParseDVBTimeOutOfRange(t *testing.T) {
	// 25:70:00 doesn't roll over into the next day
	d, q := parseDVBTime([]byte{0xe4, 0xd6, 0x25, 0x70, 0x0})
	assert.Equal(t, dvbFieldQualityOutOfRange, q)
	assert.Equal(t, time.Date(2019, time.April, 9, 23, 59, 0, 0, time.UTC), d)

	d, q = parseDVBTime([]byte{0xe4, 0xd6, 0x23, 0x59, 0x60})
	assert.Equal(t, dvbFieldQualityOutOfRange, q)
	assert.Equal(t, time.Date(2019, time.April, 9, 23, 59, 59, 0, time.UTC), d)
}

func TestParseDVBDuration(t *testing.T) {
	d, q := parseDVBDurationSeconds(dvbDurationBytes)
	assert.Equal(t, dvbDuration, d)
	assert.Equal(t, dvbFieldQualityOK, q)

	_, q = parseDVBDurationSeconds([]byte{0xff, 0xff, 0xff})
	assert.Equal(t, dvbFieldQualityUndefined, q)

	d, q = parseDVBDurationSeconds([]byte{0x0, 0x0c, 0x0})
	assert.Equal(t, 9*time.Minute, d)
	assert.Equal(t, dvbFieldQualityInvalidBCD, q)

	// Minutes and seconds are out of range, hours are not
	d, q = parseDVBDurationSeconds([]byte{0x0, 0x99, 0x99})
	assert.Equal(t, 59*time.Minute+59*time.Second, d)
	assert.Equal(t, dvbFieldQualityOutOfRange, q)

	d, q = parseDVBDurationSeconds([]byte{0x99, 0x0, 0x0})
	assert.Equal(t, 99*time.Hour, d)
	assert.Equal(t, dvbFieldQualityOK, q)
}

func TestWriteDVBTime(t *testing.T) {
	buf := &bytes.Buffer{}
	w := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: buf})
	n, err := writeDVBTime(w, dvbTime, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, dvbTimeBytes, buf.Bytes())

	buf.Reset()
	_, err = writeDVBTime(w, time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff}, buf.Bytes())

	_, err = writeDVBTime(w, time.Date(1800, time.January, 1, 0, 0, 0, 0, time.UTC), false)
	assert.Error(t, err)
}

func TestWriteDVBDuration(t *testing.T) {
	buf := &bytes.Buffer{}
	w := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: buf})
	n, err := writeDVBDurationSeconds(w, dvbDuration, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, dvbDurationBytes, buf.Bytes())

	_, err = writeDVBDurationSeconds(w, 100*time.Hour, false)
	assert.Error(t, err)
}
