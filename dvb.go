package astieit

import (
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
)

// Day 0 of the Modified Julian Date
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// dvbFieldQuality describes how trustworthy a decoded DVB time field is
type dvbFieldQuality uint8

const (
	dvbFieldQualityOK dvbFieldQuality = iota
	// All bits set to "1", e.g. the start time of an event in a NVOD reference service
	dvbFieldQualityUndefined
	// At least one BCD nibble was > 9 and has been clamped to 9
	dvbFieldQualityInvalidBCD
	// Digits are valid BCD but hours, minutes or seconds are out of range and have been clamped
	dvbFieldQualityOutOfRange
)

// parseDVBTime parses a DVB time
// This field is coded as 16 bits giving the 16 LSBs of MJD
// followed by 24 bits coded as 6 digits in 4 - bit Binary
// Coded Decimal (BCD). If the start time is undefined
// (e.g. for an event in a NVOD reference service)
// all bits of the field are set to "1".
// Parsing never fails, bs must hold 5 bytes.
//
// Page: 160 | Annex C | Link:
// https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
func parseDVBTime(bs []byte) (t time.Time, q dvbFieldQuality) {
	if allBitsSet(bs[:5]) {
		q = dvbFieldQualityUndefined
		return
	}

	// Date
	mjd := int(bs[0])<<8 | int(bs[1])
	t = mjdEpoch.AddDate(0, 0, mjd)

	// Time
	var d time.Duration
	d, q = parseDVBClock(bs[2:5], 23)
	t = t.Add(d)
	return
}

// parseDVBDurationSeconds parses a seconds duration.
// 24 bit field containing the duration of the event in hours,
// minutes, seconds. format: 6 digits, 4 - bit BCD = 24 bit.
func parseDVBDurationSeconds(bs []byte) (d time.Duration, q dvbFieldQuality) {
	if allBitsSet(bs[:3]) {
		q = dvbFieldQualityUndefined
		return
	}
	return parseDVBClock(bs, 99)
}

// parseDVBClock parses 6 BCD digits of hours, minutes and seconds. Values above maxHours, 59 minutes
// or 59 seconds are clamped.
func parseDVBClock(bs []byte, maxHours time.Duration) (d time.Duration, q dvbFieldQuality) {
	h, okH := parseDVBDurationByte(bs[0])
	m, okM := parseDVBDurationByte(bs[1])
	s, okS := parseDVBDurationByte(bs[2])
	if !okH || !okM || !okS {
		q = dvbFieldQualityInvalidBCD
	}

	// Range
	if h > maxHours || m > 59 || s > 59 {
		h, m, s = min(h, maxHours), min(m, 59), min(s, 59)
		if q == dvbFieldQualityOK {
			q = dvbFieldQualityOutOfRange
		}
	}
	d = h*time.Hour + m*time.Minute + s*time.Second //nolint:durationcheck
	return
}

// parseDVBDurationByte parses a duration byte. Nibbles above 9 are clamped to 9.
func parseDVBDurationByte(i byte) (d time.Duration, ok bool) {
	hi, lo := i>>4, i&0xf
	ok = hi <= 9 && lo <= 9
	if hi > 9 {
		hi = 9
	}
	if lo > 9 {
		lo = 9
	}
	d = time.Duration(hi*10 + lo)
	return
}

func allBitsSet(bs []byte) bool {
	for _, b := range bs {
		if b != 0xff {
			return false
		}
	}
	return true
}

func writeDVBTime(w *astikit.BitsWriter, t time.Time, undefined bool) (int, error) {
	b := astikit.NewBitsWriterBatch(w)
	if undefined {
		b.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff})
		return 5, b.Err()
	}

	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	mjd := int(day.Sub(mjdEpoch) / (24 * time.Hour))
	if mjd < 0 || mjd > 0xffff {
		return 0, fmt.Errorf("astieit: time %s can't be coded as a 16 bits MJD", t)
	}

	b.Write(uint16(mjd))
	if err := b.Err(); err != nil {
		return 0, err
	}

	n, err := writeDVBDurationSeconds(w, t.Sub(day), false)
	if err != nil {
		return 2, err
	}
	return n + 2, nil
}

func writeDVBDurationSeconds(w *astikit.BitsWriter, d time.Duration, undefined bool) (int, error) {
	b := astikit.NewBitsWriterBatch(w)
	if undefined {
		b.Write([]byte{0xff, 0xff, 0xff})
		return 3, b.Err()
	}

	if d < 0 || d >= 100*time.Hour {
		return 0, fmt.Errorf("astieit: duration %s can't be coded as 6 BCD digits", d)
	}

	hours := uint8(d / time.Hour)
	minutes := uint8(int(d.Minutes()) % 60)
	seconds := uint8(int(d.Seconds()) % 60)

	b.Write(dvbDurationByteRepresentation(hours))
	b.Write(dvbDurationByteRepresentation(minutes))
	b.Write(dvbDurationByteRepresentation(seconds))

	return 3, b.Err()
}

func dvbDurationByteRepresentation(n uint8) uint8 {
	return (n/10)<<4 | n%10
}
