package astieit

const (
	crc32Polynomial = uint32(0x04c11db7)
	crc32Initial    = uint32(0xffffffff)
)

// MPEG-2 CRC32 (non reflected, no final xor), see ISO/IEC 13818-1 Annex A.
// The table is built once at startup, this avoids reallocations while iterating sections
var tableCRC32 = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 > 0 {
				c = (c << 1) ^ crc32Polynomial
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return
}()

func computeCRC32(bs []byte) uint32 {
	return updateCRC32(crc32Initial, bs)
}

func updateCRC32(iCrc uint32, bs []byte) uint32 {
	for _, b := range bs {
		iCrc = (iCrc << 8) ^ tableCRC32[((iCrc>>24)^uint32(b))&0xff]
	}
	return iCrc
}
