package astieit

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CRC32Skip tells the decoder to trust the section and skip the CRC32 verification
const CRC32Skip = uint32(0xffffffff)

const (
	psiHeaderSize    = 3
	crc32Size        = 4
	maxSectionLength = 4093 // Private sections, the whole section can't exceed 4096 bytes
)

// Errors
var (
	ErrCRC32Mismatch       = errors.New("astieit: CRC32 mismatch")
	ErrLoopLengthMismatch  = errors.New("astieit: loop length mismatch")
	ErrMalformedDescriptor = errors.New("astieit: malformed descriptor")
	ErrNotEITSection       = errors.New("astieit: not an EIT section")
	ErrSectionTruncated    = errors.New("astieit: section truncated")
)

// TableID is the first byte of every PSI/SI section
type TableID uint8

// EIT table ids
// Chapter: 5.1.3 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	TableIDEITActualPresentFollowing TableID = 0x4e
	TableIDEITOtherPresentFollowing  TableID = 0x4f
	TableIDEITActualScheduleStart    TableID = 0x50
	TableIDEITActualScheduleEnd      TableID = 0x5f
	TableIDEITOtherScheduleStart     TableID = 0x60
	TableIDEITOtherScheduleEnd       TableID = 0x6f
	TableIDNull                      TableID = 0xff
)

// IsEIT checks whether the table id belongs to the EIT range
func (t TableID) IsEIT() bool {
	return t >= TableIDEITActualPresentFollowing && t <= TableIDEITOtherScheduleEnd
}

// IsPresentFollowing checks whether the table id is an EIT present/following one
func (t TableID) IsPresentFollowing() bool {
	return t == TableIDEITActualPresentFollowing || t == TableIDEITOtherPresentFollowing
}

// IsSchedule checks whether the table id is an EIT schedule one
func (t TableID) IsSchedule() bool {
	return t >= TableIDEITActualScheduleStart && t <= TableIDEITOtherScheduleEnd
}

// IsActual checks whether the table id describes the actual transport stream
func (t TableID) IsActual() bool {
	return t == TableIDEITActualPresentFollowing || (t >= TableIDEITActualScheduleStart && t <= TableIDEITActualScheduleEnd)
}

// String implements the fmt.Stringer interface
func (t TableID) String() string {
	switch {
	case t == TableIDEITActualPresentFollowing:
		return "EIT actual present/following"
	case t == TableIDEITOtherPresentFollowing:
		return "EIT other present/following"
	case t >= TableIDEITActualScheduleStart && t <= TableIDEITActualScheduleEnd:
		return "EIT actual schedule"
	case t >= TableIDEITOtherScheduleStart && t <= TableIDEITOtherScheduleEnd:
		return "EIT other schedule"
	case t == TableIDNull:
		return "Null"
	}
	return "Unknown"
}

// parseSectionLength returns the number of bytes the section occupies, from its table id to its
// trailing CRC32 included
func parseSectionLength(bs []byte) (int, error) {
	if len(bs) < psiHeaderSize {
		return 0, fmt.Errorf("%w: section header needs %d bytes, %d left", ErrSectionTruncated, psiHeaderSize, len(bs))
	}
	return psiHeaderSize + (int(bs[1]&0xf)<<8 | int(bs[2])), nil
}

// parseCRC32 parses the CRC32 trailing a section of length l
func parseCRC32(bs []byte, l int) uint32 {
	return binary.BigEndian.Uint32(bs[l-crc32Size : l])
}

// SectionCRC32 computes the CRC32 of the section starting at bs, its trailing CRC32 excluded. The
// result is the value a demuxer hands over to the decoder along with the section bytes.
func SectionCRC32(bs []byte) (uint32, error) {
	l, err := parseSectionLength(bs)
	if err != nil {
		return 0, err
	}
	if l < psiHeaderSize+crc32Size || len(bs) < l {
		return 0, fmt.Errorf("%w: section length is %d, %d bytes available", ErrSectionTruncated, l, len(bs))
	}
	return computeCRC32(bs[:l-crc32Size]), nil
}
