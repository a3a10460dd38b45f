package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Self-describing frame magic numbers. Each blob starts with a magic word
// identifying its shape so a reader never has to guess an element count
// from the byte length alone.
const (
	magicTimeToLeave uint32 = 0x54544c31 // "TTL1"
	magicWeight      uint32 = 0x57474831 // "WGH1"
)

// encodeTimeToLeave packs a chain's four dwell-time means into a
// length-prefixed frame: magic, element count, then big-endian float64s.
func encodeTimeToLeave(v [4]float64) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, magicTimeToLeave)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(v)))
	for _, f := range v {
		_ = binary.Write(buf, binary.BigEndian, f)
	}
	return buf.Bytes()
}

// decodeTimeToLeave is the inverse of encodeTimeToLeave.
func decodeTimeToLeave(b []byte) ([4]float64, error) {
	var out [4]float64
	r := bytes.NewReader(b)

	var magic, count uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if magic != magicTimeToLeave {
		return out, fmt.Errorf("%w: bad time_to_leave magic %#x", ErrDecode, magic)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if count != uint32(len(out)) {
		return out, fmt.Errorf("%w: expected %d time_to_leave elements, got %d", ErrDecode, len(out), count)
	}
	for i := range out {
		if err := binary.Read(r, binary.BigEndian, &out[i]); err != nil {
			return out, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return out, nil
}

// encodeWeight packs a chain's 4x4 transition-count matrix in row-major
// order into the same style of length-prefixed frame. Counts are stored
// as 32-bit integers, matching the persisted schema's i32 matrix.
func encodeWeight(m [4][4]int32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, magicWeight)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(m)*len(m[0])))
	for _, row := range m {
		for _, v := range row {
			_ = binary.Write(buf, binary.BigEndian, v)
		}
	}
	return buf.Bytes()
}

// decodeWeight is the inverse of encodeWeight.
func decodeWeight(b []byte) ([4][4]int32, error) {
	var out [4][4]int32
	r := bytes.NewReader(b)

	var magic, count uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if magic != magicWeight {
		return out, fmt.Errorf("%w: bad weight magic %#x", ErrDecode, magic)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if count != uint32(len(out)*len(out[0])) {
		return out, fmt.Errorf("%w: expected %d weight elements, got %d", ErrDecode, len(out)*len(out[0]), count)
	}
	for i := range out {
		for j := range out[i] {
			if err := binary.Read(r, binary.BigEndian, &out[i][j]); err != nil {
				return out, fmt.Errorf("%w: %v", ErrDecode, err)
			}
		}
	}
	return out, nil
}
