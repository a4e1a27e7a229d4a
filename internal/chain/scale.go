package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// ErrShortBuffer is returned when a compact integer is truncated.
var ErrShortBuffer = errors.New("scale: short buffer")

// AppendCompact appends the SCALE compact encoding of v to dst.
func AppendCompact(dst []byte, v uint64) []byte {
	switch {
	case v < 1<<6:
		return append(dst, byte(v)<<2)
	case v < 1<<14:
		return binary.LittleEndian.AppendUint16(dst, uint16(v)<<2|0b01)
	case v < 1<<30:
		return binary.LittleEndian.AppendUint32(dst, uint32(v)<<2|0b10)
	}
	n := (bits.Len64(v) + 7) / 8
	dst = append(dst, byte(n-4)<<2|0b11)
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// DecodeCompact reads a compact integer from the front of b and reports how
// many bytes it consumed.
func DecodeCompact(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortBuffer
	}
	switch b[0] & 0b11 {
	case 0b00:
		return uint64(b[0] >> 2), 1, nil
	case 0b01:
		if len(b) < 2 {
			return 0, 0, ErrShortBuffer
		}
		return uint64(binary.LittleEndian.Uint16(b) >> 2), 2, nil
	case 0b10:
		if len(b) < 4 {
			return 0, 0, ErrShortBuffer
		}
		return uint64(binary.LittleEndian.Uint32(b) >> 2), 4, nil
	}
	n := int(b[0]>>2) + 4
	if n > 8 {
		return 0, 0, fmt.Errorf("scale: compact integer of %d bytes overflows uint64", n)
	}
	if len(b) < 1+n {
		return 0, 0, ErrShortBuffer
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[1+i]) << (8 * i)
	}
	return v, 1 + n, nil
}
