package docstore

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// SortableLen is the size of every SortableSerialise encoding.
const SortableLen = 8

// SortableSerialise encodes v so that comparing encodings with
// bytes.Compare orders them like the numbers. -0 encodes as 0 and NaN
// sorts after +Inf.
func SortableSerialise(v float64) []byte {
	if v == 0 {
		v = 0
	}
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, SortableLen)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

// SortableUnserialise reverses SortableSerialise.
func SortableUnserialise(b []byte) (float64, error) {
	if len(b) != SortableLen {
		return 0, fmt.Errorf("%w: sortable value has %d bytes, want %d",
			apperrors.ErrSerialisation, len(b), SortableLen)
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}
