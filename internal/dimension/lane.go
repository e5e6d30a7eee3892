package dimension

import (
	"encoding/binary"
	"math"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
)

// lane is the arithmetic family a Datatype's values are widened into.
// Integer math happens in the matching width to avoid signed
// overflow; we widen every signed kind to int64
// and every unsigned kind to uint64 (both wide enough to hold any
// narrower kind's full range) and keep the narrower kind's own
// min/max around separately for saturation. Real kinds widen to
// float64. This replaces per-width generic instantiation — a Go
// switch over three lanes, never reflection.
type lane uint8

const (
	laneSigned lane = iota
	laneUnsigned
	laneReal
)

func laneOf(dt shared.Datatype) (lane, error) {
	switch {
	case dt.IsSigned():
		return laneSigned, nil
	case dt.IsInteger():
		return laneUnsigned, nil
	case dt.IsReal():
		return laneReal, nil
	case dt == shared.DatetimeSecond, dt == shared.DatetimeMillisecond, dt == shared.DatetimeMicrosecond, dt == shared.DatetimeNanosecond,
		dt == shared.TimeSecond, dt == shared.TimeMillisecond, dt == shared.TimeMicrosecond, dt == shared.TimeNanosecond:
		return laneSigned, nil
	default:
		return 0, errs.New(errs.UsageError, "dimension: datatype %s has no dimension arithmetic", dt)
	}
}

// signedBounds returns the true minimum and maximum representable by
// the narrow width dt actually uses, for saturation purposes.
func signedBounds(dt shared.Datatype) (lo, hi int64) {
	switch dt.ByteSize() {
	case 1:
		return math.MinInt8, math.MaxInt8
	case 2:
		return math.MinInt16, math.MaxInt16
	case 4:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func unsignedBounds(dt shared.Datatype) (lo, hi uint64) {
	switch dt.ByteSize() {
	case 1:
		return 0, math.MaxUint8
	case 2:
		return 0, math.MaxUint16
	case 4:
		return 0, math.MaxUint32
	default:
		return 0, math.MaxUint64
	}
}

func decodeSigned(dt shared.Datatype, b []byte) int64 {
	switch dt.ByteSize() {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func encodeSigned(dt shared.Datatype, v int64) []byte {
	b := make([]byte, dt.ByteSize())
	switch dt.ByteSize() {
	case 1:
		b[0] = byte(int8(v))
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
	return b
}

func decodeUnsigned(dt shared.Datatype, b []byte) uint64 {
	switch dt.ByteSize() {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func encodeUnsigned(dt shared.Datatype, v uint64) []byte {
	b := make([]byte, dt.ByteSize())
	switch dt.ByteSize() {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
	return b
}

func decodeReal(dt shared.Datatype, b []byte) float64 {
	if dt.ByteSize() == 4 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func encodeReal(dt shared.Datatype, v float64) []byte {
	b := make([]byte, dt.ByteSize())
	if dt.ByteSize() == 4 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	} else {
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
	return b
}
