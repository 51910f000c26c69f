package filter

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	mantissaBitsFloat32 = 23
	mantissaBitsFloat64 = 52
)

// ErrUnsupportedTypesize is returned when TruncatePrecision is asked to
// operate on a typesize other than 4 or 8 (single/double precision floats).
var ErrUnsupportedTypesize = errors.New("filter: truncate-precision only supports typesize 4 or 8")

// ErrPrecisionRange is returned when prec would zero out every mantissa bit,
// which would corrupt NaN/Inf representations.
var ErrPrecisionRange = errors.New("filter: requested precision would clear the whole mantissa")

// TruncatePrecision masks out low-order mantissa bits of each 4- or 8-byte
// float in src, writing the result to dest (which may alias src).
//
// prec selects how many mantissa bits survive: if positive, exactly prec
// bits are kept (the low mantissaBits-prec bits are zeroed); if negative,
// |prec| bits are zeroed outright. typesize must be 4 (float32, 23-bit
// mantissa) or 8 (float64, 52-bit mantissa); any other value is
// ErrUnsupportedTypesize. A prec whose magnitude would zero the entire
// mantissa is refused with ErrPrecisionRange, since that would make NaN and
// Inf indistinguishable from large finite values.
func TruncatePrecision(prec int, typesize int, src, dest []byte) error {
	switch typesize {
	case 4:
		return truncate32(prec, src, dest)
	case 8:
		return truncate64(prec, src, dest)
	default:
		return errors.Wrapf(ErrUnsupportedTypesize, "typesize=%d", typesize)
	}
}

func truncate32(prec int, src, dest []byte) error {
	mantissaBits := mantissaBitsFloat32
	if abs(prec) > mantissaBits {
		return errors.Wrapf(ErrPrecisionRange, "prec %d exceeds %d mantissa bits", prec, mantissaBits)
	}
	zeroed := mantissaBits - prec
	if prec < 0 {
		zeroed = -prec
	}
	if zeroed >= mantissaBits {
		return errors.Wrapf(ErrPrecisionRange, "zeroing %d of %d mantissa bits", zeroed, mantissaBits)
	}
	mask := ^uint32(0) << uint(zeroed)

	n := len(src) / 4
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint32(src[4*i : 4*i+4])
		binary.LittleEndian.PutUint32(dest[4*i:4*i+4], v&mask)
	}
	return nil
}

func truncate64(prec int, src, dest []byte) error {
	mantissaBits := mantissaBitsFloat64
	if abs(prec) > mantissaBits {
		return errors.Wrapf(ErrPrecisionRange, "prec %d exceeds %d mantissa bits", prec, mantissaBits)
	}
	zeroed := mantissaBits - prec
	if prec < 0 {
		zeroed = -prec
	}
	if zeroed >= mantissaBits {
		return errors.Wrapf(ErrPrecisionRange, "zeroing %d of %d mantissa bits", zeroed, mantissaBits)
	}
	mask := ^uint64(0) << uint(zeroed)

	n := len(src) / 8
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint64(src[8*i : 8*i+8])
		binary.LittleEndian.PutUint64(dest[8*i:8*i+8], v&mask)
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
