package filter

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffleBijection(t *testing.T) {
	for _, typesize := range []int{1, 2, 3, 4, 8, 16} {
		for _, nelems := range []int{0, 1, 4, 37, 128} {
			blocksize := nelems * typesize
			src := make([]byte, blocksize)
			for i := range src {
				src[i] = byte(i * 7 % 251)
			}
			shuffled := make([]byte, blocksize)
			back := make([]byte, blocksize)

			Shuffle(typesize, src, shuffled)
			Unshuffle(typesize, shuffled, back)

			assert.Equalf(t, src, back, "typesize=%d nelems=%d", typesize, nelems)
		}
	}
}

func TestBitshuffleBijection(t *testing.T) {
	for _, typesize := range []int{1, 2, 4, 8} {
		blocksize := typesize * 64 // 64 elements: a multiple of 8
		src := make([]byte, blocksize)
		for i := range src {
			src[i] = byte(i*31 + 5)
		}
		tmp := make([]byte, blocksize)
		shuffled := make([]byte, blocksize)
		back := make([]byte, blocksize)

		require.NoError(t, Bitshuffle(typesize, blocksize, src, shuffled, tmp))
		require.NoError(t, Unbitshuffle(typesize, blocksize, shuffled, back, tmp))

		assert.Equal(t, src, back)
	}
}

func TestBitshuffleHandlesUnalignedRemainder(t *testing.T) {
	// None of these blocksizes are a multiple of typesize*8; Bitshuffle must
	// still round-trip them instead of failing (spec P1).
	cases := []struct{ typesize, blocksize int }{
		{4, 12},    // 3 elements: fewer than one aligned group of 8
		{4, 16388}, // 4097 elements: 16388 % 32 == 4
		{4, 1028},  // 257 elements: 32 aligned groups of 8 plus 1 leftover element
		{8, 100},   // not a multiple of typesize at all: 12 whole elements + 4 tail bytes
		{1, 13},
	}
	for _, c := range cases {
		src := make([]byte, c.blocksize)
		for i := range src {
			src[i] = byte(i*31 + 5)
		}
		tmp := make([]byte, c.blocksize)
		shuffled := make([]byte, c.blocksize)
		back := make([]byte, c.blocksize)

		require.NoErrorf(t, Bitshuffle(c.typesize, c.blocksize, src, shuffled, tmp),
			"typesize=%d blocksize=%d", c.typesize, c.blocksize)
		require.NoErrorf(t, Unbitshuffle(c.typesize, c.blocksize, shuffled, back, tmp),
			"typesize=%d blocksize=%d", c.typesize, c.blocksize)

		assert.Equalf(t, src, back, "typesize=%d blocksize=%d", c.typesize, c.blocksize)
	}
}

func TestBitshuffleRejectsNonPositiveTypesize(t *testing.T) {
	src := make([]byte, 12)
	tmp := make([]byte, 12)
	dst := make([]byte, 12)
	err := Bitshuffle(0, 12, src, dst, tmp)
	assert.ErrorIs(t, err, ErrBitshuffleFailed)
}

func TestDeltaInvolutionReferenceBlock(t *testing.T) {
	typesize := 4
	nelems := 16
	ref := make([]byte, nelems*typesize)
	for i := range ref {
		ref[i] = byte(i * 3)
	}
	src := make([]byte, len(ref))
	copy(src, ref)
	for i := range src {
		src[i] ^= byte(i + 1)
	}

	encoded := make([]byte, len(src))
	DeltaEncode(ref, 0, typesize, src, encoded)

	decoded := make([]byte, len(encoded))
	copy(decoded, encoded)
	DeltaDecode(ref, 0, typesize, decoded)

	assert.Equal(t, src, decoded)
}

func TestDeltaInvolutionNonReferenceBlock(t *testing.T) {
	typesize := 8
	nelems := 10
	ref := make([]byte, nelems*typesize)
	for i := range ref {
		ref[i] = byte(i * 13)
	}
	src := make([]byte, len(ref))
	for i := range src {
		src[i] = byte(i*17 + 9)
	}

	encoded := make([]byte, len(src))
	DeltaEncode(ref, 1, typesize, src, encoded)

	decoded := make([]byte, len(encoded))
	copy(decoded, encoded)
	DeltaDecode(ref, 1, typesize, decoded)

	assert.Equal(t, src, decoded)
}

func TestDeltaFallthroughTypesizes(t *testing.T) {
	// typesize 24 is divisible by 8: should use the 8-byte path.
	ref := make([]byte, 24*3)
	src := make([]byte, len(ref))
	for i := range src {
		ref[i] = byte(i)
		src[i] = byte(i * 2)
	}
	encoded := make([]byte, len(src))
	DeltaEncode(ref, 0, 24, src, encoded)
	decoded := append([]byte(nil), encoded...)
	DeltaDecode(ref, 0, 24, decoded)
	assert.Equal(t, src, decoded)

	// typesize 3 is not divisible by 8: falls back to the 1-byte path.
	ref3 := []byte{1, 2, 3, 4, 5, 6}
	src3 := []byte{9, 8, 7, 6, 5, 4}
	encoded3 := make([]byte, len(src3))
	DeltaEncode(ref3, 0, 3, src3, encoded3)
	decoded3 := append([]byte(nil), encoded3...)
	DeltaDecode(ref3, 0, 3, decoded3)
	assert.Equal(t, src3, decoded3)
}

func TestTruncatePrecisionIdempotent(t *testing.T) {
	src := make([]byte, 8*4)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(src[4*i:4*i+4], math.Float32bits(float32(i)+0.123456))
	}

	once := make([]byte, len(src))
	require.NoError(t, TruncatePrecision(10, 4, src, once))

	twice := make([]byte, len(src))
	require.NoError(t, TruncatePrecision(10, 4, once, twice))

	assert.Equal(t, once, twice)
}

func TestTruncatePrecisionRefusesFullMantissa(t *testing.T) {
	src := make([]byte, 4)
	dst := make([]byte, 4)
	err := TruncatePrecision(-23, 4, src, dst)
	assert.ErrorIs(t, err, ErrPrecisionRange)

	// prec=0 means "keep zero mantissa bits", i.e. zero out all of them.
	err = TruncatePrecision(0, 8, make([]byte, 8), make([]byte, 8))
	assert.ErrorIs(t, err, ErrPrecisionRange)
}

func TestTruncatePrecisionUnsupportedTypesize(t *testing.T) {
	err := TruncatePrecision(5, 2, make([]byte, 2), make([]byte, 2))
	assert.ErrorIs(t, err, ErrUnsupportedTypesize)
}
