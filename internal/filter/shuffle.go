// Package filter implements the reversible pre-conditioning kernels that run
// over a block before it reaches a codec adapter: byte shuffle, bit shuffle,
// delta, and truncate-precision.
package filter

import "github.com/pkg/errors"

// ErrBitshuffleFailed is returned when the bitshuffle kernel cannot process
// the given typesize/blocksize combination.
var ErrBitshuffleFailed = errors.New("filter: bitshuffle failed")

// Shuffle rearranges src, interpreted as blocksize/typesize elements of
// typesize bytes each, so that output lane j holds byte j of every input
// element in order. Trailing bytes that don't form a whole element are
// copied unshuffled. dst must be a different backing array than src.
func Shuffle(typesize int, src, dst []byte) {
	blocksize := len(src)
	if typesize <= 1 || blocksize < typesize {
		copy(dst, src)
		return
	}

	nelems := blocksize / typesize
	tail := nelems * typesize

	for lane := 0; lane < typesize; lane++ {
		out := lane * nelems
		in := lane
		for e := 0; e < nelems; e++ {
			dst[out+e] = src[in]
			in += typesize
		}
	}
	if tail < blocksize {
		copy(dst[tail:blocksize], src[tail:blocksize])
	}
}

// Unshuffle inverts Shuffle.
func Unshuffle(typesize int, src, dst []byte) {
	blocksize := len(src)
	if typesize <= 1 || blocksize < typesize {
		copy(dst, src)
		return
	}

	nelems := blocksize / typesize
	tail := nelems * typesize

	for lane := 0; lane < typesize; lane++ {
		in := lane * nelems
		out := lane
		for e := 0; e < nelems; e++ {
			dst[out] = src[in+e]
			out += typesize
		}
	}
	if tail < blocksize {
		copy(dst[tail:blocksize], src[tail:blocksize])
	}
}
