package filter

import "github.com/pkg/errors"

// transpose8x8 transposes an 8x8 bit matrix packed into 8 bytes: bit i of
// out[j] is bit j of in[i]. It is its own inverse.
func transpose8x8(in [8]byte) [8]byte {
	var out [8]byte
	for bit := 0; bit < 8; bit++ {
		var b byte
		for i := 0; i < 8; i++ {
			b |= ((in[i] >> uint(bit)) & 1) << uint(i)
		}
		out[bit] = b
	}
	return out
}

// Bitshuffle rearranges src at bit granularity: bit j of every element is
// grouped together, the way Shuffle groups whole bytes. It does not require
// blocksize to be a multiple of typesize*8: after the byte shuffle, each
// lane's elements are bit-transposed in groups of 8; a lane's trailing
// run of fewer than 8 elements, and any trailing bytes that don't form a
// whole element, are left byte-shuffled rather than bit-transposed - the
// same unaligned-remainder fallback real bitshuffle kernels use, so every
// typesize/blocksize combination round-trips instead of failing. tmp is
// used as scratch (len(src) bytes). Returns ErrBitshuffleFailed only for a
// non-positive typesize.
func Bitshuffle(typesize, blocksize int, src, dst, tmp []byte) error {
	if blocksize == 0 {
		return nil
	}
	if typesize <= 0 {
		return errors.Wrapf(ErrBitshuffleFailed, "typesize must be positive (got %d)", typesize)
	}
	if typesize == 1 || blocksize < typesize {
		copy(dst, src)
		return nil
	}

	// Byte-shuffle first so that same-offset bytes of every element are
	// contiguous (Shuffle also passes any trailing partial-element bytes
	// through unshuffled); then bit-transpose each lane's aligned 8-element
	// runs in place.
	Shuffle(typesize, src, tmp)
	copy(dst, tmp)

	nelems := blocksize / typesize
	aligned := nelems - nelems%8
	for lane := 0; lane < typesize; lane++ {
		off := lane * nelems
		for g := 0; g < aligned; g += 8 {
			var in [8]byte
			copy(in[:], tmp[off+g:off+g+8])
			out := transpose8x8(in)
			copy(dst[off+g:off+g+8], out[:])
		}
	}
	return nil
}

// Unbitshuffle inverts Bitshuffle. tmp is used as scratch (len(src) bytes).
func Unbitshuffle(typesize, blocksize int, src, dst, tmp []byte) error {
	if blocksize == 0 {
		return nil
	}
	if typesize <= 0 {
		return errors.Wrapf(ErrBitshuffleFailed, "typesize must be positive (got %d)", typesize)
	}
	if typesize == 1 || blocksize < typesize {
		copy(dst, src)
		return nil
	}

	copy(tmp, src)
	nelems := blocksize / typesize
	aligned := nelems - nelems%8
	for lane := 0; lane < typesize; lane++ {
		off := lane * nelems
		for g := 0; g < aligned; g += 8 {
			var in [8]byte
			copy(in[:], src[off+g:off+g+8])
			out := transpose8x8(in)
			copy(tmp[off+g:off+g+8], out[:])
		}
	}
	Unshuffle(typesize, tmp, dst)
	return nil
}
