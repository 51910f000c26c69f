package pool

import "github.com/falk/blkz/internal/codec"

// L1 is the assumed L1 cache size used as the blocksize starting point
// (spec.md §4.4 "Blocksize selection").
const L1 = 32 * 1024

// MinBufferSize is the floor for any computed or forced blocksize.
const MinBufferSize = 128

// highRatio reports whether a codec is one of the "high-ratio" backends
// that benefit from doubled block sizes (spec.md §4.4: "LZ4-HC, Zstd, Zlib,
// Lizard, and LZ4+bitshuffle").
func highRatio(code codec.Code, bitshuffle bool) bool {
	switch code {
	case codec.LZ4HC, codec.Zstd, codec.Zlib, codec.Lizard:
		return true
	case codec.LZ4:
		return bitshuffle
	default:
		return false
	}
}

// ComputeBlocksize implements the blocksize selection policy of spec.md
// §4.4: start at L1 for large buffers, scale by level, double for
// high-ratio codecs, clamp to nbytes, and round down to a typesize
// multiple.
func ComputeBlocksize(clevel, typesize, nbytes, forced int, code codec.Code, bitshuffle bool) int {
	if nbytes < typesize {
		return 1
	}

	blocksize := nbytes
	switch {
	case forced > 0:
		blocksize = forced
		if blocksize < MinBufferSize {
			blocksize = MinBufferSize
		}
	case nbytes < L1:
		blocksize = nbytes
	default:
		blocksize = L1
		if highRatio(code, bitshuffle) {
			blocksize *= 2
		}
		switch clevel {
		case 0:
			blocksize /= 4
		case 1, 2, 3, 4:
			// x1
		case 5:
			blocksize *= 2
		case 6:
			blocksize *= 4
		case 7, 8, 9:
			blocksize *= 8
		}
	}

	if blocksize > nbytes {
		blocksize = nbytes
	}
	if blocksize > typesize {
		blocksize = blocksize / typesize * typesize
	}
	return blocksize
}

// NBlocks returns the block count and leftover (last, possibly short,
// block size) for a buffer of nbytes split into blocksize-sized blocks
// (spec.md invariant I2).
func NBlocks(nbytes, blocksize int) (nblocks, leftover int) {
	if blocksize <= 0 {
		return 0, 0
	}
	nblocks = nbytes / blocksize
	leftover = nbytes % blocksize
	if leftover > 0 {
		nblocks++
	}
	return nblocks, leftover
}

// BlockSize returns the size of block i given nblocks/blocksize/leftover,
// accounting for the last block possibly being shorter.
func BlockSize(i, nblocks, blocksize, leftover int) int {
	if i == nblocks-1 && leftover > 0 {
		return leftover
	}
	return blocksize
}
