package codec

import (
	"github.com/pierrec/lz4/v4"
)

// lz4HashTableSize matches the table pierrec/lz4's block-level API expects
// for CompressBlock's hashTable argument.
const lz4HashTableSize = 1 << 16

type lz4State struct {
	hashTable [lz4HashTableSize]int
}

type lz4Adapter struct{}

func init() { register(lz4Adapter{}) }

func (lz4Adapter) Code() Code { return LZ4 }

func (lz4Adapter) Bound(neblock int) int {
	return lz4.CompressBlockBound(neblock)
}

func (lz4Adapter) Compress(state *State, src, dst []byte, _ int) (int, error) {
	ht := ensureLZ4Table(state)
	n, err := lz4.CompressBlock(src, dst, ht[:])
	if err != nil {
		return 0, err
	}
	if n == 0 || n >= len(src) {
		return 0, nil
	}
	return n, nil
}

func (lz4Adapter) Decompress(_ *State, src, dst []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// lz4HCAdapter shares the plain LZ4 block format; only the encoder effort
// differs (CompressBlockHC), matching spec.md's "LZ4-HC" being the
// high-compression variant of the same bitstream.
type lz4HCAdapter struct{}

func init() { register(lz4HCAdapter{}) }

func (lz4HCAdapter) Code() Code { return LZ4HC }

func (lz4HCAdapter) Bound(neblock int) int {
	return lz4.CompressBlockBound(neblock)
}

func (lz4HCAdapter) Compress(state *State, src, dst []byte, levelOrAccel int) (int, error) {
	depth := lz4.CompressionLevel(levelOrAccel)
	if depth < lz4.Fast {
		depth = lz4.Level5
	}
	n, err := lz4.CompressBlockHC(src, dst, depth, nil, nil)
	if err != nil {
		return 0, err
	}
	if n == 0 || n >= len(src) {
		return 0, nil
	}
	return n, nil
}

func (lz4HCAdapter) Decompress(_ *State, src, dst []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func ensureLZ4Table(state *State) *[lz4HashTableSize]int {
	if state == nil {
		return new([lz4HashTableSize]int)
	}
	if state.lz4 == nil {
		state.lz4 = &lz4State{}
	}
	return &state.lz4.hashTable
}
