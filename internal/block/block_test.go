package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/falk/blkz/internal/codec"
)

func makeSrc(n int) []byte {
	src := make([]byte, n)
	for i := range src {
		src[i] = byte(i*7 + i/251)
	}
	return src
}

func roundTrip(t *testing.T, p Params, src []byte) {
	t.Helper()
	bound, err := Bound(p, len(src))
	require.NoError(t, err)

	dst := make([]byte, bound)
	scratch := NewScratch(p.Blocksize, p.Typesize, bound)
	state := &codec.State{}

	n, err := Compress(p, 0, src, dst, scratch, state)
	require.NoError(t, err)

	out := make([]byte, len(src))
	dn, err := Decompress(p, 0, dst[:n], out, scratch, state)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestCompressDecompressNoFilter(t *testing.T) {
	src := makeSrc(4096)
	p := Params{Typesize: 4, Blocksize: 4096, Codec: codec.LZ4, Level: 5}
	roundTrip(t, p, src)
}

func TestCompressDecompressByteShuffle(t *testing.T) {
	src := makeSrc(4096)
	p := Params{Typesize: 4, Blocksize: 4096, Codec: codec.InternalLZ, Level: 5, Shuffle: ByteShuffle}
	roundTrip(t, p, src)
}

func TestCompressDecompressBitShuffle(t *testing.T) {
	src := makeSrc(4096)
	p := Params{Typesize: 4, Blocksize: 4096, Codec: codec.Zstd, Level: 5, Shuffle: BitShuffle}
	roundTrip(t, p, src)
}

func TestCompressDecompressWithDelta(t *testing.T) {
	ref := makeSrc(4096)
	src := make([]byte, len(ref))
	copy(src, ref)
	for i := range src {
		src[i] ^= byte(i % 5)
	}

	p := Params{Typesize: 4, Blocksize: 4096, Codec: codec.InternalLZ, Level: 5, Shuffle: ByteShuffle, DeltaRef: ref}
	roundTrip(t, p, src)
}

func TestNSplitsPolicy(t *testing.T) {
	require.Equal(t, 4, NSplits(codec.InternalLZ, 4, 4096, false))
	require.Equal(t, 1, NSplits(codec.Zstd, 4, 4096, false))
	require.Equal(t, 1, NSplits(codec.InternalLZ, 4, 4096, true))
	require.Equal(t, 1, NSplits(codec.InternalLZ, 4, 256, false)) // neblock=64 < MinBufferSize
	require.Equal(t, 1, NSplits(codec.InternalLZ, 32, 4096, false)) // typesize > MaxSplits
}
