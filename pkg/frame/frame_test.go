package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/falk/blkz/internal/block"
	"github.com/falk/blkz/internal/codec"
)

func makeSrc(n int) []byte {
	src := make([]byte, n)
	for i := range src {
		src[i] = byte(i*13 + i/97)
	}
	return src
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	src := makeSrc(200 * 1024)
	p := Params{Typesize: 4, Level: 5, Codec: codec.LZ4, Shuffle: block.ByteShuffle, NThreads: 4}

	dst := make([]byte, len(src)+4096)
	n, err := Compress(p, src, dst)
	require.NoError(t, err)

	out := make([]byte, len(src))
	dn, err := Decompress(dst[:n], out, nil, nil, 4)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestThreadCountIndependence(t *testing.T) {
	src := makeSrc(300 * 1024)
	p := Params{Typesize: 8, Level: 6, Codec: codec.Zstd, Shuffle: block.BitShuffle}

	var outputs [][]byte
	for _, nt := range []int{1, 2, 4, 8} {
		p.NThreads = nt
		dst := make([]byte, len(src)+4096)
		n, err := Compress(p, src, dst)
		require.NoError(t, err)
		outputs = append(outputs, append([]byte(nil), dst[:n]...))
	}
	for i := 1; i < len(outputs); i++ {
		require.Equal(t, outputs[0], outputs[i], "nthreads should not affect the compressed layout")
	}
}

func TestMemcpyPathAtLevelZero(t *testing.T) {
	src := makeSrc(4096)
	p := Params{Typesize: 4, Level: 0, Codec: codec.LZ4}

	dst := make([]byte, len(src)+HeaderSize)
	n, err := Compress(p, src, dst)
	require.NoError(t, err)
	require.Equal(t, len(src)+HeaderSize, n)

	h, err := DecodeHeader(dst[:n])
	require.NoError(t, err)
	require.NotZero(t, h.Flags&FlagMemcpy)

	out := make([]byte, len(src))
	dn, err := Decompress(dst[:n], out, nil, nil, 1)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestGetitem(t *testing.T) {
	n := 100 * 100 * 100
	src := make([]byte, n*4)
	for i := 0; i < n; i++ {
		v := uint32(i)
		src[4*i] = byte(v)
		src[4*i+1] = byte(v >> 8)
		src[4*i+2] = byte(v >> 16)
		src[4*i+3] = byte(v >> 24)
	}

	p := Params{Typesize: 4, Level: 5, Codec: codec.InternalLZ, Shuffle: block.ByteShuffle}
	dst := make([]byte, len(src)+4096)
	cn, err := Compress(p, src, dst)
	require.NoError(t, err)

	start, nitems := 12345, 17
	out := make([]byte, nitems*4)
	on, err := Getitem(dst[:cn], start, nitems, out, nil, nil)
	require.NoError(t, err)
	require.Equal(t, nitems*4, on)
	require.Equal(t, src[start*4:(start+nitems)*4], out)
}

func TestSmallBufferFallsBackToTypesizeOne(t *testing.T) {
	src := makeSrc(7)
	p := Params{Typesize: 8, Level: 5, Codec: codec.LZ4}

	dst := make([]byte, len(src)+HeaderSize)
	n, err := Compress(p, src, dst)
	require.NoError(t, err)

	h, err := DecodeHeader(dst[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(1), h.Typesize)

	out := make([]byte, len(src))
	dn, err := Decompress(dst[:n], out, nil, nil, 1)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestBitShuffleUnalignedBlockRoundTrip(t *testing.T) {
	// 16388 bytes at typesize 4 is a single block (below L1) of 4097
	// elements: 16388 % 32 != 0, so BitShuffle sees an unaligned remainder.
	src := makeSrc(16388)
	p := Params{Typesize: 4, Level: 5, Codec: codec.LZ4, Shuffle: block.BitShuffle}

	dst := make([]byte, len(src)+4096)
	n, err := Compress(p, src, dst)
	require.NoError(t, err)

	out := make([]byte, len(src))
	dn, err := Decompress(dst[:n], out, nil, nil, 1)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestCorruptCbytesRejected(t *testing.T) {
	src := makeSrc(4096)
	p := Params{Typesize: 4, Level: 5, Codec: codec.LZ4}

	dst := make([]byte, len(src)+4096)
	n, err := Compress(p, src, dst)
	require.NoError(t, err)

	corrupt := append([]byte(nil), dst[:n]...)
	corrupt[12], corrupt[13], corrupt[14], corrupt[15] = 1, 0, 0, 0

	out := make([]byte, len(src))
	_, err = Decompress(corrupt, out, nil, nil, 1)
	require.Error(t, err)
}
