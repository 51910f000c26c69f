package schunk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/falk/blkz/internal/codec"
)

func makeInts(n int) []byte {
	buf := make([]byte, n*4)
	for i := 0; i < n; i++ {
		v := uint32(i)
		buf[4*i] = byte(v)
		buf[4*i+1] = byte(v >> 8)
		buf[4*i+2] = byte(v >> 16)
		buf[4*i+3] = byte(v >> 24)
	}
	return buf
}

func TestAppendAndDecompressRoundTrip(t *testing.T) {
	sh, err := New(Params{
		Typesize: 4,
		Filters:  []FilterStep{{Code: FilterDelta}, {Code: FilterByteShuffle}},
		Codec:    codec.InternalLZ,
		Level:    5,
	})
	require.NoError(t, err)

	src0 := makeInts(1024 * 1024 / 4)
	n, err := sh.AppendBuffer(4, src0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = sh.AppendBuffer(4, src0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	out0 := make([]byte, len(src0))
	dn, err := sh.DecompressChunk(0, out0)
	require.NoError(t, err)
	require.Equal(t, len(src0), dn)
	require.Equal(t, src0, out0)

	out1 := make([]byte, len(src0))
	dn, err = sh.DecompressChunk(1, out1)
	require.NoError(t, err)
	require.Equal(t, len(src0), dn)
	require.Equal(t, src0, out1)
}

func TestDeltaReferenceShrinksSecondChunk(t *testing.T) {
	sh, err := New(Params{
		Typesize: 4,
		Filters:  []FilterStep{{Code: FilterDelta}, {Code: FilterByteShuffle}},
		Codec:    codec.InternalLZ,
		Level:    5,
	})
	require.NoError(t, err)

	src := makeInts(1024 * 1024 / 4)
	_, err = sh.AppendBuffer(4, src)
	require.NoError(t, err)
	cbytes0 := sh.Cbytes()

	_, err = sh.AppendBuffer(4, src)
	require.NoError(t, err)
	cbytes1 := sh.Cbytes() - cbytes0

	require.Less(t, cbytes1, cbytes0/10, "identical second chunk should compress to near nothing under delta")
}

func TestDeltaReferenceChunkSurvivesNonIdenticalData(t *testing.T) {
	sh, err := New(Params{
		Typesize: 4,
		Filters:  []FilterStep{{Code: FilterDelta}, {Code: FilterByteShuffle}},
		Codec:    codec.InternalLZ,
		Level:    5,
	})
	require.NoError(t, err)

	src0 := makeInts(10000)
	src1 := makeInts(10000)
	for i := range src1 {
		src1[i] ^= byte(i % 7)
	}

	_, err = sh.AppendBuffer(4, src0)
	require.NoError(t, err)
	_, err = sh.AppendBuffer(4, src1)
	require.NoError(t, err)

	out0 := make([]byte, len(src0))
	_, err = sh.DecompressChunk(0, out0)
	require.NoError(t, err)
	require.Equal(t, src0, out0, "reference chunk must decode to itself, not be delta-decoded against itself")

	out1 := make([]byte, len(src1))
	_, err = sh.DecompressChunk(1, out1)
	require.NoError(t, err)
	require.Equal(t, src1, out1)
}

func TestPackUnpackPreservesDeltaAppliedFlags(t *testing.T) {
	sh, err := New(Params{
		Typesize: 4,
		Filters:  []FilterStep{{Code: FilterDelta}, {Code: FilterByteShuffle}},
		Codec:    codec.InternalLZ,
		Level:    5,
	})
	require.NoError(t, err)

	src := makeInts(4096)
	_, err = sh.AppendBuffer(4, src)
	require.NoError(t, err)
	_, err = sh.AppendBuffer(4, src)
	require.NoError(t, err)

	restored, err := Unpack(sh.Pack())
	require.NoError(t, err)

	out0 := make([]byte, len(src))
	_, err = restored.DecompressChunk(0, out0)
	require.NoError(t, err)
	require.Equal(t, src, out0, "reference chunk must still round-trip after Pack/Unpack")

	out1 := make([]byte, len(src))
	_, err = restored.DecompressChunk(1, out1)
	require.NoError(t, err)
	require.Equal(t, src, out1)
}

func TestAppendRejectsTypesizeChange(t *testing.T) {
	sh, err := New(Params{Typesize: 4, Codec: codec.LZ4, Level: 5})
	require.NoError(t, err)

	_, err = sh.AppendBuffer(4, makeInts(100))
	require.NoError(t, err)

	_, err = sh.AppendBuffer(8, make([]byte, 800))
	require.Error(t, err)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	sh, err := New(Params{Typesize: 4, Codec: codec.Zstd, Level: 5, Filters: []FilterStep{{Code: FilterByteShuffle}}})
	require.NoError(t, err)

	src := makeInts(4096)
	_, err = sh.AppendBuffer(4, src)
	require.NoError(t, err)

	packed := sh.Pack()
	restored, err := Unpack(packed)
	require.NoError(t, err)
	require.Equal(t, sh.NumChunks(), restored.NumChunks())

	out := make([]byte, len(src))
	_, err = restored.DecompressChunk(0, out)
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestPackedAppendBuffer(t *testing.T) {
	sh, err := New(Params{Typesize: 4, Codec: codec.LZ4, Level: 5})
	require.NoError(t, err)
	src := makeInts(2048)
	_, err = sh.AppendBuffer(4, src)
	require.NoError(t, err)

	packed := sh.Pack()
	packed2, err := PackedAppendBuffer(packed, 4, src)
	require.NoError(t, err)

	out := make([]byte, len(src))
	dn, err := PackedDecompressChunk(packed2, 1, out)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}
