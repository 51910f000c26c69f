package blkz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeSrc(n int) []byte {
	src := make([]byte, n)
	for i := range src {
		src[i] = byte(i*31 + i/61)
	}
	return src
}

func TestCctxRoundTrip(t *testing.T) {
	src := makeSrc(64 * 1024)
	cctx := CreateCctx(CParams{Typesize: 4, Clevel: 5, Codec: LZ4, Shuffle: ByteShuffle, NThreads: 2})
	defer FreeCtx(cctx)

	dst := make([]byte, len(src)+4096)
	n, err := cctx.CompressCtx(len(src), src, dst)
	require.NoError(t, err)

	dctx := CreateDctx(DParams{NThreads: 2})
	defer FreeCtx(dctx)

	out := make([]byte, len(src))
	dn, err := dctx.DecompressCtx(dst[:n], out)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestLockedAPIRoundTrip(t *testing.T) {
	Init()
	defer Destroy()

	src := makeSrc(32 * 1024)
	dst := make([]byte, len(src)+4096)
	n, err := Compress(5, ByteShuffle, 4, len(src), src, dst)
	require.NoError(t, err)

	out := make([]byte, len(src))
	dn, err := Decompress(dst[:n], out)
	require.NoError(t, err)
	require.Equal(t, len(src), dn)
	require.Equal(t, src, out)
}

func TestSetGetCompressorAndNThreads(t *testing.T) {
	defer Destroy()

	prev := SetNThreads(3)
	require.Equal(t, 1, prev)
	require.Equal(t, 3, GetNThreads())

	code, err := SetCompressor("zstd")
	require.NoError(t, err)
	require.Equal(t, Zstd, code)
	require.Equal(t, "zstd", GetCompressor())

	_, err = SetCompressor("not-a-codec")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	defer Destroy()
	t.Setenv("BLKZ_CLEVEL", "7")
	t.Setenv("BLKZ_SHUFFLE", "BITSHUFFLE")
	t.Setenv("BLKZ_TYPESIZE", "8")
	t.Setenv("BLKZ_COMPRESSOR", "lz4")
	t.Setenv("BLKZ_NTHREADS", "2")

	Init()

	globalMu.Lock()
	p := globalParams
	globalMu.Unlock()

	require.Equal(t, 7, p.Clevel)
	require.Equal(t, BitShuffle, p.Shuffle)
	require.Equal(t, 8, p.Typesize)
	require.Equal(t, LZ4, p.Codec)
	require.Equal(t, 2, p.NThreads)
}

func TestEnvOverrideInvalidValuesIgnored(t *testing.T) {
	defer Destroy()
	t.Setenv("BLKZ_CLEVEL", "not-a-number")
	t.Setenv("BLKZ_COMPRESSOR", "bogus")

	Init()

	globalMu.Lock()
	p := globalParams
	globalMu.Unlock()

	require.Equal(t, 5, p.Clevel, "invalid CLEVEL should be ignored, leaving the default")
	require.Equal(t, InternalLZ, p.Codec, "invalid COMPRESSOR should be ignored, leaving the default")
}

func TestMemcpyPathProperty(t *testing.T) {
	src := makeSrc(8192)
	dst := make([]byte, len(src)+MaxOverhead)
	n, err := Compress(0, NoShuffle, 1, len(src), src, dst)
	require.NoError(t, err)
	require.Equal(t, len(src)+MaxOverhead, n)

	flags, err := func() (uint8, error) {
		_, f, err := CbufferMetainfo(dst[:n])
		return f, err
	}()
	require.NoError(t, err)
	require.NotZero(t, flags&0x2, "memcpy flag bit must be set")
}

func TestCbufferIntrospection(t *testing.T) {
	src := makeSrc(16384)
	dst := make([]byte, len(src)+4096)
	n, err := Compress(5, ByteShuffle, 4, len(src), src, dst)
	require.NoError(t, err)

	nbytes, cbytes, _, err := CbufferSizes(dst[:n])
	require.NoError(t, err)
	require.Equal(t, len(src), nbytes)
	require.Equal(t, n, cbytes)

	complib, err := CbufferComplib(dst[:n])
	require.NoError(t, err)
	require.Equal(t, "blosclz", complib)
}

func TestListCompressorsAndRoundNames(t *testing.T) {
	names := ListCompressors()
	require.Contains(t, names, "zstd")
	require.Contains(t, names, "lz4")

	code, err := CompnameToCompcode("zstd")
	require.NoError(t, err)
	name, err := CompcodeToCompname(code)
	require.NoError(t, err)
	require.Equal(t, "zstd", name)
}
