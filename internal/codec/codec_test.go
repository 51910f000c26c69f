package codec

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func allCodes() []Code {
	return []Code{InternalLZ, LZ4, LZ4HC, Snappy, Zlib, Zstd}
}

func TestAdaptersRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	src := make([]byte, 8192)
	// Compressible: repeating pattern with a little noise.
	for i := range src {
		src[i] = byte(i % 17)
	}
	for i := 0; i < 64; i++ {
		src[r.Intn(len(src))] = byte(r.Intn(256))
	}

	for _, code := range allCodes() {
		t.Run(code.String(), func(t *testing.T) {
			a, err := Lookup(code)
			require.NoError(t, err)

			state := &State{}
			dst := make([]byte, a.Bound(len(src)))
			n, err := a.Compress(state, src, dst, AccelerationOrLevel(code, 5, 1))
			require.NoError(t, err)

			if n == 0 {
				t.Skip("codec declined on this input; stored-block path would apply")
			}

			out := make([]byte, len(src))
			got, err := a.Decompress(state, dst[:n], out)
			require.NoError(t, err)
			require.Equal(t, len(src), got)
			require.Equal(t, src, out)
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	_, err := Lookup(Lizard)
	require.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestNamesAndByName(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	for _, n := range names {
		code, err := ByName(n)
		require.NoError(t, err)
		require.Equal(t, n, code.String())
	}
}
