package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibWriterState caches the last-used compression level's *zlib.Writer so
// repeated compress calls at the same level on one worker goroutine don't
// reallocate the deflate tables every block.
type zlibWriterState struct {
	level int
	w     *zlib.Writer
	buf   bytes.Buffer
}

type zlibAdapter struct{}

func init() { register(zlibAdapter{}) }

func (zlibAdapter) Code() Code { return Zlib }

func (zlibAdapter) Bound(neblock int) int {
	return neblock + neblock/1000 + 64
}

func (zlibAdapter) Compress(state *State, src, dst []byte, level int) (int, error) {
	st := ensureZlibWriter(state, level)
	st.buf.Reset()
	w := st.w
	w.Reset(&st.buf)
	if _, err := w.Write(src); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	out := st.buf.Bytes()
	if len(out) > len(dst) || len(out) >= len(src) {
		return 0, nil
	}
	copy(dst, out)
	return len(out), nil
}

func (zlibAdapter) Decompress(_ *State, src, dst []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n := 0
	for {
		m, err := r.Read(dst[n:])
		n += m
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}

func ensureZlibWriter(state *State, level int) *zlibWriterState {
	if state == nil || state.zlibW == nil || state.zlibW.level != level {
		w, _ := zlib.NewWriterLevel(io.Discard, level)
		st := &zlibWriterState{level: level, w: w}
		if state != nil {
			state.zlibW = st
		}
		return st
	}
	return state.zlibW
}
