package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdMaxLevel mirrors ZSTD_maxCLevel(): spec.md §4.2 maps clevel 9 to it.
const zstdMaxLevel = 22

// zstdState is the per-thread reusable zstd context (spec.md §4.2 "Zstd
// holds a reusable context per direction"), generalized from the teacher's
// pkg/zstd encoder pool (keyed by level, one shared decoder).
type zstdState struct {
	decoder *zstd.Decoder
	encoders map[int]*zstd.Encoder
}

func newZstdState() *zstdState {
	dec, _ := zstd.NewReader(nil)
	return &zstdState{
		decoder:  dec,
		encoders: make(map[int]*zstd.Encoder),
	}
}

func (s *zstdState) encoderFor(level int) *zstd.Encoder {
	if enc, ok := s.encoders[level]; ok {
		return enc
	}
	enc, _ := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	s.encoders[level] = enc
	return enc
}

type zstdAdapter struct{}

func init() { register(zstdAdapter{}) }

func (zstdAdapter) Code() Code { return Zstd }

func (zstdAdapter) Bound(neblock int) int {
	// zstd's own compress bound (ZSTD_COMPRESSBOUND), plus slack for the
	// frame header and checksum.
	bound := neblock + neblock>>8
	if neblock < 128<<10 {
		bound += (128<<10 - neblock) >> 11
	}
	return bound + 64
}

func (zstdAdapter) Compress(state *State, src, dst []byte, level int) (int, error) {
	st := ensureZstd(state)
	enc := st.encoderFor(level)
	out := enc.EncodeAll(src, dst[:0])
	if len(out) > len(dst) || len(out) >= len(src) {
		return 0, nil // codec declined: triggers the stored-block path
	}
	return len(out), nil
}

func (zstdAdapter) Decompress(state *State, src, dst []byte) (int, error) {
	st := ensureZstd(state)
	out, err := st.decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

var (
	sharedZstdOnce  sync.Once
	sharedZstdState *zstdState
)

// ensureZstd lazily creates the state struct's zstd field, or falls back to
// a process-wide shared instance for callers that pass a nil State (e.g.
// single-shot Bound queries from the serial/no-thread-pool path).
func ensureZstd(state *State) *zstdState {
	if state == nil {
		sharedZstdOnce.Do(func() { sharedZstdState = newZstdState() })
		return sharedZstdState
	}
	if state.zstd == nil {
		state.zstd = newZstdState()
	}
	return state.zstd
}
