// Package codec wraps each backend entropy codec behind a uniform adapter:
// bound/compress/decompress plus optional per-thread reusable state, so the
// block engine can dispatch to any of them without knowing their particulars
// (spec.md §4.2).
package codec

import "github.com/pkg/errors"

// Code identifies a compression backend. The numeric values match the
// "codec id" bits of the frame header flags byte (spec.md §3, bits 5-7).
type Code uint8

const (
	InternalLZ Code = iota
	LZ4
	LZ4HC
	Snappy
	Zlib
	Zstd
	Lizard // reserved: no adapter registered, spec.md §9 "Lizard occupies a further slot when compiled in"
)

func (c Code) String() string {
	switch c {
	case InternalLZ:
		return "blosclz"
	case LZ4:
		return "lz4"
	case LZ4HC:
		return "lz4hc"
	case Snappy:
		return "snappy"
	case Zlib:
		return "zlib"
	case Zstd:
		return "zstd"
	case Lizard:
		return "lizard"
	default:
		return "unknown"
	}
}

// ErrUnsupportedCodec is returned when a codec id doesn't map to a
// registered adapter (spec.md §7 taxonomy: "Unsupported... codec not
// compiled in (-5)").
var ErrUnsupportedCodec = errors.New("codec: unsupported in this build")

// State holds per-thread reusable codec resources (spec.md §4.2 "optional
// per-thread state (Zstd holds a reusable context per direction)"). Each
// worker goroutine owns exactly one State per codec it touches; adapters
// that need no persistent state leave their field nil.
type State struct {
	zstd  *zstdState
	zlibW *zlibWriterState
	lz4   *lz4State
}

// Adapter is the uniform interface every backend codec implements.
type Adapter interface {
	// Code returns this adapter's codec id.
	Code() Code

	// Bound returns an upper bound on the compressed size of a source
	// region of neblock bytes (spec.md "max_compressed").
	Bound(neblock int) int

	// Compress writes a compressed representation of src into dst and
	// returns the number of bytes written. levelOrAccel is the already
	// codec-specific mapped level (spec.md §4.2). Returning (0, nil) means
	// "codec declined" and triggers the stored-block path; it is not an
	// error.
	Compress(state *State, src, dst []byte, levelOrAccel int) (int, error)

	// Decompress writes the decompressed representation of src into dst
	// and returns the number of bytes written.
	Decompress(state *State, src, dst []byte) (int, error)
}

var registry = map[Code]Adapter{}

func register(a Adapter) {
	registry[a.Code()] = a
}

// Lookup returns the adapter for code, or ErrUnsupportedCodec if none is
// registered (e.g. Lizard, reserved but not wired - see DESIGN.md).
func Lookup(code Code) (Adapter, error) {
	a, ok := registry[code]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedCodec, "code=%s", code)
	}
	return a, nil
}

// ByName resolves a codec by its on-disk/CLI name (spec.md §6
// compname_to_compcode).
func ByName(name string) (Code, error) {
	for code, a := range registry {
		if a.Code().String() == name {
			return code, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedCodec, "name=%q", name)
}

// Names lists every registered codec's name (spec.md §6 list_compressors),
// in a stable order.
func Names() []string {
	order := []Code{InternalLZ, LZ4, LZ4HC, Snappy, Zlib, Zstd}
	names := make([]string, 0, len(order))
	for _, c := range order {
		if _, ok := registry[c]; ok {
			names = append(names, c.String())
		}
	}
	return names
}

// AccelerationOrLevel maps a 0..9 compression level to the codec-specific
// parameter the adapter's Compress expects, per spec.md §4.2's level
// mapping table.
func AccelerationOrLevel(code Code, clevel int, typesize int) int {
	switch code {
	case LZ4, LZ4HC:
		accel := 10 - clevel
		if accel < 1 {
			accel = 1
		}
		return accel
	case Zstd:
		if clevel >= 9 {
			return zstdMaxLevel
		}
		if clevel < 1 {
			clevel = 1
		}
		return 2*clevel - 1
	case Snappy:
		return 0 // unlevelled
	case InternalLZ:
		if isPowerOfTwo(typesize) && typesize < 32 {
			return 32
		}
		return 1
	default:
		return clevel
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
