// Package blkz is the public entry point: the process-wide locked API, the
// context-per-call API, and thin re-exports of the super-chunk container,
// mirroring the external interface of spec.md §6.
package blkz

import (
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/falk/blkz/internal/block"
	"github.com/falk/blkz/internal/codec"
	"github.com/falk/blkz/internal/diag"
	"github.com/falk/blkz/pkg/frame"
	"github.com/falk/blkz/pkg/schunk"
)

// Numeric bounds (spec.md §6 "Numeric bounds").
const (
	MaxTypesize   = 255
	MaxOverhead   = frame.HeaderSize
	MaxBuffersize = math.MaxInt32 - MaxOverhead
	MaxSplits     = block.MaxSplits
	MinBufferSize = block.MinBufferSize
)

// VersionFormat is the wire format version this build produces and reads.
const VersionFormat = frame.VersionFormat

// VersionString is the library's own semantic version, independent of the
// wire format (spec.md get_version_string).
const VersionString = "1.0.0"

// Shuffle selects a pre-conditioning filter kernel; re-exported so callers
// never need to import internal/block.
type Shuffle = block.Shuffle

const (
	NoShuffle   = block.NoShuffle
	ByteShuffle = block.ByteShuffle
	BitShuffle  = block.BitShuffle
)

// Compressor identifies a backend codec; re-exported from internal/codec.
type Compressor = codec.Code

const (
	InternalLZ = codec.InternalLZ
	LZ4        = codec.LZ4
	LZ4HC      = codec.LZ4HC
	Snappy     = codec.Snappy
	Zlib       = codec.Zlib
	Zstd       = codec.Zstd
	Lizard     = codec.Lizard
)

// ErrUnsupportedCompressor is returned by SetCompressor/CompnameToCompcode
// for a name with no registered adapter.
var ErrUnsupportedCompressor = codec.ErrUnsupportedCodec

// CompcodeToCompname returns the canonical name for a codec id, or -1-style
// failure as an error (spec.md compcode_to_compname).
func CompcodeToCompname(code Compressor) (string, error) {
	if _, err := codec.Lookup(code); err != nil {
		return "", err
	}
	return code.String(), nil
}

// CompnameToCompcode resolves a codec name to its id (spec.md
// compname_to_compcode).
func CompnameToCompcode(name string) (Compressor, error) {
	return codec.ByName(name)
}

// ListCompressors returns every registered codec's name (spec.md
// list_compressors, "csv" relaxed to a slice - joining is the caller's
// choice).
func ListCompressors() []string {
	return codec.Names()
}

// GetComplibInfo reports the underlying library name/version backing a
// codec (spec.md get_complib_info). Both internal/codec wraps third-party
// libraries identified by their Go module paths here.
func GetComplibInfo(name string) (lib, version string, err error) {
	switch name {
	case codec.LZ4.String(), codec.LZ4HC.String():
		return "github.com/pierrec/lz4/v4", "4", nil
	case codec.Snappy.String():
		return "github.com/golang/snappy", "0", nil
	case codec.Zlib.String():
		return "github.com/klauspost/compress/zlib", "1", nil
	case codec.Zstd.String():
		return "github.com/klauspost/compress/zstd", "1", nil
	case codec.InternalLZ.String():
		return "blkz", VersionString, nil
	default:
		return "", "", errors.Wrapf(ErrUnsupportedCompressor, "name=%q", name)
	}
}

// CParams configures a compression context (spec.md §6 create_cctx).
type CParams struct {
	Typesize  int
	Clevel    int
	Codec     Compressor
	Shuffle   Shuffle
	Blocksize int // forced; 0 means "let the engine choose"
	NThreads  int
	DeltaRef  []byte
	TruncPrec *int
}

// DParams configures a decompression context (spec.md §6 create_dctx).
type DParams struct {
	NThreads  int
	DeltaRef  []byte
	TruncPrec *int
}

func (p CParams) frameParams() frame.Params {
	return frame.Params{
		Typesize:    p.Typesize,
		Level:       p.Clevel,
		Codec:       p.Codec,
		Shuffle:     p.Shuffle,
		ForcedBlock: p.Blocksize,
		NThreads:    p.NThreads,
		DeltaRef:    p.DeltaRef,
		TruncPrec:   p.TruncPrec,
	}
}

// Cctx is a compression context created with explicit parameters and no
// global lock (spec.md §4.4 "context-per-call").
type Cctx struct {
	params CParams
}

// CreateCctx builds a compression context from explicit parameters.
func CreateCctx(p CParams) *Cctx {
	if p.NThreads < 1 {
		p.NThreads = 1
	}
	return &Cctx{params: p}
}

// CompressCtx compresses the first nbytes of src into dst using ctx's
// parameters (spec.md compress_ctx).
func (c *Cctx) CompressCtx(nbytes int, src, dst []byte) (int, error) {
	return frame.Compress(c.params.frameParams(), src[:nbytes], dst)
}

// GetitemCtx reads a sub-range of a frame produced by this context's
// configuration (spec.md getitem_ctx). The frame's own header drives
// decoding; ctx only supplies the delta/truncate-prec resolution state.
func (c *Cctx) GetitemCtx(src []byte, start, nitems int, dst []byte) (int, error) {
	return frame.Getitem(src, start, nitems, dst, c.params.DeltaRef, c.params.TruncPrec)
}

// Dctx is a decompression context (spec.md §4.4 "context-per-call").
type Dctx struct {
	params DParams
}

// CreateDctx builds a decompression context.
func CreateDctx(p DParams) *Dctx {
	if p.NThreads < 1 {
		p.NThreads = 1
	}
	return &Dctx{params: p}
}

// DecompressCtx decompresses src into dst using ctx's parameters (spec.md
// decompress_ctx).
func (d *Dctx) DecompressCtx(src, dst []byte) (int, error) {
	return frame.Decompress(src, dst, d.params.DeltaRef, d.params.TruncPrec, d.params.NThreads)
}

// GetitemCtx reads a sub-range via a decompression context.
func (d *Dctx) GetitemCtx(src []byte, start, nitems int, dst []byte) (int, error) {
	return frame.Getitem(src, start, nitems, dst, d.params.DeltaRef, d.params.TruncPrec)
}

// FreeCtx releases any resources owned by a context. Contexts here hold no
// OS resources (no pinned C allocations, no pthreads to join) - this
// exists only so callers migrating from the C-style API have somewhere to
// put their cleanup call; the garbage collector reclaims everything else.
func FreeCtx(ctx interface{}) {
	_ = ctx
}

// globalMu is the Go analogue of blosc's global_comp_mutex: guards every
// setter and every call made through the locked API below (spec.md §5
// "Shared resources").
var globalMu sync.Mutex

var globalParams = CParams{
	Typesize: 4,
	Clevel:   5,
	Codec:    codec.InternalLZ,
	Shuffle:  ByteShuffle,
	NThreads: 1,
}

var globalSchunk *schunk.Schunk
var noLock bool

// Init seeds the global context from its compiled-in defaults and then
// applies environment variable overrides in the fixed evaluation order of
// spec.md §4.4, BLKZ_NOLOCK last. BLKZ_NOLOCK is recorded but does not
// change how Compress runs (see Compress).
func Init() {
	globalMu.Lock()
	defer globalMu.Unlock()
	applyEnvOverrides()
}

// Destroy tears down the global context. There is no persistent thread
// pool to join in this implementation (workers are spawned per call, per
// DESIGN.md); Destroy resets the locked-API state to its defaults.
func Destroy() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalParams = CParams{Typesize: 4, Clevel: 5, Codec: codec.InternalLZ, Shuffle: ByteShuffle, NThreads: 1}
	globalSchunk = nil
	noLock = false
}

func envInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func applyEnvOverrides() {
	if v, ok := envInt("BLKZ_CLEVEL"); ok && v >= 0 {
		globalParams.Clevel = v
	}
	if v, ok := os.LookupEnv("BLKZ_SHUFFLE"); ok {
		switch v {
		case "NOSHUFFLE":
			globalParams.Shuffle = NoShuffle
		case "SHUFFLE":
			globalParams.Shuffle = ByteShuffle
		case "BITSHUFFLE":
			globalParams.Shuffle = BitShuffle
		}
	}
	if v, ok := envInt("BLKZ_TYPESIZE"); ok && v > 0 {
		globalParams.Typesize = v
	}
	if v, ok := os.LookupEnv("BLKZ_COMPRESSOR"); ok {
		if code, err := codec.ByName(v); err == nil {
			globalParams.Codec = code
		} else {
			diag.Warnf("unsupported BLKZ_COMPRESSOR %q", v)
		}
	}
	if v, ok := envInt("BLKZ_BLOCKSIZE"); ok && v > 0 {
		globalParams.Blocksize = v
	}
	if v, ok := envInt("BLKZ_NTHREADS"); ok && v > 0 {
		globalParams.NThreads = v
	}
	if _, ok := os.LookupEnv("BLKZ_NOLOCK"); ok {
		noLock = true
	}
}

// SetNThreads sets the global worker count and returns the previous value
// (spec.md set_nthreads).
func SetNThreads(n int) int {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := globalParams.NThreads
	if n >= 1 {
		globalParams.NThreads = n
	}
	return prev
}

// GetNThreads returns the global worker count.
func GetNThreads() int {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalParams.NThreads
}

// SetCompressor sets the global default codec by name, returning its code,
// or an error if unknown (spec.md set_compressor).
func SetCompressor(name string) (Compressor, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	code, err := codec.ByName(name)
	if err != nil {
		diag.Warnf("set_compressor: %v", err)
		return 0, err
	}
	globalParams.Codec = code
	return code, nil
}

// GetCompressor returns the global default codec's name.
func GetCompressor() string {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalParams.Codec.String()
}

// SetBlocksize forces the global blocksize (0 reverts to automatic
// selection).
func SetBlocksize(sz int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalParams.Blocksize = sz
}

// GetBlocksize returns the global forced blocksize (0 if automatic).
func GetBlocksize() int {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalParams.Blocksize
}

// SetSchunk attaches a super-chunk to the global context so its filter
// pipeline governs subsequent locked-API compress/decompress calls.
func SetSchunk(sh *schunk.Schunk) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSchunk = sh
}

// Compress runs the locked, process-wide API: compress via a throwaway
// context built from the current global parameters (spec.md §6 compress).
// Environment overrides reach it only through Init; Compress itself reads
// no environment variables. globalMu is held only while the global
// parameters are copied, whether or not BLKZ_NOLOCK is set.
func Compress(clevel int, doshuffle Shuffle, typesize, nbytes int, src, dst []byte) (int, error) {
	globalMu.Lock()
	p := globalParams
	p.Clevel = clevel
	p.Shuffle = doshuffle
	p.Typesize = typesize
	globalMu.Unlock()

	ctx := CreateCctx(p)
	return ctx.CompressCtx(nbytes, src, dst)
}

// Decompress runs the locked API's decompression path.
func Decompress(src, dst []byte) (int, error) {
	globalMu.Lock()
	nthreads := globalParams.NThreads
	globalMu.Unlock()

	return frame.Decompress(src, dst, nil, nil, nthreads)
}

// Getitem reads a sub-range through the locked API.
func Getitem(src []byte, start, nitems int, dst []byte) (int, error) {
	return frame.Getitem(src, start, nitems, dst, nil, nil)
}

// CbufferSizes reports (nbytes, cbytes, blocksize) from a frame header
// (spec.md cbuffer_sizes).
func CbufferSizes(cbuf []byte) (nbytes, cbytes, blocksize int, err error) {
	return frame.Sizes(cbuf)
}

// CbufferMetainfo reports (typesize, flags) from a frame header (spec.md
// cbuffer_metainfo).
func CbufferMetainfo(cbuf []byte) (typesize int, flags uint8, err error) {
	return frame.Metainfo(cbuf)
}

// CbufferVersions reports (version, codec version) from a frame header
// (spec.md cbuffer_versions).
func CbufferVersions(cbuf []byte) (version, codecVersion int, err error) {
	return frame.Versions(cbuf)
}

// CbufferComplib reports the codec name used to compress a frame (spec.md
// cbuffer_complib).
func CbufferComplib(cbuf []byte) (string, error) {
	h, err := frame.DecodeHeader(cbuf)
	if err != nil {
		return "", err
	}
	flags := h.Flags
	code := Compressor((flags >> 5) & 0x7)
	return code.String(), nil
}

// GetVersionString returns "major.minor.patch" for this build (spec.md
// get_version_string).
func GetVersionString() string {
	return VersionString
}

// FreeResources releases the global super-chunk reference. There is no
// persistent thread pool or pinned allocation to tear down in this
// implementation (spec.md free_resources).
func FreeResources() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSchunk = nil
	return nil
}

// NewSchunk creates a super-chunk with the given defaults (spec.md
// new_schunk), re-exported so callers need only import this package.
func NewSchunk(p schunk.Params) (*schunk.Schunk, error) {
	return schunk.New(p)
}

// DestroySchunk is a no-op for API parity; the super-chunk and its frames
// are ordinary Go values reclaimed by the garbage collector once
// unreferenced (spec.md destroy_schunk).
func DestroySchunk(sh *schunk.Schunk) {
	_ = sh
}
