// Package frame implements the fixed 16-byte frame header, block-starts
// table, and whole-buffer compress/decompress/getitem operations (spec.md
// §4.5). It is the thin serialisation layer above internal/block and
// internal/pool: it decides blocksize, flags, and the MEMCPY fallback, and
// owns the worker dispatch for one logical buffer.
package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/falk/blkz/internal/block"
	"github.com/falk/blkz/internal/bufpool"
	"github.com/falk/blkz/internal/codec"
	"github.com/falk/blkz/internal/pool"
)

// HeaderSize is the fixed frame header width (spec.md §3).
const HeaderSize = 16

// acquireScratch builds a Scratch backed by pooled buffers rather than
// fresh allocations (spec.md §3 "lazily allocated", §9 scratch sizing).
func acquireScratch(blocksize, typesize, bound int) *block.Scratch {
	ebsize := blocksize + typesize*4
	return &block.Scratch{
		Blocksize: blocksize,
		Typesize:  typesize,
		Tmp:       bufpool.Get(blocksize)[:blocksize],
		Tmp2:      bufpool.Get(ebsize)[:ebsize],
		Tmp3:      bufpool.Get(bound)[:bound],
	}
}

func releaseScratch(s *block.Scratch) {
	bufpool.Put(s.Tmp)
	bufpool.Put(s.Tmp2)
	bufpool.Put(s.Tmp3)
}

func releaseScratches(scratches []*block.Scratch) {
	for _, s := range scratches {
		releaseScratch(s)
	}
}

// VersionFormat is the current wire format version (spec.md §6).
const VersionFormat = 3

// Flags bit positions (spec.md §6 "Flags byte").
const (
	FlagByteShuffle = 1 << 0
	FlagMemcpy      = 1 << 1
	FlagBitShuffle  = 1 << 2
	FlagFilter      = 1 << 3
	FlagDontSplit   = 1 << 4
	codecShift      = 5
	codecMask       = 0x7
)

var (
	// ErrUnsupportedCodec surfaces when a header's codec-id bits don't map
	// to a compiled-in adapter (spec.md error code -5).
	ErrUnsupportedCodec = errors.New("frame: unsupported codec in header")
	// ErrTruncatedHeader signals src is too short to hold even the header.
	ErrTruncatedHeader = errors.New("frame: buffer shorter than header")
	// ErrCorrupt signals a cbytes/bstarts field inconsistent with src's length.
	ErrCorrupt = errors.New("frame: corrupt or truncated frame")
	// ErrWouldOverflow is the "would-overflow" return of spec.md §4.5 Write.
	ErrWouldOverflow = errors.New("frame: destination capacity too small")
	// ErrRangeEmpty is the benign "getitem range empty" case (spec.md §7).
	ErrRangeEmpty = errors.New("frame: getitem range is empty")
)

// Header is the decoded form of the 16-byte frame header.
type Header struct {
	Version       uint8
	CodecVersion  uint8
	Flags         uint8
	Typesize      uint8
	Nbytes        uint32
	Blocksize     uint32
	Cbytes        uint32
}

func (h Header) byteShuffle() bool { return h.Flags&FlagByteShuffle != 0 }
func (h Header) bitShuffle() bool  { return h.Flags&FlagBitShuffle != 0 }
func (h Header) memcpy() bool      { return h.Flags&FlagMemcpy != 0 }
func (h Header) dontSplit() bool   { return h.Flags&FlagDontSplit != 0 }
func (h Header) codecID() codec.Code {
	return codec.Code((h.Flags >> codecShift) & codecMask)
}

func (h Header) shuffleMode() block.Shuffle {
	switch {
	case h.bitShuffle():
		return block.BitShuffle
	case h.byteShuffle():
		return block.ByteShuffle
	default:
		return block.NoShuffle
	}
}

func encodeHeader(dst []byte, h Header) {
	dst[0] = h.Version
	dst[1] = h.CodecVersion
	dst[2] = h.Flags
	dst[3] = h.Typesize
	binary.LittleEndian.PutUint32(dst[4:8], h.Nbytes)
	binary.LittleEndian.PutUint32(dst[8:12], h.Blocksize)
	binary.LittleEndian.PutUint32(dst[12:16], h.Cbytes)
}

// DecodeHeader parses the 16-byte header at the start of src and validates
// that its codec-id bits map to a compiled-in adapter (spec.md §4.5 Read).
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrTruncatedHeader
	}
	h := Header{
		Version:      src[0],
		CodecVersion: src[1],
		Flags:        src[2],
		Typesize:     src[3],
		Nbytes:       binary.LittleEndian.Uint32(src[4:8]),
		Blocksize:    binary.LittleEndian.Uint32(src[8:12]),
		Cbytes:       binary.LittleEndian.Uint32(src[12:16]),
	}
	if !h.memcpy() {
		if _, err := codec.Lookup(h.codecID()); err != nil {
			return Header{}, errors.WithStack(ErrUnsupportedCodec)
		}
	}
	return h, nil
}

// NBlocks returns (nblocks, leftover) for this header, per spec.md I2.
func (h Header) NBlocks() (nblocks, leftover int) {
	return pool.NBlocks(int(h.Nbytes), int(h.Blocksize))
}

// Params bundles the per-call compression configuration (spec.md §6
// cparams): codec, level, typesize, shuffle mode, forced blocksize, number
// of worker threads, and an optional super-chunk filter override (delta
// reference or truncate-precision) applied to slot 0 before the shuffle.
type Params struct {
	Typesize    int
	Level       int // 0..9; 0 forces the MEMCPY path (I6)
	Codec       codec.Code
	Shuffle     block.Shuffle
	ForcedBlock int // 0 means "compute from clevel/typesize/nbytes"
	NThreads    int
	DeltaRef    []byte
	TruncPrec   *int
}

func flagsFor(p Params, blocksize int, memcpy bool) uint8 {
	var f uint8
	if memcpy {
		f |= FlagMemcpy
	}
	switch p.Shuffle {
	case block.ByteShuffle:
		f |= FlagByteShuffle
	case block.BitShuffle:
		f |= FlagBitShuffle
	}
	if p.DeltaRef != nil || p.TruncPrec != nil {
		f |= FlagFilter
	}
	f |= uint8(p.Codec&codecMask) << codecShift
	return f
}

// Compress serialises src into a self-contained frame: header, block-starts
// table, and block payloads, falling back to the MEMCPY path when clevel==0,
// nbytes is below MIN_BUFFERSIZE, or the block layout is no smaller than the
// MEMCPY layout, as when every block declined to shrink (spec.md §4.5 Write,
// I6). An input shorter than typesize is framed with typesize 1. Returns the
// number of bytes written to dst.
func Compress(p Params, src []byte, dst []byte) (int, error) {
	nbytes := len(src)
	typesize := p.Typesize
	if typesize < 1 || nbytes < typesize {
		typesize = 1
	}
	p.Typesize = typesize

	blocksize := pool.ComputeBlocksize(p.Level, typesize, nbytes, p.ForcedBlock, p.Codec, p.Shuffle == block.BitShuffle)
	if blocksize < 1 {
		blocksize = 1
	}

	forceMemcpy := p.Level == 0 || nbytes < block.MinBufferSize
	if forceMemcpy {
		return writeMemcpy(p, src, dst, blocksize)
	}

	nblocksInt, leftover := pool.NBlocks(nbytes, blocksize)
	headerLen := HeaderSize + 4*nblocksInt
	if len(dst) < headerLen {
		return 0, ErrWouldOverflow
	}

	bp := block.Params{
		Typesize:  typesize,
		Blocksize: blocksize,
		Codec:     p.Codec,
		Level:     p.Level,
		Shuffle:   p.Shuffle,
		DeltaRef:  p.DeltaRef,
		TruncPrec: p.TruncPrec,
	}
	bound, err := block.Bound(bp, blocksize)
	if err != nil {
		return 0, err
	}

	nthreads := p.NThreads
	if nthreads < 1 {
		nthreads = 1
	}

	giveup := pool.NewGiveupLatch()
	scratches := make([]*block.Scratch, nthreads)
	states := make([]*codec.State, nthreads)
	stagings := make([][]byte, nthreads)
	for i := range scratches {
		scratches[i] = acquireScratch(blocksize, typesize, bound)
		states[i] = &codec.State{}
		stagings[i] = bufpool.Get(bound)
	}
	defer releaseScratches(scratches)
	defer func() {
		for _, s := range stagings {
			bufpool.Put(s)
		}
	}()

	payload := dst[headerLen:]
	compute := func(workerID, idx int) ([]byte, error) {
		sz := pool.BlockSize(idx, nblocksInt, blocksize, leftover)
		off := idx * blocksize
		n, err := block.Compress(bp, off, src[off:off+sz], stagings[workerID], scratches[workerID], states[workerID])
		if err != nil {
			return nil, err
		}
		return stagings[workerID][:n], nil
	}

	bstarts, written, err := pool.RunCompress(nthreads, nblocksInt, payload, giveup, compute)
	if err != nil {
		if errors.Is(err, block.ErrNonCompressible) {
			return writeMemcpy(p, src, dst, blocksize)
		}
		return 0, err
	}

	cbytes := headerLen + written
	if cbytes >= nbytes+HeaderSize {
		// No net saving (e.g. every block was stored raw): MEMCPY is smaller.
		return writeMemcpy(p, src, dst, blocksize)
	}
	for i, off := range bstarts {
		binary.LittleEndian.PutUint32(dst[HeaderSize+4*i:HeaderSize+4*i+4], off+uint32(headerLen))
	}
	encodeHeader(dst, Header{
		Version:      VersionFormat,
		CodecVersion: 1,
		Flags:        flagsFor(p, blocksize, false),
		Typesize:     uint8(typesize),
		Nbytes:       uint32(nbytes),
		Blocksize:    uint32(blocksize),
		Cbytes:       uint32(cbytes),
	})

	return cbytes, nil
}

func writeMemcpy(p Params, src, dst []byte, blocksize int) (int, error) {
	need := len(src) + HeaderSize
	if len(dst) < need {
		return 0, ErrWouldOverflow
	}
	encodeHeader(dst, Header{
		Version:      VersionFormat,
		CodecVersion: 1,
		Flags:        flagsFor(p, blocksize, true),
		Typesize:     uint8(p.Typesize),
		Nbytes:       uint32(len(src)),
		Blocksize:    uint32(blocksize),
		Cbytes:       uint32(need),
	})
	copy(dst[HeaderSize:], src)
	return need, nil
}

// Decompress reverses Compress: validate the header, then decompress every
// block (order-free, spec.md O3) into dst. deltaRef, when non-nil, is
// threaded through to the block engine so the delta filter can resolve its
// reference (super-chunk callers only; frame-only callers pass nil).
func Decompress(src []byte, dst []byte, deltaRef []byte, truncPrec *int, nthreads int) (int, error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return 0, err
	}
	if int(h.Cbytes) > len(src) {
		return 0, errors.WithStack(ErrCorrupt)
	}
	if len(dst) < int(h.Nbytes) {
		return 0, ErrWouldOverflow
	}

	if h.memcpy() {
		need := int(h.Nbytes)
		if HeaderSize+need > len(src) || int(h.Cbytes) != HeaderSize+need {
			return 0, errors.WithStack(ErrCorrupt)
		}
		copy(dst[:need], src[HeaderSize:HeaderSize+need])
		return need, nil
	}

	nblocksInt, leftover := h.NBlocks()
	headerLen := HeaderSize + 4*nblocksInt
	if len(src) < headerLen {
		return 0, errors.WithStack(ErrCorrupt)
	}

	bp := block.Params{
		Typesize:  int(h.Typesize),
		Blocksize: int(h.Blocksize),
		Codec:     h.codecID(),
		Shuffle:   h.shuffleMode(),
		DontSplit: h.dontSplit(),
		DeltaRef:  deltaRef,
		TruncPrec: truncPrec,
	}
	bound, err := block.Bound(bp, int(h.Blocksize))
	if err != nil {
		return 0, err
	}

	if nthreads < 1 {
		nthreads = 1
	}
	scratches := make([]*block.Scratch, nthreads)
	states := make([]*codec.State, nthreads)
	for i := range scratches {
		scratches[i] = acquireScratch(int(h.Blocksize), int(h.Typesize), bound)
		states[i] = &codec.State{}
	}
	defer releaseScratches(scratches)

	var deltaGate *pool.DeltaGate
	if deltaRef != nil {
		deltaGate = pool.NewDeltaGate()
	}

	giveup := pool.NewGiveupLatch()
	process := func(workerID, idx int) error {
		if deltaGate != nil && idx != 0 {
			deltaGate.Wait()
		}
		start := int(binary.LittleEndian.Uint32(src[HeaderSize+4*idx : HeaderSize+4*idx+4]))
		end := int(h.Cbytes)
		if idx+1 < nblocksInt {
			end = int(binary.LittleEndian.Uint32(src[HeaderSize+4*(idx+1) : HeaderSize+4*(idx+1)+4]))
		}
		if start < headerLen || end > len(src) || end < start {
			if deltaGate != nil && idx == 0 {
				deltaGate.Release()
			}
			return errors.WithStack(ErrCorrupt)
		}
		sz := pool.BlockSize(idx, nblocksInt, int(h.Blocksize), leftover)
		off := idx * int(h.Blocksize)
		_, derr := block.Decompress(bp, off, src[start:end], dst[off:off+sz], scratches[workerID], states[workerID])
		if deltaGate != nil && idx == 0 {
			deltaGate.Release()
		}
		return derr
	}

	if err := pool.RunDecompress(nthreads, nblocksInt, giveup, process); err != nil {
		return 0, err
	}

	return int(h.Nbytes), nil
}

// Sizes reports (nbytes, cbytes, blocksize) from a frame header, without
// touching block payloads (spec.md cbuffer_sizes).
func Sizes(src []byte) (nbytes, cbytes, blocksize int, err error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(h.Nbytes), int(h.Cbytes), int(h.Blocksize), nil
}

// Metainfo reports (typesize, flags) from a frame header (spec.md
// cbuffer_metainfo).
func Metainfo(src []byte) (typesize int, flags uint8, err error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return 0, 0, err
	}
	return int(h.Typesize), h.Flags, nil
}

// Versions reports (format version, codec version) from a frame header
// (spec.md cbuffer_versions).
func Versions(src []byte) (version, codecVersion int, err error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return 0, 0, err
	}
	return int(h.Version), int(h.CodecVersion), nil
}

// Getitem decompresses only the blocks intersecting the element range
// [start, start+nitems) and copies the requested sub-range into dst
// (spec.md §4.5 "for getitem queries..."). Runs the serial path: random
// access to a handful of blocks does not benefit from parallel dispatch.
func Getitem(src []byte, start, nitems int, dst []byte, deltaRef []byte, truncPrec *int) (int, error) {
	if nitems == 0 {
		return 0, ErrRangeEmpty
	}
	if start < 0 || nitems < 0 {
		return 0, errors.WithStack(ErrCorrupt)
	}

	h, err := DecodeHeader(src)
	if err != nil {
		return 0, err
	}
	typesize := int(h.Typesize)
	rangeStart := start * typesize
	rangeEnd := (start + nitems) * typesize
	if rangeStart < 0 || rangeEnd > int(h.Nbytes) {
		return 0, errors.WithStack(ErrCorrupt)
	}
	if len(dst) < rangeEnd-rangeStart {
		return 0, ErrWouldOverflow
	}

	if h.memcpy() {
		if HeaderSize+int(h.Nbytes) > len(src) {
			return 0, errors.WithStack(ErrCorrupt)
		}
		copy(dst, src[HeaderSize+rangeStart:HeaderSize+rangeEnd])
		return rangeEnd - rangeStart, nil
	}

	nblocksInt, leftover := h.NBlocks()
	headerLen := HeaderSize + 4*nblocksInt

	bp := block.Params{
		Typesize:  typesize,
		Blocksize: int(h.Blocksize),
		Codec:     h.codecID(),
		Shuffle:   h.shuffleMode(),
		DontSplit: h.dontSplit(),
		DeltaRef:  deltaRef,
		TruncPrec: truncPrec,
	}
	bound, err := block.Bound(bp, int(h.Blocksize))
	if err != nil {
		return 0, err
	}
	scratch := acquireScratch(int(h.Blocksize), typesize, bound)
	defer releaseScratch(scratch)
	state := &codec.State{}

	blockBuf := bufpool.Get(int(h.Blocksize))
	defer bufpool.Put(blockBuf)
	written := 0
	blocksize := int(h.Blocksize)
	first := rangeStart / blocksize
	last := (rangeEnd - 1) / blocksize

	for idx := first; idx <= last; idx++ {
		bstart := int(binary.LittleEndian.Uint32(src[HeaderSize+4*idx : HeaderSize+4*idx+4]))
		bend := int(h.Cbytes)
		if idx+1 < nblocksInt {
			bend = int(binary.LittleEndian.Uint32(src[HeaderSize+4*(idx+1) : HeaderSize+4*(idx+1)+4]))
		}
		if bstart < headerLen || bend > len(src) || bend < bstart {
			return 0, errors.WithStack(ErrCorrupt)
		}
		sz := pool.BlockSize(idx, nblocksInt, blocksize, leftover)
		off := idx * blocksize

		if _, err := block.Decompress(bp, off, src[bstart:bend], blockBuf[:sz], scratch, state); err != nil {
			return 0, err
		}

		loLocal := 0
		if rangeStart > off {
			loLocal = rangeStart - off
		}
		hiLocal := sz
		if rangeEnd < off+sz {
			hiLocal = rangeEnd - off
		}
		n := copy(dst[written:], blockBuf[loLocal:hiLocal])
		written += n
	}

	return written, nil
}
