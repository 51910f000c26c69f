// Package schunk implements the super-chunk container: an append-only
// sequence of frames sharing a filter pipeline, default codec/level, and an
// optional delta reference chunk, with both in-memory and packed forms
// (spec.md §4.6).
package schunk

import (
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/pkg/errors"

	"github.com/falk/blkz/internal/block"
	"github.com/falk/blkz/internal/codec"
	"github.com/falk/blkz/pkg/frame"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// FilterCode identifies one stage of the super-chunk's filter pipeline
// (spec.md §6 "Filters").
type FilterCode uint8

const (
	FilterNone FilterCode = iota
	FilterByteShuffle
	FilterBitShuffle
	FilterDelta
	FilterTruncPrec
)

// MaxFilters bounds the filter pipeline length (spec.md §4.6, §7 "filter
// list length <= 8").
const MaxFilters = 8

// FilterStep is one entry of the ordered filter pipeline, with its
// single meta byte (spec.md "ordered list of up to 8 filter codes with
// per-filter meta bytes"). Only slot 0 (a data-transforming filter: delta
// or truncate-prec) and slot 1 (a shuffle-class filter) are currently acted
// on by the block engine; further slots are reserved (spec.md §9 "Filter
// ordering").
type FilterStep struct {
	Code FilterCode
	Meta int8 // truncate-prec's signed prec parameter; unused by other filters
}

// Params configures a new super-chunk's defaults (spec.md §6 new_schunk
// sparams): typesize, filter pipeline, codec, level, and worker count.
type Params struct {
	Typesize int
	Filters  []FilterStep
	Codec    codec.Code
	Level    int
	NThreads int
}

// Schunk is an append-only sequence of independently-framed chunks sharing
// one filter pipeline and codec configuration. Safe for concurrent
// AppendBuffer/DecompressChunk calls (guarded by mu), matching the
// "global_comp_mutex around any setter" discipline of spec.md §5.
type Schunk struct {
	mu sync.Mutex

	typesize int
	filters  []FilterStep
	codec    codec.Code
	level    int
	nthreads int

	frames       [][]byte
	deltaApplied []bool // per-frame: was the delta filter actually applied when this chunk was compressed
	nbytes       int64
	cbytes       int64

	deltaRef    []byte
	deltaRefSet bool
}

// New creates an empty super-chunk with the given defaults. Fails if the
// filter pipeline exceeds MaxFilters (spec.md §7 "validate... happens on
// append", applied here at construction since the pipeline is fixed for the
// super-chunk's lifetime).
func New(p Params) (*Schunk, error) {
	if len(p.Filters) > MaxFilters {
		return nil, errors.Errorf("schunk: filter pipeline length %d exceeds MaxFilters", len(p.Filters))
	}
	nthreads := p.NThreads
	if nthreads < 1 {
		nthreads = 1
	}
	return &Schunk{
		typesize: p.Typesize,
		filters:  append([]FilterStep(nil), p.Filters...),
		codec:    p.Codec,
		level:    p.Level,
		nthreads: nthreads,
	}, nil
}

// NumChunks returns the number of appended frames.
func (s *Schunk) NumChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Nbytes returns the cumulative uncompressed size across all chunks.
func (s *Schunk) Nbytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nbytes
}

// Cbytes returns the cumulative compressed size across all chunks.
func (s *Schunk) Cbytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cbytes
}

func (s *Schunk) hasFilter(c FilterCode) (FilterStep, bool) {
	for _, f := range s.filters {
		if f.Code == c {
			return f, true
		}
	}
	return FilterStep{}, false
}

func (s *Schunk) shuffleMode() block.Shuffle {
	if _, ok := s.hasFilter(FilterBitShuffle); ok {
		return block.BitShuffle
	}
	if _, ok := s.hasFilter(FilterByteShuffle); ok {
		return block.ByteShuffle
	}
	return block.NoShuffle
}

// SetDeltaRef installs an explicit delta reference chunk ahead of any
// append, bypassing the "first appended chunk becomes the reference"
// default rule (spec.md §6 set_delta_ref).
func (s *Schunk) SetDeltaRef(typesize, nbytes int, ref []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typesize != s.typesize {
		return errors.Errorf("schunk: delta reference typesize %d != schunk typesize %d", typesize, s.typesize)
	}
	s.deltaRef = append([]byte(nil), ref[:nbytes]...)
	s.deltaRefSet = true
	return nil
}

// AppendBuffer compresses src into a fresh frame under the super-chunk's
// defaults and appends it, returning the new chunk count (spec.md §4.6
// "append_buffer"). The first chunk appended while the filter pipeline
// contains DELTA and no reference is set becomes that reference: it is
// stored without the delta filter applied (there is nothing to encode it
// against yet), and DecompressChunk remembers this per chunk so it knows
// not to run the delta filter backwards over it later.
func (s *Schunk) AppendBuffer(typesize int, src []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		s.typesize = typesize
	} else if typesize != s.typesize {
		return 0, errors.Errorf("schunk: typesize changed from %d to %d across chunks", s.typesize, typesize)
	}

	_, usesDelta := s.hasFilter(FilterDelta)
	appliesDelta := usesDelta && s.deltaRefSet
	var deltaRef []byte
	if appliesDelta {
		deltaRef = s.deltaRef
	}

	var truncPrec *int
	if tf, ok := s.hasFilter(FilterTruncPrec); ok {
		p := int(tf.Meta)
		truncPrec = &p
	}

	fp := frame.Params{
		Typesize:  typesize,
		Level:     s.level,
		Codec:     s.codec,
		Shuffle:   s.shuffleMode(),
		NThreads:  s.nthreads,
		DeltaRef:  deltaRef,
		TruncPrec: truncPrec,
	}

	bound := len(src) + frame.HeaderSize + 4*(len(src)/max1(typesize)) + 4096
	buf := make([]byte, bound)
	n, err := frame.Compress(fp, src, buf)
	if err != nil {
		return 0, err
	}
	buf = buf[:n]

	if usesDelta && !s.deltaRefSet {
		s.deltaRef = append([]byte(nil), src...)
		s.deltaRefSet = true
	}

	s.frames = append(s.frames, buf)
	s.deltaApplied = append(s.deltaApplied, appliesDelta)
	s.nbytes += int64(len(src))
	s.cbytes += int64(len(buf))
	return len(s.frames), nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// DecompressChunk decompresses chunk n into dst (spec.md §4.6
// decompress_chunk). The super-chunk's delta reference and truncate-prec
// meta are threaded through so the block engine can resolve them.
func (s *Schunk) DecompressChunk(n int, dst []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= len(s.frames) {
		return 0, errors.Errorf("schunk: chunk index %d out of range [0,%d)", n, len(s.frames))
	}

	var deltaRef []byte
	if s.deltaApplied[n] {
		deltaRef = s.deltaRef
	}
	var truncPrec *int
	if tf, ok := s.hasFilter(FilterTruncPrec); ok {
		p := int(tf.Meta)
		truncPrec = &p
	}

	return frame.Decompress(s.frames[n], dst, deltaRef, truncPrec, s.nthreads)
}

// Packed form: a small header, the filter-meta table, then each frame
// length-prefixed with its bytes, and a trailing CRC32C (spec.md §4.6
// "Packed form"). Represented as a plain []byte; there is no separate Go
// type for it because nothing needs random access into it except through
// Unpack.
const packedMagic = "BLKZSCHK"

// Pack serialises s into a Packed buffer (spec.md pack_schunk).
func (s *Schunk) Pack() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []byte
	out = append(out, packedMagic...)
	out = appendU32(out, uint32(s.typesize))
	out = appendU32(out, uint32(s.codec))
	out = appendU32(out, uint32(s.level))
	out = appendU32(out, uint32(s.nthreads))

	out = appendU32(out, uint32(len(s.filters)))
	for _, f := range s.filters {
		out = append(out, byte(f.Code), byte(f.Meta))
	}

	if s.deltaRefSet {
		out = append(out, 1)
		out = appendU32(out, uint32(len(s.deltaRef)))
		out = append(out, s.deltaRef...)
	} else {
		out = append(out, 0)
	}

	out = appendU32(out, uint32(len(s.frames)))
	for i, fr := range s.frames {
		out = appendU32(out, uint32(len(fr)))
		out = append(out, fr...)
		if s.deltaApplied[i] {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}

	// Trailing checksum over everything above, so a corrupted relative-offset
	// table is detected before Unpack walks it (spec.md §9 "packed form is
	// single-writer" - this guards against torn reads, not concurrent writers).
	out = appendU32(out, crc32.Checksum(out, crcTable))
	return out
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// Unpack reverses Pack (spec.md unpack_schunk).
func Unpack(packed []byte) (*Schunk, error) {
	if len(packed) < len(packedMagic)+4 || string(packed[:len(packedMagic)]) != packedMagic {
		return nil, errors.New("schunk: bad packed magic")
	}
	body, wantCRC := packed[:len(packed)-4], binary.LittleEndian.Uint32(packed[len(packed)-4:])
	if crc32.Checksum(body, crcTable) != wantCRC {
		return nil, errors.New("schunk: packed buffer failed checksum")
	}
	packed = body
	pos := len(packedMagic)
	readU32 := func() (uint32, error) {
		if pos+4 > len(packed) {
			return 0, errors.New("schunk: truncated packed buffer")
		}
		v := binary.LittleEndian.Uint32(packed[pos : pos+4])
		pos += 4
		return v, nil
	}

	typesize, err := readU32()
	if err != nil {
		return nil, err
	}
	codecID, err := readU32()
	if err != nil {
		return nil, err
	}
	level, err := readU32()
	if err != nil {
		return nil, err
	}
	nthreads, err := readU32()
	if err != nil {
		return nil, err
	}

	nfilters, err := readU32()
	if err != nil {
		return nil, err
	}
	filters := make([]FilterStep, 0, nfilters)
	for i := uint32(0); i < nfilters; i++ {
		if pos+2 > len(packed) {
			return nil, errors.New("schunk: truncated filter table")
		}
		filters = append(filters, FilterStep{Code: FilterCode(packed[pos]), Meta: int8(packed[pos+1])})
		pos += 2
	}

	if pos >= len(packed) {
		return nil, errors.New("schunk: truncated packed buffer")
	}
	hasDelta := packed[pos] != 0
	pos++
	var deltaRef []byte
	if hasDelta {
		n, err := readU32()
		if err != nil {
			return nil, err
		}
		if pos+int(n) > len(packed) {
			return nil, errors.New("schunk: truncated delta reference")
		}
		deltaRef = append([]byte(nil), packed[pos:pos+int(n)]...)
		pos += int(n)
	}

	nframes, err := readU32()
	if err != nil {
		return nil, err
	}
	frames := make([][]byte, 0, nframes)
	deltaApplied := make([]bool, 0, nframes)
	var nbytes, cbytes int64
	for i := uint32(0); i < nframes; i++ {
		flen, err := readU32()
		if err != nil {
			return nil, err
		}
		if pos+int(flen) > len(packed) {
			return nil, errors.New("schunk: truncated frame")
		}
		fr := append([]byte(nil), packed[pos:pos+int(flen)]...)
		pos += int(flen)
		if pos+1 > len(packed) {
			return nil, errors.New("schunk: truncated delta-applied flag")
		}
		appliesDelta := packed[pos] != 0
		pos++
		n, _, _, err := frame.Sizes(fr)
		if err != nil {
			return nil, err
		}
		nbytes += int64(n)
		cbytes += int64(len(fr))
		frames = append(frames, fr)
		deltaApplied = append(deltaApplied, appliesDelta)
	}

	return &Schunk{
		typesize:     int(typesize),
		filters:      filters,
		codec:        codec.Code(codecID),
		level:        int(level),
		nthreads:     int(nthreads),
		frames:       frames,
		deltaApplied: deltaApplied,
		nbytes:       nbytes,
		cbytes:       cbytes,
		deltaRef:     deltaRef,
		deltaRefSet:  hasDelta,
	}, nil
}

// PackedAppendBuffer appends src as a new chunk to a packed buffer, returning
// the extended buffer (spec.md pack_append_buffer). Implemented as
// Unpack/AppendBuffer/Pack rather than an in-place splice; single-writer,
// the caller must not read packed concurrently with this call.
func PackedAppendBuffer(packed []byte, typesize int, src []byte) ([]byte, error) {
	sh, err := Unpack(packed)
	if err != nil {
		return nil, err
	}
	if _, err := sh.AppendBuffer(typesize, src); err != nil {
		return nil, err
	}
	return sh.Pack(), nil
}

// PackedDecompressChunk decompresses chunk n directly from a packed buffer.
func PackedDecompressChunk(packed []byte, n int, dst []byte) (int, error) {
	sh, err := Unpack(packed)
	if err != nil {
		return 0, err
	}
	return sh.DecompressChunk(n, dst)
}
