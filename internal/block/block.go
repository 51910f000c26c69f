// Package block implements the per-block compression and decompression
// pipeline: apply filters, optionally split by element lane, invoke a codec
// adapter, and frame each split with a length prefix (spec.md §4.3).
package block

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/falk/blkz/internal/codec"
	"github.com/falk/blkz/internal/filter"
)

// MinBufferSize is the smallest blocksize the engine will use; it must
// exceed the header plus worst-case per-block overhead (spec.md §6).
const MinBufferSize = 128

// MaxSplits caps the number of per-lane sub-regions a block is divided
// into; the split policy never produces more than this because it only
// fires when typesize <= MaxSplits (spec.md §9 "make this explicit").
const MaxSplits = 16

// Shuffle selects the pre-conditioning shuffle kernel applied before the
// codec sees a block.
type Shuffle int

const (
	NoShuffle Shuffle = iota
	ByteShuffle
	BitShuffle
)

// ErrNonCompressible signals that a block could not be shrunk within the
// frame's remaining budget and the whole block's compression should be
// abandoned in favor of the caller's MEMCPY fallback (spec.md §4.3 "If the
// budget is exceeded, abort this block").
var ErrNonCompressible = errors.New("block: non-compressible within budget")

// ErrOverrun is error code -1 of spec.md §4.3: the codec's compressed
// output exceeded the space Bound() promised, which should never happen if
// the codec's own bound is honoured.
var ErrOverrun = errors.New("block: codec overran its bound")

// ErrSizeMismatch is error code -2: a decompressed split's length didn't
// match the expected neblock.
var ErrSizeMismatch = errors.New("block: decompressed size mismatch")

// ErrBadTruncTypesize is error code -6: truncate-precision requested on an
// unsupported typesize.
var ErrBadTruncTypesize = errors.New("block: truncate-precision requires typesize 4 or 8")

// Params configures how one block is processed. It is shared read-only
// state computed once per frame/context and passed to every worker.
type Params struct {
	Typesize  int
	Blocksize int
	Codec     codec.Code
	Level     int // 0..9 clevel, used for codec level mapping
	Shuffle   Shuffle
	DontSplit bool // flags bit4: force nsplits=1 regardless of policy

	// Super-chunk filter slot 0 (spec.md §9 "slot 0 is a data-transforming
	// filter"): at most one of DeltaRef/TruncPrec is set.
	DeltaRef  []byte // non-nil enables the delta filter against this reference block
	TruncPrec *int   // non-nil enables truncate-precision with this prec value
}

// Scratch holds the three per-worker buffers the engine needs while
// processing one block (spec.md §3 "Per-thread scratch buffers"). Callers
// size it with NewScratch and reuse it across blocks/calls, reallocating
// only when blocksize changes (spec.md "lazily allocated and resized").
type Scratch struct {
	Blocksize int
	Typesize  int
	Tmp       []byte // filter/shuffle output staging
	Tmp2      []byte // delta/trunc-prec intermediate (ebsize = blocksize + typesize*4)
	Tmp3      []byte // codec output staging, sized to the adapter's bound
}

// NewScratch allocates a Scratch sized for blocksize/typesize: Tmp of
// blocksize bytes, Tmp2 of ebsize bytes, and Tmp3 of bound bytes.
func NewScratch(blocksize, typesize int, bound int) *Scratch {
	ebsize := blocksize + typesize*4
	return &Scratch{
		Blocksize: blocksize,
		Typesize:  typesize,
		Tmp:       make([]byte, blocksize),
		Tmp2:      make([]byte, ebsize),
		Tmp3:      make([]byte, bound),
	}
}

// Resize grows (never shrinks in place unnecessarily) the scratch to match
// a new blocksize, matching "do not keep shrinking and regrowing" (spec.md
// §9 Scratch sizing).
func (s *Scratch) Resize(blocksize, typesize, bound int) {
	if s.Blocksize >= blocksize && s.Typesize == typesize && len(s.Tmp3) >= bound {
		return
	}
	*s = *NewScratch(blocksize, typesize, bound)
}

// NSplits returns how many lanes a block of size blocksize is divided into
// before reaching the codec, per the fixed policy table of spec.md §3: the
// internal LZ and Snappy split into typesize lanes when typesize <= 16 and
// neblock >= MinBufferSize, unless dontSplit forces a single region.
func NSplits(code codec.Code, typesize, blocksize int, dontSplit bool) int {
	if dontSplit {
		return 1
	}
	if typesize < 1 || typesize > MaxSplits {
		return 1
	}
	neblock := blocksize / typesize
	splits := code == codec.InternalLZ || code == codec.Snappy
	if splits && neblock >= MinBufferSize {
		return typesize
	}
	return 1
}

// Bound returns an upper bound on the compressed size of one block of
// blocksize bytes under p, including every split's 4-byte length prefix.
func Bound(p Params, blocksize int) (int, error) {
	adapter, err := codec.Lookup(p.Codec)
	if err != nil {
		return 0, err
	}
	nsplits := NSplits(p.Codec, p.Typesize, blocksize, p.DontSplit)
	neblock := blocksize / nsplits
	return nsplits*(4+adapter.Bound(neblock)) + blocksize, nil
}

// Compress processes one block: filters, optional split, codec dispatch,
// per-split length-prefixed output (spec.md §4.3 "Compress one block").
// blockOffset is this block's byte offset within the source buffer (0 for
// the super-chunk reference block). dst must be large enough to hold the
// worst case (use Bound). Returns the number of bytes written to dst.
func Compress(p Params, blockOffset int, src []byte, dst []byte, scratch *Scratch, state *codec.State) (int, error) {
	adapter, err := codec.Lookup(p.Codec)
	if err != nil {
		return 0, err
	}

	work := src
	if p.DeltaRef != nil {
		filter.DeltaEncode(p.DeltaRef, blockOffset, p.Typesize, src, scratch.Tmp2[:len(src)])
		work = scratch.Tmp2[:len(src)]
	} else if p.TruncPrec != nil {
		if p.Typesize != 4 && p.Typesize != 8 {
			return 0, ErrBadTruncTypesize
		}
		if err := filter.TruncatePrecision(*p.TruncPrec, p.Typesize, src, scratch.Tmp2[:len(src)]); err != nil {
			return 0, errors.WithStack(err)
		}
		work = scratch.Tmp2[:len(src)]
	}

	switch p.Shuffle {
	case ByteShuffle:
		filter.Shuffle(p.Typesize, work, scratch.Tmp[:len(work)])
		work = scratch.Tmp[:len(work)]
	case BitShuffle:
		if err := filter.Bitshuffle(p.Typesize, len(work), work, scratch.Tmp[:len(work)], scratch.Tmp2[:len(work)]); err != nil {
			return 0, errors.WithStack(err)
		}
		work = scratch.Tmp[:len(work)]
	}

	nsplits := NSplits(p.Codec, p.Typesize, len(work), p.DontSplit)
	neblock := len(work) / nsplits
	levelOrAccel := codec.AccelerationOrLevel(p.Codec, p.Level, p.Typesize)

	written := 0
	for s := 0; s < nsplits; s++ {
		splitSrc := work[s*neblock : (s+1)*neblock]
		if s == nsplits-1 {
			splitSrc = work[s*neblock:]
		}

		if written+4 > len(dst) {
			return 0, ErrNonCompressible
		}
		lenOff := written
		written += 4 // reserved for the length prefix, patched below

		maxout := len(dst) - written
		codecDst := scratch.Tmp3
		if len(codecDst) > maxout {
			codecDst = codecDst[:maxout]
		}
		n, err := adapter.Compress(state, splitSrc, codecDst, levelOrAccel)
		if err != nil {
			return 0, err
		}
		if n > maxout {
			return 0, ErrOverrun
		}

		if n == 0 || n >= len(splitSrc) {
			// Codec declined, or it didn't shrink the split: store raw.
			if written+len(splitSrc) > len(dst) {
				return 0, ErrNonCompressible
			}
			copy(dst[written:], splitSrc)
			written += len(splitSrc)
			binary.LittleEndian.PutUint32(dst[lenOff:lenOff+4], uint32(len(splitSrc)))
			continue
		}

		copy(dst[written:], codecDst[:n])
		written += n
		binary.LittleEndian.PutUint32(dst[lenOff:lenOff+4], uint32(n))
	}

	return written, nil
}

// Decompress mirrors Compress: read each split's length prefix, decompress
// or memcpy it, then reverse the shuffle and (for super-chunks) the delta
// filter (spec.md §4.3 "Decompress one block").
func Decompress(p Params, blockOffset int, src []byte, dst []byte, scratch *Scratch, state *codec.State) (int, error) {
	adapter, err := codec.Lookup(p.Codec)
	if err != nil {
		return 0, err
	}

	nsplits := NSplits(p.Codec, p.Typesize, len(dst), p.DontSplit)
	neblock := len(dst) / nsplits

	shuffled := scratch.Tmp[:len(dst)]
	pos := 0
	for s := 0; s < nsplits; s++ {
		thisNeblock := neblock
		if s == nsplits-1 {
			thisNeblock = len(dst) - s*neblock
		}
		if pos+4 > len(src) {
			return 0, ErrSizeMismatch
		}
		length := int(binary.LittleEndian.Uint32(src[pos : pos+4]))
		pos += 4

		out := shuffled[s*neblock : s*neblock+thisNeblock]
		if length == thisNeblock {
			if pos+length > len(src) {
				return 0, ErrSizeMismatch
			}
			copy(out, src[pos:pos+length])
			pos += length
			continue
		}
		if pos+length > len(src) {
			return 0, ErrSizeMismatch
		}
		n, err := adapter.Decompress(state, src[pos:pos+length], out)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		if n != thisNeblock {
			return 0, ErrSizeMismatch
		}
		pos += length
	}

	switch p.Shuffle {
	case ByteShuffle:
		filter.Unshuffle(p.Typesize, shuffled, dst)
	case BitShuffle:
		if err := filter.Unbitshuffle(p.Typesize, len(dst), shuffled, dst, scratch.Tmp2[:len(dst)]); err != nil {
			return 0, errors.WithStack(err)
		}
	default:
		copy(dst, shuffled)
	}

	// Reverse delta last (spec.md §4.3: "reverse the shuffle into the
	// destination, then ... reverse the delta"). Truncate-precision is
	// lossy and has no inverse: the truncated values already are the
	// decompressed ones.
	if p.DeltaRef != nil {
		filter.DeltaDecode(p.DeltaRef, blockOffset, p.Typesize, dst)
	}

	return len(dst), nil
}
