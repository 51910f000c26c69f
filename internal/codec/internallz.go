package codec

import (
	"encoding/binary"
)

// internalLZMinMatch is the shortest back-reference internalLZ will emit.
const internalLZMinMatch = 4

// internalLZAdapter is blosc's own built-in codec (spec.md calls it "the
// internal LZ"), not a wrapped third-party backend like the other four. No
// ecosystem package models this private variant, so it is hand-rolled here:
// a minimal LZSS over a 4-byte rolling hash, with a literal-run/match-run
// token stream (varint lengths, varint offset). See DESIGN.md.
type internalLZAdapter struct{}

func init() { register(internalLZAdapter{}) }

func (internalLZAdapter) Code() Code { return InternalLZ }

func (internalLZAdapter) Bound(neblock int) int {
	return neblock + neblock/8 + 32
}

func (internalLZAdapter) Compress(_ *State, src, dst []byte, accel int) (int, error) {
	out := internalLZCompress(src, accel)
	if len(out) > len(dst) || len(out) >= len(src) {
		return 0, nil
	}
	copy(dst, out)
	return len(out), nil
}

func (internalLZAdapter) Decompress(_ *State, src, dst []byte) (int, error) {
	return internalLZDecompress(src, dst)
}

func internalLZCompress(src []byte, accel int) []byte {
	n := len(src)
	out := make([]byte, 0, n)
	var scratch [binary.MaxVarintLen64]byte

	writeUvarint := func(v uint64) {
		m := binary.PutUvarint(scratch[:], v)
		out = append(out, scratch[:m]...)
	}

	// step controls how often the hash table is consulted/updated, the way
	// real blosc's `accel` parameter trades match-finding effort for speed.
	step := 1
	if accel > 16 {
		step = 2
	}

	hash := make(map[uint32]int, n/8+1)
	litStart := 0
	pos := 0
	for pos+internalLZMinMatch <= n {
		key := binary.LittleEndian.Uint32(src[pos : pos+4])
		cand, ok := hash[key]
		if ok && pos-cand > 0 && pos-cand < (1<<20) && matches(src, cand, pos, internalLZMinMatch) {
			matchLen := internalLZMinMatch
			maxLen := n - pos
			for matchLen < maxLen && src[cand+matchLen] == src[pos+matchLen] {
				matchLen++
			}

			litLen := pos - litStart
			writeUvarint(uint64(litLen))
			out = append(out, src[litStart:pos]...)
			writeUvarint(uint64(matchLen - internalLZMinMatch))
			writeUvarint(uint64(pos - cand))

			hash[key] = pos
			pos += matchLen
			litStart = pos
			continue
		}
		hash[key] = pos
		pos += step
	}

	litLen := n - litStart
	writeUvarint(uint64(litLen))
	out = append(out, src[litStart:n]...)
	return out
}

func matches(src []byte, a, b, n int) bool {
	for i := 0; i < n; i++ {
		if src[a+i] != src[b+i] {
			return false
		}
	}
	return true
}

func internalLZDecompress(src, dst []byte) (int, error) {
	si := 0
	do := 0
	want := len(dst)
	for do < want {
		litLen, n := binary.Uvarint(src[si:])
		si += n
		copy(dst[do:do+int(litLen)], src[si:si+int(litLen)])
		si += int(litLen)
		do += int(litLen)
		if do >= want {
			break
		}

		matchLenMinus, n := binary.Uvarint(src[si:])
		si += n
		offset, n := binary.Uvarint(src[si:])
		si += n

		matchLen := int(matchLenMinus) + internalLZMinMatch
		matchPos := do - int(offset)
		for i := 0; i < matchLen; i++ {
			dst[do+i] = dst[matchPos+i]
		}
		do += matchLen
	}
	return do, nil
}
