package filter

import "encoding/binary"

// DeltaEncode XORs src against a reference, the way the super-chunk's delta
// filter turns elements into low-entropy residuals (spec.md §4.1 "Delta").
//
// When offset == 0, element 0 is copied verbatim from src and every later
// element is XORed with its immediate predecessor *within src* (not within
// dest), so the block is coded against itself and ref is not read. When
// offset != 0, every element is XORed with the co-indexed element of ref.
//
// typesize selects the XOR lane width (1, 2, 4 or 8 bytes); other typesizes
// fall through to the 8-byte path when evenly divisible by 8, else the
// 1-byte path, mirroring original_source/blosc/delta.c exactly.
func DeltaEncode(ref []byte, offset int, typesize int, src, dest []byte) {
	nbytes := len(src)
	switch {
	case typesize == 1:
		deltaEncode1(ref, offset, nbytes, src, dest)
	case typesize == 2:
		deltaEncode2(ref, offset, nbytes, src, dest)
	case typesize == 4:
		deltaEncode4(ref, offset, nbytes, src, dest)
	case typesize == 8:
		deltaEncode8(ref, offset, nbytes, src, dest)
	case typesize%8 == 0:
		deltaEncode8(ref, offset, nbytes, src, dest)
	default:
		deltaEncode1(ref, offset, nbytes, src, dest)
	}
}

// DeltaDecode inverts DeltaEncode in place on dest (XOR is its own inverse).
func DeltaDecode(ref []byte, offset int, typesize int, dest []byte) {
	nbytes := len(dest)
	switch {
	case typesize == 1:
		deltaDecode1(ref, offset, nbytes, dest)
	case typesize == 2:
		deltaDecode2(ref, offset, nbytes, dest)
	case typesize == 4:
		deltaDecode4(ref, offset, nbytes, dest)
	case typesize == 8:
		deltaDecode8(ref, offset, nbytes, dest)
	case typesize%8 == 0:
		deltaDecode8(ref, offset, nbytes, dest)
	default:
		deltaDecode1(ref, offset, nbytes, dest)
	}
}

func deltaEncode1(ref []byte, offset, nbytes int, src, dest []byte) {
	if offset == 0 {
		dest[0] = src[0]
		for i := 1; i < nbytes; i++ {
			dest[i] = src[i] ^ src[i-1]
		}
		return
	}
	for i := 0; i < nbytes; i++ {
		dest[i] = src[i] ^ ref[i]
	}
}

func deltaDecode1(ref []byte, offset, nbytes int, dest []byte) {
	if offset == 0 {
		for i := 1; i < nbytes; i++ {
			dest[i] ^= dest[i-1]
		}
		return
	}
	for i := 0; i < nbytes; i++ {
		dest[i] ^= ref[i]
	}
}

func deltaEncode2(ref []byte, offset, nbytes int, src, dest []byte) {
	n := nbytes / 2
	if offset == 0 {
		binary.LittleEndian.PutUint16(dest[0:2], binary.LittleEndian.Uint16(src[0:2]))
		for i := 1; i < n; i++ {
			s := binary.LittleEndian.Uint16(src[2*i : 2*i+2])
			r := binary.LittleEndian.Uint16(src[2*(i-1) : 2*(i-1)+2])
			binary.LittleEndian.PutUint16(dest[2*i:2*i+2], s^r)
		}
		return
	}
	for i := 0; i < n; i++ {
		s := binary.LittleEndian.Uint16(src[2*i : 2*i+2])
		r := binary.LittleEndian.Uint16(ref[2*i : 2*i+2])
		binary.LittleEndian.PutUint16(dest[2*i:2*i+2], s^r)
	}
}

func deltaDecode2(ref []byte, offset, nbytes int, dest []byte) {
	n := nbytes / 2
	if offset == 0 {
		for i := 1; i < n; i++ {
			d := binary.LittleEndian.Uint16(dest[2*i : 2*i+2])
			r := binary.LittleEndian.Uint16(dest[2*(i-1) : 2*(i-1)+2])
			binary.LittleEndian.PutUint16(dest[2*i:2*i+2], d^r)
		}
		return
	}
	for i := 0; i < n; i++ {
		d := binary.LittleEndian.Uint16(dest[2*i : 2*i+2])
		r := binary.LittleEndian.Uint16(ref[2*i : 2*i+2])
		binary.LittleEndian.PutUint16(dest[2*i:2*i+2], d^r)
	}
}

func deltaEncode4(ref []byte, offset, nbytes int, src, dest []byte) {
	n := nbytes / 4
	if offset == 0 {
		binary.LittleEndian.PutUint32(dest[0:4], binary.LittleEndian.Uint32(src[0:4]))
		for i := 1; i < n; i++ {
			s := binary.LittleEndian.Uint32(src[4*i : 4*i+4])
			r := binary.LittleEndian.Uint32(src[4*(i-1) : 4*(i-1)+4])
			binary.LittleEndian.PutUint32(dest[4*i:4*i+4], s^r)
		}
		return
	}
	for i := 0; i < n; i++ {
		s := binary.LittleEndian.Uint32(src[4*i : 4*i+4])
		r := binary.LittleEndian.Uint32(ref[4*i : 4*i+4])
		binary.LittleEndian.PutUint32(dest[4*i:4*i+4], s^r)
	}
}

func deltaDecode4(ref []byte, offset, nbytes int, dest []byte) {
	n := nbytes / 4
	if offset == 0 {
		for i := 1; i < n; i++ {
			d := binary.LittleEndian.Uint32(dest[4*i : 4*i+4])
			r := binary.LittleEndian.Uint32(dest[4*(i-1) : 4*(i-1)+4])
			binary.LittleEndian.PutUint32(dest[4*i:4*i+4], d^r)
		}
		return
	}
	for i := 0; i < n; i++ {
		d := binary.LittleEndian.Uint32(dest[4*i : 4*i+4])
		r := binary.LittleEndian.Uint32(ref[4*i : 4*i+4])
		binary.LittleEndian.PutUint32(dest[4*i:4*i+4], d^r)
	}
}

func deltaEncode8(ref []byte, offset, nbytes int, src, dest []byte) {
	n := nbytes / 8
	if offset == 0 {
		binary.LittleEndian.PutUint64(dest[0:8], binary.LittleEndian.Uint64(src[0:8]))
		for i := 1; i < n; i++ {
			s := binary.LittleEndian.Uint64(src[8*i : 8*i+8])
			r := binary.LittleEndian.Uint64(src[8*(i-1) : 8*(i-1)+8])
			binary.LittleEndian.PutUint64(dest[8*i:8*i+8], s^r)
		}
		return
	}
	for i := 0; i < n; i++ {
		s := binary.LittleEndian.Uint64(src[8*i : 8*i+8])
		r := binary.LittleEndian.Uint64(ref[8*i : 8*i+8])
		binary.LittleEndian.PutUint64(dest[8*i:8*i+8], s^r)
	}
}

func deltaDecode8(ref []byte, offset, nbytes int, dest []byte) {
	n := nbytes / 8
	if offset == 0 {
		for i := 1; i < n; i++ {
			d := binary.LittleEndian.Uint64(dest[8*i : 8*i+8])
			r := binary.LittleEndian.Uint64(dest[8*(i-1) : 8*(i-1)+8])
			binary.LittleEndian.PutUint64(dest[8*i:8*i+8], d^r)
		}
		return
	}
	for i := 0; i < n; i++ {
		d := binary.LittleEndian.Uint64(dest[8*i : 8*i+8])
		r := binary.LittleEndian.Uint64(ref[8*i : 8*i+8])
		binary.LittleEndian.PutUint64(dest[8*i:8*i+8], d^r)
	}
}
