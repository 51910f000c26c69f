package codec

import "github.com/golang/snappy"

type snappyAdapter struct{}

func init() { register(snappyAdapter{}) }

func (snappyAdapter) Code() Code { return Snappy }

func (snappyAdapter) Bound(neblock int) int {
	return snappy.MaxEncodedLen(neblock)
}

func (snappyAdapter) Compress(_ *State, src, dst []byte, _ int) (int, error) {
	out := snappy.Encode(dst, src)
	if len(out) >= len(src) || len(out) > len(dst) {
		return 0, nil
	}
	copy(dst, out) // Encode allocates when len(dst) < MaxEncodedLen(len(src))
	return len(out), nil
}

func (snappyAdapter) Decompress(_ *State, src, dst []byte) (int, error) {
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}
