package pool

import "github.com/pkg/errors"

// ErrFrameOverflow is latched when a worker's committed bytes would exceed
// the destination buffer reserved for the frame.
var ErrFrameOverflow = errors.New("blkz: compressed output overflowed destination buffer")
