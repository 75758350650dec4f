package wire

import (
	"encoding/binary"
	"fmt"
)

// maxPrealloc bounds the buffer reserved from a header alone. Larger payloads
// grow as their bytes arrive.
const maxPrealloc = 64 << 10

type Phase uint8

const (
	ReadingHeader Phase = iota
	ReadingPayload
)

func (p Phase) String() string {
	switch p {
	case ReadingHeader:
		return "ReadingHeader"
	case ReadingPayload:
		return "ReadingPayload"
	default:
		return "Unknown"
	}
}

// Decoder reassembles length-prefixed frames from a byte stream that may be
// split at arbitrary points. It holds at most one partial header or payload.
// A Decoder is not safe for concurrent use; each connection owns one.
type Decoder struct {
	phase      Phase
	buf        []byte
	expected   uint64
	maxPayload uint64
}

// NewDecoder returns a decoder that rejects frames larger than maxPayload.
// With a zero maxPayload only empty frames are accepted.
func NewDecoder(maxPayload uint64) *Decoder {
	return &Decoder{
		phase:      ReadingHeader,
		buf:        make([]byte, 0, HeaderSize),
		maxPayload: maxPayload,
	}
}

func (d *Decoder) Phase() Phase {
	return d.phase
}

// Buffered reports how many bytes of the current phase have been collected.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Need reports how many bytes complete the current phase.
func (d *Decoder) Need() int {
	if d.phase == ReadingHeader {
		return HeaderSize - len(d.buf)
	}

	return int(d.expected) - len(d.buf)
}

// Feed consumes p and returns every payload it completed, in stream order.
// After an error the decoder is unusable and the connection should be closed.
func (d *Decoder) Feed(p []byte) ([][]byte, error) {
	var frames [][]byte

	for {
		if d.phase == ReadingPayload && d.expected == uint64(len(d.buf)) {
			frames = append(frames, d.buf)
			d.buf = make([]byte, 0, HeaderSize)
			d.expected = 0
			d.phase = ReadingHeader
		}

		if len(p) == 0 {
			return frames, nil
		}

		n := min(d.Need(), len(p))
		d.buf = append(d.buf, p[:n]...)
		p = p[n:]

		if d.phase == ReadingHeader && len(d.buf) == HeaderSize {
			size := binary.BigEndian.Uint64(d.buf)
			if size > d.maxPayload {
				return frames, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.maxPayload)
			}
			if size%FloatSize != 0 {
				return frames, fmt.Errorf("%w: header announces %d bytes", ErrMisalignedData, size)
			}
			d.expected = size
			d.buf = make([]byte, 0, min(size, maxPrealloc))
			d.phase = ReadingPayload
		}
	}
}
