package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecoderChunking(t *testing.T) {
	first := []float32{1, -2.5, 3.25, 0, 1e-7, 42}
	second := []float32{7, 8, 9, 10, 11, 12}
	stream := append(EncodeModel(first), EncodeModel(second)...)

	for _, chunk := range []int{1, 2, 3, 5, 7, 8, 9, 13, len(stream)} {
		d := NewDecoder(uint64(len(first) * FloatSize))

		var frames [][]byte
		for off := 0; off < len(stream); off += chunk {
			end := min(off+chunk, len(stream))
			got, err := d.Feed(stream[off:end])
			if err != nil {
				t.Fatalf("chunk %d: unexpected error: %v", chunk, err)
			}
			frames = append(frames, got...)
		}

		if len(frames) != 2 {
			t.Fatalf("chunk %d: expected 2 frames, got %d", chunk, len(frames))
		}
		for i, want := range [][]float32{first, second} {
			got, err := DecodeFloats(frames[i])
			if err != nil {
				t.Fatalf("chunk %d: decode frame %d: %v", chunk, i, err)
			}
			if !equalFloats(got, want) {
				t.Errorf("chunk %d: frame %d = %v, want %v", chunk, i, got, want)
			}
		}
		if d.Phase() != ReadingHeader || d.Buffered() != 0 {
			t.Errorf("chunk %d: decoder not reset: phase=%s buffered=%d", chunk, d.Phase(), d.Buffered())
		}
	}
}

func TestDecoderPartialState(t *testing.T) {
	frame := EncodeModel([]float32{1, 2, 3})
	d := NewDecoder(12)

	frames, err := d.Feed(frame[:5])
	if err != nil || len(frames) != 0 {
		t.Fatalf("expected no frames and no error, got %d frames, err=%v", len(frames), err)
	}
	if d.Phase() != ReadingHeader || d.Need() != 3 {
		t.Fatalf("expected header phase needing 3 bytes, got %s needing %d", d.Phase(), d.Need())
	}

	frames, err = d.Feed(frame[5:12])
	if err != nil || len(frames) != 0 {
		t.Fatalf("expected no frames and no error, got %d frames, err=%v", len(frames), err)
	}
	if d.Phase() != ReadingPayload || d.Buffered() != 4 || d.Need() != 8 {
		t.Fatalf("expected payload phase 4/12, got %s buffered=%d need=%d", d.Phase(), d.Buffered(), d.Need())
	}

	frames, err = d.Feed(frame[12:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], frame[HeaderSize:]) {
		t.Fatalf("expected the payload back, got %v", frames)
	}
}

func TestDecoderEmptyPayload(t *testing.T) {
	d := NewDecoder(0)

	frames, err := d.Feed(EncodeFrame(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != 0 {
		t.Fatalf("expected one empty frame, got %v", frames)
	}
}

func TestDecoderRejectsBadHeaders(t *testing.T) {
	cases := []struct {
		name string
		size uint64
		max  uint64
		err  error
	}{
		{name: "too large", size: 44, max: 40, err: ErrFrameTooLarge},
		{name: "huge", size: 1 << 62, max: 40, err: ErrFrameTooLarge},
		{name: "misaligned", size: 6, max: 40, err: ErrMisalignedData},
		{name: "zero limit", size: 4, max: 0, err: ErrFrameTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := make([]byte, HeaderSize)
			binary.BigEndian.PutUint64(header, tc.size)

			_, err := NewDecoder(tc.max).Feed(header)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestDecoderGrowsLargePayloads(t *testing.T) {
	size := uint64(4 * maxPrealloc)
	d := NewDecoder(size)

	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(header, size)
	if _, err := d.Feed(header); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap(d.buf) > maxPrealloc {
		t.Fatalf("header alone reserved %d bytes, want at most %d", cap(d.buf), maxPrealloc)
	}

	payload := bytes.Repeat([]byte{1, 2, 3, 4}, int(size/FloatSize))
	frames, err := d.Feed(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("expected the %d byte payload back, got %d frames", size, len(frames))
	}
}

func TestEncodeFrameHeader(t *testing.T) {
	frame := EncodeModel(make([]float32, 10))
	if len(frame) != HeaderSize+40 {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+40, len(frame))
	}
	if got := binary.BigEndian.Uint64(frame[:HeaderSize]); got != 40 {
		t.Fatalf("expected header 40, got %d", got)
	}
}

func TestDecodeFloatsMisaligned(t *testing.T) {
	if _, err := DecodeFloats([]byte{1, 2, 3}); !errors.Is(err, ErrMisalignedData) {
		t.Fatalf("expected ErrMisalignedData, got %v", err)
	}
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
