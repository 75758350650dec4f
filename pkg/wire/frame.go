package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the length of the big-endian payload length prefix.
const HeaderSize = 8

// FloatSize is the encoded width of one model element.
const FloatSize = 4

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum payload size")
	ErrMisalignedData = errors.New("payload length is not a multiple of 4")
)

// EncodeFrame returns the length header followed by payload.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint64(frame[:HeaderSize], uint64(len(payload)))
	copy(frame[HeaderSize:], payload)

	return frame
}

// EncodeFloats lays out values in host byte order. Peers are expected to
// share endianness and float representation.
func EncodeFloats(values []float32) []byte {
	buf := make([]byte, len(values)*FloatSize)
	for i, v := range values {
		binary.NativeEndian.PutUint32(buf[i*FloatSize:], math.Float32bits(v))
	}

	return buf
}

// DecodeFloats is the inverse of EncodeFloats.
func DecodeFloats(payload []byte) ([]float32, error) {
	if len(payload)%FloatSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMisalignedData, len(payload))
	}

	values := make([]float32, len(payload)/FloatSize)
	for i := range values {
		values[i] = math.Float32frombits(binary.NativeEndian.Uint32(payload[i*FloatSize:]))
	}

	return values, nil
}

// EncodeModel is the framed form of a float vector, as sent on the wire.
func EncodeModel(values []float32) []byte {
	return EncodeFrame(EncodeFloats(values))
}
