package wire

import (
	"bytes"
	"encoding/binary"
)

// Unframe validates RFC framing (8-byte magic + 4-byte little-endian
// payload length) and returns the RtMessage payload it wraps. Only RFC
// framing is accepted (spec.md §9, Open Question 1); anything else,
// including the legacy Google framing, is rejected.
func Unframe(b []byte) ([]byte, error) {
	if len(b) < FrameHeaderSize {
		return nil, wrapf(ErrUnexpectedFraming, "frame shorter than %d bytes", FrameHeaderSize)
	}
	if !bytes.Equal(b[:8], RFCMagic[:]) {
		return nil, wrapf(ErrUnexpectedMagic, "got %x", b[:8])
	}
	declared := binary.LittleEndian.Uint32(b[8:12])
	payload := b[FrameHeaderSize:]
	if int(declared) != len(payload) {
		return nil, wrapf(ErrUnexpectedFraming, "declared length %d does not match payload length %d", declared, len(payload))
	}
	return payload, nil
}

// Frame prepends RFC framing to payload, writing into buf (which must have
// room for FrameHeaderSize+len(payload) bytes) and returning the framed
// slice.
func Frame(buf []byte, payload []byte) []byte {
	if len(buf) < FrameHeaderSize+len(payload) {
		panic("wire: buffer too small to frame payload")
	}
	copy(buf, RFCMagic[:])
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	return buf[:FrameHeaderSize+len(payload)]
}
