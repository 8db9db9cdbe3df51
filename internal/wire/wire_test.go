package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// buildMessage assembles a raw RtMessage header+body for fields, which must
// already be in ascending tag order. It's a hand-rolled builder independent
// of Encoder, so tests of the decoder don't depend on the encoder being
// correct (and vice versa).
func buildMessage(fields []struct {
	tag Tag
	val []byte
}) []byte {
	n := uint32(len(fields))
	hdr := make([]byte, 8*n)
	putU32(hdr, n)
	var body []byte
	offsets := make([]uint32, n)
	for i, f := range fields {
		offsets[i] = uint32(len(body))
		body = append(body, f.val...)
	}
	for i, f := range fields {
		if i > 0 {
			putU32(hdr[4*i:], offsets[i])
		}
		putU32(hdr[4*n+4*uint32(i):], uint32(f.tag))
	}
	return append(hdr, body...)
}

func TestDecodeRoundTrip(t *testing.T) {
	msg := buildMessage([]struct {
		tag Tag
		val []byte
	}{
		{NONC, bytes.Repeat([]byte{0x42}, 32)},
		{PAD, bytes.Repeat([]byte{0}, 4)},
	})

	var nonce [32]byte
	err := Decode(msg, func(d *Decoder) {
		d.Bytes32(NONC, &nonce)
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(nonce[:], bytes.Repeat([]byte{0x42}, 32)) {
		t.Errorf("NONC = %x, want all 0x42", nonce)
	}
}

func TestDecodeRejectsUnorderedTags(t *testing.T) {
	msg := buildMessage([]struct {
		tag Tag
		val []byte
	}{
		{NONC, make([]byte, 32)},
		{SIG, make([]byte, 64)}, // SIG < NONC: out of order
	})
	_, err := NewDecoder(msg)
	if !errors.Is(err, ErrUnorderedTag) {
		t.Fatalf("got %v, want ErrUnorderedTag", err)
	}
}

func TestDecodeRejectsUnalignedOffset(t *testing.T) {
	n := uint32(2)
	hdr := make([]byte, 8*n)
	putU32(hdr, n)
	putU32(hdr[4:], 3) // offset for field 1, not 4-byte aligned
	putU32(hdr[8:], uint32(SIG))
	putU32(hdr[12:], uint32(VER))
	msg := append(hdr, make([]byte, 16)...)

	_, err := NewDecoder(msg)
	if !errors.Is(err, ErrUnalignedOffset) {
		t.Fatalf("got %v, want ErrUnalignedOffset", err)
	}
}

func TestDecodeRejectsUnorderedOffset(t *testing.T) {
	n := uint32(3)
	hdr := make([]byte, 8*n)
	putU32(hdr, n)
	putU32(hdr[4:], 8)
	putU32(hdr[8:], 4) // offset 1 (4) < offset 0 (8): not monotone
	putU32(hdr[12:], uint32(SIG))
	putU32(hdr[16:], uint32(VER))
	putU32(hdr[20:], uint32(SRV))
	msg := append(hdr, make([]byte, 16)...)

	_, err := NewDecoder(msg)
	if !errors.Is(err, ErrUnorderedOffset) {
		t.Fatalf("got %v, want ErrUnorderedOffset", err)
	}
}

func TestDecodeRejectsOutOfBoundsOffset(t *testing.T) {
	n := uint32(2)
	hdr := make([]byte, 8*n)
	putU32(hdr, n)
	putU32(hdr[4:], 1000) // nowhere near the body
	putU32(hdr[8:], uint32(SIG))
	putU32(hdr[12:], uint32(VER))
	msg := append(hdr, make([]byte, 8)...)

	_, err := NewDecoder(msg)
	if !errors.Is(err, ErrOutOfBoundsOffset) {
		t.Fatalf("got %v, want ErrOutOfBoundsOffset", err)
	}
}

func TestDecodeRejectsMismatchedNumTags(t *testing.T) {
	msg := make([]byte, 4)
	putU32(msg, 5) // claims 5 tags, but no header bytes follow
	_, err := NewDecoder(msg)
	if !errors.Is(err, ErrMismatchedNumTags) {
		t.Fatalf("got %v, want ErrMismatchedNumTags", err)
	}
}

func TestDecodeMissingRequiredField(t *testing.T) {
	msg := buildMessage([]struct {
		tag Tag
		val []byte
	}{
		{PAD, make([]byte, 4)},
	})
	err := Decode(msg, func(d *Decoder) {
		var nonce [32]byte
		d.Bytes32(NONC, &nonce)
	})
	if !errors.Is(err, ErrUnexpectedTags) {
		t.Fatalf("got %v, want ErrUnexpectedTags", err)
	}
}

func TestDecodeOptionalBytes(t *testing.T) {
	msg := buildMessage([]struct {
		tag Tag
		val []byte
	}{
		{NONC, make([]byte, 32)},
	})
	err := Decode(msg, func(d *Decoder) {
		var srv []byte
		if d.OptionalBytes(SRV, &srv) {
			t.Errorf("OptionalBytes(SRV) found a field that isn't present")
		}
		var nonce [32]byte
		d.Bytes32(NONC, &nonce)
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestEncodeDecodeFlatFields(t *testing.T) {
	buf := make([]byte, 256)
	e := NewEncoder(buf, 3)
	e.Uint32(VER, uint32(RfcDraft14))
	var nonce [32]byte
	for i := range nonce {
		nonce[i] = byte(i)
	}
	e.Bytes32(NONC, nonce)
	e.Bytes(PAD, 4)
	msg := buf[:e.Len()]

	var gotVer uint32
	var gotNonce [32]byte
	err := Decode(msg, func(d *Decoder) {
		d.Uint32(VER, &gotVer)
		d.Bytes32(NONC, &gotNonce)
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotVer != uint32(RfcDraft14) {
		t.Errorf("VER = %x, want %x", gotVer, RfcDraft14)
	}
	if gotNonce != nonce {
		t.Errorf("NONC = %x, want %x", gotNonce, nonce)
	}
}

func TestEncodeDecodeNestedMessage(t *testing.T) {
	buf := make([]byte, 512)
	e := NewEncoder(buf, 1)
	e.Message(CERT, 2, func(sub *Encoder) {
		var sig [64]byte
		sig[0] = 7
		sub.Bytes64(SIG, sig)
		sub.Message(DELE, 2, func(dele *Encoder) {
			var pub [32]byte
			pub[0] = 9
			dele.Bytes32(PUBK, pub)
			dele.Uint64(MINT, 100)
		})
	})
	msg := buf[:e.Len()]

	var sig [64]byte
	var pub [32]byte
	var mint uint64
	err := Decode(msg, func(d *Decoder) {
		d.Message(CERT, func(cert *Decoder) {
			cert.Bytes64(SIG, &sig)
			cert.Message(DELE, func(dele *Decoder) {
				dele.Bytes32(PUBK, &pub)
				dele.Uint64(MINT, &mint)
			})
		})
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sig[0] != 7 || pub[0] != 9 || mint != 100 {
		t.Errorf("nested round trip mismatch: sig[0]=%d pub[0]=%d mint=%d", sig[0], pub[0], mint)
	}
}

func TestFrameUnframeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 100)
	buf := make([]byte, FrameHeaderSize+len(payload))
	framed := Frame(buf, payload)

	got, err := Unframe(framed)
	if err != nil {
		t.Fatalf("Unframe: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Unframe round trip mismatch")
	}
}

func TestUnframeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, FrameHeaderSize+8)
	copy(buf, "XXXXXXXX")
	_, err := Unframe(buf)
	if !errors.Is(err, ErrUnexpectedMagic) {
		t.Fatalf("got %v, want ErrUnexpectedMagic", err)
	}
}

func TestUnframeRejectsLengthMismatch(t *testing.T) {
	buf := make([]byte, FrameHeaderSize+8)
	copy(buf, RFCMagic[:])
	putU32(buf[8:], 999)
	_, err := Unframe(buf)
	if !errors.Is(err, ErrUnexpectedFraming) {
		t.Fatalf("got %v, want ErrUnexpectedFraming", err)
	}
}
