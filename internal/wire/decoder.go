package wire

import (
	"encoding/binary"
)

// Decoder walks the tag/offset header of an RtMessage and extracts typed
// fields. It is forward-only: fields must be requested in ascending tag
// order, mirroring the wire requirement that tags themselves are ascending.
// Zero value is not usable; construct with NewDecoder or via Message.
type Decoder struct {
	hdr  []byte
	body []byte
	n    uint32
	i    uint32
	err  error
}

// abortSentinel is panicked with to unwind out of a partially-applied
// decode without forcing every call site to check an error return. Decode
// recovers it and turns it back into a plain error.
type abortSentinel struct{}

func (d *Decoder) abort(err error) {
	if d.err == nil {
		d.err = err
	}
	panic(abortSentinel{})
}

// NewDecoder validates the header of b (tag count, ascending tags, aligned
// non-decreasing in-bounds offsets) and returns a Decoder positioned at the
// first field.
func NewDecoder(b []byte) (*Decoder, error) {
	d := &Decoder{}
	if err := d.reset(b); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) reset(b []byte) error {
	if len(b) < 4 {
		return wrapf(ErrMismatchedNumTags, "message shorter than the 4-byte tag count")
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(len(b)) < 8*uint64(n) {
		return wrapf(ErrMismatchedNumTags, "declares %d tags, too few bytes for that many", n)
	}
	if n == 0 {
		d.n, d.i, d.hdr, d.body = 0, 0, b[:4], b[4:4]
		return nil
	}

	// Field 0's tag sits right after the offset table; its start offset (0)
	// is implicit. Fields 1..n-1 each have an explicit offset entry.
	prevTag := Tag(binary.LittleEndian.Uint32(b[4*n:]))
	prevOff := uint32(0)
	bodyLen := uint32(len(b)) - 8*n
	for i := uint32(1); i < n; i++ {
		off := binary.LittleEndian.Uint32(b[4*i:])
		tag := Tag(binary.LittleEndian.Uint32(b[4*n+4*i:]))
		if tag <= prevTag {
			return wrapf(ErrUnorderedTag, "tag %d (%v) <= prior tag %v", i, tag, prevTag)
		}
		if off%4 != 0 {
			return wrapf(ErrUnalignedOffset, "offset %d (%d) not 4-byte aligned", i-1, off)
		}
		if off < prevOff {
			return wrapf(ErrUnorderedOffset, "offset %d (%d) less than prior %d", i-1, off, prevOff)
		}
		if off > bodyLen {
			return wrapf(ErrOutOfBoundsOffset, "offset %d (%d) beyond message body of length %d", i-1, off, bodyLen)
		}
		prevTag, prevOff = tag, off
	}

	d.n = n
	d.i = 0
	d.hdr = b[0 : 8*n : 8*n]
	d.body = b[8*n:]
	return nil
}

// field returns the tag and value slice for header entry i.
func (d *Decoder) field(i uint32) (Tag, []byte) {
	tag := Tag(binary.LittleEndian.Uint32(d.hdr[4*d.n+4*i:]))
	start, end := uint32(0), uint32(len(d.body))
	if i > 0 {
		start = binary.LittleEndian.Uint32(d.hdr[4*i:])
	}
	if i+1 < d.n {
		end = binary.LittleEndian.Uint32(d.hdr[4*(i+1):])
	}
	if end < start {
		d.abort(wrapf(ErrOutOfBoundsOffset, "field %d end %d before start %d", i, end, start))
	}
	return tag, d.body[start:end]
}

// Bytes advances until it finds tag t and stores its raw value (aliasing
// the original message buffer) into p. Aborts if t is missing or a
// differently-tagged field is skipped past.
func (d *Decoder) Bytes(t Tag, p *[]byte) {
	for ; d.i < d.n; d.i++ {
		tag, val := d.field(d.i)
		if tag > t {
			continue
		}
		if tag < t {
			d.abort(wrapf(ErrUnexpectedTags, "field %v missing before %v", t, tag))
		}
		*p = val
		d.i++
		return
	}
	d.abort(wrapf(ErrUnexpectedTags, "field %v missing", t))
}

// OptionalBytes is like Bytes but does not abort when t is absent; ok
// reports whether it was found. Fields probed this way must still appear in
// ascending order relative to tags requested after them.
func (d *Decoder) OptionalBytes(t Tag, p *[]byte) (ok bool) {
	for ; d.i < d.n; d.i++ {
		tag, val := d.field(d.i)
		if tag > t {
			return false
		}
		if tag < t {
			continue
		}
		*p = val
		d.i++
		return true
	}
	return false
}

func (d *Decoder) Uint32(t Tag, p *uint32) {
	var buf []byte
	d.Bytes(t, &buf)
	if len(buf) != 4 {
		d.abort(wrapf(ErrWrongTagSize, "%v: want 4 bytes, got %d", t, len(buf)))
	}
	*p = binary.LittleEndian.Uint32(buf)
}

func (d *Decoder) Uint64(t Tag, p *uint64) {
	var buf []byte
	d.Bytes(t, &buf)
	if len(buf) != 8 {
		d.abort(wrapf(ErrWrongTagSize, "%v: want 8 bytes, got %d", t, len(buf)))
	}
	*p = binary.LittleEndian.Uint64(buf)
}

func (d *Decoder) Bytes32(t Tag, p *[32]byte) {
	var buf []byte
	d.Bytes(t, &buf)
	if len(buf) != 32 {
		d.abort(wrapf(ErrWrongTagSize, "%v: want 32 bytes, got %d", t, len(buf)))
	}
	copy(p[:], buf)
}

func (d *Decoder) Bytes64(t Tag, p *[64]byte) {
	var buf []byte
	d.Bytes(t, &buf)
	if len(buf) != 64 {
		d.abort(wrapf(ErrWrongTagSize, "%v: want 64 bytes, got %d", t, len(buf)))
	}
	copy(p[:], buf)
}

// Path extracts a PATH field: a sequence of 64-byte SHA-512 sibling hashes.
func (d *Decoder) Path(t Tag, p *[][64]byte) {
	var buf []byte
	d.Bytes(t, &buf)
	if len(buf)%64 != 0 {
		d.abort(wrapf(ErrInvalidPathLength, "%v: length %d not a multiple of 64", t, len(buf)))
	}
	*p = make([][64]byte, len(buf)/64)
	for i := range *p {
		copy((*p)[i][:], buf[i*64:])
	}
}

// Fail aborts decoding with err. Used by higher-level protocol types to
// reject a field that parsed structurally but fails a semantic check (e.g.
// an unsupported version list).
func (d *Decoder) Fail(err error) {
	d.abort(err)
}

// Message extracts a nested RtMessage at tag t and decodes it with f.
func (d *Decoder) Message(t Tag, f func(*Decoder)) {
	var buf []byte
	d.Bytes(t, &buf)
	sub, err := NewDecoder(buf)
	if err != nil {
		d.abort(err)
	}
	f(sub)
}

// RawMessage extracts a nested RtMessage at tag t, decodes it with f, and
// additionally returns the raw encoded bytes of the submessage (needed when
// the caller must re-verify a signature over the exact encoded bytes).
func (d *Decoder) RawMessage(t Tag, raw *[]byte, f func(*Decoder)) {
	var buf []byte
	d.Bytes(t, &buf)
	sub, err := NewDecoder(buf)
	if err != nil {
		d.abort(err)
	}
	f(sub)
	*raw = buf
}

// Decode parses msg's header and runs f against a fresh Decoder, recovering
// any abort into a plain error return.
func Decode(msg []byte, f func(*Decoder)) (err error) {
	d, err := NewDecoder(msg)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortSentinel); !ok {
				panic(r)
			}
			err = d.err
		}
	}()
	f(d)
	return nil
}
