package wire

import (
	"encoding/binary"
)

// Encoder emits an RtMessage into a caller-supplied buffer. It never
// allocates: Bytes returns a window into the buffer passed to NewEncoder,
// and the caller writes the field's value into that window directly. Tags
// must be written in strictly ascending order; Encoder panics on
// programmer error (buffer too small, tags out of order) since those are
// static bugs, not malformed input (spec.md §4.1, §7).
type Encoder struct {
	buf  []byte
	n    uint32
	i    uint32
	last Tag
	hdr  []byte
	body []byte
}

// NewEncoder prepares buf to hold a message with n tags. buf must be large
// enough for the header (8*n bytes) plus every field written afterwards.
func NewEncoder(buf []byte, n uint32) *Encoder {
	if uint64(len(buf)) < 8*uint64(n) {
		panic("wire: buffer too small for header")
	}
	e := &Encoder{buf: buf, n: n}
	if n == 0 {
		e.hdr, e.body = buf[:4], buf[4:4]
		return e
	}
	binary.LittleEndian.PutUint32(buf, n)
	e.hdr = buf[0 : 8*n : 8*n]
	e.body = buf[8*n : 8*n : len(buf)]
	return e
}

// Len returns the total encoded length so far.
func (e *Encoder) Len() int {
	return len(e.hdr) + len(e.body)
}

// Bytes emits a field with tag t and length l, returning the window to
// write the value into.
func (e *Encoder) Bytes(t Tag, l int) []byte {
	if e.i > 0 && t <= e.last {
		panic("wire: tags not written in ascending order")
	}
	if len(e.body)+l > cap(e.body) {
		panic("wire: buffer too small for field")
	}
	if e.i >= e.n {
		panic("wire: too many tags written")
	}
	e.last = t
	if e.i > 0 {
		binary.LittleEndian.PutUint32(e.hdr[4*e.i:], uint32(len(e.body)))
	}
	binary.LittleEndian.PutUint32(e.hdr[4*e.n+4*e.i:], uint32(t))
	e.i++

	start := len(e.body)
	e.body = e.body[:start+l]
	return e.body[start : start+l]
}

func (e *Encoder) Bytes32(t Tag, v [32]byte) {
	copy(e.Bytes(t, 32), v[:])
}

func (e *Encoder) Bytes64(t Tag, v [64]byte) {
	copy(e.Bytes(t, 64), v[:])
}

func (e *Encoder) Uint32(t Tag, v uint32) {
	binary.LittleEndian.PutUint32(e.Bytes(t, 4), v)
}

func (e *Encoder) Uint64(t Tag, v uint64) {
	binary.LittleEndian.PutUint64(e.Bytes(t, 8), v)
}

// Path emits a PATH-shaped field: a concatenation of 64-byte hashes.
func (e *Encoder) Path(t Tag, path [][64]byte) {
	buf := e.Bytes(t, 64*len(path))
	for i, h := range path {
		copy(buf[i*64:], h[:])
	}
}

// Message emits a nested RtMessage with n2 tags at tag t, filling it with f.
// f receives a sub-Encoder backed by the remaining capacity of e's body, so
// the nested message is written in place with no extra allocation or copy.
func (e *Encoder) Message(t Tag, n2 uint32, f func(*Encoder)) {
	if e.i > 0 && t <= e.last {
		panic("wire: tags not written in ascending order")
	}
	if e.i >= e.n {
		panic("wire: too many tags written")
	}
	start := len(e.body)
	sub := NewEncoder(e.body[start:cap(e.body)], n2)
	f(sub)
	subLen := sub.Len()

	e.last = t
	if e.i > 0 {
		binary.LittleEndian.PutUint32(e.hdr[4*e.i:], uint32(start))
	}
	binary.LittleEndian.PutUint32(e.hdr[4*e.n+4*e.i:], uint32(t))
	e.i++
	e.body = e.body[:start+subLen]
}
