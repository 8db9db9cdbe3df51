// Package protocol defines the typed Roughtime messages (requests,
// responses, certificates, delegations) on top of the internal/wire codec,
// and the signing/verification rules that bind them together.
package protocol

import (
	"crypto/sha512"

	"github.com/int08h/roughtimed/internal/wire"
)

// Fixed-size field types. These alias raw byte arrays rather than slices so
// they can be copied and compared by value the way the protocol treats them.
type (
	Nonce         [32]byte
	PublicKey     [32]byte
	Signature     [64]byte
	MerkleRoot    [64]byte
	SrvCommitment [32]byte
)

// SupportedVersions is an ascending-or-arbitrary list of version codes
// offered (by a client's VER tag) or advertised (by a server's VERS tag).
// The wire format places no ordering requirement on the list itself, only
// on the tag that carries it.
type SupportedVersions []wire.Version

func (v SupportedVersions) encode(e *wire.Encoder, t wire.Tag) {
	buf := e.Bytes(t, 4*len(v))
	for i, ver := range v {
		putVersion(buf[4*i:], ver)
	}
}

func (v *SupportedVersions) decode(d *wire.Decoder, t wire.Tag) {
	var buf []byte
	d.Bytes(t, &buf)
	if len(buf)%4 != 0 {
		d.Fail(wire.ErrWrongTagSize)
	}
	out := make(SupportedVersions, len(buf)/4)
	for i := range out {
		out[i] = getVersion(buf[4*i:])
	}
	*v = out
}

// Has reports whether v includes ver.
func (v SupportedVersions) Has(ver wire.Version) bool {
	for _, x := range v {
		if x == ver {
			return true
		}
	}
	return false
}

func putVersion(b []byte, v wire.Version) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getVersion(b []byte) wire.Version {
	return wire.Version(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

// ComputeSrvCommitment derives the SRV value a client pins a request to: the
// first 32 bytes of SHA-512(0xff || long-term public key). It lets a client
// bind a request to one server's identity.
func ComputeSrvCommitment(longTerm PublicKey) SrvCommitment {
	h := sha512.New()
	h.Write([]byte{0xff})
	h.Write(longTerm[:])
	sum := h.Sum(nil)
	var out SrvCommitment
	copy(out[:], sum[:32])
	return out
}
