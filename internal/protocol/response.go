package protocol

import (
	"crypto/ed25519"

	"github.com/int08h/roughtimed/internal/merkle"
	"github.com/int08h/roughtimed/internal/wire"
)

// Response is the per-client Response message: {SIG, PATH, SREP, CERT,
// INDX}. SIG is the online key's signature over SREP's encoded bytes; PATH
// and Index let the client (or a test) recompute SREP.Root from its own
// nonce.
type Response struct {
	Signature Signature
	Path      [][64]byte
	Srep      SignedResponse
	Cert      Certificate
	Index     uint32
}

// SignSrep builds the SIG field over srep's encoded bytes under the
// RoughTime v1 response signature domain using the online (delegated) key.
// Callers whose online key lives behind an opaque signer should use
// SrepSigningBytes directly instead.
func SignSrep(onlinePriv ed25519.PrivateKey, srep SignedResponse) Signature {
	sig := ed25519.Sign(onlinePriv, SrepSigningBytes(srep))
	var out Signature
	copy(out[:], sig)
	return out
}

// SrepSigningBytes returns the exact bytes an online key signs to attest
// srep: the response domain-separation prefix followed by the canonical
// encoding of SREP's body.
func SrepSigningBytes(srep SignedResponse) []byte {
	buf := make([]byte, srep.encodedLen())
	e := wire.NewEncoder(buf, 5)
	srep.encode(e)
	return append(append([]byte{}, wire.ResponseContext...), buf[:e.Len()]...)
}

// Encode writes resp into buf as a complete RtMessage and returns it. Unlike
// requests, responses aren't framed or padded to a fixed size; their length
// varies with the Merkle path depth and the advertised version list.
func (resp Response) Encode(buf []byte) []byte {
	e := wire.NewEncoder(buf, 5)
	e.Bytes64(wire.SIG, [64]byte(resp.Signature))
	e.Path(wire.PATH, resp.Path)
	e.Message(wire.SREP, 5, func(sub *wire.Encoder) {
		resp.Srep.encode(sub)
	})
	e.Message(wire.CERT, 2, func(sub *wire.Encoder) {
		resp.Cert.encode(sub)
	})
	e.Uint32(wire.INDX, resp.Index)
	return buf[:e.Len()]
}

// DecodeResponse parses a Response from its RtMessage bytes. Unlike
// requests, responses carry no RFC frame in this implementation.
func DecodeResponse(msg []byte) (*Response, error) {
	var resp Response
	err := wire.Decode(msg, func(d *wire.Decoder) {
		d.Bytes64(wire.SIG, (*[64]byte)(&resp.Signature))
		d.Path(wire.PATH, &resp.Path)
		d.Message(wire.SREP, func(sub *wire.Decoder) {
			resp.Srep = decodeSignedResponse(sub)
		})
		d.Message(wire.CERT, func(sub *wire.Decoder) {
			resp.Cert = decodeCertificate(sub)
		})
		d.Uint32(wire.INDX, &resp.Index)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify checks every invariant spec.md §8 lists for a response: the
// delegation's signature under the long-term key, the SREP's signature
// under the delegated online key, that the Merkle path for nonce and Index
// reproduces SREP.Root, and that MIDP falls within the delegation's
// validity window.
func (resp Response) Verify(longTermPub ed25519.PublicKey, nonce Nonce) error {
	if !resp.Cert.Verify(longTermPub) {
		return VerifyError("delegation signature invalid")
	}

	onlinePub := ed25519.PublicKey(resp.Cert.Delegation.PublicKey[:])
	if !ed25519.Verify(onlinePub, SrepSigningBytes(resp.Srep), resp.Signature[:]) {
		return VerifyError("response signature invalid")
	}

	leaf := merkle.LeafHash(nonce[:])
	if !merkle.VerifyPath(leaf, resp.Path, uint64(resp.Index), resp.Srep.Root) {
		return VerifyError("merkle path does not reproduce signed root")
	}

	del := resp.Cert.Delegation
	if resp.Srep.MidpointUnixSeconds < del.MinUnixSeconds || resp.Srep.MidpointUnixSeconds > del.MaxUnixSeconds {
		return VerifyError("midpoint outside delegation validity window")
	}
	return nil
}
