package protocol

import "github.com/int08h/roughtimed/internal/wire"

// SignedResponse is the SREP message: the online key's attestation of a
// Merkle root covering a batch of client nonces, the midpoint and radius of
// the server's time uncertainty interval, and the version it responded
// with alongside the full list it supports.
type SignedResponse struct {
	Version             wire.Version
	RadiusSeconds       uint32
	MidpointUnixSeconds uint64
	Versions            SupportedVersions
	Root                MerkleRoot
}

func (s SignedResponse) encode(e *wire.Encoder) {
	e.Uint32(wire.VER, uint32(s.Version))
	e.Uint32(wire.RADI, s.RadiusSeconds)
	e.Uint64(wire.MIDP, s.MidpointUnixSeconds)
	s.Versions.encode(e, wire.VERS)
	e.Bytes64(wire.ROOT, [64]byte(s.Root))
}

func decodeSignedResponse(d *wire.Decoder) SignedResponse {
	var s SignedResponse
	var ver uint32
	d.Uint32(wire.VER, &ver)
	s.Version = wire.Version(ver)
	d.Uint32(wire.RADI, &s.RadiusSeconds)
	d.Uint64(wire.MIDP, &s.MidpointUnixSeconds)
	s.Versions.decode(d, wire.VERS)
	d.Bytes64(wire.ROOT, (*[64]byte)(&s.Root))
	return s
}

// encodedLen returns the byte size of the encoded SREP submessage so callers
// sizing an outer buffer don't have to duplicate the field list.
func (s SignedResponse) encodedLen() int {
	return 8*5 + 4 + 4 + 8 + 4*len(s.Versions) + 64
}
