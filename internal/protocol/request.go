package protocol

import "github.com/int08h/roughtimed/internal/wire"

// Request is a parsed client request. Field order mirrors ascending tag
// order (VER, SRV, NONC); PAD is padding to RequestTotalSize and carries no
// information, so it is consumed but not retained.
type Request struct {
	Versions SupportedVersions
	Srv      *SrvCommitment
	Nonce    Nonce
}

// DecodeRequest unframes and parses a client request. framed must be exactly
// wire.RequestTotalSize bytes; callers are expected to have already dropped
// runt or jumbo datagrams before calling this (spec.md §4.5).
func DecodeRequest(framed []byte) (*Request, error) {
	if len(framed) != wire.RequestTotalSize {
		return nil, wire.ErrBadRequestSize
	}
	payload, err := wire.Unframe(framed)
	if err != nil {
		return nil, err
	}

	var req Request
	err = wire.Decode(payload, func(d *wire.Decoder) {
		req.Versions.decode(d, wire.VER)
		if !req.Versions.Has(wire.RfcDraft14) {
			d.Fail(wire.ErrNoSupportedVersions)
		}

		var srvBuf []byte
		if d.OptionalBytes(wire.SRV, &srvBuf) {
			if len(srvBuf) != 32 {
				d.Fail(wire.ErrWrongTagSize)
			}
			var srv SrvCommitment
			copy(srv[:], srvBuf)
			req.Srv = &srv
		}

		d.Bytes32(wire.NONC, (*[32]byte)(&req.Nonce))
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// EncodeRequest writes req into buf, framed and padded to exactly
// wire.RequestTotalSize bytes, and returns the framed slice. buf must be at
// least wire.RequestTotalSize long. Used by rtclient and by tests; the
// server itself never encodes a request.
func EncodeRequest(buf []byte, req *Request) []byte {
	n := uint32(3) // VER, NONC, PAD
	if req.Srv != nil {
		n = 4
	}

	payload := make([]byte, wire.RequestPayloadSize)
	e := wire.NewEncoder(payload, n)
	req.Versions.encode(e, wire.VER)
	if req.Srv != nil {
		e.Bytes32(wire.SRV, [32]byte(*req.Srv))
	}
	e.Bytes32(wire.NONC, [32]byte(req.Nonce))
	// PAD absorbs the rest of the fixed-size payload so NONC's length
	// isn't ambiguous with trailing padding bytes.
	padLen := wire.RequestPayloadSize - e.Len()
	e.Bytes(wire.PAD, padLen)

	return wire.Frame(buf, payload[:e.Len()])
}
