package protocol

import "github.com/int08h/roughtimed/internal/wire"

// Delegation is the DELE message: a long-term key's grant of signing
// authority to an online key for the closed validity window
// [MinUnixSeconds, MaxUnixSeconds].
type Delegation struct {
	PublicKey     PublicKey
	MinUnixSeconds uint64
	MaxUnixSeconds uint64
}

// ValidAt reports whether the delegation covers unixSeconds.
func (d Delegation) ValidAt(unixSeconds uint64) bool {
	return unixSeconds >= d.MinUnixSeconds && unixSeconds <= d.MaxUnixSeconds
}

func (d Delegation) encode(e *wire.Encoder) {
	e.Bytes32(wire.PUBK, [32]byte(d.PublicKey))
	e.Uint64(wire.MINT, d.MinUnixSeconds)
	e.Uint64(wire.MAXT, d.MaxUnixSeconds)
}

func decodeDelegation(d *wire.Decoder) Delegation {
	var del Delegation
	d.Bytes32(wire.PUBK, (*[32]byte)(&del.PublicKey))
	d.Uint64(wire.MINT, &del.MinUnixSeconds)
	d.Uint64(wire.MAXT, &del.MaxUnixSeconds)
	return del
}
