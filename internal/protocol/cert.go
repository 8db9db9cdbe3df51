package protocol

import (
	"crypto/ed25519"
	"fmt"

	"github.com/int08h/roughtimed/internal/wire"
)

// Certificate is the CERT message: a Delegation together with the long-term
// key's signature over it. SIG sorts before DELE in tag order, so it's
// written and read first even though it signs DELE's bytes.
type Certificate struct {
	Signature  Signature
	Delegation Delegation
}

// SignDelegation builds a Certificate by signing del's encoded bytes under
// the RoughTime v1 delegation signature domain with longTermPriv. Callers
// whose long-term key lives behind an opaque signer (SSH agent, KMS) should
// use DelegationSigningBytes directly instead.
func SignDelegation(longTermPriv ed25519.PrivateKey, del Delegation) Certificate {
	sig := ed25519.Sign(longTermPriv, DelegationSigningBytes(del))

	var cert Certificate
	copy(cert.Signature[:], sig)
	cert.Delegation = del
	return cert
}

// Verify reports whether cert's signature is valid under longTermPub.
func (cert Certificate) Verify(longTermPub ed25519.PublicKey) bool {
	return ed25519.Verify(longTermPub, DelegationSigningBytes(cert.Delegation), cert.Signature[:])
}

// DelegationSigningBytes returns the exact bytes a long-term key signs to
// delegate to del: the delegation domain-separation prefix followed by the
// canonical encoding of DELE's body.
func DelegationSigningBytes(del Delegation) []byte {
	buf := make([]byte, 8*3+32+8+8)
	e := wire.NewEncoder(buf, 3)
	del.encode(e)
	return append(append([]byte{}, wire.DelegationContext...), buf[:e.Len()]...)
}

func (cert Certificate) encode(e *wire.Encoder) {
	e.Bytes64(wire.SIG, [64]byte(cert.Signature))
	e.Message(wire.DELE, 3, func(sub *wire.Encoder) {
		cert.Delegation.encode(sub)
	})
}

func decodeCertificate(d *wire.Decoder) Certificate {
	var cert Certificate
	d.Bytes64(wire.SIG, (*[64]byte)(&cert.Signature))
	d.Message(wire.DELE, func(sub *wire.Decoder) {
		cert.Delegation = decodeDelegation(sub)
	})
	return cert
}

// VerifyError is returned by Response.Verify, naming which check failed.
type VerifyError string

func (e VerifyError) Error() string { return fmt.Sprintf("protocol: %s", string(e)) }
