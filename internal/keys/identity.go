package keys

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/int08h/roughtimed/internal/clock"
	"github.com/int08h/roughtimed/internal/protocol"
	"github.com/int08h/roughtimed/internal/wire"
)

// DefaultRadiusSeconds is the fixed uncertainty radius this server reports
// in every SREP, reflecting signing and network jitter (spec.md §4.4).
const DefaultRadiusSeconds = 5

// LongTermIdentity is the server's persistent Ed25519 identity. It is
// loaded once at startup and never rotated; only OnlineKey is short-lived.
type LongTermIdentity struct {
	backend  SecretBackend
	version  wire.Version
	versions protocol.SupportedVersions
}

// NewLongTermIdentity wraps backend as the server's long-term identity,
// speaking version and advertising versions as its supported set.
func NewLongTermIdentity(version wire.Version, versions protocol.SupportedVersions, backend SecretBackend) *LongTermIdentity {
	return &LongTermIdentity{backend: backend, version: version, versions: versions}
}

// PublicKey returns the long-term public key; this is the server's
// identity as clients know it (and as ComputeSrvCommitment hashes).
func (l *LongTermIdentity) PublicKey() protocol.PublicKey {
	return l.backend.PublicKey()
}

// MintOnlineKey generates a fresh online keypair, delegates to it for
// [now, now+validity], and signs the delegation with the long-term key.
// Each rotation calls this again; the previous OnlineKey's private material
// is simply dropped by the caller (Go's GC reclaims it; there's no
// in-process secret store to scrub beyond that).
func (l *LongTermIdentity) MintOnlineKey(now clock.Source, validity time.Duration) (*OnlineKey, error) {
	onlinePub, onlinePriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("keys: generating online keypair: %w", err)
	}

	mint := now.EpochSeconds()
	var pk protocol.PublicKey
	copy(pk[:], onlinePub)
	del := protocol.Delegation{
		PublicKey:      pk,
		MinUnixSeconds: mint,
		MaxUnixSeconds: mint + uint64(validity.Seconds()),
	}

	sig, err := l.backend.Sign(protocol.DelegationSigningBytes(del))
	if err != nil {
		return nil, fmt.Errorf("keys: signing delegation: %w", err)
	}
	cert := protocol.Certificate{Signature: protocol.Signature(sig), Delegation: del}

	return &OnlineKey{
		priv:     onlinePriv,
		cert:     cert,
		version:  l.version,
		versions: l.versions,
	}, nil
}

// OnlineKey is the short-lived Ed25519 key that actually signs SREPs. It
// carries the CERT binding it to the long-term identity so every response
// can include proof of delegation without a second round trip.
type OnlineKey struct {
	priv     ed25519.PrivateKey
	cert     protocol.Certificate
	version  wire.Version
	versions protocol.SupportedVersions
}

// Cert returns the CERT to attach to every response signed by this key,
// until the next rotation replaces it.
func (o *OnlineKey) Cert() protocol.Certificate {
	return o.cert
}

// ValidAt reports whether this online key's delegation still covers
// unixSeconds.
func (o *OnlineKey) ValidAt(unixSeconds uint64) bool {
	return o.cert.Delegation.ValidAt(unixSeconds)
}

// MakeSrep builds and signs the SREP for a batch whose Merkle root is root,
// sampling MIDP from now. This is the one Ed25519 sign call per batch
// (spec.md §4.6): the resulting SignedResponse and Signature are shared
// verbatim across every response in the batch.
func (o *OnlineKey) MakeSrep(now clock.Source, root protocol.MerkleRoot) (protocol.SignedResponse, protocol.Signature) {
	srep := protocol.SignedResponse{
		Version:             o.version,
		RadiusSeconds:       DefaultRadiusSeconds,
		MidpointUnixSeconds: now.EpochSeconds(),
		Versions:            o.versions,
		Root:                root,
	}
	sig := protocol.SignSrep(o.priv, srep)
	return srep, sig
}
