// Package keys implements the long-term and online key hierarchy: loading a
// long-term identity from a SecretBackend, minting short-lived online keys
// under it, and producing the signed CERT/SREP values a ResponseHandler
// needs for a batch.
package keys

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/int08h/roughtimed/internal/protocol"
)

// ErrNotAvailable is returned by a backend constructor when the requested
// backend can't be reached (e.g. no ssh-agent socket, KMS call failed).
var ErrNotAvailable = errors.New("keys: backend not available")

// SecretBackend abstracts where the long-term private key actually lives.
// The process holds raw key material only for Memory (and KMS, which
// unseals into a Memory backend); the core only ever calls Sign and
// PublicKey (spec.md's "Secret/Signer Interface").
type SecretBackend interface {
	// Sign returns the 64-byte Ed25519 signature over message.
	Sign(message []byte) ([64]byte, error)
	// PublicKey returns the backend's Ed25519 public key.
	PublicKey() protocol.PublicKey
}

// MemoryBackend holds a plain in-process Ed25519 keypair derived from a
// 32-byte seed. It's the default backend; its private key lives
// unencrypted in process memory.
type MemoryBackend struct {
	priv ed25519.PrivateKey
	pub  protocol.PublicKey
}

// NewMemoryBackend derives a keypair from a 32-byte seed.
func NewMemoryBackend(seed [32]byte) *MemoryBackend {
	priv := ed25519.NewKeyFromSeed(seed[:])
	b := &MemoryBackend{priv: priv}
	copy(b.pub[:], priv.Public().(ed25519.PublicKey))
	return b
}

// NewMemoryBackendRandom derives a keypair from freshly generated randomness.
func NewMemoryBackendRandom() (*MemoryBackend, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("keys: generating random identity: %w", err)
	}
	b := &MemoryBackend{priv: priv}
	copy(b.pub[:], pub)
	return b, nil
}

// Sign implements SecretBackend.
func (b *MemoryBackend) Sign(message []byte) ([64]byte, error) {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(b.priv, message))
	return sig, nil
}

// PublicKey implements SecretBackend.
func (b *MemoryBackend) PublicKey() protocol.PublicKey {
	return b.pub
}
