package keys

import (
	"crypto/ed25519"
	"testing"
)

func TestMemoryBackendSignVerifies(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}
	b := NewMemoryBackend(seed)

	msg := []byte("hello roughtime")
	sig, err := b.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	pub := b.PublicKey()
	if !ed25519.Verify(pub[:], msg, sig[:]) {
		t.Error("signature did not verify under the backend's reported public key")
	}
}

func TestMemoryBackendDeterministicFromSeed(t *testing.T) {
	var seed [32]byte
	seed[0] = 0x42
	b1 := NewMemoryBackend(seed)
	b2 := NewMemoryBackend(seed)
	if b1.PublicKey() != b2.PublicKey() {
		t.Error("same seed produced different public keys")
	}
}

func TestMemoryBackendRandomDiffers(t *testing.T) {
	b1, err := NewMemoryBackendRandom()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := NewMemoryBackendRandom()
	if err != nil {
		t.Fatal(err)
	}
	if b1.PublicKey() == b2.PublicKey() {
		t.Error("two random backends produced the same public key")
	}
}
