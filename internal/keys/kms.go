package keys

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// dekSizeBytes and nonceSizeBytes size the envelope: a 256-bit AES key
// wrapped by KMS, and a 96-bit GCM nonce generated fresh per encryption.
const (
	dekSizeBytes   = 32
	nonceSizeBytes = 12
	// minEnvelopeSize bounds a sanity check on ciphertext read from
	// storage: 2+2 length-prefix fields, at least one DEK/nonce byte
	// each, and a 32-byte seed plus its 16-byte GCM tag.
	minEnvelopeSize = 2 + 2 + 1 + 1 + 32 + 16
)

// envelopeAAD binds the encrypted seed to this application, so a ciphertext
// produced for another KMS-backed system under the same key can't be
// silently substituted.
var envelopeAAD = []byte("roughtimed")

// KMSClient is the subset of the AWS KMS API envelope encryption needs.
// Satisfied by *kms.Client; narrowed here so tests can supply a fake.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSBackend derives its Ed25519 identity from a seed that is stored at
// rest only as a KMS-wrapped envelope: a random 256-bit DEK seals the seed
// locally with AES-256-GCM, and only the DEK itself is sent to KMS to be
// wrapped or unwrapped. The plaintext seed exists in process memory for as
// long as the in-memory backend it's handed to (spec.md names cloud
// KMS/Secret-Manager as an out-of-scope backend the core only consumes
// through SecretBackend).
type KMSBackend struct {
	*MemoryBackend
}

// NewKMSBackendFromEnvelope unwraps envelope (as produced by
// SealSeedEnvelope) via client and keyID, derives the Ed25519 identity from
// the recovered seed, and returns a backend ready to sign.
func NewKMSBackendFromEnvelope(ctx context.Context, client KMSClient, keyID string, envelope []byte) (*KMSBackend, error) {
	seed, err := OpenSeedEnvelope(ctx, client, keyID, envelope)
	if err != nil {
		return nil, err
	}
	return &KMSBackend{MemoryBackend: NewMemoryBackend(seed)}, nil
}

// SealSeedEnvelope wraps seed for storage at rest: wraps a fresh DEK under
// keyID via KMS, seals seed with that DEK locally (AES-256-GCM), and
// concatenates everything into a single self-describing blob.
//
//	offset  size  field
//	0       2     wrapped DEK length (u16 LE)
//	2       2     nonce length (u16 LE)
//	4       n1    wrapped DEK (opaque, from KMS)
//	4+n1    n2    GCM nonce
//	4+n1+n2 rest  seed ciphertext || 16-byte GCM tag
func SealSeedEnvelope(ctx context.Context, client KMSClient, keyID string, seed [32]byte) ([]byte, error) {
	dek := make([]byte, dekSizeBytes)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("keys: generating DEK: %w", err)
	}
	nonce := make([]byte, nonceSizeBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keys: generating nonce: %w", err)
	}

	gcm, err := newGCM(dek)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, seed[:], envelopeAAD)

	wrapped, err := client.Encrypt(ctx, &kms.EncryptInput{KeyId: &keyID, Plaintext: dek})
	if err != nil {
		return nil, fmt.Errorf("keys: KMS wrapping DEK: %w", err)
	}

	out := make([]byte, 4, 4+len(wrapped.CiphertextBlob)+len(nonce)+len(ciphertext))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(wrapped.CiphertextBlob)))
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(nonce)))
	out = append(out, wrapped.CiphertextBlob...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// OpenSeedEnvelope reverses SealSeedEnvelope: unwraps the DEK via KMS, then
// opens the locally-sealed seed.
func OpenSeedEnvelope(ctx context.Context, client KMSClient, keyID string, envelope []byte) ([32]byte, error) {
	var seed [32]byte
	if len(envelope) < minEnvelopeSize {
		return seed, fmt.Errorf("keys: envelope too short: %d bytes, want at least %d", len(envelope), minEnvelopeSize)
	}

	dekLen := int(binary.LittleEndian.Uint16(envelope[0:2]))
	nonceLen := int(binary.LittleEndian.Uint16(envelope[2:4]))
	off := 4
	if off+dekLen+nonceLen > len(envelope) {
		return seed, fmt.Errorf("keys: envelope length fields overrun the blob")
	}
	wrappedDEK := envelope[off : off+dekLen]
	off += dekLen
	nonce := envelope[off : off+nonceLen]
	off += nonceLen
	ciphertext := envelope[off:]

	unwrapped, err := client.Decrypt(ctx, &kms.DecryptInput{KeyId: &keyID, CiphertextBlob: wrappedDEK})
	if err != nil {
		return seed, fmt.Errorf("keys: KMS unwrapping DEK: %w", err)
	}

	gcm, err := newGCM(unwrapped.Plaintext)
	if err != nil {
		return seed, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, envelopeAAD)
	if err != nil {
		return seed, fmt.Errorf("keys: opening sealed seed: %w", err)
	}
	if len(plaintext) != 32 {
		return seed, fmt.Errorf("keys: unsealed seed is %d bytes, want 32", len(plaintext))
	}
	copy(seed[:], plaintext)
	return seed, nil
}

// newGCM is the one place this backend reaches for crypto/aes and
// cipher.GCM directly rather than a pack dependency: DESIGN.md records why
// (no example repo demonstrates a non-stdlib local AEAD for this exact
// wrap-a-DEK shape, and the AEAD here is deliberately decoupled from KMS
// itself, which only ever sees the wrapped DEK).
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keys: AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

var _ SecretBackend = (*KMSBackend)(nil)
