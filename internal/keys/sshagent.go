package keys

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/int08h/roughtimed/internal/protocol"
)

// SSHAgentBackend signs with a long-term Ed25519 key held by a running
// ssh-agent, so the raw key material never enters this process at all
// (spec.md's "out of scope... SSH agent" secret backend).
type SSHAgentBackend struct {
	agent agent.ExtendedAgent
	conn  net.Conn
	key   ssh.PublicKey
	pub   protocol.PublicKey
}

// NewSSHAgentBackend connects to the agent at socketPath (SSH_AUTH_SOCK if
// empty) and selects the first Ed25519 identity matching comment, or the
// first Ed25519 identity the agent lists if comment is empty.
func NewSSHAgentBackend(socketPath, comment string) (*SSHAgentBackend, error) {
	if socketPath == "" {
		socketPath = os.Getenv("SSH_AUTH_SOCK")
	}
	if socketPath == "" {
		return nil, fmt.Errorf("%w: SSH_AUTH_SOCK is not set", ErrNotAvailable)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing ssh-agent: %v", ErrNotAvailable, err)
	}

	a := agent.NewClient(conn)
	keys, err := a.List()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("keys: listing ssh-agent identities: %w", err)
	}

	var selected *agent.Key
	for _, k := range keys {
		if k.Type() != ssh.KeyAlgoED25519 {
			continue
		}
		if comment == "" || k.Comment == comment {
			selected = k
			break
		}
	}
	if selected == nil {
		conn.Close()
		return nil, fmt.Errorf("%w: no matching ed25519 identity in ssh-agent", ErrNotAvailable)
	}

	pubKey, err := ssh.ParsePublicKey(selected.Marshal())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("keys: parsing ssh-agent public key: %w", err)
	}

	b := &SSHAgentBackend{agent: a, conn: conn, key: pubKey}
	copy(b.pub[:], extractEd25519RawKey(pubKey))
	return b, nil
}

// Close releases the connection to the agent.
func (b *SSHAgentBackend) Close() error {
	return b.conn.Close()
}

// Sign implements SecretBackend by asking the agent to sign message with
// our selected identity.
func (b *SSHAgentBackend) Sign(message []byte) ([64]byte, error) {
	sig, err := b.agent.Sign(b.key, message)
	if err != nil {
		return [64]byte{}, fmt.Errorf("keys: ssh-agent sign: %w", err)
	}
	var out [64]byte
	if len(sig.Blob) != 64 {
		return out, fmt.Errorf("keys: ssh-agent returned a %d-byte signature, want 64", len(sig.Blob))
	}
	copy(out[:], sig.Blob)
	return out, nil
}

// PublicKey implements SecretBackend.
func (b *SSHAgentBackend) PublicKey() protocol.PublicKey {
	return b.pub
}

// extractEd25519RawKey pulls the 32-byte raw Ed25519 public key out of an
// ssh.PublicKey's wire encoding (4-byte length, "ssh-ed25519", 4-byte
// length, 32-byte key).
func extractEd25519RawKey(pub ssh.PublicKey) []byte {
	wire := pub.Marshal()
	// Skip the algorithm name field (length-prefixed) to reach the key field.
	nameLen := int(wire[0])<<24 | int(wire[1])<<16 | int(wire[2])<<8 | int(wire[3])
	off := 4 + nameLen
	keyLen := int(wire[off])<<24 | int(wire[off+1])<<16 | int(wire[off+2])<<8 | int(wire[off+3])
	off += 4
	return wire[off : off+keyLen]
}
