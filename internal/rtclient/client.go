// Package rtclient is a minimal Roughtime client used only by this
// repository's own integration tests to exercise a running server
// end-to-end. It is not a supported client implementation.
package rtclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"net"
	"time"

	"github.com/int08h/roughtimed/internal/protocol"
	"github.com/int08h/roughtimed/internal/wire"
)

// Result is what a single query against a server returns.
type Result struct {
	Midpoint time.Time
	Radius   time.Duration
	Nonce    protocol.Nonce
}

// Query sends one request to addr over UDP, using a freshly generated
// random nonce, and verifies the response against longTermPub.
func Query(addr string, longTermPub ed25519.PublicKey) (Result, error) {
	var nonce protocol.Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Result{}, fmt.Errorf("rtclient: generating nonce: %w", err)
	}
	return QueryWithNonce(addr, longTermPub, nonce)
}

// QueryWithNonce is like Query but with an explicit nonce, useful for
// tests that need a deterministic or chained (see ChainedNonce)
// nonce sequence.
func QueryWithNonce(addr string, longTermPub ed25519.PublicKey, nonce protocol.Nonce) (Result, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("rtclient: resolving %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return Result{}, fmt.Errorf("rtclient: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	req := &protocol.Request{
		Versions: protocol.SupportedVersions{wire.RfcDraft14},
		Nonce:    nonce,
	}
	out := protocol.EncodeRequest(make([]byte, wire.RequestTotalSize), req)

	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return Result{}, fmt.Errorf("rtclient: setting deadline: %w", err)
	}
	if _, err := conn.Write(out); err != nil {
		return Result{}, fmt.Errorf("rtclient: sending request: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return Result{}, fmt.Errorf("rtclient: reading response: %w", err)
	}

	resp, err := protocol.DecodeResponse(buf[:n])
	if err != nil {
		return Result{}, fmt.Errorf("rtclient: decoding response: %w", err)
	}
	if err := resp.Verify(longTermPub, nonce); err != nil {
		return Result{}, fmt.Errorf("rtclient: verifying response: %w", err)
	}

	return Result{
		Midpoint: time.Unix(int64(resp.Srep.MidpointUnixSeconds), 0).UTC(),
		Radius:   time.Duration(resp.Srep.RadiusSeconds) * time.Second,
		Nonce:    nonce,
	}, nil
}

// ChainedNonce derives the next nonce in a verification chain: the prior
// response's encoded bytes, hashed with SHA-512 alongside fresh
// randomness, truncated to 32 bytes. Chaining queries this way lets a
// sequence of responses from one or more servers be checked as a single
// chain instead of trusting any one response in isolation.
func ChainedNonce(priorResponseBytes []byte, rnd [32]byte) protocol.Nonce {
	h := sha512.New()
	h.Write(priorResponseBytes)
	h.Write(rnd[:])
	sum := h.Sum(nil)

	var nonce protocol.Nonce
	copy(nonce[:], sum[:32])
	return nonce
}
