package keys

import (
	"testing"
	"time"

	"github.com/int08h/roughtimed/internal/clock"
	"github.com/int08h/roughtimed/internal/merkle"
	"github.com/int08h/roughtimed/internal/protocol"
	"github.com/int08h/roughtimed/internal/wire"
)

func testIdentity(t *testing.T) *LongTermIdentity {
	t.Helper()
	backend, err := NewMemoryBackendRandom()
	if err != nil {
		t.Fatal(err)
	}
	return NewLongTermIdentity(wire.RfcDraft14, protocol.SupportedVersions{wire.RfcDraft14}, backend)
}

func TestMintOnlineKeyProducesVerifiableCert(t *testing.T) {
	ltk := testIdentity(t)
	mock := clock.NewMock(1_700_000_000)

	olk, err := ltk.MintOnlineKey(mock, time.Hour)
	if err != nil {
		t.Fatalf("MintOnlineKey: %v", err)
	}

	cert := olk.Cert()
	if cert.Delegation.MinUnixSeconds != 1_700_000_000 {
		t.Errorf("MINT = %d, want 1700000000", cert.Delegation.MinUnixSeconds)
	}
	if cert.Delegation.MaxUnixSeconds != 1_700_000_000+3600 {
		t.Errorf("MAXT = %d, want %d", cert.Delegation.MaxUnixSeconds, 1_700_000_000+3600)
	}
	if !cert.Verify(ed25519PubFromLongTerm(ltk)) {
		t.Error("delegation signature did not verify under the long-term public key")
	}
}

func ed25519PubFromLongTerm(ltk *LongTermIdentity) []byte {
	pk := ltk.PublicKey()
	return pk[:]
}

func TestOnlineKeyValidAtWindow(t *testing.T) {
	ltk := testIdentity(t)
	mock := clock.NewMock(1000)
	olk, err := ltk.MintOnlineKey(mock, 100*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if olk.ValidAt(999) {
		t.Error("ValidAt(999) = true, want false (before MINT)")
	}
	if !olk.ValidAt(1000) {
		t.Error("ValidAt(1000) = false, want true (at MINT)")
	}
	if !olk.ValidAt(1100) {
		t.Error("ValidAt(1100) = false, want true (at MAXT, inclusive)")
	}
	if olk.ValidAt(1101) {
		t.Error("ValidAt(1101) = true, want false (just past MAXT)")
	}
}

func TestMakeSrepProducesVerifiableSignature(t *testing.T) {
	ltk := testIdentity(t)
	mock := clock.NewMock(5000)
	olk, err := ltk.MintOnlineKey(mock, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tree := merkle.New()
	tree.PushLeaf([]byte("nonce-a-nonce-a-nonce-a-nonce-aa"))
	tree.PushLeaf([]byte("nonce-b-nonce-b-nonce-b-nonce-bb"))
	root := tree.ComputeRoot()

	mock.Advance(10 * time.Second)
	srep, sig := olk.MakeSrep(mock, protocol.MerkleRoot(root))

	if srep.MidpointUnixSeconds != 5010 {
		t.Errorf("MIDP = %d, want 5010", srep.MidpointUnixSeconds)
	}
	if srep.RadiusSeconds != DefaultRadiusSeconds {
		t.Errorf("RADI = %d, want %d", srep.RadiusSeconds, DefaultRadiusSeconds)
	}

	path, combineIndex := tree.Path(0)
	resp := protocol.Response{
		Signature: sig,
		Path:      path,
		Srep:      srep,
		Cert:      olk.Cert(),
		Index:     uint32(combineIndex),
	}
	var nonce protocol.Nonce
	copy(nonce[:], "nonce-a-nonce-a-nonce-a-nonce-aa")
	if err := resp.Verify(ed25519PubFromLongTerm(ltk), nonce); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
