package server

import (
	"time"

	"github.com/int08h/roughtimed/internal/clock"
	"github.com/int08h/roughtimed/internal/keys"
	"github.com/int08h/roughtimed/internal/merkle"
	"github.com/int08h/roughtimed/internal/protocol"
)

// ResponseHandler owns the currently-minted online key and turns a drained
// batch into one signed Response per client. It is not safe for concurrent
// use; each Worker owns one.
type ResponseHandler struct {
	long     *keys.LongTermIdentity
	clk      clock.Source
	validity time.Duration
	onl      *keys.OnlineKey
}

// NewResponseHandler mints an initial online key immediately so the first
// batch the worker drains already has something to sign with.
func NewResponseHandler(long *keys.LongTermIdentity, clk clock.Source, validity time.Duration) (*ResponseHandler, error) {
	h := &ResponseHandler{long: long, clk: clk, validity: validity}
	if err := h.RotateOnlineKey(); err != nil {
		return nil, err
	}
	return h, nil
}

// RotateOnlineKey mints a fresh online key, replacing the current one.
// Clients mid-flight on the old key stay valid until its MAXT lapses; the
// old signing material is simply dropped since it's never persisted.
func (h *ResponseHandler) RotateOnlineKey() error {
	onl, err := h.long.MintOnlineKey(h.clk, h.validity)
	if err != nil {
		return err
	}
	h.onl = onl
	return nil
}

// PublicKey returns the long-term identity's public key, reported in logs
// and to clients that want to pin the server's identity out of band.
func (h *ResponseHandler) PublicKey() protocol.PublicKey {
	return h.long.PublicKey()
}

// SignBatch computes the batch's Merkle root, signs one SREP covering the
// whole batch, and returns an encoded Response for every staged client in
// the same order as pending.
func (h *ResponseHandler) SignBatch(pending []pendingClient, tree *merkle.Tree) [][]byte {
	root := protocol.MerkleRoot(tree.ComputeRoot())
	srep, sig := h.onl.MakeSrep(h.clk, root)
	cert := h.onl.Cert()

	out := make([][]byte, len(pending))
	for i := range pending {
		path, combineIndex := tree.Path(i)
		resp := protocol.Response{
			Signature: sig,
			Path:      path,
			Srep:      srep,
			Cert:      cert,
			Index:     uint32(combineIndex),
		}
		// Every fixed-size part of a response fits in 1024 bytes; only
		// PATH grows with the batch.
		out[i] = resp.Encode(make([]byte, 1024+64*len(path)))
	}
	return out
}
