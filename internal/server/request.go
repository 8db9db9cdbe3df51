package server

import (
	"net"

	"github.com/int08h/roughtimed/internal/merkle"
	"github.com/int08h/roughtimed/internal/metrics"
	"github.com/int08h/roughtimed/internal/protocol"
	"github.com/int08h/roughtimed/internal/wire"
)

// pendingClient remembers where to send a response once the batch it was
// staged into has been signed.
type pendingClient struct {
	addr  net.Addr
	nonce protocol.Nonce
}

// RequestHandler stages incoming requests into a Merkle batch. Once the
// backend has drained its socket, the Worker takes the batch via drain and
// passes it to a ResponseHandler for signing.
//
// Trees are recycled through a small free list instead of allocated per
// batch: ReturnTree puts a finished tree back once its ResponseHandler is
// done reading it, so no new Tree is allocated in steady state.
type RequestHandler struct {
	tree     *merkle.Tree
	pending  []pendingClient
	maxBatch int
	srv      protocol.SrvCommitment
	counts   metrics.RequestCounts
	free     []*merkle.Tree
}

// NewRequestHandler creates a handler whose batches never exceed maxBatch
// staged clients, matching the backend's own collect budget. srv is this
// server's own SrvCommitment (derived from its long-term public key); a
// request that names a different one is pinned to some other server and is
// dropped rather than answered (spec.md §4.5).
func NewRequestHandler(maxBatch int, srv protocol.SrvCommitment) *RequestHandler {
	return &RequestHandler{
		tree:     merkle.New(),
		pending:  make([]pendingClient, 0, maxBatch),
		maxBatch: maxBatch,
		srv:      srv,
	}
}

// ReturnTree recycles tree for the next batch. Call once the tree's root
// and paths have been consumed.
func (h *RequestHandler) ReturnTree(tree *merkle.Tree) {
	tree.Reset()
	h.free = append(h.free, tree)
}

func (h *RequestHandler) nextTree() *merkle.Tree {
	if n := len(h.free); n > 0 {
		t := h.free[n-1]
		h.free = h.free[:n-1]
		return t
	}
	return merkle.New()
}

// CollectRequest decodes one raw datagram and, if valid, stages its nonce
// into the current batch. Invalid requests are counted and dropped
// silently, matching spec.md §6's "malformed requests are not responded
// to" requirement.
func (h *RequestHandler) CollectRequest(data []byte, addr net.Addr) {
	switch {
	case len(data) < wire.RequestTotalSize:
		h.counts.Runt++
		return
	case len(data) > wire.RequestTotalSize:
		h.counts.Jumbo++
		return
	}

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		h.counts.Bad++
		return
	}

	if req.Srv != nil && *req.Srv != h.srv {
		// Client pinned its request to a different server's commitment;
		// answering would falsely vouch for that identity.
		h.counts.Bad++
		return
	}

	if len(h.pending) >= h.maxBatch {
		// Backend should never hand us more than maxBatch per collect
		// cycle, but drop rather than overrun the tree if it does.
		h.counts.Bad++
		return
	}

	h.tree.PushLeaf(req.Nonce[:])
	h.pending = append(h.pending, pendingClient{addr: addr, nonce: req.Nonce})
	h.counts.OK++
}

// Pending reports how many clients are staged in the current batch.
func (h *RequestHandler) Pending() int {
	return len(h.pending)
}

// Metrics returns the counters accumulated since the last ResetMetrics.
func (h *RequestHandler) Metrics() metrics.RequestCounts {
	return h.counts
}

// ResetMetrics zeroes the counters.
func (h *RequestHandler) ResetMetrics() {
	h.counts = metrics.RequestCounts{}
}

// drain hands back the staged clients and the tree holding their nonces,
// and starts a fresh batch. Returns nil if nothing was staged.
func (h *RequestHandler) drain() ([]pendingClient, *merkle.Tree) {
	if len(h.pending) == 0 {
		return nil, nil
	}
	pending := h.pending
	tree := h.tree
	h.pending = make([]pendingClient, 0, h.maxBatch)
	h.tree = h.nextTree()
	return pending, tree
}
