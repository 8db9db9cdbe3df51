// Package merkle implements the binary SHA-512 Merkle tree a ResponseHandler
// builds once per batch: every client nonce in the batch becomes a leaf, the
// batch is committed to a single root, and each client gets back a sibling
// path proving its nonce was included under that root.
package merkle

import "crypto/sha512"

// leafTweak and nodeTweak domain-separate leaf hashes from internal node
// hashes so an internal node can never be replayed as a leaf or vice versa.
const (
	leafTweak = byte(0x00)
	nodeTweak = byte(0x01)
)

// Tree is a single-owner, reusable Merkle tree. Workers keep one per batch
// slot and Reset it between batches instead of allocating a new one
// (spec.md §5: "no allocation in steady state").
type Tree struct {
	leaves [][64]byte
	levels [][][64]byte // levels[0] == leaves; built by ComputeRoot
}

// New returns an empty Tree ready for PushLeaf.
func New() *Tree {
	return &Tree{}
}

// PushLeaf hashes raw as a leaf and appends it, returning its index.
func (t *Tree) PushLeaf(raw []byte) int {
	t.leaves = append(t.leaves, hashLeaf(raw))
	return len(t.leaves) - 1
}

// Len reports the number of leaves pushed since the last Reset.
func (t *Tree) Len() int {
	return len(t.leaves)
}

// Reset clears the tree's leaves but keeps the underlying slice capacity,
// so the next batch doesn't force a fresh allocation.
func (t *Tree) Reset() {
	t.leaves = t.leaves[:0]
	t.levels = t.levels[:0]
}

// ComputeRoot builds the tree bottom-up from the current leaves and returns
// the root hash. It's idempotent: calling it again without pushing or
// resetting returns the same root without redoing the work.
func (t *Tree) ComputeRoot() [64]byte {
	if len(t.levels) > 0 && len(t.levels[0]) == len(t.leaves) {
		top := t.levels[len(t.levels)-1]
		return top[0]
	}
	if len(t.leaves) == 0 {
		return [64]byte{}
	}

	t.levels = t.levels[:0]
	t.levels = append(t.levels, t.leaves)
	cur := t.leaves
	for len(cur) > 1 {
		next := make([][64]byte, 0, (len(cur)+1)/2)
		for i := 0; i+1 < len(cur); i += 2 {
			next = append(next, hashNode(cur[i], cur[i+1]))
		}
		if len(cur)%2 == 1 {
			// Odd node at this level is carried up unchanged, not
			// duplicated.
			next = append(next, cur[len(cur)-1])
		}
		t.levels = append(t.levels, next)
		cur = next
	}
	return cur[0]
}

// Path returns the authentication path for leaf index: the sibling hash at
// every level from the leaf up to (but not including) the root, skipping
// any level where index's node was the odd one out and carried up unchanged
// (it has no sibling to record). It also returns a packed combine-index
// whose bit i gives the side of path[i] (bit 0 means the accumulated hash is
// on the left), recorded only for levels that actually emitted a path
// entry. Passing the raw leaf index to VerifyPath instead of this packed
// value misaligns as soon as a level is skipped, since skipped levels leave
// no entry in path but still shift every following level's parity. The path
// is empty when the tree has a single leaf. ComputeRoot must have been
// called first.
func (t *Tree) Path(index int) (path [][64]byte, combineIndex uint64) {
	idx := index
	var bit uint
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		sibling := idx ^ 1
		if sibling < len(nodes) {
			path = append(path, nodes[sibling])
			if idx&1 != 0 {
				combineIndex |= 1 << bit
			}
			bit++
		}
		// else: idx was the odd one out and was carried up unchanged;
		// it contributes nothing to the path at this level.
		idx /= 2
	}
	return path, combineIndex
}

// VerifyPath recomputes the root from a leaf hash, its authentication path,
// and the packed combine-index Path returned alongside it, and reports
// whether it matches root. combineIndex's bits choose, in path order,
// whether each sibling is the left or right neighbor of the accumulated
// hash: bit 0 means the accumulated hash is on the left.
func VerifyPath(leaf [64]byte, path [][64]byte, combineIndex uint64, root [64]byte) bool {
	hash := leaf
	idx := combineIndex
	for _, sib := range path {
		if idx&1 == 0 {
			hash = hashNode(hash, sib)
		} else {
			hash = hashNode(sib, hash)
		}
		idx >>= 1
	}
	return hash == root
}

// LeafHash exposes the leaf hash function so verifiers that never built a
// Tree (e.g. client-side verification) can hash a nonce the same way.
func LeafHash(raw []byte) [64]byte {
	return hashLeaf(raw)
}

func hashLeaf(b []byte) [64]byte {
	h := sha512.New()
	h.Write([]byte{leafTweak})
	h.Write(b)
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashNode(l, r [64]byte) [64]byte {
	h := sha512.New()
	h.Write([]byte{nodeTweak})
	h.Write(l[:])
	h.Write(r[:])
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}
