package trie

import "github.com/rootchain/unitrie"

// NodeReference is a lazy handle to a child: empty, hash-only (fetch on
// demand), or embedded (the child is inlined and carries no hash of its
// own). Modeled as a small tagged struct rather than an interface
// hierarchy (spec §9 design notes).
//
// A reference created by the Mutator for a just-modified child always
// starts out holding the concrete child Node (resolved != nil, hash ==
// nil) — there is nothing to fetch, the body is already in memory. A
// reference decoded from storage holds either a concrete embedded Node
// (resolved != nil, produced by parsing inline bytes, no hash recorded
// because embedded children are not separately hashed) or only a hash
// (resolved == nil); GetNode lazily fetches and decodes in the latter
// case and memoizes the result into resolved. That memoization does not
// change what the reference means — it is a cache of a pure function —
// so it is safe under the single-writer model (spec §5, §9).
type NodeReference struct {
	present  bool
	resolved *Node
	hash     []byte
}

// NodeReferenceEmpty is the empty reference.
func NodeReferenceEmpty() NodeReference {
	return NodeReference{}
}

// NodeReferenceToNode wraps a just-created or just-decoded in-memory node.
func NodeReferenceToNode(n *Node) NodeReference {
	if n == nil {
		return NodeReferenceEmpty()
	}
	return NodeReference{present: true, resolved: n}
}

// NodeReferenceToHash wraps a hash-only reference to an unfetched child.
func NodeReferenceToHash(hash []byte) NodeReference {
	unitrie.Assert(len(hash) == 32, "NodeReferenceToHash: hash must be 32 bytes, got %d", len(hash))
	return NodeReference{present: true, hash: hash}
}

func (r NodeReference) IsEmpty() bool {
	return !r.present
}

// IsEmbedded reports whether this reference's current in-memory node
// would be inlined into the parent's encoding: it must be resolved,
// terminal, and fit within MaxEmbeddedNodeSize once serialized. A
// reference that is only a hash (never resolved) is never embedded — by
// invariant 4, anything embeddable was already embedded at the point it
// was last encoded, so an unresolved hash-only reference is, by
// construction, too large to embed.
func (r NodeReference) IsEmbedded() bool {
	if !r.present || r.resolved == nil {
		return false
	}
	return r.resolved.IsEmbeddable()
}

// GetNode resolves the reference to a concrete Node, fetching and
// decoding from store if the reference is hash-only and not yet cached.
func (r *NodeReference) GetNode(store NodeStore) (*Node, error) {
	if !r.present {
		return nil, nil
	}
	if r.resolved != nil {
		return r.resolved, nil
	}
	raw, err := store.RetrieveNode(r.hash)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, unitrie.WrapMissing(r.hash)
	}
	n, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	r.resolved = n
	return n, nil
}

// Hash returns the reference's hash, computing it from the resolved node
// if necessary (and caching it back onto the node, not the reference).
func (r NodeReference) Hash() []byte {
	if !r.present {
		return nil
	}
	if r.resolved != nil {
		return r.resolved.Hash()
	}
	return r.hash
}

// ReferenceSize is the byte cost this reference contributes to its
// parent's encoding: 0 if empty, 1 (length prefix) + embedded body if
// embedded, 32 (a hash) otherwise.
func (r NodeReference) ReferenceSize() int {
	if !r.present {
		return 0
	}
	if r.IsEmbedded() {
		return 1 + r.resolved.EncodedSize()
	}
	return 32
}

// GetHashLegacy returns the v0-format hash of the referenced node, for
// historical root recomputation, fetching the node if only a v1/v2 hash
// is known. Returns (nil, false) for an empty reference.
func (r *NodeReference) GetHashLegacy(store NodeStore, isSecure bool) ([]byte, bool, error) {
	if !r.present {
		return nil, false, nil
	}
	n, err := r.GetNode(store)
	if err != nil {
		return nil, false, err
	}
	h, err := n.HashLegacy(store, isSecure)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}
