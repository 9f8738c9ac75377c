package trie

import "github.com/rootchain/unitrie"

// Put inserts or replaces key with value (v1, no rent). An empty value is
// a delete (spec invariant 1, P6).
func (n *Node) Put(store Store, key []byte, value []byte) (*Node, error) {
	return n.putInternal(store, KeySliceFromKey(key), value, false, NoRent, VersionPathCompressed)
}

// PutWithRent is Put stamped with newRentTime on the affected terminal
// (and any internal node created by the split this put induces), and
// marks them as v2.
func (n *Node) PutWithRent(store Store, key []byte, value []byte, newRentTime int64) (*Node, error) {
	return n.putInternal(store, KeySliceFromKey(key), value, false, newRentTime, VersionRent)
}

// Delete removes key (equivalent to Put(key, empty)).
func (n *Node) Delete(store Store, key []byte) (*Node, error) {
	return n.putInternal(store, KeySliceFromKey(key), nil, false, NoRent, VersionPathCompressed)
}

// DeleteRecursive removes the entire subtree rooted at key. key must
// identify an exact node; if it does not, the receiver is returned
// unchanged.
func (n *Node) DeleteRecursive(store Store, key []byte) (*Node, error) {
	return n.putInternal(store, KeySliceFromKey(key), nil, true, NoRent, VersionPathCompressed)
}

// putInternal implements the spec §4.G algorithm.
func (n *Node) putInternal(store Store, key KeySlice, value []byte, isRecursiveDelete bool, newRent int64, version byte) (*Node, error) {
	p := n.sharedPath
	common := key.CommonPrefix(p)

	if common.Length() < p.Length() {
		if len(value) == 0 {
			// Deleting a missing key (empty value is absent, invariant 1):
			// no-op, never splits (spec §9 open question, resolved: the
			// early return here means a delete of a nonexistent key can
			// never induce a transient split).
			return n, nil
		}
		splitNode, err := n.split(common)
		if err != nil {
			return nil, err
		}
		stampedRent := newRent
		stampedVersion := byte(VersionPathCompressed)
		if newRent != NoRent {
			stampedVersion = VersionRent
		}
		splitNode.rentTime = stampedRent
		splitNode.version = stampedVersion
		return splitNode.putInternal(store, key, value, isRecursiveDelete, newRent, version)
	}

	if p.Length() >= key.Length() {
		if isRecursiveDelete {
			// key addresses this node exactly: drop it and its whole
			// subtree, whether or not it carries a value of its own.
			if n.IsEmptyTrie() {
				return n, nil
			}
			return NewEmptyTrie(), nil
		}
		if sameBytes(value, n.value) && !n.HasLongValue() && newRent == n.rentTime {
			return n, nil
		}
		if len(value) == 0 {
			if n.left.IsEmpty() && n.right.IsEmpty() {
				return NewEmptyTrie(), nil
			}
			coalesced, err := n.tryCoalesce(store, p, n.left, n.right)
			if err != nil {
				return nil, err
			}
			if coalesced != nil {
				return coalesced, nil
			}
			return n.withValue(nil, newRent, version)
		}
		result := newNode(p, copyBytes(value), uint32(len(value)), nil, n.left, n.right, version, newRent)
		result.childrenSize = n.childrenSize
		return result, nil
	}

	if n.IsEmptyTrie() {
		if len(value) == 0 {
			return n, nil
		}
		return NewTerminalNode(key, copyBytes(value), version, newRent), nil
	}

	bit := key.Get(p.Length())
	child, err := n.child(bit).GetNode(store)
	if err != nil {
		return nil, err
	}
	if child == nil {
		child = NewEmptyTrie()
	}
	newChild, err := child.putInternal(store, key.Slice(p.Length()+1, key.Length()), value, isRecursiveDelete, newRent, version)
	if err != nil {
		return nil, err
	}
	if newChild == child {
		return n, nil
	}

	left, right := n.left, n.right
	var newChildRef NodeReference
	if newChild.IsEmptyTrie() {
		newChildRef = NodeReferenceEmpty()
	} else {
		newChildRef = NodeReferenceToNode(newChild)
	}
	if bit == 0 {
		left = newChildRef
	} else {
		right = newChildRef
	}

	if n.value == nil && n.valueLength == 0 && left.IsEmpty() && right.IsEmpty() {
		return NewEmptyTrie(), nil
	}
	if n.value == nil && n.valueLength == 0 {
		coalesced, err := n.tryCoalesce(store, p, left, right)
		if err != nil {
			return nil, err
		}
		if coalesced != nil {
			return coalesced, nil
		}
	}

	result := newNode(p, n.value, n.valueLength, n.valueHash, left, right, n.version, n.rentTime)
	size, err := aggregateChildrenSize(store, left, right)
	if err != nil {
		return nil, err
	}
	result.childrenSize = size
	return result, nil
}

// aggregateChildrenSize computes a node's childrenSize field: the combined
// reference cost plus descendant aggregate of both children. An unchanged
// sibling may still be hash-only and unresolved at this point, so it is
// fetched through store — childrenSize is a component of the node's own
// hash (invariant 5) and must reflect the sibling's true size even when
// the mutation never otherwise needed to descend into it.
func aggregateChildrenSize(store NodeStore, left, right NodeReference) (uint64, error) {
	var total uint64
	for _, ref := range [2]NodeReference{left, right} {
		if ref.IsEmpty() {
			continue
		}
		total += ref.ReferenceSize64()
		child, err := ref.GetNode(store)
		if err != nil {
			return 0, err
		}
		if child != nil {
			total += child.childrenSize
		}
	}
	return total, nil
}

// split creates a new internal node at common-prefix boundary C: the
// existing node's remaining path/value/children move into a freshly
// created child, and the receiver's former position becomes a value-less
// internal node with sharedPath = C (spec §4.G split).
func (n *Node) split(c KeySlice) (*Node, error) {
	unitrie.Assert(c.Length() < n.sharedPath.Length(), "split: common prefix must be strictly shorter than sharedPath")
	childPath := n.sharedPath.Slice(c.Length()+1, n.sharedPath.Length())
	child := newNode(childPath, n.value, n.valueLength, n.valueHash, n.left, n.right, n.version, n.rentTime)
	child.childrenSize = n.childrenSize

	bit := n.sharedPath.Get(c.Length())
	var left, right NodeReference
	if bit == 0 {
		left = NodeReferenceToNode(child)
	} else {
		right = NodeReferenceToNode(child)
	}
	parent := newNode(c, nil, 0, nil, left, right, n.version, n.rentTime)
	parent.childrenSize = left.ReferenceSize64() + right.ReferenceSize64() + child.childrenSize
	return parent, nil
}

// tryCoalesce folds a value-less node with exactly one non-empty child
// into that child, prepending parentPath ∥ implicitBit to the child's
// sharedPath (spec §4.G coalesce rule, invariant 2). Returns (nil, nil)
// if the node does not qualify (zero or two non-empty children). The
// sole child may still be hash-only at this point (a direct value-delete
// never otherwise needed to descend into it), so it is resolved through
// store here.
func (n *Node) tryCoalesce(store NodeStore, parentPath KeySlice, left, right NodeReference) (*Node, error) {
	var bit byte
	var only NodeReference
	switch {
	case left.IsEmpty() == right.IsEmpty():
		return nil, nil // zero or two children: not a coalesce candidate
	case !left.IsEmpty():
		bit, only = 0, left
	default:
		bit, only = 1, right
	}
	child, err := only.GetNode(store)
	if err != nil {
		return nil, err
	}
	unitrie.Assert(child != nil, "tryCoalesce: a present reference must resolve to a node")
	newPath := parentPath.RebuildSharedPath(bit, child.sharedPath)
	folded := newNode(newPath, child.value, child.valueLength, child.valueHash, child.left, child.right, child.version, child.rentTime)
	folded.childrenSize = child.childrenSize
	return folded, nil
}

// withValue rebuilds the receiver with a new value (or no value) and rent
// stamp, carrying its unchanged children — and their already-aggregated
// childrenSize — forward untouched.
func (n *Node) withValue(value []byte, newRent int64, version byte) (*Node, error) {
	result := newNode(n.sharedPath, copyBytes(value), uint32(len(value)), nil, n.left, n.right, version, newRent)
	result.childrenSize = n.childrenSize
	return result, nil
}

func sameBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if a == nil || b == nil {
		return len(a) == len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReferenceSize64 is ReferenceSize widened to uint64, for childrenSize
// accumulation.
func (r NodeReference) ReferenceSize64() uint64 {
	return uint64(r.ReferenceSize())
}

