package trie

import "github.com/rootchain/unitrie"

const (
	// Arity is the trie's branching factor (spec §3 constants).
	Arity = 2

	// MaxEmbeddedNodeSize is the largest encoded size, in bytes, a
	// terminal node may have and still be inlined into its parent's
	// encoding instead of referenced by hash.
	MaxEmbeddedNodeSize = 52

	// LongValueThreshold: values longer than this are externalized and
	// addressed by their own Keccak-256 hash instead of being inlined in
	// the node encoding.
	LongValueThreshold = 32

	// NoRent is the sentinel lastRentPaidTime meaning "unset / not
	// applicable" — v0/v1 nodes and certain transient nodes carry it.
	NoRent int64 = -1

	// VersionLegacy, VersionPathCompressed, VersionRent are the three
	// node format versions (spec §4.F).
	VersionLegacy         byte = 0
	VersionPathCompressed byte = 1
	VersionRent           byte = 2
)

// Node is the immutable trie node (component E). Nodes are value objects:
// every mutation (Put, Delete, Split, coalesce) produces a new Node — the
// receiver is never modified in place. Unchanged subtrees are shared by
// reference across versions.
type Node struct {
	sharedPath KeySlice

	// value is nil when the value is absent (see IsEmptyTrie) or when it
	// is long and has not been materialized yet; in the latter case
	// valueLength > 0 and valueHash is always set (invariant 3).
	value       []byte
	valueLength uint32
	valueHash   []byte

	left, right NodeReference

	// childrenSize is the aggregate serialized byte size of this node's
	// descendants (zero for terminals). It is written into the v1/v2
	// encoding of any node with children, so it is part of the node's
	// hash (invariant 5), and splits and coalesces carry it forward.
	childrenSize uint64

	version  byte
	rentTime int64 // NoRent (-1) sentinel for v0/v1

	// caches
	hash       []byte
	hashLegacy []byte
	encoded    []byte
}

// NewEmptyTrie returns the unique empty-trie node: empty sharedPath, no
// value, no children.
func NewEmptyTrie() *Node {
	return &Node{
		sharedPath: KeySliceEmpty(),
		rentTime:   NoRent,
		version:    VersionPathCompressed,
	}
}

// newNode constructs a node from fully-specified fields.
func newNode(sharedPath KeySlice, value []byte, valueLength uint32, valueHash []byte, left, right NodeReference, version byte, rentTime int64) *Node {
	n := &Node{
		sharedPath:  sharedPath,
		value:       value,
		valueLength: valueLength,
		valueHash:   valueHash,
		left:        left,
		right:       right,
		version:     version,
		rentTime:    rentTime,
	}
	if value != nil {
		n.valueLength = uint32(len(value))
		n.valueHash = nil
	}
	return n
}

// NewTerminalNode builds a terminal (no children) node carrying value,
// used by the Mutator when inserting a new key.
func NewTerminalNode(sharedPath KeySlice, value []byte, version byte, rentTime int64) *Node {
	return newNode(sharedPath, value, uint32(len(value)), nil, NodeReferenceEmpty(), NodeReferenceEmpty(), version, rentTime)
}

// SharedPath, Value*, Left/Right accessors (spec §6 "Public Node surface").

func (n *Node) SharedPath() KeySlice { return n.sharedPath }

func (n *Node) ValueLength() int { return int(n.valueLength) }

func (n *Node) Version() byte { return n.version }

func (n *Node) LastRentPaidTime() int64 { return n.rentTime }

func (n *Node) ChildrenSize() uint64 { return n.childrenSize }

func (n *Node) Left() NodeReference  { return n.left }
func (n *Node) Right() NodeReference { return n.right }

// IsTerminal reports whether the node has no children.
func (n *Node) IsTerminal() bool {
	return n.left.IsEmpty() && n.right.IsEmpty()
}

// IsEmptyTrie reports whether n is structurally indistinguishable from
// absence (invariant 1).
func (n *Node) IsEmptyTrie() bool {
	return n.valueLength == 0 && n.left.IsEmpty() && n.right.IsEmpty()
}

// IsEmbeddable reports whether n qualifies to be inlined into a parent's
// encoding: terminal and small enough (invariant 4).
func (n *Node) IsEmbeddable() bool {
	return n.IsTerminal() && n.EncodedSize() <= MaxEmbeddedNodeSize
}

// HasLongValue reports whether the value is externalized (> 32 bytes).
func (n *Node) HasLongValue() bool {
	return n.valueLength > LongValueThreshold
}

// ValueHash returns the Keccak-256 of the value, computing and caching it
// on demand.
func (n *Node) ValueHash() []byte {
	if n.valueHash == nil && n.valueLength > 0 {
		unitrie.Assert(n.value != nil, "ValueHash: value not materialized and no cached hash (invariant 3 violated)")
		n.valueHash = keccak256(n.value)
	}
	return n.valueHash
}

// Value returns the node's materialized value, fetching a long value from
// store on first access and caching it.
func (n *Node) Value(store ValueStore) ([]byte, error) {
	if n.value == nil && n.valueLength > 0 {
		unitrie.Assert(n.valueHash != nil, "Value: long value with no valueHash (invariant 3 violated)")
		v, err := store.RetrieveValue(n.valueHash)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, unitrie.WrapMissing(n.valueHash)
		}
		if uint32(len(v)) != n.valueLength {
			return nil, unitrie.ErrInvalidValueLength
		}
		n.value = v
	}
	if n.value == nil {
		return nil, nil
	}
	cp := make([]byte, len(n.value))
	copy(cp, n.value)
	return cp, nil
}

// child returns the reference on the side selected by bit (0 => left, 1
// => right).
func (n *Node) child(bit byte) *NodeReference {
	if bit == 0 {
		return &n.left
	}
	return &n.right
}

// Get returns the value associated with key, or (nil, nil) if absent.
func (n *Node) Get(store Store, key []byte) ([]byte, error) {
	node, err := n.Find(store, KeySliceFromKey(key))
	if err != nil || node == nil {
		return nil, err
	}
	return node.Value(store)
}

// Find returns the node exactly matching key, or (nil, nil) if the key
// does not exist.
func (n *Node) Find(store Store, key KeySlice) (*Node, error) {
	if n.sharedPath.Length() > key.Length() {
		return nil, nil
	}
	common := key.CommonPrefix(n.sharedPath)
	if common.Length() < n.sharedPath.Length() {
		return nil, nil
	}
	if common.Length() == key.Length() {
		if n.IsEmptyTrie() {
			return nil, nil
		}
		return n, nil
	}
	bit := key.Get(common.Length())
	child, err := n.child(bit).GetNode(store)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, nil
	}
	return child.Find(store, key.Slice(common.Length()+1, key.Length()))
}

// GetNodes returns the nodes traversed from root to the node resolving
// key, leaf-first, or (nil, nil) if key does not exist (spec §4.H).
func (n *Node) GetNodes(store Store, key []byte) ([]*Node, error) {
	ks := KeySliceFromKey(key)
	var path []*Node
	cur := n
	for {
		if cur.sharedPath.Length() > ks.Length() {
			return nil, nil
		}
		common := ks.CommonPrefix(cur.sharedPath)
		if common.Length() < cur.sharedPath.Length() {
			return nil, nil
		}
		if common.Length() == ks.Length() {
			if cur.IsEmptyTrie() {
				return nil, nil
			}
			path = append(path, cur)
			break
		}
		path = append(path, cur)
		bit := ks.Get(common.Length())
		child, err := cur.child(bit).GetNode(store)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		ks = ks.Slice(common.Length()+1, ks.Length())
		cur = child
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// TrieSize returns the count of nodes in the materialized subtree rooted
// at n, fetching hash-only children through store as needed.
func (n *Node) TrieSize(store NodeStore) (int, error) {
	if n.IsEmptyTrie() {
		return 0, nil
	}
	size := 1
	for _, bit := range [2]byte{0, 1} {
		child, err := n.child(bit).GetNode(store)
		if err != nil {
			return 0, err
		}
		if child != nil {
			s, err := child.TrieSize(store)
			if err != nil {
				return 0, err
			}
			size += s
		}
	}
	return size, nil
}

// CollectKeys returns the set of keys whose byte length is at most
// maxBytes (a negative maxBytes means "no limit"), keyed by their raw
// bytes. Hash-only children are force-loaded through store: collectKeys
// must report a complete key set, and silently skipping an
// unmaterialized subtree would under-report it (spec §9 open question,
// resolved in SPEC_FULL.md §12).
func (n *Node) CollectKeys(store NodeStore, maxBytes int) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if n.IsEmptyTrie() {
		return out, nil
	}
	err := n.collectKeys(store, KeySliceEmpty(), maxBytes, out)
	return out, err
}

func (n *Node) collectKeys(store NodeStore, prefix KeySlice, maxBytes int, out map[string][]byte) error {
	full := prefix.Concat(n.sharedPath)
	if n.valueLength > 0 && full.Length()%8 == 0 && (maxBytes < 0 || full.Length()/8 <= maxBytes) {
		k := full.Encode()
		out[string(k)] = k
	}
	for _, bit := range [2]byte{0, 1} {
		child, err := n.child(bit).GetNode(store)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		childPrefix := full.RebuildSharedPath(bit, KeySliceEmpty())
		if err := child.collectKeys(store, childPrefix, maxBytes, out); err != nil {
			return err
		}
	}
	return nil
}
