package trie

// Trie bundles a root Node with the Store it was read from and is
// persisted to, mirroring the teacher's immutable.Trie/TrieReader split
// (spec §4.E "public contract"). All mutation methods return a new Trie;
// the receiver is never modified.
type Trie struct {
	store Store
	root  *Node
}

// New returns a Trie over an empty root, backed by store.
func New(store Store) *Trie {
	return &Trie{store: store, root: NewEmptyTrie()}
}

// NewWithRoot returns a Trie rooted at an already-materialized node,
// backed by store — used to reopen a trie from a previously saved root
// hash via store.RetrieveNode plus Decode.
func NewWithRoot(store Store, root *Node) *Trie {
	return &Trie{store: store, root: root}
}

// Root returns the current root node.
func (t *Trie) Root() *Node { return t.root }

// Hash returns the current root's hash.
func (t *Trie) Hash() []byte { return t.root.Hash() }

// Get returns the value for key, or nil if absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.root.Get(t.store, key)
}

// Update inserts or replaces key with value; an empty value deletes. It
// returns a new Trie sharing unchanged subtrees with the receiver.
func (t *Trie) Update(key, value []byte) (*Trie, error) {
	newRoot, err := t.root.Put(t.store, key, value)
	if err != nil {
		return nil, err
	}
	return &Trie{store: t.store, root: newRoot}, nil
}

// UpdateWithRent is Update stamped with newRentTime, marking affected
// nodes v2.
func (t *Trie) UpdateWithRent(key, value []byte, newRentTime int64) (*Trie, error) {
	newRoot, err := t.root.PutWithRent(t.store, key, value, newRentTime)
	if err != nil {
		return nil, err
	}
	return &Trie{store: t.store, root: newRoot}, nil
}

// Delete removes key.
func (t *Trie) Delete(key []byte) (*Trie, error) {
	newRoot, err := t.root.Delete(t.store, key)
	if err != nil {
		return nil, err
	}
	return &Trie{store: t.store, root: newRoot}, nil
}

// DeleteRecursive removes the subtree rooted at key.
func (t *Trie) DeleteRecursive(key []byte) (*Trie, error) {
	newRoot, err := t.root.DeleteRecursive(t.store, key)
	if err != nil {
		return nil, err
	}
	return &Trie{store: t.store, root: newRoot}, nil
}

// GetNodes returns the root-to-key node path, leaf-first, or nil if key
// does not exist.
func (t *Trie) GetNodes(key []byte) ([]*Node, error) {
	return t.root.GetNodes(t.store, key)
}

// TrieSize returns the count of materialized nodes reachable from root.
func (t *Trie) TrieSize() (int, error) {
	return t.root.TrieSize(t.store)
}

// CollectKeys returns all keys whose byte length is at most maxBytes (a
// negative maxBytes means unbounded).
func (t *Trie) CollectKeys(maxBytes int) (map[string][]byte, error) {
	return t.root.CollectKeys(t.store, maxBytes)
}

// Save walks the subtree rooted at root and persists every node reachable
// from it, including nodes written by an earlier Save (writes are
// content-addressed and idempotent): each non-embedded node is encoded
// and written to the store under its own hash, depth-first so that a
// parent's encoding (which references children only by hash or inline
// bytes) is always written after its hash-referenced children are
// durable. Embedded children get no store entry of their own — their
// bytes already live inside the parent's encoding — but a long value they
// carry is saved under its value hash, like any other long value.
func (t *Trie) Save() error {
	return saveNode(t.store, t.root)
}

func saveNode(store Store, n *Node) error {
	if n == nil || n.IsEmptyTrie() {
		return nil
	}
	for _, ref := range [2]NodeReference{n.left, n.right} {
		if ref.IsEmpty() {
			continue
		}
		child, err := ref.GetNode(store)
		if err != nil {
			return err
		}
		if ref.IsEmbedded() {
			if child.HasLongValue() {
				value, err := child.Value(store)
				if err != nil {
					return err
				}
				store.Save(child.ValueHash(), value)
			}
			continue
		}
		if err := saveNode(store, child); err != nil {
			return err
		}
	}
	if n.HasLongValue() {
		value, err := n.Value(store)
		if err != nil {
			return err
		}
		if value != nil {
			store.Save(n.ValueHash(), value)
		}
	}
	enc, err := n.Encode()
	if err != nil {
		return err
	}
	store.Save(n.Hash(), enc)
	// The encoded byte buffer is only needed up to this save boundary;
	// hash stays cached (spec §4.F serialization invariants).
	n.encoded = nil
	return nil
}
