package trie

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// S1: the empty trie hashes to the well-known Keccak256(RLP("")) root.
func TestEmptyTrieHash(t *testing.T) {
	want, err := hex.DecodeString("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
	require.NoError(t, err)
	require.Equal(t, want, NewEmptyTrie().Hash())
}

// S2: a single inserted pair is retrievable and terminal.
func TestSinglePair(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.Update([]byte("foo"), []byte("bar"))
	require.NoError(t, err)

	got, err := tr.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), got)

	size, err := tr.TrieSize()
	require.NoError(t, err)
	require.Equal(t, 1, size)
	require.True(t, tr.Root().IsTerminal())
}

// S3 / P1: insertion order does not affect the resulting root hash.
func TestSplitAndOrderIndependence(t *testing.T) {
	store := NewMemStore()

	a := New(store)
	a, err := a.Update([]byte("foo"), []byte("1"))
	require.NoError(t, err)
	a, err = a.Update([]byte("fad"), []byte("2"))
	require.NoError(t, err)

	b := New(store)
	b, err = b.Update([]byte("fad"), []byte("2"))
	require.NoError(t, err)
	b, err = b.Update([]byte("foo"), []byte("1"))
	require.NoError(t, err)

	require.Equal(t, a.Hash(), b.Hash())

	v1, err := a.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v1)
	v2, err := a.Get([]byte("fad"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v2)
}

// S4 / P8: deleting "f" from {"f","foo","fad"} coalesces the remaining
// value-less single-child node.
func TestCoalesceAfterDelete(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	for _, kv := range [][2]string{{"f", "0"}, {"foo", "1"}, {"fad", "2"}} {
		var err error
		tr, err = tr.Update([]byte(kv[0]), []byte(kv[1]))
		require.NoError(t, err)
	}

	tr, err := tr.Delete([]byte("f"))
	require.NoError(t, err)

	v1, err := tr.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v1)
	v2, err := tr.Get([]byte("fad"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v2)

	assertNoSingletonInternal(t, store, tr.Root())
}

func assertNoSingletonInternal(t *testing.T, store NodeStore, n *Node) {
	t.Helper()
	if n == nil || n.IsEmptyTrie() {
		return
	}
	leftEmpty, rightEmpty := n.Left().IsEmpty(), n.Right().IsEmpty()
	if n.ValueLength() == 0 {
		require.False(t, leftEmpty != rightEmpty, "found a value-less node with exactly one child: not coalesced")
	}
	left, err := n.Left().GetNode(store)
	require.NoError(t, err)
	if left != nil {
		assertNoSingletonInternal(t, store, left)
	}
	right, err := n.Right().GetNode(store)
	require.NoError(t, err)
	if right != nil {
		assertNoSingletonInternal(t, store, right)
	}
}

// S5 / P9: values over 32 bytes are externalized by their Keccak-256 hash.
func TestLongValueExternalized(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	longValue := bytes100()
	tr, err := tr.Update([]byte("k"), longValue)
	require.NoError(t, err)
	require.NoError(t, tr.Save())

	require.True(t, tr.Root().HasLongValue())
	enc, err := tr.Root().Encode()
	require.NoError(t, err)
	require.NotContains(t, string(enc), string(longValue))

	got, err := tr.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, longValue, got)

	stored, err := store.RetrieveValue(tr.Root().ValueHash())
	require.NoError(t, err)
	require.Equal(t, longValue, stored)
}

func bytes100() []byte {
	b := make([]byte, 100)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// S6: a rent-only update changes the hash without changing the value.
func TestRentUpdateChangesHashNotValue(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.UpdateWithRent([]byte("foo"), []byte("bar"), 1000)
	require.NoError(t, err)
	h1 := tr.Hash()

	tr2, err := tr.UpdateWithRent([]byte("foo"), []byte("bar"), 2000)
	require.NoError(t, err)
	h2 := tr2.Hash()

	require.NotEqual(t, h1, h2)
	v, err := tr2.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), v)
	require.Equal(t, int64(2000), tr2.Root().LastRentPaidTime())
}

// S7: getNodes returns the root-to-key path, leaf-first, each entry
// reachable from the previous by hash or embedded bytes.
func TestGetNodesProofPath(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	for _, kv := range [][2]string{{"f", "0"}, {"foo", "1"}, {"fad", "2"}} {
		var err error
		tr, err = tr.Update([]byte(kv[0]), []byte(kv[1]))
		require.NoError(t, err)
	}

	path, err := tr.GetNodes([]byte("foo"))
	require.NoError(t, err)
	require.NotEmpty(t, path)
	v, err := path[0].Value(store)
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, tr.Save())
	for i := 0; i < len(path)-1; i++ {
		child, parent := path[i], path[i+1]
		parentEnc, err := parent.Encode()
		require.NoError(t, err)
		if child.IsEmbeddable() {
			childEnc, err := child.Encode()
			require.NoError(t, err)
			require.Contains(t, string(parentEnc), string(childEnc))
		} else {
			require.Contains(t, string(parentEnc), string(child.Hash()))
		}
	}
}

// P2: decode(encode(n)) preserves the hash.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.Update([]byte("foo"), []byte("1"))
	require.NoError(t, err)
	tr, err = tr.Update([]byte("fad"), []byte("2"))
	require.NoError(t, err)

	enc, err := tr.Root().Encode()
	require.NoError(t, err)
	decoded, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, tr.Root().Hash(), decoded.Hash())
}

// P3/P4/P6: insert-then-get, delete, and empty-equivalence.
func TestInsertGetDeleteEquivalence(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.Update([]byte("only"), []byte("value"))
	require.NoError(t, err)

	deleted, err := tr.Delete([]byte("only"))
	require.NoError(t, err)
	v, err := deleted.Get([]byte("only"))
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, NewEmptyTrie().Hash(), deleted.Hash())

	viaEmptyPut, err := tr.Update([]byte("only"), []byte{})
	require.NoError(t, err)
	require.Equal(t, deleted.Hash(), viaEmptyPut.Hash())
}

// P5: putting the same key/value twice returns the identical node.
func TestIdempotentPutReturnsSameNode(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.Update([]byte("k"), []byte("v"))
	require.NoError(t, err)
	tr2, err := tr.Update([]byte("k"), []byte("v"))
	require.NoError(t, err)
	require.Same(t, tr.Root(), tr2.Root())
}

// P7: a terminal node embeds iff its encoded size is within the bound. A
// long value collapses to a fixed-size valueHash+length trailer, so what
// actually pushes a terminal node's encoding past the bound is a long
// sharedPath, not a long value.
func TestEmbeddingThreshold(t *testing.T) {
	small := NewTerminalNode(KeySliceFromKey([]byte("k")), []byte("v"), VersionPathCompressed, NoRent)
	require.True(t, small.IsEmbeddable())
	require.LessOrEqual(t, small.EncodedSize(), MaxEmbeddedNodeSize)

	longValue := NewTerminalNode(KeySliceFromKey([]byte("k")), bytes100(), VersionPathCompressed, NoRent)
	require.True(t, longValue.IsEmbeddable(), "a long value collapses to a fixed 35-byte trailer and stays embeddable")

	longPath := NewTerminalNode(KeySliceFromKey(bytes100()), []byte("v"), VersionPathCompressed, NoRent)
	require.False(t, longPath.IsEmbeddable())
	require.Greater(t, longPath.EncodedSize(), MaxEmbeddedNodeSize)
}

// P10: put yields v1, putWithRent yields v2; a split induced by a v2 put
// stamps the new internal node v2.
func TestVersionMonotone(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.Update([]byte("foo"), []byte("1"))
	require.NoError(t, err)
	require.Equal(t, VersionPathCompressed, tr.Root().Version())

	tr2, err := tr.UpdateWithRent([]byte("fad"), []byte("2"), 500)
	require.NoError(t, err)
	require.Equal(t, VersionRent, tr2.Root().Version())
}

// TestDeleteMissingKeyNeverSplits pins the resolved §9 open question: a
// delete of a key absent from the trie returns the receiver unchanged and
// never allocates a split, even when the key diverges from the current
// sharedPath.
func TestDeleteMissingKeyNeverSplits(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.Update([]byte("foo"), []byte("1"))
	require.NoError(t, err)

	before := tr.Root()
	tr2, err := tr.Delete([]byte("bar"))
	require.NoError(t, err)
	require.Same(t, before, tr2.Root())
}

// TestRepeatedRentPutLeavesV2NodeUnchanged pins the resolved §9 open
// question: the no-op fast path only fires when BOTH the value and the
// rent timestamp are unchanged. A rent-stamped put re-applying a v2 node's
// exact (value, rentTime) pair — e.g. a no-op replay — returns the
// receiver unchanged, so its version and rent time stay as they were.
func TestRepeatedRentPutLeavesV2NodeUnchanged(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.UpdateWithRent([]byte("foo"), []byte("bar"), 1000)
	require.NoError(t, err)
	require.Equal(t, VersionRent, tr.Root().Version())

	tr2, err := tr.UpdateWithRent([]byte("foo"), []byte("bar"), 1000)
	require.NoError(t, err)
	require.Same(t, tr.Root(), tr2.Root())
}

// TestPlainPutDemotesV2NodeWhenRentDiffers pins the literal algorithm of
// §4.G: the identity fast path requires the incoming rentTime to equal
// the existing one. A plain Put (rentTime == -1) over a node whose rent
// timestamp is a real value does not match, so it falls through and
// rebuilds the node with the plain put's version/rentTime — this is an
// explicit way for a caller to drop a node back out of rent tracking.
func TestPlainPutDemotesV2NodeWhenRentDiffers(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	tr, err := tr.UpdateWithRent([]byte("foo"), []byte("bar"), 1000)
	require.NoError(t, err)
	require.Equal(t, VersionRent, tr.Root().Version())

	tr2, err := tr.Update([]byte("foo"), []byte("bar"))
	require.NoError(t, err)
	require.Equal(t, VersionPathCompressed, tr2.Root().Version())
	require.Equal(t, NoRent, tr2.Root().LastRentPaidTime())
}

// P1 (broader permutation check): several insertion orders of the same
// key set converge to the same root hash.
func TestOrderIndependencePermutations(t *testing.T) {
	pairs := [][2]string{{"alpha", "1"}, {"beta", "2"}, {"al", "3"}, {"alphabet", "4"}, {"b", "5"}}
	orders := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
		{1, 3, 0, 4, 2},
	}
	var hashes [][]byte
	for _, order := range orders {
		store := NewMemStore()
		tr := New(store)
		for _, i := range order {
			var err error
			tr, err = tr.Update([]byte(pairs[i][0]), []byte(pairs[i][1]))
			require.NoError(t, err)
		}
		hashes = append(hashes, tr.Hash())
	}
	for i := 1; i < len(hashes); i++ {
		require.Equal(t, hashes[0], hashes[i])
	}
}

// Regression: replacing the value at a node that already has children
// (a prefix key like "al" sitting above "alpha"/"alphabet") must not drop
// its childrenSize to zero. childrenSize is part of invariant 5's hash
// input, so a trie built by updating "al" after its descendants exist
// must hash identically to one built with "al"'s final value from the
// start.
func TestUpdateValueAtNodeWithChildrenPreservesChildrenSize(t *testing.T) {
	store := NewMemStore()

	viaUpdate := New(store)
	var err error
	viaUpdate, err = viaUpdate.Update([]byte("al"), []byte("1"))
	require.NoError(t, err)
	viaUpdate, err = viaUpdate.Update([]byte("alpha"), []byte("2"))
	require.NoError(t, err)
	viaUpdate, err = viaUpdate.Update([]byte("alphabet"), []byte("3"))
	require.NoError(t, err)
	viaUpdate, err = viaUpdate.Update([]byte("al"), []byte("1-updated"))
	require.NoError(t, err)

	direct := New(store)
	direct, err = direct.Update([]byte("alpha"), []byte("2"))
	require.NoError(t, err)
	direct, err = direct.Update([]byte("alphabet"), []byte("3"))
	require.NoError(t, err)
	direct, err = direct.Update([]byte("al"), []byte("1-updated"))
	require.NoError(t, err)

	require.Equal(t, direct.Hash(), viaUpdate.Hash())
	require.Equal(t, direct.Root().ChildrenSize(), viaUpdate.Root().ChildrenSize())
}

// Regression: deleting the value at a node that has two real children (so
// tryCoalesce does not fold it away) falls through to withValue, which
// must carry the node's childrenSize forward too, for the same reason as
// above.
func TestDeleteValueAtNodeWithTwoChildrenPreservesChildrenSize(t *testing.T) {
	store := NewMemStore()

	viaDelete := New(store)
	var err error
	viaDelete, err = viaDelete.Update([]byte("k"), []byte("A"))
	require.NoError(t, err)
	viaDelete, err = viaDelete.Update([]byte("k\x00"), []byte("B"))
	require.NoError(t, err)
	viaDelete, err = viaDelete.Update([]byte("k\x80"), []byte("C"))
	require.NoError(t, err)
	viaDelete, err = viaDelete.Delete([]byte("k"))
	require.NoError(t, err)

	direct := New(store)
	direct, err = direct.Update([]byte("k\x00"), []byte("B"))
	require.NoError(t, err)
	direct, err = direct.Update([]byte("k\x80"), []byte("C"))
	require.NoError(t, err)

	require.Equal(t, direct.Hash(), viaDelete.Hash())
	require.Equal(t, direct.Root().ChildrenSize(), viaDelete.Root().ChildrenSize())

	v, err := viaDelete.Get([]byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

// CollectKeys must report keys reachable only through a hash-only child:
// reloading a saved trie from its own root encoding leaves non-embedded
// children unresolved until fetched, and collectKeys force-loads them
// rather than silently under-reporting (spec §9 open question, resolved
// in SPEC_FULL.md §12).
func TestCollectKeysForcesUnresolvedChildren(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	for _, kv := range [][2]string{{"alpha", "1"}, {"alphabet", "2"}, {"beta", "3"}} {
		var err error
		tr, err = tr.Update([]byte(kv[0]), []byte(kv[1]))
		require.NoError(t, err)
	}
	require.NoError(t, tr.Save())

	rootEnc, err := tr.Root().Encode()
	require.NoError(t, err)
	reloadedRoot, err := Decode(rootEnc)
	require.NoError(t, err)

	foundHashOnly := false
	for _, ref := range [2]NodeReference{reloadedRoot.Left(), reloadedRoot.Right()} {
		if !ref.IsEmpty() && !ref.IsEmbedded() {
			foundHashOnly = true
		}
	}
	require.True(t, foundHashOnly, "test setup must produce a hash-only child to exercise the force-load path")

	reloaded := NewWithRoot(store, reloadedRoot)
	keys, err := reloaded.CollectKeys(-1)
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{
		"alpha":    []byte("alpha"),
		"alphabet": []byte("alphabet"),
		"beta":     []byte("beta"),
	}, keys)
}

func buildSampleTrie(t *testing.T, store *MemStore) *Trie {
	t.Helper()
	tr := New(store)
	for _, kv := range [][2]string{{"foo", "1"}, {"fad", "2"}, {"bar", "3"}} {
		var err error
		tr, err = tr.Update([]byte(kv[0]), []byte(kv[1]))
		require.NoError(t, err)
	}
	return tr
}

// IteratePreOrder visits a node before its children, so the root is
// always the first node seen.
func TestIteratePreOrderVisitsRootFirst(t *testing.T) {
	store := NewMemStore()
	tr := buildSampleTrie(t, store)

	var first *Node
	err := IteratePreOrder(store, tr.Root(), func(prefix KeySlice, n *Node) error {
		if first == nil {
			first = n
		}
		return nil
	})
	require.NoError(t, err)
	require.Same(t, tr.Root(), first)
}

// IteratePostOrder visits a node after its children, so the root is
// always the last node seen.
func TestIteratePostOrderVisitsRootLast(t *testing.T) {
	store := NewMemStore()
	tr := buildSampleTrie(t, store)

	var last *Node
	err := IteratePostOrder(store, tr.Root(), func(prefix KeySlice, n *Node) error {
		last = n
		return nil
	})
	require.NoError(t, err)
	require.Same(t, tr.Root(), last)
}

// IterateInOrder must reach every value-bearing node exactly once, with
// the prefix accumulated along the traversal reconstructing its full key.
func TestIterateInOrderVisitsAllValuesExactlyOnce(t *testing.T) {
	store := NewMemStore()
	tr := buildSampleTrie(t, store)

	seen := make(map[string][]byte)
	err := IterateInOrder(store, tr.Root(), func(prefix KeySlice, n *Node) error {
		if n.ValueLength() == 0 || prefix.Length()%8 != 0 {
			return nil
		}
		v, verr := n.Value(store)
		if verr != nil {
			return verr
		}
		seen[string(prefix.Encode())] = v
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{
		"foo": []byte("1"),
		"fad": []byte("2"),
		"bar": []byte("3"),
	}, seen)
}

// HashLegacy must round-trip through the v0 encoder/decoder exactly like
// Hash does through v1/v2 (P2's legacy-format counterpart).
func TestHashLegacyRoundTripsThroughEncodeDecode(t *testing.T) {
	store := NewMemStore()
	n := NewTerminalNode(KeySliceFromKey([]byte("foo")), []byte("bar"), VersionPathCompressed, NoRent)

	h1, err := n.HashLegacy(store, false)
	require.NoError(t, err)
	require.Len(t, h1, 32)

	enc, err := n.encodeLegacy(store, false)
	require.NoError(t, err)
	decoded, err := decodeLegacy(enc)
	require.NoError(t, err)

	h2, err := decoded.HashLegacy(store, false)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

// DeleteRecursive on a key that does not exactly address an existing node
// is a no-op; on a key that does, it removes the whole subtree rooted
// there (here, the internal split node covering two sibling keys) while
// leaving unrelated keys untouched.
func TestDeleteRecursiveRemovesSubtree(t *testing.T) {
	store := NewMemStore()
	tr := New(store)
	for _, kv := range [][2]string{{"fa\x00", "1"}, {"fa\x80", "2"}, {"bar", "3"}} {
		var err error
		tr, err = tr.Update([]byte(kv[0]), []byte(kv[1]))
		require.NoError(t, err)
	}

	// "fa" (16 bits) is the exact shared path of the internal node split
	// by "fa\x00" vs "fa\x80" diverging on the very first bit of their
	// third byte; confirm it addresses a real node before relying on that.
	path, err := tr.GetNodes([]byte("fa"))
	require.NoError(t, err)
	require.NotEmpty(t, path)
	require.Equal(t, 0, path[0].ValueLength())

	before := tr.Root()
	noop, err := tr.DeleteRecursive([]byte("fa\x01"))
	require.NoError(t, err)
	require.Same(t, before, noop.Root())

	pruned, err := tr.DeleteRecursive([]byte("fa"))
	require.NoError(t, err)

	v1, err := pruned.Get([]byte("fa\x00"))
	require.NoError(t, err)
	require.Nil(t, v1)
	v2, err := pruned.Get([]byte("fa\x80"))
	require.NoError(t, err)
	require.Nil(t, v2)
	v3, err := pruned.Get([]byte("bar"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), v3)
}

// P11: the legacy (v0) encoder/decoder round-trips self-consistently.
// Exact precomputed corpus roots are not available to this test suite;
// self-consistency is the strongest claim that can be checked here.
func TestLegacyEncodeDecodeSelfConsistent(t *testing.T) {
	store := NewMemStore()
	n := NewTerminalNode(KeySliceFromKey([]byte("foo")), []byte("bar"), VersionPathCompressed, NoRent)
	enc, err := n.encodeLegacy(store, false)
	require.NoError(t, err)
	decoded, err := decodeLegacy(enc)
	require.NoError(t, err)
	require.Equal(t, n.sharedPath.Encode(), decoded.sharedPath.Encode())
	require.Equal(t, n.value, decoded.value)
}
