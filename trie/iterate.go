package trie

// VisitFunc is called with a node's full key prefix (root-to-node path,
// bit-addressable) and the node itself, during a traversal. Traversal
// never mutates the trie; hash-only children are resolved via store on
// demand.
type VisitFunc func(prefix KeySlice, n *Node) error

// IterateInOrder visits left subtree, then n, then right subtree.
func IterateInOrder(store NodeStore, n *Node, visit VisitFunc) error {
	return iterateInOrder(store, n, KeySliceEmpty(), visit)
}

func iterateInOrder(store NodeStore, n *Node, prefix KeySlice, visit VisitFunc) error {
	if n == nil || n.IsEmptyTrie() {
		return nil
	}
	full := prefix.Concat(n.sharedPath)
	left, err := n.left.GetNode(store)
	if err != nil {
		return err
	}
	if left != nil {
		if err := iterateInOrder(store, left, full.RebuildSharedPath(0, KeySliceEmpty()), visit); err != nil {
			return err
		}
	}
	if err := visit(full, n); err != nil {
		return err
	}
	right, err := n.right.GetNode(store)
	if err != nil {
		return err
	}
	if right != nil {
		return iterateInOrder(store, right, full.RebuildSharedPath(1, KeySliceEmpty()), visit)
	}
	return nil
}

// IteratePreOrder visits n, then left subtree, then right subtree.
func IteratePreOrder(store NodeStore, n *Node, visit VisitFunc) error {
	return iteratePreOrder(store, n, KeySliceEmpty(), visit)
}

func iteratePreOrder(store NodeStore, n *Node, prefix KeySlice, visit VisitFunc) error {
	if n == nil || n.IsEmptyTrie() {
		return nil
	}
	full := prefix.Concat(n.sharedPath)
	if err := visit(full, n); err != nil {
		return err
	}
	left, err := n.left.GetNode(store)
	if err != nil {
		return err
	}
	if left != nil {
		if err := iteratePreOrder(store, left, full.RebuildSharedPath(0, KeySliceEmpty()), visit); err != nil {
			return err
		}
	}
	right, err := n.right.GetNode(store)
	if err != nil {
		return err
	}
	if right != nil {
		return iteratePreOrder(store, right, full.RebuildSharedPath(1, KeySliceEmpty()), visit)
	}
	return nil
}

// IteratePostOrder visits left subtree, then right subtree, then n.
func IteratePostOrder(store NodeStore, n *Node, visit VisitFunc) error {
	return iteratePostOrder(store, n, KeySliceEmpty(), visit)
}

func iteratePostOrder(store NodeStore, n *Node, prefix KeySlice, visit VisitFunc) error {
	if n == nil || n.IsEmptyTrie() {
		return nil
	}
	full := prefix.Concat(n.sharedPath)
	left, err := n.left.GetNode(store)
	if err != nil {
		return err
	}
	if left != nil {
		if err := iteratePostOrder(store, left, full.RebuildSharedPath(0, KeySliceEmpty()), visit); err != nil {
			return err
		}
	}
	right, err := n.right.GetNode(store)
	if err != nil {
		return err
	}
	if right != nil {
		if err := iteratePostOrder(store, right, full.RebuildSharedPath(1, KeySliceEmpty()), visit); err != nil {
			return err
		}
	}
	return visit(full, n)
}
