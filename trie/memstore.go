package trie

import "github.com/rootchain/unitrie"

// MemStore is an in-memory Store: a single content-addressed KVStore
// serving both node bodies (keyed by node hash) and externalized long
// values (keyed by value hash) — per spec §6 there is one save contract
// and content addressing makes the two keyspaces collision-free in
// practice. It is a reference implementation of the external store
// contract, suitable for tests and small deployments; a production
// backend only needs to satisfy Store.
type MemStore struct {
	kv unitrie.KVStore
}

// NewMemStore returns a MemStore over a fresh in-memory KVStore.
func NewMemStore() *MemStore {
	return &MemStore{kv: unitrie.NewMemStore()}
}

func (s *MemStore) RetrieveNode(hash []byte) ([]byte, error) {
	if !s.kv.Has(hash) {
		return nil, nil
	}
	return s.kv.Get(hash), nil
}

func (s *MemStore) RetrieveValue(hash []byte) ([]byte, error) {
	if !s.kv.Has(hash) {
		return nil, nil
	}
	return s.kv.Get(hash), nil
}

// Save writes data under hash, idempotently.
func (s *MemStore) Save(hash []byte, data []byte) {
	s.kv.Set(hash, data)
}
