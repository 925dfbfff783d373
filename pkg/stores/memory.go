package stores

import (
	"sync"

	"github.com/google/btree"

	"simple-kv/pkg/values"
)

const memoryDegree = 32

type item struct {
	key string
	val string
}

func itemLess(a, b item) bool {
	return a.key < b.key
}

// MemoryStore keeps keys ordered in a btree, so Keys returns them sorted.
type MemoryStore struct {
	tree  *btree.BTreeG[item]
	latch sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tree: btree.NewG[item](memoryDegree, itemLess),
	}
}

func (s *MemoryStore) Has(key string) (bool, error) {
	s.latch.RLock()
	defer s.latch.RUnlock()
	return s.tree.Has(item{key: key}), nil
}

func (s *MemoryStore) Get(key string) (values.Value, error) {
	s.latch.RLock()
	defer s.latch.RUnlock()

	it, ok := s.tree.Get(item{key: key})
	if !ok {
		return values.Absent, nil
	}
	return values.Of(it.val), nil
}

func (s *MemoryStore) Put(key string, val string) error {
	s.latch.Lock()
	defer s.latch.Unlock()
	s.tree.ReplaceOrInsert(item{key: key, val: val})
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.latch.Lock()
	defer s.latch.Unlock()
	s.tree.Delete(item{key: key})
	return nil
}

// Keys returns every stored key in ascending order.
func (s *MemoryStore) Keys() (res []string) {
	s.latch.RLock()
	defer s.latch.RUnlock()
	s.tree.Ascend(func(it item) bool {
		res = append(res, it.key)
		return true
	})
	return
}

func (s *MemoryStore) Len() int {
	s.latch.RLock()
	defer s.latch.RUnlock()
	return s.tree.Len()
}

func (s *MemoryStore) Close() error {
	return nil
}
