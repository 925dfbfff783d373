package locks

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash"

	"simple-kv/pkg/config"
)

type shard struct {
	latch   sync.RWMutex
	entries map[string]*Entry
}

// LockTable maps keys to their lock entries. Entries are created on first
// request and never removed.
type LockTable struct {
	shards [config.LockTableShards]shard
}

func NewLockTable() *LockTable {
	t := &LockTable{}
	for i := range t.shards {
		t.shards[i].entries = map[string]*Entry{}
	}
	return t
}

func (t *LockTable) shardFor(key string) *shard {
	return &t.shards[xxhash.Sum64String(key)&(config.LockTableShards-1)]
}

func (t *LockTable) Has(key string) bool {
	s := t.shardFor(key)
	s.latch.RLock()
	defer s.latch.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Get returns nil when key has never been locked.
func (t *LockTable) Get(key string) *Entry {
	s := t.shardFor(key)
	s.latch.RLock()
	defer s.latch.RUnlock()
	return s.entries[key]
}

func (t *LockTable) GetOrCreate(key string) *Entry {
	s := t.shardFor(key)
	s.latch.Lock()
	defer s.latch.Unlock()

	if e, ok := s.entries[key]; ok {
		return e
	}
	e := newEntry(key)
	s.entries[key] = e
	return e
}

func (t *LockTable) Len() (n int) {
	for i := range t.shards {
		s := &t.shards[i]
		s.latch.RLock()
		n += len(s.entries)
		s.latch.RUnlock()
	}
	return
}

func (t *LockTable) entries() []*Entry {
	var res []*Entry
	for i := range t.shards {
		s := &t.shards[i]
		s.latch.RLock()
		for _, e := range s.entries {
			res = append(res, e)
		}
		s.latch.RUnlock()
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res
}

// Range calls fn on every entry in ascending key order. fn is responsible for
// the entry latch.
func (t *LockTable) Range(fn func(e *Entry)) {
	for _, e := range t.entries() {
		fn(e)
	}
}

// Snapshot copies every entry while all shards are read-locked, so no entry
// can be created halfway through. Entries are sorted by key.
func (t *LockTable) Snapshot() []EntryState {
	for i := range t.shards {
		t.shards[i].latch.RLock()
	}
	defer func() {
		for i := range t.shards {
			t.shards[i].latch.RUnlock()
		}
	}()

	var res []EntryState
	for i := range t.shards {
		for _, e := range t.shards[i].entries {
			e.Latch.Lock()
			res = append(res, e.State())
			e.Latch.Unlock()
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res
}
