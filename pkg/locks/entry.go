package locks

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/logger"
)

// Entry is the lock state of a single key. Callers hold Latch while reading
// or changing it.
type Entry struct {
	Key   string
	Latch sync.Mutex
	Queue WaitQueue

	writingTxnID  uint64
	writing       bool
	readingTxnIDs map[uint64]struct{}
}

func newEntry(key string) *Entry {
	return &Entry{
		Key:           key,
		readingTxnIDs: map[uint64]struct{}{},
	}
}

// ExclusiveHolder returns the exclusive holder, if any.
func (e *Entry) ExclusiveHolder() (uint64, bool) {
	return e.writingTxnID, e.writing
}

func (e *Entry) IsExclusiveHolder(xid uint64) bool {
	return e.writing && e.writingTxnID == xid
}

func (e *Entry) IsSharedHolder(xid uint64) bool {
	_, ok := e.readingTxnIDs[xid]
	return ok
}

func (e *Entry) SharedCount() int {
	return len(e.readingTxnIDs)
}

// SharedHolders returns the shared holders in ascending order.
func (e *Entry) SharedHolders() []uint64 {
	res := make([]uint64, 0, len(e.readingTxnIDs))
	for xid := range e.readingTxnIDs {
		res = append(res, xid)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// CanExclusive reports whether xid may take the exclusive lock right now,
// either fresh, re-entrantly, or by upgrading its sole shared lock.
func (e *Entry) CanExclusive(xid uint64) bool {
	if e.writing {
		return e.writingTxnID == xid
	}
	switch len(e.readingTxnIDs) {
	case 0:
		return true
	case 1:
		return e.IsSharedHolder(xid)
	default:
		return false
	}
}

func (e *Entry) CanShared(xid uint64) bool {
	return !e.writing || e.writingTxnID == xid
}

// GrantExclusive makes xid the exclusive holder. A sole shared lock held by
// xid is upgraded in place.
func (e *Entry) GrantExclusive(xid uint64) {
	if e.writing && e.writingTxnID != xid {
		panic(errors.AssertionFailedf("exclusive lock double granted: key=%s, holder=%d, xid=%d",
			e.Key, e.writingTxnID, xid))
	}
	for reader := range e.readingTxnIDs {
		if reader != xid {
			panic(errors.AssertionFailedf("exclusive lock granted over shared holder: key=%s, holder=%d, xid=%d",
				e.Key, reader, xid))
		}
	}

	e.readingTxnIDs = map[uint64]struct{}{}
	e.writingTxnID = xid
	e.writing = true
	logger.Inst.Debugw("lock granted", "key", e.Key, "xid", xid, "mode", Exclusive)
}

func (e *Entry) GrantShared(xid uint64) {
	if e.writing {
		panic(errors.AssertionFailedf("shared lock granted under exclusive holder: key=%s, holder=%d, xid=%d",
			e.Key, e.writingTxnID, xid))
	}

	e.readingTxnIDs[xid] = struct{}{}
	logger.Inst.Debugw("lock granted", "key", e.Key, "xid", xid, "mode", Shared)
}

// ReleaseExclusive drops xid's exclusive lock and hands the key to the front
// of the queue. A shared request at the front is granted together with every
// shared request directly behind it.
func (e *Entry) ReleaseExclusive(xid uint64) (granted []Request) {
	if !e.IsExclusiveHolder(xid) {
		panic(errors.AssertionFailedf("releasing exclusive lock not held: key=%s, xid=%d", e.Key, xid))
	}
	e.writing = false
	e.writingTxnID = 0

	front, ok := e.Queue.Pop()
	if !ok {
		return nil
	}

	if front.Mode == Exclusive {
		e.GrantExclusive(front.XID)
		return []Request{front}
	}

	e.GrantShared(front.XID)
	granted = append(granted, front)
	for {
		next, ok := e.Queue.Peek()
		if !ok || next.Mode != Shared {
			break
		}
		e.Queue.Pop()
		e.GrantShared(next.XID)
		granted = append(granted, next)
	}
	return granted
}

// ReleaseShared drops xid's shared lock. When no shared holder is left the
// front of the queue is granted the exclusive lock. When exactly one is left
// and it is queued for exclusive, its upgrade is granted wherever it sits in
// the queue.
func (e *Entry) ReleaseShared(xid uint64) (granted []Request) {
	if !e.IsSharedHolder(xid) {
		panic(errors.AssertionFailedf("releasing shared lock not held: key=%s, xid=%d", e.Key, xid))
	}
	delete(e.readingTxnIDs, xid)

	switch len(e.readingTxnIDs) {
	case 0:
		front, ok := e.Queue.Pop()
		if !ok {
			return nil
		}
		// a shared request at the front receives exclusive as well
		e.GrantExclusive(front.XID)
		return []Request{front}

	case 1:
		var holder uint64
		for reader := range e.readingTxnIDs {
			holder = reader
		}
		upgrade := Request{XID: holder, Mode: Exclusive}
		if e.Queue.Remove(upgrade) == 0 {
			return nil
		}
		e.GrantExclusive(holder)
		return []Request{upgrade}
	}
	return nil
}

// Enqueue records a blocked request.
func (e *Entry) Enqueue(xid uint64, mode Mode) {
	e.Queue.Push(Request{XID: xid, Mode: mode})
	logger.Inst.Debugw("lock blocked", "key", e.Key, "xid", xid, "mode", mode, "queued", e.Queue.Len())
}

// Cancel removes every queued request of xid.
func (e *Entry) Cancel(xid uint64) int {
	return e.Queue.Remove(Request{XID: xid, Mode: Shared}) +
		e.Queue.Remove(Request{XID: xid, Mode: Exclusive})
}

// EntryState is a copy of an Entry taken under its latch.
type EntryState struct {
	Key           string
	Exclusive     uint64
	HasExclusive  bool
	SharedHolders []uint64
	Queue         []Request
}

func (e *Entry) State() EntryState {
	return EntryState{
		Key:           e.Key,
		Exclusive:     e.writingTxnID,
		HasExclusive:  e.writing,
		SharedHolders: e.SharedHolders(),
		Queue:         e.Queue.Items(),
	}
}
