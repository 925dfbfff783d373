package txns

import (
	"sort"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/locks"
	"simple-kv/pkg/logger"
	"simple-kv/pkg/modules"
)

type State int

const (
	Running State = iota
	Waiting
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type AbortMode int

const (
	User AbortMode = iota
	Deadlock
)

var (
	ErrBlocked    = errors.New("txn is waiting for a lock")
	ErrTerminated = errors.New("txn already terminated")
	ErrNotWaiting = errors.New("txn is not waiting for a lock")
)

// DesiredLock is the request a blocked txn is waiting on. Value is the
// pending write of an exclusive request.
type DesiredLock struct {
	Key   string
	Mode  locks.Mode
	Value string
}

// Txn drives the locking of one transaction under strict 2PL: locks are only
// taken while running and all of them are released by Commit or Abort.
//
// Txn does not serialize callers. At most one mutating call across all txns
// sharing a lock table may be in flight at a time.
type Txn struct {
	ID      uint64
	State   State
	Outcome Result
	// AcquiredLocks is to release locks on commit or abort
	AcquiredLocks map[string]locks.Mode
	// UndoLog is to roll back writes on abort
	UndoLog UndoLog
	Desired *DesiredLock

	table *locks.LockTable
	store modules.Store
}

func NewTxn(xid uint64, table *locks.LockTable, store modules.Store) *Txn {
	return &Txn{
		ID:            xid,
		State:         Running,
		AcquiredLocks: map[string]locks.Mode{},
		table:         table,
		store:         store,
	}
}

func (txn *Txn) Terminated() bool {
	return txn.State == Committed || txn.State == Aborted
}

func (txn *Txn) checkRunning() error {
	switch txn.State {
	case Running:
		return nil
	case Waiting:
		return errors.Wrapf(ErrBlocked, "xid=%d, key=%s", txn.ID, txn.Desired.Key)
	default:
		return errors.Wrapf(ErrTerminated, "xid=%d, state=%v", txn.ID, txn.State)
	}
}

func (txn *Txn) block(entry *locks.Entry, mode locks.Mode, val string) Result {
	txn.Desired = &DesiredLock{Key: entry.Key, Mode: mode, Value: val}
	txn.State = Waiting
	entry.Enqueue(txn.ID, mode)
	return Result{Status: Blocked}
}

// Put takes the exclusive lock on key and writes val. The prior value goes to
// the undo log first. When the lock is not available the request is queued
// and Blocked is returned without touching the store.
func (txn *Txn) Put(key string, val string) (Result, error) {
	if err := txn.checkRunning(); err != nil {
		return Result{}, err
	}

	entry := txn.table.GetOrCreate(key)
	entry.Latch.Lock()
	if !entry.CanExclusive(txn.ID) {
		res := txn.block(entry, locks.Exclusive, val)
		entry.Latch.Unlock()
		return res, nil
	}
	entry.GrantExclusive(txn.ID)
	entry.Latch.Unlock()

	return txn.write(key, val)
}

// Get takes the shared lock on key and reads it. An exclusive lock already
// held by txn serves the read.
func (txn *Txn) Get(key string) (Result, error) {
	if err := txn.checkRunning(); err != nil {
		return Result{}, err
	}

	entry := txn.table.GetOrCreate(key)
	entry.Latch.Lock()
	if !entry.CanShared(txn.ID) {
		res := txn.block(entry, locks.Shared, "")
		entry.Latch.Unlock()
		return res, nil
	}
	if !entry.IsExclusiveHolder(txn.ID) {
		entry.GrantShared(txn.ID)
	}
	entry.Latch.Unlock()

	if txn.AcquiredLocks[key] != locks.Exclusive {
		txn.AcquiredLocks[key] = locks.Shared
	}
	return txn.read(key)
}

// CheckLock re-evaluates the desired lock. Once granted it returns what the
// blocked Get or Put would have returned; until then it returns Blocked.
func (txn *Txn) CheckLock() (Result, error) {
	if txn.Terminated() {
		return Result{}, errors.Wrapf(ErrTerminated, "xid=%d, state=%v", txn.ID, txn.State)
	}
	if txn.Desired == nil {
		return Result{}, errors.Wrapf(ErrNotWaiting, "xid=%d", txn.ID)
	}

	desired := txn.Desired
	entry := txn.table.Get(desired.Key)
	if entry == nil {
		panic(errors.AssertionFailedf("waiting on a key without lock entry: key=%s, xid=%d", desired.Key, txn.ID))
	}

	entry.Latch.Lock()
	granted := true
	mode := desired.Mode
	switch {
	case desired.Mode == locks.Exclusive:
		granted = entry.IsExclusiveHolder(txn.ID)
	case entry.IsSharedHolder(txn.ID):
	case entry.IsExclusiveHolder(txn.ID):
		// exclusive was handed out in place of the shared request
		mode = locks.Exclusive
	default:
		granted = false
	}
	entry.Latch.Unlock()

	if !granted {
		return Result{Status: Blocked}, nil
	}

	txn.Desired = nil
	txn.State = Running
	if desired.Mode == locks.Exclusive {
		return txn.write(desired.Key, desired.Value)
	}
	txn.AcquiredLocks[desired.Key] = mode
	return txn.read(desired.Key)
}

func (txn *Txn) write(key string, val string) (Result, error) {
	txn.AcquiredLocks[key] = locks.Exclusive

	prior, err := txn.store.Get(key)
	if err != nil {
		return Result{}, errors.Wrapf(err, "read prior value: xid=%d, key=%s", txn.ID, key)
	}
	txn.UndoLog.Push(key, prior)

	if err = txn.store.Put(key, val); err != nil {
		return Result{}, errors.Wrapf(err, "write: xid=%d, key=%s", txn.ID, key)
	}
	return Result{Status: Success}, nil
}

func (txn *Txn) read(key string) (Result, error) {
	val, err := txn.store.Get(key)
	if err != nil {
		return Result{}, errors.Wrapf(err, "read: xid=%d, key=%s", txn.ID, key)
	}
	if val.Absent {
		return Result{Status: NoSuchKey}, nil
	}
	return Result{Status: Found, Value: val.Val}, nil
}

// releaseAndGrantLocks drops every queued request and every lock of txn,
// handing each released key to its waiters.
func (txn *Txn) releaseAndGrantLocks() {
	// txn may be queued on a key it never acquired
	txn.table.Range(func(e *locks.Entry) {
		e.Latch.Lock()
		e.Cancel(txn.ID)
		e.Latch.Unlock()
	})

	keys := make([]string, 0, len(txn.AcquiredLocks)+1)
	for key := range txn.AcquiredLocks {
		keys = append(keys, key)
	}
	// a pending request may have been granted without being polled yet
	if txn.Desired != nil {
		if _, ok := txn.AcquiredLocks[txn.Desired.Key]; !ok {
			keys = append(keys, txn.Desired.Key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		entry := txn.table.Get(key)
		if entry == nil {
			panic(errors.AssertionFailedf("releasing a key without lock entry: key=%s, xid=%d", key, txn.ID))
		}

		entry.Latch.Lock()
		var granted []locks.Request
		switch {
		// the table is the source of truth: a shared lock may have been
		// upgraded while txn was waiting
		case entry.IsExclusiveHolder(txn.ID):
			granted = entry.ReleaseExclusive(txn.ID)
		case entry.IsSharedHolder(txn.ID):
			granted = entry.ReleaseShared(txn.ID)
		default:
			if _, acquired := txn.AcquiredLocks[key]; acquired {
				entry.Latch.Unlock()
				panic(errors.AssertionFailedf("releasing lock not held: key=%s, xid=%d, mode=%v",
					key, txn.ID, txn.AcquiredLocks[key]))
			}
		}
		entry.Latch.Unlock()

		if len(granted) != 0 {
			logger.Inst.Debugw("locks handed over", "key", key, "from", txn.ID, "to", granted)
		}
	}

	txn.AcquiredLocks = map[string]locks.Mode{}
	txn.Desired = nil
}

func (txn *Txn) Commit() (Result, error) {
	if err := txn.checkRunning(); err != nil {
		return Result{}, err
	}

	txn.releaseAndGrantLocks()
	txn.State = Committed
	txn.Outcome = Result{Status: Completed}
	logger.Inst.Debugw("txn committed", "xid", txn.ID)
	return txn.Outcome, nil
}

// Abort rolls back every write of txn and releases its locks. A blocked txn
// may be aborted; its queued request is dropped. Store errors during roll
// back do not stop the release.
func (txn *Txn) Abort(mode AbortMode) (Result, error) {
	if txn.Terminated() {
		return Result{}, errors.Wrapf(ErrTerminated, "xid=%d, state=%v", txn.ID, txn.State)
	}

	var err error
	for {
		rec, ok := txn.UndoLog.Pop()
		if !ok {
			break
		}

		var undoErr error
		if rec.Prior.Absent {
			undoErr = txn.store.Delete(rec.Key)
		} else {
			undoErr = txn.store.Put(rec.Key, rec.Prior.Val)
		}
		if undoErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(undoErr, "undo: xid=%d, key=%s", txn.ID, rec.Key))
		}
	}

	txn.releaseAndGrantLocks()
	txn.State = Aborted
	if mode == Deadlock {
		txn.Outcome = Result{Status: DeadlockAbort}
	} else {
		txn.Outcome = Result{Status: UserAbort}
	}
	logger.Inst.Debugw("txn aborted", "xid", txn.ID, "outcome", txn.Outcome)
	return txn.Outcome, err
}
