package manager

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/locks"
	lockmanager "simple-kv/pkg/locks/manager"
	"simple-kv/pkg/logger"
	"simple-kv/pkg/modules"
	"simple-kv/pkg/txns"
)

var ErrDuplicateTxn = errors.New("txn id already in use")

// TxnManager owns the live txns of one lock table. Every call that touches
// lock state runs under latch, which is the single critical section the lock
// core requires.
type TxnManager struct {
	TxnCounter  uint64
	ActiveTxns  map[uint64]*txns.Txn
	Table       *locks.LockTable
	Store       modules.Store
	Coordinator *lockmanager.Coordinator
	latch       sync.Mutex
}

func NewTxnManager(table *locks.LockTable, store modules.Store) *TxnManager {
	return &TxnManager{
		TxnCounter:  0,
		ActiveTxns:  map[uint64]*txns.Txn{},
		Table:       table,
		Store:       store,
		Coordinator: lockmanager.NewCoordinator(table),
		latch:       sync.Mutex{},
	}
}

// NewTxn starts a txn with the next id of the manager's counter.
func (manager *TxnManager) NewTxn() *txns.Txn {
	manager.latch.Lock()
	defer manager.latch.Unlock()

	for {
		xid := atomic.AddUint64(&manager.TxnCounter, 1)
		if _, exists := manager.ActiveTxns[xid]; exists {
			continue
		}
		txn := txns.NewTxn(xid, manager.Table, manager.Store)
		manager.ActiveTxns[xid] = txn
		return txn
	}
}

// Begin starts a txn with an id issued elsewhere.
func (manager *TxnManager) Begin(xid uint64) (*txns.Txn, error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()

	if _, exists := manager.ActiveTxns[xid]; exists {
		return nil, errors.Wrapf(ErrDuplicateTxn, "xid=%d", xid)
	}
	txn := txns.NewTxn(xid, manager.Table, manager.Store)
	manager.ActiveTxns[xid] = txn
	return txn, nil
}

func (manager *TxnManager) GetTxn(xid uint64) *txns.Txn {
	manager.latch.Lock()
	defer manager.latch.Unlock()
	return manager.ActiveTxns[xid]
}

// GetActiveTxns returns the live txns ordered by id.
func (manager *TxnManager) GetActiveTxns() (res []*txns.Txn) {
	manager.latch.Lock()
	defer manager.latch.Unlock()
	for _, txn := range manager.ActiveTxns {
		res = append(res, txn)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return
}

func (manager *TxnManager) Get(txn *txns.Txn, key string) (txns.Result, error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()
	return txn.Get(key)
}

func (manager *TxnManager) Put(txn *txns.Txn, key string, val string) (txns.Result, error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()
	return txn.Put(key, val)
}

// CheckLock polls a blocked txn. A txn aborted as a deadlock victim while
// waiting reports its abort outcome instead.
func (manager *TxnManager) CheckLock(txn *txns.Txn) (txns.Result, error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()

	if txn.Terminated() {
		return txn.Outcome, nil
	}
	return txn.CheckLock()
}

func (manager *TxnManager) Commit(txn *txns.Txn) (txns.Result, error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()

	res, err := txn.Commit()
	if err != nil {
		return res, errors.Wrap(err, "fail to commit")
	}
	delete(manager.ActiveTxns, txn.ID)
	return res, nil
}

func (manager *TxnManager) Abort(txn *txns.Txn, mode txns.AbortMode) (txns.Result, error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()
	return manager.abort(txn, mode)
}

func (manager *TxnManager) abort(txn *txns.Txn, mode txns.AbortMode) (txns.Result, error) {
	if txn.Terminated() {
		return txn.Outcome, nil
	}
	delete(manager.ActiveTxns, txn.ID)

	res, err := txn.Abort(mode)
	if err != nil {
		return res, errors.Wrap(err, "fail to abort")
	}
	return res, nil
}

func (manager *TxnManager) DetectDeadlocks() (uint64, bool) {
	manager.latch.Lock()
	defer manager.latch.Unlock()
	return manager.Coordinator.DetectDeadlocks()
}

// BreakDeadlocks aborts one victim per cycle until the waits-for graph is
// acyclic, and returns the victims in the order they were aborted.
func (manager *TxnManager) BreakDeadlocks() (victims []uint64, err error) {
	manager.latch.Lock()
	defer manager.latch.Unlock()

	for {
		victim, found := manager.Coordinator.DetectDeadlocks()
		if !found {
			return victims, nil
		}

		txn, ok := manager.ActiveTxns[victim]
		if !ok {
			return victims, errors.AssertionFailedf("deadlock victim is not active: xid=%d", victim)
		}
		victims = append(victims, victim)
		logger.Inst.Infow("aborting deadlock victim", "xid", victim)
		if _, err = manager.abort(txn, txns.Deadlock); err != nil {
			return victims, err
		}
	}
}
