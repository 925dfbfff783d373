package engines

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/config"
	"simple-kv/pkg/locks"
	"simple-kv/pkg/logger"
	"simple-kv/pkg/modules"
	"simple-kv/pkg/txns"
	txnmanager "simple-kv/pkg/txns/manager"
)

// Engine turns the polling lock core into blocking calls: a blocked request
// is re-checked until it is granted, its txn is chosen as a deadlock victim,
// or the context ends.
type Engine struct {
	Table      *locks.LockTable
	Store      modules.Store
	TxnManager *txnmanager.TxnManager

	detector sync.WaitGroup
}

func NewEngine(store modules.Store) *Engine {
	table := locks.NewLockTable()
	return &Engine{
		Table:      table,
		Store:      store,
		TxnManager: txnmanager.NewTxnManager(table, store),
	}
}

// Run starts the deadlock breaker. It stops when ctx is done.
func (e *Engine) Run(ctx context.Context) *Engine {
	e.detector.Add(1)
	go func() {
		defer e.detector.Done()
		e.detect(ctx)
	}()
	return e
}

func (e *Engine) detect(ctx context.Context) {
	ticker := time.NewTicker(config.DetectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			victims, err := e.TxnManager.BreakDeadlocks()
			if err != nil {
				logger.Inst.Errorw("fail to break deadlocks", "victims", victims, "err", err)
			}
		}
	}
}

func (e *Engine) NewTxn() *txns.Txn {
	return e.TxnManager.NewTxn()
}

func (e *Engine) Get(ctx context.Context, txn *txns.Txn, key string) (txns.Result, error) {
	res, err := e.TxnManager.Get(txn, key)
	if err != nil || !res.IsBlocked() {
		return res, err
	}
	return e.wait(ctx, txn)
}

func (e *Engine) Put(ctx context.Context, txn *txns.Txn, key string, val string) (txns.Result, error) {
	res, err := e.TxnManager.Put(txn, key, val)
	if err != nil || !res.IsBlocked() {
		return res, err
	}
	return e.wait(ctx, txn)
}

func (e *Engine) Commit(txn *txns.Txn) (txns.Result, error) {
	return e.TxnManager.Commit(txn)
}

func (e *Engine) Abort(txn *txns.Txn) (txns.Result, error) {
	return e.TxnManager.Abort(txn, txns.User)
}

// wait polls the pending request of txn. When ctx ends first the txn is left
// blocked and ctx's error is returned; the caller decides whether to abort.
func (e *Engine) wait(ctx context.Context, txn *txns.Txn) (txns.Result, error) {
	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return txns.Result{Status: txns.Blocked}, errors.Wrapf(ctx.Err(), "waiting for lock: xid=%d", txn.ID)
		case <-ticker.C:
			res, err := e.TxnManager.CheckLock(txn)
			if err != nil || !res.IsBlocked() {
				return res, err
			}
		}
	}
}

// Close waits for the deadlock breaker to stop, so the ctx given to Run must
// be done, and then closes the store.
func (e *Engine) Close() error {
	e.detector.Wait()
	return e.Store.Close()
}
