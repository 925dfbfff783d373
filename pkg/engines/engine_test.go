package engines

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/stores"
	"simple-kv/pkg/txns"
)

func newRunningEngine(t *testing.T) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewEngine(stores.NewMemoryStore()).Run(ctx)
}

func Test_Basic(t *testing.T) {
	engine := NewEngine(stores.NewMemoryStore())
	bg := context.Background()

	txn1 := engine.NewTxn()
	_, _ = engine.Put(bg, txn1, "a", "30")

	txn2 := engine.NewTxn()
	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	res, err := engine.Get(ctx, txn2, "a")
	if !errors.Is(err, context.DeadlineExceeded) || !res.IsBlocked() {
		t.Fatalf("Expect to time out while blocked, got %v (err=%v)\n", res, err)
	}

	_, _ = engine.Commit(txn1)
	res, err = engine.wait(bg, txn2)
	if err != nil || res.Value != "30" {
		t.Fatalf("Expect 30, got %v (err=%v)\n", res, err)
	}
	_, _ = engine.Commit(txn2)
}

func Test_Deadlock(t *testing.T) {
	engine := newRunningEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := sync.WaitGroup{}
	done.Add(2)
	latch := sync.WaitGroup{}
	latch.Add(2)

	results := make([]txns.Result, 2)
	run := func(i int, first string, second string) {
		defer done.Done()
		txn := engine.NewTxn()

		_, _ = engine.Put(ctx, txn, first, strconv.Itoa(i))
		latch.Done()
		latch.Wait()
		res, err := engine.Put(ctx, txn, second, strconv.Itoa(i))
		if err != nil {
			t.Error(err)
		}
		results[i] = res
		if res.Status == txns.Success {
			_, _ = engine.Commit(txn)
		}
	}
	go run(0, "a", "b")
	go run(1, "b", "a")
	done.Wait()

	aborted := 0
	for _, res := range results {
		if res.Status == txns.DeadlockAbort {
			aborted++
		} else if res.Status != txns.Success {
			t.Errorf("Expect Success or Deadlock Abort, got %v\n", res)
		}
	}
	if aborted != 1 {
		t.Fatalf("Expect exactly one victim, got %v\n", results)
	}
}

func Test_DirtyRead(t *testing.T) {
	engine := newRunningEngine(t)
	bg := context.Background()

	done := &sync.WaitGroup{}
	done.Add(2)

	t1 := NewThread(done).Run()
	t2 := NewThread(done).Run()

	txn1 := engine.NewTxn()
	txn2 := engine.NewTxn()
	read := make(chan txns.Result, 1)
	t1.Do(func() bool {
		_, err := engine.Put(bg, txn1, "A", "1")
		if err != nil {
			t.Error(err)
		}
		return false
	})

	t2.Do(func() bool {
		res, err := engine.Get(bg, txn2, "A")
		if err != nil {
			t.Error(err)
		}
		read <- res
		_, _ = engine.Commit(txn2)
		return true
	})

	t1.Do(func() bool {
		time.Sleep(10 * time.Millisecond)
		_, _ = engine.Abort(txn1)
		return true
	})
	done.Wait()

	if res := <-read; res.Status != txns.NoSuchKey {
		t.Fatalf("Expect No such key, got %v\n", res)
	}
}

func Test_LostUpdate(t *testing.T) {
	engine := newRunningEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	txn := engine.NewTxn()
	_, _ = engine.Put(ctx, txn, "A", "Null")
	_, _ = engine.Commit(txn)

	done := sync.WaitGroup{}
	done.Add(2)
	latch := sync.WaitGroup{}
	latch.Add(2)
	update := func(name string) {
		defer done.Done()
		txn := engine.NewTxn()
		res, err := engine.Get(ctx, txn, "A")
		if err != nil {
			t.Error(err)
		}
		latch.Done()
		latch.Wait()

		put, err := engine.Put(ctx, txn, "A", res.Value+":"+name)
		if err != nil {
			t.Error(err)
		}
		if put.Status == txns.Success {
			_, _ = engine.Commit(txn)
		}
	}
	go update("t1")
	go update("t2")
	done.Wait()

	txn = engine.NewTxn()
	defer engine.Commit(txn)
	res, _ := engine.Get(ctx, txn, "A")

	// one of two txns should be aborted
	expect := []string{"Null:t2", "Null:t1"}
	if res.Value != expect[0] && res.Value != expect[1] {
		t.Fatalf("Expect %v, got %s\n", expect, res)
	}
}

func Test_Concurrency(t *testing.T) {
	const scale = 2000
	engine := newRunningEngine(t)
	bg := context.Background()

	done := sync.WaitGroup{}
	done.Add(scale)
	for i := 0; i < scale; i++ {
		go func(i int) {
			defer done.Done()
			txn := engine.NewTxn()
			defer engine.Commit(txn)

			key := strconv.Itoa(i)
			if _, err := engine.Put(bg, txn, key, key); err != nil {
				t.Error(err)
			}
		}(i)
	}
	done.Wait()

	txn := engine.NewTxn()
	defer engine.Commit(txn)
	for i := 0; i < scale; i++ {
		key := strconv.Itoa(i)
		res, err := engine.Get(bg, txn, key)
		if err != nil {
			t.Error(err)
		} else if res.Value != key {
			t.Fatalf("Expect %s, got %s", key, res)
		}
	}
}
