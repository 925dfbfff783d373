package protos

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"simple-kv/pkg/engines"
	"simple-kv/pkg/stores"
)

func queued(engine *engines.Engine, key string) int {
	for _, state := range engine.Table.Snapshot() {
		if state.Key == key {
			return len(state.Queue)
		}
	}
	return 0
}

func Test_Server_Shutdown(t *testing.T) {
	fs := vfs.NewMem()
	store, err := stores.OpenPebbleStore("db", fs)
	if err != nil {
		t.Fatal(err)
	}
	engine := engines.NewEngine(store)
	server := NewServer("127.0.0.1", "0", engine)
	if err = server.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() {
		stopped <- server.Run(ctx)
	}()

	dial := func() *client {
		conn, err := net.Dial("tcp", server.Listener.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { conn.Close() })
		return &client{t: t, conn: conn}
	}

	holder := dial()
	holder.expect(holder.do(Begin), String, "Success")
	holder.expect(holder.do(Put, "a", "1"), String, "Success")

	// the second writer stays blocked behind the holder
	waiter := dial()
	if err = NewCommand(Put, []string{"a", "2"}).Send(waiter.conn); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for queued(engine, "a") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Expect the second writer to be queued")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err = server.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err = <-stopped:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Expect Run to return after shutdown")
	}

	if n := len(engine.TxnManager.GetActiveTxns()); n != 0 {
		t.Errorf("Expect every txn aborted before the store closed, got %d active\n", n)
	}

	reopened, err := stores.OpenPebbleStore("db", fs)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	val, err := reopened.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !val.Absent {
		t.Errorf("Expect the open write rolled back, got %v\n", val)
	}
}
