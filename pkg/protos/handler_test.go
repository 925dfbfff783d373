package protos

import (
	"context"
	"encoding/binary"
	"net"
	"testing"

	"simple-kv/pkg/engines"
	"simple-kv/pkg/stores"
)

type client struct {
	t    *testing.T
	conn net.Conn
}

func (c *client) do(t CommandType, payload ...string) *Command {
	c.t.Helper()
	if err := NewCommand(t, payload).Send(c.conn); err != nil {
		c.t.Fatal(err)
	}
	resp, err := ParseCommand(c.conn)
	if err != nil {
		c.t.Fatal(err)
	}
	return resp
}

func (c *client) expect(resp *Command, typ CommandType, val string) {
	c.t.Helper()
	if resp.Type != typ || len(resp.Payload) != 1 || (val != "" && resp.Payload[0] != val) {
		c.t.Fatalf("Expect %v %q, got %v %v\n", typ, val, resp.Type, resp.Payload)
	}
}

func newClient(t *testing.T, engine *engines.Engine) *client {
	ctx, cancel := context.WithCancel(context.Background())
	server, conn := net.Pipe()
	go NewHandler(engine).Handle(ctx, server)
	t.Cleanup(func() {
		conn.Close()
		cancel()
	})
	return &client{t: t, conn: conn}
}

func Test_Handler_Txn(t *testing.T) {
	engine := engines.NewEngine(stores.NewMemoryStore())
	c := newClient(t, engine)

	c.expect(c.do(Get, "a"), String, "No such key")
	c.expect(c.do(Begin), String, "Success")
	c.expect(c.do(Put, "a", "1"), String, "Success")
	c.expect(c.do(Get, "a"), String, "1")
	c.expect(c.do(Commit), String, "Transaction Completed")
	c.expect(c.do(Get, "a"), String, "1")

	c.expect(c.do(Begin), String, "Success")
	c.expect(c.do(Put, "a", "2"), String, "Success")
	c.expect(c.do(Abort), String, "User Abort")
	c.expect(c.do(Get, "a"), String, "1")
}

func Test_Handler_Errors(t *testing.T) {
	engine := engines.NewEngine(stores.NewMemoryStore())
	c := newClient(t, engine)

	c.expect(c.do(Commit), Error, "")
	c.expect(c.do(Put, "a"), Error, "")
	c.expect(c.do(Begin), String, "Success")
	c.expect(c.do(Begin), Error, "")
}

func Test_Handler_AbortOnDisconnect(t *testing.T) {
	engine := engines.NewEngine(stores.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, conn := net.Pipe()
	finished := make(chan struct{})
	go func() {
		NewHandler(engine).Handle(ctx, server)
		close(finished)
	}()

	c := &client{t: t, conn: conn}
	c.expect(c.do(Begin), String, "Success")
	c.expect(c.do(Put, "a", "1"), String, "Success")
	conn.Close()
	<-finished

	if n := len(engine.TxnManager.GetActiveTxns()); n != 0 {
		t.Fatalf("Expect no active txn, got %d\n", n)
	}
	if ok, _ := engine.Store.Has("a"); ok {
		t.Errorf("Expect the abandoned write to be rolled back")
	}
}

func Test_Handler_PayloadTooLarge(t *testing.T) {
	engine := engines.NewEngine(stores.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, conn := net.Pipe()
	defer conn.Close()
	finished := make(chan struct{})
	go func() {
		NewHandler(engine).Handle(ctx, server)
		close(finished)
	}()

	header := make([]byte, CommandHeaderLength)
	binary.BigEndian.PutUint64(header, 1<<62)
	header[8] = byte(Put)
	if _, err := conn.Write(header); err != nil {
		t.Fatal(err)
	}

	c := &client{t: t, conn: conn}
	resp, err := ParseCommand(c.conn)
	if err != nil {
		t.Fatal(err)
	}
	c.expect(resp, Error, "")
	<-finished
}

func Test_Handler_CancelAbortsTxn(t *testing.T) {
	engine := engines.NewEngine(stores.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, conn := net.Pipe()
	defer conn.Close()
	finished := make(chan struct{})
	go func() {
		NewHandler(engine).Handle(ctx, server)
		close(finished)
	}()

	c := &client{t: t, conn: conn}
	c.expect(c.do(Begin), String, "Success")
	c.expect(c.do(Put, "a", "1"), String, "Success")
	cancel()
	<-finished

	if n := len(engine.TxnManager.GetActiveTxns()); n != 0 {
		t.Fatalf("Expect no active txn, got %d\n", n)
	}
	if ok, _ := engine.Store.Has("a"); ok {
		t.Errorf("Expect the open write to be rolled back")
	}
}
