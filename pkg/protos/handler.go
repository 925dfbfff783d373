package protos

import (
	"context"
	"io"
	"net"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/engines"
	"simple-kv/pkg/logger"
	"simple-kv/pkg/txns"
)

var ErrNoTxn = errors.New("no txn in progress")

type Handler struct {
	engine  *engines.Engine
	session *Session
}

func NewHandler(engine *engines.Engine) *Handler {
	return &Handler{
		engine:  engine,
		session: NewSession(),
	}
}

// Handle serves one connection until the client hangs up or ctx ends. An
// open txn is aborted on the way out.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer h.abandon()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		req, err := ParseCommand(conn)
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return
		}

		var resp *Command
		if err != nil {
			logger.Inst.Warnw("fail to parse command", "remote", conn.RemoteAddr(), "err", err)
			resp = NewErrorCommand(err)
		} else {
			resp, err = h.Execute(ctx, req)
			if err != nil {
				logger.Inst.Warnw("fail to execute command", "remote", conn.RemoteAddr(), "type", req.Type, "err", err)
				resp = NewErrorCommand(err)
			}
		}

		if sendErr := resp.Send(conn); sendErr != nil {
			logger.Inst.Warnw("fail to send response", "remote", conn.RemoteAddr(), "err", sendErr)
			return
		}
		if errors.Is(err, ErrPayloadTooLarge) {
			return
		}
	}
}

func (h *Handler) abandon() {
	txn := h.session.GetTxn()
	if txn == nil {
		return
	}
	if _, err := h.engine.Abort(txn); err != nil {
		logger.Inst.Errorw("fail to abort abandoned txn", "xid", txn.ID, "err", err)
	}
	h.session.SetTxn(nil)
}

// Execute runs one request. Requests outside BEGIN ... COMMIT run in their
// own txn, committed right away.
func (h *Handler) Execute(ctx context.Context, req *Command) (*Command, error) {
	if len(req.Payload) != req.Type.Arity() {
		return nil, errors.Newf("invalid payload: type=%v, expect=%d, got=%d", req.Type, req.Type.Arity(), len(req.Payload))
	}

	switch req.Type {
	case Begin:
		if h.session.GetTxn() != nil {
			return nil, errors.Newf("txn in progress: xid=%d", h.session.GetTxn().ID)
		}
		h.session.SetTxn(h.engine.NewTxn())
		return NewStringCommand(txns.Success.String()), nil

	case Commit, Abort:
		txn := h.session.GetTxn()
		if txn == nil {
			return nil, ErrNoTxn
		}
		h.session.SetTxn(nil)
		var res txns.Result
		var err error
		if req.Type == Commit {
			res, err = h.engine.Commit(txn)
		} else {
			res, err = h.engine.Abort(txn)
		}
		if err != nil {
			return nil, err
		}
		return NewStringCommand(res.String()), nil

	case Get, Put:
		return h.request(ctx, req)

	default:
		return nil, errors.Newf("invalid command type: type=%v", req.Type)
	}
}

func (h *Handler) request(ctx context.Context, req *Command) (*Command, error) {
	txn := h.session.GetTxn()
	isLocalTxn := txn == nil
	if isLocalTxn {
		txn = h.engine.NewTxn()
	}

	var res txns.Result
	var err error
	if req.Type == Get {
		res, err = h.engine.Get(ctx, txn, req.Payload[0])
	} else {
		res, err = h.engine.Put(ctx, txn, req.Payload[0], req.Payload[1])
	}

	switch {
	case err != nil:
		// a txn that failed mid-request cannot be trusted to commit
		_, _ = h.engine.Abort(txn)
		h.session.SetTxn(nil)
		return nil, err
	case res.Status == txns.DeadlockAbort:
		h.session.SetTxn(nil)
	case isLocalTxn:
		if _, err = h.engine.Commit(txn); err != nil {
			return nil, err
		}
	}
	return NewStringCommand(res.String()), nil
}
