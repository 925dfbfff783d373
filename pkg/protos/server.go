package protos

import (
	"context"
	"net"
	"sync"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/engines"
	"simple-kv/pkg/logger"
)

type Server struct {
	Hostname string
	Port     string
	Listener net.Listener
	Engine   *engines.Engine

	handlers sync.WaitGroup
}

func NewServer(hostname string, port string, engine *engines.Engine) *Server {
	return &Server{
		Hostname: hostname,
		Port:     port,
		Listener: nil,
		Engine:   engine,
	}
}

// Listen binds the server address. Run calls it when it has not been called.
func (s *Server) Listen() (err error) {
	addr := net.JoinHostPort(s.Hostname, s.Port)
	s.Listener, err = net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen: addr=%s", addr)
	}
	logger.Inst.Infow("server listening", "addr", s.Listener.Addr().String())
	return nil
}

// Run serves connections until the listener is closed. On the way out it ends
// every handler, waits for them to abort their open txns, and only then closes
// the engine and its store.
func (s *Server) Run(ctx context.Context) (err error) {
	if s.Listener == nil {
		if err = s.Listen(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s.Engine.Run(ctx)
	defer func() {
		cancel()
		s.handlers.Wait()
		err = errors.CombineErrors(err, s.Engine.Close())
	}()

	for {
		conn, acceptErr := s.Listener.Accept()
		if acceptErr != nil {
			if errors.Is(acceptErr, net.ErrClosed) {
				return nil
			}
			return acceptErr
		}

		handler := NewHandler(s.Engine)
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			handler.Handle(ctx, conn)
		}()
	}
}

// Close stops accepting connections. Run returns once the handlers are done.
func (s *Server) Close() error {
	if s.Listener == nil {
		return nil
	}
	return s.Listener.Close()
}
