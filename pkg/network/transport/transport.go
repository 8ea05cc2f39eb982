// Package transport serves length-prefixed frames over QUIC. Each
// bidirectional stream carries one request frame followed by one reply frame;
// the payload encoding belongs to the Handler.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/pkg/log"
)

// ALPN is the only protocol the server negotiates.
const ALPN = "pebblekv/1"

// MaxIdleTimeout defines the maximum duration a connection can be idle
// before timing out.
const MaxIdleTimeout = 5 * time.Minute

// StreamTimeout bounds reading a request and writing its response. The
// dispatch itself is bounded by the connection context only.
const StreamTimeout = 30 * time.Second

// Handler answers one request payload with one reply payload. A returned
// error drops the stream without a reply.
type Handler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// Config contains the parameters of a Server.
type Config struct {
	ListenAddr string
	TLSCert    *tls.Certificate
	Handler    Handler
}

// Server accepts QUIC connections and dispatches their streams.
type Server struct {
	config   Config
	listener *quic.Listener
	logger   zerolog.Logger

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// NewServer validates config. Call Start to begin listening.
func NewServer(config Config) (*Server, error) {
	if config.TLSCert == nil {
		return nil, fmt.Errorf("TLS certificate required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
		logger: log.Network,
	}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  MaxIdleTimeout,
		KeepAlivePeriod: MaxIdleTimeout / 3,
	}
}

// Start opens the listener and runs the accept loop in the background.
func (s *Server) Start() error {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*s.config.TLSCert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}

	listener, err := quic.ListenAddr(s.config.ListenAddr, tlsConfig, quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.listener = listener
	s.done = make(chan struct{})
	go func() {
		s.acceptLoop()
		close(s.done)
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("QUIC server listening")
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every connection, then waits for the
// streams still being served. Calls after the first return its result.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})
	return s.stopErr
}

func (s *Server) stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.conns {
		if err := conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close connection")
		}
	}
	s.conns = make(map[*Conn]struct{})
	s.mu.Unlock()

	err := s.listener.Close()
	<-s.done
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop() {
	for {
		qConn, err := s.listener.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("failed to accept connection")
				continue
			}
			return
		}

		conn := s.track(qConn)
		if conn == nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			conn.serve()
		}()
	}
}

// track registers a connection, or closes it if the server is stopping.
func (s *Server) track(qConn quic.Connection) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		if err := qConn.CloseWithError(0, ErrServerClosed.Error()); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close connection")
		}
		return nil
	}
	conn := newConn(s.ctx, qConn, s)
	s.conns[conn] = struct{}{}
	return conn
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleStream reads one request, hands it to the Handler and writes the
// reply.
func (s *Server) handleStream(ctx context.Context, stream quic.Stream) {
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close stream")
		}
	}()

	readCtx, cancel := context.WithTimeout(ctx, StreamTimeout)
	payload, err := ReadFrame(readCtx, stream)
	cancel()
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to read request")
		stream.CancelRead(0)
		return
	}

	out, err := s.config.Handler.Handle(ctx, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to handle request")
		stream.CancelWrite(0)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()
	if err := WriteFrame(writeCtx, stream, out); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write reply")
	}
}
