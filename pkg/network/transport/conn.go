package transport

import (
	"context"
	"sync"

	"github.com/quic-go/quic-go"
)

// Conn is an accepted client connection. Its context is cancelled when the
// connection or the server closes.
type Conn struct {
	QConn  quic.Connection
	server *Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newConn(parent context.Context, qConn quic.Connection, server *Server) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		QConn:  qConn,
		server: server,
		ctx:    ctx,
		cancel: cancel,
	}
}

// serve accepts streams until the connection ends, then waits for the
// streams in flight.
func (c *Conn) serve() {
	defer c.wg.Wait()
	defer c.cancel()

	for {
		stream, err := c.QConn.AcceptStream(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.server.logger.Debug().Err(err).
					Str("remote", c.QConn.RemoteAddr().String()).
					Msg("connection ended")
			}
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.server.handleStream(c.ctx, stream)
		}()
	}
}

// Close closes the connection and cancels its streams.
func (c *Conn) Close() error {
	c.cancel()
	return c.QConn.CloseWithError(0, "")
}

// Context returns the connection's context.
func (c *Conn) Context() context.Context {
	return c.ctx
}
