package listener

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is an accepted connection whose TLS handshake has only just begun.
//
// The handshake runs in its own goroutine, started at accept time and bound
// to the server context that was current when the connection arrived; later
// configuration reloads do not affect it. The first Read or Write joins the
// handshake before any payload bytes flow, so a handshake failure is observed
// exactly where the connection is consumed and nowhere else.
type Conn struct {
	raw   net.Conn
	tconn *tls.Conn
	id    string

	done  chan struct{}
	hsErr error

	closeOnce sync.Once
	closeErr  error
}

// newConn wraps raw in a TLS server connection bound to tctx and starts the
// handshake.
func newConn(raw net.Conn, tctx *ServerContext, logger *slog.Logger, metrics *MetricsCollector) *Conn {
	c := &Conn{
		raw:   raw,
		tconn: tls.Server(raw, tctx.Config()),
		id:    uuid.NewString(),
		done:  make(chan struct{}),
	}
	go c.handshake(logger, metrics)
	return c
}

func (c *Conn) handshake(logger *slog.Logger, metrics *MetricsCollector) {
	ctx := context.Background()
	if metrics != nil {
		metrics.RecordHandshakeStart(ctx)
	}
	start := time.Now()
	err := c.tconn.Handshake()
	duration := time.Since(start)

	if err != nil {
		c.hsErr = newErrorWithCause(KindHandshake, "tls handshake failed", err).
			WithContext("conn_id", c.id).
			WithContext("remote_addr", c.raw.RemoteAddr().String())
		logger.Debug("tls handshake failed",
			"conn_id", c.id,
			"remote_addr", c.raw.RemoteAddr().String(),
			"duration", duration,
			"error", err)
		if metrics != nil {
			metrics.RecordHandshakeResult(ctx, duration, "", err)
		}
		close(c.done)
		return
	}

	state := c.tconn.ConnectionState()
	logger.Debug("tls handshake completed",
		"conn_id", c.id,
		"remote_addr", c.raw.RemoteAddr().String(),
		"negotiated_protocol", state.NegotiatedProtocol,
		"duration", duration)
	if metrics != nil {
		metrics.RecordHandshakeResult(ctx, duration, state.NegotiatedProtocol, nil)
	}
	close(c.done)
}

// wait blocks until the handshake reaches a terminal outcome.
func (c *Conn) wait() error {
	<-c.done
	return c.hsErr
}

// Handshake blocks until negotiation completes and returns its outcome.
// Read and Write call it implicitly.
func (c *Conn) Handshake() error { return c.wait() }

// Read joins the handshake, then reads decrypted payload bytes.
func (c *Conn) Read(b []byte) (int, error) {
	if err := c.wait(); err != nil {
		return 0, err
	}
	return c.tconn.Read(b)
}

// Write joins the handshake, then writes payload bytes for encryption.
func (c *Conn) Write(b []byte) (int, error) {
	if err := c.wait(); err != nil {
		return 0, err
	}
	return c.tconn.Write(b)
}

// Close releases the connection. Closing before the handshake finishes
// aborts it by expiring the deadline; the outcome then decides whether the
// TLS layer (with close_notify) or the raw transport is torn down.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		select {
		case <-c.done:
		default:
			_ = c.tconn.SetDeadline(time.Now())
			<-c.done
		}
		if c.hsErr == nil {
			_ = c.tconn.SetDeadline(time.Time{})
			c.closeErr = c.tconn.Close()
			return
		}
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// ConnectionState joins the handshake and returns the negotiated session
// parameters.
func (c *Conn) ConnectionState() (tls.ConnectionState, error) {
	if err := c.wait(); err != nil {
		return tls.ConnectionState{}, err
	}
	return c.tconn.ConnectionState(), nil
}

// ID returns the connection identifier used in logs and metrics.
func (c *Conn) ID() string { return c.id }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.raw.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// SetDeadline sets the read and write deadlines, including for a handshake
// still in flight.
func (c *Conn) SetDeadline(t time.Time) error { return c.tconn.SetDeadline(t) }

// SetReadDeadline sets the read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.tconn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.tconn.SetWriteDeadline(t) }
