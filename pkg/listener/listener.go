package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/loreleilabs/certgate/pkg/config"
)

// Listener upgrades raw transport connections to TLS sessions while allowing
// the TLS configuration to be replaced at any time.
//
// Accept is intended to be driven by a single coordinating caller in a loop;
// it is not safe for concurrent callers. Each call waits on whichever of the
// snapshot source and the transport becomes ready first. Snapshot events
// install (or reject) a new server context and keep waiting; connection
// events bind the current context to a new handshake and return immediately,
// before the handshake finishes.
type Listener struct {
	inner     net.Listener
	src       config.Source
	snapshots <-chan config.Snapshot
	acceptCh  chan acceptResult
	current   atomic.Pointer[ServerContext]

	logger  *slog.Logger
	metrics *MetricsCollector

	closeOnce sync.Once
	done      chan struct{}
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// Listen binds a transport listener on the given network address and attaches
// the snapshot source. Connections arriving before the first valid snapshot
// fail with a KindConfigMissing error.
func Listen(src config.Source, network, addr string, logger *slog.Logger) (*Listener, error) {
	inner, err := net.Listen(network, addr)
	if err != nil {
		return nil, newErrorWithCause(KindTransport, "bind transport listener", err).
			WithContext("address", addr)
	}
	return NewListener(src, inner, logger), nil
}

// NewListener attaches a snapshot source to an already-bound transport. Any
// transport satisfying net.Listener can sit underneath: TCP, unix sockets,
// or in-memory pipes in tests.
func NewListener(src config.Source, inner net.Listener, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := GetMetricsCollector(logger)
	if err != nil {
		logger.Warn("listener metrics unavailable", "error", err)
	}

	l := &Listener{
		inner:     inner,
		src:       src,
		snapshots: src.Snapshots(),
		acceptCh:  make(chan acceptResult),
		logger:    logger.With("component", "listener"),
		metrics:   metrics,
		done:      make(chan struct{}),
	}
	go l.acceptPump()
	return l
}

// acceptPump feeds transport accept results to the Accept select loop. It is
// the second worker of the two-event-source race: Accept owns the snapshot
// channel directly, the pump owns the blocking transport accept.
func (l *Listener) acceptPump() {
	for {
		conn, err := l.inner.Accept()
		select {
		case l.acceptCh <- acceptResult{conn: conn, err: err}:
		case <-l.done:
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil && errors.Is(err, net.ErrClosed) {
			return
		}
	}
}

// Accept returns the next accepted connection. The returned Conn's handshake
// has only just begun; it completes (or fails) when the connection is first
// used. Handshake failures are never visible here.
//
// A transport failure is returned as a KindTransport error; the caller
// decides whether to keep looping. A connection arriving before any valid
// configuration returns a KindConfigMissing error after refusing that one
// connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-l.done:
			return nil, newErrorWithCause(KindTransport, "listener closed", net.ErrClosed)

		case snap, ok := <-l.snapshots:
			if !ok {
				// Source ended; retain the last installed context
				// indefinitely and stop selecting on it.
				l.snapshots = nil
				l.logger.Info("config snapshot source ended; retaining current tls config")
				continue
			}
			l.install(snap)

		case res := <-l.acceptCh:
			if res.err != nil {
				l.metrics.RecordAccept(ctx, acceptOutcomeTransportError)
				return nil, newErrorWithCause(KindTransport, "transport accept failed", res.err)
			}

			tctx := l.current.Load()
			if tctx == nil {
				remote := res.conn.RemoteAddr().String()
				_ = res.conn.Close()
				l.metrics.RecordAccept(ctx, acceptOutcomeConfigMissing)
				l.logger.Warn("connection refused: no valid tls config installed",
					"remote_addr", remote)
				return nil, newError(KindConfigMissing, "no valid tls config").
					WithContext("remote_addr", remote)
			}

			conn := newConn(res.conn, tctx, l.logger, l.metrics)
			l.metrics.RecordAccept(ctx, acceptOutcomeAccepted)
			l.logger.Debug("connection accepted",
				"conn_id", conn.ID(),
				"remote_addr", conn.RemoteAddr().String(),
				"local_addr", conn.LocalAddr().String())
			return conn, nil
		}
	}
}

// install compiles and atomically publishes a snapshot. A snapshot that fails
// validation is logged and dropped; the previous context, if any, remains
// authoritative so a bad reload never tears down a working listener.
func (l *Listener) install(snap config.Snapshot) {
	tctx, err := BuildServerContext(snap, l.logger)
	if err != nil {
		l.metrics.RecordReload(context.Background(), false)
		l.logger.Error("invalid tls config", "error", err)
		return
	}

	prev := l.current.Swap(tctx)
	l.metrics.RecordReload(context.Background(), true)
	if prev == nil {
		l.logger.Info("tls config loaded",
			"subject", tctx.Leaf().Subject.String(),
			"not_after", tctx.Leaf().NotAfter)
	} else {
		l.logger.Info("tls config changed",
			"subject", tctx.Leaf().Subject.String(),
			"not_after", tctx.Leaf().NotAfter)
	}
}

// Current returns the currently installed server context, or nil before the
// first successful install.
func (l *Listener) Current() *ServerContext { return l.current.Load() }

// Addr returns the transport's bound address.
func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

// Addrs returns all bound addresses. A single transport yields one entry.
func (l *Listener) Addrs() []net.Addr { return []net.Addr{l.inner.Addr()} }

// Close closes the transport listener. In-flight handshakes are abandoned
// when their connections are closed; the snapshot source is owned by the
// caller and stays open.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.inner.Close()
	})
	return err
}

// NetListener adapts l to net.Listener so it can drive serving loops such as
// http.Serve. KindConfigMissing errors report Temporary() true, which keeps
// those loops accepting while configuration has not arrived yet.
func (l *Listener) NetListener() net.Listener { return netListener{l} }

type netListener struct {
	l *Listener
}

func (a netListener) Accept() (net.Conn, error) {
	conn, err := a.l.Accept(context.Background())
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a netListener) Close() error   { return a.l.Close() }
func (a netListener) Addr() net.Addr { return a.l.Addr() }
