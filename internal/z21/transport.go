package z21

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Transport defaults.
const (
	// defaultDialTimeout bounds opening the UDP socket.
	defaultDialTimeout = 5 * time.Second

	// defaultWriteTimeout bounds a single datagram write.
	defaultWriteTimeout = 2 * time.Second

	// readPollInterval is the read deadline used by the receive loop so
	// that shutdown is observed even when the station is silent.
	readPollInterval = time.Second

	// maxDatagramSize covers every Z21 datagram with room to spare.
	maxDatagramSize = 1500
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Transport is the datagram socket underneath the protocol client.
// It does not interpret payloads.
type Transport interface {
	// Connect opens the socket to addr ("host:port").
	Connect(ctx context.Context, addr string) error

	// Send writes one datagram.
	Send(ctx context.Context, data []byte) error

	// SetReceiveHandler installs the callback for inbound datagrams.
	// The callback runs on the receive goroutine in arrival order and
	// receives a slice it may keep.
	SetReceiveHandler(handler func([]byte))

	// Close stops the receive loop and closes the socket. Idempotent.
	Close() error

	// IsConnected reports whether the socket is open.
	IsConnected() bool
}

// TransportStats holds socket-level counters.
type TransportStats struct {
	DatagramsTx uint64
	DatagramsRx uint64
	BytesTx     uint64
	BytesRx     uint64
	Errors      uint64
}

// Ensure UDPTransport implements Transport.
var _ Transport = (*UDPTransport)(nil)

// UDPTransport is a connected UDP socket with a background receive loop.
//
// A closed transport may be connected again; each Connect starts a fresh
// receive loop.
type UDPTransport struct {
	connMu sync.RWMutex
	conn   net.Conn
	done   *closeOnce
	wg     sync.WaitGroup

	sendMu sync.Mutex

	handlerMu sync.RWMutex
	handler   func([]byte)

	logger   Logger
	loggerMu sync.RWMutex

	datagramsTx atomic.Uint64
	datagramsRx atomic.Uint64
	bytesTx     atomic.Uint64
	bytesRx     atomic.Uint64
	errorsTotal atomic.Uint64
}

// NewUDPTransport returns an unconnected transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{}
}

// SetLogger sets the logger for this transport.
func (t *UDPTransport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// Connect dials addr over UDP and starts the receive loop.
// Calling Connect on an open transport is a no-op.
func (t *UDPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "udp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}

	t.conn = conn
	t.done = newCloseOnce()

	t.wg.Add(1)
	go t.receiveLoop(conn, t.done)

	t.logInfo("udp transport connected", "remote", conn.RemoteAddr().String())
	return nil
}

// receiveLoop reads datagrams until done is closed or the socket fails.
func (t *UDPTransport) receiveLoop(conn net.Conn, done *closeOnce) {
	defer t.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-done.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			t.logError("set read deadline failed", err)
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-done.Done():
				return
			default:
			}
			// ICMP port-unreachable surfaces as a read error on connected UDP
			// sockets while the station is offline. Keep listening.
			t.errorsTotal.Add(1)
			t.logDebug("udp read error", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		t.datagramsRx.Add(1)
		t.bytesRx.Add(uint64(n)) //nolint:gosec // n is non-negative

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		t.handlerMu.RLock()
		handler := t.handler
		t.handlerMu.RUnlock()

		if handler != nil {
			handler(datagram)
		}
	}
}

// Send writes one datagram. Sends are serialised.
func (t *UDPTransport) Send(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}

	n, err := conn.Write(data)
	if err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	t.datagramsTx.Add(1)
	t.bytesTx.Add(uint64(n)) //nolint:gosec // n is non-negative
	return nil
}

// SetReceiveHandler installs the inbound datagram callback.
func (t *UDPTransport) SetReceiveHandler(handler func([]byte)) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

// Close stops the receive loop and closes the socket.
// Safe to call multiple times.
func (t *UDPTransport) Close() error {
	t.connMu.Lock()
	conn := t.conn
	done := t.done
	t.conn = nil
	t.connMu.Unlock()

	if conn == nil {
		return nil
	}

	done.Close()
	err := conn.Close()
	t.wg.Wait()

	t.logInfo("udp transport closed")
	if err != nil {
		return fmt.Errorf("closing udp socket: %w", err)
	}
	return nil
}

// IsConnected reports whether the socket is open.
func (t *UDPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// LocalAddr returns the local socket address, or nil when closed.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Stats returns socket counters.
func (t *UDPTransport) Stats() TransportStats {
	return TransportStats{
		DatagramsTx: t.datagramsTx.Load(),
		DatagramsRx: t.datagramsRx.Load(),
		BytesTx:     t.bytesTx.Load(),
		BytesRx:     t.bytesRx.Load(),
		Errors:      t.errorsTotal.Load(),
	}
}

func (t *UDPTransport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

func (t *UDPTransport) logInfo(msg string, keysAndValues ...any) {
	if l := t.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (t *UDPTransport) logDebug(msg string, keysAndValues ...any) {
	if l := t.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (t *UDPTransport) logError(msg string, err error) {
	if l := t.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
