package netlink

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"time"
)

const (
	// BufferSize is the fixed capacity of each socket buffer.
	BufferSize = 1536

	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultReadSlice      = time.Millisecond
)

type socketState int

const (
	socketClosed socketState = iota
	socketOpen
	socketHalfClosed
)

// closeWriter is implemented by connections supporting a half-close.
type closeWriter interface {
	CloseWrite() error
}

// Socket is the single reusable stream socket of a Link. Its buffers are
// fixed-size and allocated once; each Open resets them.
type Socket struct {
	link   *Link
	dialer Dialer

	connectTimeout time.Duration
	writeTimeout   time.Duration
	readSlice      time.Duration

	conn     net.Conn
	state    socketState
	endpoint netip.AddrPort
	eof      bool
	err      error

	rx         [BufferSize]byte
	rxHead     int
	rxTail     int
	tx         [BufferSize]byte
	txLen      int
	discarding bool
}

func newSocket(l *Link, d Dialer) *Socket {
	return &Socket{
		link:           l,
		dialer:         d,
		connectTimeout: defaultConnectTimeout,
		writeTimeout:   defaultWriteTimeout,
		readSlice:      defaultReadSlice,
	}
}

// Open connects to endpoint. The link must be Ready; no connection attempt
// is made otherwise. Any previous connection and buffered bytes are dropped.
func (s *Socket) Open(ctx context.Context, endpoint netip.AddrPort) error {
	if !s.link.IfaceUp() {
		return &OpenError{Endpoint: endpoint, Err: ErrNotReady}
	}

	s.reset()

	dctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dctx, "tcp", endpoint.String())
	if err != nil {
		return &OpenError{Endpoint: endpoint, Err: err}
	}

	s.conn = conn
	s.state = socketOpen
	s.endpoint = endpoint
	return nil
}

// Write appends p to the tx buffer. Nothing is sent until Flush. Data that
// does not fit is rejected whole.
func (s *Socket) Write(p []byte) (int, error) {
	if s.state != socketOpen {
		return 0, ErrNotConnected
	}
	if len(p) > len(s.tx)-s.txLen {
		return 0, ErrBufferFull
	}
	n := copy(s.tx[s.txLen:], p)
	s.txLen += n
	return n, nil
}

// Flush transmits the tx buffer.
func (s *Socket) Flush() error {
	if s.state != socketOpen {
		return &WriteError{Err: ErrNotConnected}
	}
	if s.txLen == 0 {
		return nil
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return &WriteError{Err: err}
	}
	n, err := s.conn.Write(s.tx[:s.txLen])
	if err != nil {
		copy(s.tx[:], s.tx[n:s.txLen])
		s.txLen -= n
		return &WriteError{Err: err}
	}
	s.txLen = 0
	return nil
}

// Read copies buffered inbound bytes into p without blocking. It returns
// ErrWouldBlock when nothing is buffered yet and io.EOF once the peer closed
// the connection and the buffer is drained.
func (s *Socket) Read(p []byte) (int, error) {
	if s.rxHead < s.rxTail {
		n := copy(p, s.rx[s.rxHead:s.rxTail])
		s.rxHead += n
		return n, nil
	}
	switch {
	case s.eof && s.err != nil:
		return 0, s.err
	case s.eof:
		return 0, io.EOF
	case s.state == socketOpen:
		return 0, ErrWouldBlock
	}
	return 0, ErrNotConnected
}

// Disconnect half-closes the connection. Polling must continue for a while
// so the close handshake completes; inbound bytes are discarded meanwhile.
func (s *Socket) Disconnect() {
	if s.conn == nil {
		return
	}

	s.txLen = 0
	s.rxHead, s.rxTail = 0, 0
	s.discarding = true

	if cw, ok := s.conn.(closeWriter); ok && !s.eof {
		if err := cw.CloseWrite(); err == nil {
			s.state = socketHalfClosed
			return
		}
	}
	s.close()
}

// Pending returns the number of buffered inbound bytes.
func (s *Socket) Pending() int {
	return s.rxTail - s.rxHead
}

// IsOpen reports whether a connection is established and not yet closed
// by Disconnect.
func (s *Socket) IsOpen() bool {
	return s.state == socketOpen
}

// poll performs at most one bounded read into the rx buffer.
func (s *Socket) poll() {
	if s.conn == nil {
		return
	}
	if s.eof {
		if s.state == socketHalfClosed {
			s.close()
		}
		return
	}

	if s.discarding {
		s.rxHead, s.rxTail = 0, 0
	} else if s.rxHead > 0 {
		copy(s.rx[:], s.rx[s.rxHead:s.rxTail])
		s.rxTail -= s.rxHead
		s.rxHead = 0
	}
	if s.rxTail == len(s.rx) {
		return
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.readSlice)); err != nil {
		s.fail(err)
		return
	}
	n, err := s.conn.Read(s.rx[s.rxTail:])
	s.rxTail += n
	if s.discarding {
		s.rxHead, s.rxTail = 0, 0
	}

	switch {
	case err == nil:
	case isTimeout(err):
	case errors.Is(err, io.EOF):
		s.eof = true
		if s.state == socketHalfClosed {
			s.close()
		}
	default:
		s.fail(err)
	}
}

func (s *Socket) fail(err error) {
	s.eof = true
	s.err = err
	if s.state == socketHalfClosed {
		s.close()
	}
}

func (s *Socket) close() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = socketClosed
}

// reset closes any connection and empties both buffers.
func (s *Socket) reset() {
	s.close()
	s.eof = false
	s.err = nil
	s.discarding = false
	s.rxHead, s.rxTail = 0, 0
	s.txLen = 0
	s.endpoint = netip.AddrPort{}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
