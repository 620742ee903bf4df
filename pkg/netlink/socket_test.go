package netlink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer accepts connections and hands each one to handle.
func startServer(t *testing.T, handle func(net.Conn)) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	return ln.Addr().(*net.TCPAddr).AddrPort()
}

// pollUntil polls the link until done returns true or the attempts run out.
func pollUntil(t *testing.T, link *Link, done func() bool) {
	t.Helper()
	for i := 0; i < 5000; i++ {
		link.Poll()
		if done() {
			return
		}
	}
	t.Fatal("condition not reached")
}

// countingDialer records dial attempts.
type countingDialer struct {
	net.Dialer
	dials int
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials++
	return d.Dialer.DialContext(ctx, network, address)
}

func TestSocket_OpenRequiresReadyLink(t *testing.T) {
	dialer := &countingDialer{}
	radio := &SimRadio{SSID: testSSID, Password: testPassword}
	link, _ := newTestLink(radio, &SimLeaser{}, WithDialer(dialer))

	err := link.Socket().Open(context.Background(), netip.MustParseAddrPort("127.0.0.1:9"))

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, dialer.dials)
}

func TestSocket_Exchange(t *testing.T) {
	request := []byte("GET /temp/1/23.25 HTTP/1.0\r\nHost: 127.0.0.1\r\n\r\n")
	response := []byte("HTTP/1.0 200 OK\r\n\r\nok")

	received := make(chan []byte, 1)
	ep := startServer(t, func(conn net.Conn) {
		buf := make([]byte, len(request))
		_, err := io.ReadFull(conn, buf)
		if err != nil {
			return
		}
		received <- buf
		conn.Write(response)
	})

	link, _, _ := readyLink(t)
	sock := link.Socket()

	require.NoError(t, sock.Open(context.Background(), ep))
	assert.True(t, sock.IsOpen())
	n, err := sock.Write(request)
	require.NoError(t, err)
	assert.Equal(t, len(request), n)
	require.NoError(t, sock.Flush())

	var got bytes.Buffer
	buf := make([]byte, 8)
	pollUntil(t, link, func() bool {
		for {
			n, err := sock.Read(buf)
			got.Write(buf[:n])
			switch {
			case err == nil:
				continue
			case errors.Is(err, ErrWouldBlock):
				return false
			default:
				assert.ErrorIs(t, err, io.EOF)
				return true
			}
		}
	})

	assert.Equal(t, request, <-received)
	assert.Equal(t, response, got.Bytes())
}

func TestSocket_SilentPeerWouldBlock(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	ep := startServer(t, func(conn net.Conn) { <-release })

	link, _, _ := readyLink(t)
	sock := link.Socket()
	require.NoError(t, sock.Open(context.Background(), ep))

	for i := 0; i < 10; i++ {
		require.NoError(t, link.Poll())
		_, err := sock.Read(make([]byte, 16))
		assert.ErrorIs(t, err, ErrWouldBlock)
	}
}

func TestSocket_ReadSliceBoundsPollWait(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	ep := startServer(t, func(conn net.Conn) { <-release })

	link, _, _ := readyLink(t, WithReadSlice(40*time.Millisecond))
	sock := link.Socket()
	require.NoError(t, sock.Open(context.Background(), ep))

	started := time.Now()
	require.NoError(t, link.Poll())
	assert.GreaterOrEqual(t, time.Since(started), 40*time.Millisecond, "poll waits one read slice")
	_, err := sock.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestSocket_WriteBounds(t *testing.T) {
	ep := startServer(t, func(conn net.Conn) { io.Copy(io.Discard, conn) })

	link, _, _ := readyLink(t)
	sock := link.Socket()

	_, err := sock.Write([]byte("early"))
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, sock.Open(context.Background(), ep))
	_, err = sock.Write(make([]byte, BufferSize))
	require.NoError(t, err)
	n, err := sock.Write([]byte{1})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, 0, n)

	require.NoError(t, sock.Flush())
	_, err = sock.Write([]byte{1})
	assert.NoError(t, err, "flush empties the tx buffer")
}

func TestSocket_ReuseAfterDisconnect(t *testing.T) {
	ep := startServer(t, func(conn net.Conn) {
		// Answer, then wait for the client's half-close before closing.
		conn.Write([]byte("first"))
		io.Copy(io.Discard, conn)
	})

	link, _, _ := readyLink(t)
	sock := link.Socket()

	for cycle := 0; cycle < 3; cycle++ {
		require.NoError(t, sock.Open(context.Background(), ep), "cycle %d", cycle)
		assert.Equal(t, 0, sock.Pending(), "cycle %d starts with empty buffers", cycle)

		pollUntil(t, link, func() bool { return sock.Pending() == len("first") })

		sock.Disconnect()
		assert.Equal(t, 0, sock.Pending(), "disconnect drops unread bytes")
		assert.False(t, sock.IsOpen())

		pollUntil(t, link, func() bool { return sock.conn == nil })
		_, err := sock.Read(make([]byte, 8))
		assert.Error(t, err)
	}
}

func TestSocket_OpenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep := ln.Addr().(*net.TCPAddr).AddrPort()
	ln.Close()

	link, _, _ := readyLink(t, WithConnectTimeout(time.Second))
	err = link.Socket().Open(context.Background(), ep)

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, ep, openErr.Endpoint)
	assert.False(t, link.Socket().IsOpen())
}

func TestSocket_LinkLossResetsSocket(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	ep := startServer(t, func(conn net.Conn) { <-release })

	link, radio, _ := readyLink(t)
	sock := link.Socket()
	require.NoError(t, sock.Open(context.Background(), ep))

	radio.Drop()
	require.NoError(t, link.Poll())
	assert.False(t, sock.IsOpen())
	_, err := sock.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotConnected)
}
