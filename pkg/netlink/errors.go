package netlink

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrCredentials is returned for credentials that can never associate.
	ErrCredentials = errors.New("netlink: invalid credentials")

	// ErrNotReady is returned when a socket operation is attempted before
	// the link is associated and holds an address.
	ErrNotReady = errors.New("netlink: link not ready")

	// ErrNotConnected is returned when the socket has no open connection.
	ErrNotConnected = errors.New("netlink: socket not connected")

	// ErrWouldBlock is returned by a read when no bytes are buffered yet.
	ErrWouldBlock = errors.New("netlink: would block")

	// ErrBufferFull is returned when a write does not fit the tx buffer.
	ErrBufferFull = errors.New("netlink: tx buffer full")
)

// AssocError is a driver-reported association failure.
type AssocError struct {
	Op  string
	Err error
}

func (e *AssocError) Error() string {
	return fmt.Sprintf("association failed during %s: %v", e.Op, e.Err)
}

func (e *AssocError) Unwrap() error { return e.Err }

// OpenError is returned when the socket could not connect.
type OpenError struct {
	Endpoint netip.AddrPort
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Endpoint, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// WriteError is returned when buffered bytes could not be transmitted.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
