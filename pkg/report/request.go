package report

import (
	"errors"
	"net/netip"
	"strconv"
)

// RequestSize is the capacity of the request buffer.
const RequestSize = 128

var (
	// ErrRequestOverflow is returned when a request does not fit RequestSize.
	ErrRequestOverflow = errors.New("report: request exceeds buffer")

	// ErrInvalidPath is returned for a request path that is not a plain
	// absolute path.
	ErrInvalidPath = errors.New("report: invalid request path")
)

// CheckPath accepts a path starting with '/' made of visible ASCII only.
// Spaces and line breaks would split the request line.
func CheckPath(path string) error {
	if len(path) == 0 || path[0] != '/' {
		return ErrInvalidPath
	}
	for i := 0; i < len(path); i++ {
		if c := path[i]; c <= ' ' || c > '~' {
			return ErrInvalidPath
		}
	}
	return nil
}

// Request is a fixed-capacity HTTP/1.0 GET request, rewritten every cycle.
type Request struct {
	buf [RequestSize]byte
	n   int
}

// Format writes "GET <path><celsius> HTTP/1.0" with a Host header naming
// host. The temperature is rounded to two decimals. On overflow the
// request is left empty.
func (r *Request) Format(path string, celsius float32, host netip.AddrPort) error {
	b := r.buf[:0:RequestSize]
	b = append(b, "GET "...)
	b = append(b, path...)
	b = strconv.AppendFloat(b, float64(celsius), 'f', 2, 32)
	b = append(b, " HTTP/1.0\r\nHost: "...)
	b = host.AppendTo(b)
	b = append(b, "\r\n\r\n"...)

	if len(b) > RequestSize {
		r.n = 0
		return ErrRequestOverflow
	}
	r.n = len(b)
	return nil
}

// Bytes returns the formatted request. It aliases the internal buffer.
func (r *Request) Bytes() []byte {
	return r.buf[:r.n]
}

func (r *Request) String() string {
	return string(r.Bytes())
}
