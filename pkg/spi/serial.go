package spi

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/tcreport/pkg/max6675"
)

const (
	// DefaultBaudRate is the default bridge baud rate.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds a single bridge transfer.
	DefaultTimeout = 100 * time.Millisecond
)

// ErrShortTransfer is returned when the bridge answers with fewer bytes than
// were clocked.
var ErrShortTransfer = errors.New("serial bridge: short transfer")

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial is an SPI-over-UART bridge: every byte written is clocked out on
// the bridge's SPI bus and the byte clocked in is echoed back.
type Serial struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
}

// Ensure Serial implements max6675.Bus.
var _ max6675.Bus = (*Serial)(nil)

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// OpenSerial opens the bridge on port.
func OpenSerial(port string, baudRate int, timeout time.Duration) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	conn, err := serial.Open(port, &serial.Mode{
		BaudRate: baudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}

	if err := conn.SetReadTimeout(timeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	return &Serial{conn: conn}, nil
}

// Tx clocks len(r) bytes through the bridge. w may be shorter than r; missing
// bytes are sent as zero.
func (s *Serial) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [16]byte
	if len(r) > len(out) {
		return fmt.Errorf("serial bridge: transfer of %d bytes exceeds %d", len(r), len(out))
	}
	copy(out[:len(r)], w)

	if _, err := s.conn.Write(out[:len(r)]); err != nil {
		return fmt.Errorf("serial bridge: write failed: %w", err)
	}

	// A read timeout is reported by the port as a zero-length read.
	for got := 0; got < len(r); {
		n, err := s.conn.Read(r[got:])
		if err != nil {
			return fmt.Errorf("serial bridge: read failed: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: got %d of %d bytes", ErrShortTransfer, got, len(r))
		}
		got += n
	}

	return nil
}

// Close closes the bridge port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
