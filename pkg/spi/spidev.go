// Package spi provides host-side buses for the thermocouple converter.
package spi

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/itohio/tcreport/pkg/max6675"
)

// SPIDev is a Linux spidev port. The kernel asserts chip-select around every
// transfer.
type SPIDev struct {
	port spi.PortCloser
	conn spi.Conn
}

// Ensure SPIDev implements max6675.Bus.
var _ max6675.Bus = (*SPIDev)(nil)

// OpenSPIDev opens the named spidev port in mode 0, 8 bits per word, MSB first.
// An empty name selects the first port found.
func OpenSPIDev(name string, hz int64) (*SPIDev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi port %s: %w", name, err)
	}

	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure spi port %s: %w", name, err)
	}

	return &SPIDev{port: port, conn: conn}, nil
}

// Tx performs one full-duplex transfer.
func (d *SPIDev) Tx(w, r []byte) error {
	return d.conn.Tx(w, r)
}

// Close releases the port.
func (d *SPIDev) Close() error {
	return d.port.Close()
}
