// Package max6675 reads a MAX6675 cold-junction compensated thermocouple
// converter over a read-only SPI bus.
package max6675

import (
	"errors"
	"fmt"
)

const (
	// faultBit is set by the converter when the thermocouple input is open.
	faultBit Raw = 0x0004
	// resolution is the temperature weight of one count in °C.
	resolution = 0.25
	// wordSize is the fixed transfer length in bytes.
	wordSize = 2
)

// ErrNoSensor is returned when the converter reports an open thermocouple
// input. It is expected whenever the probe is unplugged.
var ErrNoSensor = errors.New("max6675: no sensor attached")

// Bus is a synchronous serial bus. It matches machine.SPI on TinyGo and
// spi.Conn from periph.io.
type Bus interface {
	Tx(w, r []byte) error
}

// Raw is one 16-bit word as clocked out of the converter, MSB first.
type Raw uint16

// Fault reports whether the open thermocouple flag is set.
func (r Raw) Fault() bool {
	return r&faultBit != 0
}

// Celsius returns the temperature held in bits 15..3, ignoring the fault flag.
func (r Raw) Celsius() float32 {
	return float32(r>>3) * resolution
}

// Decode converts a raw word into a temperature.
func Decode(r Raw) (float32, error) {
	if r.Fault() {
		return 0, ErrNoSensor
	}
	return r.Celsius(), nil
}

// Encode builds the raw word the converter would emit for celsius, rounded
// to the nearest count and clamped to the 13-bit field.
func Encode(celsius float32, fault bool) Raw {
	var counts int32
	if celsius > 0 {
		counts = int32(celsius/resolution + 0.5)
	}
	if counts > 0x1fff {
		counts = 0x1fff
	}
	r := Raw(counts) << 3
	if fault {
		r |= faultBit
	}
	return r
}

// Device is a MAX6675 on a dedicated bus.
type Device struct {
	bus Bus
	tx  [wordSize]byte
	rx  [wordSize]byte
}

// New creates a Device reading from bus.
func New(bus Bus) *Device {
	return &Device{bus: bus}
}

// ReadRaw performs one fixed-length transfer and returns the raw word.
func (d *Device) ReadRaw() (Raw, error) {
	d.tx = [wordSize]byte{}
	if err := d.bus.Tx(d.tx[:], d.rx[:]); err != nil {
		return 0, fmt.Errorf("max6675: transfer failed: %w", err)
	}
	return Raw(d.rx[0])<<8 | Raw(d.rx[1]), nil
}

// Read returns the current thermocouple temperature in °C, or ErrNoSensor.
func (d *Device) Read() (float32, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, err
	}
	return Decode(raw)
}
