//go:build tinygo

package main

import "machine"

const (
	// Sensor bus configuration
	// The MAX6675 shifts out 16 bits, MSB first, on the falling clock edge.
	// It is specified up to 4.3 MHz; a slow clock keeps long probe leads happy.
	SENSOR_SPI_HZ = 100000 // SPI clock in Hz
	SENSOR_MODE   = 0      // CPOL=0, CPHA=0

	// Sensor pins (SPI0 on the Arduino Nano RP2040 Connect, SPI1 drives the radio)
	PIN_SCK = machine.SPI0_SCK_PIN
	PIN_SDO = machine.SPI0_SDO_PIN
	PIN_SDI = machine.SPI0_SDI_PIN
	PIN_CS  = machine.D10

	// Activity LED, toggled after every good reading
	PIN_LED = machine.LED

	// Halt blink half period
	HALT_BLINK_MS = 100
)

// SENSOR_SPI is the bus the thermocouple converter sits on.
var SENSOR_SPI = machine.SPI0
