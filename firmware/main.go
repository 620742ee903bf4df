//go:build tinygo

//go:generate tinygo flash -target=nano-rp2040 -ldflags="-X main.ssid=$SSID -X main.pass=$PASSWORD"

package main

import (
	"context"
	"machine"
	"net/netip"
	"time"

	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/max6675"
	"github.com/itohio/tcreport/pkg/netlink"
	"github.com/itohio/tcreport/pkg/netlink/tinynet"
	"github.com/itohio/tcreport/pkg/report"
)

// Set at build time with -ldflags "-X main.ssid=... -X main.pass=..."
var (
	ssid     string
	pass     string
	endpoint = "192.168.1.103:8080"
)

// chipSelect frames every transfer with the chip select line.
type chipSelect struct {
	bus interface {
		Tx(w, r []byte) error
	}
	cs machine.Pin
}

func (c *chipSelect) Tx(w, r []byte) error {
	c.cs.Low()
	err := c.bus.Tx(w, r)
	c.cs.High()
	return err
}

func main() {
	// wait a bit for serial
	time.Sleep(2 * time.Second)

	logger := logging.NewDefaultLogger(false)

	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_CS.High()

	err := SENSOR_SPI.Configure(machine.SPIConfig{
		Frequency: SENSOR_SPI_HZ,
		SCK:       PIN_SCK,
		SDO:       PIN_SDO,
		SDI:       PIN_SDI,
		LSBFirst:  false,
		Mode:      SENSOR_MODE,
	})
	if err != nil {
		logger.Errorf("failed to configure sensor bus: %v", err)
		halt()
	}

	settings := report.DefaultSettings()
	settings.SSID = ssid
	settings.Password = pass
	if ep, err := netip.ParseAddrPort(endpoint); err == nil {
		settings.Endpoint = ep
	} else {
		logger.Errorf("invalid endpoint %q: %v", endpoint, err)
		halt()
	}

	radio := tinynet.NewRadio()
	link := netlink.New(radio, radio.Leaser(), netlink.WithLogger(logger))

	dev := report.NewDevice(
		max6675.New(&chipSelect{bus: SENSOR_SPI, cs: PIN_CS}),
		link,
		link.Socket(),
		report.WithLogger(logger),
		report.WithSettings(settings),
		report.WithIndicator(report.IndicatorFunc(toggleLED)),
	)

	// Run only returns when the association failed
	err = report.Run(context.Background(), dev)
	logger.Errorf("halting: %v", err)
	halt()
}

func toggleLED() {
	PIN_LED.Set(!PIN_LED.Get())
}

// halt blinks the LED forever. Nothing else runs afterwards.
func halt() {
	for {
		toggleLED()
		time.Sleep(HALT_BLINK_MS * time.Millisecond)
	}
}
