package main

import (
	"fmt"
	"io"

	"github.com/itohio/tcreport/pkg/config"
	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/max6675"
	"github.com/itohio/tcreport/pkg/netlink"
	"github.com/itohio/tcreport/pkg/netlink/lease"
	"github.com/itohio/tcreport/pkg/netlink/wpa"
	"github.com/itohio/tcreport/pkg/spi"
)

// hardware holds the collaborators handed to the link and the sensor.
type hardware struct {
	bus     max6675.Bus
	radio   netlink.Radio
	leaser  netlink.Leaser
	closers []io.Closer
}

// Close releases every opened collaborator in reverse order.
func (h *hardware) Close() error {
	var first error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	h.closers = nil
	return first
}

func openHardware(cfg *config.Config, mock bool, logger logging.Logger) (*hardware, error) {
	hw := &hardware{}

	bus, err := openBus(&cfg.Sensor, &cfg.Mock)
	if err != nil {
		return nil, err
	}
	hw.bus = bus
	if c, ok := bus.(io.Closer); ok {
		hw.closers = append(hw.closers, c)
	}

	if mock {
		hw.radio = &netlink.SimRadio{SSID: cfg.WiFi.SSID, Password: cfg.WiFi.Password, ConnectPolls: 100}
		hw.leaser = &netlink.SimLeaser{BindPolls: 100}
		return hw, nil
	}

	client, err := wpa.Dial(cfg.WiFi.Control, cfg.WiFi.Interface,
		wpa.WithLogger(logger),
		wpa.WithTimeout(cfg.WiFi.ControlTimeout),
	)
	if err != nil {
		hw.Close()
		return nil, err
	}
	hw.radio = client
	hw.closers = append(hw.closers, client)

	switch cfg.WiFi.Lease {
	case "dhcp":
		d := lease.NewDHCP(cfg.WiFi.Interface, lease.WithHostname(cfg.WiFi.Hostname), lease.WithLogger(logger))
		hw.leaser = d
		hw.closers = append(hw.closers, d)
	case "system":
		hw.leaser = lease.NewSystem(cfg.WiFi.Interface)
	default:
		hw.Close()
		return nil, fmt.Errorf("unknown lease mode %q", cfg.WiFi.Lease)
	}
	return hw, nil
}

func openBus(cfg *config.SensorConfig, mockCfg *config.MockConfig) (max6675.Bus, error) {
	switch cfg.Bus {
	case "spidev":
		dev, err := spi.OpenSPIDev(cfg.Device, cfg.ClockHz)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case "serial":
		port, err := spi.OpenSerial(cfg.Device, cfg.BaudRate, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return port, nil
	case "mock":
		return max6675.NewMock(mockCfg), nil
	}
	return nil, fmt.Errorf("unknown sensor bus %q", cfg.Bus)
}
