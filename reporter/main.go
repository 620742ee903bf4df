package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/tcreport/pkg/config"
	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/max6675"
	"github.com/itohio/tcreport/pkg/netlink"
	"github.com/itohio/tcreport/pkg/poll"
	"github.com/itohio/tcreport/pkg/report"
	"github.com/itohio/tcreport/pkg/spi"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Sensor device override (e.g., /dev/spidev0.1 or /dev/ttyUSB0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated sensor and radio instead of hardware")
		portsFlag  = flag.Bool("ports", false, "List serial ports and exit")
		debugFlag  = flag.Bool("debug", false, "Enable debug logging")
		writeFlag  = flag.Bool("write-config", false, "Write the effective configuration and exit")
	)
	flag.Parse()

	if *portsFlag {
		listPorts()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override sensor device if provided via command line
	if *portFlag != "" {
		cfg.Sensor.Device = *portFlag
	}
	if *mockFlag {
		useMock(cfg)
	}

	if *writeFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		return
	}

	logger := logging.NewDefaultLogger(*debugFlag)

	settings, err := report.SettingsFrom(cfg)
	if err != nil {
		logger.Fatalf("invalid configuration: %s", err)
	}

	hw, err := openHardware(cfg, *mockFlag, logger)
	if err != nil {
		logger.Fatalf("failed to initialize hardware: %s", err)
	}
	defer hw.Close()

	link := newLink(cfg, hw, logger)

	dev := report.NewDevice(max6675.New(hw.bus), link, link.Socket(),
		report.WithClock(poll.SystemClock{}),
		report.WithOutput(os.Stdout),
		report.WithLogger(logger),
		report.WithSettings(settings),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 32)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		logger.Infof("got signal, finishing the current cycle")
		cancel()
	}()

	err = report.Run(ctx, dev)

	var assocErr *netlink.AssocError
	switch {
	case errors.As(err, &assocErr):
		hw.Close()
		logger.Fatalf("association failed, halting: %s", err)
	case errors.Is(err, context.Canceled):
		logger.Infof("terminated")
	case err != nil:
		logger.Errorf("reporter stopped: %s", err)
	}
}

// Simulated network credentials used when none are configured.
const (
	mockSSID     = "tcreport-sim"
	mockPassword = "tcreport-sim-pass"
)

// useMock switches cfg to the simulated sensor and fills in credentials the
// simulated radio accepts.
func useMock(cfg *config.Config) {
	cfg.Sensor.Bus = "mock"
	if cfg.WiFi.SSID == "" {
		cfg.WiFi.SSID = mockSSID
		if cfg.WiFi.Password == "" {
			cfg.WiFi.Password = mockPassword
		}
	}
}

func newLink(cfg *config.Config, hw *hardware, logger logging.Logger) *netlink.Link {
	return netlink.New(hw.radio, hw.leaser,
		netlink.WithLogger(logger),
		netlink.WithPollInterval(cfg.Timing.PollInterval),
		netlink.WithConnectTimeout(cfg.Timing.ConnectTimeout),
		netlink.WithReadSlice(cfg.Timing.ReadSlice),
	)
}

func listPorts() {
	ports, err := spi.Ports()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	for _, p := range ports {
		if p.Description != "" {
			fmt.Printf("%s\t%s\n", p.Name, p.Description)
		} else {
			fmt.Println(p.Name)
		}
	}
}
