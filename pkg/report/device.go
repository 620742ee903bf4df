// Package report runs the acquisition and reporting cycle: read the
// thermocouple, send the temperature to the collector and echo its answer.
package report

import (
	"context"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/netlink"
	"github.com/itohio/tcreport/pkg/poll"
)

// Sensor yields one temperature per call.
type Sensor interface {
	Read() (float32, error)
}

// Conn is the reusable stream socket.
type Conn interface {
	Open(ctx context.Context, endpoint netip.AddrPort) error
	Write(p []byte) (int, error)
	Flush() error
	Read(p []byte) (int, error)
	Disconnect()
}

// Link is the network link driving association, lease and socket timers.
type Link interface {
	Associate(ssid, password string) error
	AwaitAssociation(ctx context.Context) error
	AwaitAddress(ctx context.Context) (netlink.IPInfo, error)
	Poll() error
}

// Indicator signals activity, usually by toggling an LED.
type Indicator interface {
	Toggle()
}

// IndicatorFunc adapts a function to Indicator.
type IndicatorFunc func()

// Toggle calls f.
func (f IndicatorFunc) Toggle() { f() }

// Ensure the netlink types satisfy the cycle's view of them.
var (
	_ Link = (*netlink.Link)(nil)
	_ Conn = (*netlink.Socket)(nil)
)

// Settings are the fixed parameters of the reporter.
type Settings struct {
	SSID     string
	Password string

	Endpoint netip.AddrPort
	Path     string

	FaultDelay     time.Duration
	ReceiveTimeout time.Duration
	DrainPeriod    time.Duration
	PollInterval   time.Duration
}

// DefaultSettings returns the reference timing towards 192.168.1.103:8080.
func DefaultSettings() Settings {
	return Settings{
		Endpoint:       netip.MustParseAddrPort("192.168.1.103:8080"),
		Path:           "/temp/1/",
		FaultDelay:     500 * time.Millisecond,
		ReceiveTimeout: 20 * time.Second,
		DrainPeriod:    5 * time.Second,
		PollInterval:   time.Millisecond,
	}
}

// Device is the single long-lived context of the reporter. It owns the
// sensor, the link and its socket; nothing else touches them.
type Device struct {
	Sensor    Sensor
	Link      Link
	Conn      Conn
	Clock     poll.Clock
	Out       io.Writer
	Indicator Indicator
	Logger    logging.Logger
	Settings  Settings
}

// NewDevice instantiates a Device, executing functional options, if any
func NewDevice(sensor Sensor, link Link, conn Conn, options ...func(*Device)) *Device {
	d := &Device{
		Sensor:    sensor,
		Link:      link,
		Conn:      conn,
		Clock:     poll.SystemClock{},
		Out:       os.Stdout,
		Indicator: IndicatorFunc(func() {}),
		Logger:    logging.NullLogger{},
		Settings:  DefaultSettings(),
	}

	// Execute functional options (if any)
	for _, option := range options {
		option(d)
	}

	return d
}

// WithClock sets the clock bounding every wait
func WithClock(c poll.Clock) func(*Device) {
	return func(d *Device) {
		d.Clock = c
	}
}

// WithOutput sets the sink receiving response bytes
func WithOutput(w io.Writer) func(*Device) {
	return func(d *Device) {
		d.Out = w
	}
}

// WithIndicator sets the activity indicator
func WithIndicator(i Indicator) func(*Device) {
	return func(d *Device) {
		d.Indicator = i
	}
}

// WithLogger sets a logger
func WithLogger(logger logging.Logger) func(*Device) {
	return func(d *Device) {
		d.Logger = logger
	}
}

// WithSettings sets the reporter settings
func WithSettings(s Settings) func(*Device) {
	return func(d *Device) {
		d.Settings = s
	}
}
