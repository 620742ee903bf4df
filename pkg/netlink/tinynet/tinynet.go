//go:build tinygo

// Package tinynet adapts the TinyGo network drivers to the reporter link.
// The driver runs its own DHCP client, so the leaser only observes the
// address it reports.
package tinynet

import (
	"net/netip"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers/netdev"
	dnetlink "tinygo.org/x/drivers/netlink"
	"tinygo.org/x/drivers/netlink/probe"

	"github.com/itohio/tcreport/pkg/netlink"
)

// Radio is the on-board wireless controller found by the driver probe.
type Radio struct {
	link   dnetlink.Netlinker
	dev    netdev.Netdever
	params dnetlink.ConnectParams
	up     atomic.Bool
}

// Ensure Radio implements netlink.Radio.
var _ netlink.Radio = (*Radio)(nil)

// NewRadio returns an unprobed radio.
func NewRadio() *Radio {
	return &Radio{}
}

// Configure stores the station parameters.
func (r *Radio) Configure(c netlink.Credentials) error {
	r.params = dnetlink.ConnectParams{
		ConnectMode: dnetlink.ConnectModeSTA,
		Ssid:        c.SSID,
		Passphrase:  c.Password,
		AuthType:    dnetlink.AuthTypeWPA2,
		Retries:     1,
	}
	if c.Password == "" {
		r.params.AuthType = dnetlink.AuthTypeOpen
	}
	return nil
}

// Start probes the driver and subscribes to link events.
func (r *Radio) Start() error {
	if r.link != nil {
		return nil
	}
	r.link, r.dev = probe.Probe()
	r.link.NetNotify(func(e dnetlink.Event) {
		r.up.Store(e == dnetlink.EventNetUp)
	})
	return nil
}

// Scan is not offered by the TinyGo drivers.
func (r *Radio) Scan(max int) ([]netlink.AccessPoint, error) {
	return nil, dnetlink.ErrNotSupported
}

// Connect associates with the configured network. The driver call returns
// once the association succeeded or failed.
func (r *Radio) Connect() error {
	err := r.link.NetConnect(&r.params)
	if err != nil && err != dnetlink.ErrConnected {
		r.up.Store(false)
		return err
	}
	r.up.Store(true)
	return nil
}

// IsConnected reports the last link event.
func (r *Radio) IsConnected() (bool, error) {
	return r.up.Load(), nil
}

// Leaser returns a leaser observing the driver's address.
func (r *Radio) Leaser() *Leaser {
	return &Leaser{radio: r}
}

// Leaser reports the address the driver obtained.
type Leaser struct {
	radio  *Radio
	active bool
}

// Ensure Leaser implements netlink.Leaser.
var _ netlink.Leaser = (*Leaser)(nil)

// Start begins observing the driver address.
func (l *Leaser) Start() error {
	l.active = true
	return nil
}

// Poll reports the driver address once one is assigned.
func (l *Leaser) Poll(time.Time) (netlink.IPInfo, bool, error) {
	if !l.active || l.radio.dev == nil {
		return netlink.IPInfo{}, false, nil
	}
	addr, err := l.radio.dev.Addr()
	if err != nil || !addr.IsValid() || addr.IsUnspecified() {
		return netlink.IPInfo{}, false, nil
	}
	return netlink.IPInfo{Addr: netip.PrefixFrom(addr, addr.BitLen())}, true, nil
}

// Release stops observing.
func (l *Leaser) Release() error {
	l.active = false
	return nil
}
