package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"

	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/netlink"
)

const (
	// DefaultHostname is sent in DHCP option 12.
	DefaultHostname = "esp-wifi"

	defaultLeaseTime = time.Hour
	renewRetry       = 10 * time.Second
	requestTimeout   = 30 * time.Second
)

// ErrLeaseExpired is reported when a lease ran out without being renewed.
var ErrLeaseExpired = errors.New("lease: expired")

type result struct {
	lease *nclient4.Lease
	err   error
}

// DHCP acquires an address with its own DHCP client. The blocking exchange
// runs in a background goroutine; Poll only collects its result.
type DHCP struct {
	iface    string
	hostname string
	logger   logging.Logger

	request func(ctx context.Context, prev *nclient4.Lease) (*nclient4.Lease, error)
	release func(l *nclient4.Lease) error
	bind    func(iface string, info netlink.IPInfo) error
	unbind  func(iface string, info netlink.IPInfo) error

	client  *nclient4.Client
	results chan result
	cancel  context.CancelFunc
	running bool

	lease    *nclient4.Lease
	info     netlink.IPInfo
	bound    bool
	renewAt  time.Time
	expireAt time.Time
}

// Ensure DHCP implements netlink.Leaser.
var _ netlink.Leaser = (*DHCP)(nil)

// NewDHCP instantiates a DHCP leaser for iface, executing functional
// options, if any
func NewDHCP(iface string, options ...func(*DHCP)) *DHCP {
	d := &DHCP{
		iface:    iface,
		hostname: DefaultHostname,
		logger:   logging.NullLogger{},
		bind:     bindAddress,
		unbind:   unbindAddress,
		results:  make(chan result, 1),
	}
	d.request = d.exchange
	d.release = d.releaseLease

	for _, option := range options {
		option(d)
	}
	return d
}

// WithHostname sets the hostname sent in option 12
func WithHostname(name string) func(*DHCP) {
	return func(d *DHCP) {
		if name != "" {
			d.hostname = name
		}
	}
}

// WithLogger sets a logger
func WithLogger(logger logging.Logger) func(*DHCP) {
	return func(d *DHCP) {
		d.logger = logger
	}
}

// Start launches an acquisition unless one is already running.
func (d *DHCP) Start() error {
	if d.running {
		return nil
	}
	d.bound = false
	d.launch(nil)
	return nil
}

// launch runs an exchange in the background. With prev set the lease is
// renewed, otherwise a new one is requested.
func (d *DHCP) launch(prev *nclient4.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	d.cancel = cancel
	d.running = true

	go func() {
		defer cancel()
		l, err := d.request(ctx, prev)
		d.results <- result{lease: l, err: err}
	}()
}

// Poll collects a finished exchange, renews the lease at half its lifetime
// and reports expiry.
func (d *DHCP) Poll(now time.Time) (netlink.IPInfo, bool, error) {
	select {
	case r := <-d.results:
		d.running = false
		if err := d.complete(now, r); err != nil {
			if !d.bound {
				return netlink.IPInfo{}, false, err
			}
			d.logger.Warnf("lease renewal failed: %v", err)
			d.renewAt = now.Add(renewRetry)
		}
	default:
	}

	if !d.bound {
		return netlink.IPInfo{}, false, nil
	}
	if !now.Before(d.expireAt) {
		d.stop()
		d.drop()
		return netlink.IPInfo{}, false, ErrLeaseExpired
	}
	if !d.running && !now.Before(d.renewAt) {
		d.logger.Debugf("renewing lease on %s", d.info.Addr)
		d.launch(d.lease)
	}
	return d.info, true, nil
}

func (d *DHCP) complete(now time.Time, r result) error {
	if r.err != nil {
		return fmt.Errorf("lease: request failed: %w", r.err)
	}

	info, err := infoFromACK(r.lease.ACK)
	if err != nil {
		return err
	}
	if err := d.bind(d.iface, info); err != nil {
		return err
	}
	if d.bound && d.info.Addr != info.Addr {
		d.logger.Infof("address changed from %s to %s", d.info.Addr, info.Addr)
		if err := d.unbind(d.iface, d.info); err != nil {
			d.logger.Warnf("failed to remove %s: %v", d.info.Addr, err)
		}
	}

	lifetime := r.lease.ACK.IPAddressLeaseTime(defaultLeaseTime)
	d.lease = r.lease
	d.info = info
	d.bound = true
	d.renewAt = now.Add(lifetime / 2)
	d.expireAt = now.Add(lifetime)
	d.logger.Infof("lease %s from %s for %s", info.Addr, r.lease.ACK.ServerIPAddr, lifetime)
	return nil
}

// Release cancels a running exchange and gives the address back.
func (d *DHCP) Release() error {
	d.stop()

	var err error
	if d.lease != nil {
		err = d.release(d.lease)
	}
	d.drop()
	return err
}

// stop cancels a running exchange and discards its result.
func (d *DHCP) stop() {
	if !d.running {
		return
	}
	d.cancel()
	<-d.results
	d.running = false
}

// drop removes the leased address from the interface and forgets the lease.
func (d *DHCP) drop() {
	if d.lease != nil {
		if err := d.unbind(d.iface, d.info); err != nil {
			d.logger.Debugf("failed to remove %s: %v", d.info.Addr, err)
		}
	}
	d.lease = nil
	d.bound = false
	d.info = netlink.IPInfo{}
}

// Close releases the lease and the raw DHCP socket.
func (d *DHCP) Close() error {
	err := d.Release()
	if d.client != nil {
		if cerr := d.client.Close(); err == nil {
			err = cerr
		}
		d.client = nil
	}
	return err
}

// exchange runs DISCOVER/OFFER/REQUEST/ACK with the hostname option, or a
// unicast REQUEST/ACK renewal of prev.
func (d *DHCP) exchange(ctx context.Context, prev *nclient4.Lease) (*nclient4.Lease, error) {
	if d.client == nil {
		c, err := nclient4.New(d.iface)
		if err != nil {
			return nil, err
		}
		d.client = c
	}
	hostname := dhcpv4.WithOption(dhcpv4.OptHostName(d.hostname))
	if prev != nil {
		return d.client.Renew(ctx, prev, hostname)
	}
	return d.client.Request(ctx, hostname)
}

func (d *DHCP) releaseLease(l *nclient4.Lease) error {
	if d.client == nil {
		return nil
	}
	return d.client.Release(l)
}
