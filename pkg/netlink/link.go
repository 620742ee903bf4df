package netlink

import (
	"context"
	"net"
	"time"

	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/poll"
)

const (
	// maxScanResults bounds the access point list logged before connecting.
	maxScanResults = 10
	// DefaultPollInterval paces the wait helpers.
	DefaultPollInterval = time.Millisecond
	// reconnectDelay separates reconnect attempts after a lost association.
	reconnectDelay = 5 * time.Second
)

// Radio is the wireless controller in client mode.
type Radio interface {
	Configure(c Credentials) error
	Start() error
	Scan(max int) ([]AccessPoint, error)
	Connect() error
	// IsConnected reports association progress. (false, nil) means the
	// association is still pending; an error is a driver failure.
	IsConnected() (bool, error)
}

// Leaser acquires and maintains an IPv4 address once associated.
type Leaser interface {
	// Start begins a lease acquisition. It must not block.
	Start() error
	// Poll reports the bound address, if any. An error aborts the current
	// acquisition; the link starts a new one on a later poll.
	Poll(now time.Time) (IPInfo, bool, error)
	// Release drops the lease.
	Release() error
}

// Dialer opens stream connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// capabler is implemented by radios able to list their capabilities.
type capabler interface {
	Capabilities() ([]string, error)
}

// Link owns the association state, the lease and the single stream socket.
type Link struct {
	radio  Radio
	leaser Leaser
	clock  poll.Clock
	logger logging.Logger

	interval time.Duration

	state       State
	creds       Credentials
	leasing     bool
	ip          IPInfo
	established bool      // the link has been Ready at least once
	retryAt     time.Time // next reconnect attempt, zero when none is pending

	socket *Socket
}

// New instantiates a Link, executing functional options, if any
func New(radio Radio, leaser Leaser, options ...func(*Link)) *Link {
	l := &Link{
		radio:    radio,
		leaser:   leaser,
		clock:    poll.SystemClock{},
		logger:   logging.NullLogger{},
		interval: DefaultPollInterval,
	}
	l.socket = newSocket(l, &net.Dialer{})

	// Execute functional options (if any)
	for _, option := range options {
		option(l)
	}

	return l
}

// WithClock sets the clock used by the wait helpers
func WithClock(c poll.Clock) func(*Link) {
	return func(l *Link) {
		l.clock = c
	}
}

// WithLogger sets a logger
func WithLogger(logger logging.Logger) func(*Link) {
	return func(l *Link) {
		l.logger = logger
	}
}

// WithPollInterval sets the pacing of the wait helpers
func WithPollInterval(d time.Duration) func(*Link) {
	return func(l *Link) {
		l.interval = d
	}
}

// WithDialer sets the dialer used by the socket
func WithDialer(d Dialer) func(*Link) {
	return func(l *Link) {
		l.socket.dialer = d
	}
}

// WithConnectTimeout bounds socket connects
func WithConnectTimeout(d time.Duration) func(*Link) {
	return func(l *Link) {
		l.socket.connectTimeout = d
	}
}

// WithReadSlice sets how long a single poll waits for inbound bytes
func WithReadSlice(d time.Duration) func(*Link) {
	return func(l *Link) {
		l.socket.readSlice = d
	}
}

// State returns the current link state
func (l *Link) State() State {
	return l.state
}

// IfaceUp reports whether the link is associated and holds an address
func (l *Link) IfaceUp() bool {
	return l.state == StateReady
}

// IPInfo returns the bound address, valid while IfaceUp
func (l *Link) IPInfo() IPInfo {
	return l.ip
}

// Socket returns the single reusable stream socket
func (l *Link) Socket() *Socket {
	return l.socket
}

// Associate configures client mode, starts the radio and requests the
// association. It does not wait: Poll advances the association.
func (l *Link) Associate(ssid, password string) error {
	creds := Credentials{SSID: ssid, Password: password}
	if err := creds.Validate(); err != nil {
		return &AssocError{Op: "configure", Err: err}
	}

	err := l.radio.Configure(creds)
	l.logger.Infof("wifi_set_configuration returned %v", err)
	if err != nil {
		return &AssocError{Op: "configure", Err: err}
	}

	if err := l.radio.Start(); err != nil {
		return &AssocError{Op: "start", Err: err}
	}
	l.logger.Infof("is wifi started: true")

	l.logger.Infof("Start Wifi Scan")
	aps, err := l.radio.Scan(maxScanResults)
	if err != nil {
		l.logger.Warnf("wifi scan failed: %v", err)
	}
	for _, ap := range aps {
		l.logger.Infof("%s", ap)
	}

	if c, ok := l.radio.(capabler); ok {
		if caps, err := c.Capabilities(); err == nil {
			l.logger.Infof("capabilities: %v", caps)
		}
	}

	err = l.radio.Connect()
	l.logger.Infof("wifi_connect %v", err)
	if err != nil {
		return &AssocError{Op: "connect", Err: err}
	}

	l.creds = creds
	l.state = StateAssociating
	return nil
}

// Poll advances association, lease and socket state. It must be called on
// every loop iteration. A returned *AssocError is a driver failure.
func (l *Link) Poll() error {
	var err error

	switch l.state {
	case StateAssociating:
		err = l.pollAssociation()
	case StateAssociatedNoAddress:
		l.pollLease()
	case StateReady:
		l.keepAlive()
	}

	l.socket.poll()
	return err
}

// AwaitAssociation polls until the radio reports the association.
func (l *Link) AwaitAssociation(ctx context.Context) error {
	l.logger.Infof("Wait to get connected")
	for l.state == StateAssociating {
		if err := l.Poll(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l.clock.Sleep(l.interval)
	}
	if l.state == StateDisconnected {
		return &AssocError{Op: "connect", Err: ErrNotReady}
	}
	return nil
}

// AwaitAddress polls until an address is bound. There is no timeout: only
// ctx ends the wait early.
func (l *Link) AwaitAddress(ctx context.Context) (IPInfo, error) {
	l.logger.Infof("Wait to get an ip address")
	for !l.IfaceUp() {
		if err := l.Poll(); err != nil {
			return IPInfo{}, err
		}
		if l.IfaceUp() {
			break
		}
		if err := ctx.Err(); err != nil {
			return IPInfo{}, err
		}
		l.clock.Sleep(l.interval)
	}
	return l.ip, nil
}

// pollAssociation checks association progress. A driver error before the
// first association is returned; afterwards it schedules a reconnect.
func (l *Link) pollAssociation() error {
	if !l.retryAt.IsZero() {
		if l.clock.Now().Before(l.retryAt) {
			return nil
		}
		l.retryAt = time.Time{}
		if err := l.radio.Connect(); err != nil {
			l.logger.Errorf("reconnect failed: %v", err)
			l.retryAt = l.clock.Now().Add(reconnectDelay)
			return nil
		}
	}

	ok, err := l.radio.IsConnected()
	if err != nil {
		if l.established {
			l.logger.Errorf("association with %q failed: %v", l.creds.SSID, err)
			l.retryAt = l.clock.Now().Add(reconnectDelay)
			return nil
		}
		l.state = StateDisconnected
		return &AssocError{Op: "connect", Err: err}
	}
	if !ok {
		return nil
	}

	l.logger.Infof("associated with %q", l.creds.SSID)
	l.state = StateAssociatedNoAddress
	l.pollLease()
	return nil
}

func (l *Link) pollLease() {
	if !l.leasing {
		if err := l.leaser.Start(); err != nil {
			l.logger.Warnf("lease start failed: %v", err)
			return
		}
		l.leasing = true
	}

	info, bound, err := l.leaser.Poll(l.clock.Now())
	if err != nil {
		l.logger.Warnf("lease attempt failed: %v", err)
		l.leasing = false
		bound = false
	}

	switch {
	case bound && l.state != StateReady:
		l.ip = info
		l.state = StateReady
		l.established = true
		l.logger.Infof("got ip %s", info)
	case bound:
		l.ip = info
	case l.state == StateReady:
		l.logger.Warnf("lease on %s lost", l.ip.Addr)
		l.ip = IPInfo{}
		l.state = StateAssociatedNoAddress
		l.socket.reset()
	}
}

func (l *Link) keepAlive() {
	ok, err := l.radio.IsConnected()
	if err == nil && ok {
		l.pollLease()
		return
	}

	l.logger.Warnf("association with %q lost (err: %v), reconnecting", l.creds.SSID, err)
	l.socket.reset()
	if err := l.leaser.Release(); err != nil {
		l.logger.Debugf("lease release failed: %v", err)
	}
	l.leasing = false
	l.ip = IPInfo{}
	l.state = StateAssociating
	if err := l.radio.Connect(); err != nil {
		l.logger.Errorf("reconnect failed: %v", err)
		l.retryAt = l.clock.Now().Add(reconnectDelay)
	}
}
