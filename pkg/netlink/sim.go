package netlink

import (
	"errors"
	"net/netip"
	"sync"
	"time"
)

// ErrAuthRejected is reported by SimRadio for credentials it does not accept.
var ErrAuthRejected = errors.New("sim: authentication rejected")

// SimRadio simulates a wireless controller for development and tests.
type SimRadio struct {
	// SSID and Password are the credentials the simulated access point accepts.
	SSID     string
	Password string
	// ConnectPolls is the number of IsConnected calls before association.
	ConnectPolls int

	mu         sync.Mutex
	creds      Credentials
	started    bool
	connecting bool
	connected  bool
	polls      int
	connects   int
}

// Ensure SimRadio implements Radio.
var _ Radio = (*SimRadio)(nil)

// Configure stores the station credentials.
func (r *SimRadio) Configure(c Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = c
	return nil
}

// Start powers the simulated radio on.
func (r *SimRadio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

// Scan returns the simulated access point.
func (r *SimRadio) Scan(max int) ([]AccessPoint, error) {
	if max < 1 {
		return nil, nil
	}
	return []AccessPoint{{
		BSSID:    "02:00:00:00:00:01",
		SSID:     r.SSID,
		Channel:  6,
		Signal:   -42,
		Security: "WPA2-PSK",
	}}, nil
}

// Capabilities lists the simulated operating modes.
func (r *SimRadio) Capabilities() ([]string, error) {
	return []string{"Client"}, nil
}

// Connect starts an association attempt.
func (r *SimRadio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return errors.New("sim: radio not started")
	}
	r.connecting = true
	r.connected = false
	r.polls = 0
	r.connects++
	return nil
}

// IsConnected advances the simulated association.
func (r *SimRadio) IsConnected() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return true, nil
	}
	if !r.connecting {
		return false, nil
	}
	if r.creds.SSID != r.SSID || r.creds.Password != r.Password {
		r.connecting = false
		return false, ErrAuthRejected
	}
	r.polls++
	if r.polls > r.ConnectPolls {
		r.connecting = false
		r.connected = true
	}
	return r.connected, nil
}

// Drop simulates a lost association.
func (r *SimRadio) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	r.connecting = false
}

// Connects returns how many association attempts were made.
func (r *SimRadio) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// SimLeaser simulates an address lease.
type SimLeaser struct {
	// Info is the address handed out.
	Info IPInfo
	// BindPolls is the number of Poll calls before the lease is bound.
	BindPolls int
	// Lifetime expires the lease after this long; zero never expires.
	Lifetime time.Duration

	mu      sync.Mutex
	active  bool
	polls   int
	boundAt time.Time
	bound   bool
	starts  int
}

// Ensure SimLeaser implements Leaser.
var _ Leaser = (*SimLeaser)(nil)

// DefaultSimInfo is the address handed out by a zero SimLeaser.
var DefaultSimInfo = IPInfo{
	Addr:    netip.MustParsePrefix("192.168.1.50/24"),
	Gateway: netip.MustParseAddr("192.168.1.1"),
	DNS:     []netip.Addr{netip.MustParseAddr("192.168.1.1")},
}

// Start begins a simulated acquisition.
func (s *SimLeaser) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.bound = false
	s.polls = 0
	s.starts++
	return nil
}

// Poll advances the simulated acquisition.
func (s *SimLeaser) Poll(now time.Time) (IPInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return IPInfo{}, false, nil
	}
	if s.bound {
		if s.Lifetime > 0 && now.Sub(s.boundAt) >= s.Lifetime {
			s.bound = false
			s.active = false
			return IPInfo{}, false, errors.New("sim: lease expired")
		}
		return s.info(), true, nil
	}

	s.polls++
	if s.polls > s.BindPolls {
		s.bound = true
		s.boundAt = now
		return s.info(), true, nil
	}
	return IPInfo{}, false, nil
}

// Release drops the simulated lease.
func (s *SimLeaser) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.bound = false
	return nil
}

// Starts returns how many acquisitions were started.
func (s *SimLeaser) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *SimLeaser) info() IPInfo {
	if s.Info.Addr.IsValid() {
		return s.Info
	}
	return DefaultSimInfo
}
