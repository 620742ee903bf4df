// Package netlink owns the wireless association, the address lease and the
// single reusable stream socket of the reporter. Every state machine in it
// is advanced by Link.Poll; nothing in the package blocks on its own.
package netlink

import (
	"fmt"
	"net/netip"
	"strings"
)

// State denotes the link state
type State int

const (

	// StateDisconnected is active before association was requested
	StateDisconnected State = iota

	// StateAssociating is active while waiting for the access point
	StateAssociating

	// StateAssociatedNoAddress is active while the address lease is pending
	StateAssociatedNoAddress

	// StateReady is active while associated with a bound address
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateAssociating:
		return "Associating"
	case StateAssociatedNoAddress:
		return "AssociatedNoAddress"
	case StateReady:
		return "Ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Credentials are the station credentials.
type Credentials struct {
	SSID     string
	Password string
}

// Validate rejects credentials no access point could accept. An empty
// password selects an open network.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return fmt.Errorf("%w: empty ssid", ErrCredentials)
	}
	if len(c.SSID) > 32 {
		return fmt.Errorf("%w: ssid longer than 32 bytes", ErrCredentials)
	}
	if c.Password == "" || isHexKey(c.Password) {
		return nil
	}
	if len(c.Password) < 8 || len(c.Password) > 63 {
		return fmt.Errorf("%w: passphrase must be 8..63 characters", ErrCredentials)
	}
	return nil
}

// isHexKey reports whether p is a raw 256-bit PSK in hex.
func isHexKey(p string) bool {
	if len(p) != 64 {
		return false
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// AccessPoint is one scan result.
type AccessPoint struct {
	BSSID    string
	SSID     string
	Channel  int
	Signal   int // dBm
	Security string
}

func (ap AccessPoint) String() string {
	return fmt.Sprintf("AccessPoint { ssid: %q, bssid: %s, channel: %d, signal: %d, auth: %s }",
		ap.SSID, ap.BSSID, ap.Channel, ap.Signal, ap.Security)
}

// IPInfo describes the bound address.
type IPInfo struct {
	Addr    netip.Prefix
	Gateway netip.Addr
	DNS     []netip.Addr
}

func (i IPInfo) String() string {
	dns := make([]string, 0, len(i.DNS))
	for _, a := range i.DNS {
		dns = append(dns, a.String())
	}
	return fmt.Sprintf("IpInfo { ip: %s, gateway: %s, dns: [%s] }", i.Addr, i.Gateway, strings.Join(dns, ", "))
}
