package lease

import (
	"fmt"
	"net/netip"
	"time"

	vnl "github.com/vishvananda/netlink"

	"github.com/itohio/tcreport/pkg/netlink"
)

const defaultCheckInterval = time.Second

// System observes the IPv4 address the operating system assigned to an
// interface, for hosts where a DHCP daemon already manages it.
type System struct {
	iface    string
	interval time.Duration

	active    bool
	checkedAt time.Time
	info      netlink.IPInfo
	bound     bool
}

// Ensure System implements netlink.Leaser.
var _ netlink.Leaser = (*System)(nil)

// NewSystem instantiates a System leaser for iface.
func NewSystem(iface string) *System {
	return &System{iface: iface, interval: defaultCheckInterval}
}

// Start begins observing the interface.
func (s *System) Start() error {
	s.active = true
	s.checkedAt = time.Time{}
	return nil
}

// Poll reports the interface address, querying the kernel at most once per
// check interval.
func (s *System) Poll(now time.Time) (netlink.IPInfo, bool, error) {
	if !s.active {
		return netlink.IPInfo{}, false, nil
	}
	if !s.checkedAt.IsZero() && now.Sub(s.checkedAt) < s.interval {
		return s.info, s.bound, nil
	}
	s.checkedAt = now

	info, ok, err := lookup(s.iface)
	if err != nil {
		s.active = false
		s.bound = false
		return netlink.IPInfo{}, false, err
	}
	if !ok && s.bound {
		s.active = false
		s.bound = false
		return netlink.IPInfo{}, false, fmt.Errorf("lease: %s lost its address", s.iface)
	}
	s.info, s.bound = info, ok
	return info, ok, nil
}

// Release stops observing; the address itself belongs to the system.
func (s *System) Release() error {
	s.active = false
	s.bound = false
	return nil
}

// lookup returns the first global IPv4 address of iface and its default
// gateway.
func lookup(iface string) (netlink.IPInfo, bool, error) {
	link, err := vnl.LinkByName(iface)
	if err != nil {
		return netlink.IPInfo{}, false, fmt.Errorf("lease: interface %s: %w", iface, err)
	}
	addrs, err := vnl.AddrList(link, vnl.FAMILY_V4)
	if err != nil {
		return netlink.IPInfo{}, false, fmt.Errorf("lease: addresses of %s: %w", iface, err)
	}

	var info netlink.IPInfo
	for _, a := range addrs {
		ip, ok := addrFrom(a.IP)
		if !ok || ip.IsLinkLocalUnicast() {
			continue
		}
		ones, _ := a.Mask.Size()
		info.Addr = netip.PrefixFrom(ip, ones)
		break
	}
	if !info.Addr.IsValid() {
		return netlink.IPInfo{}, false, nil
	}

	routes, err := vnl.RouteList(link, vnl.FAMILY_V4)
	if err != nil {
		return info, true, nil
	}
	for _, r := range routes {
		if r.Gw == nil {
			continue
		}
		if r.Dst != nil {
			if ones, _ := r.Dst.Mask.Size(); ones != 0 {
				continue
			}
		}
		info.Gateway, _ = addrFrom(r.Gw)
		break
	}
	return info, true, nil
}
