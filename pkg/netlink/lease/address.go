// Package lease acquires the IPv4 address of the wireless interface, either
// with its own DHCP client or by observing the address the system assigned.
package lease

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/insomniacslk/dhcp/dhcpv4"
	vnl "github.com/vishvananda/netlink"

	"github.com/itohio/tcreport/pkg/netlink"
)

// ErrNoAddress is returned when an acknowledgement carries no usable address.
var ErrNoAddress = errors.New("lease: no address offered")

// infoFromACK converts a DHCP acknowledgement into the bound address.
func infoFromACK(ack *dhcpv4.DHCPv4) (netlink.IPInfo, error) {
	ip, ok := addrFrom(ack.YourIPAddr)
	if !ok || ip.IsUnspecified() {
		return netlink.IPInfo{}, ErrNoAddress
	}

	bits := 32
	if mask := ack.SubnetMask(); mask != nil {
		if ones, size := mask.Size(); size == 32 {
			bits = ones
		}
	}

	info := netlink.IPInfo{Addr: netip.PrefixFrom(ip, bits)}
	if routers := ack.Router(); len(routers) > 0 {
		info.Gateway, _ = addrFrom(routers[0])
	}
	for _, d := range ack.DNS() {
		if a, ok := addrFrom(d); ok {
			info.DNS = append(info.DNS, a)
		}
	}
	return info, nil
}

func addrFrom(ip net.IP) (netip.Addr, bool) {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	a, ok := netip.AddrFromSlice(ip)
	return a.Unmap(), ok
}

func ipNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

// bindAddress assigns info to iface and routes the default gateway through it.
func bindAddress(iface string, info netlink.IPInfo) error {
	link, err := vnl.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("lease: interface %s: %w", iface, err)
	}
	if err := vnl.AddrReplace(link, &vnl.Addr{IPNet: ipNet(info.Addr)}); err != nil {
		return fmt.Errorf("lease: failed to assign %s: %w", info.Addr, err)
	}
	if !info.Gateway.IsValid() {
		return nil
	}
	route := &vnl.Route{
		LinkIndex: link.Attrs().Index,
		Gw:        net.IP(info.Gateway.AsSlice()),
	}
	if err := vnl.RouteReplace(route); err != nil {
		return fmt.Errorf("lease: failed to route via %s: %w", info.Gateway, err)
	}
	return nil
}

// unbindAddress removes an address assigned by bindAddress.
func unbindAddress(iface string, info netlink.IPInfo) error {
	link, err := vnl.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("lease: interface %s: %w", iface, err)
	}
	return vnl.AddrDel(link, &vnl.Addr{IPNet: ipNet(info.Addr)})
}
