package lease

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/tcreport/pkg/netlink"
)

func testACK(t *testing.T, lifetime time.Duration) *nclient4.Lease {
	t.Helper()
	return testACKFor(t, lifetime, 50)
}

// testACKFor builds an ACK offering 192.168.1.host.
func testACKFor(t *testing.T, lifetime time.Duration, host byte) *nclient4.Lease {
	t.Helper()
	ack, err := dhcpv4.New(
		dhcpv4.WithMessageType(dhcpv4.MessageTypeAck),
		dhcpv4.WithYourIP(net.IPv4(192, 168, 1, host)),
		dhcpv4.WithServerIP(net.IPv4(192, 168, 1, 1)),
		dhcpv4.WithNetmask(net.CIDRMask(24, 32)),
		dhcpv4.WithRouter(net.IPv4(192, 168, 1, 1)),
		dhcpv4.WithDNS(net.IPv4(192, 168, 1, 1), net.IPv4(8, 8, 8, 8)),
		dhcpv4.WithLeaseTime(uint32(lifetime/time.Second)),
	)
	require.NoError(t, err)
	return &nclient4.Lease{ACK: ack, CreationTime: time.Unix(0, 0)}
}

// fakeDHCP replaces the network side of a DHCP leaser.
type fakeDHCP struct {
	leases   chan *nclient4.Lease
	requests atomic.Int32
	renewals atomic.Int32
	bound    []netlink.IPInfo
	unbound  []netlink.IPInfo
	released int
}

func newFakeDHCP(t *testing.T) (*DHCP, *fakeDHCP) {
	f := &fakeDHCP{leases: make(chan *nclient4.Lease, 4)}
	d := NewDHCP("wlan0", WithHostname("sensor-1"))
	d.request = func(ctx context.Context, prev *nclient4.Lease) (*nclient4.Lease, error) {
		if prev != nil {
			f.renewals.Add(1)
		} else {
			f.requests.Add(1)
		}
		select {
		case l := <-f.leases:
			if l == nil {
				return nil, errors.New("no offer")
			}
			return l, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.bind = func(_ string, info netlink.IPInfo) error {
		f.bound = append(f.bound, info)
		return nil
	}
	d.unbind = func(_ string, info netlink.IPInfo) error {
		f.unbound = append(f.unbound, info)
		return nil
	}
	d.release = func(*nclient4.Lease) error {
		f.released++
		return nil
	}
	return d, f
}

// pollBound polls until the leaser reports a result.
func pollBound(t *testing.T, d *DHCP, now time.Time) (netlink.IPInfo, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, ok, err := d.Poll(now)
		if ok || err != nil {
			return info, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("lease not bound")
	return netlink.IPInfo{}, nil
}

func TestInfoFromACK(t *testing.T) {
	info, err := infoFromACK(testACK(t, time.Hour).ACK)
	require.NoError(t, err)

	assert.Equal(t, netip.MustParsePrefix("192.168.1.50/24"), info.Addr)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), info.Gateway)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.1"), netip.MustParseAddr("8.8.8.8")}, info.DNS)
}

func TestInfoFromACK_NoAddress(t *testing.T) {
	ack, err := dhcpv4.New(dhcpv4.WithMessageType(dhcpv4.MessageTypeAck))
	require.NoError(t, err)

	_, err = infoFromACK(ack)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestDHCP_BindAndRenew(t *testing.T) {
	d, f := newFakeDHCP(t)
	start := time.Unix(1000, 0)

	require.NoError(t, d.Start())
	_, ok, err := d.Poll(start)
	require.NoError(t, err)
	assert.False(t, ok)

	f.leases <- testACK(t, time.Hour)
	info, err := pollBound(t, d, start)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50/24", info.Addr.String())
	assert.Len(t, f.bound, 1)

	// Before T1 nothing is requested.
	_, ok, err = d.Poll(start.Add(29 * time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, d.running)

	// At T1 a renewal starts while the address stays bound.
	_, ok, err = d.Poll(start.Add(30 * time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, d.running)

	f.leases <- testACK(t, time.Hour)
	require.Eventually(t, func() bool {
		d.Poll(start.Add(31 * time.Minute))
		return !d.running
	}, 2*time.Second, time.Millisecond)
	assert.Len(t, f.bound, 2)
	assert.Empty(t, f.unbound, "same address is kept")
	assert.Equal(t, start.Add(91*time.Minute), d.expireAt)
	assert.Equal(t, int32(1), f.requests.Load())
	assert.Equal(t, int32(1), f.renewals.Load(), "renewal reuses the lease")
}

func TestDHCP_RenewWithNewAddress(t *testing.T) {
	d, f := newFakeDHCP(t)
	start := time.Unix(1000, 0)

	require.NoError(t, d.Start())
	f.leases <- testACK(t, time.Hour)
	_, err := pollBound(t, d, start)
	require.NoError(t, err)

	_, _, err = d.Poll(start.Add(30 * time.Minute))
	require.NoError(t, err)
	require.True(t, d.running)

	f.leases <- testACKFor(t, time.Hour, 77)
	require.Eventually(t, func() bool {
		d.Poll(start.Add(31 * time.Minute))
		return !d.running
	}, 2*time.Second, time.Millisecond)

	info, ok, err := d.Poll(start.Add(32 * time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.77/24", info.Addr.String())
	require.Len(t, f.unbound, 1)
	assert.Equal(t, "192.168.1.50/24", f.unbound[0].Addr.String())
}

func TestDHCP_Expiry(t *testing.T) {
	d, f := newFakeDHCP(t)
	start := time.Unix(1000, 0)

	require.NoError(t, d.Start())
	f.leases <- testACK(t, time.Minute)
	_, err := pollBound(t, d, start)
	require.NoError(t, err)

	// Renewal fails; the lease runs out.
	_, ok, err := d.Poll(start.Add(30 * time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	f.leases <- nil
	require.Eventually(t, func() bool {
		d.Poll(start.Add(31 * time.Second))
		return !d.running
	}, 2*time.Second, time.Millisecond)

	assert.Empty(t, f.unbound, "address stays until expiry")

	_, ok, err = d.Poll(start.Add(time.Minute))
	assert.ErrorIs(t, err, ErrLeaseExpired)
	assert.False(t, ok)
	require.Len(t, f.unbound, 1)
	assert.Equal(t, "192.168.1.50/24", f.unbound[0].Addr.String())
	assert.Nil(t, d.lease)

	// Nothing is left to give back.
	require.NoError(t, d.Release())
	assert.Zero(t, f.released)
	assert.Len(t, f.unbound, 1)

	// A fresh request follows, not a renewal.
	renewals := f.renewals.Load()
	require.NoError(t, d.Start())
	f.leases <- testACK(t, time.Minute)
	_, err = pollBound(t, d, start.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, renewals, f.renewals.Load())
	assert.Equal(t, int32(2), f.requests.Load())
}

func TestDHCP_RequestFailure(t *testing.T) {
	d, f := newFakeDHCP(t)

	require.NoError(t, d.Start())
	f.leases <- nil
	_, err := pollBound(t, d, time.Unix(0, 0))
	assert.Error(t, err)
	assert.Empty(t, f.bound)
}

func TestDHCP_Release(t *testing.T) {
	d, f := newFakeDHCP(t)

	require.NoError(t, d.Start())
	f.leases <- testACK(t, time.Hour)
	_, err := pollBound(t, d, time.Unix(0, 0))
	require.NoError(t, err)

	require.NoError(t, d.Release())
	assert.Equal(t, 1, f.released)
	_, ok, err := d.Poll(time.Unix(1, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	// A running exchange is cancelled by Release.
	require.NoError(t, d.Start())
	require.NoError(t, d.Release())
	assert.False(t, d.running)
}

func TestSystem_Loopback(t *testing.T) {
	s := NewSystem("lo")
	require.NoError(t, s.Start())

	info, ok, err := s.Poll(time.Unix(0, 0))
	if err != nil {
		t.Skipf("netlink unavailable: %v", err)
	}
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1/8", info.Addr.String())

	require.NoError(t, s.Release())
	_, ok, err = s.Poll(time.Unix(10, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSystem_UnknownInterface(t *testing.T) {
	s := NewSystem("does-not-exist0")
	require.NoError(t, s.Start())

	_, ok, err := s.Poll(time.Unix(0, 0))
	assert.Error(t, err)
	assert.False(t, ok)
}
