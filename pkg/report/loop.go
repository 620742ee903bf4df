package report

import (
	"context"
)

// BringUp associates with the configured network and waits for an
// address. A non-nil error means the device must not report; it is a
// *netlink.AssocError unless ctx ended the wait.
func BringUp(ctx context.Context, d *Device) error {
	s := d.Settings
	d.Logger.Infof("Connecting to %q", s.SSID)

	if err := d.Link.Associate(s.SSID, s.Password); err != nil {
		return err
	}
	if err := d.Link.AwaitAssociation(ctx); err != nil {
		return err
	}

	info, err := d.Link.AwaitAddress(ctx)
	if err != nil {
		return err
	}
	d.Logger.Infof("%s", info)
	return nil
}

// Run brings the link up and then reports forever. It returns the bring-up
// error, or ctx's error once ctx is done. Cancellation is observed between
// cycles.
func Run(ctx context.Context, d *Device) error {
	if err := BringUp(ctx, d); err != nil {
		return err
	}

	cycle := NewCycle(d)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cycle.RunOnce(ctx)
	}
}
