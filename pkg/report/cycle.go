package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/itohio/tcreport/pkg/max6675"
	"github.com/itohio/tcreport/pkg/netlink"
	"github.com/itohio/tcreport/pkg/poll"
)

// ChunkSize is the size of a single response read.
const ChunkSize = 512

// Phase denotes the reporting cycle phase
type Phase int

const (

	// PhaseIdle is active between cycles
	PhaseIdle Phase = iota

	// PhaseSensing is active while reading the sensor
	PhaseSensing

	// PhaseRequesting is active while opening the socket and sending
	PhaseRequesting

	// PhaseReceiving is active while waiting for the response
	PhaseReceiving

	// PhaseDraining is active during the grace window after disconnect
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseSensing:
		return "Sensing"
	case PhaseRequesting:
		return "Requesting"
	case PhaseReceiving:
		return "Receiving"
	case PhaseDraining:
		return "Draining"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Result summarizes one cycle.
type Result struct {
	// Phase is the last phase the cycle went through.
	Phase       Phase
	Temperature float32
	Received    int
	TimedOut    bool
	// Err is the recoverable failure that cut the cycle short, if any.
	Err error
}

// Cycle runs reporting cycles on a Device. Its buffers are reused by every
// cycle.
type Cycle struct {
	d     *Device
	phase Phase
	req   Request
	chunk [ChunkSize]byte
}

// NewCycle creates a Cycle for d.
func NewCycle(d *Device) *Cycle {
	return &Cycle{d: d}
}

// Phase returns the phase currently executing.
func (c *Cycle) Phase() Phase {
	return c.phase
}

// RunOnce executes Sensing, Requesting, Receiving and Draining in order.
// Every failure is recoverable and reported in the Result.
func (c *Cycle) RunOnce(ctx context.Context) Result {
	d := c.d
	defer c.enter(PhaseIdle)

	c.enter(PhaseSensing)
	c.pollLink()
	celsius, err := d.Sensor.Read()
	if err != nil {
		if errors.Is(err, max6675.ErrNoSensor) {
			d.Logger.Warnf("No sensor attached")
		} else {
			d.Logger.Errorf("sensor read failed: %v", err)
		}
		c.wait(d.Settings.FaultDelay)
		return Result{Phase: PhaseSensing, Err: err}
	}
	d.Logger.Infof("Temperature: %.2f°C", celsius)

	res := Result{Temperature: celsius}

	c.enter(PhaseRequesting)
	d.Indicator.Toggle()
	if err := c.send(ctx, celsius); err != nil {
		d.Logger.Errorf("request failed: %v", err)
		res.Err = err
	} else {
		c.enter(PhaseReceiving)
		res.Received, res.TimedOut = c.receive()
	}

	c.enter(PhaseDraining)
	c.drain()
	res.Phase = PhaseDraining
	return res
}

func (c *Cycle) enter(p Phase) {
	c.d.Logger.Debugf("phase %s -> %s", c.phase, p)
	c.phase = p
}

func (c *Cycle) send(ctx context.Context, celsius float32) error {
	d := c.d
	if err := c.req.Format(d.Settings.Path, celsius, d.Settings.Endpoint); err != nil {
		return err
	}

	c.pollLink()
	if err := d.Conn.Open(ctx, d.Settings.Endpoint); err != nil {
		return err
	}
	c.pollLink()
	if _, err := d.Conn.Write(c.req.Bytes()); err != nil {
		return &netlink.WriteError{Err: err}
	}
	return d.Conn.Flush()
}

// receive forwards response bytes to the output until the peer closes the
// connection or the receive deadline passes.
func (c *Cycle) receive() (received int, timedOut bool) {
	d := c.d
	deadline := poll.After(d.Clock, d.Settings.ReceiveTimeout)
	defer d.Out.Write([]byte{'\n'})

	for {
		c.pollLink()
		n, err := d.Conn.Read(c.chunk[:])
		if n > 0 {
			received += n
			if _, werr := d.Out.Write(c.chunk[:n]); werr != nil {
				d.Logger.Debugf("output write failed: %v", werr)
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, netlink.ErrWouldBlock):
		case errors.Is(err, io.EOF):
			return received, false
		default:
			d.Logger.Warnf("read failed: %v", err)
			return received, false
		}

		if !deadline.Pending(d.Clock) {
			d.Logger.Warnf("Timeout")
			return received, true
		}
		if err != nil {
			d.Clock.Sleep(d.Settings.PollInterval)
		}
	}
}

// drain disconnects and keeps polling for the grace window so the close
// handshake completes before the socket is reused.
func (c *Cycle) drain() {
	c.d.Conn.Disconnect()
	c.wait(c.d.Settings.DrainPeriod)
}

// wait polls the link until d elapsed.
func (c *Cycle) wait(d time.Duration) {
	never := func() bool { return false }
	poll.Until(c.d.Clock, poll.After(c.d.Clock, d), c.d.Settings.PollInterval, c.pollLink, never)
}

func (c *Cycle) pollLink() {
	if err := c.d.Link.Poll(); err != nil {
		c.d.Logger.Errorf("link poll failed: %v", err)
	}
}
