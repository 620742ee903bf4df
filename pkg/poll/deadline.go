package poll

import "time"

// Deadline is an absolute point on a Clock used to bound a polling loop.
type Deadline struct {
	at time.Time
}

// After returns a deadline d from now on clock c.
func After(c Clock, d time.Duration) Deadline {
	return Deadline{at: c.Now().Add(d)}
}

// Pending reports whether now is strictly before the deadline.
func (d Deadline) Pending(c Clock) bool {
	return c.Now().Before(d.at)
}

// Until calls work every interval until done returns true or the deadline
// passes. It reports whether done was satisfied. work runs at least once.
func Until(c Clock, d Deadline, interval time.Duration, work func(), done func() bool) bool {
	for {
		work()
		if done() {
			return true
		}
		if !d.Pending(c) {
			return false
		}
		c.Sleep(interval)
	}
}
