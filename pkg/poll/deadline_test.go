package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeadline(t *testing.T) {
	clk := NewManualClock(time.Unix(1000, 0))
	d := After(clk, 5*time.Second)
	assert.True(t, d.Pending(clk))

	clk.Advance(5*time.Second - time.Millisecond)
	assert.True(t, d.Pending(clk))

	clk.Advance(time.Millisecond)
	assert.False(t, d.Pending(clk), "deadline reached is no longer pending")
}

func TestUntil(t *testing.T) {
	t.Run("done before deadline", func(t *testing.T) {
		clk := NewManualClock(time.Unix(0, 0))
		calls := 0
		ok := Until(clk, After(clk, time.Second), 10*time.Millisecond,
			func() { calls++ },
			func() bool { return calls == 3 })

		assert.True(t, ok)
		assert.Equal(t, 3, calls)
		assert.Equal(t, time.Unix(0, 0).Add(20*time.Millisecond), clk.Now())
	})

	t.Run("deadline expires", func(t *testing.T) {
		clk := NewManualClock(time.Unix(0, 0))
		calls := 0
		ok := Until(clk, After(clk, time.Second), 100*time.Millisecond,
			func() { calls++ },
			func() bool { return false })

		assert.False(t, ok)
		assert.Equal(t, 11, calls)
		assert.False(t, clk.Now().Before(time.Unix(1, 0)))
	})
}
