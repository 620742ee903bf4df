//go:build !tinygo

package max6675

import (
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/tcreport/pkg/config"
)

// Mock simulates a MAX6675 on its bus for development without hardware.
type Mock struct {
	cfg *config.MockConfig

	mu    sync.Mutex
	start time.Time
	now   func() time.Time
	rng   *rand.Rand
}

// Ensure Mock implements Bus.
var _ Bus = (*Mock)(nil)

// NewMock creates a simulated converter.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			Ambient:    22.0,
			Swing:      3.0,
			Period:     10 * time.Minute,
			NoiseLevel: 0.25,
		}
	}

	return &Mock{
		cfg:   cfg,
		start: time.Now(),
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Tx fills r with the next simulated word.
func (m *Mock) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := m.sample()
	if len(r) > 0 {
		r[0] = byte(raw >> 8)
	}
	if len(r) > 1 {
		r[1] = byte(raw)
	}
	return nil
}

// Temperature returns the noiseless simulated temperature at t.
func (m *Mock) Temperature(t time.Time) float32 {
	ambient := float32(m.cfg.Ambient)
	if m.cfg.Period <= 0 {
		return ambient
	}
	phase := float32(t.Sub(m.start)) / float32(m.cfg.Period)
	return ambient + float32(m.cfg.Swing)*math32.Sin(2*math32.Pi*phase)
}

func (m *Mock) sample() Raw {
	if m.cfg.Unplugged > 0 && m.rng.Float64() < m.cfg.Unplugged {
		return Encode(0, true)
	}

	temp := m.Temperature(m.now())
	if m.cfg.NoiseLevel > 0 {
		temp += float32(m.rng.NormFloat64() * m.cfg.NoiseLevel)
	}
	return Encode(temp, false)
}
