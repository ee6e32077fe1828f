package tts

import (
	"fmt"
	"math"
	"sync"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// SpeedStep is how far one Faster or Slower call moves speed_facter.
const SpeedStep = 0.1

// ErrSpeedOutOfRange is returned when speed is outside valid range
var ErrSpeedOutOfRange = ttypes.ErrSpeedRange

// RoundSpeed rounds to the two decimals speed_facter carries. Rates that
// print the same then share a cache key.
func RoundSpeed(speed float64) float64 {
	return math.Round(speed*100) / 100
}

// SpeedController holds the global speed_facter sent with new tasks.
// Changes apply to tasks built afterwards, so cached clips keep the speed
// they were generated with. Per-character speeds are not touched.
type SpeedController struct {
	mu         sync.RWMutex
	speed      float64
	configured float64
}

// NewSpeedController starts at the configured speed. An invalid value
// falls back to the service default of 1.0.
func NewSpeedController(configured float64) *SpeedController {
	s := &SpeedController{speed: 1.0, configured: 1.0}
	if err := s.SetSpeed(configured); err == nil {
		s.configured = s.speed
	}
	return s
}

// GetSpeed returns the current speed_facter.
func (s *SpeedController) GetSpeed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// SetSpeed sets speed_facter, rounded to two decimals.
func (s *SpeedController) SetSpeed(speed float64) error {
	if err := ValidateSpeed(speed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = RoundSpeed(speed)
	return nil
}

// Faster raises speed_facter by one step, stopping at the service maximum.
func (s *SpeedController) Faster() float64 {
	return s.nudge(SpeedStep)
}

// Slower lowers speed_facter by one step, stopping at the service minimum.
func (s *SpeedController) Slower() float64 {
	return s.nudge(-SpeedStep)
}

// Reset returns to the configured speed.
func (s *SpeedController) Reset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = s.configured
	return s.speed
}

func (s *SpeedController) nudge(delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = RoundSpeed(math.Min(ttypes.MaxSpeed, math.Max(ttypes.MinSpeed, s.speed+delta)))
	return s.speed
}

// Adjusted reports whether the speed differs from the configured one.
func (s *SpeedController) Adjusted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed != s.configured
}

// String formats the speed the way the status line shows it.
func (s *SpeedController) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.speed == s.configured {
		return fmt.Sprintf("%.2fx", s.speed)
	}
	return fmt.Sprintf("%.2fx (config %.2fx)", s.speed, s.configured)
}
