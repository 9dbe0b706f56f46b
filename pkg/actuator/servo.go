// Package actuator drives the tail servo and the two drive motors.
//
// Commands never return errors: a failed pin write is logged and the caller
// carries on as if the command took effect. Out-of-range inputs are clamped.
package actuator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/hw"
)

// Servo angle limits.
const (
	MinAngle = 0.0
	MaxAngle = 180.0
)

// ServoConfig maps angles to PWM duty cycles.
type ServoConfig struct {
	MinDuty float64       // duty % at 0°
	MaxDuty float64       // duty % at 180°
	Settle  time.Duration // wait after each write
}

// DefaultServoConfig returns the SG90 mapping at 50 Hz: 3% to 12% duty,
// 15 ms settle.
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		MinDuty: 3,
		MaxDuty: 12,
		Settle:  15 * time.Millisecond,
	}
}

// Servo is a hobby servo on a PWM pin.
type Servo struct {
	pin    hw.PWMOut
	cfg    ServoConfig
	logger *slog.Logger
	sleep  func(time.Duration)

	mu    sync.Mutex
	angle float64
	set   bool
}

// NewServo creates a servo. Nothing is written until the first SetAngle.
func NewServo(pin hw.PWMOut, cfg ServoConfig) *Servo {
	if cfg.MaxDuty <= cfg.MinDuty {
		cfg = DefaultServoConfig()
	}
	return &Servo{
		pin:    pin,
		cfg:    cfg,
		logger: log.Component("servo"),
		sleep:  time.Sleep,
	}
}

// WithLogger replaces the servo's logger.
func (s *Servo) WithLogger(l *slog.Logger) *Servo {
	if l != nil {
		s.logger = l
	}
	return s
}

// ClampAngle limits deg to [MinAngle, MaxAngle].
func ClampAngle(deg float64) float64 {
	return clamp(deg, MinAngle, MaxAngle)
}

// Duty returns the duty cycle for deg after clamping.
func (s *Servo) Duty(deg float64) float64 {
	deg = ClampAngle(deg)
	return s.cfg.MinDuty + deg*(s.cfg.MaxDuty-s.cfg.MinDuty)/MaxAngle
}

// SetAngle moves the servo to deg, clamped into range, and blocks for the
// settle time.
func (s *Servo) SetAngle(deg float64) {
	deg = ClampAngle(deg)

	s.mu.Lock()
	s.angle = deg
	s.set = true
	err := s.pin.SetDuty(s.Duty(deg))
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("servo write failed", "angle", deg, "error", err)
	}
	if s.cfg.Settle > 0 {
		s.sleep(s.cfg.Settle)
	}
}

// Angle returns the last commanded angle and whether one was commanded.
func (s *Servo) Angle() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle, s.set
}

// Release stops the PWM signal so the servo stops holding position.
func (s *Servo) Release() {
	s.mu.Lock()
	err := s.pin.SetDuty(0)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("servo release failed", "error", err)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
