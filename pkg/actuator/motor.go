package actuator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/hw"
)

// Direction is a motor rotation direction.
type Direction int

// Motor directions. Brake drives both inputs low.
const (
	Brake Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Brake:
		return "brake"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Motor is one H-bridge channel (L298N or TB6612FNG): two direction inputs
// and a PWM enable.
type Motor struct {
	name   string
	in1    hw.DigitalOut
	in2    hw.DigitalOut
	pwm    hw.PWMOut
	logger *slog.Logger

	mu   sync.Mutex
	dir  Direction
	duty float64
}

// NewMotor creates a motor channel. name is used in logs.
func NewMotor(name string, in1, in2 hw.DigitalOut, pwm hw.PWMOut) *Motor {
	return &Motor{
		name:   name,
		in1:    in1,
		in2:    in2,
		pwm:    pwm,
		logger: log.Component("motor").With("motor", name),
	}
}

// WithLogger replaces the motor's logger.
func (m *Motor) WithLogger(l *slog.Logger) *Motor {
	if l != nil {
		m.logger = l.With("motor", m.name)
	}
	return m
}

// Set drives the motor. duty is clamped to [0,100]; Brake forces duty 0.
func (m *Motor) Set(dir Direction, duty float64) {
	duty = clamp(duty, 0, 100)
	if dir != Forward && dir != Backward {
		dir = Brake
	}
	if dir == Brake {
		duty = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.dir, m.duty = dir, duty
	m.write("in1", m.in1.Set(dir == Forward))
	m.write("in2", m.in2.Set(dir == Backward))
	m.write("pwm", m.pwm.SetDuty(duty))
}

// Stop brakes the motor.
func (m *Motor) Stop() {
	m.Set(Brake, 0)
}

// State returns the last commanded direction and duty.
func (m *Motor) State() (Direction, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dir, m.duty
}

func (m *Motor) write(line string, err error) {
	if err != nil {
		m.logger.Warn("motor write failed", "line", line, "error", err)
	}
}
