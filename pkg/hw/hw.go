// Package hw opens the robot's GPIO, PWM and I2C devices through periph.io.
//
// Everything here is explicitly constructed and explicitly closed; nothing is
// opened at package init. Higher layers (pkg/actuator, pkg/perception) see
// only the small DigitalOut, PWMOut and distance interfaces.
package hw

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Errors returned by the hardware layer.
var (
	ErrPinNotFound = errors.New("hw: pin not found")
	ErrNoEcho      = errors.New("hw: no echo")
	ErrOutOfRange  = errors.New("hw: reading out of range")
	ErrBadDevice   = errors.New("hw: unexpected device id")
)

// DigitalOut is a single digital output line.
type DigitalOut interface {
	Set(high bool) error
}

// PWMOut is a PWM-capable output line. Duty is a percentage in [0,100].
type PWMOut interface {
	SetDuty(percent float64) error
}

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers. Safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			initErr = fmt.Errorf("hw: host init: %w", err)
		}
	})
	return initErr
}

func lookup(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return p, nil
}

// Output drives a GPIO line high or low.
type Output struct {
	pin gpio.PinOut
}

// NewOutput wraps an already resolved pin and drives it low.
func NewOutput(pin gpio.PinOut) (*Output, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hw: %s out: %w", pin.Name(), err)
	}
	return &Output{pin: pin}, nil
}

// OpenOutput resolves a pin by name ("GPIO24", "P1_18") as an output.
func OpenOutput(name string) (*Output, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return NewOutput(p)
}

// Set drives the line.
func (o *Output) Set(high bool) error {
	return o.pin.Out(gpio.Level(high))
}

// Name returns the pin name.
func (o *Output) Name() string { return o.pin.Name() }

// Close drives the line low and releases it.
func (o *Output) Close() error {
	return errors.Join(o.pin.Out(gpio.Low), o.pin.Halt())
}

// PWM drives a GPIO line with a fixed-frequency PWM signal.
type PWM struct {
	pin  gpio.PinOut
	freq physic.Frequency
}

// NewPWM wraps an already resolved pin. The line starts low.
func NewPWM(pin gpio.PinOut, hz int) (*PWM, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("hw: %s: invalid pwm frequency %d", pin.Name(), hz)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hw: %s out: %w", pin.Name(), err)
	}
	return &PWM{pin: pin, freq: physic.Frequency(hz) * physic.Hertz}, nil
}

// OpenPWM resolves a pin by name as a PWM output at hz.
func OpenPWM(name string, hz int) (*PWM, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return NewPWM(p, hz)
}

// SetDuty sets the duty cycle in percent. Zero drives the line low.
func (p *PWM) SetDuty(percent float64) error {
	if percent <= 0 {
		return p.pin.Out(gpio.Low)
	}
	if percent > 100 {
		percent = 100
	}
	duty := gpio.Duty(percent / 100 * float64(gpio.DutyMax))
	return p.pin.PWM(duty, p.freq)
}

// Name returns the pin name.
func (p *PWM) Name() string { return p.pin.Name() }

// Close stops the PWM and releases the line.
func (p *PWM) Close() error {
	return errors.Join(p.pin.Out(gpio.Low), p.pin.Halt())
}

var (
	_ DigitalOut = (*Output)(nil)
	_ PWMOut     = (*PWM)(nil)
)
