package hw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// speedOfSoundCMPerSec at roughly 20°C.
const speedOfSoundCMPerSec = 34300.0

// HCSR04 is an ultrasonic range finder on a trigger/echo pin pair.
type HCSR04 struct {
	mu      sync.Mutex
	trig    gpio.PinOut
	echo    gpio.PinIn
	maxCM   float64
	timeout time.Duration

	now func() time.Time
}

// NewHCSR04 wires a sensor to resolved pins. maxCM bounds valid readings
// (the part is rated to about 400 cm); timeout bounds each edge wait.
func NewHCSR04(trig gpio.PinOut, echo gpio.PinIn, maxCM float64, timeout time.Duration) (*HCSR04, error) {
	if err := trig.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hw: hc-sr04 trigger: %w", err)
	}
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("hw: hc-sr04 echo: %w", err)
	}
	if maxCM <= 0 {
		maxCM = 400
	}
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &HCSR04{
		trig:    trig,
		echo:    echo,
		maxCM:   maxCM,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// OpenHCSR04 resolves the trigger and echo pins by name.
func OpenHCSR04(trigName, echoName string, maxCM float64, timeout time.Duration) (*HCSR04, error) {
	trig, err := lookup(trigName)
	if err != nil {
		return nil, err
	}
	echo, err := lookup(echoName)
	if err != nil {
		return nil, err
	}
	return NewHCSR04(trig, echo, maxCM, timeout)
}

// DistanceCM fires one ping and returns the measured distance.
func (s *HCSR04) DistanceCM(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	wait := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < wait {
			wait = left
		}
	}

	// 10µs trigger pulse.
	if err := s.trig.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("hw: hc-sr04 trigger: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := s.trig.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("hw: hc-sr04 trigger: %w", err)
	}

	if !s.waitLevel(gpio.High, wait) {
		return 0, ErrNoEcho
	}
	start := s.now()
	if !s.waitLevel(gpio.Low, wait) {
		return 0, ErrNoEcho
	}
	elapsed := s.now().Sub(start)

	cm := elapsed.Seconds() * speedOfSoundCMPerSec / 2
	if cm <= 0 || cm > s.maxCM {
		return 0, fmt.Errorf("%w: %.1f cm", ErrOutOfRange, cm)
	}
	return cm, nil
}

func (s *HCSR04) waitLevel(want gpio.Level, timeout time.Duration) bool {
	if s.echo.Read() == want {
		return true
	}
	for {
		if !s.echo.WaitForEdge(timeout) {
			return false
		}
		if s.echo.Read() == want {
			return true
		}
	}
}

// Close releases both pins.
func (s *HCSR04) Close() error {
	return errors.Join(s.trig.Halt(), s.echo.Halt())
}
