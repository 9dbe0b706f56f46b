package actuator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/drive"
	"github.com/sptcnl/momo/pkg/hw"
)

func newTestServo() (*Servo, *hw.MockPin) {
	pin := hw.NewMockPin("GPIO12")
	s := NewServo(pin, DefaultServoConfig()).WithLogger(log.Discard())
	s.sleep = func(time.Duration) {}
	return s, pin
}

func TestServoDutyMapping(t *testing.T) {
	s, pin := newTestServo()

	tests := []struct {
		angle float64
		duty  float64
	}{
		{0, 3},
		{90, 7.5},
		{180, 12},
		{60, 6},
		{120, 9},
	}
	for _, tt := range tests {
		s.SetAngle(tt.angle)
		assert.InDelta(t, tt.duty, pin.Duty(), 1e-9, "angle %v", tt.angle)
	}
}

func TestServoClampsOutOfRange(t *testing.T) {
	s, pin := newTestServo()

	inputs := []float64{-720, -90, -0.001, 180.001, 270, 1e9, math.Inf(1), math.Inf(-1)}
	for _, in := range inputs {
		s.SetAngle(in)
		got, ok := s.Angle()
		require.True(t, ok)
		assert.GreaterOrEqual(t, got, MinAngle, "input %v", in)
		assert.LessOrEqual(t, got, MaxAngle, "input %v", in)
	}

	for _, c := range pin.Calls() {
		assert.GreaterOrEqual(t, c.Duty, 3.0)
		assert.LessOrEqual(t, c.Duty, 12.0)
	}
	assert.Equal(t, len(inputs), pin.CallCount("SetDuty"))
}

func TestServoSettles(t *testing.T) {
	pin := hw.NewMockPin("GPIO12")
	s := NewServo(pin, DefaultServoConfig()).WithLogger(log.Discard())
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	s.SetAngle(90)
	assert.Equal(t, []time.Duration{15 * time.Millisecond}, slept)
}

func TestServoWriteFailureIsSwallowed(t *testing.T) {
	s, pin := newTestServo()
	pin.Err = errors.New("pwm busy")

	assert.NotPanics(t, func() { s.SetAngle(45) })
	got, _ := s.Angle()
	assert.Equal(t, 45.0, got, "commanded value is kept even when the write fails")
}

func TestServoRelease(t *testing.T) {
	s, pin := newTestServo()
	s.SetAngle(90)
	s.Release()
	assert.Equal(t, 0.0, pin.Duty())
}

func TestNewServoFixesInvertedDuty(t *testing.T) {
	s := NewServo(hw.NewMockPin("x"), ServoConfig{MinDuty: 12, MaxDuty: 3})
	assert.Equal(t, 3.0, s.Duty(0))
}

type motorPins struct {
	in1, in2, pwm *hw.MockPin
}

func newTestMotor(name string) (*Motor, motorPins) {
	p := motorPins{hw.NewMockPin(name + "-in1"), hw.NewMockPin(name + "-in2"), hw.NewMockPin(name + "-en")}
	return NewMotor(name, p.in1, p.in2, p.pwm).WithLogger(log.Discard()), p
}

func TestMotorSet(t *testing.T) {
	m, p := newTestMotor("left")

	m.Set(Forward, 40)
	assert.True(t, p.in1.Level())
	assert.False(t, p.in2.Level())
	assert.Equal(t, 40.0, p.pwm.Duty())

	m.Set(Backward, 150)
	assert.False(t, p.in1.Level())
	assert.True(t, p.in2.Level())
	assert.Equal(t, 100.0, p.pwm.Duty(), "duty is clamped")

	m.Set(Forward, -20)
	assert.Equal(t, 0.0, p.pwm.Duty())

	m.Stop()
	assert.False(t, p.in1.Level())
	assert.False(t, p.in2.Level())
	dir, duty := m.State()
	assert.Equal(t, Brake, dir)
	assert.Equal(t, 0.0, duty)
}

func TestMotorUnknownDirectionBrakes(t *testing.T) {
	m, p := newTestMotor("left")
	m.Set(Direction(42), 80)
	assert.Equal(t, 0.0, p.pwm.Duty())
	dir, _ := m.State()
	assert.Equal(t, Brake, dir)
}

func newTestDrive(style TurnStyle, withStandby bool) (*Drive, motorPins, motorPins, *hw.MockPin) {
	l, lp := newTestMotor("left")
	r, rp := newTestMotor("right")
	var stby *hw.MockPin
	var standby hw.DigitalOut
	if withStandby {
		stby = hw.NewMockPin("stby")
		standby = stby
	}
	return NewDrive(l, r, standby, style).WithLogger(log.Discard()), lp, rp, stby
}

func TestDriveSpinTurns(t *testing.T) {
	d, lp, rp, _ := newTestDrive(Spin, false)

	d.Apply(drive.Left(60))
	assert.True(t, lp.in2.Level(), "left wheel backward")
	assert.True(t, rp.in1.Level(), "right wheel forward")
	assert.Equal(t, 60.0, lp.pwm.Duty())
	assert.Equal(t, 60.0, rp.pwm.Duty())

	d.Apply(drive.Right(60))
	assert.True(t, lp.in1.Level(), "left wheel forward")
	assert.True(t, rp.in2.Level(), "right wheel backward")
}

func TestDriveArcTurns(t *testing.T) {
	d, lp, rp, _ := newTestDrive(Arc, false)

	d.Apply(drive.Left(50))
	assert.True(t, lp.in1.Level())
	assert.InDelta(t, 15, lp.pwm.Duty(), 1e-9)
	assert.Equal(t, 50.0, rp.pwm.Duty())

	d.Apply(drive.Right(50))
	assert.Equal(t, 50.0, lp.pwm.Duty())
	assert.InDelta(t, 15, rp.pwm.Duty(), 1e-9)
}

func TestDriveIdempotent(t *testing.T) {
	d, lp, rp, _ := newTestDrive(Spin, false)

	d.Apply(drive.Halt())
	writes := len(lp.pwm.Calls()) + len(rp.pwm.Calls())

	for i := 0; i < 5; i++ {
		d.Stop()
	}
	assert.Equal(t, writes, len(lp.pwm.Calls())+len(rp.pwm.Calls()), "repeated stop writes nothing")

	d.Apply(drive.Ahead(40))
	d.Apply(drive.Ahead(40))
	assert.Equal(t, 2, lp.pwm.CallCount("SetDuty"))
	assert.Equal(t, drive.Ahead(40), d.Last())
}

func TestDriveStandby(t *testing.T) {
	d, _, _, stby := newTestDrive(Spin, true)

	d.Apply(drive.Ahead(30))
	assert.True(t, stby.Level())

	d.Stop()
	assert.False(t, stby.Level())
}

func TestDriveReleaseAlwaysWrites(t *testing.T) {
	d, lp, _, _ := newTestDrive(Spin, false)
	d.Stop()
	before := lp.pwm.CallCount("SetDuty")

	d.Release()
	assert.Equal(t, before+1, lp.pwm.CallCount("SetDuty"))
	assert.Equal(t, drive.Halt(), d.Last())
}

func TestParseTurnStyle(t *testing.T) {
	s, err := ParseTurnStyle("arc")
	require.NoError(t, err)
	assert.Equal(t, Arc, s)

	_, err = ParseTurnStyle("drift")
	assert.Error(t, err)
}
