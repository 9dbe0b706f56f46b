package actuator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/drive"
	"github.com/sptcnl/momo/pkg/hw"
)

// TurnStyle selects how the pair of motors turns.
type TurnStyle int

const (
	// Spin turns in place: the inner wheel runs backward.
	Spin TurnStyle = iota
	// Arc turns while moving: the inner wheel runs forward at ArcInnerRatio.
	Arc
)

// ArcInnerRatio is the inner wheel speed fraction during an arc turn.
const ArcInnerRatio = 0.3

// ParseTurnStyle maps "spin" and "arc".
func ParseTurnStyle(s string) (TurnStyle, error) {
	switch s {
	case "spin", "":
		return Spin, nil
	case "arc":
		return Arc, nil
	default:
		return Spin, fmt.Errorf("actuator: unknown turn style %q", s)
	}
}

// Drive pairs the left and right motors.
type Drive struct {
	left, right *Motor
	standby     hw.DigitalOut // TB6612FNG STBY, nil on L298N
	style       TurnStyle
	logger      *slog.Logger

	mu      sync.Mutex
	last    drive.Command
	applied bool
}

// NewDrive creates a drive. standby may be nil.
func NewDrive(left, right *Motor, standby hw.DigitalOut, style TurnStyle) *Drive {
	return &Drive{
		left:    left,
		right:   right,
		standby: standby,
		style:   style,
		logger:  log.Component("drive"),
	}
}

// WithLogger replaces the drive's logger.
func (d *Drive) WithLogger(l *slog.Logger) *Drive {
	if l != nil {
		d.logger = l
	}
	return d
}

// Apply executes cmd. Repeating the last command writes nothing.
func (d *Drive) Apply(cmd drive.Command) {
	cmd = drive.New(cmd.Action, cmd.Speed)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.applied && cmd == d.last {
		return
	}
	d.apply(cmd)
	d.last, d.applied = cmd, true
	d.logger.Debug("drive command", "command", cmd.String())
}

// Stop brakes both motors.
func (d *Drive) Stop() {
	d.Apply(drive.Halt())
}

// Last returns the last applied command.
func (d *Drive) Last() drive.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Release brakes both motors and drops standby regardless of the last
// command. Used on teardown.
func (d *Drive) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(drive.Halt())
	d.last, d.applied = drive.Halt(), true
}

func (d *Drive) apply(cmd drive.Command) {
	s := cmd.Speed
	inner := s * ArcInnerRatio

	switch cmd.Action {
	case drive.Forward:
		d.wake(true)
		d.left.Set(Forward, s)
		d.right.Set(Forward, s)
	case drive.Backward:
		d.wake(true)
		d.left.Set(Backward, s)
		d.right.Set(Backward, s)
	case drive.TurnLeft:
		d.wake(true)
		if d.style == Arc {
			d.left.Set(Forward, inner)
		} else {
			d.left.Set(Backward, s)
		}
		d.right.Set(Forward, s)
	case drive.TurnRight:
		d.wake(true)
		d.left.Set(Forward, s)
		if d.style == Arc {
			d.right.Set(Forward, inner)
		} else {
			d.right.Set(Backward, s)
		}
	default:
		d.left.Stop()
		d.right.Stop()
		d.wake(false)
	}
}

func (d *Drive) wake(on bool) {
	if d.standby == nil {
		return
	}
	if err := d.standby.Set(on); err != nil {
		d.logger.Warn("standby write failed", "error", err)
	}
}
