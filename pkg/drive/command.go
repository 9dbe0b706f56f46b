// Package drive decides how the robot moves relative to the person it sees.
package drive

import "fmt"

// Action is a drive command kind.
type Action int

// Drive actions.
const (
	Stop Action = iota
	Forward
	Backward
	TurnLeft
	TurnRight
)

func (a Action) String() string {
	switch a {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case TurnLeft:
		return "turn_left"
	case TurnRight:
		return "turn_right"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Command is one drive instruction. Speed is a duty cycle percentage and is
// zero for Stop.
type Command struct {
	Action Action
	Speed  float64
}

// Halt returns the Stop command.
func Halt() Command { return Command{Action: Stop} }

// Ahead returns a Forward command.
func Ahead(speed float64) Command { return Command{Action: Forward, Speed: clampSpeed(speed)} }

// Reverse returns a Backward command.
func Reverse(speed float64) Command { return Command{Action: Backward, Speed: clampSpeed(speed)} }

// Left returns a TurnLeft command.
func Left(speed float64) Command { return Command{Action: TurnLeft, Speed: clampSpeed(speed)} }

// Right returns a TurnRight command.
func Right(speed float64) Command { return Command{Action: TurnRight, Speed: clampSpeed(speed)} }

func (c Command) String() string {
	if c.Action == Stop {
		return "stop"
	}
	return fmt.Sprintf("%s@%.0f%%", c.Action, c.Speed)
}

// ParseAction maps "forward", "backward", "left", "right" and "stop".
func ParseAction(s string) (Action, error) {
	switch s {
	case "stop":
		return Stop, nil
	case "forward", "ahead":
		return Forward, nil
	case "backward", "back", "reverse":
		return Backward, nil
	case "left", "turn_left":
		return TurnLeft, nil
	case "right", "turn_right":
		return TurnRight, nil
	default:
		return Stop, fmt.Errorf("drive: unknown action %q", s)
	}
}

// New builds a command from an action and speed.
func New(a Action, speed float64) Command {
	if a == Stop {
		return Halt()
	}
	return Command{Action: a, Speed: clampSpeed(speed)}
}

func clampSpeed(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
