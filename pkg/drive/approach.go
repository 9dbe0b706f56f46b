package drive

import "github.com/sptcnl/momo/pkg/perception"

// ApproachConfig holds the follow thresholds.
type ApproachConfig struct {
	// MinDistanceCM is the safety floor: closer than this the robot never
	// drives forward.
	MinDistanceCM float64

	// FollowDistanceCM stops the robot once it is this close to the person.
	// Zero disables it.
	FollowDistanceCM float64

	// CenterBand is the half-width of the dead zone around the frame centre,
	// in face offset units (-1..1).
	CenterBand float64

	Speed     float64
	TurnSpeed float64
}

// DefaultApproachConfig returns the conservative defaults: stop at 30 cm,
// settle at 50 cm.
func DefaultApproachConfig() ApproachConfig {
	return ApproachConfig{
		MinDistanceCM:    30,
		FollowDistanceCM: 50,
		CenterBand:       0.25,
		Speed:            40,
		TurnSpeed:        60,
	}
}

// Approach maps perception snapshots to drive commands. It holds no state.
type Approach struct {
	cfg ApproachConfig
}

// NewApproach creates an approach policy.
func NewApproach(cfg ApproachConfig) *Approach {
	if cfg.MinDistanceCM < 0 {
		cfg.MinDistanceCM = 0
	}
	if cfg.CenterBand < 0 {
		cfg.CenterBand = 0
	}
	if cfg.TurnSpeed <= 0 {
		cfg.TurnSpeed = cfg.Speed
	}
	return &Approach{cfg: cfg}
}

// Config returns the active thresholds.
func (a *Approach) Config() ApproachConfig { return a.cfg }

// Decide returns the command for s. Too close always stops; it never backs
// away.
func (a *Approach) Decide(s perception.Snapshot) Command {
	if !s.FaceDetected {
		return Halt()
	}
	if d, ok := s.Distance(); ok {
		if d < a.cfg.MinDistanceCM {
			return Halt()
		}
		if a.cfg.FollowDistanceCM > 0 && d <= a.cfg.FollowDistanceCM {
			return Halt()
		}
	}
	if s.HasFaceOffset {
		switch {
		case s.FaceOffset < -a.cfg.CenterBand:
			return Right(a.cfg.TurnSpeed)
		case s.FaceOffset > a.cfg.CenterBand:
			return Left(a.cfg.TurnSpeed)
		}
	}
	return Ahead(a.cfg.Speed)
}
