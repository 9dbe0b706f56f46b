package drive

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/pkg/perception"
)

func snap(face bool, dist float64, hasDist bool, offset float64, hasOffset bool) perception.Snapshot {
	return perception.Snapshot{
		FaceDetected:  face,
		FaceCount:     map[bool]int{true: 1}[face],
		DistanceCM:    dist,
		HasDistance:   hasDist,
		FaceOffset:    offset,
		HasFaceOffset: hasOffset,
	}
}

func TestDecide(t *testing.T) {
	a := NewApproach(DefaultApproachConfig())

	tests := []struct {
		name string
		in   perception.Snapshot
		want Action
	}{
		{"no face", snap(false, 200, true, 0, false), Stop},
		{"no face no distance", snap(false, 0, false, 0, false), Stop},
		{"face far centred", snap(true, 200, true, 0, true), Forward},
		{"face distance unknown", snap(true, 0, false, 0.1, true), Forward},
		{"face without offset", snap(true, 120, true, 0, false), Forward},
		{"too close", snap(true, 10, true, 0, true), Stop},
		{"at follow distance", snap(true, 50, true, 0, true), Stop},
		{"face left of centre", snap(true, 200, true, -0.6, true), TurnRight},
		{"face right of centre", snap(true, 200, true, 0.6, true), TurnLeft},
		{"edge of band", snap(true, 200, true, 0.25, true), Forward},
		{"too close beats steering", snap(true, 5, true, 0.9, true), Stop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Decide(tt.in).Action)
		})
	}
}

func TestDecideSpeeds(t *testing.T) {
	a := NewApproach(ApproachConfig{MinDistanceCM: 30, CenterBand: 0.2, Speed: 40, TurnSpeed: 70})

	assert.Equal(t, Ahead(40), a.Decide(snap(true, 100, true, 0, true)))
	assert.Equal(t, Right(70), a.Decide(snap(true, 100, true, -0.5, true)))
	assert.Equal(t, Halt(), a.Decide(snap(false, 100, true, 0, true)))
}

func TestNeverForwardBelowMinDistance(t *testing.T) {
	cfgs := []ApproachConfig{
		DefaultApproachConfig(),
		{MinDistanceCM: 100, CenterBand: 0.1, Speed: 80},
		{MinDistanceCM: 50, Speed: 100},
	}
	rng := rand.New(rand.NewSource(1))

	for _, cfg := range cfgs {
		a := NewApproach(cfg)
		for i := 0; i < 2000; i++ {
			d := rng.Float64() * cfg.MinDistanceCM
			for _, face := range []bool{true, false} {
				off := rng.Float64()*2 - 1
				got := a.Decide(snap(face, d, true, off, rng.Intn(2) == 0))
				require.NotEqual(t, Forward, got.Action, "distance %.2f face %v", d, face)
			}
		}
	}
}

func TestNewApproachDefaultsTurnSpeed(t *testing.T) {
	a := NewApproach(ApproachConfig{Speed: 35, CenterBand: -1, MinDistanceCM: -5})
	cfg := a.Config()
	assert.Equal(t, 35.0, cfg.TurnSpeed)
	assert.Equal(t, 0.0, cfg.CenterBand)
	assert.Equal(t, 0.0, cfg.MinDistanceCM)
}

func TestCommand(t *testing.T) {
	assert.Equal(t, 100.0, Ahead(250).Speed)
	assert.Equal(t, 0.0, Left(-3).Speed)
	assert.Equal(t, Halt(), New(Stop, 80))
	assert.Equal(t, "stop", Halt().String())
	assert.Equal(t, "forward@40%", Ahead(40).String())

	a, err := ParseAction("left")
	require.NoError(t, err)
	assert.Equal(t, TurnLeft, a)

	_, err = ParseAction("sideways")
	assert.Error(t, err)
}
