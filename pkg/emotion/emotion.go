// Package emotion guesses the owner's facial expression.
package emotion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// Label is one of the expressions the reply generator understands.
type Label string

// Labels.
const (
	Happy    Label = "happy"
	Sad      Label = "sad"
	Neutral  Label = "neutral"
	Angry    Label = "angry"
	Surprise Label = "surprise"
)

// Labels lists every label in a fixed order.
var Labels = []Label{Happy, Sad, Neutral, Angry, Surprise}

// ErrUnknownLabel is returned when a classifier emits something Normalize
// cannot map.
var ErrUnknownLabel = errors.New("emotion: unknown label")

// Classifier returns the current expression.
type Classifier interface {
	Classify(ctx context.Context) (Label, error)
}

func (l Label) String() string { return string(l) }

// Normalize maps model output (FER2013, FER+, AffectNet style names, any
// case) onto a Label. Unknown names give Neutral and false.
func Normalize(s string) (Label, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "happy", "happiness", "joy":
		return Happy, true
	case "sad", "sadness":
		return Sad, true
	case "neutral", "calm":
		return Neutral, true
	case "angry", "anger", "disgust", "contempt":
		return Angry, true
	case "surprise", "surprised", "fear", "fearful":
		return Surprise, true
	default:
		return Neutral, false
	}
}

// Random picks a label uniformly. It stands in when no model is installed.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a random classifier. A nil rng uses a time-seeded one.
func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Random{rng: rng}
}

// Classify returns a random label.
func (r *Random) Classify(ctx context.Context) (Label, error) {
	if err := ctx.Err(); err != nil {
		return Neutral, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Labels[r.rng.IntN(len(Labels))], nil
}

// Static always returns the same label.
type Static Label

// Classify returns the label.
func (s Static) Classify(context.Context) (Label, error) {
	return Label(s), nil
}

// ProviderError wraps an error with the classifier that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("emotion [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with provider context. Returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

var (
	_ Classifier = (*Random)(nil)
	_ Classifier = Static(Neutral)
)
