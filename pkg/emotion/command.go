package emotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/sptcnl/momo/internal/proc"
)

const providerCommand = "command"

// Command runs an external classifier that captures its own frame and
// prints a label on the first non-empty line of stdout.
type Command struct {
	Argv []string
}

// NewCommand checks that the classifier executable exists.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, WrapError(providerCommand, proc.ErrNoArgv)
	}
	if err := proc.Require(argv[0]); err != nil {
		return nil, WrapError(providerCommand, err)
	}
	return &Command{Argv: argv}, nil
}

// Classify runs the classifier once.
func (c *Command) Classify(ctx context.Context) (Label, error) {
	out, err := proc.Run(ctx, c.Argv, nil)
	if err != nil {
		return Neutral, WrapError(providerCommand, err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		l, ok := Normalize(line)
		if !ok {
			return Neutral, WrapError(providerCommand, fmt.Errorf("%w: %q", ErrUnknownLabel, line))
		}
		return l, nil
	}
	return Neutral, WrapError(providerCommand, fmt.Errorf("%w: empty output", ErrUnknownLabel))
}

var _ Classifier = (*Command)(nil)
