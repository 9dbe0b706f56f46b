package reply

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sptcnl/momo/internal/log"
)

// Chain implements Generator by trying generators in order.
type Chain struct {
	providers []Generator
	logger    *slog.Logger
}

// NewChain creates a chain. At least one generator is required.
func NewChain(providers ...Generator) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    log.Component("reply.chain"),
	}, nil
}

// WithLogger replaces the chain's logger.
func (c *Chain) WithLogger(l *slog.Logger) *Chain {
	if l != nil {
		c.logger = l
	}
	return c
}

// Name lists the chained generators.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// Reply returns the first non-empty reply.
func (c *Chain) Reply(ctx context.Context, req Request) (string, error) {
	var errs []error

	for i, p := range c.providers {
		text, err := p.Reply(ctx, req)
		if err == nil && strings.TrimSpace(text) == "" {
			err = WrapError(p.Name(), ErrEmptyReply)
		}
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider", p.Name())
			}
			return text, nil
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"error", err,
		)

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", &ChainError{Errors: errs}
}

// Providers returns the chained generators.
func (c *Chain) Providers() []Generator {
	return c.providers
}

var _ Generator = (*Chain)(nil)
