package pacer

import (
	"context"
	"time"

	"go.uber.org/ratelimit"
)

// Pacer enforces a minimum spacing between consecutive calls to one external service.
// It is safe for concurrent use; a nil *Pacer never blocks.
type Pacer struct {
	Name    string
	spacing time.Duration
	limiter ratelimit.Limiter
}

func NewPacer(name string, spacing time.Duration) *Pacer {
	var limiter ratelimit.Limiter
	if spacing <= 0 {
		limiter = ratelimit.NewUnlimited()
	} else {
		limiter = ratelimit.New(1, ratelimit.Per(spacing), ratelimit.WithoutSlack)
	}
	return &Pacer{
		Name:    name,
		spacing: spacing,
		limiter: limiter,
	}
}

// Wait blocks until the next call slot. It returns the context error if ctx is done
// before or after the slot is taken.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.limiter.Take()
	return ctx.Err()
}

func (p *Pacer) Spacing() time.Duration {
	if p == nil {
		return 0
	}
	return p.spacing
}
