package gwygb

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Pacer spaces out requests made against the gazette site. It is a fixed
// delay, not a retry policy.
type Pacer struct {
	b backoff.BackOff
}

// NewPacer returns a pacer that waits d on every Wait. A non-positive d
// makes Wait return immediately.
func NewPacer(d time.Duration) *Pacer {
	if d <= 0 {
		return &Pacer{b: &backoff.ZeroBackOff{}}
	}
	return &Pacer{b: backoff.NewConstantBackOff(d)}
}

// Wait blocks for one interval, or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p == nil {
		return nil
	}

	d := p.b.NextBackOff()
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
