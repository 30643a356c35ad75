package gwygb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacer_Wait(t *testing.T) {
	t.Run("zero delay", func(t *testing.T) {
		start := time.Now()
		assert.NoError(t, NewPacer(0).Wait(context.Background()))
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("nil pacer", func(t *testing.T) {
		var p *Pacer
		assert.NoError(t, p.Wait(context.Background()))
	})

	t.Run("fixed delay", func(t *testing.T) {
		start := time.Now()
		assert.NoError(t, NewPacer(30*time.Millisecond).Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewPacer(time.Hour).Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := NewPacer(time.Hour).Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
