package fetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/skyfetch/pkg/logger"
)

func TestPacerEnforcesCadence(t *testing.T) {
	const (
		interval = 50 * time.Millisecond
		callers  = 5
	)
	pacer := NewPacer(interval, logger.Nop())

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, pacer.Wait(context.Background()))
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// First caller passes immediately, the remaining four are released one
	// interval apart. Allow slack for timer coarseness.
	assert.GreaterOrEqual(t, elapsed, time.Duration(callers-1)*interval-10*time.Millisecond)
}

func TestPacerDisabled(t *testing.T) {
	pacer := NewPacer(0, logger.Nop())
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, pacer.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacerCancelled(t *testing.T) {
	pacer := NewPacer(time.Hour, logger.Nop())
	require.NoError(t, pacer.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, pacer.Wait(ctx))
}
