package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/yegors/skyfetch/pkg/logger"
)

// Pacer is the single shared gate that spaces outbound API requests. The
// OpenSky request-rate policy applies to the whole account, so one pacer is
// injected into every worker rather than each worker keeping its own timer.
type Pacer struct {
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewPacer creates a pacer enforcing a minimum interval between permitted
// calls. A non-positive interval disables pacing.
func NewPacer(minInterval time.Duration, log *logger.Logger) *Pacer {
	p := &Pacer{logger: log.Named("pacer")}
	if minInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return p
}

// Wait suspends the caller until the gate permits the next request. It only
// fails when the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 10*time.Millisecond {
		p.logger.Debug("Rate limit wait",
			logger.Duration("waited", waited),
		)
	}
	return nil
}
