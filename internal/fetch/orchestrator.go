package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/skyfetch/internal/opensky"
	"github.com/yegors/skyfetch/pkg/logger"
)

// Store is the orchestrator's view of the analytical store.
type Store interface {
	// HasData reports whether a prior successful fetch exists for the key
	HasData(ctx context.Context, airport string, day time.Time, kind opensky.Kind) (bool, error)
	// StoreFetch persists one unit's raw payload and parsed rows in a
	// single transaction, idempotently
	StoreFetch(ctx context.Context, airport string, day time.Time, kind opensky.Kind, fetchedAt time.Time, raw []byte, flights []opensky.Flight) error
}

// FlightAPI issues one authenticated flights call.
type FlightAPI interface {
	Flights(ctx context.Context, kind opensky.Kind, airport string, begin, end time.Time, token string) ([]byte, []opensky.Flight, error)
}

// TokenSource supplies bearer tokens and lets a worker force a refresh
// after the API rejects one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Options tunes the orchestrator.
type Options struct {
	MaxConcurrent  int
	MaxAttempts    int
	InitialBackoff time.Duration
	SkipExisting   bool
}

// Orchestrator turns a planned unit set into a bounded-concurrency,
// rate-limited sequence of API calls and hands each completed unit to the
// store exactly once.
type Orchestrator struct {
	store  Store
	api    FlightAPI
	tokens TokenSource
	pacer  *Pacer
	opts   Options
	logger *logger.Logger

	mu         sync.Mutex
	consecAuth int
	abortErr   error
}

// NewOrchestrator creates an orchestrator. Zero option fields fall back to
// defaults (5 workers, 5 attempts, 1s initial backoff).
func NewOrchestrator(store Store, api FlightAPI, tokens TokenSource, pacer *Pacer, opts Options, log *logger.Logger) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	return &Orchestrator{
		store:  store,
		api:    api,
		tokens: tokens,
		pacer:  pacer,
		opts:   opts,
		logger: log.Named("orchestrator"),
	}
}

// Run processes the planned units, recording every outcome on the
// aggregator. It returns an error only when the run was aborted for a
// systemic reason; per-unit failures live in the aggregator's summary.
func (o *Orchestrator) Run(ctx context.Context, units []FetchUnit, agg *Aggregator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.consecAuth = 0
	o.abortErr = nil
	o.mu.Unlock()

	// The filter pass over the store completes before any worker starts,
	// so no unit is fetched concurrently with the decision to skip it.
	pending := units
	if o.opts.SkipExisting {
		pending = o.filterExisting(ctx, units, agg)
	}

	if len(pending) == 0 {
		o.logger.Info("No new data to fetch (all units already in database)")
		return nil
	}

	o.logger.Info("Fetching units",
		logger.Int("count", len(pending)),
		logger.Int("skipped", len(units)-len(pending)),
		logger.Int("max_concurrent", o.opts.MaxConcurrent),
	)

	unitCh := make(chan FetchUnit)
	var wg sync.WaitGroup
	for i := 0; i < o.opts.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx, cancel, unitCh, agg)
		}()
	}

	for _, unit := range pending {
		unitCh <- unit
	}
	close(unitCh)
	wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abortErr
}

func (o *Orchestrator) filterExisting(ctx context.Context, units []FetchUnit, agg *Aggregator) []FetchUnit {
	var pending []FetchUnit
	for _, unit := range units {
		exists, err := o.store.HasData(ctx, unit.Airport, unit.Day, unit.Kind)
		if err != nil {
			// A failed existence check is not fatal: refetching an
			// already-stored unit is idempotent.
			o.logger.Warn("Existence check failed, unit will be fetched",
				logger.String("unit", unit.String()),
				logger.Error(err),
			)
			pending = append(pending, unit)
			continue
		}
		if exists {
			o.logger.Debug("Skipping unit (already in database)",
				logger.String("unit", unit.String()),
			)
			agg.Record(FetchResult{Unit: unit, Outcome: OutcomeSkipped})
			continue
		}
		pending = append(pending, unit)
	}
	return pending
}

func (o *Orchestrator) worker(ctx context.Context, cancel context.CancelFunc, units <-chan FetchUnit, agg *Aggregator) {
	for unit := range units {
		if ctx.Err() != nil {
			agg.Record(o.abortResult(ctx, unit))
			continue
		}

		res := o.fetchUnit(ctx, unit)

		if res.Outcome == OutcomeFetched || res.Outcome == OutcomeEmpty {
			if err := o.store.StoreFetch(ctx, unit.Airport, unit.Day, unit.Kind, time.Now().UTC(), res.Raw, res.Flights); err != nil {
				res = FetchResult{
					Unit:     unit,
					Outcome:  OutcomeFailed,
					Attempts: res.Attempts,
					ErrKind:  ErrorStorage,
					Err:      fmt.Errorf("failed to store fetch: %w", err),
				}
			}
		}

		o.noteOutcome(res, cancel)
		agg.Record(res)
	}
}

// noteOutcome tracks consecutive auth failures across distinct units. Two in
// a row indicate a systemic credential problem, so the run aborts; anything
// else resets the streak.
func (o *Orchestrator) noteOutcome(res FetchResult, cancel context.CancelFunc) {
	if res.ErrKind == ErrorAborted {
		return
	}

	o.mu.Lock()
	abort := false
	if res.Outcome == OutcomeFailed && res.ErrKind == ErrorAuth {
		o.consecAuth++
		if o.consecAuth >= 2 && o.abortErr == nil {
			o.abortErr = fmt.Errorf("%d consecutive units failed authentication", o.consecAuth)
			abort = true
		}
	} else {
		o.consecAuth = 0
	}
	o.mu.Unlock()

	if abort {
		o.logger.Error("Systemic credential problem, aborting run")
		cancel()
	}
}

func (o *Orchestrator) abortResult(ctx context.Context, unit FetchUnit) FetchResult {
	o.mu.Lock()
	err := o.abortErr
	o.mu.Unlock()
	if err == nil {
		err = ctx.Err()
	}
	return FetchResult{
		Unit:    unit,
		Outcome: OutcomeFailed,
		ErrKind: ErrorAborted,
		Err:     fmt.Errorf("run aborted: %w", err),
	}
}

// fetchUnit is the per-unit attempt loop: Attempt -> classify -> one of
// {Retry, Fail, Succeed}. Attempts within a unit are strictly sequential.
func (o *Orchestrator) fetchUnit(ctx context.Context, unit FetchUnit) FetchResult {
	attempts := 0
	backoff := o.opts.InitialBackoff
	authRetried := false

	for {
		attempts++

		if err := o.pacer.Wait(ctx); err != nil {
			return FetchResult{Unit: unit, Outcome: OutcomeFailed, Attempts: attempts, ErrKind: ErrorAborted, Err: err}
		}

		token, err := o.tokens.Token(ctx)
		var raw []byte
		var flights []opensky.Flight
		if err == nil {
			raw, flights, err = o.api.Flights(ctx, unit.Kind, unit.Airport, unit.Begin, unit.End, token)
		}

		if err == nil {
			if len(flights) == 0 {
				if raw == nil {
					raw = []byte("[]")
				}
				o.logger.Info("Fetched unit (no movements)",
					logger.String("unit", unit.String()),
					logger.Int("attempts", attempts),
				)
				return FetchResult{Unit: unit, Outcome: OutcomeEmpty, Raw: raw, Attempts: attempts}
			}
			o.logger.Info("Fetched unit",
				logger.String("unit", unit.String()),
				logger.Int("flights", len(flights)),
				logger.Int("attempts", attempts),
			)
			return FetchResult{Unit: unit, Outcome: OutcomeFetched, Raw: raw, Flights: flights, Attempts: attempts}
		}

		var apiErr *opensky.APIError
		var parseErr *opensky.ParseError

		switch {
		case isAuthFailure(err):
			if !authRetried {
				authRetried = true
				o.tokens.Invalidate()
				o.logger.Warn("Authentication rejected, forcing token refresh",
					logger.String("unit", unit.String()),
					logger.Error(err),
				)
				continue
			}
			return FetchResult{Unit: unit, Outcome: OutcomeFailed, Attempts: attempts, ErrKind: ErrorAuth, Err: err}

		case errors.As(err, &parseErr):
			// A structural mismatch will not fix itself on retry
			return FetchResult{Unit: unit, Outcome: OutcomeFailed, Attempts: attempts, ErrKind: ErrorParse, Err: err}

		case errors.As(err, &apiErr) && !apiErr.Transient():
			return FetchResult{Unit: unit, Outcome: OutcomeFailed, Attempts: attempts, ErrKind: ErrorTransient, Err: err}

		case ctx.Err() != nil:
			return FetchResult{Unit: unit, Outcome: OutcomeFailed, Attempts: attempts, ErrKind: ErrorAborted, Err: ctx.Err()}

		default:
			// Network error, 5xx, or 429
			if attempts >= o.opts.MaxAttempts {
				return FetchResult{
					Unit:     unit,
					Outcome:  OutcomeFailed,
					Attempts: attempts,
					ErrKind:  ErrorTransient,
					Err:      fmt.Errorf("failed after %d attempts: %w", attempts, err),
				}
			}
			o.logger.Debug("Transient failure, backing off",
				logger.String("unit", unit.String()),
				logger.Int("attempt", attempts),
				logger.Duration("backoff", backoff),
				logger.Error(err),
			)
			select {
			case <-ctx.Done():
				return FetchResult{Unit: unit, Outcome: OutcomeFailed, Attempts: attempts, ErrKind: ErrorAborted, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
}

func isAuthFailure(err error) bool {
	var authErr *opensky.AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var apiErr *opensky.APIError
	return errors.As(err, &apiErr) && apiErr.AuthFailure()
}
