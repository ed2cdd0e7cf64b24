package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/skyfetch/internal/opensky"
	"github.com/yegors/skyfetch/pkg/logger"
)

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	stored   map[string][]opensky.Flight
	hasErr   error
	storeErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing: make(map[string]bool),
		stored:   make(map[string][]opensky.Flight),
		storeErr: make(map[string]error),
	}
}

func storeKey(airport string, day time.Time, kind opensky.Kind) string {
	return fmt.Sprintf("%s|%s|%s", airport, day.Format("2006-01-02"), kind)
}

func (s *fakeStore) HasData(_ context.Context, airport string, day time.Time, kind opensky.Kind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasErr != nil {
		return false, s.hasErr
	}
	return s.existing[storeKey(airport, day, kind)], nil
}

func (s *fakeStore) StoreFetch(_ context.Context, airport string, day time.Time, kind opensky.Kind, _ time.Time, _ []byte, flights []opensky.Flight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(airport, day, kind)
	if err := s.storeErr[key]; err != nil {
		return err
	}
	s.stored[key] = flights
	return nil
}

func (s *fakeStore) storedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

// fakeAPI scripts per-call errors: responses[airport] is consumed one error
// per attempt, and a nil entry (or exhaustion) yields flights.
type fakeAPI struct {
	mu        sync.Mutex
	calls     int
	responses map[string][]error
	flights   []opensky.Flight
}

func (a *fakeAPI) Flights(_ context.Context, _ opensky.Kind, airport string, _, _ time.Time, _ string) ([]byte, []opensky.Flight, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if queue := a.responses[airport]; len(queue) > 0 {
		next := queue[0]
		a.responses[airport] = queue[1:]
		if next != nil {
			return nil, nil, next
		}
	}
	if len(a.flights) == 0 {
		return []byte("[]"), nil, nil
	}
	return []byte(`[{"icao24":"abc123"}]`), a.flights, nil
}

func (a *fakeAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeTokens struct {
	mu          sync.Mutex
	invalidated int
	tokenErr    error
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "test-token", nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeTokens) invalidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

func someFlights() []opensky.Flight {
	firstSeen := int64(1704100000)
	return []opensky.Flight{{Icao24: "abc123", FirstSeen: &firstSeen}}
}

func testOptions() Options {
	return Options{MaxConcurrent: 2, MaxAttempts: 5, InitialBackoff: time.Millisecond}
}

func runOrchestrator(t *testing.T, store *fakeStore, api *fakeAPI, tokens *fakeTokens, opts Options, units []FetchUnit) (RunSummary, error) {
	t.Helper()
	orch := NewOrchestrator(store, api, tokens, NewPacer(0, logger.Nop()), opts, logger.Nop())
	agg := NewAggregator(len(units), nil, logger.Nop())
	err := orch.Run(context.Background(), units, agg)
	return agg.Summary(), err
}

func TestRunAllSucceed(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{flights: someFlights()}
	units := []FetchUnit{testUnit("KMCO", 1), testUnit("KMCO", 2), testUnit("KJFK", 1)}

	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, testOptions(), units)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, store.storedCount())
}

func TestRunSkipExisting(t *testing.T) {
	store := newFakeStore()
	units := []FetchUnit{testUnit("KMCO", 1), testUnit("KMCO", 2)}
	for _, u := range units {
		store.existing[storeKey(u.Airport, u.Day, u.Kind)] = true
	}
	api := &fakeAPI{flights: someFlights()}

	opts := testOptions()
	opts.SkipExisting = true
	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, opts, units)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, summary.Done)
	assert.Equal(t, 0, api.callCount(), "skipped units must make no remote calls")
}

func TestRunExistenceCheckErrorFetchesAnyway(t *testing.T) {
	store := newFakeStore()
	store.hasErr = errors.New("database is locked")
	api := &fakeAPI{flights: someFlights()}

	opts := testOptions()
	opts.SkipExisting = true
	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, opts, []FetchUnit{testUnit("KMCO", 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 0, summary.Skipped)
}

func TestRunTransientRetriesThenSucceeds(t *testing.T) {
	store := newFakeStore()
	rateLimited := &opensky.APIError{StatusCode: 429}
	api := &fakeAPI{
		flights:   someFlights(),
		responses: map[string][]error{"KMCO": {rateLimited, rateLimited, rateLimited}},
	}

	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, testOptions(), []FetchUnit{testUnit("KMCO", 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 4, api.callCount())
}

func TestRunTransientExhaustsAttempts(t *testing.T) {
	store := newFakeStore()
	serverErr := &opensky.APIError{StatusCode: 503}
	api := &fakeAPI{
		flights:   someFlights(),
		responses: map[string][]error{"KMCO": {serverErr, serverErr, serverErr, serverErr, serverErr}},
	}

	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, testOptions(), []FetchUnit{testUnit("KMCO", 1)})
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, ErrorTransient, summary.Failures[0].ErrKind)
	assert.Equal(t, 5, summary.Failures[0].Attempts)
	assert.Equal(t, 0, store.storedCount())
}

func TestRunParseFailureDoesNotRetry(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		flights: someFlights(),
		responses: map[string][]error{
			"KBAD": {&opensky.ParseError{Err: errors.New("unexpected token")}},
		},
	}
	units := make([]FetchUnit, 0, 10)
	units = append(units, testUnit("KBAD", 1))
	for i := 1; i <= 9; i++ {
		units = append(units, testUnit("KMCO", i))
	}

	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, testOptions(), units)
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Fetched)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 9, store.storedCount())

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, ErrorParse, summary.Failures[0].ErrKind)
	assert.Equal(t, 1, summary.Failures[0].Attempts)
	assert.Equal(t, 10, api.callCount(), "a malformed response must not be retried")
}

func TestRunAuthRejectionRefreshesOnce(t *testing.T) {
	store := newFakeStore()
	tokens := &fakeTokens{}
	api := &fakeAPI{
		flights:   someFlights(),
		responses: map[string][]error{"KMCO": {&opensky.APIError{StatusCode: 401}}},
	}

	summary, err := runOrchestrator(t, store, api, tokens, testOptions(), []FetchUnit{testUnit("KMCO", 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 1, tokens.invalidateCount())
	assert.Equal(t, 2, api.callCount())
}

func TestRunConsecutiveAuthFailuresAbort(t *testing.T) {
	store := newFakeStore()
	reject := &opensky.APIError{StatusCode: 401}
	api := &fakeAPI{
		flights: someFlights(),
		responses: map[string][]error{
			"KAAA": {reject, reject},
			"KBBB": {reject, reject},
		},
	}

	units := []FetchUnit{testUnit("KAAA", 1), testUnit("KBBB", 1), testUnit("KMCO", 1), testUnit("KMCO", 2)}
	opts := testOptions()
	opts.MaxConcurrent = 1 // deterministic ordering
	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, opts, units)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "consecutive")
	assert.Equal(t, 4, summary.Done, "every planned unit resolves even on abort")
	assert.Equal(t, 4, summary.Failed)
	assert.Equal(t, 0, summary.Fetched)
}

func TestRunSingleAuthFailureDoesNotAbort(t *testing.T) {
	store := newFakeStore()
	reject := &opensky.APIError{StatusCode: 403}
	api := &fakeAPI{
		flights:   someFlights(),
		responses: map[string][]error{"KAAA": {reject, reject}},
	}

	units := []FetchUnit{testUnit("KAAA", 1), testUnit("KMCO", 1), testUnit("KMCO", 2)}
	opts := testOptions()
	opts.MaxConcurrent = 1
	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, opts, units)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, ErrorAuth, summary.Failures[0].ErrKind)
}

func TestRunStorageErrorFailsOnlyThatUnit(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{flights: someFlights()}
	bad := testUnit("KMCO", 2)
	store.storeErr[storeKey(bad.Airport, bad.Day, bad.Kind)] = errors.New("disk full")

	units := []FetchUnit{testUnit("KMCO", 1), bad, testUnit("KMCO", 3)}
	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, testOptions(), units)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, ErrorStorage, summary.Failures[0].ErrKind)
}

func TestRunEmptyResponseStored(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{} // no flights configured: every call returns []
	unit := testUnit("KMCO", 1)

	summary, err := runOrchestrator(t, store, api, &fakeTokens{}, testOptions(), []FetchUnit{unit})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Empty)

	store.mu.Lock()
	_, stored := store.stored[storeKey(unit.Airport, unit.Day, unit.Kind)]
	store.mu.Unlock()
	assert.True(t, stored, "empty fetches are persisted so reruns skip the unit")
}

func TestRunCancelledContext(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{flights: someFlights()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	units := []FetchUnit{testUnit("KMCO", 1), testUnit("KMCO", 2)}
	orch := NewOrchestrator(store, api, &fakeTokens{}, NewPacer(0, logger.Nop()), testOptions(), logger.Nop())
	agg := NewAggregator(len(units), nil, logger.Nop())
	require.NoError(t, orch.Run(ctx, units, agg))

	summary := agg.Summary()
	assert.Equal(t, len(units), summary.Done)
	assert.Equal(t, 0, summary.Fetched)
}
