package fetch

import "github.com/yegors/skyfetch/internal/opensky"

// Outcome tags a resolved fetch unit. Every planned unit ends with exactly
// one outcome.
type Outcome string

const (
	// OutcomeFetched means the API returned flight rows which were stored
	OutcomeFetched Outcome = "fetched"
	// OutcomeEmpty means the API reported no movements; the raw entry is
	// still stored so reruns skip the unit
	OutcomeEmpty Outcome = "empty"
	// OutcomeSkipped means the store already held a successful fetch
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means every recovery path was exhausted
	OutcomeFailed Outcome = "failed"
)

// FetchResult is the single, immutable record of how a unit resolved.
type FetchResult struct {
	Unit     FetchUnit
	Outcome  Outcome
	Raw      []byte
	Flights  []opensky.Flight
	Attempts int
	ErrKind  ErrorKind
	Err      error
}
