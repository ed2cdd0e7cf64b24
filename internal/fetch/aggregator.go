package fetch

import (
	"sync"

	"github.com/yegors/skyfetch/pkg/logger"
)

// Progress is a point-in-time snapshot of a run.
type Progress struct {
	Planned int `json:"planned"`
	Done    int `json:"done"`
	Fetched int `json:"fetched"`
	Empty   int `json:"empty"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// FailedUnit records how a unit ultimately failed.
type FailedUnit struct {
	Unit     FetchUnit `json:"-"`
	Airport  string    `json:"airport"`
	Day      string    `json:"day"`
	Kind     string    `json:"kind"`
	ErrKind  ErrorKind `json:"error_kind"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
}

// RunSummary is the single source of truth for what a run fetched, skipped,
// or failed. Read-only after the run completes.
type RunSummary struct {
	Planned  int          `json:"planned"`
	Skipped  int          `json:"skipped"`
	Fetched  int          `json:"fetched"`
	Empty    int          `json:"empty"`
	Failed   int          `json:"failed"`
	Failures []FailedUnit `json:"failures,omitempty"`
}

// AnyFailed reports whether the run's exit status should be non-zero.
func (s RunSummary) AnyFailed() bool {
	return s.Failed > 0
}

// Aggregator folds fetch results into running counts. The fold is
// commutative: completion order never changes the final summary.
type Aggregator struct {
	onProgress func(Progress)
	logger     *logger.Logger

	mu       sync.Mutex
	planned  int
	fetched  int
	empty    int
	skipped  int
	failed   int
	failures []FailedUnit
}

// NewAggregator creates an aggregator for a run of planned units. The
// progress callback, if set, fires after every recorded result.
func NewAggregator(planned int, onProgress func(Progress), log *logger.Logger) *Aggregator {
	return &Aggregator{
		planned:    planned,
		onProgress: onProgress,
		logger:     log.Named("aggregator"),
	}
}

// Record consumes one result. Safe for concurrent workers.
func (a *Aggregator) Record(res FetchResult) {
	a.mu.Lock()
	switch res.Outcome {
	case OutcomeFetched:
		a.fetched++
	case OutcomeEmpty:
		a.empty++
	case OutcomeSkipped:
		a.skipped++
	case OutcomeFailed:
		a.failed++
		reason := ""
		if res.Err != nil {
			reason = res.Err.Error()
		}
		a.failures = append(a.failures, FailedUnit{
			Unit:     res.Unit,
			Airport:  res.Unit.Airport,
			Day:      res.Unit.Day.Format("2006-01-02"),
			Kind:     string(res.Unit.Kind),
			ErrKind:  res.ErrKind,
			Attempts: res.Attempts,
			Reason:   reason,
		})
	}
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	if res.Outcome == OutcomeFailed {
		a.logger.Error("Unit failed",
			logger.String("unit", res.Unit.String()),
			logger.String("error_kind", string(res.ErrKind)),
			logger.Int("attempts", res.Attempts),
			logger.Error(res.Err),
		)
	}

	if a.onProgress != nil {
		a.onProgress(snapshot)
	}
}

// Snapshot returns the current progress counts.
func (a *Aggregator) Snapshot() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Progress {
	return Progress{
		Planned: a.planned,
		Done:    a.fetched + a.empty + a.skipped + a.failed,
		Fetched: a.fetched,
		Empty:   a.empty,
		Skipped: a.skipped,
		Failed:  a.failed,
	}
}

// Summary builds the immutable run summary. Call after all units resolved.
func (a *Aggregator) Summary() RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	failures := make([]FailedUnit, len(a.failures))
	copy(failures, a.failures)
	return RunSummary{
		Planned:  a.planned,
		Skipped:  a.skipped,
		Fetched:  a.fetched,
		Empty:    a.empty,
		Failed:   a.failed,
		Failures: failures,
	}
}
