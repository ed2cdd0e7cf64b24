package fetch

import "errors"

var (
	// ErrNoValidAirports means every supplied airport code failed validation.
	ErrNoValidAirports = errors.New("no valid airport codes provided (codes must be exactly 4 characters)")
	// ErrInvalidRange means the range start falls after its end.
	ErrInvalidRange = errors.New("start date must be before or equal to end date")
)

// ErrorKind classifies why a unit failed.
type ErrorKind string

const (
	// ErrorTransient covers network failures, 5xx and 429 responses after
	// retries were exhausted, and non-retryable 4xx responses.
	ErrorTransient ErrorKind = "transient"
	// ErrorAuth covers authentication failures that survived a forced
	// token refresh.
	ErrorAuth ErrorKind = "auth"
	// ErrorParse covers structurally malformed responses.
	ErrorParse ErrorKind = "parse"
	// ErrorStorage covers sink write failures.
	ErrorStorage ErrorKind = "storage"
	// ErrorAborted marks units left unfetched when the run was cancelled.
	ErrorAborted ErrorKind = "aborted"
)
