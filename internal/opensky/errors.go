package opensky

import "fmt"

// APIError is a non-2xx response from the flights API.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Transient reports whether the status is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AuthFailure reports whether the status indicates a rejected token.
func (e *APIError) AuthFailure() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// AuthError is a failed credential exchange: the token endpoint rejected the
// client id/secret or was unreachable after the provider's internal retry.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("credential exchange rejected with status %d", e.StatusCode)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ParseError is a structurally malformed API response. Retrying will not fix
// it, so callers must not.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
