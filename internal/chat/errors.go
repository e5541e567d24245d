package chat

import "fmt"

// ValidationError reports a request that was rejected before any upstream call was made
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError reports that the upstream provider answered, but with an error
type UpstreamError struct {
	Provider   string
	StatusCode int    // HTTP status returned by the provider, 0 if unknown
	Message    string // Provider-supplied message
	Details    any    // Provider-supplied structured details, may be nil
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// TransportError reports that the upstream provider could not be reached
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to reach %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
