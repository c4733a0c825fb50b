package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

var (
	// ErrFetch marks a per-source fetch failure. It is recorded, never raised past the orchestrator.
	ErrFetch = goerr.New("fetch failed")

	// ErrGeneration marks a failed text generation call
	ErrGeneration = goerr.New("generation failed")

	// ErrConfiguration is fatal: the process must not continue with an inconsistent setup
	ErrConfiguration = goerr.New("configuration error")

	// ErrEvidenceInsufficient is the answer state when retrieval yields nothing usable
	ErrEvidenceInsufficient = goerr.New("insufficient evidence")

	// ErrAuthentication is returned by source clients when credentials are missing or rejected
	ErrAuthentication = goerr.New("authentication failed")

	// ErrQuotaExceeded is returned by source clients when the API quota or rate limit is hit
	ErrQuotaExceeded = goerr.New("quota exceeded")

	// ErrSessionNotFound is returned when an analysis session id is unknown
	ErrSessionNotFound = goerr.New("session not found")
)

// FetchError names the source kind whose fetch task failed and why
type FetchError struct {
	Kind  types.SourceKind
	Cause types.FetchCause
	Err   error
}

// Error implements error
func (e *FetchError) Error() string {
	msg := "fetch " + e.Kind.String() + " failed: " + e.Cause.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// Note renders the failure for display next to a report
func (e *FetchError) Note() string {
	return e.Kind.String() + ": " + e.Cause.String()
}

// GenerationError wraps a failed generation call so that it matches both
// ErrGeneration and the underlying cause
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return ErrGeneration.Error()
	}
	return ErrGeneration.Error() + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeneration}
	}
	return []error{ErrGeneration, e.Err}
}
