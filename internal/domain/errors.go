package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute is the provider's definitive "no path between these points" answer.
	ErrNoRoute = errors.New("no route")
	// ErrSolverUnavailable is returned by a delegated tour solver that cannot serve the request.
	ErrSolverUnavailable = errors.New("tour solver unavailable")
)

// InputError reports malformed caller input. It is never retried.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// ProviderErrorKind classifies routing provider failures for the retry policy.
type ProviderErrorKind int

const (
	// Timeouts, transport failures and 5xx responses.
	ProviderTransient ProviderErrorKind = iota
	// Provider-reported quota or rate exhaustion; retried with a longer backoff.
	ProviderQuota
	// Definitive answers such as "no route"; never retried.
	ProviderPermanent
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderQuota:
		return "quota"
	case ProviderPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// ProviderError wraps an error returned by an external routing provider.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on a later attempt.
func (e *ProviderError) Retryable() bool { return e.Kind != ProviderPermanent }

// RouteUnavailableError is returned when not even a fallback edge could be produced for a pair.
type RouteUnavailableError struct {
	From string
	To   string
	Err  error
}

func (e *RouteUnavailableError) Error() string {
	return fmt.Sprintf("route unavailable %q -> %q: %v", e.From, e.To, e.Err)
}

func (e *RouteUnavailableError) Unwrap() error { return e.Err }
