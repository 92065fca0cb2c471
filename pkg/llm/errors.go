package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendUnavailable matches the error returned once every strategy
	// has failed.
	ErrBackendUnavailable = errors.New("language model backend unavailable")
	ErrMalformedResponse  = errors.New("malformed language model response")
	ErrEndpointNotFound   = errors.New("endpoint not found")
)

// HTTPError is a non-2xx answer other than 404.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Attempt is the failure of one strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// UnavailableError aggregates the failures of every strategy tried, in order.
type UnavailableError struct {
	BaseURL  string
	Model    string
	Attempts []Attempt
}

func (e *UnavailableError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Strategy + ": " + a.Err.Error()
	}
	return fmt.Sprintf("%v (base_url=%q model=%q): %s",
		ErrBackendUnavailable, e.BaseURL, e.Model, strings.Join(parts, " | "))
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func (e *UnavailableError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}
