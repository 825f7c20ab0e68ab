package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPermanent marks a job that failed in a way retrying cannot fix,
	// such as a 4xx other than 429 or a destination that cannot be written.
	ErrPermanent = errors.New("permanent download failure")

	// ErrExhausted marks a job that used up all of its attempts.
	ErrExhausted = errors.New("download attempts exhausted")
)

// StatusError is returned for any response other than 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Throttled reports whether the server asked us to slow down.
func (e *StatusError) Throttled() bool {
	return e.Code == http.StatusTooManyRequests
}

// Transient reports whether the failure is worth retrying for this job alone.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 && e.Code < 600
}

// State is where a job sits in its lifecycle.
type State string

const (
	StatePending         State = "pending"
	StateAttempting      State = "attempting"
	StateBackoff         State = "backoff"
	StateSucceeded       State = "succeeded"
	StateFailedPermanent State = "failed_permanent"
	StateFailedExhausted State = "failed_exhausted"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailedPermanent, StateFailedExhausted:
		return true
	default:
		return false
	}
}

// Job is one image to download to one destination. It is owned by a single
// Run call and never shared between goroutines.
type Job struct {
	URL         string
	Path        string
	Description string
	Attempts    int
	MaxAttempts int
	State       State
}

// NewJob creates a pending job.
func NewJob(url, path, description string, maxAttempts int) *Job {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Job{
		URL:         url,
		Path:        path,
		Description: description,
		MaxAttempts: maxAttempts,
		State:       StatePending,
	}
}
