package research

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned when a run is started without a query.
	ErrEmptyQuery = errors.New("research query is empty")
	// ErrCollaboratorUnavailable wraps a collaborator call that kept failing
	// after every retry.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// PlanningError means no usable plan could be produced. It is fatal for the run.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planning failed: %v", e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }

// CritiqueError means the completeness evaluation could not be obtained.
type CritiqueError struct {
	Err error
}

func (e *CritiqueError) Error() string { return fmt.Sprintf("critique failed: %v", e.Err) }
func (e *CritiqueError) Unwrap() error { return e.Err }

// SearchFailure is recorded in a note when the search for a sub-question fails.
type SearchFailure struct {
	Query string
	Err   error
}

func (e *SearchFailure) Error() string {
	return fmt.Sprintf("search for %q failed: %v", e.Query, e.Err)
}
func (e *SearchFailure) Unwrap() error { return e.Err }

// FetchFailure is recorded in a note when the full-page fetch fails.
type FetchFailure struct {
	URL string
	Err error
}

func (e *FetchFailure) Error() string { return fmt.Sprintf("fetch of %s failed: %v", e.URL, e.Err) }
func (e *FetchFailure) Unwrap() error { return e.Err }

// StageError is returned by the engine when a run aborts. Phase names the
// stage that was running.
type StageError struct {
	Phase Phase
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage: %v", e.Phase, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }
