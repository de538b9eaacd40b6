package experiment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned when an experiment is used after Close.
	ErrClosed = errors.New("experiment is closed")
	// ErrTrialState is returned when a trial scope is entered or left out of order.
	ErrTrialState = errors.New("invalid trial state")
)

// DirectoryError reports an experiment or trial directory that could not be created.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("cannot create directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// ContractError reports a result source that lacks a required result slot.
type ContractError struct {
	Missing []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("result source does not expose %s", strings.Join(e.Missing, ", "))
}

// ExperimentFault wraps an error raised inside an experiment scope. Nothing was
// persisted for the experiment when it is returned.
type ExperimentFault struct {
	Name string
	Err  error
}

func (e *ExperimentFault) Error() string {
	return fmt.Sprintf("an error occurred during experiment %q: %v", e.Name, e.Err)
}

func (e *ExperimentFault) Unwrap() error { return e.Err }
