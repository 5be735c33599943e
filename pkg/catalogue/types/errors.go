package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the catalogue core. Callers match them with errors.Is.
var (
	// ErrPathNotFound is returned when a required filesystem path does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrInvalidArgument is returned when an argument is empty or of the wrong kind.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIsADirectory is returned when a single-file operation is given a directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrInvalidPath is returned when a path is neither a regular file nor a directory.
	ErrInvalidPath = errors.New("not a regular file or directory")

	// ErrNotARepository is returned when no git repository contains the code path.
	ErrNotARepository = errors.New("not a git repository")

	// ErrDirtyRepository is returned when the code repository has uncommitted changes
	// or untracked files outside the results directory.
	ErrDirtyRepository = errors.New("repository has uncommitted changes")

	// ErrNoCommits is returned when the code repository has no commits yet.
	ErrNoCommits = errors.New("no existing commits; commit manually first")

	// ErrCommitDeclined is returned when the operator declines the automatic commit.
	ErrCommitDeclined = fmt.Errorf("automatic commit declined: %w", ErrDirtyRepository)

	// ErrFileNotFound is returned when a stored manifest does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrDecodeError is returned when a stored manifest cannot be parsed.
	ErrDecodeError = errors.New("cannot decode manifest")

	// ErrFormatError is returned when a tabular store is malformed.
	ErrFormatError = errors.New("malformed table")

	// ErrRecordNotFound is returned when a timestamp has no row in a tabular store.
	ErrRecordNotFound = errors.New("record not found")
)

// PathError records an error kind together with the path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// NewPathError returns a PathError for the given operation, path and kind.
func NewPathError(op, path string, err error) *PathError {
	return &PathError{Op: op, Path: path, Err: err}
}

func (e *PathError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error kind.
func (e *PathError) Unwrap() error {
	return e.Err
}
