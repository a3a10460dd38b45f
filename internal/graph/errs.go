package graph

import "errors"

var (
	// ErrDuplicateRegion is returned by RegisterRegion when an equal
	// (path, offset, length) region is already registered.
	ErrDuplicateRegion = errors.New("graph: duplicate region")

	// ErrDuplicateExe is returned by RegisterExe when the path is already
	// known.
	ErrDuplicateExe = errors.New("graph: duplicate exe")

	// ErrUnknownRegion is returned when an operation names a region index
	// that isn't registered.
	ErrUnknownRegion = errors.New("graph: unknown region")

	// ErrUnknownExe is returned when an operation names an exe index or
	// path that isn't registered.
	ErrUnknownExe = errors.New("graph: unknown exe")
)
