package store

import "errors"

var (
	// ErrOpen indicates the underlying database file could not be opened
	// or its connection pool established.
	ErrOpen = errors.New("store: open failed")

	// ErrMigrate indicates the embedded schema migrations could not be
	// applied.
	ErrMigrate = errors.New("store: migration failed")

	// ErrDecode indicates a stored binary blob (weight matrix or
	// time-to-leave vector) was truncated or carried an unrecognized
	// frame header.
	ErrDecode = errors.New("store: blob decode failed")
)
