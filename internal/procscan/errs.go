package procscan

import "errors"

var (
	// ErrProcUnavailable indicates /proc could not be enumerated.
	ErrProcUnavailable = errors.New("procscan: /proc unavailable")

	// ErrNoExePath indicates a process's executable path could not be
	// resolved (it may have exited, or be a kernel thread).
	ErrNoExePath = errors.New("procscan: no exe path")
)
