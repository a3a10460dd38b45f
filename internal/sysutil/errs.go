package sysutil

import "errors"

var (
	// ErrNice indicates the process niceness could not be adjusted.
	ErrNice = errors.New("sysutil: setpriority failed")

	// ErrDaemonize indicates re-exec-and-detach could not complete.
	ErrDaemonize = errors.New("sysutil: daemonize failed")
)
