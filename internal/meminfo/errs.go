package meminfo

import "errors"

var (
	// ErrMeminfo indicates that /proc/meminfo could not be read or was
	// missing a required key.
	ErrMeminfo = errors.New("meminfo: malformed or unreadable /proc/meminfo")

	// ErrVMStat indicates that /proc/vmstat could not be read or was
	// missing a required key.
	ErrVMStat = errors.New("meminfo: malformed or unreadable /proc/vmstat")
)
