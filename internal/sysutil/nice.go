//go:build linux

package sysutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetNice adjusts the calling process's scheduling priority. Positive
// values lower priority (be nicer to other processes); this mirrors the
// classic --nice CLI convention, default 15.
func SetNice(nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		return fmt.Errorf("%w: %v", ErrNice, err)
	}
	return nil
}
