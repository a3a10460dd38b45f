//go:build linux

package sysutil

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestSetNice_RaisingNicenessSucceeds(t *testing.T) {
	current, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		t.Skipf("getpriority unavailable: %v", err)
	}
	// the raw getpriority syscall returns 20-nice; convert back and nudge
	// upward, which any unprivileged process is permitted to do to itself.
	nice := 20 - current + 1
	if err := SetNice(nice); err != nil {
		t.Skipf("setpriority not permitted in this sandbox: %v", err)
	}
}
