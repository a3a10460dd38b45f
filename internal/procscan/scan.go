//go:build linux

// Package procscan enumerates the process table and the file-backed memory
// regions of each process (C2). It never holds state of its own: every scan
// call is a process-table enumeration plus, for each accepted executable, a
// memory-map enumeration.
package procscan

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RawRegion is one file-backed mapping reported by the kernel's per-process
// address-map file, before it is registered into the entity graph.
type RawRegion struct {
	Path   string
	Offset int64
	Length int64
}

// ProcessFunc is invoked once per accepted process during a scan.
type ProcessFunc func(pid int, exePath string) error

// EnumerateProcesses walks /proc, resolving each numeric entry's executable
// path and invoking fn for every process other than self whose exe path is
// accepted by filter.
//
// A process that exits mid-scan (ENOENT on readlink) is skipped silently —
// this is expected churn, not a probe failure.
func EnumerateProcesses(self int, filter *PrefixFilter, fn ProcessFunc) error {
	return enumerateProcesses("/proc", self, filter, fn)
}

func enumerateProcesses(procRoot string, self int, filter *PrefixFilter, fn ProcessFunc) error {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcUnavailable, err)
	}

	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue // not a pid directory
		}
		if pid == self {
			continue
		}

		exePath, err := os.Readlink(filepath.Join(procRoot, ent.Name(), "exe"))
		if err != nil {
			continue // process gone, or a kernel thread with no exe link
		}

		if !filter.Accept(exePath) {
			continue
		}

		if err := fn(pid, exePath); err != nil {
			return err
		}
	}
	return nil
}

// EnumerateRegions reads the address-map file of pid and reports every
// entry backed by a real file (not anonymous, not a special device, not a
// deleted mapping). totalSize sums the raw length of every file-backed
// mapping, including ones the filter rejects — callers use totalSize for
// the new-exe size gate regardless of which regions end up tracked.
func EnumerateRegions(pid int, filter *PrefixFilter) (regions []RawRegion, totalSize int64, err error) {
	return enumerateRegions(fmt.Sprintf("/proc/%d/maps", pid), filter)
}

func enumerateRegions(mapsPath string, filter *PrefixFilter) (regions []RawRegion, totalSize int64, err error) {
	f, e := os.Open(mapsPath)
	if e != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrProcUnavailable, e)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue // anonymous mapping: no path field at all
		}

		path := strings.Join(fields[5:], " ")
		if !isRealFilePath(path) {
			continue
		}

		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, e1 := strconv.ParseInt(addrs[0], 16, 64)
		end, e2 := strconv.ParseInt(addrs[1], 16, 64)
		if e1 != nil || e2 != nil || end < start {
			continue
		}
		length := end - start

		offset, e3 := strconv.ParseInt(fields[2], 16, 64)
		if e3 != nil {
			continue
		}

		totalSize += length

		if !filter.Accept(path) {
			continue
		}

		regions = append(regions, RawRegion{Path: path, Offset: offset, Length: length})
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrProcUnavailable, err)
	}
	return regions, totalSize, nil
}

// isRealFilePath reports whether a maps path field names an actual file on
// disk, as opposed to anonymous memory, a pseudo-file like [heap]/[stack],
// or a mapping of a file that has since been unlinked ("... (deleted)").
func isRealFilePath(path string) bool {
	if path == "" {
		return false
	}
	if strings.HasPrefix(path, "[") {
		return false
	}
	if strings.HasSuffix(path, "(deleted)") {
		return false
	}
	if !strings.HasPrefix(path, "/") {
		return false
	}
	return true
}
