package store

import (
	"strconv"
	"strings"
)

// Version is the persisted-state schema version stamped into the
// singleton states row. Only the major component is compared on load;
// minor/patch bumps are assumed backward compatible.
const Version = "1.0.0"

func majorOf(version string) string {
	major, _, ok := strings.Cut(version, ".")
	if !ok {
		return version
	}
	return major
}

func majorMismatch(stored, running string) (newer bool, mismatch bool) {
	storedN, err1 := strconv.Atoi(majorOf(stored))
	runningN, err2 := strconv.Atoi(majorOf(running))
	if err1 != nil || err2 != nil {
		return false, stored != running
	}
	if storedN == runningN {
		return false, false
	}
	return storedN > runningN, true
}
