//go:build linux

package procscan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateProcesses(t *testing.T) {
	root := t.TempDir()

	mkProc := func(pid, exeTarget string) {
		dir := filepath.Join(root, pid)
		require.NoError(t, os.Mkdir(dir, 0o755))
		if exeTarget != "" {
			require.NoError(t, os.Symlink(exeTarget, filepath.Join(dir, "exe")))
		}
	}
	mkProc("1", "/sbin/init")
	mkProc("100", "/usr/bin/editor")
	mkProc("200", "/tmp/ephemeral")
	mkProc("300", "") // no exe link: simulates a kernel thread / vanished process
	// non-pid entries should be ignored
	require.NoError(t, os.Mkdir(filepath.Join(root, "self"), 0o755))

	filter := NewPrefixFilter([]string{"!/tmp/"})

	var got []int
	err := enumerateProcesses(root, 100, filter, func(pid int, exe string) error {
		got = append(got, pid)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1}, got, "self (100), /tmp reject, and the missing-exe pid must all be excluded")
}

func TestEnumerateRegions(t *testing.T) {
	dir := t.TempDir()
	mapsPath := filepath.Join(dir, "maps")
	content := `00400000-00452000 r-xp 00000000 08:02 173521  /usr/bin/editor
00651000-00652000 rw-p 00051000 08:02 173521  /usr/bin/editor
7f2b3c000000-7f2b3c021000 rw-p 00000000 00:00 0
7f2b3c200000-7f2b3c220000 r--p 00000000 08:02 180224  /lib/x86_64-linux-gnu/libc.so.6
7f2b3c400000-7f2b3c420000 r--p 00000000 08:02 190000  /tmp/scratch.so
7f2b3c600000-7f2b3c620000 r--p 00000000 08:02 190001  /usr/lib/removed.so (deleted)
7ffee0000000-7ffee0021000 rw-p 00000000 00:00 0                          [stack]
`
	require.NoError(t, os.WriteFile(mapsPath, []byte(content), 0o644))

	filter := NewPrefixFilter([]string{"!/tmp/"})
	regions, total, err := enumerateRegions(mapsPath, filter)
	require.NoError(t, err)

	require.Len(t, regions, 3)
	assert.Equal(t, "/usr/bin/editor", regions[0].Path)
	assert.EqualValues(t, 0x452000-0x400000, regions[0].Length)
	assert.Equal(t, "/lib/x86_64-linux-gnu/libc.so.6", regions[2].Path)

	// total counts the /tmp mapping too, even though the filter rejected it.
	wantTotal := int64(0x452000-0x400000) + int64(0x652000-0x651000) +
		int64(0x3c220000-0x3c200000) + int64(0x3c420000-0x3c400000)
	assert.Equal(t, wantTotal, total)
}

func TestIsRealFilePath(t *testing.T) {
	cases := map[string]bool{
		"":                      false,
		"[heap]":                false,
		"[stack]":                false,
		"/usr/bin/editor":        true,
		"/usr/lib/x.so (deleted)": false,
		"anon_inode:[eventfd]":   false,
	}
	for path, want := range cases {
		assert.Equal(t, want, isRealFilePath(path), "path=%q", path)
	}
}
