//go:build linux

package meminfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

func TestProbeFiles_OK(t *testing.T) {
	dir := t.TempDir()
	meminfo := writeFixture(t, dir, "meminfo", `MemTotal:       16384000 kB
MemFree:         2048000 kB
Buffers:          102400 kB
Cached:          4096000 kB
SwapTotal:             0 kB
`)
	vmstat := writeFixture(t, dir, "vmstat", `nr_free_pages 512000
pgpgin 123456
pgpgout 654321
pswpin 0
`)

	snap, err := probeFiles(meminfo, vmstat)
	require.NoError(t, err)
	assert.EqualValues(t, 16384000, snap.Total)
	assert.EqualValues(t, 2048000, snap.Free)
	assert.EqualValues(t, 102400, snap.Buffers)
	assert.EqualValues(t, 4096000, snap.Cached)
	assert.EqualValues(t, 123456*1024, snap.Pagein)
	assert.EqualValues(t, 654321*1024, snap.Pageout)
}

func TestProbeFiles_MissingMeminfoKey(t *testing.T) {
	dir := t.TempDir()
	meminfo := writeFixture(t, dir, "meminfo", `MemTotal: 16384000 kB
`)
	vmstat := writeFixture(t, dir, "vmstat", `pgpgin 1
pgpgout 2
`)

	_, err := probeFiles(meminfo, vmstat)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMeminfo)
}

func TestProbeFiles_MissingVMStatKey(t *testing.T) {
	dir := t.TempDir()
	meminfo := writeFixture(t, dir, "meminfo", `MemTotal:       1 kB
MemFree:        1 kB
Buffers:        1 kB
Cached:         1 kB
`)
	vmstat := writeFixture(t, dir, "vmstat", `pgpgin 1
`)

	_, err := probeFiles(meminfo, vmstat)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVMStat)
}

func TestProbeFiles_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := probeFiles(filepath.Join(dir, "nope"), filepath.Join(dir, "nope2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMeminfo)
}
