//go:build linux

// Package readahead sorts and coalesces a predicted working set into
// advisory-read requests and issues them against the page cache (C6).
package readahead

import (
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// SortStrategy chooses how requests are ordered before coalescing, trading
// off locality on rotating media against the cost of stat()-ing every
// target.
type SortStrategy uint8

const (
	SortNone SortStrategy = iota
	SortPath
	SortInode
	SortBlock
)

// Request is one region selected for read-ahead.
type Request struct {
	Path   string
	Offset int64
	Length int64

	// RegionIdx identifies the owning graph.Region, for callers that want
	// to persist Key back onto it after Sort runs. Unused by this package.
	RegionIdx int

	// Key is the block/inode sort key, or -1 if not yet probed.
	Key int64
}

// Sort orders reqs in place according to strategy. For SortInode/SortBlock,
// any request missing its Key (-1) is first stat()'d; requests are sorted
// by path before stat'ing so that repeated stats of the same file hit a
// warm dentry/inode cache.
func Sort(reqs []Request, strategy SortStrategy) error {
	switch strategy {
	case SortNone:
		return nil
	case SortPath:
		sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Path < reqs[j].Path })
		return nil
	case SortInode, SortBlock:
		return sortByBlockOrInode(reqs, strategy == SortInode)
	default:
		return fmt.Errorf("readahead: unknown sort strategy %d", strategy)
	}
}

func sortByBlockOrInode(reqs []Request, useInode bool) error {
	needsKey := false
	for _, r := range reqs {
		if r.Key == -1 {
			needsKey = true
			break
		}
	}

	if needsKey {
		sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Path < reqs[j].Path })
		for i := range reqs {
			if reqs[i].Key != -1 {
				continue
			}
			key, err := statKey(reqs[i].Path, useInode)
			if err != nil {
				// Per-file stat failures are not fatal to the batch: leave
				// the key unset (sorts first) and let readahead proceed.
				continue
			}
			reqs[i].Key = key
		}
	}

	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Key < reqs[j].Key })
	return nil
}

func statKey(path string, useInode bool) (int64, error) {
	if useInode {
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			return -1, err
		}
		return int64(st.Ino), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	return firstDataBlock(f)
}

// firstDataBlock returns the physical block number backing logical block 0
// of f, via the FIBMAP ioctl -- the same primitive the original preload
// daemon used to order read-ahead for rotating media. Filesystems or
// permissions that don't support FIBMAP (it requires CAP_SYS_RAWIO on most
// kernels) degrade to key 0, which is a stable but uninformative order:
// those files keep the order they had before the key sort (path order,
// once any key had to be probed) rather than failing the batch.
func firstDataBlock(f *os.File) (int64, error) {
	block, err := unix.IoctlGetInt(int(f.Fd()), unix.FIBMAP)
	if err != nil {
		return 0, nil
	}
	return int64(block), nil
}
