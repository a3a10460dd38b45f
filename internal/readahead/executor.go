//go:build linux

package readahead

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Execute opens each of reqs read-only, issues the kernel's advisory
// will-need read-ahead hint over its byte range, and closes it, fanned out
// across a fixed-size worker pool of size workers (at least 1). Per-file
// failures are logged and counted but never abort the batch; Execute
// returns the count of requests it processed without error.
//
// reqs is expected to already be coalesced (Coalesce) so that overlapping
// ranges of the same file become one request.
func Execute(ctx context.Context, reqs []Request, workers int) int {
	if workers < 1 {
		workers = 1
	}

	var processed int64
	jobs := make(chan Request)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				if err := issueOne(req); err != nil {
					slog.Warn("readahead: request failed", "path", req.Path, "err", err)
					continue
				}
				atomic.AddInt64(&processed, 1)
			}
		}()
	}

feed:
	for _, req := range reqs {
		select {
		case jobs <- req:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return int(processed)
}

// issueOne opens path read-only, avoiding an access-time update and
// avoiding acquiring a controlling terminal, and issues FADV_WILLNEED over
// [offset, offset+length). The descriptor is always closed before return.
func issueOne(req Request) error {
	flags := unix.O_RDONLY | unix.O_NOCTTY | unix.O_NOATIME
	fd, err := unix.Open(req.Path, flags, 0)
	if err != nil {
		// O_NOATIME can fail with EPERM for files we don't own; retry
		// without it rather than dropping the request.
		fd, err = unix.Open(req.Path, unix.O_RDONLY|unix.O_NOCTTY, 0)
		if err != nil {
			return err
		}
	}
	defer unix.Close(fd)

	return unix.Fadvise(fd, req.Offset, req.Length, unix.FADV_WILLNEED)
}
