//go:build linux || darwin

package ioreactor

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// RaiseOpenFilesLimit lifts the soft RLIMIT_NOFILE to limit, capped by the
// hard limit. A zero limit is a no-op.
func RaiseOpenFilesLimit(limit uint64) error {
	if limit == 0 {
		return nil
	}
	rLimit := &unix.Rlimit{}
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, rLimit); err != nil {
		return err
	}
	if limit > rLimit.Max {
		limit = rLimit.Max
	}
	if rLimit.Cur >= limit {
		return nil
	}
	log.Debug().Msgf("raise open files limit from %d to %d", rLimit.Cur, limit)
	rLimit.Cur = limit
	return unix.Setrlimit(unix.RLIMIT_NOFILE, rLimit)
}
