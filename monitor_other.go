//go:build !(linux || darwin)

package ioreactor

import "github.com/rs/zerolog/log"

func RaiseOpenFilesLimit(limit uint64) error {
	if limit != 0 {
		log.Warn().Msg("open files limit can't be changed on this platform")
	}
	return nil
}
