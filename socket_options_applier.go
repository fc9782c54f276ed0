//go:build unix

package ioreactor

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// ApplySocketOptions switches fd to non-blocking mode and applies the buffer
// sizes from cfg. Buffer failures are logged, not returned.
func ApplySocketOptions(fd int, cfg SocketConfig) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	if cfg.RecvBuffer > 0 {
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBuffer)
		if err != nil {
			log.Error().Msgf("got error while setting socket options SO_RCVBUF: %+v", err)
		}
	}
	if cfg.SendBuffer > 0 {
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBuffer)
		if err != nil {
			log.Error().Msgf("got error while setting socket options SO_SNDBUF: %+v", err)
		}
	}
	return nil
}
