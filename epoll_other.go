//go:build !linux

package ioreactor

func newEpollKernel(int) (maskKernel, error) {
	return nil, ErrBackendUnsupported
}
