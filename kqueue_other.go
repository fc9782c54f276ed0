//go:build !(darwin || dragonfly || freebsd || netbsd || openbsd)

package ioreactor

func newKqueueKernel(int) (filterKernel, error) {
	return nil, ErrBackendUnsupported
}
