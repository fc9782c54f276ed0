//go:build !unix

package ioreactor

func newPollKernel() (maskKernel, error) {
	return nil, ErrBackendUnsupported
}
