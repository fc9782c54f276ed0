//go:build !unix

package ioreactor

func NewSelect(Sink, Options) (Poller, error) {
	return nil, ErrBackendUnsupported
}
