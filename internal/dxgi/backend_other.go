//go:build !windows

package dxgi

func newPlatformBackend() (Backend, error) {
	return nil, ErrNotSupported
}
