package dxgi

import (
	"fmt"

	"github.com/dupcap/dupcap/internal/com"
)

// ErrNotSupported is returned when desktop duplication is not available
// on the platform.
var ErrNotSupported = fmt.Errorf("desktop duplication not supported on this platform")

// Backend creates the foreign subsystem's root objects. The Windows
// implementation drives dxgi.dll/d3d11.dll; tests supply mocks.
type Backend interface {
	// CreateFactory opens the adapter enumeration root (IDXGIFactory1).
	CreateFactory() (com.Handle[Factory], error)

	// CreateDevice creates one D3D11 device and immediate context on
	// the given adapter. One device/context pair is shared across all
	// duplicated outputs of an adapter.
	CreateDevice(adapter Adapter) (com.Handle[Device], com.Handle[DeviceContext], error)
}

// NewBackend returns the host graphics backend.
func NewBackend() (Backend, error) {
	return newPlatformBackend()
}
