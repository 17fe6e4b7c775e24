// Package dxgi drives DXGI Desktop Duplication: output enumeration,
// per-output duplication sessions, and GPU-to-CPU frame staging.
//
// The foreign DXGI/D3D11 surface is expressed as the interfaces below;
// backend_windows.go implements them over raw COM vtable calls, and the
// package tests implement them as mocks. The semantics that matter
// (ownership, acquire/release pairing, status-code pass-through) live
// in portable code.
package dxgi

import (
	"unicode/utf16"

	"github.com/dupcap/dupcap/internal/com"
)

// Interface IDs this package queries for.
var (
	IIDIDXGIOutput1    = com.NewGUID("{00CDDEA8-939B-4B83-A340-A685226666CC}")
	IIDIDXGISurface1   = com.NewGUID("{4AE63092-6327-4C1B-80AE-BFE12EA32B86}")
	IIDID3D11Texture2D = com.NewGUID("{6F15AAF2-D208-4E89-9AB4-489535D34F9C}")
	IIDID3D11Resource  = com.NewGUID("{DC8E63F3-D12B-4952-B47B-5E45026A862D}")
	IIDIDXGIFactory1   = com.NewGUID("{770AAE78-F26F-4DBA-A829-253C83D1B387}")
)

// Status codes re-exported for callers deciding retry policy.
const (
	ErrNotFound      = com.DXGIErrNotFound
	ErrWaitTimeout   = com.DXGIErrWaitTimeout
	ErrAccessLost    = com.DXGIErrAccessLost
	ErrInvalidCall   = com.DXGIErrInvalidCall
	ErrDeviceRemoved = com.DXGIErrDeviceRemoved
	ErrDeviceReset   = com.DXGIErrDeviceReset
)

// D3D11/DXGI constants used when deriving the staging texture.
const (
	UsageDefault = 0
	UsageStaging = 3

	CPUAccessRead = 0x20000

	FormatB8G8R8A8 = 87

	// DXGI_RESOURCE_PRIORITY_MAXIMUM. Staging textures are pinned at
	// maximum eviction priority; lower priorities let the driver's
	// memory manager shuffle the buffer between frames, which shows up
	// as large capture-latency spikes on some driver stacks.
	ResourcePriorityMaximum = 0xA8000000

	// DXGI_MAP_READ for Surface.Map.
	MapRead = 1
)

// Rect matches the Win32 RECT layout.
type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// OutputDesc matches DXGI_OUTPUT_DESC (96 bytes on amd64).
type OutputDesc struct {
	DeviceName         [32]uint16
	DesktopCoordinates Rect
	AttachedToDesktop  int32
	Rotation           uint32
	Monitor            uintptr // HMONITOR
}

// Name returns the output's device name ("\\.\DISPLAY1" style).
func (d *OutputDesc) Name() string {
	return utf16ToString(d.DeviceName[:])
}

// Texture2DDesc matches D3D11_TEXTURE2D_DESC (44 bytes).
type Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32 // DXGI_SAMPLE_DESC.Count
	SampleQuality  uint32 // DXGI_SAMPLE_DESC.Quality
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// FrameInfo matches DXGI_OUTDUPL_FRAME_INFO.
type FrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerPositionX          int32
	PointerPositionY          int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// MappedRect matches DXGI_MAPPED_RECT: the CPU view of a mapped surface.
type MappedRect struct {
	Pitch int32
	PBits uintptr
}

// Factory is IDXGIFactory1: the adapter enumeration root.
type Factory interface {
	com.Unknown
	// EnumAdapters probes the adapter at index i. DXGI_ERROR_NOT_FOUND
	// is the end-of-sequence marker, not a failure.
	EnumAdapters(i uint32) (Adapter, com.HRESULT)
}

// Adapter is IDXGIAdapter1.
type Adapter interface {
	com.Unknown
	// EnumOutputs probes the output at index i; DXGI_ERROR_NOT_FOUND
	// terminates the sequence.
	EnumOutputs(i uint32) (Output, com.HRESULT)
}

// Output is IDXGIOutput: one physical monitor connection.
type Output interface {
	com.Unknown
	GetDesc(desc *OutputDesc) com.HRESULT
}

// Output1 is IDXGIOutput1, the capability that opens duplication sessions.
type Output1 interface {
	Output
	DuplicateOutput(device Device) (OutputDuplication, com.HRESULT)
}

// OutputDuplication is IDXGIOutputDuplication: an active desktop
// duplication stream for one output.
type OutputDuplication interface {
	com.Unknown
	// AcquireNextFrame blocks up to timeoutMs for a new frame. The
	// returned Resource reference is owned by the caller; the frame
	// itself stays held inside the session until ReleaseFrame.
	AcquireNextFrame(timeoutMs uint32, info *FrameInfo) (Resource, com.HRESULT)
	ReleaseFrame() com.HRESULT
}

// Device is ID3D11Device.
type Device interface {
	com.Unknown
	CreateTexture2D(desc *Texture2DDesc) (Texture2D, com.HRESULT)
}

// DeviceContext is ID3D11DeviceContext. CopyResource is void in the
// foreign ABI; errors surface later via device-removed status codes.
type DeviceContext interface {
	com.Unknown
	CopyResource(dst, src Resource)
}

// Resource is the generic copyable resource capability
// (ID3D11Resource / IDXGIResource).
type Resource interface {
	com.Unknown
}

// Texture2D is ID3D11Texture2D.
type Texture2D interface {
	com.Unknown
	GetDesc(desc *Texture2DDesc)
	SetEvictionPriority(priority uint32)
}

// Surface is IDXGISurface1: the CPU-mappable view of a staging texture.
type Surface interface {
	com.Unknown
	Map(mapped *MappedRect, flags uint32) com.HRESULT
	Unmap() com.HRESULT
}

func utf16ToString(s []uint16) string {
	for i, c := range s {
		if c == 0 {
			s = s[:i]
			break
		}
	}
	return string(utf16.Decode(s))
}
