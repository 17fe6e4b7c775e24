//go:build windows

package dxgi

import (
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"

	"github.com/dupcap/dupcap/internal/com"
)

var (
	dxgiDLL  = syscall.NewLazyDLL("dxgi.dll")
	d3d11DLL = syscall.NewLazyDLL("d3d11.dll")

	procCreateDXGIFactory1 = dxgiDLL.NewProc("CreateDXGIFactory1")
	procD3D11CreateDevice  = d3d11DLL.NewProc("D3D11CreateDevice")
)

const (
	d3dDriverTypeUnknown         = 0 // required when an explicit adapter is passed
	d3dFeatureLevel11_0          = 0xb000
	d3d11SDKVersion              = 7
	d3d11CreateDeviceBGRASupport = 0x20
)

// COM vtable indices. Fixed by the COM ABI; must be exact.
// IUnknown: 0=QueryInterface, 1=AddRef, 2=Release. IDXGIObject adds 4.
const (
	vtblQueryInterface = 0
	vtblRelease        = 2

	dxgiFactory1EnumAdapters1  = 12 // IDXGIFactory1
	dxgiAdapterEnumOutputs     = 7  // IDXGIAdapter
	dxgiOutputGetDesc          = 7  // IDXGIOutput
	dxgiOutput1DuplicateOutput = 22 // IDXGIOutput1
	dxgiDuplAcquireNextFrame   = 8  // IDXGIOutputDuplication
	dxgiDuplReleaseFrame       = 14 // IDXGIOutputDuplication
	dxgiSurfaceMap             = 9  // IDXGISurface
	dxgiSurfaceUnmap           = 10 // IDXGISurface

	d3d11DeviceCreateTexture2D  = 5  // ID3D11Device
	d3d11CtxCopyResource        = 47 // ID3D11DeviceContext
	d3d11ResSetEvictionPriority = 8  // ID3D11Resource
	d3d11Tex2DGetDesc           = 10 // ID3D11Texture2D
)

// comVtblFn resolves a COM vtable function pointer by index.
func comVtblFn(obj uintptr, idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// comCall invokes a COM vtable method and returns its HRESULT.
func comCall(obj uintptr, idx int, args ...uintptr) com.HRESULT {
	all := make([]uintptr, 0, 1+len(args))
	all = append(all, obj)
	all = append(all, args...)
	hr, _, _ := syscall.SyscallN(comVtblFn(obj, idx), all...)
	return com.HRESULT(hr)
}

// comObject adapts a raw COM interface pointer to com.Unknown.
type comObject struct {
	ptr uintptr
}

func (o *comObject) raw() uintptr { return o.ptr }

func (o *comObject) Release() uint32 {
	n, _, _ := syscall.SyscallN(comVtblFn(o.ptr, vtblRelease), o.ptr)
	return uint32(n)
}

func (o *comObject) QueryInterface(iid *com.GUID) (com.Unknown, com.HRESULT) {
	var out uintptr
	hr := comCall(o.ptr, vtblQueryInterface,
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)),
	)
	if hr.Failed() {
		return nil, hr
	}
	return wrapIID(iid, out), com.SOK
}

// wrapIID picks the typed wrapper matching the interface just acquired.
func wrapIID(iid *com.GUID, ptr uintptr) com.Unknown {
	switch {
	case ole.IsEqualGUID(iid, IIDIDXGIOutput1):
		return &output1Obj{outputObj{comObject{ptr}}}
	case ole.IsEqualGUID(iid, IIDID3D11Texture2D):
		return &texture2DObj{comObject{ptr}}
	case ole.IsEqualGUID(iid, IIDID3D11Resource):
		return &resourceObj{comObject{ptr}}
	case ole.IsEqualGUID(iid, IIDIDXGISurface1):
		return &surfaceObj{comObject{ptr}}
	default:
		return &comObject{ptr}
	}
}

// rawPtr extracts the COM pointer from a wrapper produced by this file.
func rawPtr(obj com.Unknown) uintptr {
	r, ok := obj.(interface{ raw() uintptr })
	if !ok {
		panic("dxgi: foreign object did not originate from the windows backend")
	}
	return r.raw()
}

type factoryObj struct{ comObject }

func (f *factoryObj) EnumAdapters(i uint32) (Adapter, com.HRESULT) {
	var adapter uintptr
	hr := comCall(f.ptr, dxgiFactory1EnumAdapters1,
		uintptr(i),
		uintptr(unsafe.Pointer(&adapter)),
	)
	if hr.Failed() {
		return nil, hr
	}
	return &adapterObj{comObject{adapter}}, com.SOK
}

type adapterObj struct{ comObject }

func (a *adapterObj) EnumOutputs(i uint32) (Output, com.HRESULT) {
	var output uintptr
	hr := comCall(a.ptr, dxgiAdapterEnumOutputs,
		uintptr(i),
		uintptr(unsafe.Pointer(&output)),
	)
	if hr.Failed() {
		return nil, hr
	}
	return &outputObj{comObject{output}}, com.SOK
}

type outputObj struct{ comObject }

func (o *outputObj) GetDesc(desc *OutputDesc) com.HRESULT {
	return comCall(o.ptr, dxgiOutputGetDesc, uintptr(unsafe.Pointer(desc)))
}

type output1Obj struct{ outputObj }

func (o *output1Obj) DuplicateOutput(device Device) (OutputDuplication, com.HRESULT) {
	var dup uintptr
	hr := comCall(o.ptr, dxgiOutput1DuplicateOutput,
		rawPtr(device),
		uintptr(unsafe.Pointer(&dup)),
	)
	if hr.Failed() {
		return nil, hr
	}
	return &duplicationObj{comObject{dup}}, com.SOK
}

type duplicationObj struct{ comObject }

func (d *duplicationObj) AcquireNextFrame(timeoutMs uint32, info *FrameInfo) (Resource, com.HRESULT) {
	var resource uintptr
	hr := comCall(d.ptr, dxgiDuplAcquireNextFrame,
		uintptr(timeoutMs),
		uintptr(unsafe.Pointer(info)),
		uintptr(unsafe.Pointer(&resource)),
	)
	if hr.Failed() {
		return nil, hr
	}
	return &resourceObj{comObject{resource}}, com.SOK
}

func (d *duplicationObj) ReleaseFrame() com.HRESULT {
	return comCall(d.ptr, dxgiDuplReleaseFrame)
}

type deviceObj struct{ comObject }

func (d *deviceObj) CreateTexture2D(desc *Texture2DDesc) (Texture2D, com.HRESULT) {
	var tex uintptr
	hr := comCall(d.ptr, d3d11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(desc)),
		0, // pInitialData
		uintptr(unsafe.Pointer(&tex)),
	)
	if hr.Failed() {
		return nil, hr
	}
	return &texture2DObj{comObject{tex}}, com.SOK
}

type contextObj struct{ comObject }

// CopyResource is void in the ABI; failures surface later via
// device-removed status codes or a failed Map on the destination.
func (c *contextObj) CopyResource(dst, src Resource) {
	syscall.SyscallN(comVtblFn(c.ptr, d3d11CtxCopyResource),
		c.ptr, rawPtr(dst), rawPtr(src))
}

type resourceObj struct{ comObject }

type texture2DObj struct{ comObject }

func (t *texture2DObj) GetDesc(desc *Texture2DDesc) {
	syscall.SyscallN(comVtblFn(t.ptr, d3d11Tex2DGetDesc),
		t.ptr, uintptr(unsafe.Pointer(desc)))
}

func (t *texture2DObj) SetEvictionPriority(priority uint32) {
	syscall.SyscallN(comVtblFn(t.ptr, d3d11ResSetEvictionPriority),
		t.ptr, uintptr(priority))
}

type surfaceObj struct{ comObject }

func (s *surfaceObj) Map(mapped *MappedRect, flags uint32) com.HRESULT {
	return comCall(s.ptr, dxgiSurfaceMap,
		uintptr(unsafe.Pointer(mapped)),
		uintptr(flags),
	)
}

func (s *surfaceObj) Unmap() com.HRESULT {
	return comCall(s.ptr, dxgiSurfaceUnmap)
}

type windowsBackend struct{}

func newPlatformBackend() (Backend, error) {
	return windowsBackend{}, nil
}

func (windowsBackend) CreateFactory() (com.Handle[Factory], error) {
	var factory uintptr
	hr, _, _ := procCreateDXGIFactory1.Call(
		uintptr(unsafe.Pointer(IIDIDXGIFactory1)),
		uintptr(unsafe.Pointer(&factory)),
	)
	if com.HRESULT(hr).Failed() {
		return com.Handle[Factory]{}, com.HRESULT(hr)
	}
	return com.TakeOwnership[Factory](&factoryObj{comObject{factory}}), nil
}

func (windowsBackend) CreateDevice(adapter Adapter) (com.Handle[Device], com.Handle[DeviceContext], error) {
	var device, context uintptr
	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32

	hr, _, _ := procD3D11CreateDevice.Call(
		rawPtr(adapter),                        // pAdapter
		uintptr(d3dDriverTypeUnknown),          // DriverType (UNKNOWN with explicit adapter)
		0,                                      // Software
		uintptr(d3d11CreateDeviceBGRASupport),  // Flags
		uintptr(unsafe.Pointer(&featureLevel)), // pFeatureLevels
		1,                                      // FeatureLevels count
		uintptr(d3d11SDKVersion),               // SDKVersion
		uintptr(unsafe.Pointer(&device)),       // ppDevice
		uintptr(unsafe.Pointer(&actualLevel)),  // pFeatureLevel
		uintptr(unsafe.Pointer(&context)),      // ppImmediateContext
	)
	if com.HRESULT(hr).Failed() {
		return com.Handle[Device]{}, com.Handle[DeviceContext]{}, com.HRESULT(hr)
	}
	return com.TakeOwnership[Device](&deviceObj{comObject{device}}),
		com.TakeOwnership[DeviceContext](&contextObj{comObject{context}}),
		nil
}
