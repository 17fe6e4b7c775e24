// Package dxgitest provides an in-memory mock of the DXGI/D3D11
// subsystem with reference-count probes, for exercising enumeration,
// duplication, and staging logic without a GPU.
//
// Every mock starts at zero references; each hand-out (enumeration,
// QueryInterface, texture creation, frame acquisition) adds one, so a
// test can assert that exactly one release happened per reference ever
// handed to the code under test.
package dxgitest

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"

	"github.com/dupcap/dupcap/internal/com"
	"github.com/dupcap/dupcap/internal/dxgi"
)

// RefCount is the refcount probe embedded in every mock object.
type RefCount struct {
	mu       sync.Mutex
	refs     int
	releases int
}

// AddRef hands out one more reference.
func (r *RefCount) AddRef() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

// Release drops one reference. It panics if the count goes negative:
// that is a double release in the code under test.
func (r *RefCount) Release() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs--
	r.releases++
	if r.refs < 0 {
		panic("dxgitest: reference released below zero")
	}
	return uint32(r.refs)
}

// Refs returns the live reference count.
func (r *RefCount) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Releases returns how many times Release ran.
func (r *RefCount) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases
}

// FrameTexture stands in for the resource handed out by
// AcquireNextFrame. It satisfies both the generic resource and the 2-D
// texture capabilities, like the real frame resources do.
type FrameTexture struct {
	RefCount
	Desc  dxgi.Texture2DDesc
	Pix   []byte // BGRA source pixels, Pitch bytes per row
	Pitch int

	// TextureQIFail, when set, makes the texture reinterpretation fail
	// with that status.
	TextureQIFail com.HRESULT
}

func (t *FrameTexture) QueryInterface(iid *com.GUID) (com.Unknown, com.HRESULT) {
	switch {
	case ole.IsEqualGUID(iid, dxgi.IIDID3D11Texture2D):
		if t.TextureQIFail != 0 {
			return nil, t.TextureQIFail
		}
		t.AddRef()
		return t, com.SOK
	case ole.IsEqualGUID(iid, dxgi.IIDID3D11Resource):
		t.AddRef()
		return t, com.SOK
	}
	return nil, com.ENoInterface
}

func (t *FrameTexture) GetDesc(desc *dxgi.Texture2DDesc) { *desc = t.Desc }

func (t *FrameTexture) SetEvictionPriority(uint32) {}

// StagingTexture is what the mock device creates. It carries the
// CPU-side pixel buffer the mock context copies into, and doubles as
// the mappable surface capability.
type StagingTexture struct {
	RefCount
	Desc     dxgi.Texture2DDesc
	Eviction uint32
	Pix      []byte
	Pitch    int
	Mapped   bool

	MapFail       com.HRESULT
	SurfaceQIFail com.HRESULT
}

func (t *StagingTexture) QueryInterface(iid *com.GUID) (com.Unknown, com.HRESULT) {
	switch {
	case ole.IsEqualGUID(iid, dxgi.IIDID3D11Texture2D),
		ole.IsEqualGUID(iid, dxgi.IIDID3D11Resource):
		t.AddRef()
		return t, com.SOK
	case ole.IsEqualGUID(iid, dxgi.IIDIDXGISurface1):
		if t.SurfaceQIFail != 0 {
			return nil, t.SurfaceQIFail
		}
		t.AddRef()
		return t, com.SOK
	}
	return nil, com.ENoInterface
}

func (t *StagingTexture) GetDesc(desc *dxgi.Texture2DDesc) { *desc = t.Desc }

func (t *StagingTexture) SetEvictionPriority(p uint32) { t.Eviction = p }

func (t *StagingTexture) Map(mapped *dxgi.MappedRect, flags uint32) com.HRESULT {
	if t.MapFail != 0 {
		return t.MapFail
	}
	t.Mapped = true
	mapped.Pitch = int32(t.Pitch)
	if len(t.Pix) > 0 {
		mapped.PBits = uintptr(unsafe.Pointer(&t.Pix[0]))
	}
	return com.SOK
}

func (t *StagingTexture) Unmap() com.HRESULT {
	t.Mapped = false
	return com.SOK
}

// Device creates staging textures sized from the requested description.
type Device struct {
	RefCount
	CreateFail com.HRESULT
	Created    []*StagingTexture
}

func (d *Device) QueryInterface(*com.GUID) (com.Unknown, com.HRESULT) {
	return nil, com.ENoInterface
}

func (d *Device) CreateTexture2D(desc *dxgi.Texture2DDesc) (dxgi.Texture2D, com.HRESULT) {
	if d.CreateFail != 0 {
		return nil, d.CreateFail
	}
	pitch := int(desc.Width) * 4
	t := &StagingTexture{
		Desc:  *desc,
		Pitch: pitch,
		Pix:   make([]byte, pitch*int(desc.Height)),
	}
	t.AddRef()
	d.Created = append(d.Created, t)
	return t, com.SOK
}

// Context performs mock GPU copies and records whether two copies ever
// overlapped in time (they must not: the shared cell serializes them).
type Context struct {
	RefCount
	CopyDelay time.Duration

	busy       atomic.Bool
	overlapped atomic.Bool
	copies     atomic.Int32
}

func (c *Context) QueryInterface(*com.GUID) (com.Unknown, com.HRESULT) {
	return nil, com.ENoInterface
}

func (c *Context) CopyResource(dst, src dxgi.Resource) {
	if !c.busy.CompareAndSwap(false, true) {
		c.overlapped.Store(true)
	}
	if c.CopyDelay > 0 {
		time.Sleep(c.CopyDelay)
	}
	if from, ok := src.(*FrameTexture); ok {
		if to, ok := dst.(*StagingTexture); ok {
			copy(to.Pix, from.Pix)
		}
	}
	c.copies.Add(1)
	c.busy.Store(false)
}

// Copies returns how many CopyResource calls ran.
func (c *Context) Copies() int { return int(c.copies.Load()) }

// Overlapped reports whether any two CopyResource intervals overlapped.
func (c *Context) Overlapped() bool { return c.overlapped.Load() }

// AcquireStep scripts one AcquireNextFrame response.
type AcquireStep struct {
	HR    com.HRESULT // returned when it is a failure code
	Frame *FrameTexture
	Info  dxgi.FrameInfo
}

// Duplication is a scripted duplication session. It enforces the
// foreign subsystem's pairing rules: acquire while a frame is in
// flight, or release without one, both report DXGI_ERROR_INVALID_CALL.
type Duplication struct {
	RefCount
	Steps []AcquireStep

	mu       sync.Mutex
	next     int
	acquired bool
}

func (d *Duplication) QueryInterface(*com.GUID) (com.Unknown, com.HRESULT) {
	return nil, com.ENoInterface
}

func (d *Duplication) AcquireNextFrame(timeoutMs uint32, info *dxgi.FrameInfo) (dxgi.Resource, com.HRESULT) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquired {
		return nil, com.DXGIErrInvalidCall
	}
	if d.next >= len(d.Steps) {
		return nil, com.DXGIErrWaitTimeout
	}
	step := d.Steps[d.next]
	d.next++
	if step.HR.Failed() {
		return nil, step.HR
	}
	*info = step.Info
	step.Frame.AddRef()
	d.acquired = true
	return step.Frame, com.SOK
}

func (d *Duplication) ReleaseFrame() com.HRESULT {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired {
		return com.DXGIErrInvalidCall
	}
	d.acquired = false
	return com.SOK
}

// InFlight reports whether a frame is acquired but not yet released.
func (d *Duplication) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Output is a mock monitor output. It carries its own duplication
// session and answers the Output1 capability query with itself.
type Output struct {
	RefCount
	Desc dxgi.OutputDesc
	Dup  *Duplication

	DescFail      com.HRESULT
	Output1QIFail com.HRESULT
	DuplicateFail com.HRESULT
}

func (o *Output) QueryInterface(iid *com.GUID) (com.Unknown, com.HRESULT) {
	if ole.IsEqualGUID(iid, dxgi.IIDIDXGIOutput1) {
		if o.Output1QIFail != 0 {
			return nil, o.Output1QIFail
		}
		o.AddRef()
		return o, com.SOK
	}
	return nil, com.ENoInterface
}

func (o *Output) GetDesc(desc *dxgi.OutputDesc) com.HRESULT {
	if o.DescFail != 0 {
		return o.DescFail
	}
	*desc = o.Desc
	return com.SOK
}

func (o *Output) DuplicateOutput(dxgi.Device) (dxgi.OutputDuplication, com.HRESULT) {
	if o.DuplicateFail != 0 {
		return nil, o.DuplicateFail
	}
	o.Dup.AddRef()
	return o.Dup, com.SOK
}

// Adapter hands out its outputs by index and counts probe calls so
// tests can verify enumeration is lazy.
type Adapter struct {
	RefCount
	Outputs   []*Output
	EnumCalls int

	// EnumFail, when set, makes the probe at FailIndex return that
	// status instead of an output.
	EnumFail  com.HRESULT
	FailIndex int
}

func (a *Adapter) QueryInterface(*com.GUID) (com.Unknown, com.HRESULT) {
	return nil, com.ENoInterface
}

func (a *Adapter) EnumOutputs(i uint32) (dxgi.Output, com.HRESULT) {
	a.EnumCalls++
	if a.EnumFail != 0 && int(i) == a.FailIndex {
		return nil, a.EnumFail
	}
	if int(i) >= len(a.Outputs) {
		return nil, com.DXGIErrNotFound
	}
	o := a.Outputs[i]
	o.AddRef()
	return o, com.SOK
}

// Factory hands out adapters by index.
type Factory struct {
	RefCount
	Adapters []*Adapter
}

func (f *Factory) QueryInterface(*com.GUID) (com.Unknown, com.HRESULT) {
	return nil, com.ENoInterface
}

func (f *Factory) EnumAdapters(i uint32) (dxgi.Adapter, com.HRESULT) {
	if int(i) >= len(f.Adapters) {
		return nil, com.DXGIErrNotFound
	}
	a := f.Adapters[i]
	a.AddRef()
	return a, com.SOK
}

// Backend wires the mock subsystem together. Each CreateDevice call
// mints a fresh device/context pair and records it.
type Backend struct {
	Factory   *Factory
	CopyDelay time.Duration

	CreateDeviceFail com.HRESULT

	Devices  []*Device
	Contexts []*Context
}

func (b *Backend) CreateFactory() (com.Handle[dxgi.Factory], error) {
	b.Factory.AddRef()
	return com.TakeOwnership[dxgi.Factory](b.Factory), nil
}

func (b *Backend) CreateDevice(dxgi.Adapter) (com.Handle[dxgi.Device], com.Handle[dxgi.DeviceContext], error) {
	if b.CreateDeviceFail != 0 {
		return com.Handle[dxgi.Device]{}, com.Handle[dxgi.DeviceContext]{}, b.CreateDeviceFail
	}
	dev := &Device{}
	ctx := &Context{CopyDelay: b.CopyDelay}
	dev.AddRef()
	ctx.AddRef()
	b.Devices = append(b.Devices, dev)
	b.Contexts = append(b.Contexts, ctx)
	return com.TakeOwnership[dxgi.Device](dev), com.TakeOwnership[dxgi.DeviceContext](ctx), nil
}

// NewFrame builds a BGRA frame texture of the given size filled by
// fill(x, y) (b, g, r, a).
func NewFrame(width, height int, fill func(x, y int) [4]byte) *FrameTexture {
	pitch := width * 4
	pix := make([]byte, pitch*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px := fill(x, y)
			copy(pix[y*pitch+x*4:], px[:])
		}
	}
	return &FrameTexture{
		Desc: dxgi.Texture2DDesc{
			Width:       uint32(width),
			Height:      uint32(height),
			MipLevels:   1,
			ArraySize:   1,
			Format:      dxgi.FormatB8G8R8A8,
			SampleCount: 1,
			Usage:       dxgi.UsageDefault,
			BindFlags:   0x28, // render target + shader resource, like real frames
		},
		Pix:   pix,
		Pitch: pitch,
	}
}
