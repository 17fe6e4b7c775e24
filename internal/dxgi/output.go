package dxgi

import (
	"time"

	"github.com/dupcap/dupcap/internal/com"
)

// DuplicatedOutput binds one monitor output to one desktop duplication
// session. The device and context cells are shared with every other
// duplicated output created from the same adapter; each GPU call locks
// the cell only for its own duration, so frames can be in flight on
// several monitors concurrently while the brief create/copy calls
// serialize.
//
// At most one frame may be acquired and unreleased at a time. Every
// successful GetFrame must be paired with exactly one ReleaseFrame
// before the next GetFrame; the session's internal buffer exhausts
// otherwise and the foreign subsystem reports it on later acquisitions.
// This type surfaces that error rather than auto-correcting the misuse.
type DuplicatedOutput struct {
	device  *com.Shared[Device]
	context *com.Shared[DeviceContext]
	output  com.Handle[Output1]
	dup     com.Handle[OutputDuplication]
}

// NewDuplicatedOutput assembles a DuplicatedOutput from a duplication
// session and the output it was opened on. Ownership of both handles
// moves into the returned value; the shared device/context cells are
// borrowed for the lifetime of the longest-lived holder.
func NewDuplicatedOutput(device *com.Shared[Device], context *com.Shared[DeviceContext],
	output *com.Handle[Output1], dup *com.Handle[OutputDuplication]) *DuplicatedOutput {
	return &DuplicatedOutput{
		device:  device,
		context: context,
		output:  output.Move(),
		dup:     dup.Move(),
	}
}

// Desc returns the output's description.
func (d *DuplicatedOutput) Desc() (OutputDesc, error) {
	var desc OutputDesc
	if hr := d.output.Get().GetDesc(&desc); hr.Failed() {
		return OutputDesc{}, hr
	}
	return desc, nil
}

// stagingDesc derives the CPU-readable staging description from an
// acquired frame texture: staging usage, no GPU binds, CPU read only.
// The GPU pipeline cannot bind the result; its sole purpose is moving
// pixels to host memory.
func stagingDesc(src Texture2DDesc) Texture2DDesc {
	dst := src
	dst.Usage = UsageStaging
	dst.BindFlags = 0
	dst.CPUAccessFlags = CPUAccessRead
	dst.MiscFlags = 0
	return dst
}

// GetFrame acquires the next frame from the duplication session, copies
// it into a fresh staging texture, and returns the texture's
// CPU-mappable surface. The caller owns the surface, must map/unmap it
// to read pixels, and must close it; it must also pair this call with
// ReleaseFrame before acquiring again.
//
// The timeout is handed to the foreign subsystem in whole milliseconds.
// Every failure, including a timeout with no new frame, returns the
// foreign status code unchanged; retry policy belongs to the caller.
// A failure after acquisition does not release the frame (see the
// pairing note on the type).
func (d *DuplicatedOutput) GetFrame(timeout time.Duration) (com.Handle[Surface], error) {
	var info FrameInfo
	res, hr := d.dup.Get().AcquireNextFrame(uint32(timeout.Milliseconds()), &info)
	if hr.Failed() {
		return com.Handle[Surface]{}, hr
	}
	frame := com.TakeOwnership(res)

	// Frame resources from this subsystem are always 2-D textures;
	// a failed reinterpretation propagates like any other status.
	frameTex, err := com.QueryAs[Texture2D](&frame, IIDID3D11Texture2D)
	if err != nil {
		return com.Handle[Surface]{}, err
	}

	var texDesc Texture2DDesc
	frameTex.Get().GetDesc(&texDesc)
	readableDesc := stagingDesc(texDesc)

	var staging com.Handle[Texture2D]
	var createHR com.HRESULT
	d.device.With(func(dev Device) {
		tex, hr := dev.CreateTexture2D(&readableDesc)
		if hr.Failed() {
			createHR = hr
			return
		}
		staging = com.TakeOwnership(tex)
	})
	if createHR.Failed() {
		frameTex.Close()
		return com.Handle[Surface]{}, createHR
	}

	staging.Get().SetEvictionPriority(ResourcePriorityMaximum)

	stagingRes, err := com.QueryAs[Resource](&staging, IIDID3D11Resource)
	if err != nil {
		frameTex.Close()
		return com.Handle[Surface]{}, err
	}
	frameRes, err := com.QueryAs[Resource](&frameTex, IIDID3D11Resource)
	if err != nil {
		stagingRes.Close()
		return com.Handle[Surface]{}, err
	}

	d.context.With(func(ctx DeviceContext) {
		ctx.CopyResource(stagingRes.Get(), frameRes.Get())
	})
	frameRes.Close()

	return com.QueryAs[Surface](&stagingRes, IIDIDXGISurface1)
}

// ReleaseFrame returns the acquired frame to the duplication session.
// The foreign status passes through unchanged, including the error the
// session reports for a release without a matching acquisition.
func (d *DuplicatedOutput) ReleaseFrame() error {
	if hr := d.dup.Get().ReleaseFrame(); hr.Failed() {
		return hr
	}
	return nil
}

// IsPrimary reports whether this output's monitor is the OS-designated
// primary display. Pure query; no capture state is touched.
func (d *DuplicatedOutput) IsPrimary() bool {
	var desc OutputDesc
	if hr := d.output.Get().GetDesc(&desc); hr.Failed() {
		return false
	}
	flags, ok := monitorFlags(desc.Monitor)
	return ok && flags&monitorinfofPrimary != 0
}

// Close releases the duplication session and output handles. It does
// not close the shared device/context cells; their owner does, once
// every duplicated output on the adapter is gone.
func (d *DuplicatedOutput) Close() {
	d.dup.Close()
	d.output.Close()
}
