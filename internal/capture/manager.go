// Package capture turns the low-level duplication primitives into a
// screenshot service: it owns the device state for every adapter,
// tracks which output is being captured, and hands out CPU-side BGRA
// frames.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/dupcap/dupcap/internal/com"
	"github.com/dupcap/dupcap/internal/dxgi"
	"github.com/dupcap/dupcap/internal/logging"
)

var (
	// ErrNoOutputs means no adapter reported an output attached to the
	// desktop, for example on a headless session.
	ErrNoOutputs = errors.New("capture: no attached outputs found")

	// ErrOutputIndex means the requested output index does not exist.
	ErrOutputIndex = errors.New("capture: output index out of range")

	errNoBits = errors.New("capture: mapped surface has no pixel data")
)

// Options configures a Manager.
type Options struct {
	// Timeout is the total acquisition budget for one Capture call.
	// Waits shorter than the budget are retried inside the call.
	Timeout time.Duration

	// Output selects the capture source by index; negative selects the
	// primary output.
	Output int
}

// DefaultOptions returns the options used when a field is zero.
func DefaultOptions() Options {
	return Options{
		Timeout: 300 * time.Millisecond,
		Output:  -1,
	}
}

// target is one duplicated output plus its cached description.
type target struct {
	dup  *dxgi.DuplicatedOutput
	desc dxgi.OutputDesc
}

// adapterDevices holds the shared device/context cells for one adapter.
// All duplicated outputs on the adapter borrow the same pair.
type adapterDevices struct {
	device  *com.Shared[dxgi.Device]
	context *com.Shared[dxgi.DeviceContext]
}

// Manager owns duplication sessions for every attached output and
// captures frames from the selected one. All methods are safe for
// concurrent use; captures serialize on the manager.
type Manager struct {
	backend dxgi.Backend
	opts    Options
	log     *slog.Logger

	mu      sync.Mutex
	targets []target
	devices []adapterDevices
	sel     int

	pool     framePool
	deskPool framePool
}

// NewManager enumerates adapters and outputs through the backend and
// opens a duplication session on every attached output. A nil backend
// selects the platform backend.
func NewManager(backend dxgi.Backend, opts Options) (*Manager, error) {
	if backend == nil {
		b, err := dxgi.NewBackend()
		if err != nil {
			return nil, err
		}
		backend = b
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	m := &Manager{
		backend: backend,
		opts:    opts,
		log:     logging.L("capture"),
	}
	if err := m.acquire(); err != nil {
		return nil, err
	}
	if err := m.selectLocked(opts.Output); err != nil {
		m.release()
		return nil, err
	}
	m.log.Info("capture manager ready",
		"outputs", len(m.targets),
		"adapters", len(m.devices),
		logging.KeyOutput, m.targets[m.sel].desc.Name())
	return m, nil
}

// acquire builds the duplication state from scratch: one device and
// context per adapter that has attached outputs, one session per
// output. On failure everything built so far is torn down.
func (m *Manager) acquire() error {
	factory, err := m.backend.CreateFactory()
	if err != nil {
		return err
	}
	defer factory.Close()

	for i := uint32(0); ; i++ {
		adapter, hr := factory.Get().EnumAdapters(i)
		if hr.Failed() {
			// DXGI_ERROR_NOT_FOUND is the end-of-sequence marker.
			break
		}
		ah := com.TakeOwnership(adapter)

		var outs []com.Handle[dxgi.Output]
		it := dxgi.EnumerateOutputs(adapter)
		for {
			h, ok := it.Next()
			if !ok {
				break
			}
			outs = append(outs, h)
		}
		if len(outs) == 0 {
			ah.Close()
			continue
		}

		device, context, err := m.backend.CreateDevice(adapter)
		ah.Close()
		if err != nil {
			for j := range outs {
				outs[j].Close()
			}
			m.release()
			return err
		}
		dev := com.Share(&device)
		ctx := com.Share(&context)
		m.devices = append(m.devices, adapterDevices{device: dev, context: ctx})

		for j := range outs {
			dup, err := dxgi.Duplicate(dev, ctx, &outs[j])
			if err != nil {
				for k := j + 1; k < len(outs); k++ {
					outs[k].Close()
				}
				m.release()
				return err
			}
			desc, err := dup.Desc()
			if err != nil {
				dup.Close()
				m.release()
				return err
			}
			m.targets = append(m.targets, target{dup: dup, desc: desc})
		}
	}

	if len(m.targets) == 0 {
		m.release()
		return ErrNoOutputs
	}
	return nil
}

// release tears down every session and shared cell.
func (m *Manager) release() {
	for _, t := range m.targets {
		t.dup.Close()
	}
	m.targets = nil
	for _, d := range m.devices {
		d.device.Close()
		d.context.Close()
	}
	m.devices = nil
}

func (m *Manager) selectLocked(index int) error {
	if index >= 0 {
		if index >= len(m.targets) {
			return fmt.Errorf("%w: %d of %d", ErrOutputIndex, index, len(m.targets))
		}
		m.sel = index
		return nil
	}
	m.sel = 0
	for i, t := range m.targets {
		if t.dup.IsPrimary() {
			m.sel = i
			break
		}
	}
	return nil
}

// SelectOutput switches the capture source. Negative selects primary.
func (m *Manager) SelectOutput(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(index)
}

// Monitor describes one capturable output.
type Monitor struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Primary bool   `json:"primary"`
}

// Monitors lists the outputs the manager can capture.
func (m *Manager) Monitors() []Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	monitors := make([]Monitor, 0, len(m.targets))
	for i, t := range m.targets {
		c := t.desc.DesktopCoordinates
		monitors = append(monitors, Monitor{
			Index:   i,
			Name:    t.desc.Name(),
			X:       int(c.Left),
			Y:       int(c.Top),
			Width:   int(c.Right - c.Left),
			Height:  int(c.Bottom - c.Top),
			Primary: t.dup.IsPrimary(),
		})
	}
	return monitors
}

// Capture grabs one frame from the selected output. Timeouts are
// retried until the acquisition budget runs out; a lost duplication
// (session invalidated, device removed or reset) is rebuilt once with
// a fresh budget before the error is surfaced.
func (m *Manager) Capture() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := time.Now().Add(m.opts.Timeout)
	for attempt := 0; ; attempt++ {
		frame, err := m.captureTarget(m.targets[m.sel], deadline, &m.pool)
		if err == nil {
			return frame, nil
		}
		if attempt == 0 && lostDuplication(err) {
			m.log.Warn("duplication lost, rebuilding", logging.KeyError, err.Error())
			if rerr := m.reinitLocked(); rerr != nil {
				return nil, rerr
			}
			deadline = time.Now().Add(m.opts.Timeout)
			continue
		}
		return nil, err
	}
}

// CaptureDesktop composes one frame covering the union of every
// output's desktop rectangle. Regions no output covers stay black.
// Unlike Capture, a lost duplication is not rebuilt mid-composition;
// the error surfaces and the next call starts clean.
func (m *Manager) CaptureDesktop() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	union := m.targets[0].desc.DesktopCoordinates
	for _, t := range m.targets[1:] {
		c := t.desc.DesktopCoordinates
		if c.Left < union.Left {
			union.Left = c.Left
		}
		if c.Top < union.Top {
			union.Top = c.Top
		}
		if c.Right > union.Right {
			union.Right = c.Right
		}
		if c.Bottom > union.Bottom {
			union.Bottom = c.Bottom
		}
	}

	desk := m.deskPool.get(int(union.Right-union.Left), int(union.Bottom-union.Top))
	clear(desk.Pix)

	deadline := time.Now().Add(m.opts.Timeout)
	for _, t := range m.targets {
		frame, err := m.captureTarget(t, deadline, &m.pool)
		if err != nil {
			desk.Release()
			return nil, err
		}
		c := t.desc.DesktopCoordinates
		blit(desk, frame, int(c.Left-union.Left), int(c.Top-union.Top))
		frame.Release()
	}
	return desk, nil
}

// reinitLocked tears the duplication state down and rebuilds it,
// keeping the selected output index when it still exists.
func (m *Manager) reinitLocked() error {
	sel := m.sel
	m.release()
	if err := m.acquire(); err != nil {
		return err
	}
	if sel >= len(m.targets) {
		sel = m.opts.Output
	}
	return m.selectLocked(sel)
}

// captureTarget runs one acquisition against a target, retrying
// timeouts until the deadline.
func (m *Manager) captureTarget(t target, deadline time.Time, pool *framePool) (*Frame, error) {
	for {
		frame, err := m.captureOnce(t, deadline, pool)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, dxgi.ErrWaitTimeout) || !time.Now().Before(deadline) {
			return nil, err
		}
	}
}

// captureOnce does one full acquire, stage, map, copy, release cycle.
func (m *Manager) captureOnce(t target, deadline time.Time, pool *framePool) (*Frame, error) {
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	surface, err := t.dup.GetFrame(remaining)
	if err != nil {
		return nil, err
	}

	frame, err := readSurface(&surface, t.desc, pool)

	// The frame stays held by the session until released; pair every
	// successful acquisition exactly once, even when the read failed.
	if rerr := t.dup.ReleaseFrame(); rerr != nil && err == nil {
		frame.Release()
		return nil, rerr
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// readSurface maps the staging surface and copies its pitch-strided
// rows into a tightly packed pooled frame. The surface handle is
// consumed.
func readSurface(surface *com.Handle[dxgi.Surface], desc dxgi.OutputDesc, pool *framePool) (*Frame, error) {
	defer surface.Close()

	var mapped dxgi.MappedRect
	if hr := surface.Get().Map(&mapped, dxgi.MapRead); hr.Failed() {
		return nil, hr
	}
	defer surface.Get().Unmap()

	if mapped.PBits == 0 {
		return nil, errNoBits
	}

	c := desc.DesktopCoordinates
	w, h := int(c.Right-c.Left), int(c.Bottom-c.Top)
	pitch := int(mapped.Pitch)
	src := unsafe.Slice((*byte)(unsafe.Pointer(mapped.PBits)), pitch*h)

	frame := pool.get(w, h)
	row := w * 4
	if pitch == row {
		copy(frame.Pix, src[:row*h])
	} else {
		for y := 0; y < h; y++ {
			copy(frame.Pix[y*row:(y+1)*row], src[y*pitch:y*pitch+row])
		}
	}
	return frame, nil
}

// blit copies src into dst at (dx, dy). Both frames are tightly packed.
func blit(dst, src *Frame, dx, dy int) {
	for y := 0; y < src.Height; y++ {
		d := (dy+y)*dst.Stride + dx*4
		copy(dst.Pix[d:d+src.Width*4], src.Pix[y*src.Stride:y*src.Stride+src.Width*4])
	}
}

// lostDuplication reports whether the error means the duplication
// session is gone and must be rebuilt.
func lostDuplication(err error) bool {
	return errors.Is(err, dxgi.ErrAccessLost) ||
		errors.Is(err, dxgi.ErrInvalidCall) ||
		errors.Is(err, dxgi.ErrDeviceRemoved) ||
		errors.Is(err, dxgi.ErrDeviceReset)
}

// Close tears down every duplication session and device.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}
