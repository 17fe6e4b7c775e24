package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/dupcap/dupcap/internal/com"
	"github.com/dupcap/dupcap/internal/dxgi"
	"github.com/dupcap/dupcap/internal/dxgi/dxgitest"
)

func solid(b, g, r, a byte) func(x, y int) [4]byte {
	return func(int, int) [4]byte { return [4]byte{b, g, r, a} }
}

func newOutput(name string, coords dxgi.Rect, steps ...dxgitest.AcquireStep) *dxgitest.Output {
	desc := dxgi.OutputDesc{
		AttachedToDesktop:  1,
		DesktopCoordinates: coords,
	}
	for i, c := range name {
		desc.DeviceName[i] = uint16(c)
	}
	return &dxgitest.Output{
		Desc: desc,
		Dup:  &dxgitest.Duplication{Steps: steps},
	}
}

func newBackend(outputs ...*dxgitest.Output) *dxgitest.Backend {
	return &dxgitest.Backend{
		Factory: &dxgitest.Factory{
			Adapters: []*dxgitest.Adapter{{Outputs: outputs}},
		},
	}
}

func quickOpts() Options {
	return Options{Timeout: 20 * time.Millisecond, Output: -1}
}

func TestCaptureReturnsBGRAPixels(t *testing.T) {
	frame := dxgitest.NewFrame(4, 3, solid(0x10, 0x20, 0x30, 0xFF))
	out := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 4, Bottom: 3},
		dxgitest.AcquireStep{Frame: frame})
	backend := newBackend(out)

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	got, err := m.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer got.Release()

	if got.Width != 4 || got.Height != 3 || got.Stride != 16 {
		t.Fatalf("frame geometry = %dx%d stride %d", got.Width, got.Height, got.Stride)
	}
	for i := 0; i < len(got.Pix); i += 4 {
		if got.Pix[i] != 0x10 || got.Pix[i+1] != 0x20 || got.Pix[i+2] != 0x30 || got.Pix[i+3] != 0xFF {
			t.Fatalf("pixel %d = %v, want BGRA 10 20 30 FF", i/4, got.Pix[i:i+4])
		}
	}
}

func TestCaptureReleasesEverything(t *testing.T) {
	frame := dxgitest.NewFrame(2, 2, solid(1, 2, 3, 4))
	out := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2},
		dxgitest.AcquireStep{Frame: frame})
	backend := newBackend(out)

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	got, err := m.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	got.Release()

	if out.Dup.InFlight() {
		t.Error("frame still held by the session after capture")
	}
	if n := frame.Refs(); n != 0 {
		t.Errorf("frame texture refs = %d, want 0", n)
	}
	staging := backend.Devices[0].Created[0]
	if n := staging.Refs(); n != 0 {
		t.Errorf("staging texture refs = %d, want 0", n)
	}
	if staging.Mapped {
		t.Error("staging surface left mapped")
	}

	m.Close()
	if n := out.Refs(); n != 0 {
		t.Errorf("output refs after close = %d, want 0", n)
	}
	if n := out.Dup.Refs(); n != 0 {
		t.Errorf("duplication refs after close = %d, want 0", n)
	}
}

func TestCaptureRetriesTimeoutWithinBudget(t *testing.T) {
	frame := dxgitest.NewFrame(2, 2, solid(9, 9, 9, 9))
	out := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2},
		dxgitest.AcquireStep{HR: com.DXGIErrWaitTimeout},
		dxgitest.AcquireStep{Frame: frame})
	backend := newBackend(out)

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	got, err := m.Capture()
	if err != nil {
		t.Fatalf("Capture after one timeout: %v", err)
	}
	got.Release()
}

func TestCaptureTimeoutSurfacesWhenBudgetExhausted(t *testing.T) {
	out := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2})
	backend := newBackend(out)

	m, err := NewManager(backend, Options{Timeout: 2 * time.Millisecond, Output: -1})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, err := m.Capture(); !errors.Is(err, dxgi.ErrWaitTimeout) {
		t.Fatalf("Capture = %v, want wait timeout", err)
	}
}

func TestCaptureRebuildsOnAccessLost(t *testing.T) {
	frame := dxgitest.NewFrame(2, 2, solid(5, 6, 7, 8))
	out := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2},
		dxgitest.AcquireStep{HR: com.DXGIErrAccessLost},
		dxgitest.AcquireStep{Frame: frame})
	backend := newBackend(out)

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	got, err := m.Capture()
	if err != nil {
		t.Fatalf("Capture across access-lost: %v", err)
	}
	got.Release()

	if len(backend.Devices) != 2 {
		t.Errorf("devices created = %d, want 2 (rebuild mints a fresh device)", len(backend.Devices))
	}
	// The first device's shared cell must be gone after the rebuild.
	if n := backend.Devices[0].Refs(); n != 0 {
		t.Errorf("old device refs = %d, want 0", n)
	}
}

func TestSelectOutput(t *testing.T) {
	left := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2},
		dxgitest.AcquireStep{Frame: dxgitest.NewFrame(2, 2, solid(0xAA, 0, 0, 0xFF))})
	right := newOutput(`\\.\DISPLAY2`, dxgi.Rect{Left: 2, Right: 4, Bottom: 2},
		dxgitest.AcquireStep{Frame: dxgitest.NewFrame(2, 2, solid(0xBB, 0, 0, 0xFF))})
	backend := newBackend(left, right)

	m, err := NewManager(backend, Options{Timeout: 20 * time.Millisecond, Output: 1})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	got, err := m.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Pix[0] != 0xBB {
		t.Fatalf("captured blue channel = 0x%X, want 0xBB (second output)", got.Pix[0])
	}
	got.Release()

	if err := m.SelectOutput(5); !errors.Is(err, ErrOutputIndex) {
		t.Fatalf("SelectOutput(5) = %v, want ErrOutputIndex", err)
	}
}

func TestCaptureDesktopComposesOutputs(t *testing.T) {
	left := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2},
		dxgitest.AcquireStep{Frame: dxgitest.NewFrame(2, 2, solid(0x11, 0x11, 0x11, 0xFF))})
	right := newOutput(`\\.\DISPLAY2`, dxgi.Rect{Left: 2, Right: 4, Bottom: 2},
		dxgitest.AcquireStep{Frame: dxgitest.NewFrame(2, 2, solid(0x22, 0x22, 0x22, 0xFF))})
	backend := newBackend(left, right)

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	desk, err := m.CaptureDesktop()
	if err != nil {
		t.Fatalf("CaptureDesktop: %v", err)
	}
	defer desk.Release()

	if desk.Width != 4 || desk.Height != 2 {
		t.Fatalf("desktop frame = %dx%d, want 4x2", desk.Width, desk.Height)
	}
	// Left half from the first output, right half from the second.
	if desk.Pix[0] != 0x11 {
		t.Errorf("left half starts 0x%X, want 0x11", desk.Pix[0])
	}
	if desk.Pix[2*4] != 0x22 {
		t.Errorf("right half starts 0x%X, want 0x22", desk.Pix[2*4])
	}
}

func TestMonitorsListsGeometry(t *testing.T) {
	backend := newBackend(
		newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 1920, Bottom: 1080}),
		newOutput(`\\.\DISPLAY2`, dxgi.Rect{Left: 1920, Right: 3200, Bottom: 720}),
	)

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	mons := m.Monitors()
	if len(mons) != 2 {
		t.Fatalf("monitors = %d, want 2", len(mons))
	}
	if mons[0].Name != `\\.\DISPLAY1` || mons[0].Width != 1920 || mons[0].Height != 1080 {
		t.Errorf("monitor 0 = %+v", mons[0])
	}
	if mons[1].X != 1920 || mons[1].Width != 1280 || mons[1].Height != 720 {
		t.Errorf("monitor 1 = %+v", mons[1])
	}
}

func TestNewManagerNoOutputs(t *testing.T) {
	backend := &dxgitest.Backend{
		Factory: &dxgitest.Factory{Adapters: []*dxgitest.Adapter{{}}},
	}
	if _, err := NewManager(backend, quickOpts()); !errors.Is(err, ErrNoOutputs) {
		t.Fatalf("NewManager = %v, want ErrNoOutputs", err)
	}
}

func TestNewManagerSkipsOutputlessAdapters(t *testing.T) {
	out := newOutput(`\\.\DISPLAY1`, dxgi.Rect{Right: 2, Bottom: 2})
	backend := &dxgitest.Backend{
		Factory: &dxgitest.Factory{Adapters: []*dxgitest.Adapter{
			{}, // software adapter with no outputs
			{Outputs: []*dxgitest.Output{out}},
		}},
	}

	m, err := NewManager(backend, quickOpts())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if len(backend.Devices) != 1 {
		t.Fatalf("devices created = %d, want 1 (no device for outputless adapter)", len(backend.Devices))
	}
	if len(m.Monitors()) != 1 {
		t.Fatalf("monitors = %d, want 1", len(m.Monitors()))
	}
}
