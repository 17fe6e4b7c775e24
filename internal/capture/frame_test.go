package capture

import "testing"

func TestToRGBASwizzles(t *testing.T) {
	f := &Frame{Width: 2, Height: 1, Stride: 8, Pix: []byte{
		0x01, 0x02, 0x03, 0x04, // BGRA
		0x05, 0x06, 0x07, 0x08,
	}}

	img := f.ToRGBA()
	want := []byte{
		0x03, 0x02, 0x01, 0x04, // RGBA
		0x07, 0x06, 0x05, 0x08,
	}
	for i, b := range want {
		if img.Pix[i] != b {
			t.Fatalf("img.Pix[%d] = 0x%02X, want 0x%02X", i, img.Pix[i], b)
		}
	}
}

func TestFramePoolReusesAtFixedResolution(t *testing.T) {
	var p framePool

	f := p.get(4, 4)
	buf := &f.Pix[0]
	f.Release()

	g := p.get(4, 4)
	if &g.Pix[0] != buf {
		t.Error("expected the pooled buffer back at the same resolution")
	}
	g.Release()

	// A resolution change resets the pool.
	h := p.get(8, 8)
	if h.Width != 8 || len(h.Pix) != 8*8*4 {
		t.Fatalf("resized frame = %dx%d len %d", h.Width, h.Height, len(h.Pix))
	}
}
