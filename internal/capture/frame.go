package capture

import (
	"image"
	"sync"
)

// Frame is one captured frame in BGRA byte order, tightly packed
// (Stride == Width*4). The buffer may come from a pool; hand it back
// with Release once the pixels are consumed.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte

	pool *framePool
}

// ToRGBA copies the frame into a freshly allocated image, swizzling
// BGRA to RGBA.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+f.Width*4]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width*4; x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = src[x+3]
		}
	}
	return img
}

// Release returns the frame's buffer to its pool, if it has one.
// The frame must not be used afterwards.
func (f *Frame) Release() {
	if f.pool != nil {
		f.pool.put(f)
	}
}

// framePool pools frame buffers for a fixed resolution. Capture
// sessions run at a consistent resolution, so a simple pool works well.
type framePool struct {
	pool sync.Pool
	w, h int
	mu   sync.Mutex
}

func (p *framePool) get(w, h int) *Frame {
	p.mu.Lock()
	if p.w != w || p.h != h {
		// Resolution changed, reset pool
		p.w = w
		p.h = h
		p.pool = sync.Pool{}
	}
	p.mu.Unlock()

	if v := p.pool.Get(); v != nil {
		f := v.(*Frame)
		if f.Width == w && f.Height == h {
			return f
		}
	}
	return &Frame{
		Width:  w,
		Height: h,
		Stride: w * 4,
		Pix:    make([]byte, w*4*h),
		pool:   p,
	}
}

func (p *framePool) put(f *Frame) {
	p.mu.Lock()
	match := p.w == f.Width && p.h == f.Height
	p.mu.Unlock()
	if match {
		p.pool.Put(f)
	}
}
