package stream

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
)

// bufferPool pools bytes.Buffer instances for JPEG encoding.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

// encodeJPEG encodes img into a pooled buffer. The caller must hand
// the buffer back with putBuffer once the bytes are consumed.
func encodeJPEG(img *image.RGBA, quality int) (*bytes.Buffer, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		putBuffer(buf)
		return nil, err
	}
	return buf, nil
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 512*1024 {
		return // don't pool oversized buffers
	}
	bufferPool.Put(buf)
}
