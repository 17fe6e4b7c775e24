// Package stream serves captured frames over WebSocket as an MJPEG
// sequence: one binary message per JPEG-encoded frame, paced at a
// configured maximum frame rate.
package stream

import (
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dupcap/dupcap/internal/capture"
	"github.com/dupcap/dupcap/internal/dxgi"
	"github.com/dupcap/dupcap/internal/logging"
)

// Config holds streaming parameters.
type Config struct {
	Quality     int     `json:"quality"`     // JPEG quality 1-100
	ScaleFactor float64 `json:"scaleFactor"` // 0.1-1.0
	MaxFPS      int     `json:"maxFps"`      // 1-120
}

// DefaultConfig returns sensible defaults for streaming.
func DefaultConfig() Config {
	return Config{
		Quality:     80,
		ScaleFactor: 1.0,
		MaxFPS:      30,
	}
}

// Capturer is the frame source the server pulls from.
type Capturer interface {
	Capture() (*capture.Frame, error)
}

const (
	// writeWait bounds how long one frame write may block before the
	// client is considered gone.
	writeWait = 10 * time.Second

	readLimit = 512
)

// Server upgrades HTTP requests to WebSocket connections and streams
// frames to each client until it disconnects.
type Server struct {
	capturer Capturer
	config   Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(capturer Capturer, config Config) *Server {
	if config.MaxFPS < 1 {
		config.MaxFPS = DefaultConfig().MaxFPS
	}
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = DefaultConfig().Quality
	}
	return &Server{
		capturer: capturer,
		config:   config,
		log:      logging.L("stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.KeyError, err.Error())
		return
	}
	s.log.Info("stream client connected", "remote", conn.RemoteAddr().String())
	s.serve(conn)
}

// serve runs the capture loop for one client.
func (s *Server) serve(conn *websocket.Conn) {
	defer conn.Close()

	// Drain the client side; a read error means the peer is gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(readLimit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(s.config.MaxFPS))
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			s.log.Info("stream client disconnected", "remote", conn.RemoteAddr().String())
			return
		case <-ticker.C:
			if err := s.sendFrame(conn); err != nil {
				s.log.Info("stream ended", logging.KeyError, err.Error())
				return
			}
		}
	}
}

// sendFrame captures, encodes, and writes one frame. A capture timeout
// (desktop unchanged for the whole acquisition budget) skips the tick
// without failing the stream.
func (s *Server) sendFrame(conn *websocket.Conn) error {
	t0 := time.Now()
	frame, err := s.capturer.Capture()
	if err != nil {
		if errors.Is(err, dxgi.ErrWaitTimeout) {
			return nil
		}
		return err
	}

	img := frame.ToRGBA()
	frame.Release()

	if s.config.ScaleFactor > 0 && s.config.ScaleFactor < 1.0 {
		img = scaleFast(img, s.config.ScaleFactor)
	}

	buf, err := encodeJPEG(img, s.config.Quality)
	if err != nil {
		return err
	}
	defer putBuffer(buf)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return err
	}
	s.log.Debug("frame sent",
		"bytes", buf.Len(),
		logging.KeyDurationMs, time.Since(t0).Milliseconds())
	return nil
}

// scaleFast downsamples with nearest-neighbor sampling. Streaming
// favors speed over resampling quality.
func scaleFast(src *image.RGBA, factor float64) *image.RGBA {
	b := src.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := y * b.Dy() / h
		srcRow := src.Pix[sy*src.Stride:]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			sx := x * b.Dx() / w
			copy(dstRow[x*4:x*4+4], srcRow[sx*4:sx*4+4])
		}
	}
	return dst
}
