// Package preview serves the detector view over HTTP: an MJPEG stream of
// annotated frames, the current change mask and background model, and the
// movement threshold control.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tcolgate/ratnav/internal/logger"
	"github.com/tcolgate/ratnav/internal/motion"
)

const (
	jpegQuality     = 80
	readTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Thresholder reads and tunes the movement threshold.
type Thresholder interface {
	Threshold() int
	SetThreshold(v int) error
}

// Server is a pipeline display that publishes what it is shown over HTTP.
type Server struct {
	thresholds Thresholder
	background motion.Backgrounder
	inner      image.Rectangle

	mu     sync.RWMutex
	mask   *image.Gray
	subs   map[chan []byte]struct{}
	closed bool
}

// New returns a preview for a pipeline. bg may be nil when the engine keeps
// no background model.
func New(t Thresholder, bg motion.Backgrounder, inner image.Rectangle) *Server {
	return &Server{
		thresholds: t,
		background: bg,
		inner:      inner,
		subs:       make(map[chan []byte]struct{}),
	}
}

// Show stores the mask and, while anyone is watching, encodes the annotated
// frame for the stream. Slow viewers miss frames.
func (s *Server) Show(frame image.Image, sig *motion.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sig != nil && sig.Mask != nil {
		s.copyMask(sig.Mask)
	}

	if len(s.subs) == 0 || frame == nil {
		return
	}

	var regions []motion.Region
	if sig != nil {
		regions = sig.Regions
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, annotate(frame, s.inner, regions), imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		logger.WarnKV(context.Background(), "Failed to encode preview frame", "error", err)
		return
	}

	for ch := range s.subs {
		select {
		case ch <- buf.Bytes():
		default:
		}
	}
}

func (s *Server) copyMask(m *image.Gray) {
	if s.mask == nil || s.mask.Bounds() != m.Bounds() {
		s.mask = image.NewGray(m.Bounds())
	}

	copy(s.mask.Pix, m.Pix)
}

func (s *Server) subscribe() (chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}

	ch := make(chan []byte, 1)
	s.subs[ch] = struct{}{}

	return ch, true
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// closeSubscribers ends every stream so the server can shut down.
func (s *Server) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// Handler returns the preview routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveIndex)
	mux.HandleFunc("/stream", s.serveStream)
	mux.HandleFunc("/mask.png", s.serveMask)
	mux.HandleFunc("/background.png", s.serveBackground)
	mux.HandleFunc("/threshold", s.serveThreshold)

	return mux
}

// ListenAndServe serves the preview on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves the preview on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv.RegisterOnShutdown(s.closeSubscribers)

	logger.InfoKV(ctx, "Preview listening", "address", lis.Addr().String())

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		logger.Info(ctx, "Shutting down preview server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Preview shutdown", "error", err)
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve preview: %w", err)
	}

	<-done
	logger.Info(ctx, "Preview server stopped")

	return nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.subscribe()
	if !ok {
		http.Error(w, "preview is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(ch)

	ctx := r.Context()
	logger.DebugKV(ctx, "Preview viewer connected", "remote", r.RemoteAddr)

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+mw.Boundary())

	flusher, _ := w.(http.Flusher)

	for {
		var frame []byte

		select {
		case <-ctx.Done():
			return
		case frame, ok = <-ch:
			if !ok {
				return
			}
		}

		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   []string{"image/jpeg"},
			"Content-Length": []string{strconv.Itoa(len(frame))},
		})
		if err != nil {
			logger.DebugKV(ctx, "Preview viewer gone", "error", err)
			return
		}

		if _, err := pw.Write(frame); err != nil {
			return
		}

		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) serveMask(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()

	var mask image.Image
	if s.mask != nil {
		mask = imaging.Clone(s.mask)
	}

	s.mu.RUnlock()

	writePNG(w, mask)
}

func (s *Server) serveBackground(w http.ResponseWriter, _ *http.Request) {
	if s.background == nil {
		http.Error(w, "no background model in this mode", http.StatusNotFound)
		return
	}

	writePNG(w, s.background.Background())
}

func writePNG(w http.ResponseWriter, img image.Image) {
	if img == nil || img.Bounds().Empty() {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) serveThreshold(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		v, err := strconv.Atoi(strings.TrimSpace(r.FormValue("value")))
		if err != nil {
			http.Error(w, "value must be an integer", http.StatusBadRequest)
			return
		}

		if err := s.thresholds.SetThreshold(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		logger.InfoKV(r.Context(), "Threshold changed", "threshold", v)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "%d\n", s.thresholds.Threshold())
}
