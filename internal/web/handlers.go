package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/cjeanneret/SnapGo/internal/catalog"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/flow"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/media"
	"github.com/cjeanneret/SnapGo/internal/queue"
)

// Controller is the part of flow.Controller the handlers drive.
type Controller interface {
	State() flow.State
	Signal() flow.Signal
	Capture(ctx context.Context) error
	Retake()
}

// Renderer draws a captured photo.
type Renderer interface {
	Render(w io.Writer, ref string) error
}

// History lists recorded captures.
type History interface {
	Latest(ctx context.Context, limit int) ([]catalog.Entry, error)
}

// Deps are the collaborators of the HTTP handlers. Previewer and History
// are optional.
type Deps struct {
	Controller      Controller
	Prompts         *PromptBridge
	Renderer        Renderer
	Previewer       camera.Previewer
	History         History
	Broadcaster     *StatusBroadcaster
	PreviewInterval time.Duration
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	staticFS fs.FS
	// base outlives single requests; captures are started with it.
	base context.Context
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	if deps.PreviewInterval <= 0 {
		deps.PreviewInterval = 100 * time.Millisecond
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewStatusBroadcaster()
	}
	return &Handlers{Deps: deps, staticFS: staticFS, base: context.Background()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) stateView() StateView {
	v := NewStateView(flow.Update{State: h.Controller.State(), Signal: h.Controller.Signal()})
	if h.Prompts != nil {
		v.Prompt = h.Prompts.Pending()
	}
	return v
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState handles GET /state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stateView())
}

type permissionAnswer struct {
	Granted *bool `json:"granted"`
}

// HandlePermission handles POST /permission with {"granted": true|false}.
func (h *Handlers) HandlePermission(w http.ResponseWriter, r *http.Request) {
	var body permissionAnswer
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Granted == nil {
		http.Error(w, `expected {"granted": true|false}`, http.StatusBadRequest)
		return
	}
	if h.Prompts == nil {
		http.Error(w, "permission prompts not handled here", http.StatusServiceUnavailable)
		return
	}
	if err := h.Prompts.Answer(*body.Granted); err != nil {
		if errors.Is(err, ErrNoPendingPrompt) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "answered"})
}

// HandleCapture handles POST /capture. The photo arrives later as a state
// event; the response only acknowledges the request.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Capture(h.base); err != nil {
		switch {
		case errors.Is(err, flow.ErrCameraHidden), errors.Is(err, queue.ErrBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, queue.ErrShutdown):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleRetake handles POST /retake.
func (h *Handlers) HandleRetake(w http.ResponseWriter, r *http.Request) {
	if !h.Controller.State().ShowPhoto() {
		http.Error(w, "no photo shown", http.StatusConflict)
		return
	}
	h.Controller.Retake()
	writeJSON(w, http.StatusOK, h.stateView())
}

// HandlePhoto handles GET /photo. Nothing to show is 204, never an error.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	s := h.Controller.State()
	if !s.ShowPhoto() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var buf bytes.Buffer
	if err := h.Renderer.Render(&buf, s.Photo); err != nil {
		if errors.Is(err, media.ErrNothingToRender) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		debug.Errorf(err, "render %s", s.Photo)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// HandlePhotoMeta handles GET /photo/meta.
func (h *Handlers) HandlePhotoMeta(w http.ResponseWriter, r *http.Request) {
	s := h.Controller.State()
	if !s.ShowPhoto() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	meta, err := media.ReadMetadata(s.Photo)
	if err != nil {
		if errors.Is(err, media.ErrNothingToRender) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

const mjpegBoundary = "frame"

// HandlePreview handles GET /preview: an MJPEG stream that lasts while the
// camera preview is shown.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if h.Previewer == nil {
		http.Error(w, "camera has no live preview", http.StatusServiceUnavailable)
		return
	}
	if !h.Controller.State().ShowCamera() {
		http.Error(w, flow.ErrCameraHidden.Error(), http.StatusConflict)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.PreviewInterval)
	defer ticker.Stop()
	for {
		if !h.Controller.State().ShowCamera() {
			return
		}
		frame, err := h.Previewer.PreviewFrame()
		if err != nil {
			debug.Errorf(err, "preview frame")
			return
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

// HandleCaptures handles GET /captures?limit=N.
func (h *Handlers) HandleCaptures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries := []catalog.Entry{}
	if h.History != nil {
		list, err := h.History.Latest(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list != nil {
			entries = list
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleStatusStream handles GET /status/stream for SSE. The current state
// is sent first.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if data, err := json.Marshal(h.stateView()); err == nil {
		writeEvent(w, Message{Event: EventState, Data: string(data)})
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, msg)
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, msg Message) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
}
