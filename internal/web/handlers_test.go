package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/SnapGo/internal/capture"
	"github.com/cjeanneret/SnapGo/internal/catalog"
	"github.com/cjeanneret/SnapGo/internal/flow"
	"github.com/cjeanneret/SnapGo/internal/media"
	"github.com/cjeanneret/SnapGo/internal/permission"
	"github.com/cjeanneret/SnapGo/internal/queue"
)

type fakeController struct {
	mu         sync.Mutex
	state      flow.State
	signal     flow.Signal
	captureErr error
	captures   int
	retakes    int
}

func (c *fakeController) State() flow.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeController) Signal() flow.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

func (c *fakeController) set(s flow.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *fakeController) Capture(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.ShowCamera() {
		return flow.ErrCameraHidden
	}
	if c.captureErr != nil {
		return c.captureErr
	}
	c.captures++
	return nil
}

func (c *fakeController) Retake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retakes++
	c.state.Phase = flow.CameraVisible
}

// stopAfter serves frames and hides the camera after n of them.
type stopAfter struct {
	ctrl   *fakeController
	n      int
	served int
}

func (p *stopAfter) PreviewFrame() ([]byte, error) {
	p.served++
	if p.served >= p.n {
		p.ctrl.set(flow.State{Phase: flow.PhotoVisible, Photo: "file:///x.jpg"})
	}
	return []byte("JPEGDATA"), nil
}

type fakeHistory struct {
	entries []catalog.Entry
	limit   int
}

func (f *fakeHistory) Latest(_ context.Context, limit int) ([]catalog.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

func newTestServer(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Renderer == nil {
		deps.Renderer = media.NewRenderer(100, 100)
	}
	srv, err := NewServer(":0", nil, deps)
	require.NoError(t, err)
	return srv.Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func photoRef(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p.jpg")
	require.NoError(t, imaging.Save(imaging.New(w, h, color.White), path))
	ref, err := capture.FileRef(path)
	require.NoError(t, err)
	return ref
}

func TestServeIndex(t *testing.T) {
	h := newTestServer(t, Deps{Controller: &fakeController{}})
	rec := do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "SnapGo")

	rec = do(h, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleState(t *testing.T) {
	ctrl := &fakeController{state: flow.State{Phase: flow.PhotoVisible, Photo: "file:///a.jpg"}}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v StateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, StateView{Phase: "photo_visible", ShowPhoto: true, Photo: "file:///a.jpg"}, v)
}

func TestHandleState_SavedDenialShowsRationale(t *testing.T) {
	store := permission.NewStore(filepath.Join(t.TempDir(), "permissions.toml"))
	require.NoError(t, store.Set(permission.Camera, permission.Denied))
	prompts := NewPromptBridge(nil)
	ctrl := flow.NewController(permission.NewStoreSource(permission.Camera, store, prompts), nil)

	// As at startup: the rationale is raised before any page is connected.
	ctrl.RequestPermission(context.Background())

	h := newTestServer(t, Deps{Controller: ctrl, Prompts: prompts})
	rec := do(h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v StateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "awaiting_permission", v.Phase)
	assert.Equal(t, "rationale", v.Signal)
	assert.Empty(t, v.Prompt)
}

func TestHandlePermission(t *testing.T) {
	prompts := NewPromptBridge(nil)
	h := newTestServer(t, Deps{Controller: &fakeController{}, Prompts: prompts})

	rec := do(h, http.MethodPost, "/permission", `{"granted": true}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "no prompt pending yet")

	answers := make(chan bool, 1)
	prompts.Prompt(context.Background(), "camera", func(g bool) { answers <- g })

	rec = do(h, http.MethodGet, "/state", "")
	assert.Contains(t, rec.Body.String(), `"prompt":"camera"`)

	rec = do(h, http.MethodPost, "/permission", `{"granted": false}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, <-answers)

	rec = do(h, http.MethodPost, "/permission", `{"granted": true}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "prompt answered only once")
}

func TestHandlePermission_BadBody(t *testing.T) {
	h := newTestServer(t, Deps{Controller: &fakeController{}, Prompts: NewPromptBridge(nil)})
	for _, body := range []string{"", "nope", `{}`, `{"granted":"yes"}`} {
		rec := do(h, http.MethodPost, "/permission", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestHandleCapture(t *testing.T) {
	ctrl := &fakeController{}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodPost, "/capture", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ctrl.set(flow.State{Phase: flow.CameraVisible})
	rec = do(h, http.MethodPost, "/capture", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ctrl.captures)

	rec = do(h, http.MethodGet, "/capture", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCapture_QueueFull(t *testing.T) {
	ctrl := &fakeController{
		state:      flow.State{Phase: flow.CameraVisible},
		captureErr: fmt.Errorf("submit capture: %w", queue.ErrBusy),
	}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodPost, "/capture", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ctrl.captureErr = fmt.Errorf("submit capture: %w", queue.ErrShutdown)
	rec = do(h, http.MethodPost, "/capture", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, ctrl.captures)
}

func TestHandleRetake(t *testing.T) {
	ctrl := &fakeController{state: flow.State{Phase: flow.CameraVisible}}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodPost, "/retake", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ctrl.set(flow.State{Phase: flow.PhotoVisible, Photo: "file:///a.jpg"})
	rec = do(h, http.MethodPost, "/retake", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.retakes)
	assert.Contains(t, rec.Body.String(), `"show_camera":true`)
}

func TestHandlePhoto(t *testing.T) {
	ctrl := &fakeController{state: flow.State{Phase: flow.CameraVisible}}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodGet, "/photo", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "no photo while the camera is shown")

	ctrl.set(flow.State{Phase: flow.PhotoVisible, Photo: photoRef(t, 300, 150)})
	rec = do(h, http.MethodGet, "/photo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	img, err := imaging.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestHandlePhoto_UnreachableRefDrawsNothing(t *testing.T) {
	ctrl := &fakeController{state: flow.State{Phase: flow.PhotoVisible, Photo: "file:///gone/x.jpg"}}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodGet, "/photo", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())

	rec = do(h, http.MethodGet, "/photo/meta", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlePhotoMeta(t *testing.T) {
	ctrl := &fakeController{state: flow.State{Phase: flow.PhotoVisible, Photo: photoRef(t, 40, 20)}}
	h := newTestServer(t, Deps{Controller: ctrl})

	rec := do(h, http.MethodGet, "/photo/meta", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var meta media.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 40, meta.Width)
	assert.Equal(t, 20, meta.Height)
}

func TestHandlePreview(t *testing.T) {
	ctrl := &fakeController{state: flow.State{Phase: flow.CameraVisible}}
	h := newTestServer(t, Deps{
		Controller:      ctrl,
		Previewer:       &stopAfter{ctrl: ctrl, n: 2},
		PreviewInterval: time.Millisecond,
	})

	rec := do(h, http.MethodGet, "/preview", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "--frame\r\n"))
	assert.Contains(t, rec.Body.String(), "Content-Length: 8\r\n\r\nJPEGDATA\r\n")

	rec = do(h, http.MethodGet, "/preview", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "stream refused once the photo is shown")
}

func TestHandlePreview_NoPreviewer(t *testing.T) {
	h := newTestServer(t, Deps{Controller: &fakeController{state: flow.State{Phase: flow.CameraVisible}}})
	rec := do(h, http.MethodGet, "/preview", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleCaptures(t *testing.T) {
	history := &fakeHistory{entries: []catalog.Entry{{ID: 1, Ref: "file:///a.jpg"}}}
	h := newTestServer(t, Deps{Controller: &fakeController{}, History: history})

	rec := do(h, http.MethodGet, "/captures?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.limit)
	var got []catalog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "file:///a.jpg", got[0].Ref)

	rec = do(h, http.MethodGet, "/captures?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCaptures_NoHistory(t *testing.T) {
	h := newTestServer(t, Deps{Controller: &fakeController{}})
	rec := do(h, http.MethodGet, "/captures", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleStatusStream(t *testing.T) {
	b := NewStatusBroadcaster()
	ctrl := &fakeController{state: flow.State{Phase: flow.CameraVisible}}
	ts := httptest.NewServer(newTestServer(t, Deps{Controller: ctrl, Broadcaster: b}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func(prefix string) string {
		t.Helper()
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return strings.TrimPrefix(lines.Text(), prefix)
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}

	assert.Equal(t, EventState, next("event: "))
	assert.Contains(t, next("data: "), `"phase":"camera_visible"`)

	b.BroadcastState(NewStateView(flow.Update{
		State:  flow.State{Phase: flow.CameraVisible},
		Signal: flow.SignalCaptureFailed,
		Cause:  errors.New("IOError"),
	}))
	assert.Equal(t, EventState, next("event: "))
	assert.Contains(t, next("data: "), `"cause":"IOError"`)
}
