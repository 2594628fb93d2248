package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/cjeanneret/SnapGo/internal/capture"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/permission"
)

// ErrCameraHidden is returned by Capture outside of CameraVisible.
var ErrCameraHidden = errors.New("flow: camera is not visible")

var errEmptyRef = errors.New("flow: capture returned an empty image reference")

// Signal is a one-off notification that does not change the view state.
type Signal int

const (
	SignalNone Signal = iota
	// SignalRationale: access was declined before; explain why the camera
	// is needed instead of prompting again.
	SignalRationale
	// SignalDenied: the user declined the prompt.
	SignalDenied
	// SignalCaptureFailed: the camera reported an error; the preview stays.
	SignalCaptureFailed
)

func (s Signal) String() string {
	switch s {
	case SignalRationale:
		return "rationale"
	case SignalDenied:
		return "denied"
	case SignalCaptureFailed:
		return "capture_failed"
	default:
		return ""
	}
}

// Update is published to subscribers after every state change or signal.
type Update struct {
	State  State
	Signal Signal
	Cause  error
}

// Capturer is the camera collaborator. Capture must not block: it either
// returns a channel delivering exactly one Result or refuses the request.
type Capturer interface {
	Capture(ctx context.Context) (<-chan capture.Result, error)
}

// Controller owns the view state and drives it from permission answers
// and capture results.
//
// Asynchronous deliveries (prompt answers, capture results) are posted as
// events and applied by Run, which must be running for them to take effect.
type Controller struct {
	perms  permission.Source
	camera Capturer

	events  chan Event
	stopped chan struct{}

	mu      sync.RWMutex
	state   State
	pending Signal // permission signal still in effect for late observers
	subs    map[chan Update]struct{}
}

// NewController creates a controller in AwaitingPermission.
func NewController(perms permission.Source, camera Capturer) *Controller {
	return &Controller{
		perms:   perms,
		camera:  camera,
		events:  make(chan Event, 16),
		stopped: make(chan struct{}),
		subs:    make(map[chan Update]struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Signal returns the permission signal still in effect: SignalRationale or
// SignalDenied until access is granted, SignalNone otherwise.
func (c *Controller) Signal() Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

// Subscribe returns a channel receiving every Update and a cleanup function.
// Slow subscribers may miss updates.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 64)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Run applies posted events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	for {
		select {
		case e := <-c.events:
			c.apply(e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RequestPermission checks camera access and prompts when undecided.
// A previous grant moves to CameraVisible before it returns; a prompt answer
// is applied later by Run. A denial is not an error.
func (c *Controller) RequestPermission(ctx context.Context) {
	status, err := c.perms.Status(ctx)
	if err != nil {
		debug.Errorf(err, "Permission status unavailable, prompting")
		status = permission.Unknown
	}
	if status == permission.Granted {
		debug.Permission(permission.Camera, "previously granted")
		c.apply(PermissionGranted{})
		return
	}

	rationale, err := c.perms.ShouldShowRationale(ctx)
	if err != nil {
		debug.Errorf(err, "Permission rationale unavailable")
	}
	if rationale {
		debug.Permission(permission.Camera, "previously denied, show rationale")
		c.signal(SignalRationale, nil)
		return
	}

	c.perms.Request(ctx, func(granted bool) {
		if granted {
			c.post(PermissionGranted{})
		} else {
			c.post(PermissionDenied{})
		}
	})
}

// OnImageCaptured shows the photo referenced by ref, replacing any earlier
// one. ref must not be empty.
func (c *Controller) OnImageCaptured(ref string) {
	if ref == "" {
		panic("flow: OnImageCaptured called with an empty reference")
	}
	c.apply(ImageCaptured{Ref: ref})
}

// Capture asks the camera for one photo. The result is applied by Run.
// A request the camera refuses (e.g. a full queue) is returned as is and
// leaves the state unchanged.
func (c *Controller) Capture(ctx context.Context) error {
	if !c.State().ShowCamera() {
		return ErrCameraHidden
	}
	results, err := c.camera.Capture(ctx)
	if err != nil {
		debug.Errorf(err, "Capture request refused")
		return err
	}
	go func() {
		res, ok := <-results
		switch {
		case !ok:
			c.post(CaptureFailed{Cause: errors.New("flow: capture ended without a result")})
		case res.Err != nil:
			c.post(CaptureFailed{Cause: res.Err})
		case res.Ref == "":
			c.post(CaptureFailed{Cause: errEmptyRef})
		default:
			c.post(ImageCaptured{Ref: res.Ref})
		}
	}()
	return nil
}

// Retake goes back from the captured photo to the camera preview.
func (c *Controller) Retake() {
	c.apply(Retake{})
}

func (c *Controller) post(e Event) {
	select {
	case c.events <- e:
	case <-c.stopped:
		debug.Verbose("flow: dropping %T, controller stopped", e)
	}
}

func (c *Controller) apply(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	c.state = Transition(prev, e)
	if prev.Phase != c.state.Phase {
		debug.Transition(prev.Phase.String(), c.state.Phase.String())
	}

	u := Update{State: c.state}
	switch e := e.(type) {
	case PermissionGranted:
		debug.Permission(permission.Camera, "granted")
		c.pending = SignalNone
	case PermissionDenied:
		debug.Permission(permission.Camera, "denied")
		u.Signal = SignalDenied
		c.pending = SignalDenied
	case ImageCaptured:
		debug.Captured(e.Ref)
	case CaptureFailed:
		debug.Errorf(e.Cause, "View error")
		u.Signal, u.Cause = SignalCaptureFailed, e.Cause
	}
	if u.Signal != SignalNone || prev != c.state {
		c.publishLocked(u)
	}
}

func (c *Controller) signal(s Signal, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = s
	c.publishLocked(Update{State: c.state, Signal: s, Cause: cause})
}

func (c *Controller) publishLocked(u Update) {
	for ch := range c.subs {
		select {
		case ch <- u:
		default:
			// subscriber full, skip
		}
	}
}
