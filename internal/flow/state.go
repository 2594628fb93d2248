package flow

// Phase is the surface currently shown. Exactly one phase holds at a time,
// so the camera preview and the captured photo are never shown together.
type Phase int

const (
	AwaitingPermission Phase = iota
	CameraVisible
	PhotoVisible
)

func (p Phase) String() string {
	switch p {
	case CameraVisible:
		return "camera_visible"
	case PhotoVisible:
		return "photo_visible"
	default:
		return "awaiting_permission"
	}
}

// State is a snapshot of the view state.
type State struct {
	Phase Phase
	// Photo is the reference of the most recent capture. It is always set
	// while Phase is PhotoVisible.
	Photo string
}

// ShowCamera reports whether the camera preview is shown.
func (s State) ShowCamera() bool { return s.Phase == CameraVisible }

// ShowPhoto reports whether the captured photo is shown.
func (s State) ShowPhoto() bool { return s.Phase == PhotoVisible }

// Event is an input to Transition.
type Event interface {
	event()
}

// PermissionGranted is posted when camera access is granted.
type PermissionGranted struct{}

// PermissionDenied is posted when the user declines camera access.
type PermissionDenied struct{}

// ImageCaptured carries the reference of a successfully captured image.
type ImageCaptured struct{ Ref string }

// CaptureFailed carries the cause of a failed capture.
type CaptureFailed struct{ Cause error }

// Retake returns from the captured photo to the camera preview.
type Retake struct{}

func (PermissionGranted) event() {}
func (PermissionDenied) event()  {}
func (ImageCaptured) event()     {}
func (CaptureFailed) event()     {}
func (Retake) event()            {}

// Transition returns the state that follows s after e. It is pure; the
// controller is the only caller that stores the result.
func Transition(s State, e Event) State {
	switch e := e.(type) {
	case PermissionGranted:
		if s.Phase == AwaitingPermission {
			s.Phase = CameraVisible
		}
	case ImageCaptured:
		if e.Ref != "" {
			s.Photo = e.Ref
			s.Phase = PhotoVisible
		}
	case Retake:
		if s.Phase == PhotoVisible {
			s.Phase = CameraVisible
		}
	case PermissionDenied, CaptureFailed:
		// Observable through signals only.
	}
	return s
}
