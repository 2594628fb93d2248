package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Camera is the capability name used for camera access.
const Camera = "camera"

// Status is the outcome of a permission check.
type Status int

const (
	Unknown Status = iota
	Granted
	Denied
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "granted":
		return Granted, nil
	case "denied":
		return Denied, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("invalid permission status %q", s)
}

// Source gives access to a single runtime permission.
type Source interface {
	// Status returns the current, already decided status without prompting.
	Status(ctx context.Context) (Status, error)
	// ShouldShowRationale reports whether the user declined before and a
	// rationale should be shown instead of prompting again.
	ShouldShowRationale(ctx context.Context) (bool, error)
	// Request starts the prompt and returns immediately. answer is called
	// exactly once with the user's decision, from any goroutine.
	Request(ctx context.Context, answer func(granted bool))
}

// Prompter asks the user to grant or deny a capability.
// Implementations call answer at most once.
type Prompter interface {
	Prompt(ctx context.Context, capability string, answer func(granted bool))
}

// StoreSource is a Source backed by a persisted Store and a Prompter.
// Answers given through the prompt are written back to the store.
type StoreSource struct {
	capability string
	store      *Store
	prompter   Prompter
}

// NewStoreSource creates a Source for capability.
func NewStoreSource(capability string, store *Store, prompter Prompter) *StoreSource {
	return &StoreSource{capability: capability, store: store, prompter: prompter}
}

func (s *StoreSource) Status(_ context.Context) (Status, error) {
	return s.store.Get(s.capability)
}

// ShouldShowRationale is true once the capability has been denied.
func (s *StoreSource) ShouldShowRationale(ctx context.Context) (bool, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return false, err
	}
	return st == Denied, nil
}

func (s *StoreSource) Request(ctx context.Context, answer func(granted bool)) {
	var once sync.Once
	debug.Live("Prompting for %s permission", s.capability)
	s.prompter.Prompt(ctx, s.capability, func(granted bool) {
		once.Do(func() {
			st := Denied
			if granted {
				st = Granted
			}
			if err := s.store.Set(s.capability, st); err != nil {
				debug.Errorf(err, "persist %s permission", s.capability)
			}
			answer(granted)
		})
	})
}

// Static is a Prompter that answers immediately without asking anyone.
// Used on headless appliances where access is decided by configuration.
type Static bool

func (p Static) Prompt(_ context.Context, capability string, answer func(granted bool)) {
	debug.Verbose("Answering %s prompt from configuration: %v", capability, bool(p))
	go answer(bool(p))
}
