package web

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/flow"
)

// SSE event names.
const (
	EventStatus = "status"
	EventState  = "state"
)

// Message is one SSE message: an event name and its JSON data.
type Message struct {
	Event string
	Data  string
}

// StatusEvent is a log line forwarded to the browser.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StateView is the JSON shape of the view state.
type StateView struct {
	Phase      string `json:"phase"`
	ShowCamera bool   `json:"show_camera"`
	ShowPhoto  bool   `json:"show_photo"`
	Photo      string `json:"photo,omitempty"`
	Signal     string `json:"signal,omitempty"`
	Cause      string `json:"cause,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

// NewStateView converts a controller update.
func NewStateView(u flow.Update) StateView {
	v := StateView{
		Phase:      u.State.Phase.String(),
		ShowCamera: u.State.ShowCamera(),
		ShowPhoto:  u.State.ShowPhoto(),
		Photo:      u.State.Photo,
		Signal:     u.Signal.String(),
	}
	if u.Cause != nil {
		v.Cause = u.Cause.Error()
	}
	return v
}

// StatusBroadcaster distributes messages to every SSE client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan Message]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan Message]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup
// function to call when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *StatusBroadcaster) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	msg := Message{Event: event, Data: string(data)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
			// channel full, skip
		}
	}
}

// Broadcast sends a status line: {"t":"...","l":"info","msg":"..."}.
// Slow clients may miss messages.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(EventStatus, StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastState sends the view state.
func (b *StatusBroadcaster) BroadcastState(v StateView) {
	b.send(EventState, v)
}

// Forward relays controller updates until ctx is done or updates is closed.
func (b *StatusBroadcaster) Forward(ctx context.Context, updates <-chan flow.Update) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.BroadcastState(NewStateView(u))
		case <-ctx.Done():
			return
		}
	}
}

// BroadcastWriter adapts b to io.Writer so log output reaches SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
