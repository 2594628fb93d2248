package web

import (
	"context"
	"errors"
	"sync"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrNoPendingPrompt is returned by Answer when nobody is being asked.
var ErrNoPendingPrompt = errors.New("web: no permission prompt pending")

// PromptBridge is a permission.Prompter whose question is shown in the
// browser and answered through POST /permission.
type PromptBridge struct {
	broadcaster *StatusBroadcaster

	mu         sync.Mutex
	capability string
	answer     func(bool)
	seq        uint64
}

// NewPromptBridge creates a bridge announcing prompts on b. b may be nil.
func NewPromptBridge(b *StatusBroadcaster) *PromptBridge {
	return &PromptBridge{broadcaster: b}
}

// Prompt records the question until a browser answers it. A newer prompt
// replaces an unanswered one. Cancelling ctx withdraws the question.
func (p *PromptBridge) Prompt(ctx context.Context, capability string, answer func(granted bool)) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.capability, p.answer = capability, answer
	p.mu.Unlock()

	debug.Live("Waiting for %s permission from the browser", capability)
	if p.broadcaster != nil {
		p.broadcaster.Broadcast("prompt", "Allow "+capability+" access?")
	}

	if ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.seq == seq && p.answer != nil {
			debug.Verbose("Permission prompt for %s withdrawn", capability)
			p.capability, p.answer = "", nil
		}
	}()
}

// Pending returns the capability being asked for, or "".
func (p *PromptBridge) Pending() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capability
}

// Answer delivers the user's decision to the pending prompt.
func (p *PromptBridge) Answer(granted bool) error {
	p.mu.Lock()
	answer := p.answer
	p.capability, p.answer = "", nil
	p.mu.Unlock()

	if answer == nil {
		return ErrNoPendingPrompt
	}
	answer(granted)
	return nil
}
