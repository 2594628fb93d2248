package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// TerminalPrompter asks on a terminal: "Allow camera access? [y/N]".
// Without an interactive terminal the request is denied.
type TerminalPrompter struct {
	mu          sync.Mutex // one question on the terminal at a time
	in          *bufio.Reader
	out         io.Writer
	interactive func() bool
}

// NewTerminalPrompter prompts on stdin/stdout.
func NewTerminalPrompter() *TerminalPrompter {
	fd := int(os.Stdin.Fd())
	return &TerminalPrompter{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: func() bool { return term.IsTerminal(fd) },
	}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, capability string, answer func(granted bool)) {
	if !p.interactive() {
		debug.Info("No terminal available to ask for %s access, denying", capability)
		go answer(false)
		return
	}

	lines := make(chan string, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(p.out, "Allow %s access? [y/N] ", capability)
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			close(lines)
			return
		}
		lines <- line
	}()

	go func() {
		select {
		case line, ok := <-lines:
			answer(ok && isYes(line))
		case <-ctx.Done():
			// The prompt is abandoned; no answer is delivered.
			debug.Verbose("%s prompt abandoned: %v", capability, ctx.Err())
		}
	}()
}

func isYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
