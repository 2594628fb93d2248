package permission

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- Store ----------

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state", "permissions.toml"))
}

func TestStore_UnknownWhenMissing(t *testing.T) {
	s := newTestStore(t)
	st, err := s.Get(Camera)
	require.NoError(t, err)
	assert.Equal(t, Unknown, st)
}

func TestStore_SetAndGet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(Camera, Granted))

	st, err := s.Get(Camera)
	require.NoError(t, err)
	assert.Equal(t, Granted, st)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `camera = "granted"`)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(Camera, Denied))
	require.NoError(t, s.Reset())
	require.NoError(t, s.Reset(), "reset of a missing file is not an error")

	st, err := s.Get(Camera)
	require.NoError(t, err)
	assert.Equal(t, Unknown, st)
}

func TestStore_All(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(Camera, Denied))
	require.NoError(t, s.Set("microphone", Granted))
	require.NoError(t, s.Set("microphone", Unknown))

	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{Camera: Denied}, all)
}

func TestStore_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("[grants]\ncamera = \"maybe\"\n"), 0o644))

	_, err := s.Get(Camera)
	assert.Error(t, err)
}

// ---------- StoreSource ----------

// scriptedPrompter answers with a fixed decision and counts prompts.
type scriptedPrompter struct {
	granted bool
	prompts int32
}

func (p *scriptedPrompter) Prompt(_ context.Context, _ string, answer func(bool)) {
	atomic.AddInt32(&p.prompts, 1)
	// Misbehaving prompters answering twice must still produce one answer.
	answer(p.granted)
	answer(!p.granted)
}

func TestStoreSource_RequestPersistsAnswer(t *testing.T) {
	for _, granted := range []bool{true, false} {
		s := newTestStore(t)
		p := &scriptedPrompter{granted: granted}
		src := NewStoreSource(Camera, s, p)

		var answers []bool
		src.Request(context.Background(), func(g bool) { answers = append(answers, g) })

		assert.Equal(t, []bool{granted}, answers, "answer must be delivered exactly once")
		want := Denied
		if granted {
			want = Granted
		}
		st, err := src.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, st)
	}
}

func TestStoreSource_RationaleAfterDenial(t *testing.T) {
	s := newTestStore(t)
	src := NewStoreSource(Camera, s, Static(false))

	show, err := src.ShouldShowRationale(context.Background())
	require.NoError(t, err)
	assert.False(t, show)

	require.NoError(t, s.Set(Camera, Denied))
	show, err = src.ShouldShowRationale(context.Background())
	require.NoError(t, err)
	assert.True(t, show)
}

func TestStatic_AnswersAsynchronously(t *testing.T) {
	got := make(chan bool, 1)
	Static(true).Prompt(context.Background(), Camera, func(g bool) { got <- g })

	select {
	case g := <-got:
		assert.True(t, g)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for static answer")
	}
}

// ---------- TerminalPrompter ----------

func newTestTerminal(input string, interactive bool) (*TerminalPrompter, *bytes.Buffer) {
	var out bytes.Buffer
	return &TerminalPrompter{
		in:          bufio.NewReader(strings.NewReader(input)),
		out:         &out,
		interactive: func() bool { return interactive },
	}, &out
}

func promptOnce(t *testing.T, p *TerminalPrompter) bool {
	t.Helper()
	got := make(chan bool, 1)
	p.Prompt(context.Background(), Camera, func(g bool) { got <- g })
	select {
	case g := <-got:
		return g
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for terminal answer")
		return false
	}
}

func TestTerminalPrompter_Answers(t *testing.T) {
	cases := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		" yes \n": true,
		"n\n":     false,
		"\n":      false,
		"maybe\n": false,
		"y":       true, // EOF without newline
	}
	for input, want := range cases {
		p, out := newTestTerminal(input, true)
		assert.Equal(t, want, promptOnce(t, p), "input %q", input)
		assert.Contains(t, out.String(), "Allow camera access? [y/N]")
	}
}

func TestTerminalPrompter_SuccessiveAnswersKeepBufferedInput(t *testing.T) {
	p, _ := newTestTerminal("n\ny\n", true)
	assert.False(t, promptOnce(t, p))
	assert.True(t, promptOnce(t, p), "second answer must not be lost to the first read")
}

func TestTerminalPrompter_EmptyInputDenies(t *testing.T) {
	p, _ := newTestTerminal("", true)
	assert.False(t, promptOnce(t, p))
}

func TestTerminalPrompter_NonInteractiveDenies(t *testing.T) {
	p, out := newTestTerminal("y\n", false)
	assert.False(t, promptOnce(t, p))
	assert.Empty(t, out.String(), "no prompt should be printed without a terminal")
}

func TestStatus_StringRoundTrip(t *testing.T) {
	for _, st := range []Status{Unknown, Granted, Denied} {
		parsed, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	_, err := ParseStatus("maybe")
	assert.Error(t, err)
}
