package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/promptcraft/promptcraft-chat/internal/models"
	"github.com/promptcraft/promptcraft-chat/internal/session"
)

// terminalSurface shows the transcript on a terminal. When redraw is set, the message being streamed is
// repainted in place with ANSI cursor movement. Otherwise output is append-only: a streamed message is
// printed once, when it is final.
type terminalSurface struct {
	mu     sync.Mutex
	out    io.Writer
	redraw bool

	// last is the message printed last and lastLines the number of lines it took, so it can be repainted.
	last      session.MessageView
	lastLines int
	pending   map[string]bool
}

// lineConfirmer asks yes/no questions through a line prompt. Anything but y or yes is a no.
type lineConfirmer struct {
	prompt func(string) (string, error)
}

func newTerminalSurface(out io.Writer, redraw bool) *terminalSurface {
	return &terminalSurface{
		out:     out,
		redraw:  redraw,
		pending: make(map[string]bool),
	}
}

func (t *terminalSurface) Reset(views []session.MessageView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last, t.lastLines = session.MessageView{}, 0
	clear(t.pending)
	if t.redraw {
		fmt.Fprint(t.out, "\x1b[2J\x1b[H")
	}
	for _, v := range views {
		t.print(v)
	}
}

func (t *terminalSurface) Append(v session.MessageView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.Streaming && !t.redraw {
		t.pending[v.Key] = true
		return
	}
	t.print(v)
}

func (t *terminalSurface) Update(v session.MessageView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.redraw {
		if v.Streaming {
			return
		}
		// Feedback changes on already printed messages are not repeated in append-only mode.
		if t.pending[v.Key] {
			delete(t.pending, v.Key)
			t.print(v)
		}
		return
	}

	if t.lastLines > 0 && v.Key == t.last.Key {
		fmt.Fprintf(t.out, "\x1b[%dA\x1b[J", t.lastLines)
	}
	t.print(v)
}

func (t *terminalSurface) Notice(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A message still streaming stays last on screen: the notice goes above it so later updates can
	// keep repainting it in place.
	if t.redraw && t.last.Streaming && t.lastLines > 0 {
		fmt.Fprintf(t.out, "\x1b[%dA\x1b[J* %s\n", t.lastLines, text)
		t.print(t.last)
		return
	}

	fmt.Fprintf(t.out, "* %s\n", text)
	t.last, t.lastLines = session.MessageView{}, 0
}

// PinToBottom is a no-op: a terminal always shows its latest output.
func (t *terminalSurface) PinToBottom() {}

func (t *terminalSurface) print(v session.MessageView) {
	block := formatView(v)
	fmt.Fprint(t.out, block)
	t.last = v
	t.lastLines = strings.Count(block, "\n")
}

func formatView(v session.MessageView) string {
	var sb strings.Builder

	sb.WriteString(roleLabel(v))
	if v.ID != "" {
		fmt.Fprintf(&sb, " #%s", v.ID)
	}
	if !v.Timestamp.IsZero() {
		fmt.Fprintf(&sb, " %s", v.Timestamp.Local().Format("15:04"))
	}
	switch {
	case v.Streaming:
		sb.WriteString(" ...")
	case v.Failed:
		sb.WriteString(" [failed]")
	}
	if v.Feedback.Liked {
		sb.WriteString(" [liked]")
	}
	if v.Feedback.Disliked {
		sb.WriteString(" [disliked]")
	}
	sb.WriteString("\n")

	body := strings.TrimRight(v.Markup, "\n")
	if body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func roleLabel(v session.MessageView) string {
	if v.Role == models.RoleUser {
		return "You"
	}
	return "AI"
}

func (c lineConfirmer) Confirm(ctx context.Context, question string) bool {
	if ctx.Err() != nil {
		return false
	}
	answer, err := c.prompt(question + " [y/N] ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
