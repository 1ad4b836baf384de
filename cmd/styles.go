package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/deepgram/wayfinder/internal/conversation"
	"github.com/deepgram/wayfinder/internal/progress"
	"github.com/deepgram/wayfinder/internal/search"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

const progressWidth = 30

func senderLabel(sender conversation.Sender) string {
	if sender == conversation.SenderUser {
		return userStyle.Render("you:")
	}
	return assistantStyle.Render("wayfinder:")
}

// renderMessages prints a full message list, one message per line.
func renderMessages(w io.Writer, messages []conversation.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(w, dimStyle.Render("(no messages)"))
		return
	}
	for _, m := range messages {
		line := fmt.Sprintf("%s %s", senderLabel(m.Sender), m.Content)
		if !m.IsComplete {
			line += dimStyle.Render(" …")
		}
		fmt.Fprintln(w, line)
	}
}

// renderProgress draws one progress line such as
// "[=========          ] 45% Collecting place details (3.1s)".
func renderProgress(ev search.Event) string {
	percent := ev.Percent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := progressWidth * percent / 100
	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", progressWidth-filled) + "]"

	label := infoStyle.Render(ev.Message)
	if ev.Stage == progress.StageError {
		label = errorStyle.Render(ev.Message)
	}
	return fmt.Sprintf("%s %3d%% %s %s", bar, percent, label, dimStyle.Render(fmt.Sprintf("(%.1fs)", ev.Elapsed)))
}

// streamPrinter prints an assistant reply as it grows. It only prints while
// a reply is expected, so history reloads are not echoed.
type streamPrinter struct {
	w io.Writer

	mu       sync.Mutex
	active   bool
	id       string
	printed  int
	finished chan struct{}
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w}
}

// expect arms the printer for the next reply. The returned channel closes
// once that reply completes.
func (p *streamPrinter) expect() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.id = ""
	p.printed = 0
	p.finished = make(chan struct{})
	return p.finished
}

// abandon disarms the printer, for example after a failed turn.
func (p *streamPrinter) abandon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *streamPrinter) update(messages []conversation.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Sender != conversation.SenderAssistant {
		return
	}

	if last.ID != p.id {
		if p.id != "" {
			fmt.Fprintln(p.w)
		}
		p.id = last.ID
		p.printed = 0
		fmt.Fprint(p.w, senderLabel(last.Sender)+" ")
	}
	if len(last.Content) > p.printed {
		fmt.Fprint(p.w, last.Content[p.printed:])
		p.printed = len(last.Content)
	}
	if last.IsComplete {
		fmt.Fprintln(p.w)
		p.finishLocked()
	}
}

func (p *streamPrinter) finishLocked() {
	if !p.active {
		return
	}
	p.active = false
	if p.finished != nil {
		close(p.finished)
	}
}
