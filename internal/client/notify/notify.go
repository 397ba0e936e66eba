// Package notify delivers short, non-blocking user notices.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a single message with an optional description line.
type Notice struct {
	Level       Level
	Message     string
	Description string
}

// Notifier surfaces notices to the operator. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

func Success(n Notifier, msg string) { n.Notify(Notice{Level: LevelSuccess, Message: msg}) }
func Info(n Notifier, msg string)    { n.Notify(Notice{Level: LevelInfo, Message: msg}) }
func Error(n Notifier, msg string)   { n.Notify(Notice{Level: LevelError, Message: msg}) }

// Warn emits a warning with an optional description.
func Warn(n Notifier, msg, description string) {
	n.Notify(Notice{Level: LevelWarn, Message: msg, Description: description})
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	descStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

var prefixes = map[Level]string{
	LevelInfo:    "i",
	LevelSuccess: "✓",
	LevelWarn:    "!",
	LevelError:   "✗",
}

// Console writes styled notices to w, one per line.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Notifier = (*Console)(nil)

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Notify(n Notice) {
	style := infoStyle
	switch n.Level {
	case LevelSuccess:
		style = successStyle
	case LevelWarn:
		style = warnStyle
	case LevelError:
		style = errorStyle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, style.Render(prefixes[n.Level]+" "+n.Message))
	if n.Description != "" {
		_, _ = fmt.Fprintln(c.w, descStyle.Render(n.Description))
	}
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

var _ Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Message)
	}
	return out
}

// Discard drops every notice.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notice) {}
