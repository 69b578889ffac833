// Package terminal presents slides in a terminal and reads presenter keys.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/cockroachdb/errors"
	"github.com/muesli/termenv"

	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/infra/htmlutil"
)

// DisplayOptions configures a Display.
type DisplayOptions struct {
	Width   int  // Word wrap width (default 80)
	NoColor bool // Plain output without styles
	Raw     bool // The terminal is in raw mode; newlines become CRLF
	Clear   bool // Clear the screen before each slide
}

// Display renders notifications to a terminal. It implements
// notification.Stream and is safe for concurrent use.
type Display struct {
	mu       sync.Mutex
	w        io.Writer
	out      *termenv.Output
	renderer *glamour.TermRenderer
	opts     DisplayOptions
}

// NewDisplay creates a Display writing to w.
func NewDisplay(w io.Writer, opts DisplayOptions) (*Display, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Raw {
		w = crlfWriter{w: w}
	}

	style := glamour.WithAutoStyle()
	profile := termenv.EnvColorProfile()
	if opts.NoColor {
		style = glamour.WithStandardStyle("notty")
		profile = termenv.Ascii
	}
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(opts.Width),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create markdown renderer")
	}

	return &Display{
		w:        w,
		out:      termenv.NewOutput(w, termenv.WithProfile(profile)),
		renderer: r,
		opts:     opts,
	}, nil
}

// Send renders a notification.
func (d *Display) Send(n *notification.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch n.Type {
	case "snapshot", playback.EventSlideChanged.String():
		if n.Message != "" {
			return d.complete(n)
		}
		if n.HTML == "" && n.Markdown == "" {
			return d.line(d.status(n))
		}
		return d.slide(n)
	case playback.EventChunkSpoken.String():
		if n.Caption == "" {
			return nil
		}
		return d.line(d.out.String("  > " + n.Caption).Faint().String())
	case playback.EventComplete.String():
		return d.complete(n)
	default:
		return d.line(d.status(n))
	}
}

// Message writes a plain informational line.
func (d *Display) Message(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.line(fmt.Sprintf(format, args...))
}

func (d *Display) slide(n *notification.Notification) error {
	source := n.Markdown
	if source == "" {
		source = htmlutil.ExtractText(n.HTML)
	}
	body, err := d.renderer.Render(source)
	if err != nil {
		return errors.Wrap(err, "failed to render slide")
	}

	if d.opts.Clear {
		d.out.ClearScreen()
	}
	if _, err := io.WriteString(d.w, body); err != nil {
		return err
	}
	return d.line(d.status(n))
}

func (d *Display) complete(n *notification.Notification) error {
	if d.opts.Clear {
		d.out.ClearScreen()
	}
	msg := n.Message
	if msg == "" {
		msg = playback.CompleteMessage
	}
	return d.line("\n" + d.out.String(msg).Bold().String() + "\n")
}

// status formats "[2/5] auto running rate 0.95".
func (d *Display) status(n *notification.Notification) string {
	position := "[-/-]"
	if n.Total > 0 && n.State != playback.StateIdle.String() {
		position = fmt.Sprintf("[%d/%d]", n.Index+1, n.Total)
	}

	state := d.out.String(n.State)
	switch n.State {
	case playback.StateRunning.String():
		state = state.Foreground(d.out.Color("2"))
	case playback.StatePaused.String():
		state = state.Foreground(d.out.Color("3"))
	case playback.StateComplete.String():
		state = state.Foreground(d.out.Color("4"))
	}

	parts := []string{d.out.String(position).Bold().String()}
	if n.Mode != "" {
		parts = append(parts, n.Mode)
	}
	parts = append(parts, state.String())
	if n.Mode == playback.ModeAuto.String() && n.Rate > 0 {
		parts = append(parts, fmt.Sprintf("rate %.2f", n.Rate))
	}
	return strings.Join(parts, " ")
}

func (d *Display) line(s string) error {
	_, err := io.WriteString(d.w, s+"\n")
	return err
}

// crlfWriter translates "\n" to "\r\n" for raw-mode terminals.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	s := strings.ReplaceAll(string(p), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if _, err := io.WriteString(c.w, s); err != nil {
		return 0, err
	}
	return len(p), nil
}
