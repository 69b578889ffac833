package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
)

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Key
	}{
		{name: "space", input: " ", want: []Key{KeySpace}},
		{name: "right arrow", input: "\x1b[C", want: []Key{KeyNext}},
		{name: "left arrow", input: "\x1b[D", want: []Key{KeyPrev}},
		{name: "application arrows", input: "\x1bOC\x1bOD", want: []Key{KeyNext, KeyPrev}},
		{name: "speed keys", input: ".>,<", want: []Key{KeyFaster, KeyFaster, KeySlower, KeySlower}},
		{name: "quit", input: "q", want: []Key{KeyQuit}},
		{name: "ctrl-c", input: "\x03", want: []Key{KeyQuit}},
		{name: "ignores other escape sequences", input: "\x1b[1;5A x", want: []Key{KeySpace}},
		{name: "ignores letters", input: "abc", want: nil},
		{name: "mixed", input: "\x1b[C \x1b[Dq", want: []Key{KeyNext, KeySpace, KeyPrev, KeyQuit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeys([]byte(tt.input)))
		})
	}
}

type fakePlayer struct {
	mode  string
	calls []string
	rate  float64
	err   error
}

func (f *fakePlayer) Next() error        { f.calls = append(f.calls, "next"); return f.err }
func (f *fakePlayer) Prev() error        { f.calls = append(f.calls, "prev"); return f.err }
func (f *fakePlayer) TogglePause() error { f.calls = append(f.calls, "pause"); return f.err }
func (f *fakePlayer) AdjustSpeed(delta float64) (float64, error) {
	f.calls = append(f.calls, "speed")
	f.rate += delta
	return f.rate, f.err
}
func (f *fakePlayer) State() playback.PlaybackState {
	return playback.PlaybackState{Mode: f.mode}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		key      Key
		wantCall string
		wantQuit bool
	}{
		{name: "space pauses in auto", mode: "auto", key: KeySpace, wantCall: "pause"},
		{name: "space advances in manual", mode: "manual", key: KeySpace, wantCall: "next"},
		{name: "next", mode: "manual", key: KeyNext, wantCall: "next"},
		{name: "prev", mode: "auto", key: KeyPrev, wantCall: "prev"},
		{name: "faster", mode: "auto", key: KeyFaster, wantCall: "speed"},
		{name: "quit", mode: "auto", key: KeyQuit, wantQuit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{mode: tt.mode}
			quit, err := Dispatch(p, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuit, quit)
			if tt.wantCall != "" {
				assert.Equal(t, []string{tt.wantCall}, p.calls)
			} else {
				assert.Empty(t, p.calls)
			}
		})
	}
}

func TestDispatch_SpeedDirectionAndErrors(t *testing.T) {
	p := &fakePlayer{mode: "auto", rate: 1.0}
	_, err := Dispatch(p, KeySlower)
	require.NoError(t, err)
	assert.InDelta(t, 1.0-playback.SpeedStep, p.rate, 1e-9)

	p.err = playback.ErrAtFirstSlide
	_, err = Dispatch(p, KeyPrev)
	assert.True(t, errors.Is(err, playback.ErrAtFirstSlide))
}

func newTestDisplay(t *testing.T, raw bool) (*Display, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	d, err := NewDisplay(&buf, DisplayOptions{Width: 60, NoColor: true, Raw: raw})
	require.NoError(t, err)
	return d, &buf
}

func TestDisplay_Slide(t *testing.T) {
	d, buf := newTestDisplay(t, false)

	require.NoError(t, d.Send(&notification.Notification{
		Type:     playback.EventSlideChanged.String(),
		Index:    1,
		Total:    3,
		State:    "running",
		Mode:     "auto",
		Rate:     0.95,
		Markdown: "# Numbers\n\nRevenue is up.",
	}))

	out := buf.String()
	assert.Contains(t, out, "Numbers")
	assert.Contains(t, out, "Revenue is up.")
	assert.Contains(t, out, "[2/3] auto running rate 0.95")
}

func TestDisplay_HTMLFallback(t *testing.T) {
	d, buf := newTestDisplay(t, false)

	require.NoError(t, d.Send(&notification.Notification{
		Type:  "snapshot",
		Total: 1,
		State: "running",
		Mode:  "manual",
		HTML:  "<h1>Only HTML</h1><p>Body text.</p>",
	}))

	out := buf.String()
	assert.Contains(t, out, "Only HTML")
	assert.Contains(t, out, "[1/1] manual running")
	assert.NotContains(t, out, "rate")
}

func TestDisplay_CaptionAndComplete(t *testing.T) {
	d, buf := newTestDisplay(t, false)

	require.NoError(t, d.Send(&notification.Notification{
		Type:    playback.EventChunkSpoken.String(),
		Caption: "Hello there.",
	}))
	require.NoError(t, d.Send(&notification.Notification{
		Type:    playback.EventComplete.String(),
		Message: playback.CompleteMessage,
	}))

	out := buf.String()
	assert.Contains(t, out, "> Hello there.")
	assert.Contains(t, out, "End of Presentation")
}

func TestDisplay_RawNewlines(t *testing.T) {
	d, buf := newTestDisplay(t, true)
	d.Message("one\ntwo")

	assert.Equal(t, "one\r\ntwo\r\n", buf.String())
}

func TestReadKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Key
	for k := range ReadKeys(ctx, strings.NewReader(" \x1b[Cq")) {
		got = append(got, k)
	}
	assert.Equal(t, []Key{KeySpace, KeyNext, KeyQuit}, got)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "faster", KeyFaster.String())
	assert.Equal(t, "none", KeyNone.String())
}
