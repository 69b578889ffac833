package live

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/metrics"
)

type recordingStream struct {
	mu  sync.Mutex
	got []notification.Notification
}

func (s *recordingStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, *n)
	return nil
}

func (s *recordingStream) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	for i, n := range s.got {
		out[i] = n.Type
	}
	return out
}

func (s *recordingStream) at(i int) notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[i]
}

func newTestSession() *Session {
	deck := &slide.Deck{
		Meta: slide.Meta{Title: "Live"},
		Slides: []slide.Slide{
			{HTML: "<h1>One</h1>", Markdown: "# One"},
			{HTML: "<h1>Two</h1>", Markdown: "# Two"},
		},
	}
	return NewSession(deck, nil, playback.DefaultConfig(), notification.NewManager(0), metrics.New())
}

func TestSession_BroadcastsPlayback(t *testing.T) {
	s := newTestSession()
	defer s.Close()
	s.Run()

	viewer := &recordingStream{}
	_, err := s.Subscribe(viewer)
	require.NoError(t, err)

	snap := viewer.at(0)
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, "idle", snap.State)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, "Live", snap.Title)

	require.NoError(t, s.Controller().Start(playback.ModeManual))
	require.NoError(t, s.Controller().Next())
	require.NoError(t, s.Controller().Next())

	want := []string{"snapshot", "state_changed", "slide_changed", "slide_changed", "complete"}
	require.Eventually(t, func() bool { return len(viewer.types()) == len(want) }, time.Second, time.Millisecond)
	assert.Equal(t, want, viewer.types())

	second := viewer.at(3)
	assert.Equal(t, "<h1>Two</h1>", second.HTML)
	assert.Equal(t, "# Two", second.Markdown)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, playback.CompleteMessage, viewer.at(4).Message)
}

func TestSession_SnapshotTracksCurrentSlide(t *testing.T) {
	s := newTestSession()
	defer s.Close()
	s.Run()

	require.NoError(t, s.Controller().Start(playback.ModeManual))
	require.NoError(t, s.Controller().Next())

	require.Eventually(t, func() bool {
		return s.Snapshot().HTML == "<h1>Two</h1>"
	}, time.Second, time.Millisecond)

	late := &recordingStream{}
	id, err := s.Subscribe(late)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap := late.at(0)
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, "<h1>Two</h1>", snap.HTML)

	s.Unsubscribe(id)
	assert.Equal(t, 0, s.notification.SubscriberCount())
}

func TestSession_Close(t *testing.T) {
	s := newTestSession()
	s.Run()
	s.Close()
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	assert.ErrorIs(t, s.Controller().Next(), playback.ErrClosed)
}

func TestSession_CloseWithoutRun(t *testing.T) {
	s := newTestSession()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}
